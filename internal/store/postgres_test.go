package store

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseNumeric(t *testing.T) {
	if got, err := parseNumeric(nil); got != nil || err != nil {
		t.Errorf("NULL must map to nil, got %v, %v", got, err)
	}

	s := "101.2500"
	got, err := parseNumeric(&s)
	if err != nil || got == nil || !got.Equal(decimal.RequireFromString("101.25")) {
		t.Errorf("expected 101.25, got %v, %v", got, err)
	}

	bad := "NaN"
	if got, err := parseNumeric(&bad); err == nil {
		t.Errorf("expected an error for %q, got %v", bad, got)
	}
}
