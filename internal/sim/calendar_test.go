package sim

import (
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNextBusinessDay_SkipsWeekend(t *testing.T) {
	cases := map[string]string{
		"2025-01-02": "2025-01-03", // Thu → Fri
		"2025-01-03": "2025-01-06", // Fri → Mon
		"2025-01-04": "2025-01-06", // Sat → Mon
		"2025-01-05": "2025-01-06", // Sun → Mon
	}
	for in, want := range cases {
		if got := NextBusinessDay(day(in)).Format(DateLayout); got != want {
			t.Errorf("NextBusinessDay(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestBusinessDayOnOrAfter(t *testing.T) {
	if got := BusinessDayOnOrAfter(day("2025-01-06")).Format(DateLayout); got != "2025-01-06" {
		t.Errorf("Monday should map to itself, got %s", got)
	}
	if got := BusinessDayOnOrAfter(day("2025-01-04")).Format(DateLayout); got != "2025-01-06" {
		t.Errorf("Saturday should roll to Monday, got %s", got)
	}
}

func TestBusinessDays(t *testing.T) {
	days := BusinessDays(day("2025-01-01"), day("2025-01-14"))
	if len(days) != 10 {
		t.Fatalf("expected 10 business days, got %d", len(days))
	}
	for _, d := range days {
		if !IsBusinessDay(d) {
			t.Errorf("%s is not a business day", d.Format(DateLayout))
		}
	}
}
