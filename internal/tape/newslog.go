package tape

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/atmx/classroom-exchange/internal/fsutil"
	"github.com/atmx/classroom-exchange/internal/model"
)

// NewsLog is the append-only JSON-lines news log.
type NewsLog struct {
	Path string
}

// Append writes one JSON object per event at the end of the log.
func (l NewsLog) Append(events []model.NewsEvent) error {
	f, _, err := fsutil.OpenAppend(l.Path)
	if err != nil {
		return fmt.Errorf("open news log: %w", err)
	}
	defer f.Close()
	if err := writeNews(f, events); err != nil {
		return fmt.Errorf("append news log: %w", err)
	}
	return f.Sync()
}

// Read loads every event in the log. A missing file yields no events.
func (l NewsLog) Read() ([]model.NewsEvent, error) {
	f, err := os.Open(l.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadNews(f)
}

func writeNews(w io.Writer, events []model.NewsEvent) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadNews parses JSON-lines news, skipping blank lines.
func ReadNews(r io.Reader) ([]model.NewsEvent, error) {
	var events []model.NewsEvent
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev model.NewsEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	return events, sc.Err()
}
