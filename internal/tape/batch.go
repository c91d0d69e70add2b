package tape

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/atmx/classroom-exchange/internal/fsutil"
	"github.com/atmx/classroom-exchange/internal/sim"
)

// WriteTape writes a batch tape as prices.csv and news.jsonl under dir,
// replacing any previous tape there. It returns both paths.
func WriteTape(dir string, t *sim.Tape) (pricesPath, newsPath string, err error) {
	pricesPath = filepath.Join(dir, "prices.csv")
	newsPath = filepath.Join(dir, "news.jsonl")

	var buf bytes.Buffer
	if err := writeBars(&buf, t.Bars, true); err != nil {
		return "", "", fmt.Errorf("encode prices: %w", err)
	}
	if err := fsutil.WriteFileAtomic(pricesPath, buf.Bytes(), 0o644); err != nil {
		return "", "", fmt.Errorf("write prices: %w", err)
	}

	buf.Reset()
	if err := writeNews(&buf, t.News); err != nil {
		return "", "", fmt.Errorf("encode news: %w", err)
	}
	if err := fsutil.WriteFileAtomic(newsPath, buf.Bytes(), 0o644); err != nil {
		return "", "", fmt.Errorf("write news: %w", err)
	}
	return pricesPath, newsPath, nil
}
