package report

import (
	"time"

	"github.com/atmx/classroom-exchange/internal/model"
)

// DefaultNewsLimit is how many trailing headlines the news snapshot keeps.
const DefaultNewsLimit = 50

// PriceRow is the dashboard view of one ticker's latest bar.
type PriceRow struct {
	Ticker  string       `json:"ticker"`
	Sector  model.Sector `json:"sector"`
	Close   float64      `json:"close"`
	Volume  int64        `json:"volume"`
	Chg     float64      `json:"chg"`
	ChgPct  float64      `json:"chg_pct"`
	HasNews bool         `json:"has_news"`
	History []float64    `json:"history,omitempty"`
}

// PricesSnapshot holds the rows for the most recent timestamp in the bar
// log. Timestamp is nil when the log is empty.
type PricesSnapshot struct {
	Timestamp *time.Time   `json:"timestamp"`
	Regime    model.Regime `json:"regime,omitempty"`
	Rows      []PriceRow   `json:"rows"`
}

// NewsSnapshot holds the trailing headlines.
type NewsSnapshot struct {
	Timestamp *time.Time        `json:"timestamp"`
	Items     []model.NewsEvent `json:"items"`
}

// LeaderboardSnapshot is the P&L table at one tick.
type LeaderboardSnapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Rows      []PnLRow  `json:"rows"`
}

// LatestPrices builds the price snapshot from a time-ordered bar log. Change
// is measured against the ticker's previous bar and is zero for a ticker's
// first bar. history keeps up to that many trailing closes per ticker,
// oldest first; zero disables it.
func LatestPrices(bars []model.Bar, history int) PricesSnapshot {
	snap := PricesSnapshot{Rows: []PriceRow{}}
	if len(bars) == 0 {
		return snap
	}
	latest := bars[len(bars)-1].Timestamp
	snap.Timestamp = &latest
	snap.Regime = bars[len(bars)-1].Regime

	prev := make(map[string]float64)
	closes := make(map[string][]float64)
	for _, b := range bars {
		if b.Timestamp.Equal(latest) {
			row := PriceRow{
				Ticker:  b.Ticker,
				Sector:  b.Sector,
				Close:   b.Close,
				Volume:  b.Volume,
				HasNews: b.HasNews,
			}
			if pc, ok := prev[b.Ticker]; ok && pc != 0 {
				row.Chg = b.Close - pc
				row.ChgPct = row.Chg / pc
			}
			if history > 0 {
				row.History = append(trail(closes[b.Ticker], history-1), b.Close)
			}
			snap.Rows = append(snap.Rows, row)
			continue
		}
		prev[b.Ticker] = b.Close
		if history > 0 {
			closes[b.Ticker] = trail(append(closes[b.Ticker], b.Close), history)
		}
	}
	return snap
}

// trail returns the last n elements of s as a fresh slice.
func trail(s []float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return append([]float64(nil), s...)
}

// LatestNews keeps the last limit events.
func LatestNews(events []model.NewsEvent, limit int) NewsSnapshot {
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	snap := NewsSnapshot{Items: append([]model.NewsEvent{}, events...)}
	if len(events) > 0 {
		ts := events[len(events)-1].Timestamp
		snap.Timestamp = &ts
	}
	return snap
}
