package report

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/classroom-exchange/internal/fsutil"
	"github.com/atmx/classroom-exchange/internal/model"
)

var (
	positionColumns = []string{"date", "team", "ticker", "qty", "close", "avg_cost", "market_value", "weight", "unrealized_pnl"}
	pnlColumns      = []string{"date", "team", "nav", "cash", "realized_pnl", "unrealized_pnl", "total_pnl", "total_return"}
	tradeColumns    = []string{"id", "timestamp", "team", "ticker", "side", "qty", "status", "price", "fee", "order_type", "limit_price", "issue"}
)

// FileStamp formats ts for use in a file name: "2025-01-06_10-00-00".
func FileStamp(ts time.Time) string {
	s := ts.UTC().Format("2006-01-02 15:04:05")
	return strings.NewReplacer(":", "-", " ", "_").Replace(s)
}

// WritePositionsCSV atomically writes a positions report. A header is
// written even when rows is empty.
func WritePositionsCSV(path string, rows []PositionRow) error {
	records := make([][]string, len(rows))
	for i, r := range rows {
		records[i] = []string{
			r.Date, r.Team, r.Ticker, strconv.FormatInt(r.Qty, 10),
			r.Close.String(), r.AvgCost.String(), r.MarketValue.String(),
			r.Weight.String(), r.UnrealizedPnL.String(),
		}
	}
	return writeCSV(path, positionColumns, records)
}

// WritePnLCSV atomically writes a P&L report. The leaderboard file uses the
// same layout.
func WritePnLCSV(path string, rows []PnLRow) error {
	records := make([][]string, len(rows))
	for i, r := range rows {
		records[i] = []string{
			r.Date, r.Team, r.NAV.String(), r.Cash.String(), r.RealizedPnL.String(),
			r.UnrealizedPnL.String(), r.TotalPnL.String(), r.TotalReturn.String(),
		}
	}
	return writeCSV(path, pnlColumns, records)
}

// WriteTradesCSV atomically writes one tick's trade log entries.
func WriteTradesCSV(path string, entries []model.TradeLogEntry) error {
	records := make([][]string, len(entries))
	for i, e := range entries {
		records[i] = []string{
			e.ID, e.Timestamp.UTC().Format("2006-01-02 15:04:05"), e.Team, e.Ticker,
			string(e.Side), strconv.FormatInt(e.Qty, 10), string(e.Status),
			optional(e.Price), optional(e.Fee), string(e.OrderType), optional(e.LimitPrice), e.Ref,
		}
	}
	return writeCSV(path, tradeColumns, records)
}

func optional(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func writeCSV(path string, header []string, records [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(records); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, buf.Bytes(), 0o644)
}
