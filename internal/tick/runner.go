// Package tick runs one exchange tick: advance the market by one bar,
// execute the pending orders against it, and publish reports and dashboard
// snapshots. A tick runs synchronously to completion.
package tick

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/classroom-exchange/internal/execution"
	"github.com/atmx/classroom-exchange/internal/fsutil"
	"github.com/atmx/classroom-exchange/internal/metrics"
	"github.com/atmx/classroom-exchange/internal/model"
	"github.com/atmx/classroom-exchange/internal/report"
	"github.com/atmx/classroom-exchange/internal/sim"
	"github.com/atmx/classroom-exchange/internal/store"
	"github.com/atmx/classroom-exchange/internal/tape"
)

// ErrNotExecuted wraps Run failures that happened before any order reached
// a portfolio, so the caller can safely submit the same orders again.
var ErrNotExecuted = errors.New("tick: orders not executed")

// Locker serializes ticks across processes. store.TickLock implements it.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Paths locates the tick's inputs and outputs.
type Paths struct {
	MarketState     string
	PricesOut       string
	NewsOut         string
	ReportsDir      string
	LeaderboardsDir string
	SiteDataDir     string
}

// Options configures a Runner.
type Options struct {
	Paths       Paths
	Start       time.Time // first business day of a freshly created market
	InitialCash decimal.Decimal
	HistoryLen  int // trailing closes per ticker in latest_prices.json
	Reference   sim.Reference
	Lock        Locker // optional
}

// Result summarizes one tick.
type Result struct {
	Timestamp    time.Time
	Regime       model.Regime
	Created      bool // the market state was created by this tick
	Bars         []model.Bar
	News         []model.NewsEvent
	Trades       []model.TradeLogEntry
	SkippedTeams []string
	Positions    []report.PositionRow
	PnL          []report.PnLRow
	Prices       report.PricesSnapshot
}

// Runner executes ticks. It keeps no state between ticks beyond what it
// reads from and writes to disk and the portfolio store.
type Runner struct {
	engine   *sim.Engine
	pipeline *execution.Pipeline
	store    store.Store
	opts     Options

	state tape.StateFile
	bars  tape.BarLog
	news  tape.NewsLog
}

// NewRunner wires a runner.
func NewRunner(engine *sim.Engine, pipeline *execution.Pipeline, st store.Store, opts Options) *Runner {
	return &Runner{
		engine:   engine,
		pipeline: pipeline,
		store:    st,
		opts:     opts,
		state:    tape.StateFile{Path: opts.Paths.MarketState},
		bars:     tape.BarLog{Path: opts.Paths.PricesOut},
		news:     tape.NewsLog{Path: opts.Paths.NewsOut},
	}
}

// Advance steps the market by one bar and persists the bar log, news log and
// state, in that order. It executes no orders.
func (r *Runner) Advance(ctx context.Context) (sim.StepResult, sim.State, bool, error) {
	st, created, err := r.state.LoadOrCreate(func() (sim.State, error) {
		return r.engine.NewState(r.opts.Start, r.opts.Reference)
	})
	if err != nil {
		return sim.StepResult{}, sim.State{}, false, err
	}
	if created {
		slog.Info("market state created", "path", r.opts.Paths.MarketState,
			"tickers", len(st.Universe), "start", st.Date.Format(sim.DateLayout))
	}
	if err := ctx.Err(); err != nil {
		return sim.StepResult{}, sim.State{}, created, err
	}

	next, res, err := r.engine.Step(st)
	if err != nil {
		return sim.StepResult{}, sim.State{}, created, fmt.Errorf("step market: %w", err)
	}
	if err := r.bars.Append(res.Bars); err != nil {
		return sim.StepResult{}, sim.State{}, created, err
	}
	if err := r.news.Append(res.News); err != nil {
		return sim.StepResult{}, sim.State{}, created, err
	}
	if err := r.state.Save(next); err != nil {
		return sim.StepResult{}, sim.State{}, created, err
	}
	metrics.ObserveStep(res.Bars, res.News, next.Regime)
	return res, next, created, nil
}

// Run performs one full tick with the given orders, which must be in
// submission order. When a Locker is configured and the lock is held
// elsewhere, Run returns store.ErrLockHeld without touching any state. A
// failure to advance the market is wrapped in ErrNotExecuted.
func (r *Runner) Run(ctx context.Context, orders []model.Order) (_ *Result, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		switch {
		case errors.Is(err, store.ErrLockHeld):
			outcome = "skipped"
		case err != nil:
			outcome = "error"
		}
		metrics.TicksTotal.WithLabelValues(outcome).Inc()
		metrics.TickLatency.Observe(time.Since(start).Seconds())
	}()

	if r.opts.Lock != nil {
		release, err := r.opts.Lock.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	step, st, created, err := r.Advance(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotExecuted, err)
	}
	res := &Result{
		Timestamp: step.Timestamp,
		Regime:    st.Regime,
		Created:   created,
		Bars:      step.Bars,
		News:      step.News,
	}

	closes := make(map[string]decimal.Decimal, len(step.Bars))
	byTicker := make(map[string]*model.Bar, len(step.Bars))
	for i := range step.Bars {
		b := &step.Bars[i]
		closes[b.Ticker] = decimal.NewFromFloat(b.Close)
		byTicker[b.Ticker] = b
	}

	if err := r.execute(ctx, res, orders, byTicker, closes); err != nil {
		return nil, err
	}
	if err := r.publish(ctx, res, closes); err != nil {
		return nil, err
	}

	slog.Info("tick complete",
		"timestamp", res.Timestamp.Format(tape.TimestampLayout),
		"regime", res.Regime,
		"bars", len(res.Bars),
		"news", len(res.News),
		"orders", len(orders),
		"trades", len(res.Trades),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// execute groups orders by team (teams in name order), runs each team's
// orders in submission order against one loaded portfolio, and saves it.
func (r *Runner) execute(ctx context.Context, res *Result, orders []model.Order, byTicker map[string]*model.Bar, closes map[string]decimal.Decimal) error {
	byTeam := make(map[string][]model.Order)
	for _, o := range orders {
		byTeam[o.Team] = append(byTeam[o.Team], o)
	}
	teams := make([]string, 0, len(byTeam))
	for team := range byTeam {
		teams = append(teams, team)
	}
	sort.Strings(teams)

	for _, team := range teams {
		if err := store.ValidateTeam(team); err != nil {
			slog.Warn("skipping orders for unusable team name", "team", team, "orders", len(byTeam[team]))
			res.SkippedTeams = append(res.SkippedTeams, team)
			continue
		}
		p, err := store.LoadOrNew(ctx, r.store, team, r.opts.InitialCash)
		if err != nil {
			return err
		}
		for _, o := range byTeam[team] {
			entry := r.pipeline.Execute(p, o, byTicker[o.Ticker], closes, res.Timestamp)
			slog.Debug("order processed", "team", team, "ticker", o.Ticker, "side", o.Side,
				"qty", o.Qty, "status", entry.Status, "ref", o.Ref)
			res.Trades = append(res.Trades, entry)
		}
		if err := r.store.SavePortfolio(ctx, p); err != nil {
			return fmt.Errorf("save portfolio %s: %w", team, err)
		}
	}

	if err := r.store.AppendTrades(ctx, res.Trades); err != nil {
		return fmt.Errorf("append trade log: %w", err)
	}
	metrics.ObserveTrades(res.Trades)
	return nil
}

// publish writes the reports, the leaderboard and the dashboard snapshots.
func (r *Runner) publish(ctx context.Context, res *Result, closes map[string]decimal.Decimal) error {
	portfolios, err := r.store.ListPortfolios(ctx)
	if err != nil {
		return fmt.Errorf("list portfolios: %w", err)
	}
	date := res.Timestamp.Format(sim.DateLayout)
	res.Positions = report.BuildPositions(portfolios, closes, date)
	res.PnL = report.BuildPnL(portfolios, closes, date, r.opts.InitialCash)

	p := r.opts.Paths
	stamp := report.FileStamp(res.Timestamp)
	if err := report.WritePositionsCSV(filepath.Join(p.ReportsDir, "positions_"+stamp+".csv"), res.Positions); err != nil {
		return fmt.Errorf("write positions report: %w", err)
	}
	if err := report.WritePnLCSV(filepath.Join(p.ReportsDir, "pnl_"+stamp+".csv"), res.PnL); err != nil {
		return fmt.Errorf("write pnl report: %w", err)
	}
	if err := report.WritePnLCSV(filepath.Join(p.LeaderboardsDir, "leaderboard.csv"), res.PnL); err != nil {
		return fmt.Errorf("write leaderboard: %w", err)
	}
	if len(res.Trades) > 0 {
		if err := report.WriteTradesCSV(filepath.Join(p.LeaderboardsDir, "trades_"+stamp+".csv"), res.Trades); err != nil {
			return fmt.Errorf("write trades: %w", err)
		}
	}

	allBars, err := r.bars.Read()
	if err != nil {
		return fmt.Errorf("read bar log: %w", err)
	}
	allNews, err := r.news.Read()
	if err != nil {
		return fmt.Errorf("read news log: %w", err)
	}
	res.Prices = report.LatestPrices(allBars, r.opts.HistoryLen)

	snapshots := map[string]any{
		"latest_prices.json": res.Prices,
		"latest_news.json":   report.LatestNews(allNews, report.DefaultNewsLimit),
		"leaderboard.json":   report.LeaderboardSnapshot{Timestamp: res.Timestamp, Rows: res.PnL},
	}
	for name, v := range snapshots {
		if err := fsutil.WriteJSON(filepath.Join(p.SiteDataDir, name), v); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
	}
	return nil
}
