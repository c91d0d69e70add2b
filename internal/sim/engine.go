// Package sim generates the synthetic market: a regime-switching
// market/sector/idiosyncratic factor model that emits OHLCV bars and
// ticker-level news, either as a one-shot daily tape or one step at a time
// from a persisted State.
package sim

import (
	"fmt"
	"sort"
	"time"

	"github.com/atmx/classroom-exchange/internal/model"
)

// StepResult is everything produced by one step.
type StepResult struct {
	Timestamp time.Time
	Bars      []model.Bar
	News      []model.NewsEvent
}

// Engine advances a State by one bar under a fixed Config and Mode. It holds
// no mutable state of its own and is safe for concurrent use.
type Engine struct {
	cfg  Config
	mode Mode
	news *NewsGenerator
}

func NewEngine(cfg Config, mode Mode) (*Engine, error) {
	if err := cfg.Regimes.Validate(); err != nil {
		return nil, err
	}
	if mode.BarsPerDay() == 0 {
		return nil, fmt.Errorf("sim: mode %q has no bar hours", mode.Name)
	}
	return &Engine{cfg: cfg, mode: mode, news: NewNewsGenerator(cfg.News)}, nil
}

func (e *Engine) Mode() Mode { return e.mode }

// NewState draws a fresh market for this engine's configuration.
func (e *Engine) NewState(start time.Time, ref Reference) (State, error) {
	return NewState(e.cfg, start, ref)
}

// Step produces the bar at st's cursor for every ticker and returns the
// advanced state. The generator is restored from st.RNGState before any
// draw and the returned state carries its post-sampling snapshot, so
// stepping through a save/load cycle yields the same bars as stepping in
// memory. st itself is left untouched.
func (e *Engine) Step(st State) (State, StepResult, error) {
	if err := st.Validate(e.mode.BarsPerDay()); err != nil {
		return st, StepResult{}, err
	}
	next := st.Clone()
	rng, err := restoreGenerator(next.RNGState)
	if err != nil {
		return st, StepResult{}, err
	}

	bpd := e.mode.BarsPerDay()
	if next.BarIndex == 0 {
		next.Regime = e.cfg.Regimes.Next(rng, next.Regime)
		next.MacroHeadline = e.news.macro(rng)
	}

	mu, sigma := e.cfg.Regimes.Scaled(next.Regime, bpd)
	sc := &stepContext{
		timestamp:     e.mode.Timestamp(next.Date, next.BarIndex),
		date:          next.Date.Format(DateLayout),
		barIndex:      next.BarIndex,
		regime:        next.Regime,
		macroHeadline: next.MacroHeadline,
		marketReturn:  rng.normal(mu, sigma),
		sectorReturns: make([]float64, len(model.Sectors)),
	}
	for i := range sc.sectorReturns {
		sc.sectorReturns[i] = rng.normal(0, e.cfg.SectorSigmaMult*sigma)
	}

	res := StepResult{Timestamp: sc.timestamp, Bars: make([]model.Bar, 0, len(next.Universe))}
	for _, t := range next.Universe {
		p := next.Params[t]
		shock, fired := e.news.draw(rng, t, next.Regime, p.Sector, bpd, e.mode.ShockScale)
		if fired {
			res.News = append(res.News, model.NewsEvent{
				Timestamp:    sc.timestamp,
				Date:         sc.date,
				Ticker:       t,
				CompanyName:  p.CompanyName,
				EventType:    shock.Event.Name,
				Sentiment:    shock.Event.Sentiment,
				Headline:     shock.Headline,
				ShockReturn:  shock.Return,
				MacroContext: next.MacroHeadline,
				Regime:       next.Regime,
			})
		}
		bar, lastClose := e.synthesize(rng, sc, t, p, next.LastClose[t], shock, fired)
		next.LastClose[t] = lastClose
		res.Bars = append(res.Bars, bar)
	}

	next.BarIndex++
	if next.BarIndex >= bpd {
		next.BarIndex = 0
		next.Date = NextBusinessDay(next.Date)
	}
	if next.RNGState, err = rng.snapshot(); err != nil {
		return st, StepResult{}, fmt.Errorf("snapshot generator: %w", err)
	}
	return next, res, nil
}

// Tape is a complete batch-generated market history.
type Tape struct {
	Bars []model.Bar
	News []model.NewsEvent
}

// Generate builds a daily tape for every business day in [start, end] from a
// fresh state seeded by cfg. Bars are sorted by date then ticker.
func Generate(cfg Config, start, end time.Time, ref Reference) (*Tape, error) {
	e, err := NewEngine(cfg, Daily)
	if err != nil {
		return nil, err
	}
	st, err := e.NewState(start, ref)
	if err != nil {
		return nil, err
	}
	last := civil(end)
	tape := &Tape{}
	for !st.Date.After(last) {
		var res StepResult
		st, res, err = e.Step(st)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", st.Date.Format(DateLayout), err)
		}
		tape.Bars = append(tape.Bars, res.Bars...)
		tape.News = append(tape.News, res.News...)
	}
	sort.SliceStable(tape.Bars, func(i, j int) bool {
		if tape.Bars[i].Date != tape.Bars[j].Date {
			return tape.Bars[i].Date < tape.Bars[j].Date
		}
		return tape.Bars[i].Ticker < tape.Bars[j].Ticker
	})
	return tape, nil
}
