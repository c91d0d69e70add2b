package sim

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/atmx/classroom-exchange/internal/model"
)

var ErrInvalidState = errors.New("sim: invalid market state")

// Config holds the seeded draws that build a fresh market and the shape of
// every bar produced from it.
type Config struct {
	Seed          int64        `json:"seed" toml:"seed" yaml:"seed"`
	Universe      []string     `json:"universe" toml:"universe" yaml:"universe"`
	InitialRegime model.Regime `json:"initial_regime" toml:"initial_regime" yaml:"initial_regime"`

	MarketBetaMean float64 `json:"market_beta_mean" toml:"market_beta_mean" yaml:"market_beta_mean"`
	MarketBetaSD   float64 `json:"market_beta_sd" toml:"market_beta_sd" yaml:"market_beta_sd"`
	SectorBetaMean float64 `json:"sector_beta_mean" toml:"sector_beta_mean" yaml:"sector_beta_mean"`
	SectorBetaSD   float64 `json:"sector_beta_sd" toml:"sector_beta_sd" yaml:"sector_beta_sd"`

	IdioSigmaMin float64 `json:"idio_sigma_min" toml:"idio_sigma_min" yaml:"idio_sigma_min"`
	IdioSigmaMax float64 `json:"idio_sigma_max" toml:"idio_sigma_max" yaml:"idio_sigma_max"`

	StartPriceLogMu    float64 `json:"start_price_log_mu" toml:"start_price_log_mu" yaml:"start_price_log_mu"`
	StartPriceLogSigma float64 `json:"start_price_log_sigma" toml:"start_price_log_sigma" yaml:"start_price_log_sigma"`

	BaseVolumeMin int64 `json:"base_volume_min" toml:"base_volume_min" yaml:"base_volume_min"`
	BaseVolumeMax int64 `json:"base_volume_max" toml:"base_volume_max" yaml:"base_volume_max"`

	News NewsConfig `json:"news" toml:"news" yaml:"news"`

	SectorSigmaMult    float64 `json:"sector_sigma_mult" toml:"sector_sigma_mult" yaml:"sector_sigma_mult"`
	OvernightSigmaMult float64 `json:"overnight_sigma_mult" toml:"overnight_sigma_mult" yaml:"overnight_sigma_mult"`
	RangeMult          float64 `json:"intrabar_range_mult" toml:"intrabar_range_mult" yaml:"intrabar_range_mult"`

	Regimes RegimeModel `json:"regimes" toml:"regimes" yaml:"regimes"`
}

// Floors applied to generated prices and volumes.
const (
	MinStartPrice = 2.0
	MinClose      = 0.5
	MinVolume     = 1000
)

// DefaultConfig returns the classroom market calibration.
func DefaultConfig() Config {
	return Config{
		Seed:               7,
		Universe:           slices.Clone(DefaultUniverse),
		InitialRegime:      model.RegimeSideways,
		MarketBetaMean:     1.00,
		MarketBetaSD:       0.20,
		SectorBetaMean:     0.60,
		SectorBetaSD:       0.25,
		IdioSigmaMin:       0.006,
		IdioSigmaMax:       0.028,
		StartPriceLogMu:    4.7,
		StartPriceLogSigma: 0.55,
		BaseVolumeMin:      2_000_000,
		BaseVolumeMax:      30_000_000,
		News:               DefaultNewsConfig(),
		SectorSigmaMult:    0.65,
		OvernightSigmaMult: 0.35,
		RangeMult:          1.10,
		Regimes:            DefaultRegimeModel(),
	}
}

// Validate checks the configuration before any draw is made.
func (c Config) Validate() error {
	if len(c.Universe) == 0 {
		return fmt.Errorf("%w: empty universe", ErrInvalidState)
	}
	seen := make(map[string]bool, len(c.Universe))
	for _, t := range c.Universe {
		if t == "" || seen[t] {
			return fmt.Errorf("%w: empty or duplicate ticker %q", ErrInvalidState, t)
		}
		seen[t] = true
	}
	if !c.InitialRegime.Valid() {
		return fmt.Errorf("%w: unknown initial regime %q", ErrInvalidState, c.InitialRegime)
	}
	if c.IdioSigmaMin < 0 || c.IdioSigmaMax < c.IdioSigmaMin {
		return fmt.Errorf("%w: idio sigma range [%g, %g]", ErrInvalidState, c.IdioSigmaMin, c.IdioSigmaMax)
	}
	if c.BaseVolumeMin < 0 || c.BaseVolumeMax < c.BaseVolumeMin {
		return fmt.Errorf("%w: base volume range [%d, %d]", ErrInvalidState, c.BaseVolumeMin, c.BaseVolumeMax)
	}
	if c.News.ProbPerDay < 0 || c.News.ProbPerDay >= 1 {
		return fmt.Errorf("%w: news probability %g outside [0, 1)", ErrInvalidState, c.News.ProbPerDay)
	}
	return c.Regimes.Validate()
}

// TickerParams are the per-ticker factor loadings drawn once at creation.
type TickerParams struct {
	MarketBeta  float64      `json:"market_beta"`
	SectorBeta  float64      `json:"sector_beta"`
	IdioSigma   float64      `json:"idio_sigma"`
	BaseVolume  int64        `json:"base_volume"`
	Sector      model.Sector `json:"sector"`
	CompanyName string       `json:"company_name,omitempty"`
}

// State is the complete resumable market state. Step never mutates its
// input; it returns the successor state.
type State struct {
	Universe      []string                `json:"universe"`
	RNGState      []byte                  `json:"rng_state"`
	Params        map[string]TickerParams `json:"params"`
	LastClose     map[string]float64      `json:"last_close"`
	Regime        model.Regime            `json:"current_regime"`
	Date          time.Time               `json:"current_date"`
	BarIndex      int                     `json:"current_bar_index"`
	MacroHeadline string                  `json:"current_macro_headline,omitempty"`
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Universe = slices.Clone(s.Universe)
	out.RNGState = slices.Clone(s.RNGState)
	out.Params = make(map[string]TickerParams, len(s.Params))
	for k, v := range s.Params {
		out.Params[k] = v
	}
	out.LastClose = make(map[string]float64, len(s.LastClose))
	for k, v := range s.LastClose {
		out.LastClose[k] = v
	}
	return out
}

// Validate checks the structural invariants of a loaded state for a mode
// with barsPerDay bars.
func (s State) Validate(barsPerDay int) error {
	if len(s.Universe) == 0 {
		return fmt.Errorf("%w: empty universe", ErrInvalidState)
	}
	if len(s.RNGState) == 0 {
		return fmt.Errorf("%w: missing generator state", ErrInvalidState)
	}
	if !s.Regime.Valid() {
		return fmt.Errorf("%w: unknown regime %q", ErrInvalidState, s.Regime)
	}
	if s.BarIndex < 0 || s.BarIndex >= barsPerDay {
		return fmt.Errorf("%w: bar index %d outside [0, %d)", ErrInvalidState, s.BarIndex, barsPerDay)
	}
	if s.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidState)
	}
	for _, t := range s.Universe {
		if _, ok := s.Params[t]; !ok {
			return fmt.Errorf("%w: no parameters for %s", ErrInvalidState, t)
		}
		if c := s.LastClose[t]; !(c > 0) || math.IsInf(c, 0) {
			return fmt.Errorf("%w: last close for %s is %v", ErrInvalidState, t, c)
		}
	}
	return nil
}

// NewState draws a fresh market from cfg: every market beta, then every
// sector beta, idio sigma, base volume and finally every start price, each
// pass in universe order. start is rolled forward to a business day.
func NewState(cfg Config, start time.Time, ref Reference) (State, error) {
	if err := cfg.Validate(); err != nil {
		return State{}, err
	}
	rng := newGenerator(cfg.Seed)
	universe := slices.Clone(cfg.Universe)

	params := make(map[string]TickerParams, len(universe))
	for _, t := range universe {
		sector, company := describe(ref, t)
		params[t] = TickerParams{Sector: sector, CompanyName: company}
	}
	update := func(fn func(p *TickerParams)) {
		for _, t := range universe {
			p := params[t]
			fn(&p)
			params[t] = p
		}
	}
	update(func(p *TickerParams) {
		p.MarketBeta = clip(rng.normal(cfg.MarketBetaMean, cfg.MarketBetaSD), 0.2, 2.2)
	})
	update(func(p *TickerParams) {
		p.SectorBeta = clip(rng.normal(cfg.SectorBetaMean, cfg.SectorBetaSD), 0.0, 1.5)
	})
	update(func(p *TickerParams) {
		p.IdioSigma = rng.uniform(cfg.IdioSigmaMin, cfg.IdioSigmaMax)
	})
	update(func(p *TickerParams) {
		p.BaseVolume = rng.intRange(cfg.BaseVolumeMin, cfg.BaseVolumeMax)
	})

	lastClose := make(map[string]float64, len(universe))
	for _, t := range universe {
		lastClose[t] = math.Max(MinStartPrice, math.Exp(rng.normal(cfg.StartPriceLogMu, cfg.StartPriceLogSigma)))
	}

	snap, err := rng.snapshot()
	if err != nil {
		return State{}, fmt.Errorf("snapshot generator: %w", err)
	}
	return State{
		Universe:  universe,
		RNGState:  snap,
		Params:    params,
		LastClose: lastClose,
		Regime:    cfg.InitialRegime,
		Date:      BusinessDayOnOrAfter(start),
	}, nil
}
