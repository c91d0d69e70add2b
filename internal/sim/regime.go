package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/atmx/classroom-exchange/internal/model"
)

var ErrInvalidRegimeModel = errors.New("sim: invalid regime model")

// RegimeParams is the daily drift and volatility of the market factor.
type RegimeParams struct {
	Mu    float64 `json:"mu" toml:"mu" yaml:"mu"`
	Sigma float64 `json:"sigma" toml:"sigma" yaml:"sigma"`
}

// RegimeModel is a four-state Markov chain over model.Regimes. Each row of
// Transitions is a categorical distribution over model.Regimes, in order.
type RegimeModel struct {
	Params      map[model.Regime]RegimeParams `json:"params" toml:"params" yaml:"params"`
	Transitions map[model.Regime][]float64    `json:"transitions" toml:"transitions" yaml:"transitions"`
}

// DefaultRegimeModel returns the calibrated classroom regimes.
func DefaultRegimeModel() RegimeModel {
	return RegimeModel{
		Params: map[model.Regime]RegimeParams{
			model.RegimeBull:     {Mu: 0.0006, Sigma: 0.010},
			model.RegimeSideways: {Mu: 0.0001, Sigma: 0.008},
			model.RegimeBear:     {Mu: -0.0006, Sigma: 0.012},
			model.RegimeCrisis:   {Mu: -0.0012, Sigma: 0.025},
		},
		Transitions: map[model.Regime][]float64{
			//                     bull   side   bear   crisis
			model.RegimeBull:     {0.92, 0.06, 0.015, 0.005},
			model.RegimeSideways: {0.10, 0.82, 0.06, 0.02},
			model.RegimeBear:     {0.06, 0.18, 0.70, 0.06},
			model.RegimeCrisis:   {0.05, 0.15, 0.35, 0.45},
		},
	}
}

// Validate checks that every regime has parameters and a transition row of
// non-negative weights summing to 1, and that no unknown regime is named.
func (m RegimeModel) Validate() error {
	for r := range m.Params {
		if !r.Valid() {
			return fmt.Errorf("%w: unknown regime %q in params", ErrInvalidRegimeModel, r)
		}
	}
	for r := range m.Transitions {
		if !r.Valid() {
			return fmt.Errorf("%w: unknown regime %q in transitions", ErrInvalidRegimeModel, r)
		}
	}
	for _, r := range model.Regimes {
		p, ok := m.Params[r]
		if !ok {
			return fmt.Errorf("%w: no parameters for %s", ErrInvalidRegimeModel, r)
		}
		if p.Sigma < 0 {
			return fmt.Errorf("%w: negative sigma for %s", ErrInvalidRegimeModel, r)
		}
		row, ok := m.Transitions[r]
		if !ok || len(row) != len(model.Regimes) {
			return fmt.Errorf("%w: transition row for %s must have %d entries", ErrInvalidRegimeModel, r, len(model.Regimes))
		}
		sum := 0.0
		for _, w := range row {
			if w < 0 {
				return fmt.Errorf("%w: negative transition weight for %s", ErrInvalidRegimeModel, r)
			}
			sum += w
		}
		if math.Abs(sum-1) > 1e-9 {
			return fmt.Errorf("%w: transition row for %s sums to %g", ErrInvalidRegimeModel, r, sum)
		}
	}
	return nil
}

// Next samples the regime following current.
func (m RegimeModel) Next(rng *generator, current model.Regime) model.Regime {
	return model.Regimes[rng.categorical(m.Transitions[current])]
}

// Scaled returns the regime's drift and volatility for one bar when a day is
// split into barsPerDay bars: drift scales linearly, volatility with the
// square root of time.
func (m RegimeModel) Scaled(r model.Regime, barsPerDay int) (mu, sigma float64) {
	p := m.Params[r]
	n := float64(barsPerDay)
	return p.Mu / n, p.Sigma / math.Sqrt(n)
}
