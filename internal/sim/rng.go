package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// ErrCorruptRNG is returned when a persisted generator snapshot cannot be
// restored.
var ErrCorruptRNG = errors.New("sim: corrupt generator state")

// pcgStream is the fixed second PCG seed word; the configured seed supplies
// the first.
const pcgStream = 0x9e3779b97f4a7c15

// generator pairs a rand.Rand with the PCG source behind it so the exact
// source state can be snapshotted after sampling.
type generator struct {
	src *rand.PCG
	*rand.Rand
}

func newGenerator(seed int64) *generator {
	src := rand.NewPCG(uint64(seed), pcgStream)
	return &generator{src: src, Rand: rand.New(src)}
}

func restoreGenerator(state []byte) (*generator, error) {
	src := &rand.PCG{}
	if err := src.UnmarshalBinary(state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRNG, err)
	}
	return &generator{src: src, Rand: rand.New(src)}, nil
}

func (g *generator) snapshot() ([]byte, error) {
	return g.src.MarshalBinary()
}

func (g *generator) normal(mu, sigma float64) float64 {
	return mu + sigma*g.NormFloat64()
}

func (g *generator) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*g.Float64()
}

// intRange draws an integer in [lo, hi].
func (g *generator) intRange(lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	return lo + g.Int64N(hi-lo+1)
}

// categorical draws an index with probability proportional to weights.
func (g *generator) categorical(weights []float64) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	u := g.Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if u < acc {
			return i
		}
	}
	return len(weights) - 1
}

func clip(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
