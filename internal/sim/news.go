package sim

import (
	"math"
	"strings"

	"github.com/atmx/classroom-exchange/internal/model"
)

// EventType is one entry of the ticker-level news catalog.
type EventType struct {
	Name      string
	Sentiment string
	JumpLow   float64
	JumpHigh  float64
	VolMult   float64
	Headlines []string
}

// EventCatalog lists the news event types in draw order.
var EventCatalog = []EventType{
	{"earnings_beat", "positive", 0.015, 0.060, 1.4, []string{
		"{ticker} surges after earnings beat and upbeat guidance",
		"{ticker} rallies as quarterly results top expectations",
	}},
	{"earnings_miss", "negative", -0.060, -0.015, 1.5, []string{
		"{ticker} slides after earnings miss; guidance disappoints",
		"{ticker} drops as margins compress and outlook weakens",
	}},
	{"upgrade", "positive", 0.008, 0.030, 1.2, []string{
		"Analyst upgrades {ticker}; shares climb on valuation call",
		"{ticker} rises after major broker issues upgrade",
	}},
	{"downgrade", "negative", -0.030, -0.008, 1.25, []string{
		"Analyst downgrades {ticker} citing slowing growth",
		"{ticker} falls after downgrade and target cut",
	}},
	{"product_launch", "positive", 0.005, 0.025, 1.15, []string{
		"{ticker} jumps on new product launch buzz",
		"{ticker} gains as investors react to product announcement",
	}},
	{"lawsuit", "negative", -0.035, -0.010, 1.35, []string{
		"{ticker} pressured after lawsuit headlines emerge",
		"{ticker} dips as legal risks move to the foreground",
	}},
	{"regulatory_risk", "negative", -0.040, -0.010, 1.40, []string{
		"{ticker} hit by regulatory concerns and policy uncertainty",
		"{ticker} weakens amid new regulatory scrutiny",
	}},
	{"macro_tailwind", "positive", 0.003, 0.012, 1.10, []string{
		"Macro data boosts risk appetite; {ticker} benefits",
		"Risk-on session lifts {ticker} alongside broader market",
	}},
	{"macro_headwind", "negative", -0.012, -0.003, 1.10, []string{
		"Macro worries weigh on stocks; {ticker} under pressure",
		"{ticker} slips as investors turn cautious on growth",
	}},
	{"meme_spike", "positive", 0.020, 0.120, 1.8, []string{
		"{ticker} spikes as social chatter surges",
		"{ticker} rockets amid retail-driven momentum",
	}},
	{"meme_crash", "negative", -0.120, -0.020, 2.0, []string{
		"{ticker} tumbles as meme momentum reverses",
		"{ticker} plunges as speculative interest evaporates",
	}},
}

// MacroHeadlines and MacroWeights define the once-per-day market headline.
var (
	MacroHeadlines = []string{
		"Inflation cools", "Inflation spikes", "Jobs surprise",
		"Rates repriced", "Geopolitical tension", "Soft landing talk",
	}
	MacroWeights = []float64{0.16, 0.14, 0.18, 0.20, 0.16, 0.16}
)

const fallbackHeadline = "{ticker} moves on fresh headlines"

// events that become more likely during a crisis
var crisisBoosted = map[string]bool{
	"macro_headwind":  true,
	"regulatory_risk": true,
	"lawsuit":         true,
	"earnings_miss":   true,
}

// NewsConfig holds the news arrival rates.
type NewsConfig struct {
	ProbPerDay      float64 `json:"news_prob_per_day" toml:"news_prob_per_day" yaml:"news_prob_per_day"`
	CrisisMult      float64 `json:"news_prob_crisis_mult" toml:"news_prob_crisis_mult" yaml:"news_prob_crisis_mult"`
	SpeculativeMult float64 `json:"news_prob_spec_mult" toml:"news_prob_spec_mult" yaml:"news_prob_spec_mult"`
	MacroProb       float64 `json:"macro_news_prob" toml:"macro_news_prob" yaml:"macro_news_prob"`
}

// DefaultNewsConfig returns the classroom news rates.
func DefaultNewsConfig() NewsConfig {
	return NewsConfig{
		ProbPerDay:      0.012,
		CrisisMult:      2.2,
		SpeculativeMult: 1.8,
		MacroProb:       0.18,
	}
}

// newsShock is a fired ticker-level event.
type newsShock struct {
	Event    EventType
	Return   float64
	Headline string
}

// NewsGenerator decides per ticker and step whether a news event fires.
type NewsGenerator struct {
	cfg    NewsConfig
	events []EventType
}

func NewNewsGenerator(cfg NewsConfig) *NewsGenerator {
	return &NewsGenerator{cfg: cfg, events: EventCatalog}
}

// Probability converts the per-day rate to a per-bar rate and applies the
// crisis and Speculative multipliers.
func (g *NewsGenerator) Probability(regime model.Regime, sector model.Sector, barsPerDay int) float64 {
	p := 1 - math.Pow(1-g.cfg.ProbPerDay, 1/float64(barsPerDay))
	if regime == model.RegimeCrisis {
		p *= g.cfg.CrisisMult
	}
	if sector == model.SectorSpeculative {
		p *= g.cfg.SpeculativeMult
	}
	return p
}

// Weights returns the catalog selection weights for the given context.
func (g *NewsGenerator) Weights(regime model.Regime, sector model.Sector) []float64 {
	w := make([]float64, len(g.events))
	for i, ev := range g.events {
		w[i] = 1
		if sector == model.SectorSpeculative && strings.Contains(ev.Name, "meme") {
			w[i] *= 2.2
		}
		if sector == model.SectorEnergy && strings.HasPrefix(ev.Name, "macro_") {
			w[i] *= 1.6
		}
		if regime == model.RegimeCrisis && crisisBoosted[ev.Name] {
			w[i] *= 1.5
		}
	}
	return w
}

// draw runs the news trial for one ticker. The trial uniform is always
// consumed; the event choice, jump and headline are drawn only when it fires.
func (g *NewsGenerator) draw(rng *generator, ticker string, regime model.Regime, sector model.Sector, barsPerDay int, shockScale float64) (newsShock, bool) {
	if rng.Float64() >= g.Probability(regime, sector, barsPerDay) {
		return newsShock{}, false
	}
	ev := g.events[rng.categorical(g.Weights(regime, sector))]
	shock := rng.uniform(ev.JumpLow, ev.JumpHigh) * shockScale
	return newsShock{Event: ev, Return: shock, Headline: headline(rng, ev, ticker)}, true
}

// macro draws the day's macro headline, or "" when none fires.
func (g *NewsGenerator) macro(rng *generator) string {
	if rng.Float64() >= g.cfg.MacroProb {
		return ""
	}
	return MacroHeadlines[rng.categorical(MacroWeights)]
}

func headline(rng *generator, ev EventType, ticker string) string {
	templates := ev.Headlines
	if len(templates) == 0 {
		templates = []string{fallbackHeadline}
	}
	return strings.ReplaceAll(templates[rng.IntN(len(templates))], "{ticker}", ticker)
}
