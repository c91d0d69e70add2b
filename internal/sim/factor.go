package sim

import (
	"math"
	"time"

	"github.com/atmx/classroom-exchange/internal/model"
)

// Mode fixes the time granularity of the generator. Daily and Intraday share
// one return model; only these parameters differ.
type Mode struct {
	Name string

	// BarHours holds the wall-clock hour of each bar; its length is the
	// number of bars per trading day.
	BarHours []int

	ClipBound  float64
	ShockScale float64

	// OvernightGap draws a gap between the previous close and the open.
	OvernightGap bool

	VolumeBumpCap   float64
	NewsVolumeMult  float64
	VolumeNoiseLow  float64
	VolumeNoiseHigh float64
}

var (
	// Daily produces one bar per business day with an overnight gap.
	Daily = Mode{
		Name:            "daily",
		BarHours:        []int{16},
		ClipBound:       0.35,
		ShockScale:      1.0,
		OvernightGap:    true,
		VolumeBumpCap:   0.08,
		NewsVolumeMult:  1.4,
		VolumeNoiseLow:  0.75,
		VolumeNoiseHigh: 1.25,
	}
	// Intraday produces seven hourly bars, 10:00 through 16:00.
	Intraday = Mode{
		Name:            "intraday",
		BarHours:        []int{10, 11, 12, 13, 14, 15, 16},
		ClipBound:       0.20,
		ShockScale:      0.5,
		VolumeBumpCap:   0.06,
		NewsVolumeMult:  1.3,
		VolumeNoiseLow:  0.85,
		VolumeNoiseHigh: 1.15,
	}
)

// ModeByName resolves "daily" or "intraday".
func ModeByName(name string) (Mode, bool) {
	switch name {
	case Daily.Name:
		return Daily, true
	case Intraday.Name:
		return Intraday, true
	}
	return Mode{}, false
}

func (m Mode) BarsPerDay() int { return len(m.BarHours) }

// Timestamp is the wall-clock time of bar barIndex on date.
func (m Mode) Timestamp(date time.Time, barIndex int) time.Time {
	return civil(date).Add(time.Duration(m.BarHours[barIndex]) * time.Hour)
}

// stepContext carries the market-wide draws shared by every ticker in one
// step.
type stepContext struct {
	timestamp     time.Time
	date          string
	barIndex      int
	regime        model.Regime
	macroHeadline string
	marketReturn  float64
	sectorReturns []float64
}

// synthesize draws the idiosyncratic return, the overnight gap, the intrabar
// range and the volume for one ticker, in that order, and returns the bar
// together with the unrounded next close.
func (e *Engine) synthesize(rng *generator, sc *stepContext, ticker string, p TickerParams, prevClose float64, shock newsShock, fired bool) (model.Bar, float64) {
	bpdSqrt := math.Sqrt(float64(e.mode.BarsPerDay()))
	volMult := 1.0
	if fired {
		volMult = shock.Event.VolMult
	}
	rSector := sc.sectorReturns[p.Sector.Index()]

	rIdio := rng.normal(0, p.IdioSigma*volMult/bpdSqrt)
	total := p.MarketBeta*sc.marketReturn + p.SectorBeta*rSector + rIdio + shock.Return
	total = clip(total, -e.mode.ClipBound, e.mode.ClipBound)

	openPx := prevClose
	if e.mode.OvernightGap {
		openPx = prevClose * (1 + rng.normal(0, p.IdioSigma*e.cfg.OvernightSigmaMult))
	}
	closePx := openPx * (1 + total)

	intrabar := (math.Abs(total) + p.IdioSigma/bpdSqrt) * e.cfg.RangeMult
	hiSpread := math.Abs(rng.normal(0, intrabar))
	loSpread := math.Abs(rng.normal(0, intrabar))
	high := math.Max(openPx, closePx) * (1 + hiSpread)
	low := math.Max(0, math.Min(openPx, closePx)*(1-loSpread))

	bump := 1 + 8*math.Min(e.mode.VolumeBumpCap, math.Abs(total))
	if fired {
		bump *= e.mode.NewsVolumeMult
	}
	noise := rng.uniform(e.mode.VolumeNoiseLow, e.mode.VolumeNoiseHigh)
	volume := int64(math.Max(MinVolume, float64(p.BaseVolume)*bump*noise/float64(e.mode.BarsPerDay())))

	bar := model.Bar{
		Timestamp:     sc.timestamp,
		Date:          sc.date,
		BarIndex:      sc.barIndex,
		Ticker:        ticker,
		Sector:        p.Sector,
		Regime:        sc.regime,
		MacroHeadline: sc.macroHeadline,
		Open:          round(openPx, 4),
		High:          round(high, 4),
		Low:           round(low, 4),
		Close:         round(closePx, 4),
		Volume:        volume,
		TotalReturn:   round(total, 6),
		MarketReturn:  round(sc.marketReturn, 6),
		SectorReturn:  round(rSector, 6),
		ShockReturn:   round(shock.Return, 6),
		HasNews:       fired,
	}
	return bar, math.Max(MinClose, closePx)
}
