package data

import (
	"math"
	"math/rand"
	"time"

	"wf-backtest/internal/model"
)

// SyntheticParams shapes a generated random walk.
type SyntheticParams struct {
	Seed     int64
	Start    time.Time
	Bars     int
	Interval time.Duration
	Price    float64 // first open
	Vol      float64 // per-bar log-return standard deviation
	Drift    float64 // per-bar log-return mean
}

// Synthetic generates a reproducible OHLCV random walk without ATR. The same
// params always give the same series.
func Synthetic(p SyntheticParams) *model.Series {
	if p.Interval <= 0 {
		p.Interval = 5 * time.Minute
	}
	if p.Price <= 0 {
		p.Price = 100
	}
	if p.Vol <= 0 {
		p.Vol = 0.002
	}
	rng := rand.New(rand.NewSource(p.Seed))
	s := &model.Series{Symbol: "SYNTH", Bars: make([]model.Bar, p.Bars)}
	open := p.Price
	for i := range s.Bars {
		ret := p.Drift + p.Vol*rng.NormFloat64()
		cl := open * math.Exp(ret)
		wick := open * p.Vol * math.Abs(rng.NormFloat64()) * 0.5
		s.Bars[i] = model.Bar{
			Time:   p.Start.Add(time.Duration(i) * p.Interval),
			Open:   open,
			High:   math.Max(open, cl) + wick,
			Low:    math.Min(open, cl) - wick,
			Close:  cl,
			Volume: 1 + 100*rng.Float64(),
		}
		open = cl
	}
	return s
}
