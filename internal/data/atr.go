package data

import (
	"errors"

	"github.com/markcheno/go-talib"

	"wf-backtest/internal/model"
)

// EnsureATR fills the ATR column with Wilder's ATR over period when the source had
// none. Leading bars without a positive ATR (the warm-up) are dropped; a later
// zero ATR fails validation.
// A series that already carries ATR is returned unchanged.
func EnsureATR(s *model.Series, period int) (*model.Series, error) {
	if s.HasATR {
		return s, nil
	}
	if period <= 0 {
		return nil, errors.New("atr period must be > 0")
	}
	if s.Len() <= period {
		return nil, errors.New("series shorter than atr period")
	}
	n := s.Len()
	high, low, closes := make([]float64, n), make([]float64, n), make([]float64, n)
	for i, b := range s.Bars {
		high[i], low[i], closes[i] = b.High, b.Low, b.Close
	}
	atr := talib.Atr(high, low, closes, period)

	first := period
	for first < n && atr[first] <= 0 {
		first++
	}
	out := &model.Series{Symbol: s.Symbol, HasATR: true, Bars: make([]model.Bar, 0, n-first)}
	for i := first; i < n; i++ {
		b := s.Bars[i]
		b.ATR = atr[i]
		out.Bars = append(out.Bars, b)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
