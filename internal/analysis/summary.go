package analysis

import (
	"math"
	"sort"

	"wf-backtest/internal/backtest"
)

// WindowMetrics is the backtest outcome of one walk-forward window.
type WindowMetrics struct {
	Window  int              `json:"window"`
	Metrics backtest.Metrics `json:"metrics"`
}

// Summary aggregates completed windows. Medians are taken over windows that
// traded; windows without trades only count towards Windows.
type Summary struct {
	Windows           int `json:"windows"`
	WindowsWithTrades int `json:"windows_with_trades"`
	Trades            int `json:"trades"`

	MedianWinRate      float64 `json:"median_win_rate"`
	MedianProfitFactor float64 `json:"median_profit_factor"`
	// InfiniteProfitFactorWindows counts windows without losing trades. They are
	// left out of MedianProfitFactor.
	InfiniteProfitFactorWindows int     `json:"infinite_profit_factor_windows"`
	MedianTotalReturn           float64 `json:"median_total_return_equity"`
	MedianMaxDrawdown           float64 `json:"median_max_drawdown"`
}

// Summarize folds per-window metrics into a Summary. It never yields NaN.
func Summarize(results []WindowMetrics) Summary {
	s := Summary{Windows: len(results)}
	var wr, pf, ret, dd []float64
	for _, r := range results {
		m := r.Metrics
		s.Trades += m.Trades
		if m.Empty() {
			continue
		}
		s.WindowsWithTrades++
		wr = append(wr, m.WinRate)
		ret = append(ret, m.TotalReturn)
		dd = append(dd, m.MaxDrawdown)
		if math.IsInf(m.ProfitFactor, 1) {
			s.InfiniteProfitFactorWindows++
		} else {
			pf = append(pf, m.ProfitFactor)
		}
	}
	s.MedianWinRate = median(wr)
	s.MedianProfitFactor = median(pf)
	s.MedianTotalReturn = median(ret)
	s.MedianMaxDrawdown = median(dd)
	return s
}

// median of xs, 0 when empty. xs is reordered.
func median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	sort.Float64s(xs)
	if n%2 == 1 {
		return xs[n/2]
	}
	return (xs[n/2-1] + xs[n/2]) / 2
}
