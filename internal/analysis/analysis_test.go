package analysis_test

import (
	"math"
	"testing"

	"wf-backtest/internal/analysis"
	"wf-backtest/internal/backtest"
)

func wm(window int, trades int, winRate, pf, ret, dd float64) analysis.WindowMetrics {
	return analysis.WindowMetrics{Window: window, Metrics: backtest.Metrics{
		Trades: trades, WinRate: winRate, ProfitFactor: pf, TotalReturn: ret, MaxDrawdown: dd,
	}}
}

func TestSummarize(t *testing.T) {
	s := analysis.Summarize([]analysis.WindowMetrics{
		wm(0, 4, 0.5, 1.5, 0.02, -0.01),
		wm(1, 0, 0, 0, 0, 0),
		wm(2, 2, 1.0, math.Inf(1), 0.05, 0),
		wm(3, 6, 0.25, 0.5, -0.03, -0.04),
	})
	if s.Windows != 4 || s.WindowsWithTrades != 3 || s.Trades != 12 {
		t.Fatalf("counts = %+v", s)
	}
	if s.InfiniteProfitFactorWindows != 1 {
		t.Fatalf("infinite windows = %d", s.InfiniteProfitFactorWindows)
	}
	tests := []struct {
		name      string
		got, want float64
	}{
		{"win rate", s.MedianWinRate, 0.5},
		{"profit factor", s.MedianProfitFactor, 1.0},
		{"total return", s.MedianTotalReturn, 0.02},
		{"drawdown", s.MedianMaxDrawdown, -0.01},
	}
	for _, tt := range tests {
		if math.Abs(tt.got-tt.want) > 1e-12 {
			t.Errorf("median %s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestSummarize_NeverNaN(t *testing.T) {
	for _, in := range [][]analysis.WindowMetrics{
		nil,
		{wm(0, 0, 0, 0, 0, 0)},
		{wm(0, 1, 1, math.Inf(1), 0.01, 0)},
	} {
		s := analysis.Summarize(in)
		for _, v := range []float64{s.MedianWinRate, s.MedianProfitFactor, s.MedianTotalReturn, s.MedianMaxDrawdown} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("summary %+v contains a non-finite value", s)
			}
		}
	}
}

func TestRankWindows(t *testing.T) {
	ranked := analysis.RankWindows([]analysis.WindowMetrics{
		wm(0, 1, 1, 2, 0.01, 0),
		wm(1, 1, 1, 2, 0.05, 0),
		wm(2, 1, 0, 0, -0.02, -0.02),
		wm(3, 1, 1, 2, 0.01, 0),
	})
	want := []int{1, 0, 3, 2}
	for i, r := range ranked {
		if r.Window != want[i] || r.Rank != i+1 {
			t.Fatalf("rank %d = window %d (rank field %d), want window %d", i, r.Window, r.Rank, want[i])
		}
	}
}
