package report

import (
	"context"
	"fmt"
	"math"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"wf-backtest/internal/backtest"
	"wf-backtest/internal/pipeline"
)

// InfluxConfig addresses an InfluxDB 2 bucket.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// InfluxSink writes window metrics and the run summary as points.
type InfluxSink struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	run    string
	symbol string
}

// NewInfluxSink connects and checks server health before returning.
func NewInfluxSink(ctx context.Context, cfg InfluxConfig, run, symbol string) (*InfluxSink, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb health: %w", err)
	}
	if health == nil || health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("influxdb not ready: %+v", health)
	}
	return &InfluxSink{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		run:    run,
		symbol: symbol,
	}, nil
}

func (s *InfluxSink) WriteWindow(ctx context.Context, w pipeline.WindowResult) error {
	return s.write.WritePoint(ctx, WindowPoint(s.run, s.symbol, w))
}

func (s *InfluxSink) WriteRun(ctx context.Context, res *pipeline.RunResult) error {
	if len(res.Windows) == 0 {
		return nil
	}
	last := res.Windows[len(res.Windows)-1].Window.TestEnd
	sum := res.Summary
	p := influxdb2.NewPoint(
		"run_summary",
		map[string]string{"run": s.run, "symbol": s.symbol},
		map[string]interface{}{
			"windows":                        sum.Windows,
			"windows_with_trades":            sum.WindowsWithTrades,
			"trades":                         sum.Trades,
			"skipped":                        len(res.Skipped),
			"median_win_rate":                sum.MedianWinRate,
			"median_profit_factor":           sum.MedianProfitFactor,
			"infinite_profit_factor_windows": sum.InfiniteProfitFactorWindows,
			"median_total_return":            sum.MedianTotalReturn,
			"median_max_drawdown":            sum.MedianMaxDrawdown,
		},
		last,
	)
	return s.write.WritePoint(ctx, p)
}

func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

// WindowPoint is the window_metrics point for one window, stamped at the start of
// its test split. Line protocol has no infinity, so an unbounded profit factor is
// written as backtest.ProfitFactorCap.
func WindowPoint(run, symbol string, w pipeline.WindowResult) *write.Point {
	m := w.Metrics
	pf := m.ProfitFactor
	if math.IsInf(pf, 1) {
		pf = backtest.ProfitFactorCap
	}
	return influxdb2.NewPoint(
		"window_metrics",
		map[string]string{
			"run":    run,
			"symbol": symbol,
			"window": strconv.Itoa(w.Window.Index),
		},
		map[string]interface{}{
			"trades":        m.Trades,
			"win_rate":      m.WinRate,
			"profit_factor": pf,
			"rr":            m.RewardRisk,
			"total_return":  m.TotalReturn,
			"max_drawdown":  m.MaxDrawdown,
			"train_bars":    w.Sizes.Train,
			"valid_bars":    w.Sizes.Valid,
			"test_bars":     w.Sizes.Test,
		},
		w.Window.TestStart,
	)
}
