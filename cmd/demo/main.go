package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"wf-backtest/internal/config"
	"wf-backtest/internal/data"
	"wf-backtest/internal/logger"
	"wf-backtest/internal/pipeline"
	"wf-backtest/internal/predict"
	"wf-backtest/internal/report"
)

// Demo:
// - Generate a reproducible 5-minute random walk
// - Run the walk-forward pipeline with the centroid trainer
// - Print the first trades of the best window and the run summary
func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (optional)")
	months := flag.Int("months", 8, "Months of synthetic 5-minute bars")
	seed := flag.Int64("seed", 42, "Random walk seed")
	outDir := flag.String("out", "", "Optional directory for report files")
	verbose := flag.Bool("v", false, "Log window progress")
	flag.Parse()

	// Defaults sized for the synthetic series (can be overridden via --config).
	cfg := config.Default()
	cfg.Split.TrainMonths, cfg.Split.ValidMonths, cfg.Split.TestMonths, cfg.Split.StepMonths = 3, 1, 1, 1
	cfg.Train.SeqLen = 32
	cfg.Trade.ProbaThreshold = 0.4
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			panic(err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	level := "warn"
	if *verbose {
		level = "info"
	}
	log, err := logger.New(logger.Options{Level: level})
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := int(start.AddDate(0, *months, 0).Sub(start) / (5 * time.Minute))
	series := data.Synthetic(data.SyntheticParams{Seed: *seed, Start: start, Bars: bars})

	pcfg, err := cfg.Pipeline()
	if err != nil {
		panic(err)
	}
	trainer, err := predict.DefaultRegistry().Lookup(cfg.Train.Trainer)
	if err != nil {
		panic(err)
	}
	runner := pipeline.New(pcfg, trainer, log)

	var writer *report.Writer
	if *outDir != "" {
		if writer, err = report.NewWriter(*outDir); err != nil {
			panic(err)
		}
		runner.OnWindow = func(w pipeline.WindowResult) error {
			return writer.WriteWindow(context.Background(), w)
		}
	}

	res, err := runner.Run(context.Background(), series)
	if err != nil {
		panic(err)
	}
	if writer != nil {
		if err := writer.WriteRun(context.Background(), res); err != nil {
			panic(err)
		}
	}

	fmt.Printf("Generated %d bars from %s to %s (seed %d)\n",
		series.Len(), series.Start().Format("2006-01-02"), series.End().Format("2006-01-02"), *seed)
	fmt.Printf("Trainer=%s seq_len=%d threshold=%.2f\n", trainer.Name(), cfg.Train.SeqLen, cfg.Trade.ProbaThreshold)
	fmt.Printf("Windows: generated=%d completed=%d skipped=%d\n\n", res.Generated, len(res.Windows), len(res.Skipped))

	for _, w := range res.Windows {
		m := w.Metrics
		fmt.Printf("w%-2d test %s..%s  trades=%4d  win=%.3f  ret=%8.4f  dd=%8.4f\n",
			w.Window.Index, w.Window.TestStart.Format("2006-01-02"), w.Window.TestEnd.Format("2006-01-02"),
			m.Trades, m.WinRate, m.TotalReturn, m.MaxDrawdown)
	}

	if len(res.Windows) > 0 {
		best := res.Windows[0]
		for _, w := range res.Windows[1:] {
			if w.Metrics.TotalReturn > best.Metrics.TotalReturn {
				best = w
			}
		}
		fmt.Printf("\nFirst trades of window %d:\n", best.Window.Index)
		for i := 0; i < min(10, len(best.Trades)); i++ {
			t := best.Trades[i]
			fmt.Printf("  %s -> %s  %-5s  in=%9.3f  out=%9.3f  ret=%8.5f  %s\n",
				t.EntryTime.Format("2006-01-02 15:04"), t.ExitTime.Format("2006-01-02 15:04"),
				t.Side, t.EntryPrice, t.ExitPrice, t.Return, t.Reason)
		}
	}

	if writer != nil {
		fmt.Printf("\nWrote reports to %s\n", *outDir)
	}
	s := res.Summary
	fmt.Printf("\nDone. trades=%d median return=%.4f median win rate=%.3f\n", s.Trades, s.MedianTotalReturn, s.MedianWinRate)
}
