package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wf-backtest/internal/config"
	"wf-backtest/internal/data"
	"wf-backtest/internal/label"
	"wf-backtest/internal/logger"
	"wf-backtest/internal/model"
	"wf-backtest/internal/pipeline"
	"wf-backtest/internal/predict"
	"wf-backtest/internal/report"
	"wf-backtest/internal/split"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(os.Args[2:])
	case "windows":
		err = cmdWindows(os.Args[2:])
	case "label":
		err = cmdLabel(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "interrupted")
		os.Exit(130)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage:")
	fmt.Println("  cli run --config configs/config.yaml [--data bars.csv] [--out outputs] [--workers 4] [--trainer centroid]")
	fmt.Println("  cli windows --config configs/config.yaml [--data bars.csv]")
	fmt.Println("  cli label --config configs/config.yaml [--data bars.csv]")
	fmt.Println("")
	fmt.Println("notes:")
	fmt.Println("  - run writes metrics_w{k}.json, trades_w{k}.csv, metrics_windows.json and summary.json")
	fmt.Println("  - windows prints the exact window count, the calendar estimate and per-window sizes")
	fmt.Println("  - Ctrl-C stops a run; completed windows are still written")
}

// loadConfig reads --config when given and applies --data over it.
func loadConfig(cfgPath, dataPath string) (*config.Config, error) {
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		if cfg, err = config.LoadUnchecked(cfgPath); err != nil {
			return nil, err
		}
	}
	if dataPath != "" {
		cfg.Data.Path = dataPath
	}
	if cfg.Data.Path == "" {
		return nil, errors.New("no data file: set data.path in the config or pass --data")
	}
	return cfg, nil
}

func loadSeries(cfg *config.Config) (*model.Series, error) {
	s, err := data.Load(cfg.Data.Path)
	if err != nil {
		return nil, err
	}
	if cfg.Data.Symbol != "" {
		s.Symbol = cfg.Data.Symbol
	}
	return s, nil
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config")
	dataPath := fs.String("data", "", "Bar file (.csv or .json); overrides data.path")
	outDir := fs.String("out", "", "Output directory; overrides run.out_dir")
	workers := fs.Int("workers", -1, "Concurrent windows; overrides run.workers (0 = all CPUs)")
	trainerName := fs.String("trainer", "", "Trainer name; overrides train.trainer")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*cfgPath, *dataPath)
	if err != nil {
		return err
	}
	if *outDir != "" {
		cfg.Run.OutDir = *outDir
	}
	if *workers >= 0 {
		cfg.Run.Workers = *workers
	}
	if *trainerName != "" {
		cfg.Train.Trainer = *trainerName
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.Init(cfg.Log.Options())
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	trainer, err := predict.DefaultRegistry().Lookup(cfg.Train.Trainer)
	if err != nil {
		return err
	}
	series, err := loadSeries(cfg)
	if err != nil {
		return err
	}
	pcfg, err := cfg.Pipeline()
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	sinks, err := openSinks(ctx, cfg, runID, series.Symbol)
	if err != nil {
		return err
	}
	defer sinks.Close()

	log.Info("starting run",
		zap.String("run", runID),
		zap.String("data", cfg.Data.Path),
		zap.Int("bars", series.Len()),
		zap.String("trainer", trainer.Name()),
		zap.String("out", cfg.Run.OutDir))

	// sinks outlive an interrupt so completed windows are still persisted
	writeCtx := context.WithoutCancel(ctx)
	runner := pipeline.New(pcfg, trainer, log.Named("pipeline"))
	runner.OnWindow = func(w pipeline.WindowResult) error {
		return sinks.WriteWindow(writeCtx, w)
	}
	res, runErr := runner.Run(ctx, series)
	if res != nil {
		if err := sinks.WriteRun(writeCtx, res); err != nil {
			return err
		}
		printSummary(res)
	}
	return runErr
}

func openSinks(ctx context.Context, cfg *config.Config, runID, symbol string) (report.Multi, error) {
	w, err := report.NewWriter(cfg.Run.OutDir)
	if err != nil {
		return nil, err
	}
	sinks := report.Multi{w}
	if cfg.Storage.URL != "" {
		influx, err := report.NewInfluxSink(ctx, cfg.Storage.Influx(), runID, symbol)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, influx)
	}
	return sinks, nil
}

func printSummary(res *pipeline.RunResult) {
	s := res.Summary
	fmt.Printf("Windows: generated=%d completed=%d skipped=%d with_trades=%d\n",
		res.Generated, s.Windows, len(res.Skipped), s.WindowsWithTrades)
	if res.Generated == 0 {
		fmt.Println("Series too short for a single window")
		return
	}
	fmt.Printf("Trades: %d\n", s.Trades)
	fmt.Printf("Median win rate=%.4f profit factor=%.4f (+%d windows without losses) total return=%.4f max drawdown=%.4f\n",
		s.MedianWinRate, s.MedianProfitFactor, s.InfiniteProfitFactorWindows, s.MedianTotalReturn, s.MedianMaxDrawdown)
}

func cmdWindows(args []string) error {
	fs := flag.NewFlagSet("windows", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config")
	dataPath := fs.String("data", "", "Bar file (.csv or .json); overrides data.path")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*cfgPath, *dataPath)
	if err != nil {
		return err
	}
	sp, err := cfg.Splitter()
	if err != nil {
		return err
	}
	if err := sp.Validate(); err != nil {
		return err
	}
	series, err := loadSeries(cfg)
	if err != nil {
		return err
	}
	times := series.Times()
	if err := split.Check(times); err != nil {
		return err
	}

	days := series.End().Sub(series.Start()).Hours() / 24
	fmt.Printf("Split: train=%d valid=%d test=%d step=%d months\n",
		sp.TrainMonths, sp.ValidMonths, sp.TestMonths, sp.StepMonths)
	fmt.Printf("Data: %d bars from %s to %s (%.0f days, %.1f months)\n",
		series.Len(), series.Start().Format("2006-01-02"), series.End().Format("2006-01-02"), days, days/30.44)

	windows := sp.Collect(times)
	fmt.Printf("Windows: %d (estimate %d)\n", len(windows), sp.EstimateCount(series.Start(), series.End()))
	if len(windows) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "window\ttrain_start\tvalid_start\ttest_start\ttest_end\ttrain\tvalid\ttest\tusable")
	for _, w := range windows {
		usable := "yes"
		n := cfg.Train.SeqLen
		if w.Train.Len() < n || w.Valid.Len() < n || w.Test.Len() < n {
			usable = "no"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n", w.Index,
			w.TrainStart.Format("2006-01-02"), w.ValidStart.Format("2006-01-02"),
			w.TestStart.Format("2006-01-02"), w.TestEnd.Format("2006-01-02"),
			w.Train.Len(), w.Valid.Len(), w.Test.Len(), usable)
	}
	return tw.Flush()
}

func cmdLabel(args []string) error {
	fs := flag.NewFlagSet("label", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML config")
	dataPath := fs.String("data", "", "Bar file (.csv or .json); overrides data.path")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*cfgPath, *dataPath)
	if err != nil {
		return err
	}
	series, err := loadSeries(cfg)
	if err != nil {
		return err
	}
	p := cfg.Label.Params()
	targets, err := label.Label(series.Closes(), p)
	if err != nil {
		return err
	}

	counts := label.Counts(targets)
	defined := label.Defined(targets)
	fmt.Printf("Bars: %d  labelled: %d  undefined tail: %d\n", len(targets), defined, len(targets)-defined)
	fmt.Printf("max_holding=%d min_move_bps=%d\n", p.MaxHolding, p.MinMoveBps)
	for _, c := range []label.Class{label.Down, label.Flat, label.Up} {
		n := counts[c.Index()]
		share := 0.0
		if defined > 0 {
			share = float64(n) / float64(defined)
		}
		fmt.Printf("  %-5s %8d  %6.2f%%\n", c, n, 100*share)
	}
	return nil
}
