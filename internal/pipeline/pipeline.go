package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wf-backtest/internal/analysis"
	"wf-backtest/internal/backtest"
	"wf-backtest/internal/data"
	"wf-backtest/internal/features"
	"wf-backtest/internal/label"
	"wf-backtest/internal/logger"
	"wf-backtest/internal/model"
	"wf-backtest/internal/predict"
	"wf-backtest/internal/split"
)

// Config bundles the per-stage parameters of a walk-forward run.
type Config struct {
	Features  features.Config
	Splitter  split.Splitter
	Label     label.Params
	Trade     backtest.Params
	SeqLen    int
	ATRPeriod int // used only when the series carries no ATR
	Workers   int // <= 0 means GOMAXPROCS
}

func (c Config) Validate() error {
	if err := c.Features.Validate(); err != nil {
		return fmt.Errorf("feature: %w", err)
	}
	if err := c.Splitter.Validate(); err != nil {
		return fmt.Errorf("split: %w", err)
	}
	if err := c.Label.Validate(); err != nil {
		return fmt.Errorf("label: %w", err)
	}
	if err := c.Trade.Validate(); err != nil {
		return fmt.Errorf("trade: %w", err)
	}
	if c.SeqLen <= 0 {
		return errors.New("seq_len must be > 0")
	}
	return nil
}

// Sizes are the bar counts of a window's splits.
type Sizes struct {
	Train int `json:"train"`
	Valid int `json:"valid"`
	Test  int `json:"test"`
}

func sizesOf(w split.Window) Sizes {
	return Sizes{Train: w.Train.Len(), Valid: w.Valid.Len(), Test: w.Test.Len()}
}

// Skip records a window that was generated but not evaluated.
type Skip struct {
	Window int    `json:"window"`
	Reason string `json:"reason"`
	Sizes  Sizes  `json:"sizes"`
}

// WindowResult is a fully evaluated window. Trade indices refer to bars of the
// warm-up trimmed series.
type WindowResult struct {
	Window       split.Window     `json:"window"`
	Sizes        Sizes            `json:"sizes"`
	TrainSamples int              `json:"train_samples"`
	ValidSamples int              `json:"valid_samples"`
	Trades       []backtest.Trade `json:"-"`
	Metrics      backtest.Metrics `json:"metrics"`
}

// RunResult holds completed windows in window order. Generated is the number of
// windows the splitter produced, so zero means the series was too short for even
// one window while len(Skipped) == Generated means every window was skipped.
type RunResult struct {
	Windows   []WindowResult   `json:"windows"`
	Skipped   []Skip           `json:"skipped"`
	Generated int              `json:"generated"`
	Summary   analysis.Summary `json:"summary"`
}

// WindowMetrics projects the completed windows for aggregation and ranking.
func (r *RunResult) WindowMetrics() []analysis.WindowMetrics {
	out := make([]analysis.WindowMetrics, len(r.Windows))
	for i, w := range r.Windows {
		out[i] = analysis.WindowMetrics{Window: w.Window.Index, Metrics: w.Metrics}
	}
	return out
}

// Runner evaluates a series window by window.
type Runner struct {
	Config  Config
	Trainer predict.Trainer
	Engine  *backtest.Engine
	Logger  *zap.Logger

	// OnWindow, when set, receives each completed window. Calls are serialised but
	// arrive in completion order. An error aborts the run.
	OnWindow func(WindowResult) error
}

func New(cfg Config, trainer predict.Trainer, log *zap.Logger) *Runner {
	return &Runner{Config: cfg, Trainer: trainer, Engine: backtest.New(), Logger: log}
}

// prepared is the shared, read-only state every window reads from.
type prepared struct {
	series  *model.Series
	rows    [][]float64
	targets []label.Target
}

// Run executes the walk-forward evaluation. On cancellation it stops launching
// windows and returns the windows completed so far together with the context error.
func (r *Runner) Run(ctx context.Context, s *model.Series) (*RunResult, error) {
	if err := r.Config.Validate(); err != nil {
		return nil, err
	}
	if r.Trainer == nil {
		return nil, errors.New("no trainer configured")
	}
	log := logger.OrNop(r.Logger)
	engine := r.Engine
	if engine == nil {
		engine = backtest.New()
	}

	p, err := r.prepare(s)
	if err != nil {
		return nil, err
	}
	times := p.series.Times()
	if err := split.Check(times); err != nil {
		return nil, err
	}

	workers := r.Config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var (
		mu   sync.Mutex
		done = make(map[int]*WindowResult)
	)
	res := &RunResult{}
	for w := range r.Config.Splitter.Windows(times) {
		res.Generated++
		sz := sizesOf(w)
		if reason := r.skipReason(sz); reason != "" {
			mu.Lock()
			res.Skipped = append(res.Skipped, Skip{Window: w.Index, Reason: reason, Sizes: sz})
			mu.Unlock()
			log.Warn("skipping window", zap.Int("window", w.Index), zap.String("reason", reason),
				zap.Int("train", sz.Train), zap.Int("valid", sz.Valid), zap.Int("test", sz.Test))
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			wr, err := r.runWindow(gctx, engine, p, w)
			if errors.Is(err, predict.ErrNoSamples) {
				mu.Lock()
				res.Skipped = append(res.Skipped, Skip{Window: w.Index, Reason: err.Error(), Sizes: sz})
				mu.Unlock()
				log.Warn("skipping window", zap.Int("window", w.Index), zap.Error(err))
				return nil
			}
			if err != nil {
				return fmt.Errorf("window %d: %w", w.Index, err)
			}
			mu.Lock()
			defer mu.Unlock()
			if r.OnWindow != nil {
				if err := r.OnWindow(*wr); err != nil {
					return fmt.Errorf("window %d: %w", w.Index, err)
				}
			}
			done[w.Index] = wr
			log.Info("window complete",
				zap.Int("window", w.Index),
				zap.Int("train", wr.Sizes.Train),
				zap.Int("valid", wr.Sizes.Valid),
				zap.Int("test", wr.Sizes.Test),
				zap.Int("trades", wr.Metrics.Trades),
				zap.Float64("total_return", wr.Metrics.TotalReturn))
			return nil
		})
	}
	werr := g.Wait()

	keys := make([]int, 0, len(done))
	for k := range done {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		res.Windows = append(res.Windows, *done[k])
	}
	sort.Slice(res.Skipped, func(i, j int) bool { return res.Skipped[i].Window < res.Skipped[j].Window })
	res.Summary = analysis.Summarize(res.WindowMetrics())

	if err := ctx.Err(); err != nil {
		log.Warn("run cancelled", zap.Int("completed", len(res.Windows)), zap.Error(err))
		return res, err
	}
	if werr != nil {
		return res, werr
	}
	log.Info("run complete",
		zap.Int("generated", res.Generated),
		zap.Int("completed", len(res.Windows)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("trades", res.Summary.Trades))
	return res, nil
}

func (r *Runner) prepare(s *model.Series) (*prepared, error) {
	if s == nil {
		return nil, model.ErrEmptySeries
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if !s.HasATR {
		period := r.Config.ATRPeriod
		if period <= 0 {
			period = 14
		}
		var err error
		if s, err = data.EnsureATR(s, period); err != nil {
			return nil, fmt.Errorf("atr: %w", err)
		}
	}
	m, err := features.Build(s, r.Config.Features)
	if err != nil {
		return nil, fmt.Errorf("features: %w", err)
	}
	fm, ts := features.Trim(m, s)
	targets, err := label.Label(ts.Closes(), r.Config.Label)
	if err != nil {
		return nil, fmt.Errorf("label: %w", err)
	}
	return &prepared{series: ts, rows: fm.Rows, targets: targets}, nil
}

func (r *Runner) skipReason(sz Sizes) string {
	n := r.Config.SeqLen
	switch {
	case sz.Train < n:
		return fmt.Sprintf("train has %d bars, need %d", sz.Train, n)
	case sz.Valid < n:
		return fmt.Sprintf("valid has %d bars, need %d", sz.Valid, n)
	case sz.Test < n:
		return fmt.Sprintf("test has %d bars, need %d", sz.Test, n)
	}
	return ""
}

func (r *Runner) runWindow(ctx context.Context, engine *backtest.Engine, p *prepared, w split.Window) (*WindowResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seqLen := r.Config.SeqLen
	horizon := r.Config.Label.MaxHolding

	trainRows := p.rows[w.Train.Start:w.Train.End]
	sc, err := features.Fit(trainRows)
	if err != nil {
		return nil, fmt.Errorf("scaler: %w", err)
	}
	train := &predict.Dataset{
		Rows:    sc.Transform(trainRows),
		Targets: purge(p.targets[w.Train.Start:w.Train.End], horizon),
		SeqLen:  seqLen,
	}
	valid := &predict.Dataset{
		Rows:    sc.Transform(p.rows[w.Valid.Start:w.Valid.End]),
		Targets: purge(p.targets[w.Valid.Start:w.Valid.End], horizon),
		SeqLen:  seqLen,
	}
	test := &predict.Dataset{
		Rows:   sc.Transform(p.rows[w.Test.Start:w.Test.End]),
		SeqLen: seqLen,
	}

	pred, err := r.Trainer.Fit(ctx, train, valid)
	if err != nil {
		return nil, fmt.Errorf("fit %s: %w", r.Trainer.Name(), err)
	}
	proba, err := pred.Predict(ctx, test.Sequences())
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	if len(proba) != test.Len() {
		return nil, fmt.Errorf("predictor returned %d rows for %d sequences: %w", len(proba), test.Len(), backtest.ErrLengthMismatch)
	}

	// the first prediction belongs to the last row of the first full sequence
	off := w.Test.Start + seqLen - 1
	aligned := p.series.Slice(off, w.Test.End)
	out, err := engine.Run(backtest.Inputs{
		Times:  aligned.Times(),
		Closes: aligned.Closes(),
		ATR:    aligned.ATRs(),
		Proba:  proba,
	}, r.Config.Trade)
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}
	for i := range out.Trades {
		out.Trades[i].EntryIndex += off
		out.Trades[i].ExitIndex += off
	}
	return &WindowResult{
		Window:       w,
		Sizes:        sizesOf(w),
		TrainSamples: len(train.Samples()),
		ValidSamples: len(valid.Samples()),
		Trades:       out.Trades,
		Metrics:      out.Metrics,
	}, nil
}

// purge copies targets and clears the last horizon labels, whose forward window
// reaches past the end of the split.
func purge(targets []label.Target, horizon int) []label.Target {
	out := make([]label.Target, len(targets))
	copy(out, targets)
	for i := max(0, len(out)-horizon); i < len(out); i++ {
		out[i] = label.Target{}
	}
	return out
}
