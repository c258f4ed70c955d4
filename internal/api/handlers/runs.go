package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"wf-backtest/internal/analysis"
	"wf-backtest/internal/api/models"
	"wf-backtest/internal/backtest"
	"wf-backtest/internal/config"
	"wf-backtest/internal/data"
	"wf-backtest/internal/logger"
	"wf-backtest/internal/pipeline"
	"wf-backtest/internal/predict"
	"wf-backtest/internal/report"
)

// RunHandlerOptions wires a RunHandler.
type RunHandlerOptions struct {
	Store    *RunStore
	Registry *predict.Registry
	Cache    *data.SeriesCache
	Base     *config.Config // defaults for every run
	DataDir  string         // data_path is resolved inside this directory
	OutDir   string         // reports go to OutDir/<id>; empty disables files
	Logger   *zap.Logger
}

// RunHandler starts and inspects asynchronous walk-forward runs.
type RunHandler struct {
	opts RunHandlerOptions
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunHandler creates a run handler. Runs are children of ctx: cancelling it
// cancels every run in flight.
func NewRunHandler(ctx context.Context, opts RunHandlerOptions) *RunHandler {
	if opts.Store == nil {
		opts.Store = NewRunStore(time.Hour)
	}
	if opts.Registry == nil {
		opts.Registry = predict.DefaultRegistry()
	}
	if opts.Base == nil {
		opts.Base = config.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &RunHandler{opts: opts, log: logger.OrNop(opts.Logger), ctx: ctx, cancel: cancel}
}

// Shutdown cancels runs in flight and waits for them to stop.
func (h *RunHandler) Shutdown() {
	h.cancel()
	h.wg.Wait()
}

// Wait blocks until every started run has finished.
func (h *RunHandler) Wait() { h.wg.Wait() }

// CreateRun handles POST /api/v1/runs
func (h *RunHandler) CreateRun(c *gin.Context) {
	var req models.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}

	path, err := h.resolve(req.DataPath)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_DATA_PATH", err)
		return
	}
	if _, err := os.Stat(path); err != nil {
		respondError(c, http.StatusNotFound, "DATA_NOT_FOUND", fmt.Errorf("data file %q not found", req.DataPath))
		return
	}

	cfg := h.opts.Base
	if req.Config != "" {
		if cfg, err = cfg.Overlay([]byte(req.Config)); err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_CONFIG", err)
			return
		}
	}
	if err := cfg.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_CONFIG", err)
		return
	}
	trainer, err := h.opts.Registry.Lookup(cfg.Train.Trainer)
	if err != nil {
		respondError(c, http.StatusBadRequest, "UNKNOWN_TRAINER", err)
		return
	}

	ctx, cancel := context.WithCancel(h.ctx)
	run := newRun(models.RunResponse{
		ID:        uuid.NewString(),
		Status:    models.RunPending,
		Trainer:   trainer.Name(),
		DataPath:  req.DataPath,
		CreatedAt: time.Now().UTC(),
	}, cancel)
	h.opts.Store.Add(run)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer cancel()
		h.execute(ctx, run, cfg, trainer, path)
	}()

	c.JSON(http.StatusAccepted, run.Snapshot())
}

func (h *RunHandler) execute(ctx context.Context, run *Run, cfg *config.Config, trainer predict.Trainer, path string) {
	id := run.Snapshot().ID
	log := h.log.With(zap.String("run", id))
	run.setStatus(models.RunRunning)

	res, err := h.walkForward(ctx, run, cfg, trainer, path, log)
	status := models.RunCompleted
	switch {
	case errors.Is(err, context.Canceled):
		status = models.RunCancelled
	case err != nil:
		status = models.RunFailed
		log.Error("run failed", zap.Error(err))
	}
	run.finish(status, res, err, time.Now().UTC())
}

func (h *RunHandler) walkForward(ctx context.Context, run *Run, cfg *config.Config, trainer predict.Trainer, path string, log *zap.Logger) (*pipeline.RunResult, error) {
	series, err := h.opts.Cache.Load(path, cfg.Feature.ATRPeriod)
	if err != nil {
		return nil, err
	}
	if cfg.Data.Symbol != "" {
		// the cached series is shared across runs; only the header is copied, Bars stay read-only
		cp := *series
		cp.Symbol = cfg.Data.Symbol
		series = &cp
	}
	pcfg, err := cfg.Pipeline()
	if err != nil {
		return nil, err
	}

	var writer *report.Writer
	if h.opts.OutDir != "" {
		if writer, err = report.NewWriter(filepath.Join(h.opts.OutDir, run.Snapshot().ID)); err != nil {
			return nil, err
		}
	}

	runner := pipeline.New(pcfg, trainer, log)
	runner.OnWindow = func(w pipeline.WindowResult) error {
		run.addWindow(w)
		if writer != nil {
			return writer.WriteWindow(ctx, w)
		}
		return nil
	}
	res, err := runner.Run(ctx, series)
	if res != nil && writer != nil {
		if werr := writer.WriteRun(context.WithoutCancel(ctx), res); werr != nil && err == nil {
			err = werr
		}
	}
	return res, err
}

// resolve maps a request path into DataDir, rejecting paths that leave it.
func (h *RunHandler) resolve(p string) (string, error) {
	if filepath.IsAbs(p) {
		return "", errors.New("data_path must be relative to the data directory")
	}
	clean := filepath.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.New("data_path must stay inside the data directory")
	}
	return filepath.Join(h.opts.DataDir, clean), nil
}

func (h *RunHandler) lookup(c *gin.Context) (*Run, bool) {
	run, ok := h.opts.Store.Get(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, "RUN_NOT_FOUND", fmt.Errorf("run %q not found", c.Param("id")))
		return nil, false
	}
	return run, true
}

// GetRun handles GET /api/v1/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, run.Snapshot())
}

// ListRuns handles GET /api/v1/runs
func (h *RunHandler) ListRuns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": h.opts.Store.List()})
}

// CancelRun handles DELETE /api/v1/runs/:id
func (h *RunHandler) CancelRun(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	run.Cancel()
	c.JSON(http.StatusAccepted, run.Snapshot())
}

// GetTrades handles GET /api/v1/runs/:id/trades/:window
// With ?format=csv the trade log is returned in the same layout as trades_w{k}.csv.
func (h *RunHandler) GetTrades(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	k, err := strconv.Atoi(c.Param("window"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_WINDOW", fmt.Errorf("window %q is not an integer", c.Param("window")))
		return
	}
	trades, ok := run.Trades(k)
	if !ok {
		respondError(c, http.StatusNotFound, "WINDOW_NOT_FOUND", fmt.Errorf("window %d has no results", k))
		return
	}

	if c.Query("format") == "csv" {
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", report.TradesFile(k)))
		c.Status(http.StatusOK)
		if err := backtest.EncodeTradesCSV(c.Writer, trades); err != nil {
			h.log.Error("encode trades", zap.Error(err))
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"window": k, "trades": models.NewTradeRows(trades)})
}

// RankWindows handles GET /api/v1/runs/:id/rank
func (h *RunHandler) RankWindows(c *gin.Context) {
	run, ok := h.lookup(c)
	if !ok {
		return
	}
	var req models.RankRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}
	snap := run.Snapshot()
	if snap.Result == nil {
		respondError(c, http.StatusConflict, "RUN_NOT_FINISHED", fmt.Errorf("run %s is %s", snap.ID, snap.Status))
		return
	}

	ranked := analysis.RankWindows(snap.Result.WindowMetrics())
	if req.Limit > 0 && req.Limit < len(ranked) {
		ranked = ranked[:req.Limit]
	}
	c.JSON(http.StatusOK, models.RankResponse{Rankings: ranked, Count: len(ranked)})
}
