package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"wf-backtest/internal/analysis"
	"wf-backtest/internal/backtest"
	"wf-backtest/internal/pipeline"
)

// Sink receives run output as it is produced.
type Sink interface {
	WriteWindow(ctx context.Context, w pipeline.WindowResult) error
	WriteRun(ctx context.Context, res *pipeline.RunResult) error
	Close() error
}

// Multi fans out to every sink in order and stops at the first error.
type Multi []Sink

func (m Multi) WriteWindow(ctx context.Context, w pipeline.WindowResult) error {
	for _, s := range m {
		if err := s.WriteWindow(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) WriteRun(ctx context.Context, res *pipeline.RunResult) error {
	for _, s := range m {
		if err := s.WriteRun(ctx, res); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Writer persists run output as files under Dir:
//
//	metrics_w{k}.json   one per completed window
//	trades_w{k}.csv     one per completed window
//	metrics_windows.json
//	summary.json
//
// Every file is written to a temporary name and renamed into place, so readers
// never observe a partially written file.
type Writer struct {
	Dir string
}

func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Writer{Dir: dir}, nil
}

func MetricsFile(window int) string { return fmt.Sprintf("metrics_w%d.json", window) }
func TradesFile(window int) string  { return fmt.Sprintf("trades_w%d.csv", window) }

const (
	WindowsFile = "metrics_windows.json"
	SummaryFile = "summary.json"
)

// SummaryDoc is the content of summary.json.
type SummaryDoc struct {
	analysis.Summary
	Generated int             `json:"generated"`
	Skipped   []pipeline.Skip `json:"skipped"`
}

func (w *Writer) WriteWindow(_ context.Context, r pipeline.WindowResult) error {
	k := r.Window.Index
	if err := w.writeJSON(MetricsFile(k), r); err != nil {
		return err
	}
	return w.atomic(TradesFile(k), func(out io.Writer) error {
		return backtest.EncodeTradesCSV(out, r.Trades)
	})
}

func (w *Writer) WriteRun(_ context.Context, res *pipeline.RunResult) error {
	if err := w.writeJSON(WindowsFile, res.WindowMetrics()); err != nil {
		return err
	}
	skipped := res.Skipped
	if skipped == nil {
		skipped = []pipeline.Skip{}
	}
	return w.writeJSON(SummaryFile, SummaryDoc{Summary: res.Summary, Generated: res.Generated, Skipped: skipped})
}

func (w *Writer) Close() error { return nil }

func (w *Writer) writeJSON(name string, v any) error {
	return w.atomic(name, func(out io.Writer) error {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

func (w *Writer) atomic(name string, fill func(io.Writer) error) error {
	f, err := os.CreateTemp(w.Dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	tmp := f.Name()
	defer os.Remove(tmp) // no-op once renamed

	if err := fill(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, filepath.Join(w.Dir, name)); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// ReadSummary loads summary.json from dir.
func ReadSummary(dir string) (*SummaryDoc, error) {
	raw, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	if err != nil {
		return nil, err
	}
	var doc SummaryDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", SummaryFile, err)
	}
	return &doc, nil
}
