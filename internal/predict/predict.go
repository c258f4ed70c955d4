package predict

import (
	"context"
	"errors"

	"wf-backtest/internal/backtest"
)

var (
	ErrNoSamples     = errors.New("no labelled training samples")
	ErrWidthMismatch = errors.New("feature width differs from training")
)

// Sequence is SeqLen consecutive scaled feature rows, oldest first.
type Sequence [][]float64

// Predictor maps sequences to (down, flat, up) probabilities, one row per sequence.
type Predictor interface {
	Predict(ctx context.Context, batch []Sequence) ([]backtest.Probabilities, error)
}

// Trainer fits a Predictor for one window. Implementations must not keep state
// between calls; windows are fitted concurrently.
type Trainer interface {
	Name() string
	Fit(ctx context.Context, train, valid *Dataset) (Predictor, error)
}

// Func adapts a plain function to Predictor.
type Func func(ctx context.Context, batch []Sequence) ([]backtest.Probabilities, error)

func (f Func) Predict(ctx context.Context, batch []Sequence) ([]backtest.Probabilities, error) {
	return f(ctx, batch)
}

// Static is a Trainer that ignores its data and always returns P.
type Static struct {
	Label string
	P     Predictor
}

func (s Static) Name() string {
	if s.Label == "" {
		return "static"
	}
	return s.Label
}

func (s Static) Fit(ctx context.Context, _, _ *Dataset) (Predictor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.P, nil
}
