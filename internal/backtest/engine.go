package backtest

import (
	"errors"
	"fmt"
	"time"

	"wf-backtest/internal/model"
)

var ErrLengthMismatch = errors.New("input lengths differ")

// Probabilities is one predictor row: (down, flat, up), summing to 1.
type Probabilities [3]float64

func (p Probabilities) Down() float64 { return p[0] }
func (p Probabilities) Flat() float64 { return p[1] }
func (p Probabilities) Up() float64   { return p[2] }

// Inputs are aligned per bar. Proba may have N or N-1 rows: the last bar can never
// open a position, so its row is not consulted.
type Inputs struct {
	Times  []time.Time
	Closes []float64
	ATR    []float64
	Proba  []Probabilities
}

// Params configures signal gating and exits. Costs are in basis points.
type Params struct {
	Threshold     float64
	FeeBps        float64
	SlippageBps   float64
	ATRTakeProfit float64
	ATRStopLoss   float64
	MaxHolding    int
}

func (p Params) Validate() error {
	if !model.IsFinite(p.Threshold) || p.Threshold < 0 || p.Threshold > 1 {
		return errors.New("threshold must be in [0, 1]")
	}
	if !model.IsFinite(p.FeeBps) || p.FeeBps < 0 {
		return errors.New("fee_bps must be >= 0")
	}
	if !model.IsFinite(p.SlippageBps) || p.SlippageBps < 0 {
		return errors.New("slippage_bps must be >= 0")
	}
	if !model.IsFinite(p.ATRTakeProfit) || p.ATRTakeProfit < 0 {
		return errors.New("atr_mult_tp must be >= 0")
	}
	if !model.IsFinite(p.ATRStopLoss) || p.ATRStopLoss < 0 {
		return errors.New("atr_mult_sl must be >= 0")
	}
	if p.MaxHolding <= 0 {
		return errors.New("max_holding must be > 0")
	}
	return nil
}

type Engine struct{}

func New() *Engine { return &Engine{} }

// Run simulates one position at a time over the inputs. It is deterministic: the
// same inputs always produce the same trades and metrics.
func (e *Engine) Run(in Inputs, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	fee := p.FeeBps / 1e4
	slp := p.SlippageBps / 1e4
	closes, atr := in.Closes, in.ATR
	n := len(closes)

	var trades []Trade
	i := 0
	for i < n-1 {
		pr := in.Proba[i]
		longSig := pr.Up() >= p.Threshold && pr.Up() > pr.Down()
		shortSig := pr.Down() >= p.Threshold && pr.Down() > pr.Up()
		if !longSig && !shortSig {
			i++
			continue
		}

		side := model.Short
		if longSig {
			side = model.Long
		}
		entry := closes[i] * (1 - slp)
		if side == model.Long {
			entry = closes[i] * (1 + slp)
		}
		tp, sl := barriers(side, entry, atr[i], p)

		hit, reason := -1, ExitTimeout
		last := min(i+p.MaxHolding, n-1)
		for j := i + 1; j <= last; j++ {
			px := closes[j]
			if side == model.Long && (px >= tp || px <= sl) {
				hit, reason = j, exitReason(px >= tp)
				break
			}
			if side == model.Short && (px <= tp || px >= sl) {
				hit, reason = j, exitReason(px <= tp)
				break
			}
		}
		if hit < 0 {
			hit = last
		}

		exit := closes[hit] * (1 + slp)
		if side == model.Long {
			exit = closes[hit] * (1 - slp)
		}
		ret := (exit/entry-1)*float64(side) - 2*fee

		trades = append(trades, Trade{
			EntryIndex: i,
			ExitIndex:  hit,
			EntryTime:  in.timeAt(i),
			ExitTime:   in.timeAt(hit),
			Side:       side,
			EntryPrice: entry,
			ExitPrice:  exit,
			TakeProfit: tp,
			StopLoss:   sl,
			Return:     ret,
			Reason:     reason,
		})
		i = hit + 1
	}

	return &Result{
		Trades:  trades,
		Metrics: ComputeMetrics(trades),
	}, nil
}

// barriers places take-profit and stop-loss at ATR multiples from the entry price.
func barriers(side model.Side, entry, atr float64, p Params) (tp, sl float64) {
	up, down := p.ATRTakeProfit*atr, p.ATRStopLoss*atr
	if side == model.Long {
		return entry + up, entry - down
	}
	return entry - up, entry + down
}

// exitReason mirrors the scan condition: take profit is tested first, so a bar that
// satisfies both barriers is a take profit.
func exitReason(tpHit bool) ExitReason {
	if tpHit {
		return ExitTakeProfit
	}
	return ExitStopLoss
}

func (in Inputs) timeAt(i int) time.Time {
	if i < len(in.Times) {
		return in.Times[i]
	}
	return time.Time{}
}

func (in Inputs) validate() error {
	n := len(in.Closes)
	if len(in.ATR) != n {
		return fmt.Errorf("%w: closes=%d atr=%d", ErrLengthMismatch, n, len(in.ATR))
	}
	if len(in.Times) != 0 && len(in.Times) != n {
		return fmt.Errorf("%w: closes=%d timestamps=%d", ErrLengthMismatch, n, len(in.Times))
	}
	if n > 0 && len(in.Proba) != n && len(in.Proba) != n-1 {
		return fmt.Errorf("%w: closes=%d proba=%d", ErrLengthMismatch, n, len(in.Proba))
	}
	for i := 0; i < n; i++ {
		if !model.IsFinite(in.Closes[i]) || in.Closes[i] <= 0 {
			return fmt.Errorf("close %d: %w or not positive", i, model.ErrNonFinite)
		}
		if !model.IsFinite(in.ATR[i]) || in.ATR[i] <= 0 {
			return fmt.Errorf("atr %d: %w or not positive", i, model.ErrNonFinite)
		}
	}
	for i, pr := range in.Proba {
		for k, v := range pr {
			if !model.IsFinite(v) {
				return fmt.Errorf("proba[%d][%d]: %w", i, k, model.ErrNonFinite)
			}
		}
	}
	return nil
}
