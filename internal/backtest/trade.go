package backtest

import (
	"time"

	"wf-backtest/internal/model"
)

// ExitReason records which rule closed a trade.
// Keep these values stable; they are intended for CSV output.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitTimeout    ExitReason = "TIMEOUT"
)

// Trade is one closed position. Indices are positions in the simulated inputs.
// Return is net of the round-trip fee.
type Trade struct {
	EntryIndex int
	ExitIndex  int

	EntryTime time.Time
	ExitTime  time.Time

	Side model.Side

	EntryPrice float64
	ExitPrice  float64
	TakeProfit float64
	StopLoss   float64

	Return float64
	Reason ExitReason
}

type Result struct {
	Trades  []Trade
	Metrics Metrics
}
