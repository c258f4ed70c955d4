package models

import (
	"time"

	"wf-backtest/internal/analysis"
	"wf-backtest/internal/backtest"
	"wf-backtest/internal/pipeline"
	"wf-backtest/internal/predict"
	"wf-backtest/internal/split"
)

// BacktestResponse represents the response from a backtest run
type BacktestResponse struct {
	Status  string           `json:"status"`
	Window  TimeWindow       `json:"window"`
	Metrics backtest.Metrics `json:"metrics"`
	Trades  []TradeRow       `json:"trades,omitempty"`
}

// TimeWindow represents a time range
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// TradeRow is one closed trade.
type TradeRow struct {
	EntryIndex int       `json:"entry_index"`
	ExitIndex  int       `json:"exit_index"`
	EntryTime  time.Time `json:"t_in"`
	ExitTime   time.Time `json:"t_out"`
	Side       string    `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	TakeProfit float64   `json:"take_profit"`
	StopLoss   float64   `json:"stop_loss"`
	Return     float64   `json:"ret"`
	Reason     string    `json:"reason"`
}

// NewTradeRows converts engine trades for the wire.
func NewTradeRows(trades []backtest.Trade) []TradeRow {
	out := make([]TradeRow, len(trades))
	for i, t := range trades {
		out[i] = TradeRow{
			EntryIndex: t.EntryIndex,
			ExitIndex:  t.ExitIndex,
			EntryTime:  t.EntryTime,
			ExitTime:   t.ExitTime,
			Side:       t.Side.String(),
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			TakeProfit: t.TakeProfit,
			StopLoss:   t.StopLoss,
			Return:     t.Return,
			Reason:     string(t.Reason),
		}
	}
	return out
}

// CompareBacktestResponse represents the response from comparing backtests
type CompareBacktestResponse struct {
	Comparison []ComparisonResult `json:"comparison"`
}

// ComparisonResult is one variation's outcome. Error is set when its params
// were rejected.
type ComparisonResult struct {
	Name    string            `json:"name"`
	Metrics *backtest.Metrics `json:"metrics,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// LabelResponse carries one entry per close; null where no label is defined.
type LabelResponse struct {
	Labels  []*int      `json:"labels"`
	Counts  LabelCounts `json:"counts"`
	Defined int         `json:"defined"`
}

type LabelCounts struct {
	Down int `json:"down"`
	Flat int `json:"flat"`
	Up   int `json:"up"`
}

// WindowsResponse previews the windows a run would evaluate.
type WindowsResponse struct {
	Bars     int            `json:"bars"`
	Count    int            `json:"count"`
	Estimate int            `json:"estimate"`
	Windows  []split.Window `json:"windows"`
}

// Run states.
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// RunResponse describes an asynchronous walk-forward run.
type RunResponse struct {
	ID          string              `json:"id"`
	Status      string              `json:"status"`
	Trainer     string              `json:"trainer"`
	DataPath    string              `json:"data_path"`
	CreatedAt   time.Time           `json:"created_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Error       string              `json:"error,omitempty"`
	Result      *pipeline.RunResult `json:"result,omitempty"`
}

// RankResponse lists windows best first.
type RankResponse struct {
	Rankings []analysis.RankedWindow `json:"rankings"`
	Count    int                     `json:"count"`
}

// TrainersResponse lists registered trainers.
type TrainersResponse struct {
	Trainers []predict.TrainerInfo `json:"trainers"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
