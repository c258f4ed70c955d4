package models

import (
	"time"

	"wf-backtest/internal/backtest"
)

// BacktestRequest runs the engine on inline arrays.
type BacktestRequest struct {
	Prices  []PricePoint             `json:"prices" binding:"required,min=1"`
	Proba   []backtest.Probabilities `json:"proba" binding:"required"`
	Params  TradeParams              `json:"params" binding:"required"`
	Options BacktestOptions          `json:"options,omitempty"`
}

// PricePoint is one bar of the simulated series.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp" binding:"required"`
	Close     float64   `json:"close" binding:"required"`
	ATR       float64   `json:"atr" binding:"required"`
}

// TradeParams mirrors the trade section of the config file.
type TradeParams struct {
	ProbaThreshold float64 `json:"proba_threshold"`
	FeeBps         float64 `json:"fee_bps"`
	SlippageBps    float64 `json:"slippage_bps"`
	ATRMultTP      float64 `json:"atr_mult_tp"`
	ATRMultSL      float64 `json:"atr_mult_sl"`
	MaxHolding     int     `json:"max_holding" binding:"required"`
}

// BacktestOptions contains optional backtest parameters
type BacktestOptions struct {
	IncludeTrades bool `json:"include_trades,omitempty"` // default: false
}

// CompareBacktestRequest runs several parameter sets over the same inputs.
type CompareBacktestRequest struct {
	Prices     []PricePoint             `json:"prices" binding:"required,min=1"`
	Proba      []backtest.Probabilities `json:"proba" binding:"required"`
	Variations []BacktestVariation      `json:"variations" binding:"required,min=1"`
}

// BacktestVariation defines a variation to test
type BacktestVariation struct {
	Name   string      `json:"name" binding:"required"`
	Params TradeParams `json:"params" binding:"required"`
}

// LabelRequest labels a close series.
type LabelRequest struct {
	Closes     []float64 `json:"closes" binding:"required,min=1"`
	MaxHolding int       `json:"max_holding" binding:"required"`
	MinMoveBps int       `json:"min_move_bps"`
}

// WindowsRequest previews walk-forward windows over a regular bar grid from Start
// to End (inclusive) spaced by Interval.
type WindowsRequest struct {
	Start    time.Time   `json:"start" binding:"required"`
	End      time.Time   `json:"end" binding:"required"`
	Interval string      `json:"interval,omitempty"` // Go duration, default "1h"
	Timezone string      `json:"timezone,omitempty"` // default UTC
	Split    SplitParams `json:"split" binding:"required"`
}

// SplitParams are window sizes in months.
type SplitParams struct {
	TrainMonths int `json:"train_months" binding:"required"`
	ValidMonths int `json:"valid_months" binding:"required"`
	TestMonths  int `json:"test_months" binding:"required"`
	StepMonths  int `json:"step_months" binding:"required"`
}

// RunRequest starts an asynchronous walk-forward run over a server-side file.
// Config is YAML applied over the server defaults; data.path inside it is ignored.
type RunRequest struct {
	DataPath string `json:"data_path" binding:"required"`
	Config   string `json:"config,omitempty"`
}

// RankRequest selects how many ranked windows to return.
type RankRequest struct {
	Limit int `form:"limit,omitempty"` // default: all
}
