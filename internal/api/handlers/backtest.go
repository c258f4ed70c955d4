package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wf-backtest/internal/api/models"
	"wf-backtest/internal/backtest"
	"wf-backtest/internal/logger"
)

// BacktestHandler runs the engine on request-supplied inputs.
type BacktestHandler struct {
	engine *backtest.Engine
	log    *zap.Logger
}

// NewBacktestHandler creates a new backtest handler
func NewBacktestHandler(log *zap.Logger) *BacktestHandler {
	return &BacktestHandler{engine: backtest.New(), log: logger.OrNop(log)}
}

// RunBacktest handles POST /api/v1/backtest
func (h *BacktestHandler) RunBacktest(c *gin.Context) {
	var req models.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}

	result, err := h.engine.Run(toInputs(req.Prices, req.Proba), toParams(req.Params))
	if err != nil {
		code := "INVALID_INPUT"
		if errors.Is(err, backtest.ErrLengthMismatch) {
			code = "LENGTH_MISMATCH"
		}
		respondError(c, http.StatusBadRequest, code, err)
		return
	}
	h.log.Debug("backtest", zap.Int("bars", len(req.Prices)), zap.Int("trades", result.Metrics.Trades))

	resp := models.BacktestResponse{
		Status: "completed",
		Window: models.TimeWindow{
			Start: req.Prices[0].Timestamp,
			End:   req.Prices[len(req.Prices)-1].Timestamp,
		},
		Metrics: result.Metrics,
	}
	if req.Options.IncludeTrades {
		resp.Trades = models.NewTradeRows(result.Trades)
	}
	c.JSON(http.StatusOK, resp)
}

// CompareBacktests handles POST /api/v1/backtest/compare
func (h *BacktestHandler) CompareBacktests(c *gin.Context) {
	var req models.CompareBacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}

	in := toInputs(req.Prices, req.Proba)
	comparison := make([]models.ComparisonResult, 0, len(req.Variations))
	for _, v := range req.Variations {
		result, err := h.engine.Run(in, toParams(v.Params))
		if err != nil {
			if errors.Is(err, backtest.ErrLengthMismatch) {
				respondError(c, http.StatusBadRequest, "LENGTH_MISMATCH", err)
				return
			}
			comparison = append(comparison, models.ComparisonResult{Name: v.Name, Error: err.Error()})
			continue
		}
		m := result.Metrics
		comparison = append(comparison, models.ComparisonResult{Name: v.Name, Metrics: &m})
	}

	c.JSON(http.StatusOK, models.CompareBacktestResponse{Comparison: comparison})
}

func toInputs(prices []models.PricePoint, proba []backtest.Probabilities) backtest.Inputs {
	in := backtest.Inputs{
		Times:  make([]time.Time, len(prices)),
		Closes: make([]float64, len(prices)),
		ATR:    make([]float64, len(prices)),
		Proba:  proba,
	}
	for i, p := range prices {
		in.Times[i] = p.Timestamp
		in.Closes[i] = p.Close
		in.ATR[i] = p.ATR
	}
	return in
}

func toParams(p models.TradeParams) backtest.Params {
	return backtest.Params{
		Threshold:     p.ProbaThreshold,
		FeeBps:        p.FeeBps,
		SlippageBps:   p.SlippageBps,
		ATRTakeProfit: p.ATRMultTP,
		ATRStopLoss:   p.ATRMultSL,
		MaxHolding:    p.MaxHolding,
	}
}
