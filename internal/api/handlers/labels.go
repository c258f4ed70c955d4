package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wf-backtest/internal/api/models"
	"wf-backtest/internal/label"
)

// LabelHandler handles POST /api/v1/labels
func LabelHandler(c *gin.Context) {
	var req models.LabelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}

	targets, err := label.Label(req.Closes, label.Params{MaxHolding: req.MaxHolding, MinMoveBps: req.MinMoveBps})
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_INPUT", err)
		return
	}

	resp := models.LabelResponse{
		Labels:  make([]*int, len(targets)),
		Defined: label.Defined(targets),
	}
	for i, t := range targets {
		if t.Defined {
			v := int(t.Class)
			resp.Labels[i] = &v
		}
	}
	counts := label.Counts(targets)
	resp.Counts = models.LabelCounts{
		Down: counts[label.Down.Index()],
		Flat: counts[label.Flat.Index()],
		Up:   counts[label.Up.Index()],
	}
	c.JSON(http.StatusOK, resp)
}
