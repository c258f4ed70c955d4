package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wf-backtest/internal/api/models"
	"wf-backtest/internal/split"
)

// maxPreviewBars bounds the synthetic grid built for a window preview.
const maxPreviewBars = 2_000_000

// WindowsHandler handles POST /api/v1/windows
func WindowsHandler(c *gin.Context) {
	var req models.WindowsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err)
		return
	}

	interval := time.Hour
	if req.Interval != "" {
		d, err := time.ParseDuration(req.Interval)
		if err != nil || d <= 0 {
			respondError(c, http.StatusBadRequest, "INVALID_INTERVAL", fmt.Errorf("interval %q must be a positive duration", req.Interval))
			return
		}
		interval = d
	}
	loc := time.UTC
	if req.Timezone != "" {
		l, err := time.LoadLocation(req.Timezone)
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_TIMEZONE", err)
			return
		}
		loc = l
	}
	if req.End.Before(req.Start) {
		respondError(c, http.StatusBadRequest, "INVALID_RANGE", errors.New("end must not be before start"))
		return
	}
	n := int(req.End.Sub(req.Start)/interval) + 1
	if n > maxPreviewBars {
		respondError(c, http.StatusBadRequest, "INVALID_RANGE",
			fmt.Errorf("range covers %d bars, limit is %d", n, maxPreviewBars))
		return
	}

	sp := split.Splitter{
		TrainMonths: req.Split.TrainMonths,
		ValidMonths: req.Split.ValidMonths,
		TestMonths:  req.Split.TestMonths,
		StepMonths:  req.Split.StepMonths,
		Location:    loc,
	}
	if err := sp.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_SPLIT", err)
		return
	}

	times := make([]time.Time, n)
	for i := range times {
		times[i] = req.Start.Add(time.Duration(i) * interval)
	}
	windows := sp.Collect(times)
	if windows == nil {
		windows = []split.Window{}
	}
	c.JSON(http.StatusOK, models.WindowsResponse{
		Bars:     n,
		Count:    len(windows),
		Estimate: sp.EstimateCount(times[0], times[n-1]),
		Windows:  windows,
	})
}
