package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wf-backtest/internal/api/models"
	"wf-backtest/internal/predict"
)

// TrainerHandler handles trainer-related requests
type TrainerHandler struct {
	registry *predict.Registry
}

// NewTrainerHandler creates a new trainer handler
func NewTrainerHandler(registry *predict.Registry) *TrainerHandler {
	return &TrainerHandler{registry: registry}
}

// ListTrainers handles GET /api/v1/trainers
func (h *TrainerHandler) ListTrainers(c *gin.Context) {
	c.JSON(http.StatusOK, models.TrainersResponse{Trainers: h.registry.List()})
}
