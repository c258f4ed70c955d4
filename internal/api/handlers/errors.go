package handlers

import (
	"github.com/gin-gonic/gin"

	"wf-backtest/internal/api/models"
)

func respondError(c *gin.Context, status int, code string, err error) {
	c.JSON(status, models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    code,
			Message: err.Error(),
		},
	})
}
