package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wf-backtest/internal/api/models"
	"wf-backtest/internal/logger"
)

// ErrorHandler middleware handles panics and errors
func ErrorHandler(log *zap.Logger) gin.HandlerFunc {
	log = logger.OrNop(log)
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error("panic in handler",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("panic", fmt.Sprint(recovered)))

		msg := "An unexpected error occurred"
		if s, ok := recovered.(string); ok {
			msg = s
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "INTERNAL_ERROR",
				Message: msg,
			},
		})
	})
}
