package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wf-backtest/internal/api/handlers"
	"wf-backtest/internal/api/middleware"
	"wf-backtest/internal/api/models"
	"wf-backtest/internal/predict"
)

// Options wires the router.
type Options struct {
	Logger         *zap.Logger
	Registry       *predict.Registry
	Runs           *handlers.RunHandler
	AllowedOrigins []string
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(opts Options) *gin.Engine {
	if opts.Registry == nil {
		opts.Registry = predict.DefaultRegistry()
	}

	router := gin.New()
	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(middleware.Logger(opts.Logger))
	router.Use(middleware.ErrorHandler(opts.Logger))

	backtestHandler := handlers.NewBacktestHandler(opts.Logger)
	trainerHandler := handlers.NewTrainerHandler(opts.Registry)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	{
		api.POST("/backtest", backtestHandler.RunBacktest)
		api.POST("/backtest/compare", backtestHandler.CompareBacktests)

		api.POST("/labels", handlers.LabelHandler)
		api.POST("/windows", handlers.WindowsHandler)
		api.GET("/trainers", trainerHandler.ListTrainers)

		if opts.Runs != nil {
			api.POST("/runs", opts.Runs.CreateRun)
			api.GET("/runs", opts.Runs.ListRuns)
			api.GET("/runs/:id", opts.Runs.GetRun)
			api.DELETE("/runs/:id", opts.Runs.CancelRun)
			api.GET("/runs/:id/trades/:window", opts.Runs.GetTrades)
			api.GET("/runs/:id/rank", opts.Runs.RankWindows)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: models.ErrorDetail{Code: "NOT_FOUND", Message: "Not found"},
		})
	})
	return router
}
