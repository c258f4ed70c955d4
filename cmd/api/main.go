package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"wf-backtest/internal/api"
	"wf-backtest/internal/api/handlers"
	"wf-backtest/internal/config"
	"wf-backtest/internal/data"
	"wf-backtest/internal/logger"
	"wf-backtest/internal/predict"
)

func main() {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintln(os.Stderr, "load .env:", err)
			os.Exit(1)
		}
	}

	// Get configuration from environment
	port := getenv("API_PORT", "8080")
	dataDir := getenv("DATA_DIR", "./data")
	outDir := os.Getenv("OUTPUT_DIR")

	cfg := config.Default()
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		loaded, err := config.Load(p)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load config:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	log, err := logger.Init(cfg.Log.Options())
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if os.Getenv("API_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	runTTL := durationEnv(log, "RUN_TTL", time.Hour)
	cacheTTL := durationEnv(log, "DATA_CACHE_TTL", 10*time.Minute)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := predict.DefaultRegistry()
	runs := handlers.NewRunHandler(ctx, handlers.RunHandlerOptions{
		Store:    handlers.NewRunStore(runTTL),
		Registry: registry,
		Cache:    data.NewSeriesCache(cacheTTL),
		Base:     cfg,
		DataDir:  dataDir,
		OutDir:   outDir,
		Logger:   log.Named("runs"),
	})

	var origins []string
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		origins = strings.Split(v, ",")
	}
	router := api.NewRouter(api.Options{
		Logger:         log.Named("http"),
		Registry:       registry,
		Runs:           runs,
		AllowedOrigins: origins,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("starting API server", zap.String("addr", srv.Addr), zap.String("data_dir", dataDir))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
	runs.Shutdown()
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(log *zap.Logger, key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn("ignoring invalid duration", zap.String("key", key), zap.String("value", v))
		return def
	}
	return d
}
