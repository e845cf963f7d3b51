package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/entity-screening/backend/internal/api"
	"github.com/entity-screening/backend/internal/api/handlers"
	"github.com/entity-screening/backend/internal/app"
	"github.com/entity-screening/backend/internal/metrics"
	"github.com/entity-screening/backend/internal/middleware/ratelimit"
	"github.com/entity-screening/backend/internal/middleware/validation"
	"github.com/entity-screening/backend/pkg/config"
	appLogger "github.com/entity-screening/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting entity screening API server")

	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The in-process bus has no other consumer, so the API runs the workers itself.
	inProcess := cfg.Messaging.Backend == "memory"

	svc, err := app.New(ctx, cfg, app.Components{Screening: true, Workers: inProcess})
	if err != nil {
		appLogger.Fatal("Failed to initialize service", zap.Error(err))
	}
	defer svc.Close()

	if inProcess {
		if err := svc.StartWorkers(ctx); err != nil {
			appLogger.Fatal("Failed to start workers", zap.Error(err))
		}
	}
	svc.StartJanitor(ctx, time.Hour)

	rules := validation.Rules{
		DefaultMaxQueries: cfg.Screening.DefaultMaxQueries,
		DefaultNumResults: cfg.Screening.DefaultNumResults,
		MaxEntityLength:   cfg.Screening.MaxEntityLength,
	}

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Logger:            appLogger.GetLogger(),
	})
	defer limiter.Stop()

	server := api.NewApp(cfg.Server, limiter, api.Handlers{
		Screening: handlers.NewScreeningHandler(svc.Orchestrator, svc.Persister, rules),
		Keywords:  handlers.NewKeywordsHandler(svc.Holder),
		Risk:      handlers.NewRiskHandler(svc.Persister),
		Health:    handlers.NewHealthHandler(svc.Holder, svc.HealthChecks(), "storage"),
		WebSocket: handlers.NewWebSocketHandler(svc.Orchestrator, rules),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := server.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := server.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Warn("Server shutdown incomplete", zap.Error(err))
	}
	cancel()
	appLogger.Info("Server stopped")
}
