package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/entity-screening/backend/internal/app"
	"github.com/entity-screening/backend/internal/metrics"
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

	if cfg.Messaging.Backend == "memory" {
		appLogger.Warn("Worker started with the in-process bus; it will only see messages it publishes itself")
	}

	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := app.New(ctx, cfg, app.Components{Workers: true})
	if err != nil {
		appLogger.Fatal("Failed to initialize worker", zap.Error(err))
	}
	defer svc.Close()

	if err := svc.StartWorkers(ctx); err != nil {
		appLogger.Fatal("Failed to start workers", zap.Error(err))
	}
	svc.StartJanitor(ctx, time.Hour)

	// Metrics only; the worker serves no API.
	server := fiber.New(fiber.Config{DisableStartupMessage: true})
	server.Get("/metrics", metrics.MetricsHandler())
	server.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "time": time.Now().Unix()})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port+1)
	go func() {
		if err := server.Listen(addr); err != nil {
			appLogger.Error("Metrics server stopped", zap.Error(err))
		}
	}()

	appLogger.Info("Worker running", zap.String("metrics_address", addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Worker shutting down...")
	cancel()
	_ = server.Shutdown()
	appLogger.Info("Worker stopped")
}
