package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/entity-screening/backend/internal/api/handlers"
	"github.com/entity-screening/backend/internal/metrics"
	"github.com/entity-screening/backend/internal/middleware/ratelimit"
	"github.com/entity-screening/backend/internal/middleware/security"
	"github.com/entity-screening/backend/internal/middleware/validation"
	"github.com/entity-screening/backend/pkg/config"
	"github.com/entity-screening/backend/pkg/logger"
)

type Handlers struct {
	Screening *handlers.ScreeningHandler
	Keywords  *handlers.KeywordsHandler
	Risk      *handlers.RiskHandler
	Health    *handlers.HealthHandler
	WebSocket *handlers.WebSocketHandler
}

// NewApp builds the fiber application with the middleware chain and routes.
// limiter may be nil to disable rate limiting.
func NewApp(cfg config.ServerConfig, limiter *ratelimit.RateLimiter, h Handlers) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "entity-screening",
		ReadTimeout:           time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.WriteTimeout) * time.Second,
		BodyLimit:             cfg.BodyLimit,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${status} ${latency} ${method} ${path}\n",
	}))

	allowOrigins := "*"
	if len(cfg.AllowedOrigins) > 0 {
		allowOrigins = strings.Join(cfg.AllowedOrigins, ",")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Api-Key",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		IsDevelopment:  cfg.IsDevelopment,
	}))

	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1")

	api.Get("/health", h.Health.Health)
	api.Get("/ready", h.Health.Ready)

	if limiter != nil {
		api.Use(limiter.Middleware())
	}

	if h.WebSocket != nil {
		api.Get("/ws/screenings", h.WebSocket.Upgrade, websocket.New(h.WebSocket.HandleConnection))
	}
	api.Use(validation.Middleware(validation.Config{Logger: logger.GetLogger()}))

	api.Post("/screenings", h.Screening.CreateScreening)
	api.Get("/screenings/:key", h.Screening.GetScreening)

	if h.Risk != nil {
		api.Get("/risk-assessments", h.Risk.ListAssessments)
	}

	api.Get("/keywords", h.Keywords.ListKeywords)
	api.Post("/keywords", h.Keywords.AddKeyword)
	api.Delete("/keywords/:category/:keyword", h.Keywords.RemoveKeyword)

	return app
}
