package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/entity-screening/backend/internal/middleware/validation"
	"github.com/entity-screening/backend/internal/orchestrator"
	"github.com/entity-screening/backend/internal/screening"
	"github.com/entity-screening/backend/pkg/logger"
)

type Streamer interface {
	Stream(ctx context.Context, req screening.Request, onGroup orchestrator.GroupFunc) (*screening.Response, error)
}

// DefaultStreamTimeout bounds one streamed screening.
const DefaultStreamTimeout = 2 * time.Minute

type WebSocketHandler struct {
	streamer Streamer
	rules    validation.Rules
	timeout  time.Duration
}

func NewWebSocketHandler(streamer Streamer, rules validation.Rules) *WebSocketHandler {
	return &WebSocketHandler{
		streamer: streamer,
		rules:    rules,
		timeout:  DefaultStreamTimeout,
	}
}

// Upgrade rejects plain HTTP requests on the websocket route.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

type wsRequest struct {
	Type    string          `json:"type"`
	Request json.RawMessage `json:"request"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg wsRequest
		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			return
		}

		if msg.Type != "screen" {
			_ = c.WriteJSON(fiber.Map{"type": "error", "error": "unsupported message type"})
			continue
		}

		if err := h.screen(ctx, msg.Request, c.WriteJSON); err != nil {
			logger.Warn("Streaming screening failed", zap.Error(err))
		}
	}
}

// screen runs one streamed screening, writing a frame per query group and a
// final complete or error frame.
func (h *WebSocketHandler) screen(ctx context.Context, raw json.RawMessage, send func(v interface{}) error) error {
	req, err := h.rules.Validate(raw)
	if err != nil {
		return sendError(send, err)
	}

	if err := send(fiber.Map{"type": "status", "content": "Screening started"}); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	resp, err := h.streamer.Stream(ctx, req, func(i int, g screening.QueryGroup) error {
		return send(fiber.Map{"type": "group", "index": i, "group": g})
	})
	if err != nil {
		return sendError(send, err)
	}

	return send(fiber.Map{"type": "complete", "response": resp})
}

func sendError(send func(v interface{}) error, err error) error {
	frame := fiber.Map{"type": "error", "error": "Failed to process screening"}

	var verr *screening.ValidationError
	switch {
	case errors.As(err, &verr):
		frame["error"] = "validation failed"
		frame["field"] = verr.Field
		frame["reason"] = verr.Reason
	case errors.Is(err, screening.ErrUpstreamUnavailable):
		frame["error"] = "Search provider unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		frame["error"] = "Screening timed out"
	}

	if sendErr := send(frame); sendErr != nil {
		return sendErr
	}
	return err
}
