package handlers

import (
	"log/slog"

	"cardledger/internal/services/reconciliation"

	"github.com/gofiber/fiber/v2"
)

// WebhookHandler is the front door for provider webhook deliveries.
type WebhookHandler struct {
	engine *reconciliation.Engine
	logger *slog.Logger
}

func NewWebhookHandler(engine *reconciliation.Engine, logger *slog.Logger) *WebhookHandler {
	if engine == nil {
		panic("engine is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &WebhookHandler{engine: engine, logger: logger}
}

// HandleCardWebhook acknowledges every business outcome with 200 so the
// provider stops redelivering; only internal errors return 500, which
// is the signal for the provider to retry.
func (h *WebhookHandler) HandleCardWebhook(c *fiber.Ctx) error {
	result, err := h.engine.ProcessWebhook(c.Context(), c.Body())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status": "error",
			"error":  "internal processing failure",
		})
	}
	return c.JSON(result)
}

// HandleHealth reports liveness.
func (h *WebhookHandler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
