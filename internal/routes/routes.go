// Package routes wires the application's HTTP surface: a health check
// and the provider webhook endpoint.
package routes

import (
	"log/slog"

	"cardledger/internal/handlers"
	"cardledger/internal/services/reconciliation"

	"github.com/gofiber/fiber/v2"
)

// SetupRoutes registers all routes on the fiber app.
func SetupRoutes(app *fiber.App, engine *reconciliation.Engine, logger *slog.Logger) {
	webhookHandler := handlers.NewWebhookHandler(engine, logger)

	app.Get("/health", webhookHandler.HandleHealth)

	api := app.Group("/api")
	api.Post("/webhooks/card", webhookHandler.HandleCardWebhook)
}
