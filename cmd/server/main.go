// Package main is the entry point for the reconciliation service. It
// wires the database, the distributed lock, the card-issuing provider
// client and the reconciliation engine, then serves the webhook
// endpoint.
package main

import (
	"context"
	"log"

	"cardledger/internal/config"
	"cardledger/internal/issuer"
	"cardledger/internal/lock"
	"cardledger/internal/logging"
	"cardledger/internal/repositories"
	"cardledger/internal/routes"
	"cardledger/internal/services/fees"
	"cardledger/internal/services/notification"
	"cardledger/internal/services/reconciliation"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	config.LoadEnv()
	logger := logging.New(config.GetEnv("LOG_LEVEL", "info"))

	db, err := repositories.InitDB()
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	store := repositories.NewStore(db)

	redisClient, err := lock.NewRedisClient(
		context.Background(),
		config.GetEnv("REDIS_ADDR", "localhost:6379"),
		config.GetEnv("REDIS_PASSWORD", ""),
		config.GetIntEnv("REDIS_DB", 0),
	)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	locks := lock.NewRedis(redisClient)

	issuerKey := config.GetEnv("ISSUER_SECRET_KEY", "")
	if issuerKey == "" {
		log.Fatal("ISSUER_SECRET_KEY is required")
	}
	issuerClient := issuer.NewStripeClient(issuerKey, config.GetEnv("CARD_DEFAULT_CURRENCY", "usd"))

	engine := reconciliation.NewEngine(
		store,
		locks,
		issuerClient,
		notification.NewService(logger),
		fees.DefaultTable(),
		config.LoadReconciliation(),
		logger,
	)

	app := fiber.New(fiber.Config{
		AppName: "cardledger",
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	routes.SetupRoutes(app, engine, logger)

	addr := ":" + config.GetEnv("PORT", "8080")
	logger.Info("starting webhook server", "addr", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
