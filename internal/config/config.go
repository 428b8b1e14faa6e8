package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadEnv loads variables from a .env file if present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found: %v", err)
	}
}

// GetEnv returns an environment variable or a default value.
func GetEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetIntEnv returns an int environment variable or a default value.
func GetIntEnv(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// GetInt64Env returns an int64 environment variable or a default value.
func GetInt64Env(key string, defaultVal int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

// IsProduction checks if the app runs in production mode.
func IsProduction() bool {
	return GetEnv("ENV", "development") == "production"
}

// Reconciliation holds the tunables of the webhook reconciliation
// engine. Values are read once at startup and passed by reference.
type Reconciliation struct {
	// Consecutive insufficient-funds declines before the card is
	// blocked.
	DeclineThreshold int
	// Currency assumed when the webhook omits one.
	DefaultCurrency string
}

// LoadReconciliation builds the engine configuration from the
// environment.
func LoadReconciliation() Reconciliation {
	return Reconciliation{
		DeclineThreshold: GetIntEnv("CARD_DECLINE_THRESHOLD", 3),
		DefaultCurrency:  GetEnv("CARD_DEFAULT_CURRENCY", "USD"),
	}
}
