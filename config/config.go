// Package config loads service configuration: credentials and infrastructure
// settings from environment variables (with .env support), and trading
// parameters from a YAML file.
package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds credentials and infrastructure settings loaded from the
// environment. Trading parameters live in Params (see params.go).
type Config struct {
	// Binance Futures API (read-only access is sufficient — the service
	// analyzes markets and emits signals, it never places orders)
	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceBaseURL   string
	BinanceWSURL     string

	// Telegram delivery
	TelegramBotToken string
	TelegramAdminID  int64

	// TOTP secret gating admin bot commands. Empty disables the gate.
	AdminTOTPSecret string

	// Persistence backend: "sqlite" (default) or "redis"
	StoreBackend  string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string

	// Observability
	MetricsAddr string
	LogLevel    string

	// Path to the trading parameters YAML file. Empty uses built-in defaults.
	ParamsFile string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present (ignored when absent).
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("[config] loaded .env")
	}

	return &Config{
		BinanceAPIKey:    mustEnv("BINANCE_API_KEY"),
		BinanceAPISecret: mustEnv("BINANCE_API_SECRET"),
		BinanceBaseURL:   getEnv("BINANCE_FUTURES_BASE", "https://fapi.binance.com"),
		BinanceWSURL:     getEnv("BINANCE_FUTURES_WS", "wss://fstream.binance.com/ws"),

		TelegramBotToken: mustEnv("TELEGRAM_BOT_TOKEN"),
		TelegramAdminID:  getEnvInt64("TELEGRAM_ADMIN_ID", 0),
		AdminTOTPSecret:  getEnv("ADMIN_TOTP_SECRET", ""),

		StoreBackend:  getEnv("STORE_BACKEND", "sqlite"),
		SQLitePath:    getEnv("SQLITE_PATH", "data/signals.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),

		ParamsFile: getEnv("PARAMS_FILE", ""),
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("[config] invalid integer for %s: %q, using default", key, v)
		return fallback
	}
	return n
}
