package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the execution core.
type Config struct {
	Port string

	// Binance USDT-M futures
	BinanceTestnet   bool
	BinanceAPIKey    string
	BinanceAPISecret string
	Symbols          []string
	Leverage         int

	// DryRun trades against the in-memory simulator instead of the
	// real exchange. Prices still come from the live stream.
	DryRun bool

	// Position policy
	StopLossROI float64 // margin ROI at which the protective stop sits

	// Database
	DBPath string

	// Ledger retention
	CleanupRetentionDays int
	CleanupIntervalHours int

	// Tunables file (thresholds for risk/monitor/retry)
	ExecutionConfigPath string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	// Database path: prefer DB_PATH, then DATABASE_PATH for backward compatibility.
	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/orders.db")
	}

	return &Config{
		Port:                 getEnv("PORT", "8080"),
		BinanceTestnet:       getEnv("BINANCE_TESTNET", "false") == "true",
		DryRun:               getEnv("DRY_RUN", "false") == "true",
		BinanceAPIKey:        os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret:     os.Getenv("BINANCE_API_SECRET"),
		Symbols:              splitAndTrim(getEnv("SYMBOLS", "BTCUSDT,ETHUSDT")),
		Leverage:             getEnvInt("LEVERAGE", 10),
		StopLossROI:          getEnvFloat("STOP_LOSS_ROI", 0.05),
		DBPath:               dbPath,
		CleanupRetentionDays: getEnvInt("ORDER_RETENTION_DAYS", 7),
		CleanupIntervalHours: getEnvInt("ORDER_CLEANUP_INTERVAL_HOURS", 6),
		ExecutionConfigPath:  getEnv("EXECUTION_CONFIG", "./execution.yaml"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
