package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Indexer
	IndexerSubgraphURL    string
	IndexerDataAPIURL     string
	IndexerAPIKey         string
	IndexerEnabled        bool
	IndexerTimeoutSeconds int
	IndexerMaxRetries     int

	// Storage
	DBPath string

	// Monitor
	MonitorWSURL              string
	MonitorStabilityWindowSec int
	MonitorBackoffBaseSeconds float64
	MonitorBackoffMaxSeconds  float64
	MonitorCacheTTLMinutes    int
	MonitorMinSizeUSD         float64

	// Scoring
	Scoring ScoringConfig

	// Watchlist of market slugs the monitor subscribes to when none are
	// given on the command line.
	Watchlist []string
}

// ScoringConfig holds signal weights and thresholds consumed by the
// score and analyze packages.
type ScoringConfig struct {
	AlertThreshold int

	SizeWeight           int
	AccountHistoryWeight int
	ConvictionWeight     int

	SizeFloorUSD float64

	SafeBetEnabled   bool
	SafeBetThreshold float64

	DefaultTradeRole string

	WhaleValueThreshold float64
}

// LoadFromEnv loads configuration from environment variables, falling
// back to a local .env file when present.
func LoadFromEnv() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	return &Config{
		IndexerSubgraphURL:    getEnvOrDefault("INDEXER_SUBGRAPH_URL", "https://api.thegraph.com/subgraphs/name/polymarket/positions-subgraph"),
		IndexerDataAPIURL:     getEnvOrDefault("INDEXER_DATA_API_URL", "https://data-api.polymarket.com"),
		IndexerAPIKey:         os.Getenv("INDEXER_API_KEY"),
		IndexerEnabled:        getEnvOrDefault("INDEXER_ENABLED", "true") == "true",
		IndexerTimeoutSeconds: getEnvInt("INDEXER_TIMEOUT_SECONDS", 10),
		IndexerMaxRetries:     getEnvInt("INDEXER_MAX_RETRIES", 4),

		DBPath: getEnvOrDefault("POLYSCOPE_DB_PATH", "./polyscope.db"),

		MonitorWSURL:              getEnvOrDefault("POLYSCOPE_MONITOR_WS_URL", "wss://ws-live-data.polymarket.com"),
		MonitorStabilityWindowSec: getEnvInt("MONITOR_STABILITY_WINDOW_SECONDS", 60),
		MonitorBackoffBaseSeconds: getEnvFloat("MONITOR_BACKOFF_BASE_SECONDS", 1.0),
		MonitorBackoffMaxSeconds:  getEnvFloat("MONITOR_BACKOFF_MAX_SECONDS", 60.0),
		MonitorCacheTTLMinutes:    getEnvInt("MONITOR_CACHE_TTL_MINUTES", 5),
		MonitorMinSizeUSD:         getEnvFloat("MONITOR_MIN_SIZE_USD", 100.0),

		Scoring: ScoringConfig{
			AlertThreshold: getEnvInt("SCORE_ALERT_THRESHOLD", 65),

			SizeWeight:           getEnvInt("SCORE_SIZE_WEIGHT", 40),
			AccountHistoryWeight: getEnvInt("SCORE_ACCOUNT_HISTORY_WEIGHT", 35),
			ConvictionWeight:     getEnvInt("SCORE_CONVICTION_WEIGHT", 25),

			SizeFloorUSD: getEnvFloat("SCORE_SIZE_FLOOR_USD", 1000.0),

			SafeBetEnabled:   getEnvOrDefault("SCORE_SAFE_BET_ENABLED", "true") == "true",
			SafeBetThreshold: getEnvFloat("SCORE_SAFE_BET_THRESHOLD", 0.95),

			DefaultTradeRole: getEnvOrDefault("SCORE_DEFAULT_TRADE_ROLE", "taker"),

			WhaleValueThreshold: getEnvFloat("SCORE_WHALE_VALUE_THRESHOLD", 50000.0),
		},

		Watchlist: splitWatchlist(os.Getenv("POLYSCOPE_WATCHLIST")),
	}
}

func splitWatchlist(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
