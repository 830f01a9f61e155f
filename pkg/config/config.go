package config

import (
	"os"
	"strconv"
)

// Config holds server configuration.
type Config struct {
	Port             string
	LogLevel         string
	DatabaseURL      string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	ArchiveBackend   string
	AdminTokenSecret string
	LedgerRPS        float64
	OTLPEndpoint     string
	MetricsEnabled   bool
	Workers          int
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			redisDB = n
		}
	}

	ledgerRPS := 10.0
	if v := os.Getenv("LEDGER_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			ledgerRPS = f
		}
	}

	workers := 4
	if v := os.Getenv("ENGINE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			workers = n
		}
	}

	archiveBackend := os.Getenv("ARCHIVE_BACKEND")
	if archiveBackend == "" {
		archiveBackend = "memory"
	}

	otlpEndpoint := os.Getenv("OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	return &Config{
		Port:             port,
		LogLevel:         logLevel,
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          redisDB,
		ArchiveBackend:   archiveBackend,
		AdminTokenSecret: os.Getenv("ADMIN_TOKEN_SECRET"),
		LedgerRPS:        ledgerRPS,
		OTLPEndpoint:     otlpEndpoint,
		MetricsEnabled:   os.Getenv("METRICS_ENABLED") == "true",
		Workers:          workers,
	}
}
