package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string

	BatchSize       int
	BatchDelay      time.Duration
	DefaultCurrency string

	// MaxConcurrentSlaves is reserved for a future parallel mode. The
	// engine currently processes slaves sequentially regardless.
	MaxConcurrentSlaves int

	UpdateExistingStages bool
	DeleteExtraRoles     bool

	APIRateLimitRPS float64
	HTTPTimeout     time.Duration
	PollInterval    time.Duration
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return &Config{
		DatabaseURL:          dbURL,
		BatchSize:            envInt("BATCH_SIZE", 10),
		BatchDelay:           envSeconds("BATCH_DELAY_SECONDS", 2*time.Second),
		DefaultCurrency:      envString("DEFAULT_MONETARY_CURRENCY", "USD"),
		MaxConcurrentSlaves:  envInt("MAX_CONCURRENT_SLAVES", 1),
		UpdateExistingStages: envBool("UPDATE_EXISTING_STAGES", false),
		DeleteExtraRoles:     envBool("DELETE_EXTRA_ROLES", false),
		APIRateLimitRPS:      envFloat("API_RATE_LIMIT_RPS", 6),
		HTTPTimeout:          envSeconds("HTTP_TIMEOUT_SECONDS", 30*time.Second),
		PollInterval:         envSeconds("POLL_INTERVAL_SECONDS", 10*time.Second),
		ShutdownTimeout:      envSeconds("SHUTDOWN_TIMEOUT_SECONDS", 30*time.Second),
	}, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return fallback
	}
	return time.Duration(secs * float64(time.Second))
}
