// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr        string
	WebDir      string
	PresetsFile string
	Locale      string
	Currency    string

	LeadsDBDriver string
	LeadsDBDSN    string

	FormRelayURL       string
	FormRelayAccessKey string
	RelayMaxAttempts   int
	RelayRetryInterval time.Duration

	KafkaBrokers string
	KafkaTopic   string

	LogLevel     string
	OTLPEndpoint string
}

// Load reads .env files (when present) and then the process environment.
// A missing .env is not an error; it reports whether one was loaded.
func Load(files ...string) (*Config, bool) {
	loaded := godotenv.Load(files...) == nil
	return &Config{
		Addr:        getEnv("ADDR", ":8090"),
		WebDir:      getEnv("WEB_DIR", "web"),
		PresetsFile: getEnv("PRESETS_FILE", ""),
		Locale:      getEnv("LOCALE", "en-IN"),
		Currency:    getEnv("CURRENCY_SYMBOL", "₹"),

		LeadsDBDriver: getEnv("LEADS_DB_DRIVER", "sqlite"),
		LeadsDBDSN:    getEnv("LEADS_DB_DSN", "./data/leads.db"),

		FormRelayURL:       getEnv("FORM_RELAY_URL", ""),
		FormRelayAccessKey: getEnv("FORM_RELAY_ACCESS_KEY", ""),
		RelayMaxAttempts:   getEnvInt("RELAY_MAX_ATTEMPTS", 3),
		RelayRetryInterval: getEnvDuration("RELAY_RETRY_INTERVAL", 30*time.Second),

		KafkaBrokers: getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "leads"),

		LogLevel:     getEnv("LOG_LEVEL", "info"),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}, loaded
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(strings.TrimSpace(val))
		if err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
