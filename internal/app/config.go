package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lukasbauer/ivrnav/internal/session"
)

type Config struct {
	HTTPAddr    string
	LogLevel    string
	LogFormat   string
	SentryDSN   string
	Environment string

	// Navigation limits
	MaxRetries  int
	MaxLevels   int
	WelcomeNode string

	// Session lifecycle
	SessionIdleTimeout   time.Duration
	SessionSweepInterval time.Duration

	// Request limits
	MaxBodyBytes int64

	// Debug endpoints. Empty leaves them unauthenticated.
	JWTSecret string

	// Optional sinks
	DatabaseURL       string
	KafkaBrokers      []string
	KafkaTopic        string
	DiscordWebhookURL string
}

func LoadConfigFromEnv() Config {
	return Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":3000"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogFormat:   getenv("LOG_FORMAT", "json"),
		SentryDSN:   getenv("SENTRY_DSN", ""),
		Environment: getenv("ENVIRONMENT", "development"),

		// Navigation limits
		MaxRetries:  getenvIntClamped("IVR_MAX_RETRIES", session.DefaultMaxRetries, 1, 20),
		MaxLevels:   getenvIntClamped("IVR_MAX_LEVELS", session.DefaultMaxLevels, 1, 50),
		WelcomeNode: getenv("WELCOME_NODE_ID", session.DefaultWelcomeNode),

		// Session lifecycle
		SessionIdleTimeout:   getenvDuration("SESSION_IDLE_TIMEOUT", session.DefaultIdleTimeout),
		SessionSweepInterval: getenvDuration("SESSION_SWEEP_INTERVAL", session.DefaultSweepInterval),

		MaxBodyBytes: int64(getenvIntClamped("MAX_BODY_BYTES", 64<<10, 1<<10, 1<<20)),

		JWTSecret: os.Getenv("JWT_SECRET"),

		// Optional sinks
		DatabaseURL:       getenv("DATABASE_URL", ""),
		KafkaBrokers:      parseList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:        getenv("KAFKA_TOPIC", "ivr.decisions"),
		DiscordWebhookURL: getenv("DISCORD_WEBHOOK_URL", ""),
	}
}

func parseList(s string) []string {
	if s == "" {
		return nil
	}
	var items []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return items
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntClamped(k string, def, lo, hi int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return max(lo, min(n, hi))
}

// getenvDuration accepts Go durations ("90s") and bare seconds ("90").
// Non-positive values fall back to def.
func getenvDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return def
		}
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
