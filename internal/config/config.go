package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Pipeline configuration
	CheckDeadline   time.Duration // wall-clock budget per claim check
	ProviderTimeout time.Duration // per-adapter search timeout
	Workers         int           // global worker pool size
	MaxAttempts     int
	RetryBaseDelay  time.Duration
	DedupWindow     time.Duration // identical-claim suppression window
	JobRetention    time.Duration // how long terminal jobs stay pollable

	// Verdict configuration
	ConfidenceThreshold int      // results below this score are flagged
	TrustedDomains      []string // extra known-reliable outlets, comma separated

	// Session configuration
	SessionIdleTimeout time.Duration
	SubscriberBuffer   int

	// Provider credentials
	NewsAPIKey         string
	RedditClientID     string
	RedditClientSecret string
	ProviderRateLimit  float64 // requests/sec per provider
	ProviderRateBurst  int

	// Speech synthesis collaborator
	TTSEndpoint string
	TTSAPIKey   string

	// Azure Storage configuration (session archive)
	StorageAccount   string
	StorageContainer string

	// Alerting configuration
	AlertWebhookURL string
	AlertEmail      string
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		CheckDeadline:   getDurationEnv("CHECK_DEADLINE", 3*time.Second),
		ProviderTimeout: getDurationEnv("PROVIDER_TIMEOUT", 1500*time.Millisecond),
		Workers:         getIntEnv("WORKERS", 8),
		MaxAttempts:     getIntEnv("MAX_ATTEMPTS", 3),
		RetryBaseDelay:  getDurationEnv("RETRY_BASE_DELAY", 150*time.Millisecond),
		DedupWindow:     getDurationEnv("DEDUP_WINDOW", 30*time.Second),
		JobRetention:    getDurationEnv("JOB_RETENTION", 5*time.Minute),

		ConfidenceThreshold: getIntEnv("CONFIDENCE_THRESHOLD", 70),
		TrustedDomains:      getSliceEnv("TRUSTED_DOMAINS", nil),

		SessionIdleTimeout: getDurationEnv("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SubscriberBuffer:   getIntEnv("SUBSCRIBER_BUFFER", 64),

		NewsAPIKey:         getEnv("NEWS_API_KEY", ""),
		RedditClientID:     getEnv("REDDIT_CLIENT_ID", ""),
		RedditClientSecret: getEnv("REDDIT_CLIENT_SECRET", ""),
		ProviderRateLimit:  getFloatEnv("PROVIDER_RATE_LIMIT", 5.0),
		ProviderRateBurst:  getIntEnv("PROVIDER_RATE_BURST", 10),

		TTSEndpoint: getEnv("TTS_ENDPOINT", ""),
		TTSAPIKey:   getEnv("TTS_API_KEY", ""),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "sessions"),

		AlertWebhookURL: getEnv("ALERT_WEBHOOK_URL", ""),
		AlertEmail:      getEnv("ALERT_EMAIL", ""),
		SMTPHost:        getEnv("SMTP_HOST", ""),
		SMTPPort:        getIntEnv("SMTP_PORT", 587),
		SMTPUsername:    getEnv("SMTP_USERNAME", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("WORKERS must be positive")
	}

	if c.MaxAttempts <= 0 {
		return fmt.Errorf("MAX_ATTEMPTS must be positive")
	}

	if c.CheckDeadline <= 0 {
		return fmt.Errorf("CHECK_DEADLINE must be positive")
	}

	if c.ProviderTimeout <= 0 || c.ProviderTimeout > c.CheckDeadline {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive and no larger than CHECK_DEADLINE")
	}

	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 100 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be between 0 and 100")
	}

	if c.AlertEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when ALERT_EMAIL is set")
		}
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
