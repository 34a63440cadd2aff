package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 3*time.Second, cfg.CheckDeadline)
	assert.Equal(t, 1500*time.Millisecond, cfg.ProviderTimeout)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 70, cfg.ConfidenceThreshold)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, "sessions", cfg.StorageContainer)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CHECK_DEADLINE", "5s")
	t.Setenv("WORKERS", "16")
	t.Setenv("CONFIDENCE_THRESHOLD", "85")
	t.Setenv("TRUSTED_DOMAINS", "stats.example.org,factcheck.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.CheckDeadline)
	assert.Equal(t, 16, cfg.Workers)
	assert.Equal(t, 85, cfg.ConfidenceThreshold)
	assert.Equal(t, []string{"stats.example.org", "factcheck.example.com"}, cfg.TrustedDomains)
}

func TestLoad_ValidatesProviderTimeout(t *testing.T) {
	t.Setenv("CHECK_DEADLINE", "1s")
	t.Setenv("PROVIDER_TIMEOUT", "2s")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ValidatesThresholdRange(t *testing.T) {
	t.Setenv("CONFIDENCE_THRESHOLD", "150")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_EmailRequiresSMTP(t *testing.T) {
	t.Setenv("ALERT_EMAIL", "oncall@example.com")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_USERNAME", "alerts")
	t.Setenv("SMTP_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "oncall@example.com", cfg.AlertEmail)
}
