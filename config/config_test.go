package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "development", cfg.Environment)
	require.Equal(t, "0.0.0.0:8080", cfg.Server.Address)
	require.Equal(t, 30*time.Second, cfg.Server.Timeout)
	require.Equal(t, 50, cfg.DB.MaxOpenConns)
	require.True(t, cfg.Redis.Enabled)
	require.Equal(t, "order-events", cfg.ServiceBus.QueueName)
	require.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	require.False(t, cfg.SMS.Enabled)
	require.Equal(t, "courier-queue.db", cfg.Courier.QueuePath)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
environment: staging
server:
  address: "127.0.0.1:9090"
  timeout: 45s
sms:
  enabled: true
  account_sid: AC123
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	require.Equal(t, "staging", cfg.Environment)
	require.Equal(t, "127.0.0.1:9090", cfg.Server.Address)
	require.Equal(t, 45*time.Second, cfg.Server.Timeout)
	require.True(t, cfg.SMS.Enabled)
	require.Equal(t, "AC123", cfg.SMS.AccountSID)

	// Untouched sections keep their defaults.
	require.Equal(t, 50, cfg.DB.MaxOpenConns)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("FRESHCART_ENVIRONMENT", "production")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "production", cfg.Environment)
}

func TestLoadConfigRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{{nope"), 0o644))

	_, err := LoadConfig(dir)
	require.Error(t, err)
}

func TestFormatIndex(t *testing.T) {
	require.Equal(t, "freshcart-orders", FormatIndex(ElasticConfig{Prefix: "freshcart"}, "orders"))
}
