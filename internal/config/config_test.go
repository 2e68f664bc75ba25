package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "simulation", cfg.Environment)
	assert.False(t, cfg.Production())
	assert.Equal(t, "info", cfg.LogLevel)

	assert.Equal(t, []string{"localhost:9092"}, cfg.Broker.Brokers)
	assert.Equal(t, "almengine", cfg.Broker.GroupPrefix)

	assert.Equal(t, "md.security-prices", cfg.Queues.Prices)
	assert.Equal(t, "md.fx-rates", cfg.Queues.FXRates)
	assert.Equal(t, "oms.order-status", cfg.Queues.OrderStatus)
	assert.Equal(t, "oms.route-status", cfg.Queues.RouteStatus)
	assert.Equal(t, "oms.fills", cfg.Queues.Fills)
	assert.Equal(t, "oms.instructions", cfg.Queues.Instructions)

	assert.Equal(t, 15*time.Second, cfg.Engine.RefIndexInterval)
	assert.Equal(t, 30*time.Second, cfg.Engine.DiscountInterval)
	assert.False(t, cfg.Engine.UseLastWhenClosed)

	assert.Equal(t, "forecast:", cfg.Redis.ForecastPrefix)
	assert.Equal(t, 9090, cfg.Ops.Port)
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
environment: production
log_level: debug
broker:
  brokers:
    - kafka-1:9092
    - kafka-2:9092
queues:
  prices: md.prices.v2
engine:
  ref_index_interval: 5s
  use_last_when_closed: true
ops:
  port: 8088
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Production())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Broker.Brokers)
	assert.Equal(t, "md.prices.v2", cfg.Queues.Prices)
	assert.Equal(t, 5*time.Second, cfg.Engine.RefIndexInterval)
	assert.True(t, cfg.Engine.UseLastWhenClosed)
	assert.Equal(t, 8088, cfg.Ops.Port)

	// Untouched keys keep their defaults.
	assert.Equal(t, "oms.fills", cfg.Queues.Fills)
	assert.Equal(t, 30*time.Second, cfg.Engine.DiscountInterval)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("ALM_LOG_LEVEL", "warn")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}
