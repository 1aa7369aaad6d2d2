package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("SYNC_INTERVAL", "")

	cfg, _ := Load()
	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.StorageBackend)
	assert.Equal(t, 5*time.Minute, cfg.SyncInterval)
	assert.Equal(t, 30*time.Second, cfg.AlertCooldown)
	assert.Nil(t, cfg.Brokers())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE_BACKEND", "Redis")
	t.Setenv("SYNC_INTERVAL", "90s")
	t.Setenv("DEFAULT_LAT", "12.5")
	t.Setenv("DIAGNOSE_RATE_PER_MINUTE", "not-a-number")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")

	cfg, _ := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, BackendRedis, cfg.StorageBackend)
	assert.Equal(t, 90*time.Second, cfg.SyncInterval)
	assert.Equal(t, 12.5, cfg.DefaultLat)
	assert.Equal(t, 10, cfg.DiagnoseRatePerMinute)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers())
}
