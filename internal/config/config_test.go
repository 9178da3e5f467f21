package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "solarledger.db", cfg.Store.DatabaseURL)
	assert.Empty(t, cfg.Contract.Path)
	assert.Equal(t, int64(4096), cfg.Anthropic.MaxTokens)
	assert.Equal(t, 120, cfg.Extract.TimeoutSecs)
	assert.Equal(t, 30, cfg.Extract.RatePerMinute)
	assert.Equal(t, 3, cfg.Extract.MaxAttempts)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrentDocuments)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SOLARLEDGER_STORE_DRIVER", "postgres")
	t.Setenv("SOLARLEDGER_STORE_DATABASE_URL", "postgres://ledger@db/solarledger")
	t.Setenv("SOLARLEDGER_ANTHROPIC_KEY", "sk-test")
	t.Setenv("SOLARLEDGER_BATCH_MAX_CONCURRENT_DOCUMENTS", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://ledger@db/solarledger", cfg.Store.DatabaseURL)
	assert.Equal(t, "sk-test", cfg.Anthropic.Key)
	assert.Equal(t, 8, cfg.Batch.MaxConcurrentDocuments)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "shouting", Format: "json"})
	assert.Error(t, err)
}
