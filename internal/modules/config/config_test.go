package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, int64(42), cfg.Telegram.ChatID)
	assert.Equal(t, 2, cfg.Broker.RetryAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Broker.RetryBackoff)
	assert.Equal(t, 10*time.Second, cfg.Broker.Timeout, "default kept when absent from file")
	assert.Equal(t, 10*time.Minute, cfg.Market.CloseBuySuppress)
	assert.Equal(t, 5*time.Minute, cfg.Market.CloseLiquidate)
	assert.Equal(t, "Asia/Hong_Kong", cfg.Market.Timezone)
	assert.Len(t, cfg.Market.Sessions, 2)
	assert.Equal(t, 45*time.Second, cfg.Chase.Cooldown)

	require.Len(t, cfg.Monitors, 1)
	m := cfg.Monitors[0]
	assert.Equal(t, "HSI.HK", m.Symbol)
	assert.Equal(t, 2, m.Signals["buy_long"].MinSatisfied)
	assert.Equal(t, 2, m.Signals["sell_long"].MinSatisfied, "min_satisfied defaults to all conditions")
	assert.Equal(t, 5*time.Second, m.Verify.Tolerance)
	assert.Equal(t, 30*time.Second, m.Seat.SearchInterval)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "env-token")
	t.Setenv("DATABASE_DSN", "postgres://u:p@localhost:5432/warrants")
	t.Setenv("WARRANT_BROKER_ACCESS_TOKEN", "secret")

	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, "postgres://u:p@localhost:5432/warrants", cfg.DB)
	assert.Equal(t, "secret", cfg.Broker.AccessToken)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsEmptyMonitors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitor")
}

func TestDumpMasksSecrets(t *testing.T) {
	t.Setenv("BROKER_APP_SECRET", "very-secret")
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	require.NoError(t, err)

	out, err := cfg.Dump()
	require.NoError(t, err)
	assert.NotContains(t, out, "very-secret")
	assert.NotContains(t, out, "file-token")
	assert.Contains(t, out, "HSI.HK")
}
