package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaylee/stocklab-trader/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TRADING_MODE", "dry-run")
	t.Setenv("DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, domain.ModeDryRun, cfg.Mode)
	assert.False(t, cfg.AutoTrading)
	assert.Equal(t, int64(300000), cfg.UnitAmountKRW)
	assert.Equal(t, 200.0, cfg.UnitAmountUSD)
	assert.Equal(t, 10, cfg.MaxPositions)
	assert.Equal(t, 2, cfg.MaxPositionsSector)
	assert.InDelta(t, 0.4, cfg.SectorConcentration, 1e-9)
	assert.Equal(t, 3, cfg.GlobalConcurrency)
	assert.Equal(t, 30.0, cfg.OperationTimeout.Seconds())
	assert.Equal(t, 60.0, cfg.PollInterval.Seconds())
	assert.Empty(t, cfg.WebhookURLs)
}

func TestLoadDemoRequiresCredentials(t *testing.T) {
	t.Setenv("TRADING_MODE", "demo")
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("KIS_DEMO_APP_KEY", "")
	t.Setenv("KIS_DEMO_APP_SECRET", "")
	t.Setenv("KIS_DEMO_ACCOUNT_NO", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KIS credentials required")
}

func TestLoadDemoComplete(t *testing.T) {
	t.Setenv("TRADING_MODE", "demo")
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("KIS_DEMO_APP_KEY", "key")
	t.Setenv("KIS_DEMO_APP_SECRET", "secret")
	t.Setenv("KIS_DEMO_ACCOUNT_NO", "12345678-01")
	t.Setenv("PUBSUB_PROJECT_ID", "proj")
	t.Setenv("PUBSUB_SUBSCRIPTION_ID", "sub")
	t.Setenv("WEBHOOK_URLS", "https://hooks.example.com/a, https://hooks.example.com/b")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "key", cfg.KIS.AppKey)
	assert.Equal(t, []string{"https://hooks.example.com/a", "https://hooks.example.com/b"}, cfg.WebhookURLs)

	cano, product := cfg.KIS.AccountParts()
	assert.Equal(t, "12345678", cano)
	assert.Equal(t, "01", product)
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := &Config{Mode: "paper", GlobalConcurrency: 3}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRADING_MODE")
}

func TestValidateBounds(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.GlobalConcurrency = 0 },
			wantErr: "COORDINATOR_GLOBAL_CONCURRENCY",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.OperationTimeout = 0 },
			wantErr: "COORDINATOR_TIMEOUT_SECONDS",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.PollInterval = 0 },
			wantErr: "SCHEDULER_POLL_INTERVAL_SECONDS",
		},
		{
			name:    "sector ratio above one",
			mutate:  func(c *Config) { c.SectorConcentration = 1.5 },
			wantErr: "SECTOR_CONCENTRATION_LIMIT",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{
				Mode:                domain.ModeDryRun,
				GlobalConcurrency:   3,
				OperationTimeout:    30 * time.Second,
				PollInterval:        60 * time.Second,
				MaxPositions:        10,
				SectorConcentration: 0.4,
			}
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
