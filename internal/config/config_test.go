package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	r := cfg.Rules()
	assert.True(t, r.SlippageTolerance.Equal(decimal.RequireFromString("0.02")))
	assert.Equal(t, 9, r.MarketOpenHour)
	assert.Equal(t, "Africa/Lagos", r.Location.String())

	c, err := cfg.AuditSchedule()
	require.NoError(t, err)
	assert.Equal(t, "0 2 * * *", c.String())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "market"
storage = "postgres"

[market]
tick_interval = "10s"
slippage_tolerance = "0.05"
profit_fee_rate = "0.2"

[server]
port = 9090
api_key = "from-file"
`), 0o600))

	t.Setenv("TOKENMARKET_SERVER_API_KEY", "from-env")
	t.Setenv("TOKENMARKET_MARKET_RAND_SEED", "42")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "market", cfg.Mode)
	assert.Equal(t, 10*time.Second, cfg.Market.TickInterval.Duration)
	assert.Equal(t, 5*time.Minute, cfg.Market.EventInterval.Duration, "defaults survive")
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Server.APIKey)
	assert.Equal(t, uint64(42), cfg.Market.RandSeed)

	r := cfg.Rules()
	assert.True(t, r.SlippageTolerance.Equal(decimal.RequireFromString("0.05")))
	assert.True(t, r.ProfitFeeRate.Equal(decimal.RequireFromString("0.2")))
	assert.True(t, r.MinPrice.Equal(decimal.NewFromInt(10)), "unset amounts keep the rule")
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte(`[market]
slippage_tolerance = "lots"`), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Storage = "sqlite"
	cfg.Market.Timezone = "Mars/Olympus"
	cfg.Market.OpenHour = 18
	cfg.Audit.Cron = "every day"
	cfg.Server.Port = 0
	cfg.Mail.Enabled = true
	cfg.Mail.Host = ""

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"mode", "storage", "timezone", "open_hour", "audit", "server: port", "mail: host"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_MemoryNeedsFullMode(t *testing.T) {
	cfg := Defaults()
	cfg.Storage = "memory"
	require.NoError(t, cfg.Validate())

	cfg.Mode = "audit"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory requires mode full")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pg-secret"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Server.APIKey = "api-secret"
	cfg.Mail.Password = ""

	out := RedactedConfig(&cfg)
	assert.Equal(t, redacted, out.Postgres.Password)
	assert.Equal(t, redacted, out.S3.SecretKey)
	assert.Equal(t, redacted, out.Server.APIKey)
	assert.Empty(t, out.Mail.Password, "empty secrets stay empty")
	assert.Equal(t, "pg-secret", cfg.Postgres.Password, "original untouched")

	out.Server.CORSOrigins[0] = "mutated"
	assert.False(t, strings.EqualFold(cfg.Server.CORSOrigins[0], "mutated"))
}
