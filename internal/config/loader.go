package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path (if non-empty), merges it on
// top of the built-in defaults, applies TOKENMARKET_* environment variable
// overrides, and returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TOKENMARKET_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Storage, "TOKENMARKET_STORAGE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TOKENMARKET_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "TOKENMARKET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TOKENMARKET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TOKENMARKET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TOKENMARKET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TOKENMARKET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TOKENMARKET_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TOKENMARKET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TOKENMARKET_POSTGRES_POOL_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "TOKENMARKET_POSTGRES_MAX_CONN_LIFETIME")
	setBool(&cfg.Postgres.RunMigrations, "TOKENMARKET_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TOKENMARKET_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TOKENMARKET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TOKENMARKET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TOKENMARKET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TOKENMARKET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TOKENMARKET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TOKENMARKET_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.QuoteTTL, "TOKENMARKET_REDIS_QUOTE_TTL")

	// ── ClickHouse ──
	setBool(&cfg.ClickHouse.Enabled, "TOKENMARKET_CLICKHOUSE_ENABLED")
	setStr(&cfg.ClickHouse.DSN, "TOKENMARKET_CLICKHOUSE_DSN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TOKENMARKET_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TOKENMARKET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TOKENMARKET_S3_REGION")
	setStr(&cfg.S3.Bucket, "TOKENMARKET_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "TOKENMARKET_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "TOKENMARKET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TOKENMARKET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TOKENMARKET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TOKENMARKET_S3_FORCE_PATH_STYLE")

	// ── Market ──
	setDuration(&cfg.Market.TickInterval, "TOKENMARKET_MARKET_TICK_INTERVAL")
	setDuration(&cfg.Market.EventInterval, "TOKENMARKET_MARKET_EVENT_INTERVAL")
	setStr(&cfg.Market.Timezone, "TOKENMARKET_MARKET_TIMEZONE")
	setInt(&cfg.Market.OpenHour, "TOKENMARKET_MARKET_OPEN_HOUR")
	setInt(&cfg.Market.CloseHour, "TOKENMARKET_MARKET_CLOSE_HOUR")
	setAmount(&cfg.Market.SlippageTolerance, "TOKENMARKET_MARKET_SLIPPAGE_TOLERANCE")
	setAmount(&cfg.Market.ProfitFeeRate, "TOKENMARKET_MARKET_PROFIT_FEE_RATE")
	setAmount(&cfg.Market.ProfitNotifyThreshold, "TOKENMARKET_MARKET_PROFIT_NOTIFY_THRESHOLD")
	setUint64(&cfg.Market.RandSeed, "TOKENMARKET_MARKET_RAND_SEED")
	setBool(&cfg.Market.SeedCatalog, "TOKENMARKET_MARKET_SEED_CATALOG")

	// ── Audit ──
	setStr(&cfg.Audit.Cron, "TOKENMARKET_AUDIT_CRON")

	// ── Mail ──
	setBool(&cfg.Mail.Enabled, "TOKENMARKET_MAIL_ENABLED")
	setStr(&cfg.Mail.Host, "TOKENMARKET_MAIL_HOST")
	setInt(&cfg.Mail.Port, "TOKENMARKET_MAIL_PORT")
	setStr(&cfg.Mail.Username, "TOKENMARKET_MAIL_USERNAME")
	setStr(&cfg.Mail.Password, "TOKENMARKET_MAIL_PASSWORD")
	setStr(&cfg.Mail.From, "TOKENMARKET_MAIL_FROM")
	setBool(&cfg.Mail.StartTLS, "TOKENMARKET_MAIL_START_TLS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TOKENMARKET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TOKENMARKET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TOKENMARKET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TOKENMARKET_NOTIFY_EVENTS")

	// ── Server ──
	setInt(&cfg.Server.Port, "TOKENMARKET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TOKENMARKET_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "TOKENMARKET_SERVER_API_KEY")
	setStr(&cfg.Server.AdminKey, "TOKENMARKET_SERVER_ADMIN_KEY")
	setStr(&cfg.Server.DepositSecret, "TOKENMARKET_SERVER_DEPOSIT_SECRET")
	setInt(&cfg.Server.TradeRateLimit, "TOKENMARKET_SERVER_TRADE_RATE_LIMIT")
	setDuration(&cfg.Server.TradeRateWindow, "TOKENMARKET_SERVER_TRADE_RATE_WINDOW")

	// ── Top-level ──
	setStr(&cfg.Mode, "TOKENMARKET_MODE")
	setStr(&cfg.LogLevel, "TOKENMARKET_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setAmount(dst *amount, key string) {
	if v := os.Getenv(key); v != "" {
		var a amount
		if err := a.UnmarshalText([]byte(v)); err == nil {
			*dst = a
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
