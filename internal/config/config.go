// Package config defines the top-level configuration for the token market
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
	"github.com/alanyoungcy/tokenmarket/internal/schedule"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TOKENMARKET_* environment variables.
type Config struct {
	Storage    string           `toml:"storage"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	ClickHouse ClickHouseConfig `toml:"clickhouse"`
	S3         S3Config         `toml:"s3"`
	Market     MarketConfig     `toml:"market"`
	Audit      AuditConfig      `toml:"audit"`
	Mail       MailConfig       `toml:"mail"`
	Notify     NotifyConfig     `toml:"notify"`
	Server     ServerConfig     `toml:"server"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN             string   `toml:"dsn"`
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	Database        string   `toml:"database"`
	User            string   `toml:"user"`
	Password        string   `toml:"password"`
	SSLMode         string   `toml:"ssl_mode"`
	PoolMaxConns    int      `toml:"pool_max_conns"`
	PoolMinConns    int      `toml:"pool_min_conns"`
	MaxConnLifetime duration `toml:"max_conn_lifetime"`
	RunMigrations   bool     `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	QuoteTTL   duration `toml:"quote_ttl"`
}

// ClickHouseConfig holds the price history connection.
type ClickHouseConfig struct {
	Enabled bool   `toml:"enabled"`
	DSN     string `toml:"dsn"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// MarketConfig tunes the price scheduler, the event generator and the trade
// executor. Empty decimals keep the built-in rule.
type MarketConfig struct {
	TickInterval          duration `toml:"tick_interval"`
	EventInterval         duration `toml:"event_interval"`
	Timezone              string   `toml:"timezone"`
	OpenHour              int      `toml:"open_hour"`
	CloseHour             int      `toml:"close_hour"`
	MinPrice              amount   `toml:"min_price"`
	MaxPrice              amount   `toml:"max_price"`
	SlippageTolerance     amount   `toml:"slippage_tolerance"`
	ProfitFeeRate         amount   `toml:"profit_fee_rate"`
	ProfitNotifyThreshold amount   `toml:"profit_notify_threshold"`
	// RandSeed fixes the price and event randomness; 0 seeds from entropy.
	RandSeed uint64 `toml:"rand_seed"`
	// SeedCatalog loads the university catalog at startup when the market is
	// empty.
	SeedCatalog bool `toml:"seed_catalog"`
}

// AuditConfig schedules the balance integrity check.
type AuditConfig struct {
	Cron string `toml:"cron"`
}

// MailConfig configures the SMTP relay and the delivery queue. When disabled
// mail is written to the log instead.
type MailConfig struct {
	Enabled   bool   `toml:"enabled"`
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	From      string `toml:"from"`
	StartTLS  bool   `toml:"start_tls"`
	QueueSize int    `toml:"queue_size"`
	Workers   int    `toml:"workers"`
	Attempts  int    `toml:"attempts"`
}

// NotifyConfig holds operator alert channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	AdminKey    string   `toml:"admin_key"`
	// DepositSecret is the shared HMAC secret of the payment gateway.
	DepositSecret string `toml:"deposit_secret"`
	// TradeRateLimit is the number of trades a user may submit per
	// TradeRateWindow. Zero disables the limit.
	TradeRateLimit  int      `toml:"trade_rate_limit"`
	TradeRateWindow duration `toml:"trade_rate_window"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// amount is an optional decimal written as a TOML string ("0.02").
type amount struct {
	decimal.Decimal
	Set bool
}

func (a *amount) UnmarshalText(text []byte) error {
	d, err := decimal.NewFromString(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	a.Decimal, a.Set = d, true
	return nil
}

func (a amount) MarshalText() ([]byte, error) {
	if !a.Set {
		return []byte{}, nil
	}
	return []byte(a.Decimal.String()), nil
}

func (a amount) or(def decimal.Decimal) decimal.Decimal {
	if a.Set {
		return a.Decimal
	}
	return def
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Storage: "postgres",
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "tokenmarket",
			User:            "postgres",
			SSLMode:         "disable",
			PoolMaxConns:    20,
			PoolMinConns:    2,
			MaxConnLifetime: duration{time.Hour},
			RunMigrations:   true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			QuoteTTL:   duration{10 * time.Minute},
		},
		ClickHouse: ClickHouseConfig{
			DSN: "clickhouse://default@localhost:9000/default",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tokenmarket-reports",
			ForcePathStyle: true,
		},
		Market: MarketConfig{
			TickInterval:  duration{30 * time.Second},
			EventInterval: duration{5 * time.Minute},
			Timezone:      "Africa/Lagos",
			OpenHour:      9,
			CloseHour:     17,
		},
		Audit: AuditConfig{
			Cron: "0 2 * * *",
		},
		Mail: MailConfig{
			Port:      587,
			From:      "noreply@tokenmarket.local",
			StartTLS:  true,
			QueueSize: 256,
			Workers:   2,
			Attempts:  3,
		},
		Notify: NotifyConfig{
			Events: []string{"integrity_discrepancy", "audit_failed", "scheduler_error"},
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			TradeRateLimit:  30,
			TradeRateWindow: duration{time.Minute},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"market": true,
	"audit":  true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validStorage = map[string]bool{
	"postgres": true,
	"memory":   true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, market, audit, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if !validStorage[strings.ToLower(c.Storage)] {
		errs = append(errs, fmt.Sprintf("unknown storage %q (valid: postgres, memory)", c.Storage))
	}

	// The in-memory store is private to one process.
	if strings.EqualFold(c.Storage, "memory") && !strings.EqualFold(c.Mode, "full") {
		errs = append(errs, "storage: memory requires mode full")
	}

	if strings.EqualFold(c.Storage, "postgres") {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.ClickHouse.Enabled && !strings.HasPrefix(c.ClickHouse.DSN, "clickhouse://") {
		errs = append(errs, "clickhouse: dsn must start with clickhouse://")
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	m := c.Market
	if m.TickInterval.Duration <= 0 {
		errs = append(errs, "market: tick_interval must be > 0")
	}
	if m.EventInterval.Duration <= 0 {
		errs = append(errs, "market: event_interval must be > 0")
	}
	if _, err := time.LoadLocation(m.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("market: unknown timezone %q", m.Timezone))
	}
	if m.OpenHour < 0 || m.CloseHour > 24 || m.OpenHour >= m.CloseHour {
		errs = append(errs, fmt.Sprintf("market: open_hour %d and close_hour %d must satisfy 0 <= open < close <= 24", m.OpenHour, m.CloseHour))
	}
	for name, a := range map[string]amount{
		"min_price":               m.MinPrice,
		"max_price":               m.MaxPrice,
		"slippage_tolerance":      m.SlippageTolerance,
		"profit_fee_rate":         m.ProfitFeeRate,
		"profit_notify_threshold": m.ProfitNotifyThreshold,
	} {
		if a.Set && a.IsNegative() {
			errs = append(errs, fmt.Sprintf("market: %s must not be negative", name))
		}
	}
	if m.ProfitFeeRate.Set && m.ProfitFeeRate.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, "market: profit_fee_rate must be <= 1")
	}
	if m.MinPrice.Set && m.MaxPrice.Set && !m.MinPrice.LessThan(m.MaxPrice.Decimal) {
		errs = append(errs, "market: min_price must be below max_price")
	}

	if _, err := schedule.Parse(c.Audit.Cron, time.UTC); err != nil {
		errs = append(errs, fmt.Sprintf("audit: %v", err))
	}

	if c.Mail.Enabled {
		if c.Mail.Host == "" {
			errs = append(errs, "mail: host must not be empty when enabled")
		}
		if c.Mail.From == "" {
			errs = append(errs, "mail: from must not be empty when enabled")
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.TradeRateLimit < 0 {
		errs = append(errs, "server: trade_rate_limit must be >= 0")
	}
	if c.Server.TradeRateLimit > 0 && c.Server.TradeRateWindow.Duration <= 0 {
		errs = append(errs, "server: trade_rate_window must be > 0 when trade_rate_limit is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Rules builds the price rules from the market section on top of
// domain.DefaultPriceRules. Call it only on a validated Config.
func (c *Config) Rules() domain.PriceRules {
	r := domain.DefaultPriceRules()
	m := c.Market
	if loc, err := time.LoadLocation(m.Timezone); err == nil {
		r.Location = loc
	}
	r.MarketOpenHour = m.OpenHour
	r.MarketCloseHour = m.CloseHour
	r.MinPrice = m.MinPrice.or(r.MinPrice)
	r.MaxPrice = m.MaxPrice.or(r.MaxPrice)
	r.SlippageTolerance = m.SlippageTolerance.or(r.SlippageTolerance)
	r.ProfitFeeRate = m.ProfitFeeRate.or(r.ProfitFeeRate)
	r.ProfitNotifyThreshold = m.ProfitNotifyThreshold.or(r.ProfitNotifyThreshold)
	return r
}

// AuditSchedule parses the audit cron in the market timezone.
func (c *Config) AuditSchedule() (schedule.Cron, error) {
	loc, err := time.LoadLocation(c.Market.Timezone)
	if err != nil {
		return schedule.Cron{}, fmt.Errorf("config: market timezone: %w", err)
	}
	return schedule.Parse(c.Audit.Cron, loc)
}
