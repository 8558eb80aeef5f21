package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	s3blob "github.com/alanyoungcy/tokenmarket/internal/blob/s3"
	"github.com/alanyoungcy/tokenmarket/internal/cache/redis"
	"github.com/alanyoungcy/tokenmarket/internal/config"
	"github.com/alanyoungcy/tokenmarket/internal/domain"
	"github.com/alanyoungcy/tokenmarket/internal/notify"
	"github.com/alanyoungcy/tokenmarket/internal/server/handler"
	"github.com/alanyoungcy/tokenmarket/internal/store/clickhouse"
	"github.com/alanyoungcy/tokenmarket/internal/store/memory"
	"github.com/alanyoungcy/tokenmarket/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function. Cache and blob fields are nil when their backend is
// disabled.
type Dependencies struct {
	// Stores
	UnitOfWork   domain.UnitOfWork
	Tokens       domain.TokenStore
	Markets      domain.MarketStore
	Events       domain.EventStore
	Wallets      domain.WalletStore
	Positions    domain.PositionStore
	Transactions domain.TransactionStore
	Users        domain.UserDirectory
	Audit        domain.AuditStore
	History      domain.PriceHistoryStore

	// Caches
	Quotes      domain.QuoteCache
	RateLimiter domain.RateLimiter
	Locks       domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	Blobs domain.BlobWriter

	// Notifications
	Notifier *notify.Notifier
	Mail     *notify.Dispatcher

	// Health probes keyed by dependency name.
	Health map[string]handler.Pinger

	Clock clockwork.Clock
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Health: make(map[string]handler.Pinger),
		Clock:  clockwork.NewRealClock(),
	}

	// --- Primary store ---
	switch cfg.Storage {
	case "memory":
		logger.WarnContext(ctx, "wire: using in-memory storage; state is lost on exit")
		s := memory.New()
		deps.UnitOfWork = s
		deps.Tokens = s.Tokens()
		deps.Markets = s.Markets()
		deps.Events = s.Events()
		deps.Wallets = s.Wallets()
		deps.Positions = s.Positions()
		deps.Transactions = s.Transactions()
		deps.Users = s.Users()
		deps.Audit = s.Audit()
		deps.History = s.PriceHistory()

	default:
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:             cfg.Postgres.DSN,
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			Database:        cfg.Postgres.Database,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxConns:        cfg.Postgres.PoolMaxConns,
			MinConns:        cfg.Postgres.PoolMinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime.Duration,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)
		deps.Health["postgres"] = pgClient

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.UnitOfWork = postgres.NewUnitOfWork(pool)
		deps.Tokens = postgres.NewTokenStore(pool)
		deps.Markets = postgres.NewMarketStore(pool)
		deps.Events = postgres.NewEventStore(pool)
		deps.Wallets = postgres.NewWalletStore(pool)
		deps.Positions = postgres.NewPositionStore(pool)
		deps.Transactions = postgres.NewTransactionStore(pool)
		deps.Users = postgres.NewUserDirectory(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.History = postgres.NewPriceHistoryStore(pool)
	}

	// --- ClickHouse price history ---
	if cfg.ClickHouse.Enabled {
		chConn, err := clickhouse.NewConn(ctx, cfg.ClickHouse.DSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: clickhouse: %w", err)
		}
		closers = append(closers, func() { _ = chConn.Close() })
		if err := chConn.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: clickhouse schema: %w", err)
		}
		deps.History = clickhouse.NewPriceHistoryStore(chConn)
		deps.Health["clickhouse"] = chConn
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Health["redis"] = redisClient

		deps.Quotes = redis.NewQuoteCache(redisClient, cfg.Redis.QuoteTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient, deps.Clock)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	} else {
		if cfg.Mode != "full" {
			logger.WarnContext(ctx, "wire: redis disabled; live updates stay inside this process",
				slog.String("mode", cfg.Mode),
			)
		}
		deps.SignalBus = memory.NewSignalBus()
	}

	// --- S3 blob storage (integrity reports) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Blobs = s3blob.NewWriter(s3Client)
		deps.Health["s3"] = s3Client
	}

	// --- Operator alerts ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- User mail ---
	var mailer notify.Mailer
	if cfg.Mail.Enabled {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			StartTLS: cfg.Mail.StartTLS,
			Timeout:  15 * time.Second,
		})
	} else {
		mailLog := logger.With(slog.String("component", "log_mailer"))
		mailer = notify.NewLogMailer(func(m notify.Mail) {
			mailLog.Info("mail not sent (relay disabled)",
				slog.String("to", m.To),
				slog.String("subject", m.Subject),
			)
		})
	}
	deps.Mail = notify.NewDispatcher(mailer, deps.Users, notify.DispatcherConfig{
		QueueSize: cfg.Mail.QueueSize,
		Workers:   cfg.Mail.Workers,
		Attempts:  cfg.Mail.Attempts,
		Backoff:   2 * time.Second,
	}, logger)

	return deps, cleanup, nil
}
