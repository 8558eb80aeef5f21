package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
	"github.com/alanyoungcy/tokenmarket/internal/server"
	"github.com/alanyoungcy/tokenmarket/internal/server/handler"
	"github.com/alanyoungcy/tokenmarket/internal/server/ws"
	"github.com/alanyoungcy/tokenmarket/internal/service"
)

// services holds the service layer built from Dependencies.
type services struct {
	feed      *service.MarketFeed
	market    *service.MarketService
	trades    *service.TradeExecutor
	wallets   *service.WalletService
	portfolio *service.PortfolioService
	scheduler *service.PriceScheduler
	events    *service.EventGenerator
	auditor   *service.IntegrityAuditor
}

func (a *App) buildServices(deps *Dependencies) *services {
	rules := a.cfg.Rules()

	var rng *service.Rand
	if seed := a.cfg.Market.RandSeed; seed != 0 {
		rng = service.NewSeededRand(seed)
	} else {
		rng = service.NewRand(nil)
	}

	feed := service.NewMarketFeed(deps.Quotes, deps.SignalBus, deps.History, a.logger)
	return &services{
		feed: feed,
		market: service.NewMarketService(
			deps.Tokens, deps.Markets, deps.History, deps.UnitOfWork, feed, deps.Clock, a.logger,
		),
		trades: service.NewTradeExecutor(
			deps.UnitOfWork, feed, deps.Audit, deps.Mail, rules, deps.Clock, a.logger,
		),
		wallets: service.NewWalletService(deps.UnitOfWork, deps.Users, deps.Audit, deps.Clock, a.logger),
		portfolio: service.NewPortfolioService(
			deps.Wallets, deps.Positions, deps.Tokens, deps.Markets, deps.Transactions, a.logger,
		),
		scheduler: service.NewPriceScheduler(
			deps.Tokens, deps.Events, deps.UnitOfWork, feed, deps.Locks, rules, rng, deps.Clock,
			a.cfg.Market.TickInterval.Duration, a.logger,
		).WithNotifier(deps.Notifier),
		events: service.NewEventGenerator(
			deps.Tokens, deps.Events, feed, deps.Notifier, domain.DefaultEventTemplates(), rng, deps.Clock,
			a.cfg.Market.EventInterval.Duration, a.logger,
		),
		auditor: service.NewIntegrityAuditor(
			deps.Wallets, deps.Transactions, deps.Audit, deps.Blobs, deps.Notifier, feed, deps.Clock, a.logger,
		),
	}
}

// ServerMode serves the HTTP API and the WebSocket stream. Mail produced by
// trades is delivered from this process.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	g, ctx := errgroup.WithContext(ctx)
	svc := a.buildServices(deps)
	a.startHTTPServer(ctx, g, deps, svc)
	g.Go(func() error { return deps.Mail.Run(ctx) })
	return g.Wait()
}

// MarketMode runs the price scheduler and the event generator.
func (a *App) MarketMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting market mode")
	g, ctx := errgroup.WithContext(ctx)
	svc := a.buildServices(deps)
	if err := a.seedCatalog(ctx, svc); err != nil {
		return fmt.Errorf("market mode: %w", err)
	}
	a.startMarket(ctx, g, svc)
	return g.Wait()
}

// AuditMode runs the integrity check on its cron schedule.
func (a *App) AuditMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting audit mode")
	g, ctx := errgroup.WithContext(ctx)
	svc := a.buildServices(deps)
	if err := a.startAudit(ctx, g, svc); err != nil {
		return fmt.Errorf("audit mode: %w", err)
	}
	return g.Wait()
}

// FullMode runs every component in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)
	svc := a.buildServices(deps)
	if err := a.seedCatalog(ctx, svc); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	if err := a.startAudit(ctx, g, svc); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	a.startMarket(ctx, g, svc)
	a.startHTTPServer(ctx, g, deps, svc)
	g.Go(func() error { return deps.Mail.Run(ctx) })
	return g.Wait()
}

// seedCatalog loads the university catalog when enabled. An existing
// catalog is left alone.
func (a *App) seedCatalog(ctx context.Context, svc *services) error {
	if !a.cfg.Market.SeedCatalog {
		return nil
	}
	quotes, err := svc.market.SeedCatalog(ctx, domain.UniversityCatalog())
	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		a.logger.InfoContext(ctx, "catalog already seeded")
		return nil
	case err != nil:
		return fmt.Errorf("seed catalog: %w", err)
	}
	a.logger.InfoContext(ctx, "catalog seeded at startup", slog.Int("tokens", len(quotes)))
	return nil
}

func (a *App) startMarket(ctx context.Context, g *errgroup.Group, svc *services) {
	g.Go(func() error { return svc.scheduler.Run(ctx) })
	g.Go(func() error { return svc.events.Run(ctx) })
}

func (a *App) startAudit(ctx context.Context, g *errgroup.Group, svc *services) error {
	cron, err := a.cfg.AuditSchedule()
	if err != nil {
		return fmt.Errorf("audit schedule: %w", err)
	}
	a.logger.InfoContext(ctx, "integrity audit scheduled", slog.String("cron", cron.String()))
	g.Go(func() error { return svc.auditor.RunCron(ctx, cron) })
	return nil
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to g.
// The server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *services) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		StartedAt:      time.Now().UTC(),
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error { return hub.Run(ctx) })

	h := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Health, a.logger),
		Market:    handler.NewMarketHandler(svc.market, a.logger),
		Trade:     handler.NewTradeHandler(svc.trades, a.logger),
		Portfolio: handler.NewPortfolioHandler(svc.portfolio, a.logger),
		Wallet:    handler.NewWalletHandler(svc.wallets, a.logger),
		Admin:     handler.NewAdminHandler(svc.market, domain.UniversityCatalog(), a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		AdminKey:        a.cfg.Server.AdminKey,
		DepositSecret:   a.cfg.Server.DepositSecret,
		TradeRateLimit:  a.cfg.Server.TradeRateLimit,
		TradeRateWindow: a.cfg.Server.TradeRateWindow.Duration,
		Clock:           deps.Clock,
	}, h, hub, deps.RateLimiter, a.logger)

	if a.cfg.Server.APIKey == "" {
		a.logger.WarnContext(ctx, "HTTP server: API key not set; requests are not authenticated")
	}
	g.Go(func() error { return srv.Run(ctx) })
}
