// Package app wires the token market together and runs one operating mode:
// the HTTP API, the market loops, the integrity audit, or all of them.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/alanyoungcy/tokenmarket/internal/config"
)

type modeFunc func(a *App, ctx context.Context, deps *Dependencies) error

var modes = map[string]modeFunc{
	"server": (*App).ServerMode,
	"market": (*App).MarketMode,
	"audit":  (*App).AuditMode,
	"full":   (*App).FullMode,
}

// Modes lists the supported operating modes in sorted order.
func Modes() []string {
	return slices.Sorted(maps.Keys(modes))
}

// App owns the configuration and the cleanup of everything Wire opened.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Run wires the dependencies and blocks in the configured mode until ctx is
// cancelled or a component fails. Call Close afterwards.
func (a *App) Run(ctx context.Context) error {
	run, ok := modes[strings.ToLower(a.cfg.Mode)]
	if !ok {
		return fmt.Errorf("app: unsupported mode %q (want one of %s)", a.cfg.Mode, strings.Join(Modes(), ", "))
	}

	a.logger.InfoContext(ctx, "starting token market",
		slog.String("mode", a.cfg.Mode),
		slog.String("storage", a.cfg.Storage),
	)
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	a.logger.InfoContext(ctx, "dependencies ready",
		slog.Any("health_checks", slices.Sorted(maps.Keys(deps.Health))),
		slog.Bool("redis", deps.Quotes != nil),
		slog.Bool("blob_storage", deps.Blobs != nil),
	)
	return run(a, ctx, deps)
}

// Close runs the cleanups in reverse order. Later calls do nothing.
func (a *App) Close() {
	if len(a.closers) == 0 {
		return
	}
	a.logger.Info("shutting down token market")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
