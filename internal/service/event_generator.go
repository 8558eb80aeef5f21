package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
	"github.com/alanyoungcy/tokenmarket/internal/notify"
	"github.com/alanyoungcy/tokenmarket/internal/observability"
)

// maxAffectedTokens bounds how many tokens one generated event touches.
const maxAffectedTokens = 3

// EventGenerator randomly instantiates market events from templates.
type EventGenerator struct {
	tokens    domain.TokenStore
	events    domain.EventStore
	feed      *MarketFeed
	notifier  *notify.Notifier
	templates []domain.EventTemplate
	rng       *Rand
	clock     clockwork.Clock
	interval  time.Duration
	logger    *slog.Logger
}

// NewEventGenerator creates an EventGenerator. notifier may be nil.
func NewEventGenerator(
	tokens domain.TokenStore,
	events domain.EventStore,
	feed *MarketFeed,
	notifier *notify.Notifier,
	templates []domain.EventTemplate,
	rng *Rand,
	clock clockwork.Clock,
	interval time.Duration,
	logger *slog.Logger,
) *EventGenerator {
	return &EventGenerator{
		tokens:    tokens,
		events:    events,
		feed:      feed,
		notifier:  notifier,
		templates: templates,
		rng:       rng,
		clock:     clock,
		interval:  interval,
		logger:    logger.With(slog.String("component", "event_generator")),
	}
}

// Run generates events on every interval until ctx is cancelled.
func (g *EventGenerator) Run(ctx context.Context) error {
	g.logger.InfoContext(ctx, "event generator started", slog.Duration("interval", g.interval))
	ticker := g.clock.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.InfoContext(ctx, "event generator stopped")
			return ctx.Err()
		case <-ticker.Chan():
			if _, err := g.Generate(ctx); err != nil {
				g.logger.ErrorContext(ctx, "event generation failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Generate retires expired events, then rolls each template once and creates
// the events that fire. Each event affects one to three random tokens.
func (g *EventGenerator) Generate(ctx context.Context) ([]domain.MarketEvent, error) {
	now := g.clock.Now()

	if n, err := g.events.DeactivateExpired(ctx, now); err != nil {
		g.logger.WarnContext(ctx, "deactivating expired events failed", slog.String("error", err.Error()))
	} else if n > 0 {
		g.logger.InfoContext(ctx, "expired market events deactivated", slog.Int64("count", n))
	}

	tokens, err := g.tokens.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("event generator: list tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	var created []domain.MarketEvent
	for _, tpl := range g.templates {
		if g.rng.Float64() >= tpl.Probability {
			continue
		}

		count := 1 + g.rng.IntN(min(maxAffectedTokens, len(tokens)))
		perm := g.rng.Perm(len(tokens))
		symbols := make([]domain.Symbol, count)
		for i := range count {
			symbols[i] = tokens[perm[i]].Symbol
		}

		e, err := g.events.Create(ctx, domain.MarketEvent{
			Name:            tpl.Name,
			Description:     tpl.Description,
			EffectType:      tpl.EffectType,
			Magnitude:       tpl.Magnitude,
			AffectedSymbols: domain.NewSymbolSet(symbols...),
			StartTime:       now,
			EndTime:         now.Add(tpl.Duration),
			Active:          true,
			CreatedAt:       now,
		})
		if err != nil {
			g.logger.ErrorContext(ctx, "creating market event failed",
				slog.String("name", tpl.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		created = append(created, e)
		g.announce(ctx, e)
	}
	return created, nil
}

func (g *EventGenerator) announce(ctx context.Context, e domain.MarketEvent) {
	observability.RecordEventCreated(string(e.EffectType))
	g.feed.Publish(ctx, domain.ChannelMarketEvents, e)

	affected := strings.Join(e.AffectedSymbols.Strings(), ", ")
	g.logger.InfoContext(ctx, "market event created",
		slog.String("name", e.Name),
		slog.String("effect", string(e.EffectType)),
		slog.String("magnitude", e.Magnitude.String()),
		slog.String("affected", affected),
		slog.Time("end_time", e.EndTime),
	)

	if err := g.notifier.Notify(ctx, notify.Alert{
		Event:    notify.EventMarketEvent,
		Severity: notify.SeverityInfo,
		Title:    e.Name,
		Message:  e.Description,
		Fields: map[string]string{
			"effect":    string(e.EffectType),
			"magnitude": e.Magnitude.String(),
			"affected":  affected,
			"ends":      e.EndTime.Format(time.RFC3339),
		},
	}); err != nil {
		g.logger.WarnContext(ctx, "market event alert failed", slog.String("error", err.Error()))
	}
}
