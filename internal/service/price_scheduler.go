package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
	"github.com/alanyoungcy/tokenmarket/internal/notify"
	"github.com/alanyoungcy/tokenmarket/internal/observability"
	"github.com/alanyoungcy/tokenmarket/internal/pricing"
)

// schedulerLockKey guards ticks across replicas.
const schedulerLockKey = "scheduler:prices"

// Rand is a goroutine-safe source of uniform variates in [0, 1).
type Rand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRand wraps rng. A nil rng is seeded randomly.
func NewRand(rng *rand.Rand) *Rand {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Rand{rng: rng}
}

// NewSeededRand returns a deterministic Rand.
func NewSeededRand(seed uint64) *Rand {
	return NewRand(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// Float64 returns a variate in [0, 1).
func (r *Rand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// IntN returns a variate in [0, n).
func (r *Rand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}

// Perm returns a random permutation of [0, n).
func (r *Rand) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Perm(n)
}

// TickReport summarises one scheduler tick.
type TickReport struct {
	Updated int
	Failed  int
	Skipped bool
}

// PriceScheduler moves every token's price on a fixed interval.
type PriceScheduler struct {
	tokens   domain.TokenStore
	events   domain.EventStore
	uow      domain.UnitOfWork
	feed     *MarketFeed
	locks    domain.LockManager
	rules    domain.PriceRules
	rng      *Rand
	clock    clockwork.Clock
	interval time.Duration
	running  atomic.Bool
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewPriceScheduler creates a PriceScheduler. locks may be nil for a single
// replica.
func NewPriceScheduler(
	tokens domain.TokenStore,
	events domain.EventStore,
	uow domain.UnitOfWork,
	feed *MarketFeed,
	locks domain.LockManager,
	rules domain.PriceRules,
	rng *Rand,
	clock clockwork.Clock,
	interval time.Duration,
	logger *slog.Logger,
) *PriceScheduler {
	return &PriceScheduler{
		tokens:   tokens,
		events:   events,
		uow:      uow,
		feed:     feed,
		locks:    locks,
		rules:    rules,
		rng:      rng,
		clock:    clock,
		interval: interval,
		logger:   logger.With(slog.String("component", "price_scheduler")),
	}
}

// WithNotifier sends an operator alert for every tick that fails outright or
// leaves tokens unpriced.
func (s *PriceScheduler) WithNotifier(n *notify.Notifier) *PriceScheduler {
	s.notifier = n
	return s
}

// Run ticks until ctx is cancelled.
func (s *PriceScheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "price scheduler started", slog.Duration("interval", s.interval))
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "price scheduler stopped")
			return ctx.Err()
		case <-ticker.Chan():
			report, err := s.Tick(ctx)
			switch {
			case err != nil:
				s.logger.ErrorContext(ctx, "price tick failed", slog.String("error", err.Error()))
				s.alert(ctx, err.Error())
			case report.Failed > 0:
				s.alert(ctx, fmt.Sprintf("%d of %d tokens failed to update", report.Failed, report.Failed+report.Updated))
			}
		}
	}
}

func (s *PriceScheduler) alert(ctx context.Context, msg string) {
	if err := s.notifier.Notify(ctx, notify.Alert{
		Event:    notify.EventSchedulerError,
		Severity: notify.SeverityWarning,
		Title:    "Price tick failed",
		Message:  msg,
	}); err != nil {
		s.logger.WarnContext(ctx, "scheduler alert failed", slog.String("error", err.Error()))
	}
}

// Tick updates every token once. A tick that starts while another is still
// running, locally or on another replica, is skipped. A failure on one token
// does not stop the others.
func (s *PriceScheduler) Tick(ctx context.Context) (TickReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		observability.RecordTickSkipped()
		s.logger.WarnContext(ctx, "previous tick still running, skipping")
		return TickReport{Skipped: true}, nil
	}
	defer s.running.Store(false)

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, schedulerLockKey, s.interval)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			observability.RecordTickSkipped()
			s.logger.InfoContext(ctx, "tick held by another replica, skipping")
			return TickReport{Skipped: true}, nil
		case err != nil:
			s.logger.WarnContext(ctx, "scheduler lock unavailable, ticking anyway", slog.String("error", err.Error()))
		default:
			defer unlock()
		}
	}

	start := s.clock.Now()
	defer func() { observability.RecordTickDuration(s.clock.Since(start).Seconds()) }()

	tokens, err := s.tokens.List(ctx)
	if err != nil {
		return TickReport{}, fmt.Errorf("price scheduler: list tokens: %w", err)
	}
	events, err := s.events.ListEffective(ctx, start)
	if err != nil {
		s.logger.WarnContext(ctx, "loading market events failed, ticking without them", slog.String("error", err.Error()))
		events = nil
	}

	var (
		report TickReport
		quotes []domain.MarketQuote
	)
	for _, tok := range tokens {
		q, err := s.tickToken(ctx, tok.ID, events)
		observability.RecordTick(tok.Symbol.String(), q.Price.InexactFloat64(), err)
		if err != nil {
			report.Failed++
			s.logger.ErrorContext(ctx, "token tick failed",
				slog.String("symbol", tok.Symbol.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.Updated++
		quotes = append(quotes, q)
	}

	s.feed.PublishQuotes(ctx, domain.PriceSourceTick, quotes...)
	s.logger.DebugContext(ctx, "price tick complete",
		slog.Int("updated", report.Updated),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

// tickToken moves one token inside its own unit of work, locking token then
// market to match the trade executor's order.
func (s *PriceScheduler) tickToken(ctx context.Context, tokenID int64, events []domain.MarketEvent) (domain.MarketQuote, error) {
	var quote domain.MarketQuote
	err := s.uow.InTx(ctx, func(tx domain.Tx) error {
		now := s.clock.Now()
		tok, err := tx.TokenForUpdate(ctx, tokenID)
		if err != nil {
			return notFound(err, "token", idKey(tokenID))
		}
		m, err := tx.MarketForUpdate(ctx, tokenID)
		if err != nil {
			return notFound(err, "market", idKey(tokenID))
		}

		draw := pricing.Draw{Walk: s.rng.Float64(), Hours: s.rng.Float64()}
		next := pricing.NextPrice(s.rules, tok, m, events, now, draw)
		m = pricing.ApplyMove(s.rules, m, tok.CirculatingSupply, next, now)
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return fmt.Errorf("update market: %w", err)
		}
		quote = domain.NewMarketQuote(tok, m)
		return nil
	})
	return quote, err
}
