package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
	"github.com/alanyoungcy/tokenmarket/internal/notify"
)

type heldLocks struct{ err error }

func (h heldLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, h.err
}

// gatedUoW blocks the first unit of work until release is closed.
type gatedUoW struct {
	inner   domain.UnitOfWork
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedUoW) InTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.inner.InTx(ctx, fn)
}

type brokenTokens struct{ domain.TokenStore }

func (brokenTokens) List(context.Context) ([]domain.Token, error) {
	return nil, errors.New("connection reset")
}

func newScheduler(f *fixture, uow domain.UnitOfWork, locks domain.LockManager) *PriceScheduler {
	return NewPriceScheduler(f.store.Tokens(), f.store.Events(), uow, f.feed, locks, f.rules,
		NewSeededRand(7), f.clock, 5*time.Minute, discardLogger())
}

func TestPriceScheduler_TickMovesEveryTokenWithinBounds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	quotes := f.seed(t, domain.UniversityCatalog()...)
	s := newScheduler(f, f.store, nil)

	for i := range 20 {
		f.clock.Advance(5 * time.Minute)
		prev := make(map[int64]domain.MarketRecord, len(quotes))
		for _, q := range quotes {
			prev[q.TokenID] = f.marketOf(t, q.TokenID)
		}

		report, err := s.Tick(ctx)
		require.NoError(t, err)
		require.Equal(t, len(quotes), report.Updated, "tick %d", i)
		assert.Zero(t, report.Failed)

		for _, q := range quotes {
			m := f.marketOf(t, q.TokenID)
			p := prev[q.TokenID].Price
			assert.True(t, m.Price.GreaterThanOrEqual(f.rules.MinPrice))
			assert.True(t, m.Price.LessThanOrEqual(f.rules.MaxPrice))
			assert.True(t, m.Price.Sub(p).Abs().LessThanOrEqual(p.Mul(f.rules.MaxDailyChangeFraction)))
			assert.True(t, m.Volatility.LessThanOrEqual(f.rules.MaxVolatility))
			assert.Equal(t, f.clock.Now(), m.UpdatedAt)
		}
	}

	points, err := f.store.PriceHistory().List(ctx, "UNILAG", domain.ListOpts{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(points), 20)
}

func TestPriceScheduler_SkipsWhileRunning(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t)
	gate := &gatedUoW{inner: f.store, entered: make(chan struct{}), release: make(chan struct{})}
	s := newScheduler(f, gate, nil)

	done := make(chan TickReport, 1)
	go func() {
		r, _ := s.Tick(ctx)
		done <- r
	}()
	<-gate.entered

	r, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, r.Skipped)

	close(gate.release)
	first := <-done
	assert.False(t, first.Skipped)
	assert.Equal(t, 1, first.Updated)
}

func TestPriceScheduler_SkipsWhenAnotherReplicaHoldsLock(t *testing.T) {
	f := newFixture(t)
	tok := f.seed(t)[0]
	s := newScheduler(f, f.store, heldLocks{err: domain.ErrLockHeld})

	r, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Skipped)
	requireDecEqual(t, "100", f.marketOf(t, tok.TokenID).Price)
}

func TestPriceScheduler_TicksWhenLockBackendFails(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	s := newScheduler(f, f.store, heldLocks{err: assert.AnError})

	r, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, r.Skipped)
	assert.Equal(t, 1, r.Updated)
}

func TestPriceScheduler_AppliesEffectiveEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tok := f.seed(t)[0]
	now := f.clock.Now()
	_, err := f.store.Events().Create(ctx, domain.MarketEvent{
		Name:            "rankings",
		EffectType:      domain.EffectBoost,
		Magnitude:       dec("0.5"),
		AffectedSymbols: domain.NewSymbolSet("UNILAG"),
		StartTime:       now.Add(-time.Minute),
		EndTime:         now.Add(time.Hour),
		Active:          true,
	})
	require.NoError(t, err)

	_, err = newScheduler(f, f.store, nil).Tick(ctx)
	require.NoError(t, err)

	// A 50% boost always exceeds the walk and is capped by the delta bound.
	requireDecEqual(t, "125", f.marketOf(t, tok.TokenID).Price)
}

func TestPriceScheduler_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	s := newScheduler(f, f.store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestPriceScheduler_RunAlertsOnFailedTick(t *testing.T) {
	f := newFixture(t)
	f.seed(t)
	sink := &alertSink{}
	s := NewPriceScheduler(brokenTokens{f.store.Tokens()}, f.store.Events(), f.store, f.feed, nil, f.rules,
		NewSeededRand(7), f.clock, 5*time.Minute, discardLogger()).
		WithNotifier(notify.NewNotifier([]notify.Sender{sink}, nil, discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(5 * time.Minute)

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.alerts) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	al := sink.alerts[0]
	assert.Equal(t, notify.EventSchedulerError, al.Event)
	assert.Equal(t, notify.SeverityWarning, al.Severity)
	assert.Contains(t, al.Message, "connection reset")
}

type tickTradeOutcome struct {
	price       string
	volume      string
	circulating string
	bought      bool
}

func tickTradeRun(t *testing.T, run func(s *PriceScheduler, f *fixture, tokenID int64)) tickTradeOutcome {
	t.Helper()
	f := newFixture(t)
	tok := f.seed(t)[0]
	f.fund(t, "ada", "10000")
	s := newScheduler(f, f.store, nil)
	run(s, f, tok.TokenID)

	m := f.marketOf(t, tok.TokenID)
	positions, err := f.store.Positions().ListByUser(context.Background(), "ada")
	require.NoError(t, err)
	return tickTradeOutcome{
		price:       m.Price.String(),
		volume:      m.Volume.String(),
		circulating: f.tokenOf(t, tok.TokenID).CirculatingSupply.String(),
		bought:      len(positions) == 1,
	}
}

func TestPriceScheduler_TickAndTradeSerialize(t *testing.T) {
	ctx := context.Background()
	buy := func(f *fixture, tokenID int64) {
		_, _ = f.trades.Buy(ctx, "ada", domain.TradeRequest{TokenID: tokenID, Quantity: dec("50"), Price: dec("100")})
	}
	tick := func(s *PriceScheduler) {
		_, err := s.Tick(ctx)
		require.NoError(t, err)
	}

	tickFirst := tickTradeRun(t, func(s *PriceScheduler, f *fixture, id int64) { tick(s); buy(f, id) })
	buyFirst := tickTradeRun(t, func(s *PriceScheduler, f *fixture, id int64) { buy(f, id); tick(s) })
	require.True(t, buyFirst.bought)

	for range 25 {
		got := tickTradeRun(t, func(s *PriceScheduler, f *fixture, id int64) {
			var wg sync.WaitGroup
			wg.Add(2)
			go func() { defer wg.Done(); _, _ = s.Tick(ctx) }()
			go func() { defer wg.Done(); buy(f, id) }()
			wg.Wait()
		})
		assert.Contains(t, []tickTradeOutcome{tickFirst, buyFirst}, got)
	}
}
