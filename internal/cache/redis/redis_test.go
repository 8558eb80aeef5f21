package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
)

func setupRedis(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	c, err := New(ctx, ClientConfig{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestQuoteCache(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()
	qc := NewQuoteCache(c, time.Minute)

	_, err := qc.GetQuote(ctx, "UNILAG")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	q := domain.MarketQuote{
		TokenID: 1, Symbol: "UNILAG", Name: "UNILAG Token",
		Price: decimal.RequireFromString("104.5"), Sentiment: domain.SentimentBullish,
	}
	require.NoError(t, qc.SetQuote(ctx, q))

	got, err := qc.GetQuote(ctx, "UNILAG")
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(q.Price))
	assert.Equal(t, domain.SentimentBullish, got.Sentiment)

	many, err := qc.GetQuotes(ctx, []domain.Symbol{"UNILAG", "OAU"})
	require.NoError(t, err)
	assert.Len(t, many, 1)
	assert.Contains(t, many, domain.Symbol("UNILAG"))
}

func TestLockManager(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(ctx, "scheduler:prices", 5*time.Second)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "scheduler:prices", 5*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	again, err := lm.Acquire(ctx, "scheduler:prices", 5*time.Second)
	require.NoError(t, err)
	again()
}

func TestRateLimiter(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	rl := NewRateLimiter(c, clock)

	for i := range 3 {
		ok, err := rl.Allow(ctx, "trade:ada", 3, time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "trade:ada", 3, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "trade:bola", 3, time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	clock.Advance(1100 * time.Millisecond)
	ok, err = rl.Allow(ctx, "trade:ada", 3, time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "window slides")
}

func TestSignalBus(t *testing.T) {
	c := setupRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewSignalBus(c)

	msgs, err := bus.Subscribe(ctx, "market_*")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.ChannelMarketEvents, []byte(`{"name":"rankings"}`)))

	select {
	case got := <-msgs:
		assert.JSONEq(t, `{"name":"rankings"}`, string(got))
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	for range msgs {
	}
}

func TestOptions(t *testing.T) {
	opts := options(ClientConfig{Addr: "cache:6379", DB: 2, TLSEnabled: true})
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, clientName, opts.ClientName)
	assert.Equal(t, defaultDialTimeout, opts.DialTimeout)
	require.NotNil(t, opts.TLSConfig)

	opts = options(ClientConfig{Addr: "cache:6379", DialTimeout: time.Second})
	assert.Equal(t, time.Second, opts.DialTimeout)
	assert.Nil(t, opts.TLSConfig)
}

func TestNew_RequiresAddr(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{})
	assert.Error(t, err)
}
