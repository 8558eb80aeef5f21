package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalBus_PublishSubscribe(t *testing.T) {
	bus := NewSignalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prices, err := bus.Subscribe(ctx, "prices")
	require.NoError(t, err)
	market, err := bus.Subscribe(ctx, "market_*")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "prices", []byte("p1")))
	require.NoError(t, bus.Publish(ctx, "market_events", []byte("e1")))

	select {
	case got := <-prices:
		assert.Equal(t, "p1", string(got))
	case <-time.After(time.Second):
		t.Fatal("no price delivered")
	}
	select {
	case got := <-market:
		assert.Equal(t, "e1", string(got))
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	assert.Empty(t, prices)
}

func TestSignalBus_ClosesOnCancel(t *testing.T) {
	bus := NewSignalBus()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := bus.Subscribe(ctx, "prices")
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, bus.Publish(context.Background(), "prices", []byte("late")))
}

func TestSignalBus_BadPattern(t *testing.T) {
	_, err := NewSignalBus().Subscribe(context.Background(), "prices[")
	assert.Error(t, err)
}
