package schedule

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_RejectsBadExpressions(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "60 * * * *", "* 24 * * *", "*/0 * * * *", "5-1 * * * *", "a * * * *"} {
		_, err := Parse(expr, nil)
		assert.Error(t, err, expr)
	}
}

func TestNext_DailyAtTwo(t *testing.T) {
	c, err := Parse("0 2 * * *", time.UTC)
	require.NoError(t, err)

	next, err := c.Next(time.Date(2026, 3, 1, 1, 59, 30, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC), next)

	next, err = c.Next(next)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC), next)
}

func TestNext_StepsRangesAndLists(t *testing.T) {
	c, err := Parse("*/15 9-10 * * 1,3", time.UTC)
	require.NoError(t, err)

	// 2026-03-02 is a Monday.
	next, err := c.Next(time.Date(2026, 3, 2, 10, 46, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC), next)
}

func TestNext_UsesLocation(t *testing.T) {
	wat := time.FixedZone("WAT", 60*60)
	c, err := Parse("0 2 * * *", wat)
	require.NoError(t, err)

	next, err := c.Next(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC), next.UTC())
}

func TestRun_FiresOnTrigger(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 1, 59, 0, 0, time.UTC))
	c, err := Parse("0 2 * * *", time.UTC)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan time.Time, 1)
	done := make(chan error, 1)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	go func() {
		done <- Run(ctx, clock, c, func(context.Context) { fired <- clock.Now() }, logger)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)

	select {
	case at := <-fired:
		assert.Equal(t, 2, at.Hour())
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
