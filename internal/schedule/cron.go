// Package schedule runs jobs on 5-field cron expressions against an
// injectable clock.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// field is one parsed cron field.
type field struct {
	wildcard bool
	values   map[int]bool
}

func (f field) matches(v int) bool {
	return f.wildcard || f.values[v]
}

// bounds of each field in order: minute, hour, day-of-month, month, day-of-week.
var bounds = [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}

var fieldNames = [5]string{"minute", "hour", "day-of-month", "month", "day-of-week"}

// parseField accepts "*", "*/n", "a", "a-b", "a-b/n" and comma lists of those.
func parseField(s string, lo, hi int) (field, error) {
	if s == "*" {
		return field{wildcard: true}, nil
	}
	f := field{values: make(map[int]bool)}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		step := 1
		if base, stepStr, ok := strings.Cut(part, "/"); ok {
			n, err := strconv.Atoi(stepStr)
			if err != nil || n <= 0 {
				return field{}, fmt.Errorf("invalid step %q", stepStr)
			}
			step = n
			part = base
		}

		from, to := lo, hi
		switch {
		case part == "*":
		case strings.Contains(part, "-"):
			a, b, _ := strings.Cut(part, "-")
			var err error
			if from, err = strconv.Atoi(a); err != nil {
				return field{}, fmt.Errorf("invalid value %q: %w", a, err)
			}
			if to, err = strconv.Atoi(b); err != nil {
				return field{}, fmt.Errorf("invalid value %q: %w", b, err)
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return field{}, fmt.Errorf("invalid value %q: %w", part, err)
			}
			from, to = v, v
		}
		if from < lo || to > hi || from > to {
			return field{}, fmt.Errorf("value %q out of range [%d-%d]", part, lo, hi)
		}
		for v := from; v <= to; v += step {
			f.values[v] = true
		}
	}
	return f, nil
}

// Cron is a parsed 5-field cron expression:
// "minute hour day-of-month month day-of-week".
type Cron struct {
	expr   string
	fields [5]field
	loc    *time.Location
}

// Parse parses expr. Times are matched in loc, or UTC when loc is nil.
func Parse(expr string, loc *time.Location) (Cron, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return Cron{}, fmt.Errorf("schedule: cron expression must have 5 fields, got %d", len(parts))
	}
	if loc == nil {
		loc = time.UTC
	}
	c := Cron{expr: expr, loc: loc}
	for i, p := range parts {
		f, err := parseField(p, bounds[i][0], bounds[i][1])
		if err != nil {
			return Cron{}, fmt.Errorf("schedule: parsing %s field: %w", fieldNames[i], err)
		}
		c.fields[i] = f
	}
	return c, nil
}

// String returns the source expression.
func (c Cron) String() string { return c.expr }

func (c Cron) matches(t time.Time) bool {
	t = t.In(c.loc)
	return c.fields[0].matches(t.Minute()) &&
		c.fields[1].matches(t.Hour()) &&
		c.fields[2].matches(t.Day()) &&
		c.fields[3].matches(int(t.Month())) &&
		c.fields[4].matches(int(t.Weekday()))
}

// Next returns the first minute strictly after after that matches, searching
// at most one year ahead.
func (c Cron) Next(after time.Time) (time.Time, error) {
	candidate := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.Add(366 * 24 * time.Hour)
	for candidate.Before(limit) {
		if c.matches(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("schedule: no matching time within one year for %q", c.expr)
}

// Run invokes job at every matching time until ctx is cancelled. A job runs
// to completion before the next trigger is computed, so runs never overlap.
func Run(ctx context.Context, clock clockwork.Clock, c Cron, job func(ctx context.Context), logger *slog.Logger) error {
	logger.Info("cron started", slog.String("cron", c.String()))
	for {
		next, err := c.Next(clock.Now())
		if err != nil {
			return err
		}
		wait := next.Sub(clock.Now())
		logger.Debug("waiting for next cron trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("cron stopped")
			return ctx.Err()
		case <-timer.Chan():
			job(ctx)
		}
	}
}
