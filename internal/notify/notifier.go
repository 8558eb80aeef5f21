// Package notify delivers operator alerts (Discord, Telegram) and user e-mail.
// Alerts can be filtered by event type so operators receive only the ones
// they care about; e-mail always leaves through the asynchronous Dispatcher.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Alert event types.
const (
	EventIntegrity      = "integrity_discrepancy"
	EventAuditFailed    = "audit_failed"
	EventSchedulerError = "scheduler_error"
	EventMarketEvent    = "market_event"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is an operator notification.
type Alert struct {
	Event    string
	Severity Severity
	Title    string
	Message  string
	// Fields are rendered as key/value pairs where the channel supports it.
	Fields map[string]string
}

// Sender is the interface that each alert channel must implement.
type Sender interface {
	Send(ctx context.Context, a Alert) error
	// Name returns a human-readable identifier for the sender (e.g. "discord").
	Name() string
}

// Notifier fans alerts out to its senders. Notify forwards only allowed event
// types; NotifyAll bypasses the filter.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. If events is empty, all event types are
// allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends a to all senders if its event type is allowed.
func (n *Notifier) Notify(ctx context.Context, a Alert) error {
	if n == nil {
		return nil
	}
	if len(n.events) > 0 && !n.events[a.Event] {
		n.logger.DebugContext(ctx, "alert filtered out", slog.String("event", a.Event))
		return nil
	}
	return n.dispatch(ctx, a)
}

// NotifyAll sends a to all senders regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, a Alert) error {
	if n == nil {
		return nil
	}
	return n.dispatch(ctx, a)
}

// dispatch delivers to every sender; one failing sender does not stop the
// rest.
func (n *Notifier) dispatch(ctx context.Context, a Alert) error {
	if len(n.senders) == 0 {
		return nil
	}
	if a.Severity == "" {
		a.Severity = SeverityInfo
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, a); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", a.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert sent",
			slog.String("sender", s.Name()),
			slog.String("title", a.Title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
