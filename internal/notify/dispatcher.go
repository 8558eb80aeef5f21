package notify

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
	"github.com/alanyoungcy/tokenmarket/internal/observability"
)

// Composer renders a message once the recipient's contact details are known.
type Composer func(c domain.UserContact) Mail

type job struct {
	userID  string
	compose Composer
}

// Dispatcher delivers mail from a bounded queue on background workers so
// that callers never wait on the mail relay or the user directory.
type Dispatcher struct {
	mailer   Mailer
	users    domain.UserDirectory
	queue    chan job
	workers  int
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

// DispatcherConfig tunes a Dispatcher.
type DispatcherConfig struct {
	QueueSize int
	Workers   int
	Attempts  int
	Backoff   time.Duration
}

// NewDispatcher creates a Dispatcher around mailer. users resolves recipients
// for EnqueueForUser and may be nil if only Enqueue is used.
func NewDispatcher(mailer Mailer, users domain.UserDirectory, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	return &Dispatcher{
		mailer:   mailer,
		users:    users,
		queue:    make(chan job, cfg.QueueSize),
		workers:  cfg.Workers,
		attempts: cfg.Attempts,
		backoff:  cfg.Backoff,
		logger:   logger.With(slog.String("component", "mail_dispatcher")),
	}
}

// Enqueue schedules m for delivery. It never blocks; when the queue is full
// the message is dropped and false is returned.
func (d *Dispatcher) Enqueue(m Mail) bool {
	return d.push(job{compose: func(domain.UserContact) Mail { return m }})
}

// EnqueueForUser schedules a message to userID. The contact lookup and
// compose run on a worker.
func (d *Dispatcher) EnqueueForUser(userID string, compose Composer) bool {
	return d.push(job{userID: userID, compose: compose})
}

func (d *Dispatcher) push(j job) bool {
	if d == nil {
		return false
	}
	select {
	case d.queue <- j:
		return true
	default:
		d.logger.Warn("mail queue full, dropping message", slog.String("user_id", j.userID))
		observability.RecordNotification(false)
		return false
	}
}

// Run starts the workers and blocks until ctx is cancelled. Messages still
// queued at shutdown are dropped.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case j := <-d.queue:
					d.handle(gctx, j)
				}
			}
		})
	}
	return g.Wait()
}

func (d *Dispatcher) handle(ctx context.Context, j job) {
	var contact domain.UserContact
	if j.userID != "" {
		if d.users == nil {
			d.logger.WarnContext(ctx, "no user directory, dropping message", slog.String("user_id", j.userID))
			return
		}
		c, err := d.users.GetContact(ctx, j.userID)
		if err != nil {
			observability.RecordNotification(false)
			d.logger.WarnContext(ctx, "recipient lookup failed",
				slog.String("user_id", j.userID),
				slog.String("error", err.Error()),
			)
			return
		}
		if c.Email == "" {
			d.logger.DebugContext(ctx, "recipient has no email", slog.String("user_id", j.userID))
			return
		}
		contact = c
	}
	m := j.compose(contact)
	if m.To == "" {
		m.To = contact.Email
	}
	d.deliver(ctx, m)
}

func (d *Dispatcher) deliver(ctx context.Context, m Mail) {
	var err error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		if err = d.mailer.SendMail(ctx, m); err == nil {
			observability.RecordNotification(true)
			d.logger.InfoContext(ctx, "mail sent",
				slog.String("to", m.To),
				slog.String("subject", m.Subject),
			)
			return
		}
		if attempt == d.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.backoff * time.Duration(attempt)):
		}
	}
	observability.RecordNotification(false)
	d.logger.ErrorContext(ctx, "mail delivery failed",
		slog.String("to", m.To),
		slog.String("subject", m.Subject),
		slog.Int("attempts", d.attempts),
		slog.String("error", err.Error()),
	)
}
