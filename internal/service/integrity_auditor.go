package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tokenmarket/internal/domain"
	"github.com/alanyoungcy/tokenmarket/internal/notify"
	"github.com/alanyoungcy/tokenmarket/internal/observability"
	"github.com/alanyoungcy/tokenmarket/internal/schedule"
)

// Discrepancy is a wallet whose cash balance disagrees with its ledger.
type Discrepancy struct {
	WalletID   int64           `json:"wallet_id"`
	UserID     string          `json:"user_id"`
	Cash       decimal.Decimal `json:"cash_balance"`
	LedgerSum  decimal.Decimal `json:"ledger_sum"`
	Difference decimal.Decimal `json:"difference"`
}

// AuditReport is the outcome of one integrity run.
type AuditReport struct {
	RunID         string        `json:"run_id"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	Wallets       int           `json:"wallets_checked"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	Errors        []string      `json:"errors,omitempty"`
}

// IntegrityAuditor reconciles every wallet's cash balance against the sum of
// its completed ledger entries. It only reads and reports; it never corrects
// balances.
type IntegrityAuditor struct {
	wallets  domain.WalletStore
	txns     domain.TransactionStore
	audit    domain.AuditStore
	blobs    domain.BlobWriter
	notifier *notify.Notifier
	feed     *MarketFeed
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewIntegrityAuditor creates an IntegrityAuditor. audit, blobs, notifier and
// feed may be nil.
func NewIntegrityAuditor(
	wallets domain.WalletStore,
	txns domain.TransactionStore,
	audit domain.AuditStore,
	blobs domain.BlobWriter,
	notifier *notify.Notifier,
	feed *MarketFeed,
	clock clockwork.Clock,
	logger *slog.Logger,
) *IntegrityAuditor {
	return &IntegrityAuditor{
		wallets:  wallets,
		txns:     txns,
		audit:    audit,
		blobs:    blobs,
		notifier: notifier,
		feed:     feed,
		clock:    clock,
		logger:   logger.With(slog.String("component", "integrity_auditor")),
	}
}

// RunCron runs Check on the cron schedule until ctx is cancelled.
func (a *IntegrityAuditor) RunCron(ctx context.Context, c schedule.Cron) error {
	return schedule.Run(ctx, a.clock, c, func(ctx context.Context) {
		_, _ = a.Check(ctx)
	}, a.logger)
}

// Check runs one reconciliation. Failures are logged and alerted rather than
// propagated to the scheduler; the returned error is for direct callers.
func (a *IntegrityAuditor) Check(ctx context.Context) (AuditReport, error) {
	report := AuditReport{RunID: uuid.NewString(), StartedAt: a.clock.Now()}
	a.logger.InfoContext(ctx, "integrity check started", slog.String("run_id", report.RunID))

	wallets, err := a.wallets.List(ctx)
	if err != nil {
		observability.RecordAuditFailure()
		a.logger.ErrorContext(ctx, "integrity check failed", slog.String("error", err.Error()))
		a.alert(ctx, notify.Alert{
			Event:    notify.EventAuditFailed,
			Severity: notify.SeverityCritical,
			Title:    "Integrity check failed",
			Message:  err.Error(),
		})
		return report, fmt.Errorf("integrity auditor: list wallets: %w", err)
	}

	for _, w := range wallets {
		d, ok, err := a.reconcile(ctx, w)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("wallet %d: %v", w.ID, err))
			a.logger.WarnContext(ctx, "wallet reconcile failed",
				slog.Int64("wallet_id", w.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.Wallets++
		if !ok {
			report.Discrepancies = append(report.Discrepancies, d)
		}
	}
	report.FinishedAt = a.clock.Now()

	observability.RecordAudit(report.Wallets, len(report.Discrepancies), float64(report.FinishedAt.Unix()))
	a.record(ctx, report)
	a.upload(ctx, report)

	a.logger.InfoContext(ctx, "integrity check complete",
		slog.String("run_id", report.RunID),
		slog.Int("wallets", report.Wallets),
		slog.Int("discrepancies", len(report.Discrepancies)),
		slog.Int("errors", len(report.Errors)),
	)
	return report, nil
}

// reconcile compares w against its ledger sum. The wallet list and the sums
// are not read in one snapshot, so a trade committing in between can make a
// healthy wallet look off. A mismatch is re-read from the wallet row once and
// only reported if it persists.
func (a *IntegrityAuditor) reconcile(ctx context.Context, w domain.Wallet) (Discrepancy, bool, error) {
	d, err := a.compare(ctx, w)
	if err != nil || d.Difference.Abs().LessThanOrEqual(domain.ReconcileTolerance) {
		return d, true, err
	}
	fresh, err := a.wallets.GetByUser(ctx, w.UserID)
	if err != nil {
		return d, false, fmt.Errorf("re-read wallet: %w", err)
	}
	d, err = a.compare(ctx, fresh)
	if err != nil {
		return d, false, err
	}
	return d, d.Difference.Abs().LessThanOrEqual(domain.ReconcileTolerance), nil
}

func (a *IntegrityAuditor) compare(ctx context.Context, w domain.Wallet) (Discrepancy, error) {
	sum, err := a.txns.SumAmountByWallet(ctx, w.ID)
	if err != nil {
		return Discrepancy{}, err
	}
	return Discrepancy{
		WalletID:   w.ID,
		UserID:     w.UserID,
		Cash:       w.CashBalance,
		LedgerSum:  sum,
		Difference: w.CashBalance.Sub(sum),
	}, nil
}

func (a *IntegrityAuditor) record(ctx context.Context, report AuditReport) {
	for _, d := range report.Discrepancies {
		a.logger.WarnContext(ctx, "balance discrepancy",
			slog.Int64("wallet_id", d.WalletID),
			slog.String("user_id", d.UserID),
			slog.String("cash", d.Cash.String()),
			slog.String("ledger_sum", d.LedgerSum.String()),
			slog.String("difference", d.Difference.String()),
		)
		if a.audit != nil {
			if err := a.audit.Log(ctx, "balance_discrepancy", map[string]any{
				"run_id":     report.RunID,
				"wallet_id":  d.WalletID,
				"user_id":    d.UserID,
				"cash":       d.Cash.String(),
				"ledger_sum": d.LedgerSum.String(),
				"difference": d.Difference.String(),
			}); err != nil {
				a.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
			}
		}
	}

	if len(report.Discrepancies) == 0 {
		return
	}
	a.feed.Publish(ctx, domain.ChannelAudit, report)
	a.alert(ctx, notify.Alert{
		Event:    notify.EventIntegrity,
		Severity: notify.SeverityCritical,
		Title:    "Wallet balance discrepancies",
		Message:  fmt.Sprintf("%d of %d wallets disagree with their ledger", len(report.Discrepancies), report.Wallets),
		Fields: map[string]string{
			"run_id": report.RunID,
			"first":  report.Discrepancies[0].UserID,
		},
	})
}

// upload stores the report at integrity/YYYY/MM/DD/<run>.json.
func (a *IntegrityAuditor) upload(ctx context.Context, report AuditReport) {
	if a.blobs == nil {
		return
	}
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		a.logger.WarnContext(ctx, "marshal audit report failed", slog.String("error", err.Error()))
		return
	}
	path := fmt.Sprintf("integrity/%s/%s.json", report.StartedAt.UTC().Format("2006/01/02"), report.RunID)
	if err := a.blobs.Put(ctx, path, bytes.NewReader(body), "application/json"); err != nil {
		a.logger.WarnContext(ctx, "upload audit report failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

func (a *IntegrityAuditor) alert(ctx context.Context, al notify.Alert) {
	if err := a.notifier.Notify(ctx, al); err != nil {
		a.logger.WarnContext(ctx, "integrity alert failed", slog.String("error", err.Error()))
	}
}
