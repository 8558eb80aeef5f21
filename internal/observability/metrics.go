// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Trading
	TradesTotal      *prometheus.CounterVec
	TradeNotional    *prometheus.CounterVec
	TradeFees        prometheus.Counter
	TradeLatency     *prometheus.HistogramVec
	TradesRejected   *prometheus.CounterVec
	NotificationsOut *prometheus.CounterVec

	// Market
	TicksTotal     *prometheus.CounterVec
	TickDuration   prometheus.Histogram
	TokenPrice     *prometheus.GaugeVec
	EventsCreated  *prometheus.CounterVec
	TickOverlapped prometheus.Counter

	// Integrity
	AuditRuns             *prometheus.CounterVec
	WalletsAudited        prometheus.Gauge
	BalanceDiscrepancies  prometheus.Gauge
	LastSuccessfulAuditTS prometheus.Gauge

	// HTTP
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tokenmarket"
	}

	return &Metrics{
		TradesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "trades_total",
			Help:      "Executed trades by side and symbol",
		}, []string{"side", "symbol"}),
		TradeNotional: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "notional_total",
			Help:      "Traded notional value by side",
		}, []string{"side"}),
		TradeFees: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "fees_total",
			Help:      "Profit fees collected",
		}),
		TradeLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "execution_seconds",
			Help:      "Trade execution latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"side"}),
		TradesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "rejected_total",
			Help:      "Rejected trades by side and reason",
		}, []string{"side", "reason"}),
		NotificationsOut: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Outbound notifications by status",
		}, []string{"status"}),

		TicksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "ticks_total",
			Help:      "Token price updates by status",
		}, []string{"status"}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "tick_duration_seconds",
			Help:      "Duration of a full price tick",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
		TokenPrice: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "token_price",
			Help:      "Latest token price",
		}, []string{"symbol"}),
		EventsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "events_created_total",
			Help:      "Market events created by effect type",
		}, []string{"effect"}),
		TickOverlapped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "ticks_skipped_total",
			Help:      "Ticks skipped because a previous tick was still running",
		}),

		AuditRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "integrity",
			Name:      "runs_total",
			Help:      "Balance audit runs by status",
		}, []string{"status"}),
		WalletsAudited: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "integrity",
			Name:      "wallets_audited",
			Help:      "Wallets checked in the last audit run",
		}),
		BalanceDiscrepancies: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "integrity",
			Name:      "discrepancies",
			Help:      "Wallets out of balance in the last audit run",
		}),
		LastSuccessfulAuditTS: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "integrity",
			Name:      "last_success_timestamp",
			Help:      "Unix timestamp of the last completed audit",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method and status code",
		}, []string{"method", "status"}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTrade records an executed trade.
func RecordTrade(side, symbol string, notional, fee, seconds float64) {
	DefaultMetrics.TradesTotal.WithLabelValues(side, symbol).Inc()
	DefaultMetrics.TradeNotional.WithLabelValues(side).Add(notional)
	if fee > 0 {
		DefaultMetrics.TradeFees.Add(fee)
	}
	DefaultMetrics.TradeLatency.WithLabelValues(side).Observe(seconds)
}

// RecordTradeRejected records a trade refused for reason.
func RecordTradeRejected(side, reason string) {
	DefaultMetrics.TradesRejected.WithLabelValues(side, reason).Inc()
}

// RecordNotification records the outcome of an outbound notification.
func RecordNotification(ok bool) {
	status := "sent"
	if !ok {
		status = "failed"
	}
	DefaultMetrics.NotificationsOut.WithLabelValues(status).Inc()
}

// RecordTick records one token update within a tick.
func RecordTick(symbol string, price float64, err error) {
	if err != nil {
		DefaultMetrics.TicksTotal.WithLabelValues("error").Inc()
		return
	}
	DefaultMetrics.TicksTotal.WithLabelValues("ok").Inc()
	DefaultMetrics.TokenPrice.WithLabelValues(symbol).Set(price)
}

// RecordTickDuration records how long a full tick took.
func RecordTickDuration(seconds float64) {
	DefaultMetrics.TickDuration.Observe(seconds)
}

// RecordTickSkipped records an overlapping tick that was dropped.
func RecordTickSkipped() {
	DefaultMetrics.TickOverlapped.Inc()
}

// RecordEventCreated records a generated market event.
func RecordEventCreated(effect string) {
	DefaultMetrics.EventsCreated.WithLabelValues(effect).Inc()
}

// RecordAudit records a completed integrity audit.
func RecordAudit(wallets, discrepancies int, unixTS float64) {
	DefaultMetrics.AuditRuns.WithLabelValues("ok").Inc()
	DefaultMetrics.WalletsAudited.Set(float64(wallets))
	DefaultMetrics.BalanceDiscrepancies.Set(float64(discrepancies))
	DefaultMetrics.LastSuccessfulAuditTS.Set(unixTS)
}

// RecordAuditFailure records an audit run that could not complete.
func RecordAuditFailure() {
	DefaultMetrics.AuditRuns.WithLabelValues("error").Inc()
}

// RecordHTTP records a served HTTP request.
func RecordHTTP(method, status string, seconds float64) {
	DefaultMetrics.HTTPRequests.WithLabelValues(method, status).Inc()
	DefaultMetrics.HTTPDuration.WithLabelValues(method).Observe(seconds)
}
