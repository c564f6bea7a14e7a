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
	// Execution metrics
	ExecutionsStarted   prometheus.Counter
	ExecutionsCompleted prometheus.Counter
	ExecutionsFailed    *prometheus.CounterVec
	ExecutionDuration   prometheus.Histogram
	ActiveExecutions    prometheus.Gauge
	CumulativeProfit    prometheus.Gauge

	// Order metrics
	OrdersPlaced *prometheus.CounterVec
	OrderRetries prometheus.Counter

	// Transfer metrics
	TransfersSubmitted prometheus.Counter
	TransferTimeouts   prometheus.Counter
	TransferDuration   prometheus.Histogram

	// Monitor metrics
	SpreadChecks       prometheus.Counter
	LastObservedSpread prometheus.Gauge

	// Detector metrics
	OpportunitiesDetected prometheus.Counter
	ScanErrors            *prometheus.CounterVec
	LastSuccessfulScan    prometheus.Gauge

	// Database metrics
	DBQueryErrors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "cexmaster"
	}

	return &Metrics{
		// Execution metrics
		ExecutionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "executions_started_total",
			Help:      "Total number of executions started",
		}),
		ExecutionsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "executions_completed_total",
			Help:      "Total number of executions completed with a realized result",
		}),
		ExecutionsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "executions_failed_total",
			Help:      "Total number of failed executions by failure reason",
		}, []string{"reason"}),
		ExecutionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "execution_duration_seconds",
			Help:      "End-to-end execution duration in seconds",
			Buckets:   []float64{1, 10, 30, 60, 300, 900, 1800, 3600, 7200},
		}),
		ActiveExecutions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "active_executions",
			Help:      "Number of executions currently in a non-terminal state",
		}),
		CumulativeProfit: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "cumulative_profit_quote",
			Help:      "Sum of realized profits in quote currency since start",
		}),

		// Order metrics
		OrdersPlaced: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "placed_total",
			Help:      "Total number of market orders placed by venue and side",
		}, []string{"venue", "side"}),
		OrderRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "retries_total",
			Help:      "Total number of order submissions retried after throttling",
		}),

		// Transfer metrics
		TransfersSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfers",
			Name:      "submitted_total",
			Help:      "Total number of cross-venue withdrawals submitted",
		}),
		TransferTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfers",
			Name:      "timeouts_total",
			Help:      "Total number of transfers that missed the arrival window",
		}),
		TransferDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transfers",
			Name:      "duration_seconds",
			Help:      "Withdrawal submit to destination credit duration in seconds",
			Buckets:   []float64{10, 30, 60, 180, 600, 1800, 3600},
		}),

		// Monitor metrics
		SpreadChecks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "spread_checks_total",
			Help:      "Total number of spread monitor ticks",
		}),
		LastObservedSpread: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "last_observed_spread_pct",
			Help:      "Most recently observed cross-venue spread percent",
		}),

		// Detector metrics
		OpportunitiesDetected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "opportunities_total",
			Help:      "Total number of opportunities stored",
		}),
		ScanErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "scan_errors_total",
			Help:      "Total number of scan errors by venue",
		}, []string{"venue"}),
		LastSuccessfulScan: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "last_successful_scan_timestamp",
			Help:      "Unix timestamp of the last clean detector scan",
		}),

		// Database metrics
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordExecutionStarted increments the executions started counter and the
// active gauge.
func RecordExecutionStarted() {
	DefaultMetrics.ExecutionsStarted.Inc()
	DefaultMetrics.ActiveExecutions.Inc()
}

// RecordExecutionResumed tracks a recovered execution re-entering the
// pipeline without counting it as a new start.
func RecordExecutionResumed() {
	DefaultMetrics.ActiveExecutions.Inc()
}

// RecordExecutionHalted tracks an execution parked by shutdown. It stays
// non-terminal in the store and recovery resumes it on the next boot.
func RecordExecutionHalted() {
	DefaultMetrics.ActiveExecutions.Dec()
}

// RecordExecutionCompleted records a completed execution with its realized
// profit and duration.
func RecordExecutionCompleted(profit float64, durationSeconds float64) {
	DefaultMetrics.ExecutionsCompleted.Inc()
	DefaultMetrics.ActiveExecutions.Dec()
	DefaultMetrics.CumulativeProfit.Add(profit)
	DefaultMetrics.ExecutionDuration.Observe(durationSeconds)
}

// RecordExecutionFailed records a failed execution by reason.
func RecordExecutionFailed(reason string, durationSeconds float64) {
	DefaultMetrics.ExecutionsFailed.WithLabelValues(reason).Inc()
	DefaultMetrics.ActiveExecutions.Dec()
	DefaultMetrics.ExecutionDuration.Observe(durationSeconds)
}

// RecordOrderPlaced increments the orders placed counter.
func RecordOrderPlaced(venue, side string) {
	DefaultMetrics.OrdersPlaced.WithLabelValues(venue, side).Inc()
}

// RecordOrderRetry increments the order retry counter.
func RecordOrderRetry() {
	DefaultMetrics.OrderRetries.Inc()
}

// RecordTransferSubmitted increments the transfers submitted counter.
func RecordTransferSubmitted() {
	DefaultMetrics.TransfersSubmitted.Inc()
}

// RecordTransferTimeout increments the transfer timeout counter.
func RecordTransferTimeout() {
	DefaultMetrics.TransferTimeouts.Inc()
}

// RecordTransferArrived records submit-to-credit duration.
func RecordTransferArrived(durationSeconds float64) {
	DefaultMetrics.TransferDuration.Observe(durationSeconds)
}

// RecordSpreadCheck records one monitor tick and the spread it observed.
func RecordSpreadCheck(spreadPct float64) {
	DefaultMetrics.SpreadChecks.Inc()
	DefaultMetrics.LastObservedSpread.Set(spreadPct)
}

// RecordOpportunityDetected increments the opportunities counter.
func RecordOpportunityDetected() {
	DefaultMetrics.OpportunitiesDetected.Inc()
}

// RecordScanError records a detector scan error for a venue.
func RecordScanError(venue string) {
	DefaultMetrics.ScanErrors.WithLabelValues(venue).Inc()
}

// RecordScanSuccess marks the last clean detector scan time.
func RecordScanSuccess(unixSeconds float64) {
	DefaultMetrics.LastSuccessfulScan.Set(unixSeconds)
}

// RecordDBQueryError records a database query error.
func RecordDBQueryError(database, operation string) {
	DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
}
