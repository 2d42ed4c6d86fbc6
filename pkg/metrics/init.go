package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initTransactionMetrics() {
	r.TransactionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphtx_transactions_total",
			Help: "Total number of finished transactions by outcome",
		},
		[]string{"database", "outcome"},
	)

	r.TransactionDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphtx_transaction_duration_seconds",
			Help:    "Time from begin to commit or rollback in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"database"},
	)

	r.ActiveTransactions = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "graphtx_active_transactions",
			Help: "Number of transactions currently bound to an execution context",
		},
		[]string{"database"},
	)

	r.RollbackFailures = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphtx_rollback_failures_total",
			Help: "Total number of native rollbacks that returned an error",
		},
		[]string{"database"},
	)

	r.ExceptionHandlerInvocations = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphtx_exception_handler_invocations_total",
			Help: "Total number of exception handler invocations",
		},
		[]string{"database", "handled"},
	)
}

func (r *Registry) initDatabaseMetrics() {
	r.DatabasesOpen = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "graphtx_databases_open",
			Help: "Number of embedded graph databases currently open",
		},
	)

	r.DatabaseOpenDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphtx_database_open_duration_seconds",
			Help:    "Time spent opening an embedded database, including WAL replay",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
		[]string{"database"},
	)

	r.ShutdownFailuresTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "graphtx_shutdown_failures_total",
			Help: "Total number of databases that failed to shut down cleanly",
		},
	)

	r.AccessOutsideTxnsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "graphtx_access_outside_transaction_total",
			Help: "Total number of proxy calls rejected because no transaction was bound",
		},
	)
}
