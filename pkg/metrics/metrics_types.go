package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the transactional binding layer
type Registry struct {
	// Transaction Metrics
	TransactionsTotal   *prometheus.CounterVec
	TransactionDuration *prometheus.HistogramVec
	ActiveTransactions  *prometheus.GaugeVec
	RollbackFailures    *prometheus.CounterVec

	// Exception Handler Metrics
	ExceptionHandlerInvocations *prometheus.CounterVec

	// Database Lifecycle Metrics
	DatabasesOpen          prometheus.Gauge
	DatabaseOpenDuration   *prometheus.HistogramVec
	ShutdownFailuresTotal  prometheus.Counter
	AccessOutsideTxnsTotal prometheus.Counter

	registry *prometheus.Registry
}

// Transaction outcomes used as label values
const (
	OutcomeCommitted    = "committed"
	OutcomeRolledBack   = "rolled_back"
	OutcomeCommitFailed = "commit_failed"
)

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initTransactionMetrics()
	r.initDatabaseMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
