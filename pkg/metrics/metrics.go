package metrics

import (
	"strconv"
	"time"
)

// All recorders are safe to call on a nil *Registry so that components can
// run without metrics wired in.

// TransactionBegun marks a transaction as bound for database
func (r *Registry) TransactionBegun(database string) {
	if r == nil {
		return
	}
	r.ActiveTransactions.WithLabelValues(database).Inc()
}

// TransactionFinished records the outcome and lifetime of a transaction
func (r *Registry) TransactionFinished(database, outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.ActiveTransactions.WithLabelValues(database).Dec()
	r.TransactionsTotal.WithLabelValues(database, outcome).Inc()
	r.TransactionDuration.WithLabelValues(database).Observe(duration.Seconds())
}

// RollbackFailed counts a native rollback error
func (r *Registry) RollbackFailed(database string) {
	if r == nil {
		return
	}
	r.RollbackFailures.WithLabelValues(database).Inc()
}

// ExceptionHandled records an exception handler invocation
func (r *Registry) ExceptionHandled(database string, handled bool) {
	if r == nil {
		return
	}
	r.ExceptionHandlerInvocations.WithLabelValues(database, strconv.FormatBool(handled)).Inc()
}

// DatabaseOpened records a successful open
func (r *Registry) DatabaseOpened(database string, duration time.Duration) {
	if r == nil {
		return
	}
	r.DatabasesOpen.Inc()
	r.DatabaseOpenDuration.WithLabelValues(database).Observe(duration.Seconds())
}

// DatabaseClosed records a shutdown attempt; failed shutdowns are counted too
func (r *Registry) DatabaseClosed(err error) {
	if r == nil {
		return
	}
	r.DatabasesOpen.Dec()
	if err != nil {
		r.ShutdownFailuresTotal.Inc()
	}
}

// AccessRejected counts a proxy call made with no bound transaction
func (r *Registry) AccessRejected() {
	if r == nil {
		return
	}
	r.AccessOutsideTxnsTotal.Inc()
}
