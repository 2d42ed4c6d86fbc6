// Package txhandler drives native graph transactions for one named
// database and keeps the execution-context binding in step with them.
package txhandler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/cluso-graphtx/pkg/binding"
	"github.com/dd0wney/cluso-graphtx/pkg/graph"
	"github.com/dd0wney/cluso-graphtx/pkg/logging"
	"github.com/dd0wney/cluso-graphtx/pkg/metrics"
	"github.com/dd0wney/cluso-graphtx/pkg/registry"
	"github.com/dd0wney/cluso-graphtx/pkg/transaction"
)

// ID identifies the graph handler type to the interception host
const ID transaction.HandlerID = "graph"

var errNilTransaction = errors.New("txhandler: nil transaction")

// Handler is the transaction handler of a single database
type Handler struct {
	handle  *registry.Handle
	link    *binding.Link
	logger  logging.Logger
	metrics *metrics.Registry

	started sync.Map // tx ID -> time.Time
}

var _ transaction.Handler[graph.Transaction] = (*Handler)(nil)

// New creates the handler for handle. logger and m may be nil.
func New(handle *registry.Handle, link *binding.Link, logger logging.Logger, m *metrics.Registry) *Handler {
	return &Handler{
		handle: handle,
		link:   link,
		logger: logging.OrDefault(logger).With(
			logging.Component("txhandler"),
			logging.Database(handle.Name),
		),
		metrics: m,
	}
}

// Database returns the name of the database this handler drives
func (h *Handler) Database() string {
	return h.handle.Name
}

// BeginTransaction opens a native transaction and binds it on top of the
// stack for ctx. The returned context carries the binding.
func (h *Handler) BeginTransaction(ctx context.Context) (context.Context, graph.Transaction, error) {
	tx, err := h.handle.DB.Begin(ctx)
	if err != nil {
		h.logger.Error("failed to begin transaction", logging.Error(err))
		return ctx, nil, fmt.Errorf("begin transaction on %s: %w", h.handle.Name, err)
	}

	ctx = h.link.Push(ctx, h.handle, tx)
	h.started.Store(tx.ID(), time.Now())
	h.metrics.TransactionBegun(h.handle.Name)

	h.logger.Debug("transaction bound", h.traceFields(ctx, tx)...)
	return ctx, tx, nil
}

// Commit commits tx and unbinds it. When the native commit fails, exactly
// one rollback is attempted and the binding is popped whatever its outcome;
// the commit error is returned unchanged.
func (h *Handler) Commit(ctx context.Context, tx graph.Transaction) error {
	if tx == nil {
		return errNilTransaction
	}

	commitErr := tx.Commit()
	if commitErr == nil {
		popErr := h.unbind(ctx, tx)
		h.finish(tx, metrics.OutcomeCommitted)
		h.logger.Debug("transaction committed", h.traceFields(ctx, tx)...)
		return popErr
	}

	h.logger.Warn("commit failed, rolling back",
		append(h.traceFields(ctx, tx), logging.Error(commitErr))...)
	if err := tx.Rollback(); err != nil {
		h.metrics.RollbackFailed(h.handle.Name)
		h.logger.Error("rollback after failed commit failed",
			append(h.traceFields(ctx, tx), logging.Error(err))...)
	}
	if err := h.unbind(ctx, tx); err != nil {
		h.logger.Error("failed to unbind transaction", logging.Error(err))
	}
	h.finish(tx, metrics.OutcomeCommitFailed)
	return commitErr
}

// Rollback rolls tx back and unbinds it. It is safe to call after a failed
// commit or a previous rollback, when tx is no longer bound. A tx still
// bound below other entries is unbound anyway and the mismatch reported.
func (h *Handler) Rollback(ctx context.Context, tx graph.Transaction) error {
	if tx == nil {
		return errNilTransaction
	}

	var rollbackErr error
	if tx.State() == graph.TxActive {
		if rollbackErr = tx.Rollback(); rollbackErr != nil {
			h.metrics.RollbackFailed(h.handle.Name)
			h.logger.Error("rollback failed", append(h.traceFields(ctx, tx), logging.Error(rollbackErr))...)
		}
	}

	var unbindErr error
	if err := h.unbind(ctx, tx); errors.Is(err, binding.ErrOutOfOrder) {
		h.logger.Error("rolled back transaction was not innermost", logging.Error(err))
		unbindErr = err
	}
	h.finish(tx, metrics.OutcomeRolledBack)
	h.logger.Debug("transaction rolled back", h.traceFields(ctx, tx)...)
	return errors.Join(rollbackErr, unbindErr)
}

// HandleException offers err to the database's exception handler together
// with tx, or with the transaction bound for this database on ctx when the
// host passes no token. Without a configured handler it reports not handled.
func (h *Handler) HandleException(ctx context.Context, err error, md *transaction.Metadata, tx graph.Transaction) (bool, error) {
	eh := h.handle.ExceptionHandler
	if eh == nil {
		return false, nil
	}

	current := tx
	if current == nil {
		if entry, cerr := h.link.Current(ctx); cerr == nil && entry.Database == h.handle {
			current = entry.Tx
		}
	}

	handled, herr := eh.HandleException(ctx, err, md, current)
	if herr != nil {
		h.logger.Error("exception handler failed", logging.Error(herr))
		return false, herr
	}
	h.metrics.ExceptionHandled(h.handle.Name, handled)
	return handled, nil
}

// unbind removes tx from the stack visible from ctx. Anything bound above
// it means the caller's push and pop no longer match; tx is removed anyway
// so no finished transaction stays reachable through the proxy.
func (h *Handler) unbind(ctx context.Context, tx graph.Transaction) error {
	if err := h.link.Release(ctx, tx); err != nil {
		return fmt.Errorf("unbind transaction %d: %w", tx.ID(), err)
	}
	return nil
}

func (h *Handler) finish(tx graph.Transaction, outcome string) {
	if v, ok := h.started.LoadAndDelete(tx.ID()); ok {
		h.metrics.TransactionFinished(h.handle.Name, outcome, time.Since(v.(time.Time)))
	}
}

func (h *Handler) traceFields(ctx context.Context, tx graph.Transaction) []logging.Field {
	fields := []logging.Field{
		logging.TxID(tx.ID()),
		logging.Int("depth", h.link.Depth(ctx)),
	}
	if id, ok := h.link.ScopeID(ctx); ok {
		fields = append(fields, logging.Scope(id.String()))
	}
	return fields
}
