package failure

import (
	"context"

	"github.com/dd0wney/cluso-graphtx/pkg/graph"
	"github.com/dd0wney/cluso-graphtx/pkg/logging"
	"github.com/dd0wney/cluso-graphtx/pkg/transaction"
)

// Built-in handler names
const (
	LogHandlerName      = "log"
	SuppressHandlerName = "suppress"
)

// loggingHandler records the failure and reports whether it is handled
type loggingHandler struct {
	logger  logging.Logger
	handled bool
}

func newLogHandler(database string, logger logging.Logger) (Handler, error) {
	return &loggingHandler{
		logger: logger.With(logging.Component("exception-handler"), logging.Database(database)),
	}, nil
}

func newSuppressHandler(database string, logger logging.Logger) (Handler, error) {
	return &loggingHandler{
		logger:  logger.With(logging.Component("exception-handler"), logging.Database(database)),
		handled: true,
	}, nil
}

func (h *loggingHandler) HandleException(ctx context.Context, err error, md *transaction.Metadata, tx graph.Transaction) (bool, error) {
	fields := []logging.Field{logging.Error(err), logging.Bool("handled", h.handled)}
	if md != nil {
		fields = append(fields, logging.String("resource", md.Resource))
	}
	if tx != nil {
		fields = append(fields, logging.TxID(tx.ID()), logging.String("tx_state", tx.State().String()))
	}

	if h.handled {
		h.logger.Warn("transaction failure suppressed", fields...)
	} else {
		h.logger.Error("transaction failed", fields...)
	}
	return h.handled, nil
}
