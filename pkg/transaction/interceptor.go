package transaction

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dd0wney/cluso-graphtx/pkg/logging"
)

// runner drives one resolved call through a registered handler type
type runner func(ctx context.Context, md *Metadata, fn func(context.Context) error) error

// Interceptor resolves metadata for each call and runs the call inside the
// transaction of the resolved handler.
type Interceptor struct {
	mu        sync.RWMutex
	resolvers []Resolver
	runners   map[HandlerID]runner
	defaults  Metadata
	logger    logging.Logger
}

// NewInterceptor creates an interceptor with no handlers registered
func NewInterceptor(logger logging.Logger) *Interceptor {
	return &Interceptor{
		runners: make(map[HandlerID]runner),
		logger:  logging.OrDefault(logger).With(logging.Component("interceptor")),
	}
}

// Register installs a handler type. lookup returns the handler instance
// for a resolved resource name.
func Register[T any](ic *Interceptor, id HandlerID, lookup func(resource string) (Handler[T], bool)) {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	ic.runners[id] = func(ctx context.Context, md *Metadata, fn func(context.Context) error) error {
		h, ok := lookup(md.Resource)
		if !ok {
			return fmt.Errorf("%w: %q for handler %s", ErrUnknownResource, md.Resource, id)
		}
		return drive(ctx, ic.logger, h, md, fn)
	}
}

// AddResolver appends a resolver. Resolvers are consulted in order and the
// first one producing metadata wins.
func (ic *Interceptor) AddResolver(r Resolver) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.resolvers = append(ic.resolvers, r)
}

// SetDefaultHandler sets the handler used for calls that name none
func (ic *Interceptor) SetDefaultHandler(id HandlerID) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.defaults.Handler = id
}

// Defaults returns a copy of the default metadata
func (ic *Interceptor) Defaults() *Metadata {
	ic.mu.RLock()
	defer ic.mu.RUnlock()
	return ic.defaults.Clone()
}

// Resolve returns the metadata for call, or nil when no resolver claims it
func (ic *Interceptor) Resolve(call *Call) *Metadata {
	ic.mu.RLock()
	resolvers := append([]Resolver(nil), ic.resolvers...)
	defaults := ic.defaults
	ic.mu.RUnlock()

	for _, r := range resolvers {
		if md := r.Resolve(call, defaults.Clone()); md != nil {
			return md
		}
	}
	return nil
}

// Run executes fn for call. A call no resolver claims runs without a
// transaction. Otherwise fn runs with the context returned by
// BeginTransaction and its outcome decides between commit and rollback.
func (ic *Interceptor) Run(ctx context.Context, call *Call, fn func(ctx context.Context) error) error {
	md := ic.Resolve(call)
	if md == nil {
		return fn(ctx)
	}

	ic.mu.RLock()
	run, ok := ic.runners[md.Handler]
	ic.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandler, md.Handler)
	}
	return run(ctx, md, fn)
}

func drive[T any](ctx context.Context, logger logging.Logger, h Handler[T], md *Metadata, fn func(context.Context) error) error {
	txCtx, tx, err := h.BeginTransaction(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			perr := fmt.Errorf("panic in transactional call: %v", r)
			if _, herr := h.HandleException(txCtx, perr, md, tx); herr != nil {
				logger.Error("exception handler failed during panic", logging.Error(herr))
			}
			if rerr := h.Rollback(txCtx, tx); rerr != nil {
				logger.Error("rollback failed during panic", logging.Error(rerr))
			}
			panic(r)
		}
	}()

	if ferr := fn(txCtx); ferr != nil {
		handled, herr := h.HandleException(txCtx, ferr, md, tx)
		if rerr := h.Rollback(txCtx, tx); rerr != nil {
			logger.Warn("rollback after failure returned error",
				logging.String("resource", md.Resource), logging.Error(rerr))
		}
		return settle(ferr, handled, herr)
	}

	if cerr := h.Commit(txCtx, tx); cerr != nil {
		handled, herr := h.HandleException(txCtx, cerr, md, tx)
		return settle(cerr, handled, herr)
	}
	return nil
}

// settle decides what the caller sees after exception dispatch
func settle(err error, handled bool, handlerErr error) error {
	if handlerErr != nil {
		return errors.Join(err, handlerErr)
	}
	if handled {
		return nil
	}
	return err
}
