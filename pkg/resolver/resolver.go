// Package resolver decides, per call, whether the graph transaction
// handler applies and which named database it binds.
package resolver

import (
	"github.com/dd0wney/cluso-graphtx/pkg/failure"
	"github.com/dd0wney/cluso-graphtx/pkg/transaction"
)

// DefaultDatabase reports the registry's default database, if any
type DefaultDatabase func() (string, bool)

// Resolver implements transaction.Resolver for one handler identity.
// Nothing is cached: the selector table and the default are consulted on
// every call.
type Resolver struct {
	handler   transaction.HandlerID
	defaultDB DefaultDatabase
	selectors *transaction.Selectors
}

var _ transaction.Resolver = (*Resolver)(nil)

// Option configures a Resolver
type Option func(*Resolver)

// WithSelectors adds a static method and type registration table
func WithSelectors(s *transaction.Selectors) Option {
	return func(r *Resolver) {
		r.selectors = s
	}
}

// New creates a resolver producing metadata for handler
func New(handler transaction.HandlerID, defaultDB DefaultDatabase, opts ...Option) *Resolver {
	r := &Resolver{handler: handler, defaultDB: defaultDB}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve names the database selected by call, else the default database
// when the host's default handler is this one. Otherwise it declines.
func (r *Resolver) Resolve(call *transaction.Call, defaults *transaction.Metadata) *transaction.Metadata {
	if name, ok := r.selectors.Lookup(call); ok {
		return r.metadata(name)
	}

	if defaults == nil || defaults.Handler != r.handler || r.defaultDB == nil {
		return nil
	}
	if name, ok := r.defaultDB(); ok {
		return r.metadata(name)
	}
	return nil
}

func (r *Resolver) metadata(resource string) *transaction.Metadata {
	return &transaction.Metadata{
		Handler:          r.handler,
		ExceptionHandler: failure.Identity,
		Resource:         resource,
	}
}
