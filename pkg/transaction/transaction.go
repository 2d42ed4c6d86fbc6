// Package transaction is the generic interception host: it asks resolvers
// whether a call is transactional, then drives the resolved handler through
// begin, commit or rollback and exception dispatch around the call.
package transaction

import (
	"context"
	"errors"
)

// HandlerID names a registered transaction handler type
type HandlerID string

// Metadata is resolved per call and never cached
type Metadata struct {
	Handler          HandlerID
	ExceptionHandler string
	Resource         string
}

// Clone returns an independent copy
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// Call describes one intercepted invocation. Database is the explicit
// per-call selector; Method and Receiver are matched against Selectors.
type Call struct {
	Method   string
	Receiver string
	Database string
}

// Resolver decides whether a call participates in a handler's transactions.
// It returns nil to decline.
type Resolver interface {
	Resolve(call *Call, defaults *Metadata) *Metadata
}

// ResolverFunc adapts a function to Resolver
type ResolverFunc func(call *Call, defaults *Metadata) *Metadata

// Resolve calls f
func (f ResolverFunc) Resolve(call *Call, defaults *Metadata) *Metadata {
	return f(call, defaults)
}

// Handler drives one native transaction type. The context returned by
// BeginTransaction is the one the intercepted call and the terminal
// Commit or Rollback run with.
type Handler[T any] interface {
	BeginTransaction(ctx context.Context) (context.Context, T, error)
	Commit(ctx context.Context, tx T) error
	Rollback(ctx context.Context, tx T) error
	HandleException(ctx context.Context, err error, md *Metadata, tx T) (bool, error)
}

var (
	// ErrUnknownHandler is returned when metadata names a handler that was never registered
	ErrUnknownHandler = errors.New("transaction: unknown handler")

	// ErrUnknownResource is returned when a handler has no instance for the resolved resource
	ErrUnknownResource = errors.New("transaction: unknown resource")
)
