// Package errcode defines the error kinds raised by the transactional
// binding layer and a structured error type carrying them.
package errcode

import (
	"errors"
	"fmt"
)

// Code identifies a kind of failure.
type Code string

const (
	AccessOutsideTransaction     Code = "ACCESSING_DATABASE_OUTSIDE_TRANSACTION"
	InvalidDatabaseSetting       Code = "INVALID_DATABASE_SETTING"
	InvalidPropertiesURL         Code = "INVALID_PROPERTIES_URL"
	UnsupportedDatabaseType      Code = "UNSUPPORTED_DATABASE_TYPE"
	UnableToLoadExceptionHandler Code = "UNABLE_TO_LOAD_EXCEPTION_HANDLER"
)

// Sentinels for errors.Is matching. An *Error matches the sentinel of its code.
var (
	ErrAccessOutsideTransaction     = &Error{Code: AccessOutsideTransaction}
	ErrInvalidDatabaseSetting       = &Error{Code: InvalidDatabaseSetting}
	ErrInvalidPropertiesURL         = &Error{Code: InvalidPropertiesURL}
	ErrUnsupportedDatabaseType      = &Error{Code: UnsupportedDatabaseType}
	ErrUnableToLoadExceptionHandler = &Error{Code: UnableToLoadExceptionHandler}
)

// Error provides structured information about a binding-layer failure.
type Error struct {
	Code     Code   // Kind of failure
	Database string // Database name (if applicable)
	Detail   string // Additional context, e.g. "setting=wal_sync"
	Cause    error  // Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Database != "" {
		msg = fmt.Sprintf("%s (database %s)", msg, e.Database)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Detail)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Builder provides a fluent interface for building Errors.
type Builder struct {
	err Error
}

// New creates a new error builder for the given code.
func New(code Code) *Builder {
	return &Builder{err: Error{Code: code}}
}

// Database sets the database the error relates to.
func (b *Builder) Database(name string) *Builder {
	b.err.Database = name
	return b
}

// Detail appends a key=value pair to the error detail.
func (b *Builder) Detail(key string, value any) *Builder {
	kv := fmt.Sprintf("%s=%v", key, value)
	if b.err.Detail == "" {
		b.err.Detail = kv
	} else {
		b.err.Detail += ", " + kv
	}
	return b
}

// Cause sets the underlying error cause.
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Err returns the constructed error.
func (b *Builder) Err() error {
	e := b.err
	return &e
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
