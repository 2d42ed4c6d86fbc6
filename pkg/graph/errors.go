package graph

import (
	"errors"
	"fmt"
)

var (
	ErrNodeNotFound            = errors.New("node not found")
	ErrEdgeNotFound            = errors.New("edge not found")
	ErrDatabaseShutdown        = errors.New("database has been shut down")
	ErrTransactionNotActive    = errors.New("transaction is not active")
	ErrTransactionAlreadyEnded = errors.New("transaction has already been committed or rolled back")
	ErrTransactionTimedOut     = errors.New("transaction exceeded tx_timeout and was aborted")
	ErrReadOnly                = errors.New("database is read-only")
	ErrInvalidSetting          = errors.New("invalid database setting")
	ErrInvalidPropertiesURL    = errors.New("invalid properties URL")
	ErrCorruptWAL              = errors.New("corrupt WAL record")
)

// SettingError reports a rejected setting key or value.
type SettingError struct {
	Key   string
	Value string
	Cause error
}

func (e *SettingError) Error() string {
	return fmt.Sprintf("setting %s=%q: %v", e.Key, e.Value, e.Cause)
}

// Unwrap returns ErrInvalidSetting followed by the parse cause.
func (e *SettingError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrInvalidSetting}
	}
	return []error{ErrInvalidSetting, e.Cause}
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound) || errors.Is(err, ErrEdgeNotFound)
}

func nodeNotFound(id uint64) error {
	return fmt.Errorf("node %d: %w", id, ErrNodeNotFound)
}

func edgeNotFound(id uint64) error {
	return fmt.Errorf("edge %d: %w", id, ErrEdgeNotFound)
}
