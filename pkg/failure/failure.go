// Package failure defines the per-database exception handler contract and
// the catalog that instantiates handlers by configured name.
package failure

import (
	"context"
	"sort"
	"sync"

	"github.com/dd0wney/cluso-graphtx/pkg/errcode"
	"github.com/dd0wney/cluso-graphtx/pkg/graph"
	"github.com/dd0wney/cluso-graphtx/pkg/logging"
	"github.com/dd0wney/cluso-graphtx/pkg/transaction"
)

// Identity is the exception handler marker carried in resolved metadata
const Identity = "graph-exception-handler"

// Handler decides whether a transaction failure has been fully handled.
// Returning true suppresses the failure; an error is never swallowed.
type Handler interface {
	HandleException(ctx context.Context, err error, md *transaction.Metadata, tx graph.Transaction) (bool, error)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, err error, md *transaction.Metadata, tx graph.Transaction) (bool, error)

// HandleException calls f
func (f HandlerFunc) HandleException(ctx context.Context, err error, md *transaction.Metadata, tx graph.Transaction) (bool, error) {
	return f(ctx, err, md, tx)
}

// Factory builds a handler for the named database
type Factory func(database string, logger logging.Logger) (Handler, error)

// Catalog maps configured handler names to factories. It replaces loading
// handler implementations by class name.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog returns a catalog seeded with the built-in handlers
func NewCatalog() *Catalog {
	c := &Catalog{factories: make(map[string]Factory)}
	c.Register(LogHandlerName, newLogHandler)
	c.Register(SuppressHandlerName, newSuppressHandler)
	return c
}

// Register adds or replaces a factory
func (c *Catalog) Register(name string, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = f
}

// Has reports whether name is registered
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.factories[name]
	return ok
}

// Names returns the registered names in sorted order
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New instantiates the handler registered under name for database
func (c *Catalog) New(name, database string, logger logging.Logger) (Handler, error) {
	c.mu.RLock()
	f, ok := c.factories[name]
	c.mu.RUnlock()

	if !ok {
		return nil, errcode.New(errcode.UnableToLoadExceptionHandler).
			Database(database).
			Detail("handler", name).
			Err()
	}

	h, err := f(database, logging.OrDefault(logger))
	if err != nil {
		return nil, errcode.New(errcode.UnableToLoadExceptionHandler).
			Database(database).
			Detail("handler", name).
			Cause(err).
			Err()
	}
	if h == nil {
		return nil, errcode.New(errcode.UnableToLoadExceptionHandler).
			Database(database).
			Detail("handler", name).
			Detail("reason", "factory returned nil").
			Err()
	}
	return h, nil
}
