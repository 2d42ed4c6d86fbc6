// Package graphtx wires the configured graph databases into transaction
// scoped access: one registry, one binding link, one shared proxy, a
// handler per database and a resolver registered with the interception
// host.
package graphtx

import (
	"context"
	"os"

	"github.com/dd0wney/cluso-graphtx/pkg/binding"
	"github.com/dd0wney/cluso-graphtx/pkg/config"
	"github.com/dd0wney/cluso-graphtx/pkg/failure"
	"github.com/dd0wney/cluso-graphtx/pkg/graph"
	"github.com/dd0wney/cluso-graphtx/pkg/logging"
	"github.com/dd0wney/cluso-graphtx/pkg/metrics"
	"github.com/dd0wney/cluso-graphtx/pkg/proxy"
	"github.com/dd0wney/cluso-graphtx/pkg/registry"
	"github.com/dd0wney/cluso-graphtx/pkg/resolver"
	"github.com/dd0wney/cluso-graphtx/pkg/transaction"
	"github.com/dd0wney/cluso-graphtx/pkg/txhandler"
)

type options struct {
	logger         logging.Logger
	metrics        *metrics.Registry
	catalog        *failure.Catalog
	selectors      *transaction.Selectors
	opener         registry.Opener
	interceptor    *transaction.Interceptor
	defaultHandler bool
}

// Option configures Open
type Option func(*options)

// WithLogger sets the logger. By default a JSON logger on stderr at the
// configured log level is used.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics registry
func WithMetrics(m *metrics.Registry) Option {
	return func(o *options) { o.metrics = m }
}

// WithCatalog sets the exception handler catalog
func WithCatalog(c *failure.Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// WithSelectors sets the static call site to database table
func WithSelectors(s *transaction.Selectors) Option {
	return func(o *options) { o.selectors = s }
}

// WithOpener replaces the embedded database opener
func WithOpener(op registry.Opener) Option {
	return func(o *options) { o.opener = op }
}

// WithInterceptor registers into an existing interception host instead of
// a private one
func WithInterceptor(ic *transaction.Interceptor) Option {
	return func(o *options) { o.interceptor = ic }
}

// WithoutDefaultHandler leaves the host's default handler untouched, so
// calls that select no database are not claimed by the graph handler
func WithoutDefaultHandler() Option {
	return func(o *options) { o.defaultHandler = false }
}

// Module is the opened graph transaction layer
type Module struct {
	registry    *registry.Registry
	link        *binding.Link
	graph       *proxy.Graph
	handlers    map[string]*txhandler.Handler
	interceptor *transaction.Interceptor
	logger      logging.Logger
}

// Open opens every configured database and registers the graph handler
// and resolver with the interception host.
func Open(cfg *config.Config, opts ...Option) (*Module, error) {
	o := options{defaultHandler: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		level := logging.InfoLevel
		if cfg != nil {
			level = logging.ParseLevel(cfg.LogLevel)
		}
		o.logger = logging.NewJSONLogger(os.Stderr, level)
	}

	reg, err := registry.Open(cfg, registry.Options{
		Catalog: o.catalog,
		Logger:  o.logger,
		Metrics: o.metrics,
		Opener:  o.opener,
	})
	if err != nil {
		return nil, err
	}

	m := &Module{
		registry: reg,
		link:     binding.NewLink(),
		handlers: make(map[string]*txhandler.Handler, reg.Len()),
		logger:   o.logger.With(logging.Component("graphtx")),
	}
	m.graph = proxy.New(m.link, o.metrics)

	for _, name := range reg.Names() {
		handle, _ := reg.Get(name)
		m.handlers[name] = txhandler.New(handle, m.link, o.logger, o.metrics)
	}

	m.interceptor = o.interceptor
	if m.interceptor == nil {
		m.interceptor = transaction.NewInterceptor(o.logger)
	}
	transaction.Register[graph.Transaction](m.interceptor, txhandler.ID, m.lookup)
	m.interceptor.AddResolver(resolver.New(txhandler.ID, reg.DefaultDatabase, resolver.WithSelectors(o.selectors)))
	if o.defaultHandler {
		m.interceptor.SetDefaultHandler(txhandler.ID)
	}

	m.logger.Info("graph transaction support ready", logging.Int("databases", reg.Len()))
	return m, nil
}

func (m *Module) lookup(resource string) (transaction.Handler[graph.Transaction], bool) {
	h, ok := m.handlers[resource]
	if !ok {
		return nil, false
	}
	return h, true
}

// Graph returns the shared proxy for the current database
func (m *Module) Graph() *proxy.Graph {
	return m.graph
}

// Handler returns the transaction handler of name
func (m *Module) Handler(name string) (*txhandler.Handler, bool) {
	h, ok := m.handlers[name]
	return h, ok
}

// Registry returns the database registry
func (m *Module) Registry() *registry.Registry {
	return m.registry
}

// Interceptor returns the interception host the module registered with
func (m *Module) Interceptor() *transaction.Interceptor {
	return m.interceptor
}

// Run executes fn for call, inside a transaction when the call resolves
// to a graph database
func (m *Module) Run(ctx context.Context, call *transaction.Call, fn func(ctx context.Context) error) error {
	return m.interceptor.Run(ctx, call, fn)
}

// InDatabase runs fn inside a transaction on the named database
func (m *Module) InDatabase(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return m.interceptor.Run(ctx, &transaction.Call{Database: name}, fn)
}

// Detach returns a context for a goroutine spawned inside a transaction.
// The goroutine starts with no bindings of its own.
func (m *Module) Detach(ctx context.Context) context.Context {
	return m.link.Detach(ctx)
}

// Shutdown closes every database. Failures are logged by the registry.
func (m *Module) Shutdown() []error {
	return m.registry.Shutdown()
}
