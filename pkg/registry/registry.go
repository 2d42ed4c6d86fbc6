// Package registry opens the configured graph databases once at startup
// and hands out their handles by name until shutdown.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dd0wney/cluso-graphtx/pkg/config"
	"github.com/dd0wney/cluso-graphtx/pkg/errcode"
	"github.com/dd0wney/cluso-graphtx/pkg/failure"
	"github.com/dd0wney/cluso-graphtx/pkg/graph"
	"github.com/dd0wney/cluso-graphtx/pkg/logging"
	"github.com/dd0wney/cluso-graphtx/pkg/metrics"
)

// Handle is one opened database. It is immutable once registered.
type Handle struct {
	Name             string
	Path             string
	DB               graph.Database
	ExceptionHandler failure.Handler // nil when none is configured
}

// Opener opens the native database for one configuration entry
type Opener func(name, path string, spec *config.Database) (graph.Database, error)

// Options configures Open. Zero values select the defaults.
type Options struct {
	Catalog *failure.Catalog
	Logger  logging.Logger
	Metrics *metrics.Registry
	Opener  Opener
}

// Registry maps database names to handles. It is read-only after Open.
type Registry struct {
	handles    map[string]*Handle
	names      []string
	defaultDB  string
	hasDefault bool

	logger  logging.Logger
	metrics *metrics.Registry

	shutdownOnce sync.Once
	shutdownErrs []error
}

// Open validates cfg and opens every configured database in name order.
// Unsupported types and unknown exception handlers are rejected before
// anything is opened; if a later open fails, the databases already opened
// are shut down before the error is returned.
func Open(cfg *config.Config, opts Options) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	catalog := opts.Catalog
	if catalog == nil {
		catalog = failure.NewCatalog()
	}
	opener := opts.Opener
	if opener == nil {
		opener = OpenEmbedded
	}

	r := &Registry{
		handles: make(map[string]*Handle, len(cfg.Databases)),
		logger:  logging.OrDefault(opts.Logger).With(logging.Component("registry")),
		metrics: opts.Metrics,
	}

	names := cfg.Names()
	if len(names) == 0 {
		r.logger.Info("No graph database configured, graph support disabled")
		return r, nil
	}

	handlers, err := preflight(cfg, names, catalog, r.logger)
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		path := cfg.DatabasePath(name)
		r.logger.Info("Opening graph database", logging.Database(name), logging.Path(path))

		start := time.Now()
		db, err := opener(name, path, cfg.Databases[name])
		if err != nil {
			r.logger.Error("failed to open graph database", logging.Database(name), logging.Error(err))
			r.Shutdown()
			return nil, err
		}
		r.metrics.DatabaseOpened(name, time.Since(start))

		r.handles[name] = &Handle{
			Name:             name,
			Path:             path,
			DB:               db,
			ExceptionHandler: handlers[name],
		}
		r.names = append(r.names, name)
	}

	r.defaultDB, r.hasDefault = cfg.ResolveDefault()
	if r.hasDefault {
		r.logger.Info("default graph database selected", logging.Database(r.defaultDB))
	}
	return r, nil
}

func preflight(cfg *config.Config, names []string, catalog *failure.Catalog, logger logging.Logger) (map[string]failure.Handler, error) {
	handlers := make(map[string]failure.Handler)
	for _, name := range names {
		spec := cfg.Databases[name]
		if t := spec.TypeOf(); t != config.TypeEmbedded {
			return nil, errcode.New(errcode.UnsupportedDatabaseType).
				Database(name).
				Detail("type", t).
				Err()
		}
		if spec.ExceptionHandler == "" {
			continue
		}
		h, err := catalog.New(spec.ExceptionHandler, name, logger)
		if err != nil {
			return nil, err
		}
		handlers[name] = h
	}
	return handlers, nil
}

// OpenEmbedded opens an embedded database: the properties URL is loaded
// first, then the individual settings in key order.
func OpenEmbedded(name, path string, spec *config.Database) (graph.Database, error) {
	b := graph.NewBuilder(path)

	if spec.PropertiesURL != "" {
		if err := b.LoadPropertiesFromURL(spec.PropertiesURL); err != nil {
			code := errcode.InvalidPropertiesURL
			if errors.Is(err, graph.ErrInvalidSetting) {
				code = errcode.InvalidDatabaseSetting
			}
			return nil, errcode.New(code).
				Database(name).
				Detail("url", spec.PropertiesURL).
				Cause(err).
				Err()
		}
	}

	keys := make([]string, 0, len(spec.Settings))
	for k := range spec.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := b.SetConfig(k, spec.Settings[k]); err != nil {
			return nil, errcode.New(errcode.InvalidDatabaseSetting).
				Database(name).
				Detail("setting", k).
				Cause(err).
				Err()
		}
	}

	db, err := b.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open graph database %s at %s: %w", name, path, err)
	}
	return db, nil
}

// Get returns the handle registered under name
func (r *Registry) Get(name string) (*Handle, bool) {
	h, ok := r.handles[name]
	return h, ok
}

// Names returns the registered names in sorted order
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of registered databases
func (r *Registry) Len() int {
	return len(r.handles)
}

// DefaultDatabase returns the database used by calls that select none
func (r *Registry) DefaultDatabase() (string, bool) {
	return r.defaultDB, r.hasDefault
}

// Shutdown closes every database independently. Failures are logged and
// returned for inspection only; one failure never stops the others from
// closing. Subsequent calls return the first call's result.
func (r *Registry) Shutdown() []error {
	r.shutdownOnce.Do(func() {
		for _, name := range r.names {
			h := r.handles[name]
			r.logger.Info(fmt.Sprintf("Shutting down %s graph database", name), logging.Database(name))

			err := shutdownOne(h)
			r.metrics.DatabaseClosed(err)
			if err != nil {
				r.logger.Error("failed to shut down graph database", logging.Database(name), logging.Error(err))
				r.shutdownErrs = append(r.shutdownErrs, fmt.Errorf("database %s: %w", name, err))
			}
		}
	})
	return r.shutdownErrs
}

func shutdownOne(h *Handle) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during shutdown: %v", p)
		}
	}()
	return h.DB.Shutdown()
}
