// Package engine runs metadata-defined datasets against a target warehouse.
// It resolves the dependency graph, plans every selected dataset, blocks the
// run on unsafe schema drift and hands the rendered statements to the
// orchestrator, which records attempts and snapshots in the state store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/leapstack-labs/leapmeta/internal/dag"
	"github.com/leapstack-labs/leapmeta/internal/metadata"
	"github.com/leapstack-labs/leapmeta/internal/state"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
	"github.com/prometheus/client_golang/prometheus"
)

// Engine orchestrates planning and execution of datasets.
type Engine struct {
	catalog *core.Catalog
	graph   *dag.Graph
	dialect dialect.Dialect
	target  core.TargetConfig
	pepper  string

	// Executor (lazy initialized)
	exec          core.Executor
	execConnected bool
	execMu        sync.Mutex

	store   state.Store
	metrics *Metrics
	logger  *slog.Logger
}

// Config holds engine configuration.
type Config struct {
	// MetadataDir is the directory holding the dataset YAML files.
	MetadataDir string
	// StatePath is the SQLite state database; empty disables persistence,
	// and so does a path that cannot be opened.
	StatePath string
	// Dialect is the resolved dialect name.
	Dialect string
	// Target is the connection configuration handed to the executor.
	Target core.TargetConfig
	// Pepper is appended to surrogate and foreign key hashes.
	Pepper string
	// Executor overrides the dialect's execution engine (optional).
	Executor core.Executor
	// Registerer receives the orchestrator metrics (optional).
	Registerer prometheus.Registerer
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// New loads the metadata directory and creates an engine. The executor
// is only connected when a run needs the warehouse.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger.Debug("initializing engine", "metadata_dir", cfg.MetadataDir, "dialect", cfg.Dialect)

	catalog, err := metadata.NewLoader(cfg.MetadataDir, logger).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	return NewWithCatalog(catalog, cfg)
}

// NewWithCatalog creates an engine over an already loaded catalog.
func NewWithCatalog(catalog *core.Catalog, cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	d, err := dialect.Resolve(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	graph, err := dag.FromCatalog(catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to build dependency graph: %w", err)
	}

	e := &Engine{
		catalog: catalog,
		graph:   graph,
		dialect: d,
		target:  cfg.Target,
		pepper:  cfg.Pepper,
		exec:    cfg.Executor,
		metrics: NewMetrics(cfg.Registerer),
		logger:  logger,
	}

	// Run history is best-effort: an unusable state path disables it.
	if cfg.StatePath != "" {
		store := state.NewSQLiteStore(logger)
		if err := store.Open(cfg.StatePath); err != nil {
			logger.Warn("state store unavailable, run history disabled", "path", cfg.StatePath, "error", err)
		} else {
			e.store = store
		}
	}

	logger.Debug("engine initialized", "datasets", catalog.Len(), "dialect", d.Name())
	return e, nil
}

// ensureConnected lazily creates and connects the executor.
func (e *Engine) ensureConnected(ctx context.Context) error {
	e.execMu.Lock()
	defer e.execMu.Unlock()

	if e.execConnected {
		return nil
	}

	if e.exec == nil {
		e.logger.Debug("creating executor", "dialect", e.dialect.Name(), "target_type", e.target.Type)
		exec, err := e.dialect.ExecutionEngine(e.target, e.logger)
		if err != nil {
			return fmt.Errorf("failed to create executor: %w", err)
		}
		e.exec = exec
	}

	if err := e.exec.Connect(ctx, e.target); err != nil {
		return fmt.Errorf("failed to connect to target: %w", err)
	}
	e.execConnected = true
	e.logger.Debug("target connected", "dialect", e.dialect.Name())
	return nil
}

// Close releases all resources.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")

	var errs []error
	if e.exec != nil && e.execConnected {
		if err := e.exec.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close executor: %w", err))
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close state store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// --- Getters (public accessors) ---

// Catalog returns the loaded metadata catalog.
func (e *Engine) Catalog() *core.Catalog {
	return e.catalog
}

// Graph returns the dependency graph.
func (e *Engine) Graph() *dag.Graph {
	return e.graph
}

// Dialect returns the resolved dialect.
func (e *Engine) Dialect() dialect.Dialect {
	return e.dialect
}

// Store returns the state store, or nil when persistence is disabled.
func (e *Engine) Store() state.Store {
	return e.store
}
