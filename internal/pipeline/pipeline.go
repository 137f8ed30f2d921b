// Package pipeline turns one dataset into its ordered, rendered statements:
// logical plan, drift DDL, load DML, then history DML.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
	"github.com/leapstack-labs/leapmeta/pkg/drift"
	"github.com/leapstack-labs/leapmeta/pkg/history"
	"github.com/leapstack-labs/leapmeta/pkg/incremental"
	"github.com/leapstack-labs/leapmeta/pkg/plan"
)

// Options configures a pipeline.
type Options struct {
	// Dialect is resolved by the caller; the pipeline never looks it up.
	Dialect dialect.Dialect
	// Pepper is appended to surrogate and foreign key hashes.
	Pepper string
	// RunID is written to load_run_id of new history rows.
	RunID string
	// At is the run timestamp of history versions.
	At time.Time
	// Preview renders without a connection: tables are assumed to exist with
	// the declared schema and drift is skipped.
	Preview bool
}

// Statement is one rendered statement.
type Statement struct {
	Phase  plan.Phase
	Target core.TableRef
	SQL    string
}

// DatasetPlan is everything planned for one dataset.
type DatasetPlan struct {
	Dataset    *core.Dataset
	Query      *plan.Query
	Drift      *drift.Result
	Steps      []plan.Step
	Statements []Statement
}

// Pipeline plans datasets of one catalog against one dialect.
type Pipeline struct {
	catalog *core.Catalog
	builder *plan.Builder
	opts    Options
	logger  *slog.Logger
}

// New creates a pipeline.
func New(catalog *core.Catalog, opts Options, logger *slog.Logger) (*Pipeline, error) {
	if opts.Dialect == nil {
		return nil, dialect.ErrDialectRequired
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.At.IsZero() {
		opts.At = time.Now()
	}
	return &Pipeline{
		catalog: catalog,
		builder: plan.NewBuilder(catalog, opts.Pepper),
		opts:    opts,
		logger:  logger,
	}, nil
}

// Options returns the pipeline options.
func (p *Pipeline) Options() Options {
	return p.opts
}

// Plan builds, evolves, loads and historizes ds. schemas holds the
// introspected tables of drift.Tables(ds); it is ignored in preview mode.
//
// Errors are blocking (*core.ParseError, *core.LineageIncompleteError,
// *core.DialectCapabilityError, *core.TypeDriftBlockingError). On a drift
// error the returned plan still carries the drift findings.
func (p *Pipeline) Plan(ds *core.Dataset, schemas core.Schemas) (*DatasetPlan, error) {
	dp := &DatasetPlan{Dataset: ds}

	q, err := p.builder.Build(ds)
	if err != nil {
		return dp, err
	}
	dp.Query = q

	if ds.Schema != "" {
		dp.Steps = append(dp.Steps, plan.Step{Phase: plan.PhaseEvolve, Statement: &plan.CreateSchema{Schema: ds.Schema}})
	}

	targetExists, historyExists := true, true
	if !p.opts.Preview {
		res, err := drift.Plan(drift.Input{Dataset: ds, Schemas: schemas, Dialect: p.opts.Dialect})
		dp.Drift = res
		if err != nil {
			return dp, err
		}
		for _, f := range res.Findings {
			p.logger.Debug("schema drift", "dataset", ds.Name, "finding", f.Summary())
		}
		dp.Steps = append(dp.Steps, res.Steps...)
		targetExists, historyExists = res.TargetExists, res.HistoryExists
	}

	load, err := incremental.Plan(incremental.Input{
		Dataset:      ds,
		Query:        q,
		Dialect:      p.opts.Dialect.Name(),
		Capabilities: p.opts.Dialect.Capabilities(),
		TargetExists: targetExists,
	})
	if err != nil {
		return dp, err
	}
	dp.Steps = append(dp.Steps, load...)

	hist, err := history.Plan(history.Input{
		Dataset:       ds,
		At:            history.Timestamp(p.opts.At),
		RunID:         p.opts.RunID,
		HistoryExists: historyExists,
	})
	if err != nil {
		return dp, err
	}
	dp.Steps = append(dp.Steps, hist...)

	for _, step := range dp.Steps {
		sql, err := p.opts.Dialect.RenderStatement(step.Statement)
		if err != nil {
			var ce *core.DialectCapabilityError
			if errors.As(err, &ce) && ce.Dataset == "" {
				ce.Dataset = ds.Name
			}
			return dp, fmt.Errorf("dataset %s: render %s: %w", ds.Name, step.Phase, err)
		}
		dp.Statements = append(dp.Statements, Statement{Phase: step.Phase, Target: step.Statement.Target(), SQL: sql})
	}
	return dp, nil
}

// Introspect describes every table drift planning needs for datasets.
// Tables that do not exist are left out of the result.
func Introspect(ctx context.Context, exec core.Executor, datasets []*core.Dataset) (core.Schemas, error) {
	schemas := core.Schemas{}
	for _, ds := range datasets {
		for _, ref := range drift.Tables(ds) {
			if _, done := schemas[ref]; done {
				continue
			}
			meta, err := exec.DescribeTable(ctx, ref)
			if errors.Is(err, core.ErrTableNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to describe %s: %w", ref, err)
			}
			schemas[ref] = meta
		}
	}
	return schemas, nil
}

// Preflight plans every dataset before anything executes. Per-dataset plan
// errors are returned in the map; drift blocks are additionally joined into
// the returned error, since they stop the whole run.
func (p *Pipeline) Preflight(datasets []*core.Dataset, schemas core.Schemas) (map[string]*DatasetPlan, map[string]error, error) {
	plans := make(map[string]*DatasetPlan, len(datasets))
	failures := make(map[string]error)
	var blocking []error

	for _, ds := range datasets {
		dp, err := p.Plan(ds, schemas)
		plans[ds.Name] = dp
		if err == nil {
			continue
		}
		failures[ds.Name] = err
		var de *core.TypeDriftBlockingError
		if errors.As(err, &de) {
			blocking = append(blocking, err)
		}
		p.logger.Warn("dataset plan failed", "dataset", ds.Name, "error", err)
	}
	return plans, failures, errors.Join(blocking...)
}
