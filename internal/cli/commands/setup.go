package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/internal/config"
	"github.com/leapstack-labs/leapmeta/internal/engine"
	"github.com/leapstack-labs/leapmeta/internal/pipeline"
	"github.com/leapstack-labs/leapmeta/internal/state"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
	// Metrics holds the engine's collectors.
	Metrics *prometheus.Registry
}

// NewCommandContext creates a CommandContext with engine and renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	reg := prometheus.NewRegistry()
	eng, err := createEngine(cfg, logger, reg)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if err := eng.Close(); err != nil {
			logger.Warn("failed to close engine", "error", err)
		}
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Engine:   eng,
		Renderer: newRenderer(cmd, cfg),
		Metrics:  reg,
	}, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
// Useful for commands that need neither metadata nor the warehouse.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: newRenderer(cmd, cfg),
	}
}

// OpenStore opens the state store without loading metadata.
func (c *CommandContext) OpenStore() (state.Store, error) {
	if c.Cfg.StatePath == "" {
		return nil, fmt.Errorf("no state_path configured")
	}
	if c.Cfg.StatePath != ":memory:" {
		if _, err := os.Stat(c.Cfg.StatePath); err != nil {
			return nil, fmt.Errorf("state database not found at %s: run with --write-execution-snapshot first", c.Cfg.StatePath)
		}
	}
	store := state.NewSQLiteStore(c.Logger)
	if err := store.Open(c.Cfg.StatePath); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	return store, nil
}

func newRenderer(cmd *cobra.Command, cfg *config.Config) *output.Renderer {
	return output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))
}

// getConfig returns the loaded configuration, or defaults when none was loaded.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return config.Default()
}

// WriteMetrics writes the collected metrics to the configured metrics file.
// It does nothing when no file is configured.
func (c *CommandContext) WriteMetrics() error {
	path := c.Cfg.Execution.MetricsFile
	if path == "" || c.Metrics == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.Metrics); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	c.Logger.Debug("metrics written", "path", path)
	return nil
}

func createEngine(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*engine.Engine, error) {
	if err := cfg.ValidateDirectories(); err != nil {
		return nil, err
	}

	// Ensure state directory exists; the engine disables run history when
	// the store still cannot be opened.
	if cfg.StatePath != "" && cfg.StatePath != ":memory:" {
		stateDir := filepath.Dir(cfg.StatePath)
		if stateDir != "." && stateDir != "" {
			if err := os.MkdirAll(stateDir, 0750); err != nil {
				logger.Warn("failed to create state directory", "path", stateDir, "error", err)
			}
		}
	}

	var target core.TargetConfig
	if cfg.Target != nil {
		target = *cfg.Target
	}

	pepper, ok := cfg.LookupPepper()
	if !ok {
		logger.Warn("pepper variable not set, surrogate and foreign keys are unpeppered", "env", cfg.PepperVar())
	}

	return engine.New(engine.Config{
		MetadataDir: cfg.MetadataDir,
		StatePath:   cfg.StatePath,
		Dialect:     cfg.Dialect,
		Target:      target,
		Pepper:      pepper,
		Registerer:  reg,
		Logger:      logger,
	})
}

// selectionFlags registers the dataset selection flags shared by commands.
func selectionFlags(cmd *cobra.Command, sel *engine.Selection) {
	cmd.Flags().StringSliceVarP(&sel.Datasets, "select", "s", nil, "Datasets to include (comma-separated)")
	cmd.Flags().BoolVar(&sel.Upstream, "upstream", false, "Include upstream dependencies of the selection")
	cmd.Flags().BoolVar(&sel.Downstream, "downstream", false, "Include downstream dependents of the selection")
}

// statementsOutput converts rendered statements for JSON output.
func statementsOutput(stmts []pipeline.Statement) []output.StatementOutput {
	out := make([]output.StatementOutput, len(stmts))
	for i, s := range stmts {
		out[i] = output.StatementOutput{Phase: string(s.Phase), Target: s.Target.String(), SQL: s.SQL}
	}
	return out
}
