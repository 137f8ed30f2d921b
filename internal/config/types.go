// Package config provides configuration management for leapmeta.
//
// Configuration is layered with koanf: defaults, then leapmeta.yaml, then
// LEAPMETA_* environment variables, then explicitly set CLI flags. The
// dialect and the pepper are resolved here once and handed to the engine as
// plain values; nothing below this package reads process-wide state.
package config

import (
	"os"
	"time"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// Default configuration values.
const (
	DefaultMetadataDir = "metadata"
	DefaultStateFile   = ".leapmeta/state.db"
	DefaultEnv         = "dev"
	DefaultOutput      = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultPepperEnv   = "LEAPMETA_PEPPER"
	DefaultDialect     = "duckdb"
	DefaultParallelism = 4
	DefaultBackoff     = 500 * time.Millisecond
)

// Config holds all configuration options.
type Config struct {
	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`

	MetadataDir  string               `koanf:"metadata_dir"`
	StatePath    string               `koanf:"state_path"`
	Environment  string               `koanf:"environment"`
	Dialect      string               `koanf:"dialect"`
	Verbose      bool                 `koanf:"verbose"`
	OutputFormat string               `koanf:"output"`
	PepperEnv    string               `koanf:"pepper_env"`
	Target       *core.TargetConfig   `koanf:"target"`
	Execution    ExecutionConfig      `koanf:"execution"`
	Environments map[string]EnvConfig `koanf:"environments"`
}

// ExecutionConfig holds the run policy defaults. Execute is not configurable;
// it is only ever set by the --execute flag of a single invocation.
type ExecutionConfig struct {
	ContinueOnError bool          `koanf:"continue_on_error"`
	MaxRetries      int           `koanf:"max_retries"`
	RetryBackoff    time.Duration `koanf:"retry_backoff"`
	Parallelism     int           `koanf:"parallelism"`
	Debug           bool          `koanf:"debug"`
	WriteSnapshot   bool          `koanf:"write_snapshot"`
	// MetricsFile receives the run metrics in Prometheus text format.
	MetricsFile string `koanf:"metrics_file"`
}

// EnvConfig holds environment-specific configuration overrides.
type EnvConfig struct {
	MetadataDir string             `koanf:"metadata_dir"`
	Dialect     string             `koanf:"dialect"`
	PepperEnv   string             `koanf:"pepper_env"`
	Target      *core.TargetConfig `koanf:"target"`
}

// Policy returns the execution policy for a run.
func (c *Config) Policy(execute bool) core.ExecutionPolicy {
	return core.ExecutionPolicy{
		Execute:         execute,
		ContinueOnError: c.Execution.ContinueOnError,
		MaxRetries:      c.Execution.MaxRetries,
		RetryBackoff:    c.Execution.RetryBackoff,
		Parallelism:     c.Execution.Parallelism,
		Debug:           c.Execution.Debug,
	}
}

// LookupPepper returns the hash pepper from the configured environment
// variable and whether that variable is set.
func (c *Config) LookupPepper() (string, bool) {
	return os.LookupEnv(c.PepperVar())
}

// PepperVar returns the name of the environment variable carrying the pepper.
func (c *Config) PepperVar() string {
	if c.PepperEnv == "" {
		return DefaultPepperEnv
	}
	return c.PepperEnv
}

// Default returns a configuration holding only default values.
func Default() *Config {
	return &Config{
		MetadataDir:  DefaultMetadataDir,
		StatePath:    DefaultStateFile,
		Environment:  DefaultEnv,
		Dialect:      DefaultDialect,
		OutputFormat: DefaultOutput,
		PepperEnv:    DefaultPepperEnv,
		Target:       &core.TargetConfig{Type: DefaultDialect, Schema: "main"},
		Execution: ExecutionConfig{
			RetryBackoff: DefaultBackoff,
			Parallelism:  DefaultParallelism,
		},
	}
}
