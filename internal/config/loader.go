package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/dialect"
	"github.com/spf13/pflag"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// EnvPrefix is the prefix of environment variables read into the configuration.
// LEAPMETA_EXECUTION__MAX_RETRIES maps to execution.max_retries.
const EnvPrefix = "LEAPMETA_"

var configFileNames = []string{"leapmeta.yaml", "leapmeta.yml"}

// flagKeys maps CLI flag names to configuration keys. Flags not listed here
// are command arguments and never reach the configuration.
var flagKeys = map[string]string{
	"metadata-dir":             "metadata_dir",
	"state":                    "state_path",
	"env":                      "environment",
	"dialect":                  "dialect",
	"verbose":                  "verbose",
	"output":                   "output",
	"continue-on-error":        "execution.continue_on_error",
	"max-retries":              "execution.max_retries",
	"retry-backoff":            "execution.retry_backoff",
	"parallelism":              "execution.parallelism",
	"debug-execution":          "execution.debug",
	"write-execution-snapshot": "execution.write_snapshot",
	"metrics-file":             "execution.metrics_file",
}

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// Load loads configuration from defaults, the config file, environment
// variables and flags. Precedence (highest to lowest): flags > selected
// environment section > env vars > config file > defaults.
//
// Only flags that were explicitly set are applied.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	projectRoot := inferProjectRoot(cfgFile, flags)

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"metadata_dir":            DefaultMetadataDir,
		"state_path":              DefaultStateFile,
		"environment":             DefaultEnv,
		"verbose":                 false,
		"output":                  DefaultOutput,
		"pepper_env":              DefaultPepperEnv,
		"execution.parallelism":   DefaultParallelism,
		"execution.retry_backoff": DefaultBackoff.String(),
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	if cfgFile == "" {
		cfgFile = findConfigFile(projectRoot)
	}
	configFileUsed = cfgFile
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Environment variables
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Selected environment section
	envName := k.String("environment")
	if flags != nil && flags.Changed("env") {
		envName, _ = flags.GetString("env")
	}
	if section := "environments." + envName; envName != "" && k.Exists(section) {
		if err := k.Merge(k.Cut(section)); err != nil {
			return nil, fmt.Errorf("failed to apply environment %q: %w", envName, err)
		}
	}

	// 5. Flags
	var flagPaths map[string]string
	if flags != nil {
		flagPaths = absFlagPaths(flags)
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = projectRoot

	// Flag paths are relative to the working directory, everything else to
	// the project root.
	if p, ok := flagPaths["metadata-dir"]; ok {
		cfg.MetadataDir = p
	} else {
		cfg.MetadataDir = resolvePathRelativeTo(cfg.MetadataDir, projectRoot)
	}
	if p, ok := flagPaths["state"]; ok {
		cfg.StatePath = p
	} else if cfg.StatePath != ":memory:" {
		cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, projectRoot)
	}
	if p, ok := flagPaths["metrics-file"]; ok {
		cfg.Execution.MetricsFile = p
	} else {
		cfg.Execution.MetricsFile = resolvePathRelativeTo(cfg.Execution.MetricsFile, projectRoot)
	}

	cfg.Dialect = ResolveDialect(cfg.Dialect, cfg.Target)
	if cfg.Target == nil {
		cfg.Target = &core.TargetConfig{}
	}
	if cfg.Target.Type == "" {
		cfg.Target.Type = cfg.Dialect
	}
	ApplyTargetDefaults(cfg.Target)
	expandTargetEnvVars(cfg.Target)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	currentConfig = &cfg
	return &cfg, nil
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	if c.MetadataDir == "" {
		return fmt.Errorf("metadata_dir is required")
	}
	if _, err := dialect.Resolve(c.Dialect); err != nil {
		return fmt.Errorf("invalid dialect configuration: %w", err)
	}
	if c.Execution.MaxRetries < 0 {
		return fmt.Errorf("execution.max_retries must not be negative, got %d", c.Execution.MaxRetries)
	}
	if c.Execution.Parallelism < 1 {
		return fmt.Errorf("execution.parallelism must be at least 1, got %d", c.Execution.Parallelism)
	}
	switch c.OutputFormat {
	case "", "auto", "text", "markdown", "json":
	default:
		return fmt.Errorf("unknown output format %q (expected auto, text, markdown or json)", c.OutputFormat)
	}
	return nil
}

// ValidateDirectories checks if required directories exist.
func (c *Config) ValidateDirectories() error {
	if _, err := os.Stat(c.MetadataDir); os.IsNotExist(err) {
		return fmt.Errorf("metadata directory does not exist: %s\nHint: Create the directory or use --metadata-dir to specify a different path", c.MetadataDir)
	}
	return nil
}

// ResolveDialect picks the dialect name: an explicit dialect wins, then the
// target type, then duckdb.
func ResolveDialect(explicit string, target *core.TargetConfig) string {
	if explicit != "" {
		return strings.ToLower(explicit)
	}
	if target != nil && target.Type != "" {
		return strings.ToLower(target.Type)
	}
	return DefaultDialect
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the configuration from the last successful Load.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// findConfigFile returns the first config file in dir, or "".
func findConfigFile(dir string) string {
	for _, name := range configFileNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findProjectRootUpward searches upward from startDir for a leapmeta config file.
// Returns empty string if not found within maxUpwardSearchLevels.
func findProjectRootUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if findConfigFile(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// inferProjectRoot determines the project root.
// Priority:
//  1. Explicit --project-dir flag
//  2. Directory of an explicit config file
//  3. Search upward from CWD for leapmeta.yaml
//  4. Current working directory
func inferProjectRoot(cfgFile string, flags *pflag.FlagSet) string {
	if flags != nil && flags.Changed("project-dir") {
		if projectDir, _ := flags.GetString("project-dir"); projectDir != "" {
			if abs, err := filepath.Abs(projectDir); err == nil {
				return abs
			}
			return filepath.Clean(projectDir)
		}
	}

	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			return filepath.Dir(abs)
		}
	}

	cwd, err := os.Getwd()
	if err != nil || cwd == "" {
		return "."
	}
	if root := findProjectRootUpward(cwd); root != "" {
		return root
	}
	return cwd
}

// absFlagPaths returns the explicitly set path flags made absolute
// against the working directory.
func absFlagPaths(flags *pflag.FlagSet) map[string]string {
	paths := make(map[string]string)
	for _, name := range []string{"metadata-dir", "state", "metrics-file"} {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			continue
		}
		v, _ := flags.GetString(name)
		if v == "" || v == ":memory:" {
			paths[name] = v
			continue
		}
		if abs, err := filepath.Abs(v); err == nil {
			paths[name] = abs
		}
	}
	return paths
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
