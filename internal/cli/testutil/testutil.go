// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// CustomerYAML declares a merged, historized customer dataset over the
// stage.crm_customer source and a view on top of it.
const CustomerYAML = `datasets:
  - name: customer
    layer: rawcore
    incremental_strategy: merge
    handle_deletes: true
    historize: true
    business_keys: [customer_no]
    columns:
      - name: customer_sk
        type: VARCHAR(64)
        role: surrogate_key
      - name: customer_no
        type: VARCHAR(20)
        nullable: false
      - name: name
        type: VARCHAR(100)
      - name: qty
        type: SMALLINT
    upstreams:
      - source:
          schema: stage
          name: crm_customer
          columns:
            - {name: customer_no, type: VARCHAR(20)}
            - {name: name, type: VARCHAR(100)}
            - {name: qty, type: SMALLINT}

  - name: customer_v
    layer: bizcore
    materialization: view
    columns:
      - name: customer_no
        type: VARCHAR(20)
      - name: name
        type: VARCHAR(100)
    upstreams:
      - dataset: customer
`

// SetupTestProject creates a temporary project with a leapmeta.yaml and the
// customer metadata. The target is a DuckDB file inside the project.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()

	if err := os.MkdirAll(filepath.Join(tmpDir, "metadata"), 0755); err != nil {
		t.Fatalf("failed to create metadata directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "metadata", "customer.yaml"), []byte(CustomerYAML), 0644); err != nil {
		t.Fatalf("failed to create customer.yaml: %v", err)
	}

	config := `metadata_dir: metadata
state_path: .leapmeta/state.db
target:
  type: duckdb
  database: ` + WarehousePath(tmpDir) + `
`
	if err := os.WriteFile(filepath.Join(tmpDir, "leapmeta.yaml"), []byte(config), 0644); err != nil {
		t.Fatalf("failed to create leapmeta.yaml: %v", err)
	}

	return tmpDir
}

// WarehousePath returns the DuckDB file of a test project.
func WarehousePath(projectDir string) string {
	return filepath.Join(projectDir, "warehouse.duckdb")
}

// SeedWarehouse creates the stage.crm_customer source in the project
// warehouse and runs the given statements after it.
func SeedWarehouse(t *testing.T, projectDir string, stmts ...string) {
	t.Helper()

	db, err := sql.Open("duckdb", WarehousePath(projectDir))
	if err != nil {
		t.Fatalf("failed to open warehouse: %v", err)
	}
	defer func() { _ = db.Close() }()

	all := append([]string{
		"CREATE SCHEMA IF NOT EXISTS stage",
		"CREATE TABLE IF NOT EXISTS stage.crm_customer (customer_no VARCHAR, name VARCHAR, qty SMALLINT)",
	}, stmts...)
	for _, stmt := range all {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to seed warehouse: %s: %v", stmt, err)
		}
	}
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererText creates a new test renderer in text mode (simulated TTY).
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText, true)
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// Output returns the combined stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and basic structure.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	// Check for balanced code fences
	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	// Check that headers have content
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
