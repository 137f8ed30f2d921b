// Package metadata loads the dataset metadata contract from YAML files and
// projects it into a read-only core.Catalog.
package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/core"
	"gopkg.in/yaml.v3"
)

// ParseError reports a malformed metadata file.
type ParseError struct {
	File    string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Loader reads metadata files from a directory.
type Loader struct {
	dir    string
	logger *slog.Logger
}

// NewLoader creates a loader for dir.
func NewLoader(dir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{dir: dir, logger: logger}
}

// Load reads every *.yaml and *.yml file under the directory (recursively,
// in lexical path order), validates the combined datasets and returns the
// catalog.
func (l *Loader) Load() (*core.Catalog, error) {
	var files []string
	err := filepath.WalkDir(l.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata directory %s: %w", l.dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no metadata files found in %s", l.dir)
	}
	sort.Strings(files)

	var datasets []*core.Dataset
	for _, path := range files {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from walking the configured directory
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		ds, err := Parse(path, data)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("loaded metadata file", "file", path, "datasets", len(ds))
		datasets = append(datasets, ds...)
	}

	if err := Validate(datasets); err != nil {
		return nil, err
	}
	return core.NewCatalog(datasets...)
}

// Parse decodes one metadata document. Unknown fields are rejected.
func Parse(name string, data []byte) ([]*core.Dataset, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, &ParseError{File: name, Message: err.Error()}
	}

	out := make([]*core.Dataset, 0, len(f.Datasets))
	for i := range f.Datasets {
		ds, err := f.Datasets[i].toCore()
		if err != nil {
			return nil, &ParseError{File: name, Message: err.Error()}
		}
		out = append(out, ds)
	}
	return out, nil
}

func (y *DatasetYAML) toCore() (*core.Dataset, error) {
	if y.Name == "" {
		return nil, errors.New("dataset without name")
	}

	ds := &core.Dataset{
		Name:                 y.Name,
		Schema:               y.Schema,
		Layer:                core.Layer(strings.ToLower(y.Layer)),
		LineageKey:           y.LineageKey,
		IncrementalStrategy:  core.IncrementalStrategy(strings.ToLower(y.IncrementalStrategy)),
		HandleDeletes:        y.HandleDeletes,
		Historize:            y.Historize,
		Materialization:      core.Materialization(strings.ToLower(y.Materialization)),
		BusinessKeys:         y.BusinessKeys,
		FormerNames:          y.FormerNames,
		RecencyColumn:        y.RecencyColumn,
		SourceIdentityColumn: y.SourceIdentityColumn,
	}
	if ds.Schema == "" {
		ds.Schema = string(ds.Layer)
	}
	if ds.IncrementalStrategy == "" {
		ds.IncrementalStrategy = core.StrategyFull
	}
	if ds.Materialization == "" {
		ds.Materialization = core.MaterializationTable
	}

	switch ds.IncrementalStrategy {
	case core.StrategyFull, core.StrategyMerge:
	default:
		return nil, fmt.Errorf("dataset %s: invalid incremental_strategy %q, must be one of: full, merge", y.Name, y.IncrementalStrategy)
	}
	switch ds.Materialization {
	case core.MaterializationTable, core.MaterializationView:
	default:
		return nil, fmt.Errorf("dataset %s: invalid materialization %q, must be one of: table, view", y.Name, y.Materialization)
	}
	if !ds.Layer.Valid() {
		return nil, fmt.Errorf("dataset %s: invalid layer %q", y.Name, y.Layer)
	}

	for _, c := range y.Columns {
		col := core.Column{
			Name:        c.Name,
			LineageKey:  c.LineageKey,
			Type:        c.Type,
			Expression:  c.Expression,
			Role:        core.ColumnRole(strings.ToLower(c.Role)),
			FormerNames: c.FormerNames,
			Nullable:    c.Nullable == nil || *c.Nullable,
		}
		switch col.Role {
		case core.RoleAttribute, core.RoleSurrogateKey, core.RoleForeignKey, core.RoleTechnical:
		default:
			return nil, fmt.Errorf("dataset %s column %s: invalid role %q", y.Name, c.Name, c.Role)
		}
		if c.ForeignKey != nil {
			col.ForeignKey = &core.ForeignKeyRef{Parent: c.ForeignKey.Parent, ColumnMap: c.ForeignKey.Columns}
		}
		ds.Columns = append(ds.Columns, col)
	}

	for _, u := range y.Upstreams {
		edge := core.Edge{
			Dataset:        u.Dataset,
			Role:           core.EdgeRole(strings.ToLower(u.Role)),
			SourceIdentity: u.SourceIdentity,
			ColumnMap:      u.ColumnMap,
		}
		if edge.Role == "" {
			edge.Role = core.EdgeSingle
			if len(y.Upstreams) > 1 {
				edge.Role = core.EdgeUnion
			}
		}
		if u.Source != nil {
			edge.Source = &core.TableRef{Schema: u.Source.Schema, Name: u.Source.Name}
			for _, sc := range u.Source.Columns {
				edge.SourceColumns = append(edge.SourceColumns, core.SourceColumn{Name: sc.Name, Type: sc.Type})
			}
		}
		ds.Upstreams = append(ds.Upstreams, edge)
	}
	return ds, nil
}
