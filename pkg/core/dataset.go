package core

import "strings"

// Layer is the warehouse layer a dataset belongs to.
type Layer string

// Layer constants, ordered from landing to consumption.
const (
	LayerRaw     Layer = "raw"
	LayerStage   Layer = "stage"
	LayerRawcore Layer = "rawcore"
	LayerBizcore Layer = "bizcore"
	LayerServing Layer = "serving"
)

// Valid reports whether l is a known layer.
func (l Layer) Valid() bool {
	switch l {
	case LayerRaw, LayerStage, LayerRawcore, LayerBizcore, LayerServing:
		return true
	}
	return false
}

// IncrementalStrategy controls how a table dataset is loaded.
type IncrementalStrategy string

// Incremental strategy constants.
const (
	StrategyFull  IncrementalStrategy = "full"
	StrategyMerge IncrementalStrategy = "merge"
)

// Materialization controls the physical object created for a dataset.
type Materialization string

// Materialization constants.
const (
	MaterializationTable Materialization = "table"
	MaterializationView  Materialization = "view"
)

// ColumnRole classifies a column for ordering and key construction.
type ColumnRole string

// Column role constants.
const (
	// RoleAttribute is an integrated source column (default).
	RoleAttribute ColumnRole = ""
	// RoleSurrogateKey marks the hash-derived surrogate key of the dataset.
	RoleSurrogateKey ColumnRole = "surrogate_key"
	// RoleForeignKey marks an SK-shaped hash pointing at a parent dataset.
	RoleForeignKey ColumnRole = "foreign_key"
	// RoleTechnical marks computed/technical columns (row hash, load timestamps).
	RoleTechnical ColumnRole = "technical"
)

// EdgeRole describes how an upstream edge combines with its siblings.
type EdgeRole string

// Edge role constants.
const (
	EdgeSingle EdgeRole = "single"
	EdgeUnion  EdgeRole = "union"
)

// RowHashColumn is the technical column holding the change-detection hash.
const RowHashColumn = "row_hash"

// TableRef identifies a physical table or view.
type TableRef struct {
	Schema string
	Name   string
}

// String returns schema.name (or name when no schema is set).
func (t TableRef) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// ForeignKeyRef binds a foreign-key column to the parent dataset whose SK it mirrors.
type ForeignKeyRef struct {
	// Parent is the referenced dataset name.
	Parent string
	// ColumnMap maps parent business-key column -> child column.
	ColumnMap map[string]string
}

// Column is a projected output column of a dataset.
type Column struct {
	Name        string
	LineageKey  string
	Type        string
	Expression  string // DSL text; empty means direct mapping from the upstream column
	Role        ColumnRole
	ForeignKey  *ForeignKeyRef
	FormerNames []string
	Nullable    bool
}

// IsKey reports whether the column is a surrogate or foreign key.
func (c *Column) IsKey() bool {
	return c.Role == RoleSurrogateKey || c.Role == RoleForeignKey
}

// SourceColumn describes a column of an external source table.
type SourceColumn struct {
	Name string
	Type string
}

// Edge is one upstream lineage edge of a dataset.
// Exactly one of Dataset or Source is set.
type Edge struct {
	Dataset string
	Source  *TableRef
	// SourceColumns lists the columns a Source table provides.
	SourceColumns []SourceColumn
	Role          EdgeRole
	// SourceIdentity is the literal tag emitted for this branch in identity mode.
	SourceIdentity string
	// ColumnMap maps target column -> upstream column where names differ.
	ColumnMap map[string]string
}

// UpstreamName returns a display name for the edge.
func (e Edge) UpstreamName() string {
	if e.Dataset != "" {
		return e.Dataset
	}
	if e.Source != nil {
		return e.Source.String()
	}
	return ""
}

// Dataset is the read-only projection of a dataset's metadata.
// The core never writes back into it.
type Dataset struct {
	Name                 string
	Schema               string
	Layer                Layer
	LineageKey           string
	IncrementalStrategy  IncrementalStrategy
	HandleDeletes        bool
	Historize            bool
	Materialization      Materialization
	BusinessKeys         []string
	Columns              []Column
	Upstreams            []Edge
	FormerNames          []string
	RecencyColumn        string
	SourceIdentityColumn string
}

// Table returns the physical table reference of the dataset.
func (d *Dataset) Table() TableRef {
	return TableRef{Schema: d.Schema, Name: d.Name}
}

// HistoryTable returns the SCD2 history table reference of the dataset.
func (d *Dataset) HistoryTable() TableRef {
	return TableRef{Schema: d.Schema, Name: d.Name + "_hist"}
}

// Column returns the column with the given name.
func (d *Dataset) Column(name string) (*Column, bool) {
	for i := range d.Columns {
		if strings.EqualFold(d.Columns[i].Name, name) {
			return &d.Columns[i], true
		}
	}
	return nil, false
}

// IsBusinessKey reports whether name is one of the dataset's business keys.
func (d *Dataset) IsBusinessKey(name string) bool {
	for _, bk := range d.BusinessKeys {
		if strings.EqualFold(bk, name) {
			return true
		}
	}
	return false
}

// IsFullRefresh reports whether the dataset is recreated wholesale on every run.
func (d *Dataset) IsFullRefresh() bool {
	return d.Materialization == MaterializationView || d.IncrementalStrategy != StrategyMerge
}

// Dependencies returns the names of upstream datasets (source tables excluded).
func (d *Dataset) Dependencies() []string {
	var deps []string
	for _, e := range d.Upstreams {
		if e.Dataset != "" {
			deps = append(deps, e.Dataset)
		}
	}
	return deps
}
