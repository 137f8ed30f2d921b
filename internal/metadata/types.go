package metadata

// File is the top-level document of a metadata YAML file.
type File struct {
	Datasets []DatasetYAML `yaml:"datasets"`
}

// DatasetYAML is the YAML form of a dataset.
type DatasetYAML struct {
	Name                 string         `yaml:"name"`
	Schema               string         `yaml:"schema"`
	Layer                string         `yaml:"layer"`
	LineageKey           string         `yaml:"lineage_key"`
	IncrementalStrategy  string         `yaml:"incremental_strategy"`
	HandleDeletes        bool           `yaml:"handle_deletes"`
	Historize            bool           `yaml:"historize"`
	Materialization      string         `yaml:"materialization"`
	BusinessKeys         []string       `yaml:"business_keys"`
	FormerNames          []string       `yaml:"former_names"`
	RecencyColumn        string         `yaml:"recency_column"`
	SourceIdentityColumn string         `yaml:"source_identity_column"`
	Columns              []ColumnYAML   `yaml:"columns"`
	Upstreams            []UpstreamYAML `yaml:"upstreams"`
}

// ColumnYAML is the YAML form of a dataset column.
type ColumnYAML struct {
	Name        string          `yaml:"name"`
	Type        string          `yaml:"type"`
	LineageKey  string          `yaml:"lineage_key"`
	Expression  string          `yaml:"expression"`
	Role        string          `yaml:"role"`
	Nullable    *bool           `yaml:"nullable"`
	FormerNames []string        `yaml:"former_names"`
	ForeignKey  *ForeignKeyYAML `yaml:"foreign_key"`
}

// ForeignKeyYAML binds a foreign key column to its parent dataset.
type ForeignKeyYAML struct {
	Parent string `yaml:"parent"`
	// Columns maps parent business key -> child column.
	Columns map[string]string `yaml:"columns"`
}

// UpstreamYAML is one upstream edge. Exactly one of Dataset or Source is set.
type UpstreamYAML struct {
	Dataset        string            `yaml:"dataset"`
	Source         *SourceYAML       `yaml:"source"`
	Role           string            `yaml:"role"`
	SourceIdentity string            `yaml:"source_identity"`
	ColumnMap      map[string]string `yaml:"column_map"`
}

// SourceYAML is an external source table.
type SourceYAML struct {
	Schema  string             `yaml:"schema"`
	Name    string             `yaml:"name"`
	Columns []SourceColumnYAML `yaml:"columns"`
}

// SourceColumnYAML is one column of a source table.
type SourceColumnYAML struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}
