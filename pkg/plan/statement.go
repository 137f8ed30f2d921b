package plan

import (
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/leapstack-labs/leapmeta/pkg/expr"
)

// Phase groups statements by the pipeline step that produced them.
type Phase string

// Phase constants in execution order.
const (
	PhaseEvolve               Phase = "evolve"
	PhaseLoad                 Phase = "load"
	PhaseMerge                Phase = "merge"
	PhaseDelete               Phase = "delete"
	PhaseHistoryCloseChanged  Phase = "history_close_changed"
	PhaseHistoryCloseDeleted  Phase = "history_close_deleted"
	PhaseHistoryInsertChanged Phase = "history_insert_changed"
	PhaseHistoryInsertNew     Phase = "history_insert_new"
)

// Statement is a DDL or DML statement node rendered by a dialect.
type Statement interface {
	// Target returns the table the statement writes to.
	Target() core.TableRef
	stmtNode()
}

// Step pairs a statement with the phase that produced it.
type Step struct {
	Phase     Phase
	Statement Statement
}

// ColumnDef declares a column of a created table.
type ColumnDef struct {
	Name string
	Type string
}

// CreateSchema creates a schema unless it exists.
type CreateSchema struct {
	Schema string
}

// CreateTableAs creates (or replaces) a table from a query.
type CreateTableAs struct {
	Table   core.TableRef
	Query   Node
	Replace bool
}

// CreateView creates (or replaces) a view.
type CreateView struct {
	View    core.TableRef
	Query   Node
	Replace bool
}

// CreateTable creates an empty table.
type CreateTable struct {
	Table       core.TableRef
	Columns     []ColumnDef
	IfNotExists bool
}

// DropTable drops a table.
type DropTable struct {
	Table    core.TableRef
	IfExists bool
	View     bool
}

// Merge upserts Source into Table matched on Keys.
type Merge struct {
	Table         core.TableRef
	Source        Node
	Keys          []string
	UpdateColumns []string
	InsertColumns []string
}

// UpdateFrom updates matched rows of Table from Source.
type UpdateFrom struct {
	Table   core.TableRef
	Source  Node
	Keys    []string
	Columns []string
}

// InsertMissing inserts Source rows whose keys are not yet in Table.
type InsertMissing struct {
	Table   core.TableRef
	Source  Node
	Keys    []string
	Columns []string
}

// DeleteMissing deletes Table rows whose keys are absent from Source.
type DeleteMissing struct {
	Table  core.TableRef
	Source Node
	Keys   []string
}

// CloseReason is the version_state written when a history row is closed.
type CloseReason string

// Close reasons and version states.
const (
	StateNew     CloseReason = "new"
	StateChanged CloseReason = "changed"
	StateDeleted CloseReason = "deleted"
)

// History technical columns.
const (
	ColVersionStartedAt = "version_started_at"
	ColVersionEndedAt   = "version_ended_at"
	ColVersionState     = "version_state"
	ColLoadRunID        = "load_run_id"
)

// CloseVersions closes open history rows.
//
// With Reason changed it closes rows whose key is present in Current with a
// different HashColumn; with Reason deleted it closes rows whose key is
// absent from Current. Rows already closed are never touched.
type CloseVersions struct {
	History    core.TableRef
	Current    core.TableRef
	Keys       []string
	HashColumn string
	Reason     CloseReason
	At         expr.Expr
}

// InsertVersions opens new history rows from Current.
//
// With State new it inserts every current row without an open version. With
// State changed it only inserts rows whose open version was closed as changed
// at At, and which have no open version yet.
type InsertVersions struct {
	History core.TableRef
	Current core.TableRef
	Keys    []string
	Columns []string
	State   CloseReason
	At      expr.Expr
	RunID   string
}

// AlterColumnType changes the type of a column in place.
type AlterColumnType struct {
	Table  core.TableRef
	Column string
	Type   string
}

// AddColumn adds a nullable column.
type AddColumn struct {
	Table  core.TableRef
	Column string
	Type   string
}

// RenameTable renames a table within its schema.
type RenameTable struct {
	Table   core.TableRef
	NewName string
}

// RenameColumn renames a column.
type RenameColumn struct {
	Table   core.TableRef
	Column  string
	NewName string
}

func (s *CreateSchema) Target() core.TableRef    { return core.TableRef{Schema: s.Schema} }
func (s *CreateTableAs) Target() core.TableRef   { return s.Table }
func (s *CreateView) Target() core.TableRef      { return s.View }
func (s *CreateTable) Target() core.TableRef     { return s.Table }
func (s *DropTable) Target() core.TableRef       { return s.Table }
func (s *Merge) Target() core.TableRef           { return s.Table }
func (s *UpdateFrom) Target() core.TableRef      { return s.Table }
func (s *InsertMissing) Target() core.TableRef   { return s.Table }
func (s *DeleteMissing) Target() core.TableRef   { return s.Table }
func (s *CloseVersions) Target() core.TableRef   { return s.History }
func (s *InsertVersions) Target() core.TableRef  { return s.History }
func (s *AlterColumnType) Target() core.TableRef { return s.Table }
func (s *AddColumn) Target() core.TableRef       { return s.Table }
func (s *RenameTable) Target() core.TableRef     { return s.Table }
func (s *RenameColumn) Target() core.TableRef    { return s.Table }

func (*CreateSchema) stmtNode()    {}
func (*CreateTableAs) stmtNode()   {}
func (*CreateView) stmtNode()      {}
func (*CreateTable) stmtNode()     {}
func (*DropTable) stmtNode()       {}
func (*Merge) stmtNode()           {}
func (*UpdateFrom) stmtNode()      {}
func (*InsertMissing) stmtNode()   {}
func (*DeleteMissing) stmtNode()   {}
func (*CloseVersions) stmtNode()   {}
func (*InsertVersions) stmtNode()  {}
func (*AlterColumnType) stmtNode() {}
func (*AddColumn) stmtNode()       {}
func (*RenameTable) stmtNode()     {}
func (*RenameColumn) stmtNode()    {}
