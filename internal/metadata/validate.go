package metadata

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// ValidationError reports an inconsistency in the metadata contract.
type ValidationError struct {
	Dataset string
	Column  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("dataset %s column %s: %s", e.Dataset, e.Column, e.Message)
	}
	return fmt.Sprintf("dataset %s: %s", e.Dataset, e.Message)
}

// Validate checks the cross-dataset rules of the metadata contract and
// returns every violation joined.
func Validate(datasets []*core.Dataset) error {
	var errs []error
	fail := func(ds, col, format string, args ...any) {
		errs = append(errs, &ValidationError{Dataset: ds, Column: col, Message: fmt.Sprintf(format, args...)})
	}

	byName := make(map[string]*core.Dataset, len(datasets))
	lineageKeys := make(map[string]string)
	for _, ds := range datasets {
		if _, dup := byName[ds.Name]; dup {
			fail(ds.Name, "", "duplicate dataset name")
			continue
		}
		byName[ds.Name] = ds
		if ds.LineageKey != "" {
			if other, dup := lineageKeys[ds.LineageKey]; dup {
				fail(ds.Name, "", "lineage key %q already used by %s", ds.LineageKey, other)
			}
			lineageKeys[ds.LineageKey] = ds.Name
		}
	}

	for _, ds := range datasets {
		for _, former := range ds.FormerNames {
			if other, live := byName[former]; live && other != ds {
				fail(ds.Name, "", "former name %q collides with a live dataset", former)
			}
		}
		validateColumns(ds, byName, fail)
		validateUpstreams(ds, byName, fail)
	}

	return errors.Join(errs...)
}

func validateColumns(ds *core.Dataset, byName map[string]*core.Dataset, fail func(ds, col, format string, args ...any)) {
	seen := make(map[string]bool)
	for _, c := range ds.Columns {
		key := strings.ToLower(c.Name)
		if c.Name == "" {
			fail(ds.Name, "", "column without name")
			continue
		}
		if seen[key] {
			fail(ds.Name, c.Name, "duplicate column")
		}
		seen[key] = true
		if c.Type == "" {
			fail(ds.Name, c.Name, "missing type")
		}
		for _, former := range c.FormerNames {
			if _, live := ds.Column(former); live {
				fail(ds.Name, c.Name, "former name %q collides with a live column", former)
			}
		}

		if c.Role != core.RoleForeignKey {
			continue
		}
		if c.ForeignKey == nil {
			fail(ds.Name, c.Name, "foreign key column without foreign_key reference")
			continue
		}
		parent, ok := byName[c.ForeignKey.Parent]
		if !ok {
			fail(ds.Name, c.Name, "foreign key parent %q not found", c.ForeignKey.Parent)
			continue
		}
		if len(parent.BusinessKeys) == 0 {
			fail(ds.Name, c.Name, "foreign key parent %s declares no business keys", parent.Name)
		}
	}

	for _, bk := range ds.BusinessKeys {
		if _, ok := ds.Column(bk); !ok {
			fail(ds.Name, bk, "business key is not a declared column")
		}
	}
	if ds.RecencyColumn != "" {
		if _, ok := ds.Column(ds.RecencyColumn); !ok {
			fail(ds.Name, ds.RecencyColumn, "recency column is not a declared column")
		}
	}
	if ds.SourceIdentityColumn != "" {
		if _, ok := ds.Column(ds.SourceIdentityColumn); !ok {
			fail(ds.Name, ds.SourceIdentityColumn, "source identity column is not a declared column")
		}
	}
}

func validateUpstreams(ds *core.Dataset, byName map[string]*core.Dataset, fail func(ds, col, format string, args ...any)) {
	for i, e := range ds.Upstreams {
		switch {
		case e.Dataset != "" && e.Source != nil:
			fail(ds.Name, "", "upstream %d sets both dataset and source", i+1)
		case e.Dataset == "" && e.Source == nil:
			fail(ds.Name, "", "upstream %d sets neither dataset nor source", i+1)
		case e.Dataset != "":
			if _, ok := byName[e.Dataset]; !ok {
				fail(ds.Name, "", "upstream dataset %q not found", e.Dataset)
			}
		}
		switch e.Role {
		case core.EdgeSingle, core.EdgeUnion:
		default:
			fail(ds.Name, "", "upstream %d has invalid role %q", i+1, e.Role)
		}
	}
}
