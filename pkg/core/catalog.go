package core

import (
	"fmt"
	"sort"
)

// Catalog is the full metadata projection handed to the core for one run.
type Catalog struct {
	datasets map[string]*Dataset
	order    []string
}

// NewCatalog builds a catalog from datasets. Duplicate names are rejected.
func NewCatalog(datasets ...*Dataset) (*Catalog, error) {
	c := &Catalog{datasets: make(map[string]*Dataset, len(datasets))}
	for _, d := range datasets {
		if _, exists := c.datasets[d.Name]; exists {
			return nil, fmt.Errorf("duplicate dataset %q", d.Name)
		}
		c.datasets[d.Name] = d
		c.order = append(c.order, d.Name)
	}
	return c, nil
}

// Get returns a dataset by name.
func (c *Catalog) Get(name string) (*Dataset, bool) {
	d, ok := c.datasets[name]
	return d, ok
}

// Names returns dataset names sorted alphabetically.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.order))
	copy(names, c.order)
	sort.Strings(names)
	return names
}

// Datasets returns datasets in declaration order.
func (c *Catalog) Datasets() []*Dataset {
	out := make([]*Dataset, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.datasets[name])
	}
	return out
}

// Len returns the number of datasets.
func (c *Catalog) Len() int {
	return len(c.order)
}

// ByLineageKey finds a dataset by its rename-resistant lineage key.
func (c *Catalog) ByLineageKey(key string) (*Dataset, bool) {
	if key == "" {
		return nil, false
	}
	for _, name := range c.order {
		if d := c.datasets[name]; d.LineageKey == key {
			return d, true
		}
	}
	return nil, false
}
