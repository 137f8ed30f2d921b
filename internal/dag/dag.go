// Package dag provides the dataset dependency graph used to order execution.
// It supports cycle detection, deterministic topological ordering, execution
// levels and upstream/downstream selection.
package dag

import (
	"fmt"
	"slices"
	"sort"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// Node represents a dataset in the graph.
type Node struct {
	// ID is the dataset name
	ID string
	// Dataset is nil for nodes added without metadata (tests, subgraphs of bare ids)
	Dataset *core.Dataset
}

// Graph is a directed graph where an edge points from an upstream dataset to
// the dataset that depends on it.
type Graph struct {
	nodes   map[string]*Node
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// FromCatalog builds the dependency graph of every dataset in the catalog.
// Upstream edges to source tables are not graph edges. Cycles are reported as
// *core.CycleError.
func FromCatalog(c *core.Catalog) (*Graph, error) {
	g := NewGraph()
	for _, ds := range c.Datasets() {
		g.AddNode(ds.Name, ds)
	}
	for _, ds := range c.Datasets() {
		for _, dep := range ds.Dependencies() {
			if err := g.AddEdge(dep, ds.Name); err != nil {
				return nil, fmt.Errorf("dataset %s: %w", ds.Name, err)
			}
		}
	}
	if hasCycle, path := g.HasCycle(); hasCycle {
		return nil, &core.CycleError{Path: path}
	}
	return g, nil
}

// AddNode adds a node to the graph, replacing the dataset of an existing node.
func (g *Graph) AddNode(id string, ds *core.Dataset) {
	if node, exists := g.nodes[id]; exists {
		node.Dataset = ds
		return
	}
	g.nodes[id] = &Node{ID: id, Dataset: ds}
	g.edges[id] = []string{}
	g.parents[id] = []string{}
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("upstream dataset %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("dataset %q does not exist", childID)
	}
	if parentID == childID {
		return &core.CycleError{Path: []string{parentID, childID}}
	}

	if !slices.Contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !slices.Contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// GetNode returns a node by ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// GetParents returns the direct dependencies of a node.
func (g *Graph) GetParents(id string) []string {
	return g.parents[id]
}

// GetChildren returns the direct dependents of a node.
func (g *Graph) GetChildren(id string) []string {
	return g.edges[id]
}

// IDs returns all node ids sorted.
func (g *Graph) IDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// HasCycle reports whether the graph contains a cycle, along with the cycle
// path (first and last element equal). Traversal order is deterministic.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []string
	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		stack = append(stack, id)

		children := slices.Clone(g.edges[id])
		sort.Strings(children)
		for _, childID := range children {
			if onStack[childID] {
				start := slices.Index(stack, childID)
				cyclePath = append(slices.Clone(stack[start:]), childID)
				return true
			}
			if !visited[childID] && dfs(childID) {
				return true
			}
		}

		stack = stack[:len(stack)-1]
		onStack[id] = false
		return false
	}

	for _, id := range g.IDs() {
		if !visited[id] && dfs(id) {
			return true, cyclePath
		}
	}
	return false, nil
}

// TopologicalSort returns nodes with dependencies before dependents. Among
// nodes whose dependencies are satisfied, ids are taken in lexical order, so
// the order is stable across runs.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	if hasCycle, path := g.HasCycle(); hasCycle {
		return nil, &core.CycleError{Path: path}
	}

	indegree := make(map[string]int, len(g.nodes))
	var ready []string
	for _, id := range g.IDs() {
		indegree[id] = len(g.parents[id])
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	result := make([]*Node, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		result = append(result, g.nodes[id])

		for _, childID := range g.edges[id] {
			indegree[childID]--
			if indegree[childID] == 0 {
				ready = append(ready, childID)
			}
		}
		sort.Strings(ready)
	}
	return result, nil
}

// GetExecutionLevels returns node ids grouped by execution level.
// Nodes at level N can run in parallel once level N-1 completes.
// Level 0 contains nodes with no dependencies.
func (g *Graph) GetExecutionLevels() ([][]string, error) {
	sorted, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	level := make(map[string]int, len(sorted))
	var levels [][]string
	for _, node := range sorted {
		l := 0
		for _, parentID := range g.parents[node.ID] {
			if level[parentID]+1 > l {
				l = level[parentID] + 1
			}
		}
		level[node.ID] = l
		for len(levels) <= l {
			levels = append(levels, []string{})
		}
		levels[l] = append(levels[l], node.ID)
	}

	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

// GetAffectedNodes returns the given nodes and everything downstream of them.
func (g *Graph) GetAffectedNodes(changedIDs []string) []string {
	affected := make(map[string]bool)

	var mark func(id string)
	mark = func(id string) {
		if affected[id] {
			return
		}
		affected[id] = true
		for _, childID := range g.edges[id] {
			mark(childID)
		}
	}

	for _, id := range changedIDs {
		if _, exists := g.nodes[id]; exists {
			mark(id)
		}
	}
	return sortedKeys(affected)
}

// GetUpstreamNodes returns every transitive dependency of the given node.
func (g *Graph) GetUpstreamNodes(id string) []string {
	upstream := make(map[string]bool)

	var mark func(nodeID string)
	mark = func(nodeID string) {
		for _, parentID := range g.parents[nodeID] {
			if !upstream[parentID] {
				upstream[parentID] = true
				mark(parentID)
			}
		}
	}

	mark(id)
	return sortedKeys(upstream)
}

// GetRoots returns nodes without dependencies.
func (g *Graph) GetRoots() []string {
	var roots []string
	for _, id := range g.IDs() {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// GetLeaves returns nodes without dependents.
func (g *Graph) GetLeaves() []string {
	var leaves []string
	for _, id := range g.IDs() {
		if len(g.edges[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	return leaves
}

// Subgraph returns a new graph containing only the given nodes and the edges
// between them.
func (g *Graph) Subgraph(nodeIDs []string) *Graph {
	sub := NewGraph()
	include := make(map[string]bool, len(nodeIDs))

	for _, id := range nodeIDs {
		if node, exists := g.nodes[id]; exists {
			include[id] = true
			sub.AddNode(id, node.Dataset)
		}
	}
	for _, id := range nodeIDs {
		for _, childID := range g.edges[id] {
			if include[childID] {
				_ = sub.AddEdge(id, childID)
			}
		}
	}
	return sub
}

// Select returns the ids of a selection: the named nodes plus, optionally,
// their upstream dependencies and downstream dependents. Unknown names are
// an error.
func (g *Graph) Select(names []string, upstream, downstream bool) ([]string, error) {
	selected := make(map[string]bool)
	for _, name := range names {
		if _, exists := g.nodes[name]; !exists {
			return nil, fmt.Errorf("dataset %q not found", name)
		}
		selected[name] = true
		if upstream {
			for _, id := range g.GetUpstreamNodes(name) {
				selected[id] = true
			}
		}
		if downstream {
			for _, id := range g.GetAffectedNodes([]string{name}) {
				selected[id] = true
			}
		}
	}
	return sortedKeys(selected), nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
