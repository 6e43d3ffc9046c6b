// Package graph implements the directed multigraph of spec.md §4.1: package
// name -> set of dependencies, optionally edge-weighted. It is a thin,
// string-keyed wrapper around gonum.org/v1/gonum/graph/simple, matching the
// teacher's own require on gonum; the Kahn's-algorithm topological-sort
// semantics it must reproduce are grounded on the hand-rolled
// implementation found in the pack's ov/graph.go (topoSort).
package graph

import (
	"encoding/json"
	"sort"

	"golang.org/x/xerrors"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/srcforge/srcpm/internal/errs"
)

// Graph is a directed, weighted multigraph of package names. The zero value
// is not usable; use New.
type Graph struct {
	g *simple.WeightedDirectedGraph

	// id <-> name interning, so the public API stays string-keyed while
	// gonum operates on its int64 node IDs internally.
	idOf   map[string]int64
	nameOf map[int64]string
	next   int64
}

// New returns an empty dependency graph.
func New() *Graph {
	return &Graph{
		g:      simple.NewWeightedDirectedGraph(0, 0),
		idOf:   make(map[string]int64),
		nameOf: make(map[int64]string),
	}
}

// AddNode adds a package name as a node, a no-op if it already exists.
func (dg *Graph) AddNode(name string) {
	if _, ok := dg.idOf[name]; ok {
		return
	}
	id := dg.next
	dg.next++
	dg.idOf[name] = id
	dg.nameOf[id] = name
	dg.g.AddNode(simple.Node(id))
}

// AddEdge records that from depends on to, with the given weight (default 1
// if weight <= 0). Both endpoints are added as nodes if not already present.
func (dg *Graph) AddEdge(from, to string, weight float64) {
	dg.AddNode(from)
	dg.AddNode(to)
	if weight <= 0 {
		weight = 1
	}
	dg.g.SetWeightedEdge(dg.g.NewWeightedEdge(simple.Node(dg.idOf[from]), simple.Node(dg.idOf[to]), weight))
}

// HasNode reports whether name is a node in the graph.
func (dg *Graph) HasNode(name string) bool {
	_, ok := dg.idOf[name]
	return ok
}

// RemovePackage deletes name from the node set and from every other node's
// adjacency list, leaving no dangling edges (spec.md §4.1).
func (dg *Graph) RemovePackage(name string) {
	id, ok := dg.idOf[name]
	if !ok {
		return
	}
	dg.g.RemoveNode(id)
	delete(dg.idOf, name)
	delete(dg.nameOf, id)
}

// Nodes returns the package names currently in the graph, sorted for
// determinism.
func (dg *Graph) Nodes() []string {
	names := make([]string, 0, len(dg.idOf))
	for n := range dg.idOf {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Dependencies returns the direct dependencies of name (outgoing edges),
// sorted for determinism.
func (dg *Graph) Dependencies(name string) []string {
	id, ok := dg.idOf[name]
	if !ok {
		return nil
	}
	it := dg.g.From(id)
	var out []string
	for it.Next() {
		out = append(out, dg.nameOf[it.Node().ID()])
	}
	sort.Strings(out)
	return out
}

// ReverseDependencies returns the packages that directly depend on name
// (incoming edges), sorted for determinism.
func (dg *Graph) ReverseDependencies(name string) []string {
	id, ok := dg.idOf[name]
	if !ok {
		return nil
	}
	it := dg.g.To(id)
	var out []string
	for it.Next() {
		out = append(out, dg.nameOf[it.Node().ID()])
	}
	sort.Strings(out)
	return out
}

// DetectCycles reports whether the graph contains a cycle, via gonum's
// directed-cycle enumeration.
func (dg *Graph) DetectCycles() bool {
	return len(topo.DirectedCyclesIn(dg.g)) > 0
}

// TopoSort returns the nodes in dependency-first order (a dependency always
// precedes its dependents), failing with a Conflict error if the graph
// contains a cycle. gonum's topo.Sort returns dependents-before-dependencies
// (a "from" edge means "from" must come before "to" in gonum's convention),
// so the result is reversed to match spec.md's dependency-first contract,
// and ties are broken lexically by name for determinism.
func (dg *Graph) TopoSort() ([]string, error) {
	ordered, err := topo.SortStabilized(dg.g, func(nodes []graph.Node) {
		sort.Slice(nodes, func(i, j int) bool {
			return dg.nameOf[nodes[i].ID()] < dg.nameOf[nodes[j].ID()]
		})
	})
	if err != nil {
		return nil, xerrors.Errorf("cycle detected: %w", errs.Conflict)
	}
	names := make([]string, len(ordered))
	for i, n := range ordered {
		// reverse while mapping: dependency-first means the last node gonum
		// emits (a leaf, with no outgoing deps) must come first.
		names[len(ordered)-1-i] = dg.nameOf[n.ID()]
	}
	return names, nil
}

// Roots returns nodes with no incoming edges.
func (dg *Graph) Roots() []string {
	var out []string
	for name, id := range dg.idOf {
		if dg.g.To(id).Len() == 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Leaves returns nodes with no outgoing edges.
func (dg *Graph) Leaves() []string {
	var out []string
	for name, id := range dg.idOf {
		if dg.g.From(id).Len() == 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Subgraph extracts the induced subgraph over names: all given nodes plus
// the edges between them that exist in dg.
func (dg *Graph) Subgraph(names []string) *Graph {
	sub := New()
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
		sub.AddNode(n)
	}
	for from := range want {
		id, ok := dg.idOf[from]
		if !ok {
			continue
		}
		it := dg.g.From(id)
		for it.Next() {
			to := dg.nameOf[it.Node().ID()]
			if want[to] {
				w, _ := dg.g.Weight(id, it.Node().ID())
				sub.AddEdge(from, to, w)
			}
		}
	}
	return sub
}

// jsonGraph is the JSON round-trip shape: explicit nodes plus weighted
// edges, so encoding doesn't depend on gonum's internal node IDs.
type jsonGraph struct {
	Nodes []string    `json:"nodes"`
	Edges []jsonEdge  `json:"edges"`
}

type jsonEdge struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Weight float64 `json:"weight"`
}

// ToJSON serializes the graph's nodes and edges.
func (dg *Graph) ToJSON() ([]byte, error) {
	jg := jsonGraph{Nodes: dg.Nodes()}
	for _, from := range jg.Nodes {
		id := dg.idOf[from]
		it := dg.g.From(id)
		for it.Next() {
			to := dg.nameOf[it.Node().ID()]
			w, _ := dg.g.Weight(id, it.Node().ID())
			jg.Edges = append(jg.Edges, jsonEdge{From: from, To: to, Weight: w})
		}
	}
	sort.Slice(jg.Edges, func(i, j int) bool {
		if jg.Edges[i].From != jg.Edges[j].From {
			return jg.Edges[i].From < jg.Edges[j].From
		}
		return jg.Edges[i].To < jg.Edges[j].To
	})
	return json.MarshalIndent(jg, "", "  ")
}

// FromJSON reconstructs a graph from ToJSON's output.
func FromJSON(data []byte) (*Graph, error) {
	var jg jsonGraph
	if err := json.Unmarshal(data, &jg); err != nil {
		return nil, xerrors.Errorf("decoding graph: %w: %v", errs.Invalid, err)
	}
	dg := New()
	for _, n := range jg.Nodes {
		dg.AddNode(n)
	}
	for _, e := range jg.Edges {
		dg.AddEdge(e.From, e.To, e.Weight)
	}
	return dg, nil
}

// Metrics summarizes leaf/root counts and totals.
type Metrics struct {
	Nodes int
	Edges int
	Roots int
	Leaves int
}

// Metrics computes leaf and root counts over the current graph.
func (dg *Graph) Metrics() Metrics {
	edges := dg.g.Edges()
	n := 0
	for edges.Next() {
		n++
	}
	return Metrics{
		Nodes:  len(dg.idOf),
		Edges:  n,
		Roots:  len(dg.Roots()),
		Leaves: len(dg.Leaves()),
	}
}
