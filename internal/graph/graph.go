// Package graph builds the entity dependency graph and computes its
// strongly connected components and condensation.
package graph

import (
	"sort"

	"github.com/rjpower/portmap/internal/extractor"
)

// Edge records that From's declaration references To.
type Edge struct {
	From extractor.Key `json:"from"`
	To   extractor.Key `json:"to"`
}

// Graph is a directed dependency graph over qualified entity keys. Edges
// point from dependent to dependency.
type Graph struct {
	nodes map[extractor.Key]struct{}
	succ  map[extractor.Key][]extractor.Key
	seen  map[Edge]struct{}
}

// New returns a graph with no nodes or edges.
func New() *Graph {
	return &Graph{
		nodes: make(map[extractor.Key]struct{}),
		succ:  make(map[extractor.Key][]extractor.Key),
		seen:  make(map[Edge]struct{}),
	}
}

// AddNode registers a key. Duplicate calls are no-ops.
func (g *Graph) AddNode(k extractor.Key) {
	g.nodes[k] = struct{}{}
}

// AddEdge records that from depends on to. Missing nodes are created
// implicitly; duplicate edges are ignored. Self-loops are legal and mark
// structural recursion.
func (g *Graph) AddEdge(from, to extractor.Key) {
	g.nodes[from] = struct{}{}
	g.nodes[to] = struct{}{}

	e := Edge{From: from, To: to}
	if _, dup := g.seen[e]; dup {
		return
	}
	g.seen[e] = struct{}{}
	g.succ[from] = append(g.succ[from], to)
}

// HasEdge reports whether the exact edge was recorded.
func (g *Graph) HasEdge(from, to extractor.Key) bool {
	_, ok := g.seen[Edge{From: from, To: to}]
	return ok
}

// Dependencies returns the keys that k depends on, in insertion order.
func (g *Graph) Dependencies(k extractor.Key) []extractor.Key {
	return g.succ[k]
}

// Nodes returns every key in a stable sorted order.
func (g *Graph) Nodes() []extractor.Key {
	out := make([]extractor.Key, 0, len(g.nodes))
	for k := range g.nodes {
		out = append(out, k)
	}
	sortKeys(out)
	return out
}

// Edges returns every edge sorted by (from, to).
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.seen))
	for e := range g.seen {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return keyLess(out[i].From, out[j].From)
		}
		return keyLess(out[i].To, out[j].To)
	})
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int {
	return len(g.seen)
}

func keyLess(a, b extractor.Key) bool {
	if a.Space != b.Space {
		return a.Space < b.Space
	}
	return a.Name < b.Name
}

func sortKeys(keys []extractor.Key) {
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
}
