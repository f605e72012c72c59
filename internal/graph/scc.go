package graph

import (
	"sort"

	"github.com/rjpower/portmap/internal/extractor"
)

// SCC is one strongly connected component of the dependency graph.
type SCC struct {
	ID       int
	Members  []extractor.Key
	SelfLoop bool
}

// Cyclic reports whether the component must be treated as an atomic
// cycle: more than one member, or a single member referencing itself.
func (s *SCC) Cyclic() bool {
	return len(s.Members) > 1 || s.SelfLoop
}

// SCCs computes strongly connected components with Tarjan's algorithm:
// one pass, a discovery index and low-link per node, and an explicit
// stack with on-stack markers. Roots are visited in sorted key order so
// component numbering depends only on graph content, never on map
// iteration order.
func (g *Graph) SCCs() []*SCC {
	var (
		out      []*SCC
		index    int
		stack    []extractor.Key
		onStack  = make(map[extractor.Key]bool)
		indices  = make(map[extractor.Key]int)
		lowlinks = make(map[extractor.Key]int)
	)

	var strongConnect func(k extractor.Key)
	strongConnect = func(k extractor.Key) {
		indices[k] = index
		lowlinks[k] = index
		index++
		stack = append(stack, k)
		onStack[k] = true

		for _, dep := range g.succ[k] {
			if _, visited := indices[dep]; !visited {
				strongConnect(dep)
				lowlinks[k] = min(lowlinks[k], lowlinks[dep])
			} else if onStack[dep] {
				lowlinks[k] = min(lowlinks[k], indices[dep])
			}
		}

		if lowlinks[k] == indices[k] {
			var members []extractor.Key
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				members = append(members, w)
				if w == k {
					break
				}
			}
			sortKeys(members)
			out = append(out, &SCC{
				ID:       len(out),
				Members:  members,
				SelfLoop: len(members) == 1 && g.HasEdge(members[0], members[0]),
			})
		}
	}

	for _, k := range g.Nodes() {
		if _, visited := indices[k]; !visited {
			strongConnect(k)
		}
	}
	return out
}

// Condensation is the DAG formed by contracting each SCC to one node.
// By construction it is acyclic; the planner re-checks that as an
// internal consistency guard.
type Condensation struct {
	SCCs []*SCC
	// Of maps every entity key to the ID of its component.
	Of map[extractor.Key]int

	succ map[int][]int
	pred map[int][]int
}

// Condense maps every cross-component edge onto the SCC pair it links,
// deduplicated. Intra-component edges (including self-loops) vanish.
func (g *Graph) Condense(sccs []*SCC) *Condensation {
	c := &Condensation{
		SCCs: sccs,
		Of:   make(map[extractor.Key]int),
		succ: make(map[int][]int),
		pred: make(map[int][]int),
	}
	for _, s := range sccs {
		for _, m := range s.Members {
			c.Of[m] = s.ID
		}
	}

	type pair struct{ a, b int }
	linked := make(map[pair]struct{})
	for _, e := range g.Edges() {
		a, b := c.Of[e.From], c.Of[e.To]
		if a == b {
			continue
		}
		p := pair{a, b}
		if _, dup := linked[p]; dup {
			continue
		}
		linked[p] = struct{}{}
		c.succ[a] = append(c.succ[a], b)
		c.pred[b] = append(c.pred[b], a)
	}

	for id := range c.succ {
		sort.Ints(c.succ[id])
	}
	for id := range c.pred {
		sort.Ints(c.pred[id])
	}
	return c
}

// Dependencies returns the component IDs that id depends on.
func (c *Condensation) Dependencies(id int) []int {
	return c.succ[id]
}

// Dependents returns the component IDs that depend on id.
func (c *Condensation) Dependents(id int) []int {
	return c.pred[id]
}
