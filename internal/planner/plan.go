// Package planner flattens the condensation graph into the final
// deterministic processing order.
package planner

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rjpower/portmap/internal/extractor"
	"github.com/rjpower/portmap/internal/graph"
	"github.com/rjpower/portmap/internal/resolver"
	"github.com/rjpower/portmap/internal/symtab"
)

// ErrInconsistentCondensation reports a cyclic condensation graph. It
// should never occur: the condensation of an SCC decomposition is acyclic
// by construction, so hitting this means the SCC computation is wrong.
var ErrInconsistentCondensation = errors.New("condensation graph is cyclic")

// Batch is one step of the processing order: a single acyclic entity, or
// a whole cycle taken atomically. Members of a cycle are listed in source
// order (file, then line).
type Batch struct {
	Entities []*extractor.Entity
	IsCycle  bool

	// Internal names entities from earlier batches that this batch
	// depends on; External names symbols outside the analyzed set.
	Internal []string
	External []string
}

// Plan is the deterministic sequence of batches that drives downstream,
// entity-at-a-time migration. Every edge points from a later batch to an
// earlier one.
type Plan struct {
	Batches []Batch
}

// EntityCount returns the total number of entities across all batches.
func (p *Plan) EntityCount() int {
	n := 0
	for _, b := range p.Batches {
		n += len(b.Entities)
	}
	return n
}

// Entities returns the flattened processing order.
func (p *Plan) Entities() []*extractor.Entity {
	out := make([]*extractor.Entity, 0, p.EntityCount())
	for _, b := range p.Batches {
		out = append(out, b.Entities...)
	}
	return out
}

// sortKey is the three-level tie-break that makes the order a pure
// function of input content: SCC size ascending, then the
// lexicographically smallest member name, then that member's location.
// Namespace is a final separator for the degenerate case of a tag and an
// ordinary entity declared with the same name on the same line.
type sortKey struct {
	size  int
	name  string
	file  string
	line  int
	space extractor.Namespace
}

func (a sortKey) less(b sortKey) bool {
	if a.size != b.size {
		return a.size < b.size
	}
	if a.name != b.name {
		return a.name < b.name
	}
	if a.file != b.file {
		return a.file < b.file
	}
	if a.line != b.line {
		return a.line < b.line
	}
	return a.space < b.space
}

// BuildPlan orders the condensation with Kahn's algorithm, processed in
// waves: every component whose dependencies are all satisfied is emitted
// in the current wave, sorted by the tie-break key; components freed by
// the current wave form the next one. Cycles never split across batches.
func BuildPlan(table *symtab.Table, cond *graph.Condensation, res *resolver.Result) (*Plan, error) {
	entities := make(map[extractor.Key]*extractor.Entity, table.Len())
	for _, e := range table.Entities() {
		entities[e.Key()] = e
	}

	keys := make([]sortKey, len(cond.SCCs))
	for _, s := range cond.SCCs {
		k, err := componentKey(s, entities)
		if err != nil {
			return nil, err
		}
		keys[s.ID] = k
	}

	remaining := make([]int, len(cond.SCCs))
	var wave []int
	for _, s := range cond.SCCs {
		remaining[s.ID] = len(cond.Dependencies(s.ID))
		if remaining[s.ID] == 0 {
			wave = append(wave, s.ID)
		}
	}
	sortWave(wave, keys)

	deps := make(map[extractor.Key][]extractor.Key)
	for _, e := range res.Edges {
		deps[e.From] = append(deps[e.From], e.To)
	}

	var order []int
	for len(wave) > 0 {
		var next []int
		for _, id := range wave {
			order = append(order, id)
			for _, p := range cond.Dependents(id) {
				remaining[p]--
				if remaining[p] == 0 {
					next = append(next, p)
				}
			}
		}
		sortWave(next, keys)
		wave = next
	}

	if len(order) != len(cond.SCCs) {
		return nil, fmt.Errorf("topological sort placed %d of %d components: %w",
			len(order), len(cond.SCCs), ErrInconsistentCondensation)
	}

	plan := &Plan{Batches: make([]Batch, 0, len(order))}
	for _, id := range order {
		plan.Batches = append(plan.Batches, buildBatch(cond.SCCs[id], entities, deps, res.External))
	}
	return plan, nil
}

func componentKey(s *graph.SCC, entities map[extractor.Key]*extractor.Entity) (sortKey, error) {
	best := sortKey{}
	for i, m := range s.Members {
		e, ok := entities[m]
		if !ok {
			return sortKey{}, fmt.Errorf("component member %s has no entity in the symbol table", m)
		}
		candidate := sortKey{
			size:  len(s.Members),
			name:  e.Name,
			file:  e.File,
			line:  e.Line,
			space: m.Space,
		}
		if i == 0 || candidate.less(best) {
			best = candidate
		}
	}
	return best, nil
}

func sortWave(wave []int, keys []sortKey) {
	sort.Slice(wave, func(i, j int) bool {
		return keys[wave[i]].less(keys[wave[j]])
	})
}

func buildBatch(s *graph.SCC, entities map[extractor.Key]*extractor.Entity,
	deps map[extractor.Key][]extractor.Key, ext map[extractor.Key][]string) Batch {

	members := make([]*extractor.Entity, 0, len(s.Members))
	inBatch := make(map[extractor.Key]struct{}, len(s.Members))
	for _, m := range s.Members {
		members = append(members, entities[m])
		inBatch[m] = struct{}{}
	}
	sort.Slice(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Name < b.Name
	})

	internal := make(map[string]struct{})
	external := make(map[string]struct{})
	for _, m := range s.Members {
		for _, d := range deps[m] {
			if _, own := inBatch[d]; own {
				continue
			}
			internal[d.Name] = struct{}{}
		}
		for _, name := range ext[m] {
			external[name] = struct{}{}
		}
	}

	return Batch{
		Entities: members,
		IsCycle:  s.Cyclic(),
		Internal: sortedNames(internal),
		External: sortedNames(external),
	}
}

func sortedNames(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
