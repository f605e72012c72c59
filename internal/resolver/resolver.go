// Package resolver converts captured references into dependency edges by
// looking each name up in the symbol table.
package resolver

import (
	"github.com/rjpower/portmap/internal/extractor"
	"github.com/rjpower/portmap/internal/graph"
	"github.com/rjpower/portmap/internal/symtab"
)

// ResolveStats summarizes one resolution pass.
type ResolveStats struct {
	Attempted int `json:"attempted"`
	Resolved  int `json:"resolved"`
	External  int `json:"external"`
}

// Result carries the edge set plus per-entity external dependencies.
type Result struct {
	Edges []graph.Edge

	// External maps an entity to referenced names that resolve to nothing
	// in the analyzed set: standard-library symbols, macros from system
	// headers, and the like. Informational, never an error.
	External map[extractor.Key][]string

	Stats ResolveStats
}

// Resolve walks each entity's references in order and looks every name
// up in the namespace its syntactic position dictates. Hits become edges;
// self-references are kept, since they are exactly what produces
// non-trivial SCCs. Misses are recorded as external dependencies.
//
// Entities must arrive in a deterministic order (the symbol table's) so
// the edge list is reproducible.
func Resolve(entities []*extractor.Entity, table *symtab.Table) *Result {
	r := &Result{External: make(map[extractor.Key][]string)}

	for _, e := range entities {
		from := e.Key()
		var seenExternal map[string]struct{}

		for _, ref := range e.Refs {
			r.Stats.Attempted++
			if _, ok := table.Lookup(ref.Space, ref.Name); ok {
				r.Stats.Resolved++
				r.Edges = append(r.Edges, graph.Edge{
					From: from,
					To:   extractor.Key{Space: ref.Space, Name: ref.Name},
				})
				continue
			}

			if seenExternal == nil {
				seenExternal = make(map[string]struct{})
			}
			if _, dup := seenExternal[ref.Name]; dup {
				continue
			}
			seenExternal[ref.Name] = struct{}{}
			r.Stats.External++
			r.External[from] = append(r.External[from], ref.Name)
		}
	}
	return r
}
