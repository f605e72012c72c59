package analysis

import (
	"fmt"

	"github.com/rjpower/portmap/internal/extractor"
	"github.com/rjpower/portmap/internal/graph"
	"github.com/rjpower/portmap/internal/planner"
)

// DependencyClosure lists the root and everything it transitively
// depends on, ordered the way the plan processes them: dependencies
// before dependents, the root's own batch last.
func DependencyClosure(root extractor.Key, entities []*extractor.Entity,
	edges []graph.Edge, plan *planner.Plan) ([]*extractor.Entity, error) {

	known := make(map[extractor.Key]bool, len(entities))
	for _, e := range entities {
		known[e.Key()] = true
	}
	if !known[root] {
		return nil, fmt.Errorf("unknown entity %s", root)
	}

	succ := make(map[extractor.Key][]extractor.Key)
	for _, edge := range edges {
		succ[edge.From] = append(succ[edge.From], edge.To)
	}

	reach := map[extractor.Key]bool{root: true}
	stack := []extractor.Key{root}
	for len(stack) > 0 {
		k := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, to := range succ[k] {
			if !reach[to] {
				reach[to] = true
				stack = append(stack, to)
			}
		}
	}

	var out []*extractor.Entity
	for _, b := range plan.Batches {
		for _, e := range b.Entities {
			if reach[e.Key()] {
				out = append(out, e)
			}
		}
	}
	return out, nil
}
