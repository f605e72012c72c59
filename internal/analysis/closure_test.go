package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjpower/portmap/internal/extractor"
	"github.com/rjpower/portmap/internal/graph"
	"github.com/rjpower/portmap/internal/planner"
)

func singleton(e *extractor.Entity) planner.Batch {
	return planner.Batch{Entities: []*extractor.Entity{e}}
}

func TestDependencyClosure_Chain(t *testing.T) {
	a := ent("a", extractor.KindFunction, "x.c", 1, "a")
	b := ent("b", extractor.KindFunction, "x.c", 5, "b")
	c := ent("c", extractor.KindFunction, "x.c", 9, "c")
	d := ent("d", extractor.KindFunction, "x.c", 13, "d")
	entities := []*extractor.Entity{a, b, c, d}
	edges := []graph.Edge{
		{From: ordKey("a"), To: ordKey("b")},
		{From: ordKey("b"), To: ordKey("c")},
	}
	plan := &planner.Plan{Batches: []planner.Batch{
		singleton(c), singleton(d), singleton(b), singleton(a),
	}}

	closure, err := DependencyClosure(ordKey("a"), entities, edges, plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, names(closure),
		"dependencies come before their dependents, root last")

	leaf, err := DependencyClosure(ordKey("c"), entities, edges, plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, names(leaf))
}

func TestDependencyClosure_IncludesCycleMembers(t *testing.T) {
	x := ent("x", extractor.KindStruct, "y.c", 1, "x")
	y := ent("y", extractor.KindStruct, "y.c", 5, "y")
	z := ent("z", extractor.KindFunction, "y.c", 9, "z")
	entities := []*extractor.Entity{x, y, z}
	xk := extractor.Key{Space: extractor.NamespaceTag, Name: "x"}
	yk := extractor.Key{Space: extractor.NamespaceTag, Name: "y"}
	edges := []graph.Edge{
		{From: xk, To: yk},
		{From: yk, To: xk},
		{From: ordKey("z"), To: xk},
	}
	plan := &planner.Plan{Batches: []planner.Batch{
		{Entities: []*extractor.Entity{x, y}, IsCycle: true},
		singleton(z),
	}}

	closure, err := DependencyClosure(ordKey("z"), entities, edges, plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, names(closure))
}

func TestDependencyClosure_UnknownRoot(t *testing.T) {
	_, err := DependencyClosure(ordKey("ghost"), nil, nil, &planner.Plan{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown entity")
}
