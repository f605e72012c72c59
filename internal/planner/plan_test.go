package planner

import (
	"testing"

	"github.com/rjpower/portmap/internal/extractor"
	"github.com/rjpower/portmap/internal/graph"
	"github.com/rjpower/portmap/internal/resolver"
	"github.com/rjpower/portmap/internal/symtab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fn(name, file string, line int, refs ...string) *extractor.Entity {
	e := &extractor.Entity{Name: name, Kind: extractor.KindFunction, File: file, Line: line, RawText: name, HasBody: true}
	for _, r := range refs {
		e.AddRef(extractor.Ref{Name: r, Space: extractor.NamespaceOrdinary})
	}
	return e
}

func buildPlan(t *testing.T, entities ...*extractor.Entity) *Plan {
	t.Helper()
	table, err := symtab.Build(entities)
	require.NoError(t, err)

	res := resolver.Resolve(table.Entities(), table)
	g := graph.New()
	for _, e := range table.Entities() {
		g.AddNode(e.Key())
	}
	for _, edge := range res.Edges {
		g.AddEdge(edge.From, edge.To)
	}

	plan, err := BuildPlan(table, g.Condense(g.SCCs()), res)
	require.NoError(t, err)
	return plan
}

func flattenedNames(p *Plan) []string {
	var names []string
	for _, e := range p.Entities() {
		names = append(names, e.Name)
	}
	return names
}

func TestBuildPlan_Chain(t *testing.T) {
	plan := buildPlan(t,
		fn("A", "main.c", 30, "B"),
		fn("B", "main.c", 20, "C"),
		fn("C", "main.c", 10),
	)

	assert.Equal(t, []string{"C", "B", "A"}, flattenedNames(plan),
		"dependencies must come before dependents")
	require.Len(t, plan.Batches, 3)
	for _, b := range plan.Batches {
		assert.False(t, b.IsCycle)
	}
	assert.Equal(t, []string{"B"}, plan.Batches[2].Internal,
		"a batch should name its resolved prerequisites")
}

func TestBuildPlan_MutualCycleIsAtomic(t *testing.T) {
	plan := buildPlan(t,
		fn("X", "pair.c", 10, "Y"),
		fn("Y", "pair.c", 20, "X"),
	)

	require.Len(t, plan.Batches, 1, "mutually recursive entities form one atomic batch")
	batch := plan.Batches[0]
	assert.True(t, batch.IsCycle)
	require.Len(t, batch.Entities, 2)
	assert.Equal(t, "X", batch.Entities[0].Name, "cycle members keep source order")
	assert.Equal(t, "Y", batch.Entities[1].Name)
}

func TestBuildPlan_IndependentChainsTieBreak(t *testing.T) {
	plan := buildPlan(t,
		fn("A", "one.c", 10, "B"),
		fn("B", "one.c", 20),
		fn("C", "two.c", 10, "D"),
		fn("D", "two.c", 20),
	)

	assert.Equal(t, []string{"B", "D", "A", "C"}, flattenedNames(plan),
		"each wave of ready entities is emitted in name order")
}

func TestBuildPlan_SelfLoopReportedAsCycle(t *testing.T) {
	node := &extractor.Entity{Name: "node", Kind: extractor.KindStruct, File: "node.h", Line: 3,
		RawText: "struct node { struct node *next; }", HasBody: true}
	node.AddRef(extractor.Ref{Name: "node", Space: extractor.NamespaceTag})

	plan := buildPlan(t, node)

	require.Len(t, plan.Batches, 1)
	assert.True(t, plan.Batches[0].IsCycle, "a self-referential struct is a cycle of size one")
	assert.Len(t, plan.Batches[0].Entities, 1)
}

func TestBuildPlan_CycleSizeOrdersBeforeName(t *testing.T) {
	// A mutual pair (size 2) and an independent single (size 1) are ready
	// in the same wave: the smaller component goes first regardless of
	// names.
	plan := buildPlan(t,
		fn("aa", "cycle.c", 10, "bb"),
		fn("bb", "cycle.c", 20, "aa"),
		fn("zz", "single.c", 5),
	)

	require.Len(t, plan.Batches, 2)
	assert.Equal(t, []string{"zz"}, namesOf(plan.Batches[0]))
	assert.Equal(t, []string{"aa", "bb"}, namesOf(plan.Batches[1]))
}

func TestBuildPlan_Completeness(t *testing.T) {
	plan := buildPlan(t,
		fn("A", "main.c", 1, "B", "C"),
		fn("B", "main.c", 2, "C"),
		fn("C", "main.c", 3),
		fn("D", "main.c", 4, "D"),
	)

	assert.Equal(t, 4, plan.EntityCount(), "no entity may be lost or duplicated")
	seen := make(map[string]int)
	for _, name := range flattenedNames(plan) {
		seen[name]++
	}
	for name, count := range seen {
		assert.Equal(t, 1, count, "entity %s should appear exactly once", name)
	}
}

func TestBuildPlan_Deterministic(t *testing.T) {
	build := func() []string {
		return flattenedNames(buildPlan(t,
			fn("m", "a.c", 1, "n"),
			fn("n", "a.c", 2, "m"),
			fn("p", "b.c", 1, "m"),
			fn("q", "b.c", 9),
		))
	}
	assert.Equal(t, build(), build(), "the order must be byte-for-byte reproducible")
}

func TestBuildPlan_MonotonicStability(t *testing.T) {
	base := []*extractor.Entity{
		fn("A", "one.c", 10, "B"),
		fn("B", "one.c", 20),
		fn("C", "two.c", 10, "D"),
		fn("D", "two.c", 20),
	}
	before := flattenedNames(buildPlan(t, base...))

	extended := append([]*extractor.Entity{fn("E", "three.c", 1)}, base...)
	after := flattenedNames(buildPlan(t, extended...))

	pos := func(names []string, target string) int {
		for i, n := range names {
			if n == target {
				return i
			}
		}
		t.Fatalf("entity %s missing from order %v", target, names)
		return -1
	}
	for _, pair := range [][2]string{{"B", "A"}, {"D", "C"}, {"B", "D"}, {"A", "C"}} {
		wasBefore := pos(before, pair[0]) < pos(before, pair[1])
		isBefore := pos(after, pair[0]) < pos(after, pair[1])
		assert.Equal(t, wasBefore, isBefore,
			"adding a dependency-free entity must not reorder %s and %s", pair[0], pair[1])
	}
}

func TestBuildPlan_BatchDependencySummaries(t *testing.T) {
	x := fn("X", "pair.c", 10, "Y", "base")
	y := fn("Y", "pair.c", 20, "X", "qsort")
	base := fn("base", "base.c", 1)

	plan := buildPlan(t, base, x, y)

	require.Len(t, plan.Batches, 2)
	cycle := plan.Batches[1]
	require.True(t, cycle.IsCycle)
	assert.Equal(t, []string{"base"}, cycle.Internal,
		"intra-cycle references are not prerequisites")
	assert.Equal(t, []string{"qsort"}, cycle.External)
}

func namesOf(b Batch) []string {
	var names []string
	for _, e := range b.Entities {
		names = append(names, e.Name)
	}
	return names
}
