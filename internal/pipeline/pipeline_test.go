package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjpower/portmap/internal/extractor"
	"github.com/rjpower/portmap/internal/planner"
	"github.com/rjpower/portmap/internal/resolver"
	"github.com/rjpower/portmap/internal/symtab"
)

func fixtureFiles() []string {
	return []string{
		filepath.Join("testdata", "point.h"),
		filepath.Join("testdata", "point.c"),
		filepath.Join("testdata", "shape.c"),
		filepath.Join("testdata", "tree.c"),
	}
}

func batchNames(b planner.Batch) []string {
	names := make([]string, 0, len(b.Entities))
	for _, e := range b.Entities {
		names = append(names, e.Name)
	}
	return names
}

func planNames(p *planner.Plan) []string {
	var names []string
	for _, b := range p.Batches {
		names = append(names, batchNames(b)...)
	}
	return names
}

func TestAnalyzer_Analyze(t *testing.T) {
	res, err := New(Options{}).Analyze(context.Background(), fixtureFiles())
	require.NoError(t, err)
	require.Empty(t, res.ParseErrors)

	t.Run("Merged Entities", func(t *testing.T) {
		require.Len(t, res.Entities, 9)

		var dot *extractor.Entity
		for _, e := range res.Entities {
			if e.Name == "point_dot" {
				require.Nil(t, dot, "prototype and definition should merge into one entity")
				dot = e
			}
		}
		require.NotNil(t, dot)
		assert.Equal(t, filepath.Join("testdata", "point.c"), dot.File,
			"the definition should win over the header prototype")
		assert.Equal(t, 4, dot.Line)
		assert.True(t, dot.HasBody)
	})

	t.Run("Stats", func(t *testing.T) {
		assert.Equal(t, 4, res.Stats.Files)
		assert.Equal(t, 4, res.Stats.Parsed)
		assert.Equal(t, 9, res.Stats.Entities)
		assert.Equal(t, 10, res.Stats.Edges)
		assert.Equal(t, 8, res.Stats.Components)
		assert.Equal(t, 1, res.Stats.Cycles)
		assert.Equal(t, resolver.ResolveStats{Attempted: 11, Resolved: 10, External: 1}, res.Stats.Resolution)
	})

	t.Run("Batch Order", func(t *testing.T) {
		assert.Equal(t, []string{
			"SHAPE_MAX_PTS", "point",
			"tree_edge", "tree_node",
			"point_t", "point_dot", "shape",
			"point_len", "shape_perimeter",
		}, planNames(res.Plan))
		assert.Equal(t, 9, res.Plan.EntityCount())
	})

	t.Run("Cycle Batch", func(t *testing.T) {
		require.Len(t, res.Plan.Batches, 8)
		cycle := res.Plan.Batches[2]
		assert.True(t, cycle.IsCycle)
		assert.Equal(t, []string{"tree_edge", "tree_node"}, batchNames(cycle))
		assert.Empty(t, cycle.Internal, "intra-batch edges are not batch dependencies")
		assert.Empty(t, cycle.External)
	})

	t.Run("Batch Dependencies", func(t *testing.T) {
		var lenBatch *planner.Batch
		for i := range res.Plan.Batches {
			if len(res.Plan.Batches[i].Entities) == 1 && res.Plan.Batches[i].Entities[0].Name == "point_len" {
				lenBatch = &res.Plan.Batches[i]
			}
		}
		require.NotNil(t, lenBatch)
		assert.Equal(t, []string{"point_dot", "point_t"}, lenBatch.Internal)
		assert.Equal(t, []string{"sqrt"}, lenBatch.External)
	})

	t.Run("External Map", func(t *testing.T) {
		require.Len(t, res.External, 1)
		key := extractor.Key{Space: extractor.NamespaceOrdinary, Name: "point_len"}
		assert.Equal(t, []string{"sqrt"}, res.External[key])
	})
}

func TestAnalyzer_EdgesRespectBatchOrder(t *testing.T) {
	res, err := New(Options{}).Analyze(context.Background(), fixtureFiles())
	require.NoError(t, err)

	batchOf := make(map[extractor.Key]int)
	for i, b := range res.Plan.Batches {
		for _, e := range b.Entities {
			batchOf[e.Key()] = i
		}
	}

	for _, edge := range res.Edges {
		from, ok := batchOf[edge.From]
		require.True(t, ok, "edge source %s missing from plan", edge.From)
		to, ok := batchOf[edge.To]
		require.True(t, ok, "edge target %s missing from plan", edge.To)
		if from != to {
			assert.Less(t, to, from,
				"dependency %s must be batched before %s", edge.To, edge.From)
		}
	}
}

func TestAnalyzer_SkipsUnparsableFiles(t *testing.T) {
	files := append(fixtureFiles(), filepath.Join("testdata", "broken.c"))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	res, err := New(Options{Logger: logger}).Analyze(context.Background(), files)
	require.NoError(t, err, "a single bad file must not abort the run")

	require.Len(t, res.ParseErrors, 1)
	assert.Equal(t, filepath.Join("testdata", "broken.c"), res.ParseErrors[0].File)
	assert.Contains(t, res.ParseErrors[0].Reason, "syntax error")

	assert.Equal(t, 5, res.Stats.Files)
	assert.Equal(t, 4, res.Stats.Parsed)
	assert.Equal(t, 9, res.Plan.EntityCount(), "good files still produce a full plan")
}

func TestAnalyzer_WorkerCountInvariance(t *testing.T) {
	serial, err := New(Options{Workers: 1}).Analyze(context.Background(), fixtureFiles())
	require.NoError(t, err)

	parallel, err := New(Options{Workers: 8}).Analyze(context.Background(), fixtureFiles())
	require.NoError(t, err)

	assert.Equal(t, serial.Plan, parallel.Plan)
	assert.Equal(t, serial.Edges, parallel.Edges)
	assert.Equal(t, serial.External, parallel.External)
	assert.Equal(t, planNames(serial.Plan), planNames(parallel.Plan))
}

func TestAnalyzer_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{}).Analyze(ctx, fixtureFiles())
	require.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzer_DuplicateDefinition(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.c")
	second := filepath.Join(dir, "b.c")
	require.NoError(t, os.WriteFile(first, []byte("int answer(void) { return 42; }\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("int answer(void) { return 43; }\n"), 0o644))

	_, err := New(Options{}).Analyze(context.Background(), []string{first, second})
	require.Error(t, err)

	var dup *symtab.DuplicateDefinitionError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "answer", dup.Key.Name)
}
