package storage

import (
	"context"

	"github.com/rjpower/portmap/internal/extractor"
	"github.com/rjpower/portmap/internal/graph"
	"github.com/rjpower/portmap/internal/pipeline"
	"github.com/rjpower/portmap/internal/planner"
)

// Store persists one analysis run and serves lookups over it. Saving a
// new run replaces the previous snapshot.
type Store interface {
	// SaveAnalysis replaces the stored snapshot with the given run.
	SaveAnalysis(ctx context.Context, res *pipeline.Result) error

	// LoadPlan reconstructs the batched plan. Loaded entities carry no
	// reference lists; resolved references live in the edge table.
	LoadPlan(ctx context.Context) (*planner.Plan, error)

	// LoadEdges returns every resolved dependency edge.
	LoadEdges(ctx context.Context) ([]graph.Edge, error)

	// LoadExternals returns the unresolved references per entity.
	LoadExternals(ctx context.Context) (map[extractor.Key][]string, error)

	// FindEntity retrieves one entity by namespace-qualified name.
	FindEntity(ctx context.Context, space extractor.Namespace, name string) (*extractor.Entity, error)

	// FindEntitiesByFile retrieves all entities defined in a file,
	// ordered by line.
	FindEntitiesByFile(ctx context.Context, file string) ([]*extractor.Entity, error)

	Close() error
}
