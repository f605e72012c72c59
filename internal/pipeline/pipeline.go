// Package pipeline wires extraction, symbol resolution, and ordering
// into a single analysis run over a set of C sources.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rjpower/portmap/internal/extractor"
	"github.com/rjpower/portmap/internal/graph"
	"github.com/rjpower/portmap/internal/planner"
	"github.com/rjpower/portmap/internal/resolver"
	"github.com/rjpower/portmap/internal/symtab"
)

// Options controls a single analysis run.
type Options struct {
	// Primitives are extra type names treated as builtins and never
	// recorded as dependencies.
	Primitives []string

	// IgnoreMacros names object macros to drop during extraction, on
	// top of the default include-guard and platform-macro filters.
	IgnoreMacros []string

	// Workers bounds parse parallelism. Zero or negative means one
	// worker per CPU.
	Workers int

	// Logger receives progress and skip diagnostics. Nil disables
	// logging.
	Logger *slog.Logger
}

// Stats summarizes a completed analysis run.
type Stats struct {
	Files      int                   `json:"files"`
	Parsed     int                   `json:"parsed"`
	Entities   int                   `json:"entities"`
	Edges      int                   `json:"edges"`
	Components int                   `json:"components"`
	Cycles     int                   `json:"cycles"`
	Resolution resolver.ResolveStats `json:"resolution"`
	Elapsed    time.Duration         `json:"elapsed"`
}

// Result carries everything produced by one analysis run.
type Result struct {
	// Plan is the batched processing order over all merged entities.
	Plan *planner.Plan

	// Entities are the merged entities in deterministic source order.
	Entities []*extractor.Entity

	// Edges are the resolved dependency edges.
	Edges []graph.Edge

	// External maps each entity to the referenced names that resolved
	// to nothing in the analyzed sources.
	External map[extractor.Key][]string

	// ParseErrors lists files that were skipped because they could not
	// be read or parsed. The rest of the result excludes them.
	ParseErrors []extractor.ParseError

	Stats Stats
}

// Analyzer runs the full pipeline: parallel extraction, symbol table
// construction, reference resolution, and plan ordering. An Analyzer
// is safe for concurrent use.
type Analyzer struct {
	workers int
	ext     *extractor.Extractor
	log     *slog.Logger
}

func New(opts Options) *Analyzer {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Analyzer{
		workers: workers,
		ext:     extractor.New(opts.Primitives, opts.IgnoreMacros),
		log:     componentLogger(opts.Logger, "pipeline"),
	}
}

// Analyze parses the given files and produces a processing plan for
// the entities they define. Files that fail to parse are reported in
// Result.ParseErrors and excluded from the plan. Conflicting
// definitions and infrastructure failures abort the run.
func (a *Analyzer) Analyze(ctx context.Context, files []string) (*Result, error) {
	start := time.Now()

	raw, parseErrs, err := a.parseStage(ctx, files)
	if err != nil {
		return nil, err
	}

	table, err := symtab.Build(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to build symbol table: %w", err)
	}

	entities := table.Entities()
	res := resolver.Resolve(entities, table)

	g := buildGraph(entities, res)
	sccs := g.SCCs()
	cond := g.Condense(sccs)

	plan, err := planner.BuildPlan(table, cond, res)
	if err != nil {
		return nil, fmt.Errorf("failed to order components: %w", err)
	}

	stats := Stats{
		Files:      len(files),
		Parsed:     len(files) - len(parseErrs),
		Entities:   len(entities),
		Edges:      g.EdgeCount(),
		Components: len(sccs),
		Resolution: res.Stats,
		Elapsed:    time.Since(start),
	}
	for _, s := range sccs {
		if s.Cyclic() {
			stats.Cycles++
		}
	}

	if logEnabled(a.log, slog.LevelInfo) {
		a.log.LogAttrs(ctx, slog.LevelInfo, "analysis complete",
			slog.Int("files", stats.Files),
			slog.Int("entities", stats.Entities),
			slog.Int("edges", stats.Edges),
			slog.Int("cycles", stats.Cycles),
			slog.Duration("elapsed", stats.Elapsed))
	}

	return &Result{
		Plan:        plan,
		Entities:    entities,
		Edges:       res.Edges,
		External:    res.External,
		ParseErrors: parseErrs,
		Stats:       stats,
	}, nil
}

type fileResult struct {
	path     string
	entities []*extractor.Entity
	err      error
}

// parseStage extracts entities from every file with a bounded worker
// pool. Unparsable files are collected as ParseErrors; any other
// failure aborts. The merged entity order is independent of goroutine
// scheduling.
func (a *Analyzer) parseStage(ctx context.Context, files []string) ([]*extractor.Entity, []extractor.ParseError, error) {
	results := make(chan fileResult, len(files))

	var wg sync.WaitGroup
	sem := make(chan struct{}, a.workers)
	for _, file := range files {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()

			entities, err := a.ext.ExtractFile(ctx, path)
			results <- fileResult{path: path, entities: entities, err: err}
		}(file)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]fileResult, 0, len(files))
	for r := range results {
		collected = append(collected, r)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].path < collected[j].path })

	var (
		all       []*extractor.Entity
		parseErrs []extractor.ParseError
	)
	for _, r := range collected {
		if r.err != nil {
			var perr *extractor.ParseError
			if !errors.As(r.err, &perr) {
				return nil, nil, fmt.Errorf("failed to extract %s: %w", r.path, r.err)
			}
			if logEnabled(a.log, slog.LevelWarn) {
				a.log.LogAttrs(ctx, slog.LevelWarn, "skipping unparsable file",
					slog.String("file", perr.File),
					slog.String("reason", perr.Reason))
			}
			parseErrs = append(parseErrs, *perr)
			continue
		}
		all = append(all, r.entities...)
	}
	return all, parseErrs, nil
}

// buildGraph assembles the dependency graph: one node per merged
// entity, one edge per resolved reference.
func buildGraph(entities []*extractor.Entity, res *resolver.Result) *graph.Graph {
	g := graph.New()
	for _, e := range entities {
		g.AddNode(e.Key())
	}
	for _, edge := range res.Edges {
		g.AddEdge(edge.From, edge.To)
	}
	return g
}

func componentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(slog.String("component", component))
}

func logEnabled(logger *slog.Logger, level slog.Level) bool {
	return logger != nil && logger.Enabled(context.Background(), level)
}
