// Package analysis answers questions over a completed run: which
// entities a change touches, and what an entity transitively needs.
package analysis

import (
	"strings"

	"github.com/rjpower/portmap/internal/extractor"
	"github.com/rjpower/portmap/internal/git"
	"github.com/rjpower/portmap/internal/graph"
)

// ImpactReport summarizes the entities affected by a set of changes.
type ImpactReport struct {
	// DirectlyAffected entities overlap a changed line.
	DirectlyAffected []*extractor.Entity
	// IndirectlyAffected entities depend on a directly affected one.
	IndirectlyAffected []*extractor.Entity
}

// Analyzer performs impact analysis over resolved entities and edges.
type Analyzer struct {
	byFile     map[string][]*extractor.Entity
	dependents map[extractor.Key][]*extractor.Entity
}

func NewAnalyzer(entities []*extractor.Entity, edges []graph.Edge) *Analyzer {
	a := &Analyzer{
		byFile:     make(map[string][]*extractor.Entity),
		dependents: make(map[extractor.Key][]*extractor.Entity),
	}
	byKey := make(map[extractor.Key]*extractor.Entity, len(entities))
	for _, e := range entities {
		byKey[e.Key()] = e
		a.byFile[e.File] = append(a.byFile[e.File], e)
	}
	for _, edge := range edges {
		if from, ok := byKey[edge.From]; ok && edge.From != edge.To {
			a.dependents[edge.To] = append(a.dependents[edge.To], from)
		}
	}
	return a
}

// AnalyzeImpact maps changed lines to the entities they fall inside,
// then adds every entity that depends on one of those.
func (a *Analyzer) AnalyzeImpact(changes []git.ChangedFile) *ImpactReport {
	report := &ImpactReport{}

	seenDirect := make(map[extractor.Key]bool)
	for _, change := range changes {
		for _, e := range a.byFile[change.Path] {
			if seenDirect[e.Key()] || !touches(e, change.ChangedLines) {
				continue
			}
			seenDirect[e.Key()] = true
			report.DirectlyAffected = append(report.DirectlyAffected, e)
		}
	}

	seenIndirect := make(map[extractor.Key]bool)
	for _, e := range report.DirectlyAffected {
		for _, dep := range a.dependents[e.Key()] {
			if seenDirect[dep.Key()] || seenIndirect[dep.Key()] {
				continue
			}
			seenIndirect[dep.Key()] = true
			report.IndirectlyAffected = append(report.IndirectlyAffected, dep)
		}
	}

	return report
}

// touches reports whether any changed line falls inside the entity's
// source span. The span end comes from the entity's captured text.
func touches(e *extractor.Entity, lines []int) bool {
	end := e.Line + strings.Count(e.RawText, "\n")
	for _, line := range lines {
		if line >= e.Line && line <= end {
			return true
		}
	}
	return false
}
