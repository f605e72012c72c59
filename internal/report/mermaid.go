package report

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rjpower/portmap/internal/extractor"
	"github.com/rjpower/portmap/internal/pipeline"
)

// DiagramGenerator renders dependency graphs as Mermaid markup.
type DiagramGenerator struct{}

var nodeIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]`)

func nodeID(k extractor.Key) string {
	return nodeIDSanitizer.ReplaceAllString(k.String(), "_")
}

// GenerateDependencyDiagram draws every entity and resolved edge.
// Members of cyclic batches are highlighted.
func (d *DiagramGenerator) GenerateDependencyDiagram(res *pipeline.Result) string {
	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("graph TD\n")

	for _, e := range res.Entities {
		sb.WriteString(fmt.Sprintf("    %s[\"%s %s\"]\n", nodeID(e.Key()), e.Kind, e.Name))
	}
	for _, edge := range res.Edges {
		sb.WriteString(fmt.Sprintf("    %s --> %s\n", nodeID(edge.From), nodeID(edge.To)))
	}

	var cyclic []string
	for _, b := range res.Plan.Batches {
		if !b.IsCycle {
			continue
		}
		for _, e := range b.Entities {
			cyclic = append(cyclic, nodeID(e.Key()))
		}
	}
	if len(cyclic) > 0 {
		sb.WriteString("    classDef cycle fill:#fdd,stroke:#c33\n")
		for _, id := range cyclic {
			sb.WriteString(fmt.Sprintf("    class %s cycle\n", id))
		}
	}

	sb.WriteString("```\n")
	return sb.String()
}

// GenerateBatchDiagram draws the plan as ordered batch subgraphs, one
// arrow per inter-batch dependency summary.
func (d *DiagramGenerator) GenerateBatchDiagram(res *pipeline.Result) string {
	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("graph LR\n")

	owner := make(map[string]int)
	for i, b := range res.Plan.Batches {
		for _, e := range b.Entities {
			owner[e.Name] = i
		}
	}

	for i, b := range res.Plan.Batches {
		label := "batch " + fmt.Sprint(i)
		if b.IsCycle {
			label += " (cycle)"
		}
		sb.WriteString(fmt.Sprintf("    subgraph B%d[\"%s\"]\n", i, label))
		for _, e := range b.Entities {
			sb.WriteString(fmt.Sprintf("        %s[\"%s\"]\n", nodeID(e.Key()), e.Name))
		}
		sb.WriteString("    end\n")
	}

	drawn := make(map[[2]int]bool)
	for i, b := range res.Plan.Batches {
		for _, dep := range b.Internal {
			j, ok := owner[dep]
			if !ok || j == i || drawn[[2]int{i, j}] {
				continue
			}
			drawn[[2]int{i, j}] = true
			sb.WriteString(fmt.Sprintf("    B%d --> B%d\n", i, j))
		}
	}

	sb.WriteString("```\n")
	return sb.String()
}
