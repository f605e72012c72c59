package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rjpower/portmap/internal/extractor"
	"github.com/rjpower/portmap/internal/pipeline"
)

var csvHeader = []string{"batch", "name", "kind", "location", "is_cycle", "dependencies", "external"}

// WriteCSV emits one row per entity in plan order. Dependency columns
// hold semicolon-joined names.
func WriteCSV(w io.Writer, res *pipeline.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	deps := dependencyNames(res)
	for i, b := range res.Plan.Batches {
		for _, e := range b.Entities {
			rec := []string{
				strconv.Itoa(i),
				e.Name,
				string(e.Kind),
				e.Location(),
				strconv.FormatBool(b.IsCycle),
				strings.Join(deps[e.Key()], ";"),
				strings.Join(res.External[e.Key()], ";"),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// dependencyNames groups resolved edges by source entity, preserving
// reference order.
func dependencyNames(res *pipeline.Result) map[extractor.Key][]string {
	deps := make(map[extractor.Key][]string, len(res.Entities))
	for _, edge := range res.Edges {
		deps[edge.From] = append(deps[edge.From], edge.To.Name)
	}
	return deps
}
