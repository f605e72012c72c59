package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rjpower/portmap/internal/extractor"
)

// RepoMap renders a per-file markdown index of every entity and the
// names it uses. Entities are listed in source order within each file.
func RepoMap(entities []*extractor.Entity) string {
	byFile := make(map[string][]*extractor.Entity)
	for _, e := range entities {
		byFile[e.File] = append(byFile[e.File], e)
	}

	files := make([]string, 0, len(byFile))
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)

	var sb strings.Builder
	sb.WriteString("# Repository Map\n")
	for _, f := range files {
		sb.WriteString("\n## " + f + "\n\n")
		group := byFile[f]
		sort.Slice(group, func(i, j int) bool {
			if group[i].Line == group[j].Line {
				return group[i].Name < group[j].Name
			}
			return group[i].Line < group[j].Line
		})
		for _, e := range group {
			sb.WriteString(fmt.Sprintf("- %s `%s` (line %d)", e.Kind, e.Name, e.Line))
			if len(e.Refs) > 0 {
				names := make([]string, 0, len(e.Refs))
				for _, r := range e.Refs {
					names = append(names, r.Name)
				}
				sb.WriteString(" uses: " + strings.Join(names, ", "))
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
