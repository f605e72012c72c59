// Package git reads changed line ranges out of git diffs for impact
// analysis.
package git

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// ChangedFile is one touched file with the post-image line numbers of
// its changed hunks.
type ChangedFile struct {
	Path         string
	ChangedLines []int
}

// Chunk header: @@ -oldStart,oldLen +newStart,newLen @@ with both
// lengths optional.
var chunkHeader = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+(\d+)(?:,(\d+))? @@`)

// ChangedFiles diffs the working tree in dir against baseRef.
func ChangedFiles(dir, baseRef string) ([]ChangedFile, error) {
	cmd := exec.Command("git", "diff", "-U0", baseRef)
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git diff failed: %w", err)
	}
	return parseDiff(output), nil
}

func parseDiff(output []byte) []ChangedFile {
	var (
		changes []ChangedFile
		current *ChangedFile
	)

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "+++ ") {
			if current != nil {
				changes = append(changes, *current)
				current = nil
			}
			path := strings.TrimSpace(strings.TrimPrefix(line, "+++ "))
			if path == "/dev/null" {
				continue
			}
			current = &ChangedFile{Path: strings.TrimPrefix(path, "b/")}
			continue
		}

		if current == nil || !strings.HasPrefix(line, "@@") {
			continue
		}
		m := chunkHeader.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		start, _ := strconv.Atoi(m[1])
		if start < 1 {
			start = 1
		}
		count := 1
		if m[2] != "" {
			count, _ = strconv.Atoi(m[2])
		}
		if count == 0 {
			// Pure deletion: no lines exist here in the new file, but
			// the entity around the hunk still changed.
			current.ChangedLines = append(current.ChangedLines, start)
			continue
		}
		for i := 0; i < count; i++ {
			current.ChangedLines = append(current.ChangedLines, start+i)
		}
	}

	if current != nil {
		changes = append(changes, *current)
	}
	return changes
}
