// Package crawler discovers C sources under a project root.
package crawler

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Crawler scans a directory tree for C sources.
type Crawler struct {
	ignored map[string]struct{}
}

// NewCrawler creates a crawler skipping the named directories in
// addition to .git.
func NewCrawler(ignoreDirs []string) *Crawler {
	ignored := map[string]struct{}{".git": {}}
	for _, d := range ignoreDirs {
		ignored[d] = struct{}{}
	}
	return &Crawler{ignored: ignored}
}

// FindSources walks root and returns every .c and .h file, sorted.
func (c *Crawler) FindSources(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// The root keeps its name out of the ignore check so a
			// project literally called "build" can still be scanned.
			if _, skip := c.ignored[d.Name()]; skip && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(d.Name())) {
		case ".c", ".h":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
