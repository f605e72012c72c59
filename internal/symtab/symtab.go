package symtab

import (
	"fmt"
	"sort"

	"github.com/rjpower/portmap/internal/extractor"
)

// Table is the symbol table: one entity per qualified key, built once
// from the full extraction output and immutable afterwards. It is passed
// by reference to later stages; nothing mutates it after Build returns.
type Table struct {
	entries map[extractor.Key]*extractor.Entity
	ordered []*extractor.Entity
}

// DuplicateDefinitionError reports two distinct definitions claiming the
// same qualified key. It is fatal: symbol-table correctness is a
// precondition for every later stage, so the pipeline stops rather than
// silently picking one definition.
type DuplicateDefinitionError struct {
	Key    extractor.Key
	First  string
	Second string
}

func (e *DuplicateDefinitionError) Error() string {
	return fmt.Sprintf("duplicate definition of %s: %s and %s", e.Key, e.First, e.Second)
}

// Build merges the raw entity list and constructs the table.
//
// Entities sharing a qualified key merge: a definition wins over a
// declaration, the longer text wins between two declarations, and
// references are unioned in first-seen order. Two distinct definitions
// of the same key abort with a *DuplicateDefinitionError.
func Build(entities []*extractor.Entity) (*Table, error) {
	t := &Table{entries: make(map[extractor.Key]*extractor.Entity, len(entities))}

	for _, e := range entities {
		key := e.Key()
		current, ok := t.entries[key]
		if !ok {
			merged := clone(e)
			t.entries[key] = merged
			t.ordered = append(t.ordered, merged)
			continue
		}
		if err := fold(current, e); err != nil {
			return nil, err
		}
	}

	sort.Slice(t.ordered, func(i, j int) bool {
		a, b := t.ordered[i], t.ordered[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Name < b.Name
	})
	return t, nil
}

// Lookup resolves a name within one namespace.
func (t *Table) Lookup(space extractor.Namespace, name string) (*extractor.Entity, bool) {
	e, ok := t.entries[extractor.Key{Space: space, Name: name}]
	return e, ok
}

// Len returns the number of distinct entities after merging.
func (t *Table) Len() int {
	return len(t.entries)
}

// Entities returns the merged entities ordered by file, line, then name.
func (t *Table) Entities() []*extractor.Entity {
	out := make([]*extractor.Entity, len(t.ordered))
	copy(out, t.ordered)
	return out
}

// clone copies an entity so merging never mutates extractor output.
func clone(e *extractor.Entity) *extractor.Entity {
	c := &extractor.Entity{
		Name:    e.Name,
		Kind:    e.Kind,
		File:    e.File,
		Line:    e.Line,
		RawText: e.RawText,
		HasBody: e.HasBody,
	}
	for _, r := range e.Refs {
		c.AddRef(r)
	}
	return c
}

// fold merges src into dst, which already owns the key.
func fold(dst, src *extractor.Entity) error {
	if dst.HasBody && src.HasBody && dst.RawText != src.RawText {
		return &DuplicateDefinitionError{
			Key:    dst.Key(),
			First:  dst.Location(),
			Second: src.Location(),
		}
	}

	richer := src.HasBody && !dst.HasBody
	if !richer && src.HasBody == dst.HasBody && len(src.RawText) > len(dst.RawText) {
		richer = true
	}
	if richer {
		dst.File = src.File
		dst.Line = src.Line
		dst.RawText = src.RawText
		dst.HasBody = dst.HasBody || src.HasBody
	}
	for _, r := range src.Refs {
		dst.AddRef(r)
	}
	return nil
}
