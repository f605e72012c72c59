package symtab

import (
	"errors"
	"testing"

	"github.com/rjpower/portmap/internal/extractor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entity(name string, kind extractor.Kind, file string, line int, raw string, hasBody bool, refs ...extractor.Ref) *extractor.Entity {
	e := &extractor.Entity{Name: name, Kind: kind, File: file, Line: line, RawText: raw, HasBody: hasBody}
	for _, r := range refs {
		e.AddRef(r)
	}
	return e
}

func TestBuild_LookupByNamespace(t *testing.T) {
	table, err := Build([]*extractor.Entity{
		entity("node", extractor.KindStruct, "node.h", 3, "struct node { struct node *next; }", true),
		entity("node", extractor.KindTypedef, "node.h", 7, "typedef struct node node", false),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len(), "tag and ordinary namespaces must not collide")

	tag, ok := table.Lookup(extractor.NamespaceTag, "node")
	require.True(t, ok)
	assert.Equal(t, extractor.KindStruct, tag.Kind)

	ordinary, ok := table.Lookup(extractor.NamespaceOrdinary, "node")
	require.True(t, ok)
	assert.Equal(t, extractor.KindTypedef, ordinary.Kind)

	_, ok = table.Lookup(extractor.NamespaceTag, "missing")
	assert.False(t, ok)
}

func TestBuild_MergesDeclarationAndDefinition(t *testing.T) {
	proto := entity("tune", extractor.KindFunction, "tune.h", 12, "int tune(struct knob *k);", false,
		extractor.Ref{Name: "knob", Space: extractor.NamespaceTag})
	def := entity("tune", extractor.KindFunction, "tune.c", 40, "int tune(struct knob *k) { return adjust(k); }", true,
		extractor.Ref{Name: "knob", Space: extractor.NamespaceTag},
		extractor.Ref{Name: "adjust", Space: extractor.NamespaceOrdinary})

	table, err := Build([]*extractor.Entity{proto, def})
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())

	merged, ok := table.Lookup(extractor.NamespaceOrdinary, "tune")
	require.True(t, ok)
	assert.True(t, merged.HasBody, "the definition should win the merge")
	assert.Equal(t, "tune.c", merged.File)
	assert.Equal(t, 40, merged.Line)
	assert.Equal(t, []extractor.Ref{
		{Name: "knob", Space: extractor.NamespaceTag},
		{Name: "adjust", Space: extractor.NamespaceOrdinary},
	}, merged.Refs, "references should be the union of both declarations")

	assert.False(t, proto.HasBody, "merging must not mutate extractor output")
}

func TestBuild_RicherDeclarationWins(t *testing.T) {
	short := entity("walk", extractor.KindFunction, "a.h", 1, "void walk();", false)
	long := entity("walk", extractor.KindFunction, "b.h", 9, "void walk(struct tree *t, int depth);", false,
		extractor.Ref{Name: "tree", Space: extractor.NamespaceTag})

	table, err := Build([]*extractor.Entity{short, long})
	require.NoError(t, err)

	merged, _ := table.Lookup(extractor.NamespaceOrdinary, "walk")
	assert.Equal(t, "b.h", merged.File, "the more complete prototype should win")
	assert.False(t, merged.HasBody)
}

func TestBuild_DuplicateDefinition(t *testing.T) {
	first := entity("clamp", extractor.KindFunction, "a.c", 5, "int clamp(int v) { return v; }", true)
	second := entity("clamp", extractor.KindFunction, "b.c", 11, "int clamp(int v) { return v < 0 ? 0 : v; }", true)

	_, err := Build([]*extractor.Entity{first, second})
	require.Error(t, err)

	var dup *DuplicateDefinitionError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, extractor.Key{Space: extractor.NamespaceOrdinary, Name: "clamp"}, dup.Key)
	assert.Equal(t, "a.c:5", dup.First)
	assert.Equal(t, "b.c:11", dup.Second)
	assert.Contains(t, dup.Error(), "clamp")
}

func TestBuild_IdenticalDefinitionsTolerated(t *testing.T) {
	a := entity("SIZE", extractor.KindConstant, "x.h", 2, "#define SIZE 16", true)
	b := entity("SIZE", extractor.KindConstant, "x.h", 2, "#define SIZE 16", true)

	table, err := Build([]*extractor.Entity{a, b})
	require.NoError(t, err, "a byte-identical re-parse is not a conflict")
	assert.Equal(t, 1, table.Len())
}

func TestTable_EntitiesOrdered(t *testing.T) {
	table, err := Build([]*extractor.Entity{
		entity("zeta", extractor.KindFunction, "b.c", 20, "void zeta(void) {}", true),
		entity("alpha", extractor.KindFunction, "b.c", 4, "void alpha(void) {}", true),
		entity("mid", extractor.KindFunction, "a.c", 30, "void mid(void) {}", true),
	})
	require.NoError(t, err)

	var names []string
	for _, e := range table.Entities() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"mid", "alpha", "zeta"}, names, "entities should be ordered by file, then line")
}
