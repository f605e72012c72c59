package extractor

import "fmt"

// Namespace identifies which C identifier namespace a name lives in.
// Struct, union and enum tags share one namespace; typedefs, functions
// and constants share the ordinary identifier namespace.
type Namespace string

const (
	NamespaceTag      Namespace = "tag"
	NamespaceOrdinary Namespace = "ordinary"
)

// Kind classifies an extracted entity. The set is closed: every value a
// pipeline stage can observe is one of the constants below.
type Kind string

const (
	KindStruct   Kind = "struct"
	KindUnion    Kind = "union"
	KindEnum     Kind = "enum"
	KindTypedef  Kind = "typedef"
	KindFunction Kind = "function"
	KindConstant Kind = "constant"
)

// Namespace maps a kind to the C namespace its name is declared in.
func (k Kind) Namespace() Namespace {
	switch k {
	case KindStruct, KindUnion, KindEnum:
		return NamespaceTag
	default:
		return NamespaceOrdinary
	}
}

// Valid reports whether k is one of the closed set of kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindStruct, KindUnion, KindEnum, KindTypedef, KindFunction, KindConstant:
		return true
	}
	return false
}

// Key is the qualified symbol-table key: C allows `struct Node` and a
// typedef `Node` to coexist, so a bare name is not unique.
type Key struct {
	Space Namespace `json:"namespace"`
	Name  string    `json:"name"`
}

func (k Key) String() string {
	return string(k.Space) + ":" + k.Name
}

// Ref is a single referenced name together with the namespace implied by
// the syntactic position it was found in. A name after the `struct`
// keyword can only mean a tag; a name in a type or callee position can
// only mean an ordinary identifier. Fixing the namespace at capture time
// keeps the resolver from guessing.
type Ref struct {
	Name  string    `json:"name"`
	Space Namespace `json:"namespace"`
}

// Entity is one named declaration found in the analyzed sources. Entities
// are created by the extractor and treated as immutable once the symbol
// table has merged duplicates.
type Entity struct {
	Name    string `json:"name"`
	Kind    Kind   `json:"kind"`
	File    string `json:"file"`
	Line    int    `json:"line"`
	RawText string `json:"raw_text"`

	// HasBody distinguishes a definition from a forward/prototype
	// declaration; it decides which side wins a merge.
	HasBody bool `json:"has_body"`

	// Refs holds every captured reference in first-seen order, already
	// deduplicated. Builtin type names never appear here.
	Refs []Ref `json:"refs,omitempty"`

	seen map[Ref]struct{}
}

// Key returns the entity's qualified symbol-table key.
func (e *Entity) Key() Key {
	return Key{Space: e.Kind.Namespace(), Name: e.Name}
}

// Location renders the declaration site as file:line.
func (e *Entity) Location() string {
	return fmt.Sprintf("%s:%d", e.File, e.Line)
}

// AddRef appends a reference unless it was already captured, preserving
// first-seen order.
func (e *Entity) AddRef(r Ref) {
	if e.seen == nil {
		e.seen = make(map[Ref]struct{})
		for _, old := range e.Refs {
			e.seen[old] = struct{}{}
		}
	}
	if _, ok := e.seen[r]; ok {
		return
	}
	e.seen[r] = struct{}{}
	e.Refs = append(e.Refs, r)
}

// ParseError records a file that could not be analyzed. It is recoverable:
// the pipeline accumulates parse errors and keeps going with the files
// that did parse.
type ParseError struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Reason)
}
