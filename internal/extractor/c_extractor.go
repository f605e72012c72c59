package extractor

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// walker carries per-file state through one translation unit.
type walker struct {
	src        []byte
	file       string
	primitives map[string]struct{}
	ignore     map[string]struct{}
	entities   []*Entity
}

func (w *walker) translationUnit(root *sitter.Node) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		w.topLevel(root.NamedChild(i))
	}
}

// topLevel dispatches one top-level item. Preprocessor conditionals and
// extern "C" blocks are transparent: their children are treated as
// top-level items themselves.
func (w *walker) topLevel(n *sitter.Node) {
	switch n.Type() {
	case "preproc_ifdef", "preproc_if", "preproc_else", "preproc_elif":
		w.preprocBlock(n)
	case "linkage_specification":
		if body := n.ChildByFieldName("body"); body != nil {
			for i := 0; i < int(body.NamedChildCount()); i++ {
				w.topLevel(body.NamedChild(i))
			}
		}
	case "function_definition":
		w.functionDefinition(n)
	case "declaration":
		w.declaration(n)
	case "struct_specifier":
		w.tagSpecifier(n, KindStruct)
	case "union_specifier":
		w.tagSpecifier(n, KindUnion)
	case "enum_specifier":
		w.enumSpecifier(n)
	case "type_definition":
		w.typeDefinition(n)
	case "preproc_def":
		w.objectMacro(n)
	case "preproc_function_def":
		w.functionMacro(n)
	}
}

func (w *walker) preprocBlock(n *sitter.Node) {
	cond := n.ChildByFieldName("name")
	if cond == nil {
		cond = n.ChildByFieldName("condition")
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if cond != nil && child.StartByte() == cond.StartByte() {
			continue
		}
		w.topLevel(child)
	}
}

func (w *walker) emit(e *Entity) {
	w.entities = append(w.entities, e)
}

func (w *walker) newEntity(kind Kind, name string, n *sitter.Node, hasBody bool) *Entity {
	return &Entity{
		Name:    name,
		Kind:    kind,
		File:    w.file,
		Line:    int(n.StartPoint().Row) + 1,
		RawText: strings.TrimRight(n.Content(w.src), "\n"),
		HasBody: hasBody,
	}
}

// functionDefinition handles a full function with a body. References come
// from the return type, the parameter types, and the body (type positions
// and direct callees).
func (w *walker) functionDefinition(n *sitter.Node) {
	fd := findFunctionDeclarator(n.ChildByFieldName("declarator"))
	if fd == nil {
		return
	}
	nameNode := declaredIdentifier(fd)
	if nameNode == nil {
		return
	}
	e := w.newEntity(KindFunction, nameNode.Content(w.src), n, true)
	s := &refScanner{w: w, e: e}
	s.scan(n, false)
	w.emit(e)
}

// declaration handles top-level declarations: function prototypes,
// constants with initializers, and tag definitions that piggyback on a
// variable declaration (`struct Foo {...} g;`). Plain variables are not
// entities and are skipped.
func (w *walker) declaration(n *sitter.Node) {
	typeNode := n.ChildByFieldName("type")
	if typeNode != nil {
		switch typeNode.Type() {
		case "struct_specifier":
			w.tagSpecifier(typeNode, KindStruct)
		case "union_specifier":
			w.tagSpecifier(typeNode, KindUnion)
		case "enum_specifier":
			w.enumSpecifier(typeNode)
		}
	}

	if fd := prototypeDeclarator(n); fd != nil {
		nameNode := declaredIdentifier(fd)
		if nameNode == nil {
			return
		}
		e := w.newEntity(KindFunction, nameNode.Content(w.src), n, false)
		s := &refScanner{w: w, e: e}
		s.scan(n, false)
		w.emit(e)
		return
	}

	if !hasConstQualifier(n, w.src) {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() != "init_declarator" {
			continue
		}
		nameNode := plainDeclaratorName(child.ChildByFieldName("declarator"))
		if nameNode == nil {
			continue
		}
		e := w.newEntity(KindConstant, nameNode.Content(w.src), n, true)
		s := &refScanner{w: w, e: e}
		if typeNode != nil {
			s.scan(typeNode, false)
		}
		if d := child.ChildByFieldName("declarator"); d != nil {
			s.scan(d, false)
		}
		if v := child.ChildByFieldName("value"); v != nil {
			s.scan(v, true)
		}
		w.emit(e)
	}
}

// tagSpecifier handles a struct or union definition. Forward declarations
// and anonymous definitions without an enclosing typedef are not emitted;
// the latter fold into whatever entity encloses them.
func (w *walker) tagSpecifier(n *sitter.Node, kind Kind) {
	nameNode := n.ChildByFieldName("name")
	body := n.ChildByFieldName("body")
	if nameNode == nil || body == nil {
		return
	}
	e := w.newEntity(kind, nameNode.Content(w.src), n, true)
	s := &refScanner{w: w, e: e}
	s.scan(body, false)
	w.emit(e)
}

// enumSpecifier handles a top-level enum. A named enum is one entity with
// its members folded in. An anonymous enum has no parent to fold into, so
// each enumerator becomes a constant entity in its own right.
func (w *walker) enumSpecifier(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}

	if nameNode != nil {
		e := w.newEntity(KindEnum, nameNode.Content(w.src), n, true)
		s := &refScanner{w: w, e: e, exclude: enumeratorNames(body, w.src)}
		s.scan(body, false)
		w.emit(e)
		return
	}

	for i := 0; i < int(body.NamedChildCount()); i++ {
		item := body.NamedChild(i)
		if item.Type() != "enumerator" {
			continue
		}
		enumName := item.ChildByFieldName("name")
		if enumName == nil {
			continue
		}
		e := w.newEntity(KindConstant, enumName.Content(w.src), item, true)
		if v := item.ChildByFieldName("value"); v != nil {
			s := &refScanner{w: w, e: e}
			s.scan(v, true)
		}
		w.emit(e)
	}
}

// typeDefinition handles typedefs. `typedef struct X {...} Y` emits both
// the tag entity X and the typedef entity Y referencing it; an anonymous
// underlying struct folds its field references into the typedef instead.
func (w *walker) typeDefinition(n *sitter.Node) {
	typeNode := n.ChildByFieldName("type")
	if typeNode == nil {
		return
	}

	underlyingName := (*sitter.Node)(nil)
	underlyingBody := (*sitter.Node)(nil)
	underlyingKind := Kind("")
	switch typeNode.Type() {
	case "struct_specifier":
		underlyingKind = KindStruct
	case "union_specifier":
		underlyingKind = KindUnion
	case "enum_specifier":
		underlyingKind = KindEnum
	}
	if underlyingKind != "" {
		underlyingName = typeNode.ChildByFieldName("name")
		underlyingBody = typeNode.ChildByFieldName("body")
		if underlyingName != nil && underlyingBody != nil {
			if underlyingKind == KindEnum {
				w.enumSpecifier(typeNode)
			} else {
				w.tagSpecifier(typeNode, underlyingKind)
			}
		}
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		decl := n.NamedChild(i)
		if decl.StartByte() == typeNode.StartByte() || !isDeclaratorNode(decl) {
			continue
		}
		nameNode := firstTypeIdentifier(decl)
		if nameNode == nil {
			continue
		}
		e := w.newEntity(KindTypedef, nameNode.Content(w.src), n, underlyingBody != nil)

		s := &refScanner{w: w, e: e, skipByte: nameNode.StartByte(), hasSkip: true}
		switch {
		case underlyingBody != nil && underlyingName == nil:
			// Anonymous underlying aggregate: its references belong
			// to the typedef itself.
			if underlyingKind == KindEnum {
				s.exclude = enumeratorNames(underlyingBody, w.src)
			}
			s.scan(underlyingBody, false)
		case underlyingName != nil:
			// Named tag: the typedef depends on the tag alone; field
			// references stay with the tag entity.
			s.add(underlyingName.Content(w.src), NamespaceTag)
		default:
			s.scan(typeNode, false)
		}
		s.scan(decl, false)
		w.emit(e)
	}
}

// objectMacro handles `#define NAME value`. Include guards, platform
// probes, reserved names, and empty defines are filtered out; what
// survives is a constant whose value text is scanned for identifier
// references.
func (w *walker) objectMacro(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	valueNode := n.ChildByFieldName("value")
	if nameNode == nil || valueNode == nil {
		return
	}
	name := nameNode.Content(w.src)
	value := strings.TrimSpace(valueNode.Content(w.src))
	if value == "" || skipMacro(name) || w.ignored(name) {
		return
	}
	e := w.newEntity(KindConstant, name, n, true)
	w.scanRawText(e, value, map[string]struct{}{name: {}})
	w.emit(e)
}

// functionMacro handles `#define NAME(args) body`. Function-like macros
// are callees from the consumer's point of view, so they are classified
// as functions.
func (w *walker) functionMacro(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nameNode.Content(w.src)
	if skipMacro(name) || w.ignored(name) {
		return
	}
	e := w.newEntity(KindFunction, name, n, true)

	exclude := map[string]struct{}{name: {}}
	if params := n.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			if p.Type() == "identifier" {
				exclude[p.Content(w.src)] = struct{}{}
			}
		}
	}
	if valueNode := n.ChildByFieldName("value"); valueNode != nil {
		w.scanRawText(e, valueNode.Content(w.src), exclude)
	}
	w.emit(e)
}

// scanRawText extracts identifier references from unparsed preprocessor
// replacement text.
func (w *walker) scanRawText(e *Entity, text string, exclude map[string]struct{}) {
	for _, tok := range identPattern.FindAllString(text, -1) {
		if isKeyword(tok) || w.isPrimitive(tok) {
			continue
		}
		if _, ok := exclude[tok]; ok {
			continue
		}
		e.AddRef(Ref{Name: tok, Space: NamespaceOrdinary})
	}
}

func (w *walker) isPrimitive(name string) bool {
	_, ok := w.primitives[name]
	return ok
}

func (w *walker) ignored(name string) bool {
	_, ok := w.ignore[name]
	return ok
}

// refScanner walks an entity's subtree collecting references. Type
// positions and callee positions are always captured; bare identifiers in
// value positions only when valueMode is set (array sizes, bitfield
// widths, enumerator values, constant initializers).
type refScanner struct {
	w       *walker
	e       *Entity
	exclude map[string]struct{}
	// skipByte marks the declared-name node of a typedef so the new name
	// is not captured as a reference to itself.
	skipByte uint32
	hasSkip  bool
}

func (s *refScanner) add(name string, space Namespace) {
	if name == "" {
		return
	}
	if space == NamespaceOrdinary {
		if s.w.isPrimitive(name) {
			return
		}
		if _, ok := s.exclude[name]; ok {
			return
		}
	}
	s.e.AddRef(Ref{Name: name, Space: space})
}

func (s *refScanner) scan(n *sitter.Node, valueMode bool) {
	switch n.Type() {
	case "type_identifier":
		if s.hasSkip && n.StartByte() == s.skipByte {
			return
		}
		s.add(n.Content(s.w.src), NamespaceOrdinary)

	case "identifier":
		if valueMode {
			s.add(n.Content(s.w.src), NamespaceOrdinary)
		}

	case "struct_specifier", "union_specifier", "enum_specifier":
		name := n.ChildByFieldName("name")
		body := n.ChildByFieldName("body")
		if body != nil {
			s.scan(body, valueMode)
			return
		}
		if name != nil {
			s.add(name.Content(s.w.src), NamespaceTag)
		}

	case "enumerator":
		if v := n.ChildByFieldName("value"); v != nil {
			s.scan(v, true)
		}

	case "call_expression":
		if fn := n.ChildByFieldName("function"); fn != nil {
			if fn.Type() == "identifier" {
				s.add(fn.Content(s.w.src), NamespaceOrdinary)
			} else {
				s.scan(fn, valueMode)
			}
		}
		if args := n.ChildByFieldName("arguments"); args != nil {
			s.scan(args, valueMode)
		}

	case "array_declarator":
		if d := n.ChildByFieldName("declarator"); d != nil {
			s.scan(d, valueMode)
		}
		if size := n.ChildByFieldName("size"); size != nil {
			s.scan(size, true)
		}

	case "bitfield_clause":
		s.scanChildren(n, true)

	case "field_expression":
		// x.y / x->y: the member name is not a reference.
		if arg := n.ChildByFieldName("argument"); arg != nil {
			s.scan(arg, valueMode)
		}

	case "comment", "string_literal", "char_literal", "number_literal",
		"preproc_include", "attribute_specifier", "ms_declspec_modifier":
		return

	default:
		s.scanChildren(n, valueMode)
	}
}

func (s *refScanner) scanChildren(n *sitter.Node, valueMode bool) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		s.scan(n.NamedChild(i), valueMode)
	}
}

// findFunctionDeclarator drills through pointer wrappers to the
// function_declarator carrying the name and parameter list, or nil when
// the declarator does not declare a function.
func findFunctionDeclarator(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "function_declarator":
			return n
		case "pointer_declarator":
			n = n.ChildByFieldName("declarator")
		default:
			return nil
		}
	}
	return nil
}

// prototypeDeclarator returns the function_declarator of a prototype
// declaration, or nil. A parenthesized inner declarator means a function
// pointer variable, not a prototype.
func prototypeDeclarator(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		fd := findFunctionDeclarator(n.NamedChild(i))
		if fd == nil {
			continue
		}
		inner := fd.ChildByFieldName("declarator")
		if inner != nil && inner.Type() == "parenthesized_declarator" {
			return nil
		}
		return fd
	}
	return nil
}

// declaredIdentifier digs the declared name node out of a
// function_declarator.
func declaredIdentifier(fd *sitter.Node) *sitter.Node {
	n := fd.ChildByFieldName("declarator")
	for n != nil {
		switch n.Type() {
		case "identifier":
			return n
		case "pointer_declarator", "parenthesized_declarator":
			n = n.ChildByFieldName("declarator")
		default:
			return nil
		}
	}
	return nil
}

// plainDeclaratorName drills through pointer and array wrappers to the
// identifier a variable declarator names.
func plainDeclaratorName(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "identifier":
			return n
		case "pointer_declarator", "array_declarator", "parenthesized_declarator":
			n = n.ChildByFieldName("declarator")
		default:
			return nil
		}
	}
	return nil
}

// firstTypeIdentifier finds the declared name inside a typedef
// declarator: the first type_identifier outside any parameter list.
func firstTypeIdentifier(n *sitter.Node) *sitter.Node {
	if n.Type() == "type_identifier" {
		return n
	}
	if n.Type() == "parameter_list" {
		return nil
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if found := firstTypeIdentifier(n.NamedChild(i)); found != nil {
			return found
		}
	}
	return nil
}

func isDeclaratorNode(n *sitter.Node) bool {
	switch n.Type() {
	case "type_identifier", "pointer_declarator", "function_declarator",
		"array_declarator", "parenthesized_declarator":
		return true
	}
	return false
}

// hasConstQualifier reports whether a declaration carries a top-level
// const qualifier.
func hasConstQualifier(n *sitter.Node, src []byte) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "type_qualifier" && child.Content(src) == "const" {
			return true
		}
	}
	return false
}

// enumeratorNames collects the member names of an enumerator list so a
// folded enum does not record references to its own members.
func enumeratorNames(body *sitter.Node, src []byte) map[string]struct{} {
	names := make(map[string]struct{})
	for i := 0; i < int(body.NamedChildCount()); i++ {
		item := body.NamedChild(i)
		if item.Type() != "enumerator" {
			continue
		}
		if name := item.ChildByFieldName("name"); name != nil {
			names[name.Content(src)] = struct{}{}
		}
	}
	return names
}
