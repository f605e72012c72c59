package extractor

import (
	"context"
	"fmt"
	"os"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

// Extractor turns C source files into entity lists. It is safe for
// concurrent use: each call builds its own parser.
type Extractor struct {
	primitives map[string]struct{}
	ignore     map[string]struct{}
}

// New builds an extractor. extraPrimitives extends the builtin type set
// (names that never become references); ignoreMacros extends the macro
// filter.
func New(extraPrimitives, ignoreMacros []string) *Extractor {
	e := &Extractor{
		primitives: make(map[string]struct{}, len(builtinTypes)+len(extraPrimitives)),
		ignore:     make(map[string]struct{}, len(ignoreMacros)),
	}
	for name := range builtinTypes {
		e.primitives[name] = struct{}{}
	}
	for _, name := range extraPrimitives {
		e.primitives[name] = struct{}{}
	}
	for _, name := range ignoreMacros {
		e.ignore[name] = struct{}{}
	}
	return e
}

// ExtractFile parses a single source file and extracts its entities. A
// file that cannot be read or parsed returns a *ParseError; the caller
// is expected to record it and continue with other files.
func (e *Extractor) ExtractFile(ctx context.Context, path string) ([]*Entity, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{File: path, Reason: fmt.Sprintf("read failed: %v", err)}
	}
	return e.ExtractSource(ctx, path, src)
}

// ExtractSource parses C source held in memory, attributing entities to
// path.
func (e *Extractor) ExtractSource(ctx context.Context, path string, src []byte) ([]*Entity, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(c.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	root := tree.RootNode()
	if root.HasError() {
		return nil, &ParseError{File: path, Reason: syntaxErrorReason(root)}
	}

	w := &walker{src: src, file: path, primitives: e.primitives, ignore: e.ignore}
	w.translationUnit(root)
	return w.entities, nil
}

func syntaxErrorReason(root *sitter.Node) string {
	if errNode := firstErrorNode(root); errNode != nil {
		return fmt.Sprintf("syntax error at line %d", errNode.StartPoint().Row+1)
	}
	return "syntax error"
}

func firstErrorNode(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstErrorNode(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}
