package chunker

import (
	"strings"
)

// symbolInfo is an extracted symbol prior to chunk assembly.
type symbolInfo struct {
	node         *Node
	kind         Kind
	name         string
	parentSymbol string
	signature    string
	docstring    string
	decorators   []string
	parameters   []string
}

// extractor pulls symbols out of a parsed tree using the language spec.
type extractor struct {
	spec   *LanguageSpec
	source []byte
}

// topLevel returns the file's symbols in source order: top-level
// functions, classes with their methods, and nested classes recursed.
func (e *extractor) topLevel(tree *Tree) []*symbolInfo {
	var symbols []*symbolInfo
	for _, child := range tree.Root.Children {
		symbols = append(symbols, e.fromNode(child, "")...)
	}
	return symbols
}

// fromNode extracts symbols from one top-level (or class-body) node.
// parent carries the qualified enclosing class name, empty at module
// level.
func (e *extractor) fromNode(n *Node, parent string) []*symbolInfo {
	node, decorators := e.unwrapDecorated(n)

	switch {
	case e.spec.isFunction(node.Type):
		sym := e.symbol(node, KindFunction, parent)
		if sym == nil {
			return nil
		}
		sym.decorators = decorators
		if parent != "" {
			sym.kind = KindMethod
		}
		return []*symbolInfo{sym}

	case e.spec.isMethod(node.Type):
		sym := e.symbol(node, KindMethod, parent)
		if sym == nil {
			return nil
		}
		if recv := e.receiverType(node); recv != "" {
			sym.parentSymbol = recv
		}
		return []*symbolInfo{sym}

	case e.spec.isClass(node.Type):
		return e.classSymbols(node, parent, decorators)
	}

	return nil
}

// classSymbols emits the class-header symbol followed by its methods,
// recursing into nested classes.
func (e *extractor) classSymbols(node *Node, parent string, decorators []string) []*symbolInfo {
	header := e.symbol(node, KindClassHeader, parent)
	if header == nil {
		return nil
	}
	header.decorators = decorators

	symbols := []*symbolInfo{header}
	qualified := header.name
	if parent != "" {
		qualified = parent + "." + header.name
	}

	body := node
	if e.spec.BodyType != "" {
		if b := node.ChildByType(e.spec.BodyType); b != nil {
			body = b
		}
	}

	for _, child := range body.Children {
		inner, innerDecorators := e.unwrapDecorated(child)
		switch {
		case e.spec.isFunction(inner.Type):
			if sym := e.symbol(inner, KindMethod, qualified); sym != nil {
				sym.decorators = innerDecorators
				symbols = append(symbols, sym)
			}
		case e.spec.isClass(inner.Type):
			symbols = append(symbols, e.classSymbols(inner, qualified, innerDecorators)...)
		}
	}

	return symbols
}

// symbol builds a symbolInfo for a single definition node.
func (e *extractor) symbol(node *Node, kind Kind, parent string) *symbolInfo {
	name := e.name(node)
	if name == "" {
		return nil
	}

	return &symbolInfo{
		node:         node,
		kind:         kind,
		name:         name,
		parentSymbol: parent,
		signature:    e.signature(node),
		docstring:    e.docstring(node),
		parameters:   e.parameters(node),
	}
}

// unwrapDecorated strips a decorator wrapper (Python) and collects the
// decorator texts.
func (e *extractor) unwrapDecorated(n *Node) (*Node, []string) {
	if e.spec.DecoratorType == "" || n.Type != e.spec.DecoratorType {
		return n, nil
	}

	var decorators []string
	inner := n
	for _, child := range n.Children {
		switch {
		case child.Type == "decorator":
			decorators = append(decorators, strings.TrimSpace(child.Content(e.source)))
		case e.spec.isFunction(child.Type) || e.spec.isClass(child.Type):
			inner = child
		}
	}
	return inner, decorators
}

// name finds the identifier of a definition node. Go type declarations
// nest the identifier inside type_spec.
func (e *extractor) name(n *Node) string {
	for _, child := range n.Children {
		if e.spec.isName(child.Type) {
			return child.Content(e.source)
		}
		if child.Type == "type_spec" {
			for _, grandchild := range child.Children {
				if e.spec.isName(grandchild.Type) {
					return grandchild.Content(e.source)
				}
			}
		}
	}
	return ""
}

// receiverType extracts the receiver type name of a Go method, with
// pointer stars stripped.
func (e *extractor) receiverType(n *Node) string {
	recv := n.ChildByType("parameter_list")
	if recv == nil {
		return ""
	}
	decl := recv.ChildByType("parameter_declaration")
	if decl == nil {
		return ""
	}
	for _, child := range decl.Children {
		switch child.Type {
		case "type_identifier":
			return child.Content(e.source)
		case "pointer_type":
			if t := child.ChildByType("type_identifier"); t != nil {
				return t.Content(e.source)
			}
		}
	}
	return ""
}

// signature returns the declaration line up to the body opener.
func (e *extractor) signature(n *Node) string {
	content := n.Content(e.source)
	first, _, _ := strings.Cut(content, "\n")
	first = strings.TrimSpace(first)

	if idx := strings.Index(first, "{"); idx != -1 {
		return strings.TrimSpace(first[:idx])
	}
	return first
}

// docstring extracts a Python-style docstring: the first string
// expression inside the definition body. Other languages return "".
func (e *extractor) docstring(n *Node) string {
	if e.spec.BodyType == "" {
		return ""
	}
	body := n.ChildByType(e.spec.BodyType)
	if body == nil || len(body.Children) == 0 {
		return ""
	}

	first := body.Children[0]
	if first.Type != "expression_statement" {
		return ""
	}
	str := first.ChildByType("string")
	if str == nil {
		return ""
	}
	return cleanDocstring(str.Content(e.source))
}

// parameters splits the parameter list into trimmed entries.
func (e *extractor) parameters(n *Node) []string {
	for _, child := range n.Children {
		if !e.spec.isParameters(child.Type) {
			continue
		}
		text := strings.TrimSpace(child.Content(e.source))
		text = strings.TrimPrefix(text, "(")
		text = strings.TrimSuffix(text, ")")
		if text == "" {
			return nil
		}

		parts := splitParameters(text)
		params := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" && p != "self" && p != "cls" {
				params = append(params, p)
			}
		}
		return params
	}
	return nil
}

// splitParameters splits on commas outside brackets so defaults like
// f(x, pair=(1, 2)) survive.
func splitParameters(text string) []string {
	var parts []string
	depth := 0
	last := 0
	for i, r := range text {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, text[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, text[last:])
	return parts
}

// cleanDocstring strips quote fences and surrounding whitespace.
func cleanDocstring(s string) string {
	s = strings.TrimSpace(s)
	for _, fence := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, fence) && strings.HasSuffix(s, fence) && len(s) >= 2*len(fence) {
			return strings.TrimSpace(s[len(fence) : len(s)-len(fence)])
		}
	}
	return s
}
