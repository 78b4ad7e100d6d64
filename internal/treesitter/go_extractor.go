package treesitter

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// visitGo extracts functions, methods, named types, imports and calls from Go
func (x *extractor) visitGo(node *sitter.Node) bool {
	switch node.Kind() {
	case "function_declaration":
		name := x.field(node, "name")
		signature := "func " + name + x.field(node, "parameters")
		if res := x.field(node, "result"); res != "" {
			signature += " " + res
		}
		return x.element(KindFunction, name, signature, node)

	case "method_declaration":
		name := x.field(node, "name")
		recv := receiverType(x.field(node, "receiver"))
		signature := "func " + x.field(node, "receiver") + " " + name + x.field(node, "parameters")
		return x.element(KindMethod, qualify(recv, name), signature, node)

	case "type_spec":
		kind := KindType
		if t := node.ChildByFieldName("type"); t != nil {
			switch t.Kind() {
			case "struct_type":
				kind = KindClass
			case "interface_type":
				kind = KindInterface
			}
		}
		return x.element(kind, x.field(node, "name"), "", node)

	case "import_spec":
		x.importPath(x.field(node, "path"), node)

	case "call_expression":
		fn := node.ChildByFieldName("function")
		if fn == nil {
			return false
		}
		switch fn.Kind() {
		case "identifier":
			x.call(x.text(fn), node)
		case "selector_expression":
			x.call(x.field(fn, "field"), node)
		}
	}
	return false
}

// receiverType reduces "(s *Store)" or "(Store[T])" to "Store"
func receiverType(recv string) string {
	recv = strings.Trim(recv, "()")
	fields := strings.Fields(recv)
	if len(fields) == 0 {
		return ""
	}
	t := strings.TrimLeft(fields[len(fields)-1], "*")
	if i := strings.IndexByte(t, '['); i >= 0 {
		t = t[:i]
	}
	return t
}
