package treesitter

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// visitTypeScript adds the TypeScript-only declarations to the JavaScript rules
func (x *extractor) visitTypeScript(node *sitter.Node) bool {
	switch node.Kind() {
	case "function_declaration":
		name := x.field(node, "name")
		signature := "function " + name + x.field(node, "parameters")
		if ret := x.field(node, "return_type"); ret != "" {
			signature += ret
		}
		return x.element(KindFunction, name, signature, node)

	case "abstract_class_declaration":
		return x.element(KindClass, x.field(node, "name"), "", node)

	case "method_signature", "abstract_method_signature":
		name := x.field(node, "name")
		owner := x.enclosingName(node, "interface_declaration", "class_declaration", "abstract_class_declaration")
		return x.element(KindMethod, qualify(owner, name), name+x.field(node, "parameters"), node)

	case "method_definition":
		name := x.field(node, "name")
		owner := x.enclosingName(node, "class_declaration", "abstract_class_declaration", "class")
		return x.element(KindMethod, qualify(owner, name), name+x.field(node, "parameters"), node)

	case "interface_declaration":
		return x.element(KindInterface, x.field(node, "name"), "", node)

	case "type_alias_declaration":
		return x.element(KindType, x.field(node, "name"), "", node)
	}
	return x.visitJavaScript(node)
}
