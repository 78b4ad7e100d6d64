package treesitter

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// visitJavaScript handles the node kinds shared by JavaScript and TypeScript
func (x *extractor) visitJavaScript(node *sitter.Node) bool {
	switch node.Kind() {
	case "function_declaration", "generator_function_declaration":
		name := x.field(node, "name")
		return x.element(KindFunction, name, "function "+name+x.field(node, "parameters"), node)

	case "arrow_function", "function_expression":
		// Only named bindings become elements; inline callbacks stay part
		// of the enclosing element.
		name := x.boundName(node)
		return x.element(KindFunction, name, "const "+name+" = "+x.field(node, "parameters")+" =>", node)

	case "class_declaration", "class":
		return x.element(KindClass, x.field(node, "name"), "", node)

	case "method_definition":
		name := x.field(node, "name")
		owner := x.enclosingName(node, "class_declaration", "class")
		return x.element(KindMethod, qualify(owner, name), name+x.field(node, "parameters"), node)

	case "import_statement":
		x.importPath(x.field(node, "source"), node)

	case "call_expression":
		fn := node.ChildByFieldName("function")
		callee := x.calleeName(fn)
		if callee == "require" || callee == "import" {
			if args := node.ChildByFieldName("arguments"); args != nil && args.NamedChildCount() > 0 {
				if arg := args.NamedChild(0); arg != nil && arg.Kind() == "string" {
					x.importPath(x.text(arg), node)
				}
			}
			return false
		}
		x.call(callee, node)
	}
	return false
}

// boundName names an anonymous function from the variable or property it is
// assigned to.
func (x *extractor) boundName(node *sitter.Node) string {
	parent := node.Parent()
	if parent == nil {
		return ""
	}
	switch parent.Kind() {
	case "variable_declarator":
		return x.field(parent, "name")
	case "assignment_expression":
		return x.field(parent, "left")
	case "pair":
		return x.field(parent, "key")
	}
	return ""
}

// calleeName reduces a call target to the name being invoked:
// foo() -> foo, client.auth.signIn() -> signIn
func (x *extractor) calleeName(fn *sitter.Node) string {
	if fn == nil {
		return ""
	}
	switch fn.Kind() {
	case "identifier", "import":
		return x.text(fn)
	case "member_expression":
		return x.field(fn, "property")
	}
	return ""
}
