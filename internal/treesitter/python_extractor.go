package treesitter

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// visitPython extracts definitions, imports and calls from Python
func (x *extractor) visitPython(node *sitter.Node) bool {
	switch node.Kind() {
	case "function_definition":
		name := x.field(node, "name")
		signature := "def " + name + x.field(node, "parameters")
		if ret := x.field(node, "return_type"); ret != "" {
			signature += " -> " + ret
		}
		if owner := x.enclosingName(node, "class_definition"); owner != "" {
			return x.element(KindMethod, qualify(owner, name), signature, node)
		}
		return x.element(KindFunction, name, signature, node)

	case "class_definition":
		name := x.field(node, "name")
		signature := "class " + name + x.field(node, "superclasses")
		return x.element(KindClass, name, signature, node)

	case "import_statement":
		// import a.b, c as d
		for i := uint(0); i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			switch child.Kind() {
			case "dotted_name":
				x.importPath(x.text(child), node)
			case "aliased_import":
				x.importPath(x.field(child, "name"), node)
			}
		}

	case "import_from_statement":
		x.importPath(x.field(node, "module_name"), node)

	case "call":
		fn := node.ChildByFieldName("function")
		if fn == nil {
			return false
		}
		switch fn.Kind() {
		case "identifier":
			x.call(x.text(fn), node)
		case "attribute":
			x.call(x.field(fn, "attribute"), node)
		}
	}
	return false
}
