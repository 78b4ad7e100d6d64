package treesitter

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// extractor walks one syntax tree and accumulates a FileResult. scopes holds
// the indexes of the elements enclosing the current node so call sites can
// be attributed to their caller.
type extractor struct {
	code   []byte
	result *FileResult
	scopes []int
}

// visitFunc inspects a node and reports whether it opened a new scope
type visitFunc func(node *sitter.Node) (opened bool)

func newExtractor(filePath, lang string, code []byte) *extractor {
	return &extractor{
		code: code,
		result: &FileResult{
			FilePath: filePath,
			Language: lang,
		},
	}
}

func (x *extractor) run(root *sitter.Node, visit visitFunc) {
	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}
		opened := visit(node)
		for i := uint(0); i < node.ChildCount(); i++ {
			walk(node.Child(i))
		}
		if opened {
			x.scopes = x.scopes[:len(x.scopes)-1]
		}
	}
	walk(root)
}

// element records a code element and opens its scope
func (x *extractor) element(kind, name, signature string, node *sitter.Node) bool {
	if name == "" {
		return false
	}
	x.result.Elements = append(x.result.Elements, Element{
		Kind:      kind,
		Name:      name,
		FilePath:  x.result.FilePath,
		StartLine: startLine(node),
		EndLine:   int(node.EndPosition().Row) + 1,
		Language:  x.result.Language,
		Signature: signature,
	})
	x.scopes = append(x.scopes, len(x.result.Elements)-1)
	return true
}

// importPath records an imported module
func (x *extractor) importPath(path string, node *sitter.Node) {
	path = strings.Trim(path, "\"'`")
	if path == "" {
		return
	}
	x.result.Imports = append(x.result.Imports, Import{
		Path:      path,
		Line:      startLine(node),
		Statement: strings.Join(strings.Fields(x.text(node)), " "),
	})
}

// call records a call site under the innermost enclosing element
func (x *extractor) call(callee string, node *sitter.Node) {
	if callee == "" {
		return
	}
	caller := -1
	if n := len(x.scopes); n > 0 {
		caller = x.scopes[n-1]
	}
	x.result.Calls = append(x.result.Calls, Call{
		Caller: caller,
		Callee: callee,
		Line:   startLine(node),
	})
}

// text extracts text from a node using byte offsets
func (x *extractor) text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	start := node.StartByte()
	end := node.EndByte()
	if int(end) > len(x.code) {
		end = uint(len(x.code))
	}
	if start > end {
		return ""
	}
	return string(x.code[start:end])
}

// field returns the text of a named child field
func (x *extractor) field(node *sitter.Node, name string) string {
	return x.text(node.ChildByFieldName(name))
}

func startLine(node *sitter.Node) int {
	return int(node.StartPosition().Row) + 1
}

// enclosingName walks up to the nearest ancestor of kind and returns its name
func (x *extractor) enclosingName(node *sitter.Node, kinds ...string) string {
	for current := node.Parent(); current != nil; current = current.Parent() {
		for _, k := range kinds {
			if current.Kind() == k {
				return x.field(current, "name")
			}
		}
	}
	return ""
}

func qualify(owner, name string) string {
	if owner == "" {
		return name
	}
	return owner + "." + name
}
