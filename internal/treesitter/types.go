package treesitter

// Element kinds emitted by the extractors
const (
	KindFunction  = "function"
	KindMethod    = "method"
	KindClass     = "class"
	KindInterface = "interface"
	KindType      = "type"
)

// Element is a named code structure: function, method, class or type
type Element struct {
	Kind      string
	Name      string // Qualified for methods: "Class.method"
	FilePath  string
	StartLine int
	EndLine   int
	Language  string
	Signature string
}

// Import is one imported module path and the statement that imported it
type Import struct {
	Path      string
	Line      int
	Statement string
}

// Call is a call site. Caller indexes FileResult.Elements, or is -1 for
// calls made at module level.
type Call struct {
	Caller int
	Callee string
	Line   int
}

// FileResult contains everything extracted from one file
type FileResult struct {
	FilePath string
	Language string
	Elements []Element
	Imports  []Import
	Calls    []Call
}
