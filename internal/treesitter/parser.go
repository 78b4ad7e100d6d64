package treesitter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// ErrUnsupported is returned for files no grammar handles
var ErrUnsupported = errors.New("unsupported language")

// grammars maps a language name to its tree-sitter grammar
var grammars = map[string]func() unsafe.Pointer{
	"javascript": tree_sitter_javascript.Language,
	"jsx":        tree_sitter_javascript.Language,
	"typescript": tree_sitter_typescript.LanguageTypescript,
	"tsx":        tree_sitter_typescript.LanguageTSX,
	"python":     tree_sitter_python.Language,
	"go":         tree_sitter_go.Language,
}

// LanguageParser wraps tree-sitter parser with language-specific grammar
// IMPORTANT: Always call Close() to prevent memory leaks (CGO requirement)
type LanguageParser struct {
	parser   *sitter.Parser
	langName string
}

// NewLanguageParser creates a parser for the specified language
// Supported languages: javascript, jsx, typescript, tsx, python, go
func NewLanguageParser(lang string) (*LanguageParser, error) {
	grammar, ok := grammars[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, lang)
	}

	parser := sitter.NewParser()
	if parser == nil {
		return nil, fmt.Errorf("failed to create tree-sitter parser")
	}
	if err := parser.SetLanguage(sitter.NewLanguage(grammar())); err != nil {
		parser.Close()
		return nil, fmt.Errorf("failed to set language %s: %w", lang, err)
	}

	return &LanguageParser{
		parser:   parser,
		langName: lang,
	}, nil
}

// Close releases parser resources (REQUIRED - CGO memory management)
func (lp *LanguageParser) Close() {
	if lp.parser != nil {
		lp.parser.Close()
	}
}

// Parse parses source code and returns the syntax tree
// Caller must call tree.Close() when done
func (lp *LanguageParser) Parse(code []byte) (*sitter.Tree, error) {
	tree := lp.parser.Parse(code, nil)
	if tree == nil {
		return nil, fmt.Errorf("failed to parse code")
	}
	return tree, nil
}

// ParseFile reads and parses a file from disk
func ParseFile(filePath string) (*FileResult, error) {
	code, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(filePath, code)
}

// Parse extracts elements, imports and calls from code. filePath is only
// used for language detection and provenance.
func Parse(filePath string, code []byte) (*FileResult, error) {
	lang := DetectLanguage(filePath)
	if lang == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filePath)
	}

	lp, err := NewLanguageParser(lang)
	if err != nil {
		return nil, err
	}
	defer lp.Close()

	tree, err := lp.Parse(code)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}
	defer tree.Close()

	x := newExtractor(filePath, canonicalLanguage(lang), code)
	switch lang {
	case "javascript", "jsx":
		x.run(tree.RootNode(), x.visitJavaScript)
	case "typescript", "tsx":
		x.run(tree.RootNode(), x.visitTypeScript)
	case "python":
		x.run(tree.RootNode(), x.visitPython)
	case "go":
		x.run(tree.RootNode(), x.visitGo)
	}
	return x.result, nil
}

// canonicalLanguage folds dialects into the language recorded on elements
func canonicalLanguage(lang string) string {
	switch lang {
	case "jsx":
		return "javascript"
	case "tsx":
		return "typescript"
	}
	return lang
}

var extensions = map[string]string{
	".js":  "javascript",
	".jsx": "jsx",
	".mjs": "javascript",
	".cjs": "javascript",
	".ts":  "typescript",
	".tsx": "tsx",
	".mts": "typescript",
	".cts": "typescript",
	".py":  "python",
	".pyi": "python",
	".pyw": "python",
	".go":  "go",
}

// DetectLanguage returns language identifier from file extension
func DetectLanguage(filePath string) string {
	if strings.HasSuffix(filePath, ".d.ts") {
		return ""
	}
	return extensions[strings.ToLower(filepath.Ext(filePath))]
}
