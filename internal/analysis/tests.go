package analysis

import (
	"bytes"
	"context"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repograph/internal/entity"
	"github.com/rohankatakam/repograph/internal/models"
)

// Test frameworks
const (
	FrameworkJest     = "jest"
	FrameworkVitest   = "vitest"
	FrameworkMocha    = "mocha"
	FrameworkPytest   = "pytest"
	FrameworkUnittest = "unittest"
	FrameworkGo       = "go"
)

var (
	jsTestCase = regexp.MustCompile("(?m)\\b(?:it|test)(?:\\.only|\\.skip)?\\s*\\(\\s*['\"`]([^'\"`]+)['\"`]")
	pyTestCase = regexp.MustCompile(`(?m)^[ \t]*(?:async[ \t]+)?def[ \t]+(test_\w+)\s*\(`)
	goTestCase = regexp.MustCompile(`(?m)^func\s+(Test\w*|Benchmark\w+|Fuzz\w+)\s*\(\s*\w+\s+\*testing\.[TBF]\s*\)`)
)

// TestProducer indexes test cases and the framework that runs them
type TestProducer struct {
	logger      *logrus.Logger
	maxFileSize int64
}

// NewTestProducer creates the test indexer
func NewTestProducer(logger *logrus.Logger, maxFileSize int64) *TestProducer {
	return &TestProducer{logger: logger, maxFileSize: maxFileSize}
}

func (p *TestProducer) Name() string { return "tests" }

func (p *TestProducer) Produce(ctx context.Context, repo *models.Repository, out *entity.Set) error {
	w := NewWalker(repo.Path, p.maxFileSize)
	files, err := w.Files(ctx)
	if err != nil {
		return err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		language := testLanguage(f.Path)
		if language == "" {
			continue
		}
		content, err := w.Read(f)
		if err != nil {
			out.Skip(err.Error())
			continue
		}

		var re *regexp.Regexp
		switch language {
		case "python":
			re = pyTestCase
		case "go":
			re = goTestCase
		default:
			re = jsTestCase
		}
		framework := detectFramework(language, content)
		matches := re.FindAllSubmatchIndex(content, -1)
		lastLine := bytes.Count(content, []byte("\n")) + 1

		for i, m := range matches {
			line := lineOf(content, m[0])
			end := lastLine
			if i+1 < len(matches) {
				end = lineOf(content, matches[i+1][0]) - 1
			}
			out.Add(entity.Entity{
				Kind:       models.NodeTest,
				Name:       string(content[m[2]:m[3]]),
				FilePath:   f.Path,
				LineNumber: line,
				Properties: map[string]string{
					entity.PropTestFramework: framework,
					entity.PropLanguage:      language,
					entity.PropEndLine:       strconv.Itoa(end),
					entity.PropProducer:      p.Name(),
				},
			})
		}
	}
	return nil
}

// testLanguage returns the language of a test file, or "" for other files
func testLanguage(rel string) string {
	base := path.Base(rel)
	switch {
	case strings.HasSuffix(base, "_test.go"):
		return "go"
	case strings.HasSuffix(base, ".py") && (strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.py")):
		return "python"
	}

	ext := path.Ext(base)
	switch ext {
	case ".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs":
	default:
		return ""
	}
	stem := strings.TrimSuffix(base, ext)
	if strings.HasSuffix(stem, ".test") || strings.HasSuffix(stem, ".spec") || strings.Contains(rel, "__tests__/") {
		if strings.HasPrefix(ext, ".ts") {
			return "typescript"
		}
		return "javascript"
	}
	return ""
}

func detectFramework(language string, content []byte) string {
	text := string(content)
	switch language {
	case "go":
		return FrameworkGo
	case "python":
		if strings.Contains(text, "unittest.TestCase") || strings.Contains(text, "import unittest") {
			return FrameworkUnittest
		}
		return FrameworkPytest
	}
	switch {
	case strings.Contains(text, "'vitest'") || strings.Contains(text, `"vitest"`):
		return FrameworkVitest
	case strings.Contains(text, "'mocha'") || strings.Contains(text, "'chai'") || strings.Contains(text, `"chai"`):
		return FrameworkMocha
	}
	return FrameworkJest
}

// FileStem returns the file stem a test file covers:
// "src/auth.test.ts" -> "auth", "test_billing.py" -> "billing".
func FileStem(rel string) string {
	base := path.Base(rel)
	base = strings.TrimSuffix(base, path.Ext(base))
	base = strings.TrimSuffix(base, ".test")
	base = strings.TrimSuffix(base, ".spec")
	base = strings.TrimSuffix(base, "_test")
	return strings.TrimPrefix(base, "test_")
}

// IsTestFile reports whether rel is a test file the test producer indexes
func IsTestFile(rel string) bool {
	return testLanguage(rel) != ""
}
