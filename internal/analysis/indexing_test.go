package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/repograph/internal/entity"
	"github.com/rohankatakam/repograph/internal/logging"
	"github.com/rohankatakam/repograph/internal/models"
)

func TestToolProducer(t *testing.T) {
	repo := writeRepo(t, map[string]string{
		"package.json":   `{"scripts": {"lint": "eslint .", "test": "jest"}}`,
		".eslintrc.json": `{"root": true}`,
		"tsconfig.json":  `{}`,
		"Makefile":       "build:\n\tgo build ./...\n",
		"Dockerfile":     "FROM node:20\n",
		".github/workflows/ci.yml": `on: push
jobs:
  test:
    runs-on: ubuntu-latest
  build:
    runs-on: ubuntu-latest
`,
	})

	set := produce(t, NewToolProducer(logging.Discard(), 0), repo)
	tools := byName(set.OfKind(models.NodeTool))

	tests := []struct {
		name     string
		toolType string
		file     string
	}{
		{"eslint", ToolLinter, ".eslintrc.json"},
		{"typescript", ToolCompiler, "tsconfig.json"},
		{"make", ToolBuild, "Makefile"},
		{"docker", ToolContainer, "Dockerfile"},
		{"github-actions", ToolCI, ".github/workflows/ci.yml"},
		{"lint", ToolScript, "package.json"},
		{"test", ToolScript, "package.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool, ok := tools[tt.name]
			require.True(t, ok, "missing tool %s", tt.name)
			assert.Equal(t, tt.toolType, tool.Properties[PropToolType])
			assert.Equal(t, tt.file, tool.FilePath)
		})
	}
	assert.Len(t, tools, len(tests))
	assert.Equal(t, "build,test", tools["github-actions"].Properties[PropJobs])
	assert.Equal(t, "eslint .", tools["lint"].Properties[PropCommand])
}

func TestTestProducer(t *testing.T) {
	repo := writeRepo(t, map[string]string{
		"src/auth.test.ts": `import { describe, it } from 'vitest';

describe('auth', () => {
  it('logs in', () => {});
  it('logs out', () => {});
});
`,
		"tests/test_billing.py": `import pytest


def test_charge():
    assert True


async def test_refund():
    assert True
`,
		"store/store_test.go": `package store

import "testing"

func TestSave(t *testing.T) {}
`,
		"src/auth.ts": "export function login() {}\n",
	})

	set := produce(t, NewTestProducer(logging.Discard(), 0), repo)
	tests := byName(set.OfKind(models.NodeTest))
	require.Len(t, tests, 5)

	loggedIn := tests["logs in"]
	assert.Equal(t, "src/auth.test.ts", loggedIn.FilePath)
	assert.Equal(t, 4, loggedIn.LineNumber)
	assert.Equal(t, "4", loggedIn.Properties[entity.PropEndLine])
	assert.Equal(t, FrameworkVitest, loggedIn.Properties[entity.PropTestFramework])
	assert.Equal(t, "typescript", loggedIn.Properties[entity.PropLanguage])

	assert.Equal(t, 4, tests["test_charge"].LineNumber)
	assert.Equal(t, 8, tests["test_refund"].LineNumber)
	assert.Equal(t, FrameworkPytest, tests["test_refund"].Properties[entity.PropTestFramework])
	assert.Equal(t, FrameworkGo, tests["TestSave"].Properties[entity.PropTestFramework])
	assert.Equal(t, 5, tests["TestSave"].LineNumber)
}

func TestTestLanguage(t *testing.T) {
	tests := map[string]string{
		"src/auth.test.ts":      "typescript",
		"src/Button.spec.jsx":   "javascript",
		"src/__tests__/util.js": "javascript",
		"test_api.py":           "python",
		"api_test.py":           "python",
		"pkg/x_test.go":         "go",
		"src/auth.ts":           "",
		"testdata/fixture.py":   "",
		"docs/testing-guide.md": "",
	}
	for path, want := range tests {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, want, testLanguage(path))
		})
	}
}

func TestFileStem(t *testing.T) {
	assert.Equal(t, "auth", FileStem("src/auth.test.ts"))
	assert.Equal(t, "billing", FileStem("tests/test_billing.py"))
	assert.Equal(t, "store", FileStem("store/store_test.go"))
	assert.Equal(t, "Button", FileStem("src/Button.spec.jsx"))
}

func TestDocsProducer(t *testing.T) {
	repo := writeRepo(t, map[string]string{
		"README.md":         "# My Project\n\nIntro.\n\n## Setup\n",
		"docs/guide.md":     "Plain text without headings.\n",
		"docs/adr/0001.rst": "Use SQLite\n==========\n\nContext.\n",
		"LICENSE":           "MIT License\n",
		"requirements.txt":  "requests==2.31.0\n",
		"src/index.js":      "console.log('hi')\n",
	})

	set := produce(t, NewDocsProducer(logging.Discard(), 0), repo)
	docs := set.OfKind(models.NodeDocumentation)
	byPath := make(map[string]entity.Entity)
	for _, d := range docs {
		byPath[d.FilePath] = d
	}
	require.Len(t, byPath, 4)

	readme := byPath["README.md"]
	assert.Equal(t, "My Project", readme.Name)
	assert.Equal(t, "readme", readme.Properties[PropDocType])
	assert.Equal(t, "2", readme.Properties[PropHeadings])

	guide := byPath["docs/guide.md"]
	assert.Equal(t, "guide", guide.Name)
	assert.Equal(t, "guide", guide.Properties[PropDocType])

	adr := byPath["docs/adr/0001.rst"]
	assert.Equal(t, "Use SQLite", adr.Name)
	assert.Equal(t, "decision_record", adr.Properties[PropDocType])

	assert.Equal(t, "license", byPath["LICENSE"].Properties[PropDocType])
}
