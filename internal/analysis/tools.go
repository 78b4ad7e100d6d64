package analysis

import (
	"context"
	"encoding/json"
	"path"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/repograph/internal/entity"
	"github.com/rohankatakam/repograph/internal/models"
)

// Tool entity properties
const (
	PropToolType = "tool_type"
	PropCommand  = "command"
	PropJobs     = "jobs"
)

// Tool types
const (
	ToolLinter     = "linter"
	ToolFormatter  = "formatter"
	ToolBundler    = "bundler"
	ToolCompiler   = "compiler"
	ToolTestRunner = "test_runner"
	ToolBuild      = "build"
	ToolContainer  = "container"
	ToolCI         = "ci"
	ToolScript     = "script"
)

type toolSpec struct {
	name     string
	toolType string
}

// toolPrefixes map config file base-name prefixes to the tool they configure
var toolPrefixes = []struct {
	prefix string
	tool   toolSpec
}{
	{".eslintrc", toolSpec{"eslint", ToolLinter}},
	{"eslint.config.", toolSpec{"eslint", ToolLinter}},
	{".prettierrc", toolSpec{"prettier", ToolFormatter}},
	{"prettier.config.", toolSpec{"prettier", ToolFormatter}},
	{"webpack.config.", toolSpec{"webpack", ToolBundler}},
	{"vite.config.", toolSpec{"vite", ToolBundler}},
	{"rollup.config.", toolSpec{"rollup", ToolBundler}},
	{"next.config.", toolSpec{"next", ToolBundler}},
	{"jest.config.", toolSpec{"jest", ToolTestRunner}},
	{"vitest.config.", toolSpec{"vitest", ToolTestRunner}},
	{"babel.config.", toolSpec{"babel", ToolCompiler}},
	{".babelrc", toolSpec{"babel", ToolCompiler}},
	{"tsconfig", toolSpec{"typescript", ToolCompiler}},
	{".golangci.", toolSpec{"golangci-lint", ToolLinter}},
	{"ruff.toml", toolSpec{"ruff", ToolLinter}},
	{".flake8", toolSpec{"flake8", ToolLinter}},
	{"pytest.ini", toolSpec{"pytest", ToolTestRunner}},
	{"tox.ini", toolSpec{"tox", ToolTestRunner}},
	{".pre-commit-config.", toolSpec{"pre-commit", ToolLinter}},
	{"Makefile", toolSpec{"make", ToolBuild}},
	{"Dockerfile", toolSpec{"docker", ToolContainer}},
}

// ToolProducer indexes build tools, linters, CI workflows and package scripts
type ToolProducer struct {
	logger      *logrus.Logger
	maxFileSize int64
}

// NewToolProducer creates the tool indexer
func NewToolProducer(logger *logrus.Logger, maxFileSize int64) *ToolProducer {
	return &ToolProducer{logger: logger, maxFileSize: maxFileSize}
}

func (p *ToolProducer) Name() string { return "tools" }

func (p *ToolProducer) Produce(ctx context.Context, repo *models.Repository, out *entity.Set) error {
	w := NewWalker(repo.Path, p.maxFileSize)
	files, err := w.Files(ctx)
	if err != nil {
		return err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		base := path.Base(f.Path)

		switch {
		case isWorkflowFile(f.Path):
			content, err := w.Read(f)
			if err != nil {
				out.Skip(err.Error())
				continue
			}
			e := p.tool("github-actions", ToolCI, f.Path)
			if jobs, err := workflowJobs(content); err == nil {
				e.Set(PropJobs, strings.Join(jobs, ","))
			} else {
				p.logger.WithError(err).WithField("file", f.Path).Debug("workflow not parsed")
			}
			out.Add(e)
		case isComposeFile(f.Path):
			out.Add(p.tool("docker-compose", ToolContainer, f.Path))
		case base == "package.json":
			content, err := w.Read(f)
			if err != nil {
				out.Skip(err.Error())
				continue
			}
			p.scripts(f.Path, content, out)
		default:
			if spec, ok := toolFor(base); ok {
				out.Add(p.tool(spec.name, spec.toolType, f.Path))
			}
		}
	}
	return nil
}

func (p *ToolProducer) tool(name, toolType, file string) entity.Entity {
	return entity.Entity{
		Kind:     models.NodeTool,
		Name:     name,
		FilePath: file,
		Properties: map[string]string{
			PropToolType:        toolType,
			entity.PropProducer: p.Name(),
		},
	}
}

func toolFor(base string) (toolSpec, bool) {
	for _, tp := range toolPrefixes {
		if strings.HasPrefix(base, tp.prefix) {
			return tp.tool, true
		}
	}
	return toolSpec{}, false
}

func isWorkflowFile(rel string) bool {
	return strings.HasPrefix(rel, ".github/workflows/") &&
		(strings.HasSuffix(rel, ".yml") || strings.HasSuffix(rel, ".yaml"))
}

func workflowJobs(content []byte) ([]string, error) {
	var doc struct {
		Jobs map[string]yaml.Node `yaml:"jobs"`
	}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, err
	}
	return sortedKeys(doc.Jobs), nil
}

// scripts adds one tool per package.json script
func (p *ToolProducer) scripts(rel string, content []byte, out *entity.Set) {
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(content, &pkg); err != nil {
		out.Skip(rel + ": " + err.Error())
		return
	}
	for _, name := range sortedKeys(pkg.Scripts) {
		e := p.tool(name, ToolScript, rel)
		e.LineNumber = findLine(content, name)
		e.Set(PropCommand, pkg.Scripts[name])
		out.Add(e)
	}
}
