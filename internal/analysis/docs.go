package analysis

import (
	"bufio"
	"bytes"
	"context"
	"path"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repograph/internal/entity"
	"github.com/rohankatakam/repograph/internal/models"
)

// Documentation properties
const (
	PropDocType  = "doc_type"
	PropFormat   = "format"
	PropHeadings = "headings"
)

var docExtensions = map[string]string{
	".md":       "markdown",
	".markdown": "markdown",
	".mdx":      "markdown",
	".rst":      "rst",
	".adoc":     "asciidoc",
	".txt":      "text",
}

// docNames classify well-known documentation files by base-name prefix
var docNames = []string{
	"readme", "changelog", "contributing", "license", "authors",
	"contributors", "code_of_conduct", "security", "support",
}

// DocsProducer indexes documentation files
type DocsProducer struct {
	logger      *logrus.Logger
	maxFileSize int64
}

// NewDocsProducer creates the documentation indexer
func NewDocsProducer(logger *logrus.Logger, maxFileSize int64) *DocsProducer {
	return &DocsProducer{logger: logger, maxFileSize: maxFileSize}
}

func (p *DocsProducer) Name() string { return "docs" }

func (p *DocsProducer) Produce(ctx context.Context, repo *models.Repository, out *entity.Set) error {
	w := NewWalker(repo.Path, p.maxFileSize)
	files, err := w.Files(ctx)
	if err != nil {
		return err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		format, docType, ok := classifyDoc(f.Path)
		if !ok {
			continue
		}
		content, err := w.Read(f)
		if err != nil {
			out.Skip(err.Error())
			continue
		}

		title, headings := outline(content, format)
		if title == "" {
			title = strings.TrimSuffix(path.Base(f.Path), path.Ext(f.Path))
		}
		out.Add(entity.Entity{
			Kind:       models.NodeDocumentation,
			Name:       title,
			FilePath:   f.Path,
			LineNumber: 1,
			Properties: map[string]string{
				PropDocType:         docType,
				PropFormat:          format,
				PropHeadings:        strconv.Itoa(headings),
				entity.PropProducer: p.Name(),
			},
		})
	}
	return nil
}

// classifyDoc returns the format and kind of a documentation file
func classifyDoc(rel string) (format, docType string, ok bool) {
	base := strings.ToLower(path.Base(rel))
	ext := path.Ext(base)
	format, known := docExtensions[ext]

	docType = ""
	for _, name := range docNames {
		if strings.HasPrefix(base, name) {
			docType = name
			break
		}
	}

	switch {
	case ext == "" && docType != "":
		return "text", docType, true
	case !known:
		return "", "", false
	case format == "text" && docType == "":
		// plain .txt only counts when it is a well-known document
		return "", "", false
	}

	if docType == "" {
		switch {
		case strings.Contains(rel, "adr/") || strings.Contains(rel, "decisions/"):
			docType = "decision_record"
		case strings.HasPrefix(rel, "docs/") || strings.Contains(rel, "/docs/"):
			docType = "guide"
		default:
			docType = "document"
		}
	}
	return format, docType, true
}

// outline returns the first heading and the number of headings
func outline(content []byte, format string) (string, int) {
	var title string
	headings := 0
	prev := ""
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		heading := ""
		switch format {
		case "markdown":
			if strings.HasPrefix(line, "#") {
				heading = strings.TrimSpace(strings.TrimLeft(line, "#"))
			}
		case "asciidoc":
			if strings.HasPrefix(line, "=") {
				heading = strings.TrimSpace(strings.TrimLeft(line, "="))
			}
		case "rst":
			if prev != "" && len(line) >= len(prev) && line != "" && strings.Trim(line, "=-~^*#") == "" {
				heading = prev
			}
		}
		if heading != "" {
			headings++
			if title == "" {
				title = heading
			}
		}
		prev = line
	}
	return title, headings
}
