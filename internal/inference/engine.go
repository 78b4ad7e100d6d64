// Package inference correlates raw entities into scored relationship
// candidates. Every candidate carries the evidence that produced it; when
// several signals fire for the same pair the strongest one wins.
package inference

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/repograph/internal/analysis"
	"github.com/rohankatakam/repograph/internal/entity"
	"github.com/rohankatakam/repograph/internal/models"
	"github.com/rohankatakam/repograph/internal/treesitter"
)

// Defaults
const (
	DefaultMinConfidence = 0.5
	DefaultContextLines  = 200
)

// Options tunes the engine
type Options struct {
	MinConfidence float64
	ContextLines  int
	MaxFileSize   int64
	Workers       int
}

func (o Options) withDefaults() Options {
	if o.MinConfidence <= 0 {
		o.MinConfidence = DefaultMinConfidence
	}
	if o.ContextLines <= 0 {
		o.ContextLines = DefaultContextLines
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	return o
}

// Stats counts what one inference run did
type Stats struct {
	Elements   int `json:"elements"`
	Candidates int `json:"candidates"`
	Dropped    int `json:"dropped"`
	Failed     int `json:"failed"`
}

// Engine infers relationships between code and the things it uses
type Engine struct {
	logger *logrus.Logger
	opts   Options
	parse  analysis.ParseFunc
}

// NewEngine creates an inference engine
func NewEngine(logger *logrus.Logger, opts Options) *Engine {
	return &Engine{logger: logger, opts: opts.withDefaults(), parse: treesitter.Parse}
}

// WithParser replaces the import parser. Used by tests.
func (e *Engine) WithParser(parse analysis.ParseFunc) *Engine {
	e.parse = parse
	return e
}

// candidateKey identifies one relationship regardless of its score
type candidateKey struct {
	from entity.Ref
	to   entity.Ref
	kind models.EdgeType
}

// collector keeps the strongest candidate per (source, target, kind)
type collector struct {
	mu   sync.Mutex
	best map[candidateKey]entity.Candidate
}

func newCollector() *collector {
	return &collector{best: make(map[candidateKey]entity.Candidate)}
}

func (c *collector) add(from, to entity.Ref, kind models.EdgeType, confidence float64, evidence string) {
	if from == to {
		return
	}
	key := candidateKey{from: from, to: to, kind: kind}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.best[key]; ok {
		if confidence < existing.Confidence {
			return
		}
		// equal scores from concurrent workers keep the smaller evidence so
		// reruns store the same text
		if confidence == existing.Confidence && existing.Evidence <= evidence {
			return
		}
	}
	c.best[key] = entity.Candidate{From: from, To: to, Kind: kind, Confidence: confidence, Evidence: evidence}
}

// sorted returns the candidates in a stable order
func (c *collector) sorted() []entity.Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]entity.Candidate, 0, len(c.best))
	for _, cand := range c.best {
		out = append(out, cand)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From.String() < out[j].From.String()
		}
		if out[i].To != out[j].To {
			return out[i].To.String() < out[j].To.String()
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// target is an entity other entities may relate to, with its ref resolved
type target struct {
	entity.Entity
	ref entity.Ref
}

func refs(entities []entity.Entity) []target {
	out := make([]target, 0, len(entities))
	for _, e := range entities {
		ref, err := e.Ref()
		if err != nil {
			continue
		}
		out = append(out, target{Entity: e, ref: ref})
	}
	return out
}

// Infer scores candidate relationships for the accumulated entity set.
// Candidates below the minimum confidence are dropped and counted.
func (e *Engine) Infer(ctx context.Context, repo *models.Repository, set *entity.Set) ([]entity.Candidate, *Stats, error) {
	stats := &Stats{}
	col := newCollector()

	elements := refs(set.OfKind(models.NodeCodeElement))
	deps := refs(set.OfKind(models.NodeDependency))
	services := refs(set.OfKind(models.NodeService))

	files := newFileCache(analysis.NewWalker(repo.Path, e.opts.MaxFileSize), e.parse)

	byFile := make(map[string][]target)
	var order []string
	for _, el := range elements {
		if _, ok := byFile[el.FilePath]; !ok {
			order = append(order, el.FilePath)
		}
		byFile[el.FilePath] = append(byFile[el.FilePath], el)
	}
	stats.Elements = len(elements)

	var (
		failed   int
		failedMu sync.Mutex
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for _, path := range order {
		path := path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n := e.inferFile(path, byFile[path], deps, services, files, col)
			if n > 0 {
				failedMu.Lock()
				failed += n
				failedMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}
	stats.Failed = failed

	e.inferSecures(refs(set.OfKind(models.NodeSecurityEntity)), services, col)
	e.inferTools(refs(set.OfKind(models.NodeTool)), deps, col)
	stats.Failed += e.inferTests(refs(set.OfKind(models.NodeTest)), elements, files, col)

	var kept []entity.Candidate
	for _, c := range col.sorted() {
		if c.Confidence < e.opts.MinConfidence {
			stats.Dropped++
			continue
		}
		kept = append(kept, c)
	}
	stats.Candidates = len(kept)

	e.logger.WithFields(logrus.Fields{
		"repository_id": repo.ID,
		"elements":      stats.Elements,
		"candidates":    stats.Candidates,
		"dropped":       stats.Dropped,
		"failed":        stats.Failed,
	}).Info("relationship inference complete")
	return kept, stats, nil
}

// inferFile scores every element of one file and returns how many failed
func (e *Engine) inferFile(path string, elements []target, deps, services []target, files *fileCache, col *collector) int {
	file, err := files.get(path)
	if err != nil {
		e.logger.WithError(err).WithField("file", path).Warn("inference skipped file")
		return len(elements)
	}

	failed := 0
	for _, el := range elements {
		if err := e.inferElement(el, file, deps, services, col); err != nil {
			failed++
			e.logger.WithError(err).WithFields(logrus.Fields{
				"file":    path,
				"element": el.Name,
			}).Warn("inference skipped element")
		}
	}
	return failed
}

// inferElement runs every code-element signal. A panic fails only this element.
func (e *Engine) inferElement(el target, file *fileInfo, deps, services []target, col *collector) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	body := file.body(el.LineNumber, endLine(el.Entity), e.opts.ContextLines)
	for _, dep := range deps {
		if confidence, evidence := dependencySignal(el, body, file, dep); confidence > 0 {
			col.add(el.ref, dep.ref, models.EdgeUsesDependency, confidence, evidence)
		}
	}
	for _, svc := range services {
		if confidence, evidence := serviceSignal(el, body, file, svc); confidence > 0 {
			col.add(el.ref, svc.ref, models.EdgeUsesService, confidence, evidence)
		}
	}
	return nil
}

// endLine reads the end_line property, or 0 when unknown
func endLine(e entity.Entity) int {
	n, err := strconv.Atoi(e.Properties[entity.PropEndLine])
	if err != nil || n < e.LineNumber {
		return 0
	}
	return n
}

// fileInfo is a cached repository file with its import statements
type fileInfo struct {
	path    string
	lines   []string
	imports []treesitter.Import
}

// body returns lines start..end, or a window of contextLines when end is unknown
func (f *fileInfo) body(start, end, contextLines int) string {
	if start < 1 {
		start = 1
	}
	if end == 0 {
		end = start + contextLines - 1
	}
	if end > len(f.lines) {
		end = len(f.lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(f.lines[start-1:end], "\n")
}

type fileCache struct {
	walker *analysis.Walker
	parse  analysis.ParseFunc

	mu    sync.Mutex
	files map[string]*fileInfo
	errs  map[string]error
}

func newFileCache(w *analysis.Walker, parse analysis.ParseFunc) *fileCache {
	return &fileCache{walker: w, parse: parse, files: make(map[string]*fileInfo), errs: make(map[string]error)}
}

// get loads a file once. Unsupported languages yield no imports.
func (c *fileCache) get(path string) (*fileInfo, error) {
	c.mu.Lock()
	if f, ok := c.files[path]; ok {
		c.mu.Unlock()
		return f, nil
	}
	if err, ok := c.errs[path]; ok {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	f, err := c.load(path)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.errs[path] = err
		return nil, err
	}
	c.files[path] = f
	return f, nil
}

func (c *fileCache) load(path string) (f *fileInfo, err error) {
	content, err := c.walker.ReadPath(path)
	if err != nil {
		return nil, err
	}
	f = &fileInfo{path: path, lines: strings.Split(string(content), "\n")}
	if treesitter.DetectLanguage(path) == "" {
		return f, nil
	}

	defer func() {
		if r := recover(); r != nil {
			f.imports, err = nil, nil
		}
	}()
	if result, parseErr := c.parse(path, content); parseErr == nil {
		f.imports = result.Imports
	}
	return f, nil
}
