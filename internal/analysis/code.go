package analysis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/repograph/internal/entity"
	"github.com/rohankatakam/repograph/internal/models"
	"github.com/rohankatakam/repograph/internal/treesitter"
)

// PropSignature holds the declaration line of a code element
const PropSignature = "signature"

// Calls confidence by how the callee was resolved
const (
	sameFileCallConfidence  = 0.9
	crossFileCallConfidence = 0.7
)

// ParseFunc parses one source file
type ParseFunc func(path string, code []byte) (*treesitter.FileResult, error)

// CodeProducer extracts functions, classes and call sites from source files
type CodeProducer struct {
	logger      *logrus.Logger
	maxFileSize int64
	workers     int
	parse       ParseFunc
}

// NewCodeProducer creates the code-structure producer. workers bounds the
// number of files parsed concurrently.
func NewCodeProducer(logger *logrus.Logger, maxFileSize int64, workers int) *CodeProducer {
	if workers <= 0 {
		workers = 1
	}
	return &CodeProducer{
		logger:      logger,
		maxFileSize: maxFileSize,
		workers:     workers,
		parse:       treesitter.Parse,
	}
}

// WithParser replaces the parser. Used by tests.
func (p *CodeProducer) WithParser(parse ParseFunc) *CodeProducer {
	p.parse = parse
	return p
}

func (p *CodeProducer) Name() string { return "code" }

// parsedFile is one file's elements with their entity refs
type parsedFile struct {
	path   string
	result *treesitter.FileResult
	refs   []entity.Ref
}

func (p *CodeProducer) Produce(ctx context.Context, repo *models.Repository, out *entity.Set) error {
	w := NewWalker(repo.Path, p.maxFileSize)
	files, err := w.Files(ctx)
	if err != nil {
		return err
	}

	var (
		mu     sync.Mutex
		parsed []*parsedFile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, f := range files {
		if treesitter.DetectLanguage(f.Path) == "" {
			continue
		}
		f := f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pf, err := p.parseFile(w, f, out)
			if err != nil {
				p.logger.WithError(err).WithField("file", f.Path).Warn("skipping file")
				out.Skip(fmt.Sprintf("%s: %v", f.Path, err))
				return nil
			}
			mu.Lock()
			parsed = append(parsed, pf)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sort.Slice(parsed, func(i, j int) bool { return parsed[i].path < parsed[j].path })
	p.relateCalls(parsed, out)
	return nil
}

// parseFile parses one file and adds its elements. A panicking parser
// fails only this file.
func (p *CodeProducer) parseFile(w *Walker, f File, out *entity.Set) (pf *parsedFile, err error) {
	defer func() {
		if r := recover(); r != nil {
			pf, err = nil, fmt.Errorf("parser panic: %v", r)
		}
	}()

	content, err := w.Read(f)
	if err != nil {
		return nil, err
	}
	result, err := p.parse(f.Path, content)
	if err != nil {
		return nil, err
	}

	pf = &parsedFile{path: f.Path, result: result, refs: make([]entity.Ref, len(result.Elements))}
	for i, el := range result.Elements {
		e := entity.Entity{
			Kind:       models.NodeCodeElement,
			Name:       el.Name,
			FilePath:   f.Path,
			LineNumber: el.StartLine,
			Properties: map[string]string{
				entity.PropElementType: el.Kind,
				entity.PropLanguage:    el.Language,
				entity.PropEndLine:     strconv.Itoa(el.EndLine),
				entity.PropProducer:    p.Name(),
			},
		}
		if el.Signature != "" {
			e.Set(PropSignature, el.Signature)
		}
		if !out.Add(e) {
			continue
		}
		pf.refs[i], _ = e.Ref()
	}
	return pf, nil
}

// shortName strips the class qualifier: "UserService.save" -> "save"
func shortName(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

// relateCalls resolves call sites to elements. A callee defined in the
// caller's file wins; otherwise the name must be unique in the repository.
func (p *CodeProducer) relateCalls(files []*parsedFile, out *entity.Set) {
	type target struct {
		ref  entity.Ref
		name string
	}
	global := make(map[string][]target)
	for _, pf := range files {
		for i, el := range pf.result.Elements {
			if pf.refs[i].Key == "" {
				continue
			}
			global[shortName(el.Name)] = append(global[shortName(el.Name)], target{ref: pf.refs[i], name: el.Name})
		}
	}

	for _, pf := range files {
		local := make(map[string][]target)
		for i, el := range pf.result.Elements {
			if pf.refs[i].Key == "" {
				continue
			}
			local[shortName(el.Name)] = append(local[shortName(el.Name)], target{ref: pf.refs[i], name: el.Name})
		}

		seen := make(map[[2]entity.Ref]bool)
		for _, call := range pf.result.Calls {
			if call.Caller < 0 || call.Caller >= len(pf.refs) || pf.refs[call.Caller].Key == "" {
				continue
			}
			from := pf.refs[call.Caller]
			caller := pf.result.Elements[call.Caller].Name

			var to target
			confidence := sameFileCallConfidence
			switch {
			case len(local[call.Callee]) == 1:
				to = local[call.Callee][0]
			case len(local[call.Callee]) == 0 && len(global[call.Callee]) == 1:
				to = global[call.Callee][0]
				confidence = crossFileCallConfidence
			default:
				continue
			}
			if to.ref == from || seen[[2]entity.Ref{from, to.ref}] {
				continue
			}
			seen[[2]entity.Ref{from, to.ref}] = true

			out.Relate(entity.Relationship{
				From:       from,
				To:         to.ref,
				Kind:       models.EdgeCalls,
				Confidence: confidence,
				Evidence:   fmt.Sprintf("%s() calls %s() at %s:%d", caller, to.name, pf.path, call.Line),
			})
		}
	}
}
