package analysis

import (
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repograph/internal/entity"
)

// Pipeline stage names the built-in producers register under
const (
	StageDependencies = "dependency extraction"
	StageServices     = "service detection"
	StageCode         = "code-structure analysis"
	StageSecurity     = "security analysis"
	StageIndexing     = "tool/test/doc indexing"
)

// Options configures the built-in producers
type Options struct {
	MaxFileSize int64
	Workers     int
}

// RegisterBuiltins adds every built-in producer to r in pipeline order
func RegisterBuiltins(r *entity.Registry, logger *logrus.Logger, opts Options) {
	r.Register(StageDependencies, NewDependencyProducer(logger, opts.MaxFileSize))
	r.Register(StageServices, NewServiceProducer(logger, opts.MaxFileSize))
	r.Register(StageCode, NewCodeProducer(logger, opts.MaxFileSize, opts.Workers))
	r.Register(StageSecurity, NewSecurityProducer(logger, opts.MaxFileSize))
	r.Register(StageIndexing, NewToolProducer(logger, opts.MaxFileSize))
	r.Register(StageIndexing, NewTestProducer(logger, opts.MaxFileSize))
	r.Register(StageIndexing, NewDocsProducer(logger, opts.MaxFileSize))
}
