// Package plugins runs external code-analysis executables and folds their
// JSON output into the entity set.
package plugins

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rohankatakam/repograph/internal/entity"
	"github.com/rohankatakam/repograph/internal/errors"
	"github.com/rohankatakam/repograph/internal/models"
)

// Defaults
const (
	DefaultTimeout         = 60 * time.Second
	DefaultSpawnsPerSecond = 4.0

	maxStderr = 4096
)

// Options configures plugin discovery and execution
type Options struct {
	Directory       string
	Timeout         time.Duration
	SpawnsPerSecond float64
	Workers         int
	// OnFailure is called once for every plugin that fails
	OnFailure func(plugin string, err error)
}

// Adapter is a producer backed by the executables in one directory
type Adapter struct {
	opts    Options
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// NewAdapter creates a plugin adapter
func NewAdapter(opts Options, logger *logrus.Logger) *Adapter {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.SpawnsPerSecond <= 0 {
		opts.SpawnsPerSecond = DefaultSpawnsPerSecond
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Adapter{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.SpawnsPerSecond), 1),
		logger:  logger,
	}
}

func (a *Adapter) Name() string { return "plugins" }

// Discover lists the executables in the plugin directory, sorted by name.
// A missing or unset directory yields no plugins.
func (a *Adapter) Discover() ([]string, error) {
	if a.opts.Directory == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(a.opts.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read plugin directory: %w", err)
	}

	var plugins []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
			continue
		}
		plugins = append(plugins, filepath.Join(a.opts.Directory, entry.Name()))
	}
	sort.Strings(plugins)
	return plugins, nil
}

// Produce runs every discovered plugin against the repository. A failing
// plugin is logged, reported to OnFailure and contributes nothing; it never
// fails the step.
func (a *Adapter) Produce(ctx context.Context, repo *models.Repository, out *entity.Set) error {
	plugins, err := a.Discover()
	if err != nil {
		return err
	}
	if len(plugins) == 0 {
		a.logger.WithField("directory", a.opts.Directory).Debug("no plugins found")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for _, path := range plugins {
		path := path
		g.Go(func() error {
			name := filepath.Base(path)
			doc, err := a.Run(gctx, path, repo.Path)
			if err != nil {
				if gctx.Err() != nil && ctx.Err() != nil {
					return ctx.Err()
				}
				a.fail(name, err)
				return nil
			}

			local := entity.NewSet()
			Normalize(name, doc, local)
			skipped, _ := local.Skipped()
			out.Merge(local)

			a.logger.WithFields(logrus.Fields{
				"plugin":        name,
				"elements":      len(doc.CodeElements),
				"relationships": len(doc.CodeRelationships),
				"skipped":       skipped,
			}).Info("plugin completed")
			return nil
		})
	}
	return g.Wait()
}

func (a *Adapter) fail(name string, err error) {
	a.logger.WithError(err).WithField("plugin", name).Warn("plugin skipped")
	if a.opts.OnFailure != nil {
		a.opts.OnFailure(name, err)
	}
}

// Run invokes one plugin as `<plugin> <repoPath>` and decodes its stdout.
// Every failure is returned as a PluginError.
func (a *Adapter) Run(ctx context.Context, plugin, repoPath string) (*Output, error) {
	name := filepath.Base(plugin)
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, errors.PluginError(fmt.Errorf("rate limiter: %w", err), name)
	}

	runCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, plugin, repoPath)
	cmd.Dir = repoPath
	cmd.Stdout = &stdout
	cmd.Stderr = &limitedBuffer{max: maxStderr, buf: &stderr}
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return nil, errors.PluginError(fmt.Errorf("timed out after %s", a.opts.Timeout), name)
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return nil, errors.PluginError(err, name)
	}

	doc, err := Decode(stdout.Bytes())
	if err != nil {
		return nil, errors.PluginError(err, name)
	}
	a.logger.WithFields(logrus.Fields{
		"plugin":   name,
		"duration": time.Since(start),
	}).Debug("plugin output decoded")
	return doc, nil
}

// limitedBuffer keeps the first max bytes written and discards the rest
type limitedBuffer struct {
	max int
	buf *bytes.Buffer
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if room := l.max - l.buf.Len(); room > 0 {
		if len(p) > room {
			l.buf.Write(p[:room])
		} else {
			l.buf.Write(p)
		}
	}
	return len(p), nil
}
