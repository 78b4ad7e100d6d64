// Package ingestion runs the analysis pipeline of a repository: producers,
// plugins, relationship inference and graph building, with progress
// tracking and per-repository locking.
package ingestion

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/repograph/internal/entity"
	"github.com/rohankatakam/repograph/internal/errors"
	"github.com/rohankatakam/repograph/internal/graph"
	"github.com/rohankatakam/repograph/internal/inference"
	"github.com/rohankatakam/repograph/internal/models"
	"github.com/rohankatakam/repograph/internal/storage"
)

// Fixed steps around the registered producer stages
const (
	StepRepositoryAccess = "repository access"
	StepPlugins          = "plugin execution"
	StepInference        = "relationship inference"
	StepGraphBuild       = "graph building"
	StepMirror           = "graph mirror"
)

// StepResult summarizes one pipeline step
type StepResult struct {
	Name     string        `json:"name"`
	Entities int           `json:"entities"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// RunResult summarizes one analysis run
type RunResult struct {
	RepositoryID string                `json:"repository_id"`
	RunID        string                `json:"run_id"`
	Status       models.AnalysisStatus `json:"status"`
	Steps        []StepResult          `json:"steps"`
	Inference    *inference.Stats      `json:"inference,omitempty"`
	Build        *graph.BuildStats     `json:"build,omitempty"`
	Errors       map[string]string     `json:"errors,omitempty"`
	Duration     time.Duration         `json:"duration"`
}

// Orchestrator coordinates analysis runs
type Orchestrator struct {
	store    storage.Store
	registry *entity.Registry
	plugins  entity.Producer
	engine   *inference.Engine
	builder  *graph.Builder
	mirror   graph.Mirror
	tracker  *ProgressTracker
	metrics  *Metrics
	locks    *RepoLocks
	runLock  RunLocker
	workers  int
	logger   *logrus.Logger

	wg sync.WaitGroup
}

// NewOrchestrator creates a new pipeline orchestrator. metrics may be nil.
func NewOrchestrator(
	store storage.Store,
	registry *entity.Registry,
	engine *inference.Engine,
	builder *graph.Builder,
	tracker *ProgressTracker,
	metrics *Metrics,
	logger *logrus.Logger,
) *Orchestrator {
	if metrics == nil {
		metrics, _ = NewMetrics(nil)
	}
	return &Orchestrator{
		store:    store,
		registry: registry,
		engine:   engine,
		builder:  builder,
		tracker:  tracker,
		metrics:  metrics,
		locks:    NewRepoLocks(),
		workers:  1,
		logger:   logger,
	}
}

// WithPlugins sets the producer run in the plugin step
func (o *Orchestrator) WithPlugins(p entity.Producer) *Orchestrator {
	o.plugins = p
	return o
}

// WithMirror syncs every built graph to m
func (o *Orchestrator) WithMirror(m graph.Mirror) *Orchestrator {
	o.mirror = m
	return o
}

// WithRunLock also takes l before each run, so runs in other processes
// sharing l are rejected too
func (o *Orchestrator) WithRunLock(l RunLocker) *Orchestrator {
	o.runLock = l
	return o
}

// WithWorkers bounds how many producers of one stage run at once
func (o *Orchestrator) WithWorkers(n int) *Orchestrator {
	if n > 0 {
		o.workers = n
	}
	return o
}

// Tracker returns the progress tracker
func (o *Orchestrator) Tracker() *ProgressTracker {
	return o.tracker
}

// TotalSteps is the number of steps of every run
func (o *Orchestrator) TotalSteps() int {
	return len(o.registry.Stages()) + 4
}

// RunAnalysis runs the full pipeline and blocks until it ends. A run
// already in progress for the repository is rejected with a
// ReconciliationConflict.
func (o *Orchestrator) RunAnalysis(ctx context.Context, repoID string) (*RunResult, error) {
	runID := uuid.NewString()
	if err := o.acquire(repoID, runID); err != nil {
		return nil, err
	}
	defer o.release(repoID, runID)

	o.tracker.Start(repoID, runID, o.TotalSteps())
	return o.run(ctx, repoID, runID)
}

// Start runs the pipeline in the background and returns the run id once
// the repository lock is held. Use Wait to block until background runs end.
func (o *Orchestrator) Start(ctx context.Context, repoID string) (string, error) {
	runID := uuid.NewString()
	if err := o.acquire(repoID, runID); err != nil {
		return "", err
	}
	o.tracker.Start(repoID, runID, o.TotalSteps())

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.release(repoID, runID)
		if _, err := o.run(ctx, repoID, runID); err != nil {
			o.logger.WithError(err).WithField("repository_id", repoID).Error("background analysis failed")
		}
	}()
	return runID, nil
}

// acquire takes the in-process lock, then the shared run lock if one is set
func (o *Orchestrator) acquire(repoID, runID string) error {
	if !o.locks.TryAcquire(repoID) {
		return errors.ReconciliationConflict(repoID)
	}
	if o.runLock == nil {
		return nil
	}
	ok, err := o.runLock.TryLock(repoID, runID)
	if err != nil {
		o.locks.Release(repoID)
		return errors.Wrap(err, errors.ErrorTypeInternal, errors.SeverityHigh, "failed to take repository run lock")
	}
	if !ok {
		o.locks.Release(repoID)
		return errors.ReconciliationConflict(repoID)
	}
	return nil
}

func (o *Orchestrator) release(repoID, runID string) {
	if o.runLock != nil {
		if err := o.runLock.Unlock(repoID, runID); err != nil {
			o.logger.WithError(err).WithField("repository_id", repoID).Warn("failed to release repository run lock")
		}
	}
	o.locks.Release(repoID)
}

// Wait blocks until every run started with Start has finished
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context, repoID, runID string) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{RepositoryID: repoID, RunID: runID, Errors: map[string]string{}}
	log := o.logger.WithFields(logrus.Fields{"repository_id": repoID, "run_id": runID})
	log.Info("starting analysis")

	step := 0
	next := func(name string) {
		step++
		o.tracker.Update(repoID, step, name, fmt.Sprintf("step %d/%d: %s", step, o.TotalSteps(), name))
	}

	// 1. repository access is the only mandatory step
	next(StepRepositoryAccess)
	repo, err := o.access(ctx, repoID)
	if err != nil {
		perr := errors.ProducerError(err, StepRepositoryAccess, true)
		o.tracker.RecordError(repoID, StepRepositoryAccess, perr)
		o.tracker.Fail(repoID, perr)
		o.metrics.StepFailures.WithLabelValues(StepRepositoryAccess).Inc()
		o.metrics.Runs.WithLabelValues(string(models.StatusFailed)).Inc()
		result.Status = models.StatusFailed
		result.Errors[StepRepositoryAccess] = perr.Error()
		result.Duration = time.Since(start)
		log.WithError(err).Error("analysis failed")
		return result, perr
	}

	set := entity.NewSet()

	for _, stage := range o.registry.Stages() {
		if err := o.cancelled(ctx, repoID, result, start); err != nil {
			return result, err
		}
		next(stage.Name)
		producers := stage.Producers
		result.Steps = append(result.Steps, o.step(ctx, repoID, stage.Name, set, result, func(ctx context.Context) error {
			return o.produce(ctx, repo, producers, set)
		}))
	}

	if err := o.cancelled(ctx, repoID, result, start); err != nil {
		return result, err
	}
	next(StepPlugins)
	result.Steps = append(result.Steps, o.step(ctx, repoID, StepPlugins, set, result, func(ctx context.Context) error {
		if o.plugins == nil {
			return nil
		}
		return o.produce(ctx, repo, []entity.Producer{o.plugins}, set)
	}))

	if err := o.cancelled(ctx, repoID, result, start); err != nil {
		return result, err
	}
	next(StepInference)
	var candidates []entity.Candidate
	result.Steps = append(result.Steps, o.step(ctx, repoID, StepInference, set, result, func(ctx context.Context) error {
		inferred, stats, err := o.engine.Infer(ctx, repo, set)
		candidates = inferred
		result.Inference = stats
		if stats != nil {
			o.tracker.SetDetail(repoID, "inference", *stats)
		}
		return err
	}))

	if err := o.cancelled(ctx, repoID, result, start); err != nil {
		return result, err
	}
	next(StepGraphBuild)
	result.Steps = append(result.Steps, o.step(ctx, repoID, StepGraphBuild, set, result, func(ctx context.Context) error {
		stats, err := o.builder.Build(ctx, repo, set, candidates)
		if err != nil {
			return err
		}
		result.Build = stats
		o.tracker.SetDetail(repoID, "build", *stats)
		if err := o.store.MarkAnalyzed(ctx, repoID, time.Now().UTC()); err != nil {
			log.WithError(err).Warn("failed to record analysis time")
		}
		return nil
	}))

	if o.mirror != nil && result.Build != nil {
		if err := o.syncMirror(ctx, repoID); err != nil {
			perr := errors.ProducerError(err, StepMirror, false)
			o.tracker.RecordError(repoID, StepMirror, perr)
			result.Errors[StepMirror] = perr.Error()
			log.WithError(err).Warn("graph mirror sync failed")
		}
	}

	result.Status = models.StatusComplete
	result.Duration = time.Since(start)
	message := "analysis complete"
	if len(result.Errors) > 0 {
		message = fmt.Sprintf("analysis complete with %d failed step(s)", len(result.Errors))
	}
	o.tracker.Complete(repoID, message)
	o.metrics.Runs.WithLabelValues(string(models.StatusComplete)).Inc()

	log.WithFields(logrus.Fields{
		"duration":     result.Duration.String(),
		"entities":     set.Len(),
		"failed_steps": len(result.Errors),
	}).Info("analysis completed")
	return result, nil
}

// access loads the repository and checks its checkout is a readable directory
func (o *Orchestrator) access(ctx context.Context, repoID string) (*models.Repository, error) {
	repo, err := o.store.GetRepository(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("load repository %s: %w", repoID, err)
	}
	info, err := os.Stat(repo.Path)
	if err != nil {
		return nil, fmt.Errorf("repository path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository path %s is not a directory", repo.Path)
	}
	if _, err := os.ReadDir(repo.Path); err != nil {
		return nil, fmt.Errorf("repository path: %w", err)
	}
	return repo, nil
}

// cancelled fails the run when the caller's context is done
func (o *Orchestrator) cancelled(ctx context.Context, repoID string, result *RunResult, start time.Time) error {
	if err := ctx.Err(); err != nil {
		o.tracker.Fail(repoID, fmt.Errorf("analysis cancelled: %w", err))
		o.metrics.Runs.WithLabelValues(string(models.StatusFailed)).Inc()
		result.Status = models.StatusFailed
		result.Duration = time.Since(start)
		return err
	}
	return nil
}

// step runs one non-mandatory step. Errors and panics are recorded and the
// pipeline moves on.
func (o *Orchestrator) step(ctx context.Context, repoID, name string, set *entity.Set, result *RunResult, fn func(ctx context.Context) error) StepResult {
	entitiesBefore := set.Len()
	skippedBefore, _ := set.Skipped()
	start := time.Now()

	err := safely(ctx, fn)

	skippedAfter, _ := set.Skipped()
	sr := StepResult{
		Name:     name,
		Entities: set.Len() - entitiesBefore,
		Skipped:  skippedAfter - skippedBefore,
		Duration: time.Since(start),
	}
	o.metrics.StepDuration.WithLabelValues(name).Observe(sr.Duration.Seconds())
	if sr.Skipped > 0 {
		o.metrics.SkippedEntities.WithLabelValues(name).Add(float64(sr.Skipped))
	}
	o.tracker.RecordStep(repoID, name, map[string]int{"entities": sr.Entities, "skipped": sr.Skipped})

	if err != nil {
		perr := errors.ProducerError(err, name, false)
		sr.Error = perr.Error()
		result.Errors[name] = perr.Error()
		o.tracker.RecordError(repoID, name, perr)
		o.metrics.StepFailures.WithLabelValues(name).Inc()
		o.logger.WithError(err).WithFields(logrus.Fields{
			"repository_id": repoID,
			"step":          name,
		}).Warn("step failed, continuing")
	}
	return sr
}

// produce runs the producers of one stage concurrently into set. Every
// producer runs even if another fails.
func (o *Orchestrator) produce(ctx context.Context, repo *models.Repository, producers []entity.Producer, set *entity.Set) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(o.workers)
	for _, p := range producers {
		p := p
		g.Go(func() error {
			err := safely(ctx, func(ctx context.Context) error {
				return p.Produce(ctx, repo, set)
			})
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return fmt.Errorf("%d producers failed: %w", len(errs), stderrors.Join(errs...))
	}
}

func (o *Orchestrator) syncMirror(ctx context.Context, repoID string) error {
	nodes, err := o.store.ListNodes(ctx, repoID)
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}
	edges, err := o.store.ListEdges(ctx, repoID)
	if err != nil {
		return fmt.Errorf("list edges: %w", err)
	}
	return o.mirror.SyncRepository(ctx, repoID, nodes, edges)
}

// safely runs fn and turns a panic into an error
func safely(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
