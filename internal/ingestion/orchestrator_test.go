package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/repograph/internal/analysis"
	"github.com/rohankatakam/repograph/internal/entity"
	"github.com/rohankatakam/repograph/internal/errors"
	"github.com/rohankatakam/repograph/internal/graph"
	"github.com/rohankatakam/repograph/internal/inference"
	"github.com/rohankatakam/repograph/internal/logging"
	"github.com/rohankatakam/repograph/internal/models"
	"github.com/rohankatakam/repograph/internal/storage"
)

type fixture struct {
	store   storage.Store
	orch    *Orchestrator
	metrics *Metrics
	repo    *models.Repository
}

func newFixture(t *testing.T, registry *entity.Registry, files map[string]string) *fixture {
	t.Helper()
	logger := logging.Discard()

	store, err := storage.NewSQLiteStore(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	root := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
	repo := &models.Repository{ID: "repo-1", Name: "fixture", Path: root}
	require.NoError(t, store.SaveRepository(context.Background(), repo))

	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	orch := NewOrchestrator(
		store,
		registry,
		inference.NewEngine(logger, inference.Options{Workers: 2}),
		graph.NewBuilder(store, logger, inference.DefaultMinConfidence),
		NewProgressTracker(nil, logger),
		metrics,
		logger,
	).WithWorkers(2)
	return &fixture{store: store, orch: orch, metrics: metrics, repo: repo}
}

func builtins() *entity.Registry {
	r := entity.NewRegistry()
	analysis.RegisterBuiltins(r, logging.Discard(), analysis.Options{Workers: 2})
	return r
}

var firebaseRepo = map[string]string{
	"package.json": `{"dependencies":{"firebase":"^9.0.0"}}`,
	"storage.ts": `import firebase from 'firebase/app'

export function getAdminStorage() {
  return firebase.storage()
}
`,
}

// edgeBetween finds the edge of the given type between two named nodes
func edgeBetween(t *testing.T, store storage.Store, repoID string, edgeType models.EdgeType, from, to string) (*models.Edge, bool) {
	t.Helper()
	ctx := context.Background()
	nodes, err := store.ListNodes(ctx, repoID)
	require.NoError(t, err)
	names := make(map[string]string, len(nodes))
	for _, n := range nodes {
		names[n.ID] = n.Name
	}
	edges, err := store.ListEdges(ctx, repoID)
	require.NoError(t, err)
	for _, e := range edges {
		if e.EdgeType == edgeType && names[e.SourceNodeID] == from && names[e.TargetNodeID] == to {
			return e, true
		}
	}
	return nil, false
}

func TestRunAnalysis_FirebaseEndToEnd(t *testing.T) {
	f := newFixture(t, builtins(), firebaseRepo)
	assert.Equal(t, 9, f.orch.TotalSteps())

	result, err := f.orch.RunAnalysis(context.Background(), f.repo.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, result.Status)
	assert.Empty(t, result.Errors)
	assert.Len(t, result.Steps, 8)
	require.NotNil(t, result.Build)
	assert.Greater(t, result.Build.NodesCreated, 0)

	edge, ok := edgeBetween(t, f.store, f.repo.ID, models.EdgeUsesDependency, "getAdminStorage", "firebase")
	require.True(t, ok)
	assert.GreaterOrEqual(t, edge.Confidence, 0.8)
	assert.Contains(t, edge.Evidence, "import statement: import firebase from 'firebase/app'")

	_, ok = edgeBetween(t, f.store, f.repo.ID, models.EdgeHasDependency, "fixture", "firebase")
	assert.True(t, ok)

	p, ok := f.orch.Tracker().Get(f.repo.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusComplete, p.Status)
	assert.Equal(t, 100.0, p.ProgressPercent)
	assert.Equal(t, 9, p.CurrentStep)
	assert.Equal(t, result.RunID, p.RunID)

	repo, err := f.store.GetRepository(context.Background(), f.repo.ID)
	require.NoError(t, err)
	assert.NotNil(t, repo.LastAnalyzed)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Runs.WithLabelValues(string(models.StatusComplete))))
}

func TestRunAnalysis_Idempotent(t *testing.T) {
	f := newFixture(t, builtins(), firebaseRepo)
	ctx := context.Background()

	_, err := f.orch.RunAnalysis(ctx, f.repo.ID)
	require.NoError(t, err)
	nodes1, err := f.store.ListNodes(ctx, f.repo.ID)
	require.NoError(t, err)
	edges1, err := f.store.ListEdges(ctx, f.repo.ID)
	require.NoError(t, err)
	firebase1, ok := edgeBetween(t, f.store, f.repo.ID, models.EdgeUsesDependency, "getAdminStorage", "firebase")
	require.True(t, ok)

	for run := 2; run <= 3; run++ {
		again, err := f.orch.RunAnalysis(ctx, f.repo.ID)
		require.NoError(t, err)
		require.NotNil(t, again.Build)
		assert.Equal(t, 0, again.Build.NodesCreated, "run %d", run)
		assert.Equal(t, 0, again.Build.NodesUpdated, "run %d", run)
		assert.Equal(t, 0, again.Build.NodesRemoved, "run %d", run)
		assert.Equal(t, 0, again.Build.EdgesCreated, "run %d", run)
		assert.Equal(t, 0, again.Build.EdgesUpdated, "run %d", run)
		assert.Equal(t, 0, again.Build.EdgesRemoved, "run %d", run)

		nodes, err := f.store.ListNodes(ctx, f.repo.ID)
		require.NoError(t, err)
		edges, err := f.store.ListEdges(ctx, f.repo.ID)
		require.NoError(t, err)
		assert.Equal(t, stableNodes(nodes1), stableNodes(nodes), "run %d", run)
		assert.Equal(t, stableEdges(edges1), stableEdges(edges), "run %d", run)

		firebase, ok := edgeBetween(t, f.store, f.repo.ID, models.EdgeUsesDependency, "getAdminStorage", "firebase")
		require.True(t, ok)
		assert.Equal(t, firebase1.Evidence, firebase.Evidence, "evidence must not grow on rerun")
	}
}

// stableNodes drops UpdatedAt and keys nodes by id
func stableNodes(nodes []*models.Node) map[string]models.Node {
	out := make(map[string]models.Node, len(nodes))
	for _, n := range nodes {
		c := *n
		c.UpdatedAt = time.Time{}
		c.CreatedAt = c.CreatedAt.UTC()
		out[c.ID] = c
	}
	return out
}

// stableEdges drops UpdatedAt and keys edges by id
func stableEdges(edges []*models.Edge) map[string]models.Edge {
	out := make(map[string]models.Edge, len(edges))
	for _, e := range edges {
		c := *e
		c.UpdatedAt = time.Time{}
		c.CreatedAt = c.CreatedAt.UTC()
		out[c.ID] = c
	}
	return out
}

func TestRunAnalysis_PartialFailure(t *testing.T) {
	registry := entity.NewRegistry()
	registry.Register("broken", entity.ProducerFunc{ProducerName: "broken", Fn: func(ctx context.Context, repo *models.Repository, out *entity.Set) error {
		return fmt.Errorf("manifest unreadable")
	}})
	registry.Register("panicking", entity.ProducerFunc{ProducerName: "panicking", Fn: func(ctx context.Context, repo *models.Repository, out *entity.Set) error {
		panic("nil map")
	}})
	registry.Register("working", entity.ProducerFunc{ProducerName: "working", Fn: func(ctx context.Context, repo *models.Repository, out *entity.Set) error {
		out.Add(entity.Entity{
			Kind:     models.NodeDependency,
			Name:     "lodash",
			FilePath: "package.json",
			Properties: map[string]string{
				entity.PropVersion:        "4.17.21",
				entity.PropPackageManager: "npm",
			},
		})
		out.Add(entity.Entity{Kind: models.NodeDependency, Name: "no-version"})
		return nil
	}})

	f := newFixture(t, registry, map[string]string{"README.md": "# fixture\n"})
	result, err := f.orch.RunAnalysis(context.Background(), f.repo.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, result.Status)
	assert.Contains(t, result.Errors, "broken")
	assert.Contains(t, result.Errors, "panicking")
	assert.Contains(t, result.Errors["panicking"], "panic: nil map")
	assert.NotContains(t, result.Errors, "working")

	p, _ := f.orch.Tracker().Get(f.repo.ID)
	assert.Equal(t, models.StatusComplete, p.Status)
	errs := p.Details[DetailErrors].(map[string]string)
	assert.Contains(t, errs["broken"], "manifest unreadable")
	steps := p.Details[DetailSteps].(map[string]map[string]int)
	assert.Equal(t, map[string]int{"entities": 1, "skipped": 1}, steps["working"])

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.StepFailures.WithLabelValues("broken")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SkippedEntities.WithLabelValues("working")))

	_, ok := edgeBetween(t, f.store, f.repo.ID, models.EdgeHasDependency, "fixture", "lodash")
	assert.True(t, ok)
}

func TestRunAnalysis_RepositoryAccessFails(t *testing.T) {
	f := newFixture(t, builtins(), nil)
	ctx := context.Background()

	missing := &models.Repository{ID: "gone", Name: "gone", Path: filepath.Join(t.TempDir(), "absent")}
	require.NoError(t, f.store.SaveRepository(ctx, missing))

	result, err := f.orch.RunAnalysis(ctx, missing.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrProducer)
	assert.True(t, errors.IsFatal(err))
	assert.Equal(t, models.StatusFailed, result.Status)

	p, ok := f.orch.Tracker().Get(missing.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusFailed, p.Status)
	assert.Equal(t, 1, p.CurrentStep)

	_, err = f.orch.RunAnalysis(ctx, "never-registered")
	assert.ErrorIs(t, err, errors.ErrProducer)
}

func TestRunAnalysis_ConcurrentRunConflicts(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	registry := entity.NewRegistry()
	registry.Register("slow", entity.ProducerFunc{ProducerName: "slow", Fn: func(ctx context.Context, repo *models.Repository, out *entity.Set) error {
		close(started)
		<-release
		return nil
	}})

	f := newFixture(t, registry, map[string]string{"main.go": "package main\n"})
	ctx := context.Background()

	runID, err := f.orch.Start(ctx, f.repo.ID)
	require.NoError(t, err)
	<-started
	assert.True(t, f.orch.locks.Held(f.repo.ID))

	_, err = f.orch.RunAnalysis(ctx, f.repo.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrReconciliationConflict)
	_, err = f.orch.Start(ctx, f.repo.ID)
	assert.ErrorIs(t, err, errors.ErrReconciliationConflict)

	p, ok := f.orch.Tracker().Get(f.repo.ID)
	require.True(t, ok)
	assert.Equal(t, runID, p.RunID, "rejected request must not touch progress")
	assert.Equal(t, models.StatusRunning, p.Status)

	close(release)
	f.orch.Wait()

	p, _ = f.orch.Tracker().Get(f.repo.ID)
	assert.Equal(t, models.StatusComplete, p.Status)
	assert.False(t, f.orch.locks.Held(f.repo.ID))

	_, err = f.orch.RunAnalysis(ctx, f.repo.ID)
	assert.NoError(t, err, "lock is released after the run")
}

func TestRunAnalysis_ConflictsAcrossOrchestrators(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	registry := entity.NewRegistry()
	registry.Register("slow", entity.ProducerFunc{ProducerName: "slow", Fn: func(ctx context.Context, repo *models.Repository, out *entity.Set) error {
		select {
		case <-started:
		default:
			close(started)
			<-release
		}
		return nil
	}})

	f := newFixture(t, registry, map[string]string{"main.go": "package main\n"})
	ctx := context.Background()
	logger := logging.Discard()

	progressStore, err := NewBoltProgressStore(filepath.Join(t.TempDir(), "progress.db"))
	require.NoError(t, err)
	f.orch.WithRunLock(progressStore)

	// a second orchestrator stands in for another process sharing the
	// graph store and the progress file
	other := NewOrchestrator(
		f.store,
		registry,
		inference.NewEngine(logger, inference.Options{}),
		graph.NewBuilder(f.store, logger, inference.DefaultMinConfidence),
		NewProgressTracker(progressStore, logger),
		nil,
		logger,
	).WithRunLock(progressStore)

	runID, err := f.orch.Start(ctx, f.repo.ID)
	require.NoError(t, err)
	<-started

	locked, err := progressStore.Locked(f.repo.ID)
	require.NoError(t, err)
	assert.True(t, locked)

	_, err = other.RunAnalysis(ctx, f.repo.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrReconciliationConflict)
	assert.False(t, other.locks.Held(f.repo.ID), "in-process lock is released on conflict")
	_, ok := other.Tracker().Get(f.repo.ID)
	assert.False(t, ok, "rejected run must not record progress")

	close(release)
	f.orch.Wait()

	locked, err = progressStore.Locked(f.repo.ID)
	require.NoError(t, err)
	assert.False(t, locked)

	result, err := other.RunAnalysis(ctx, f.repo.ID)
	require.NoError(t, err)
	assert.NotEqual(t, runID, result.RunID)
	assert.Equal(t, models.StatusComplete, result.Status)

	locked, err = progressStore.Locked(f.repo.ID)
	require.NoError(t, err)
	assert.False(t, locked, "released after a successful run")
}

func TestRunAnalysis_Cancelled(t *testing.T) {
	f := newFixture(t, builtins(), firebaseRepo)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.orch.RunAnalysis(ctx, f.repo.ID)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.StatusFailed, result.Status)

	_, err = f.orch.RunAnalysis(context.Background(), f.repo.ID)
	assert.NoError(t, err)
}

type recordingMirror struct {
	nodes, edges int
}

func (m *recordingMirror) SyncRepository(ctx context.Context, repoID string, nodes []*models.Node, edges []*models.Edge) error {
	m.nodes, m.edges = len(nodes), len(edges)
	return nil
}

func (m *recordingMirror) Close(ctx context.Context) error { return nil }

func TestRunAnalysis_SyncsMirror(t *testing.T) {
	f := newFixture(t, builtins(), firebaseRepo)
	mirror := &recordingMirror{}
	f.orch.WithMirror(mirror)

	_, err := f.orch.RunAnalysis(context.Background(), f.repo.ID)
	require.NoError(t, err)

	nodes, err := f.store.ListNodes(context.Background(), f.repo.ID)
	require.NoError(t, err)
	assert.Equal(t, len(nodes), mirror.nodes)
	assert.Greater(t, mirror.edges, 0)
}
