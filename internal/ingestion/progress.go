package ingestion

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repograph/internal/models"
)

// Detail keys
const (
	DetailErrors = "errors"
	DetailSteps  = "steps"
)

// ProgressStore persists progress so other processes can poll it
type ProgressStore interface {
	Save(p *models.AnalysisProgress) error
	Load(repoID string) (*models.AnalysisProgress, error)
	Delete(repoID string) error
	List() ([]*models.AnalysisProgress, error)
}

// ProgressTracker keeps one AnalysisProgress per repository. Readers get
// copies; nested detail maps are replaced, never mutated, so a copy stays
// valid after the tracker moves on.
type ProgressTracker struct {
	mu     sync.RWMutex
	runs   map[string]*models.AnalysisProgress
	store  ProgressStore
	logger *logrus.Logger
	now    func() time.Time
}

// NewProgressTracker creates a tracker. store may be nil.
func NewProgressTracker(store ProgressStore, logger *logrus.Logger) *ProgressTracker {
	return &ProgressTracker{
		runs:   make(map[string]*models.AnalysisProgress),
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Start replaces any previous progress of the repository with a pending run
func (t *ProgressTracker) Start(repoID, runID string, totalSteps int) *models.AnalysisProgress {
	now := t.now()
	p := &models.AnalysisProgress{
		RepositoryID:  repoID,
		RunID:         runID,
		Status:        models.StatusPending,
		TotalSteps:    totalSteps,
		StatusMessage: "queued",
		StartedAt:     now,
		LastUpdated:   now,
		Details:       map[string]interface{}{},
	}
	t.mu.Lock()
	t.runs[repoID] = p
	snapshot := p.Clone()
	t.mu.Unlock()

	t.persist(snapshot)
	return snapshot
}

// Update moves the run to a step and marks it running
func (t *ProgressTracker) Update(repoID string, step int, stepName, message string) {
	t.mutate(repoID, func(p *models.AnalysisProgress) {
		p.Status = models.StatusRunning
		p.CurrentStep = step
		p.StepName = stepName
		p.StatusMessage = message
		if p.TotalSteps > 0 {
			p.ProgressPercent = float64(step) / float64(p.TotalSteps) * 100
		}
	})
}

// UpdateStatus changes only the status and message
func (t *ProgressTracker) UpdateStatus(repoID string, status models.AnalysisStatus, message string) {
	t.mutate(repoID, func(p *models.AnalysisProgress) {
		p.Status = status
		p.StatusMessage = message
	})
}

// SetDetail stores one detail value
func (t *ProgressTracker) SetDetail(repoID, key string, value interface{}) {
	t.mutate(repoID, func(p *models.AnalysisProgress) {
		p.Details[key] = value
	})
}

// RecordError adds a step failure under details["errors"][step]
func (t *ProgressTracker) RecordError(repoID, step string, err error) {
	t.mutate(repoID, func(p *models.AnalysisProgress) {
		errs := map[string]string{}
		if old, ok := p.Details[DetailErrors].(map[string]string); ok {
			for k, v := range old {
				errs[k] = v
			}
		}
		errs[step] = err.Error()
		p.Details[DetailErrors] = errs
	})
}

// RecordStep stores the counts of a finished step under details["steps"][step]
func (t *ProgressTracker) RecordStep(repoID, step string, counts map[string]int) {
	t.mutate(repoID, func(p *models.AnalysisProgress) {
		steps := map[string]map[string]int{}
		if old, ok := p.Details[DetailSteps].(map[string]map[string]int); ok {
			for k, v := range old {
				steps[k] = v
			}
		}
		steps[step] = counts
		p.Details[DetailSteps] = steps
	})
}

// Complete finalizes the run successfully
func (t *ProgressTracker) Complete(repoID, message string) {
	t.mutate(repoID, func(p *models.AnalysisProgress) {
		p.Status = models.StatusComplete
		p.StatusMessage = message
		p.CurrentStep = p.TotalSteps
		p.ProgressPercent = 100
	})
}

// Fail finalizes the run as failed
func (t *ProgressTracker) Fail(repoID string, err error) {
	t.mutate(repoID, func(p *models.AnalysisProgress) {
		p.Status = models.StatusFailed
		p.StatusMessage = err.Error()
	})
}

// Get returns a copy of the repository's progress. Runs of other processes
// are read from the store.
func (t *ProgressTracker) Get(repoID string) (*models.AnalysisProgress, bool) {
	t.mu.RLock()
	p, ok := t.runs[repoID]
	var snapshot *models.AnalysisProgress
	if ok {
		snapshot = p.Clone()
	}
	t.mu.RUnlock()
	if ok {
		return snapshot, true
	}

	if t.store == nil {
		return nil, false
	}
	stored, err := t.store.Load(repoID)
	if err != nil || stored == nil {
		return nil, false
	}
	return stored, true
}

// Cleanup drops finished runs last updated more than maxAge ago and
// returns how many were removed
func (t *ProgressTracker) Cleanup(maxAge time.Duration) int {
	cutoff := t.now().Add(-maxAge)
	stale := func(p *models.AnalysisProgress) bool {
		return p.Status.Terminal() && p.LastUpdated.Before(cutoff)
	}

	removed := make(map[string]struct{})
	t.mu.Lock()
	for id, p := range t.runs {
		if stale(p) {
			delete(t.runs, id)
			removed[id] = struct{}{}
		}
	}
	t.mu.Unlock()

	if t.store != nil {
		stored, err := t.store.List()
		if err != nil {
			t.logger.WithError(err).Warn("failed to list stored progress")
		}
		for _, p := range stored {
			if !stale(p) {
				continue
			}
			if err := t.store.Delete(p.RepositoryID); err != nil {
				t.logger.WithError(err).WithField("repository_id", p.RepositoryID).Warn("failed to delete stored progress")
				continue
			}
			removed[p.RepositoryID] = struct{}{}
		}
	}

	if len(removed) > 0 {
		t.logger.WithField("removed", len(removed)).Debug("cleaned up old progress")
	}
	return len(removed)
}

func (t *ProgressTracker) mutate(repoID string, fn func(p *models.AnalysisProgress)) {
	t.mu.Lock()
	p, ok := t.runs[repoID]
	if !ok {
		t.mu.Unlock()
		return
	}
	fn(p)
	p.LastUpdated = t.now()
	snapshot := p.Clone()
	t.mu.Unlock()

	t.persist(snapshot)
}

func (t *ProgressTracker) persist(p *models.AnalysisProgress) {
	if t.store == nil {
		return
	}
	if err := t.store.Save(p); err != nil {
		t.logger.WithError(err).WithField("repository_id", p.RepositoryID).Warn("failed to persist progress")
	}
}
