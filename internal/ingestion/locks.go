package ingestion

import "sync"

// RepoLocks allows at most one analysis run per repository
type RepoLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewRepoLocks creates an empty lock table
func NewRepoLocks() *RepoLocks {
	return &RepoLocks{held: make(map[string]struct{})}
}

// TryAcquire takes the repository lock without waiting
func (l *RepoLocks) TryAcquire(repoID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[repoID]; ok {
		return false
	}
	l.held[repoID] = struct{}{}
	return true
}

// Release frees the repository lock
func (l *RepoLocks) Release(repoID string) {
	l.mu.Lock()
	delete(l.held, repoID)
	l.mu.Unlock()
}

// Held reports whether a run currently holds the repository lock
func (l *RepoLocks) Held(repoID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[repoID]
	return ok
}

// RunLocker is a repository lock shared between processes.
// BoltProgressStore implements it.
type RunLocker interface {
	TryLock(repoID, owner string) (bool, error)
	Unlock(repoID, owner string) error
}
