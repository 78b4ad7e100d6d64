package ingestion

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/rohankatakam/repograph/internal/models"
)

const (
	progressBucket = "analysis_progress"
	lockBucket     = "analysis_locks"

	// DefaultLockTTL is how long a run lock survives a process that died
	// without releasing it
	DefaultLockTTL = 6 * time.Hour
)

// BoltProgressStore keeps progress in a bbolt file. The file is opened per
// operation so a running analysis and a polling CLI can share it.
type BoltProgressStore struct {
	path    string
	timeout time.Duration
	lockTTL time.Duration
	now     func() time.Time
}

// NewBoltProgressStore creates the file and bucket if needed
func NewBoltProgressStore(path string) (*BoltProgressStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create progress directory: %w", err)
	}
	s := &BoltProgressStore{path: path, timeout: 2 * time.Second, lockTTL: DefaultLockTTL, now: time.Now}
	err := s.update(progressBucket, func(b *bolt.Bucket) error { return nil })
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *BoltProgressStore) open(readOnly bool) (*bolt.DB, error) {
	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: s.timeout, ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("open progress store: %w", err)
	}
	return db, nil
}

func (s *BoltProgressStore) update(bucket string, fn func(b *bolt.Bucket) error) error {
	db, err := s.open(false)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		return fn(b)
	})
}

func (s *BoltProgressStore) view(bucket string, fn func(b *bolt.Bucket) error) error {
	db, err := s.open(true)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return fn(b)
	})
}

// Save stores the progress of one repository
func (s *BoltProgressStore) Save(p *models.AnalysisProgress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	return s.update(progressBucket, func(b *bolt.Bucket) error {
		return b.Put([]byte(p.RepositoryID), data)
	})
}

// Load returns the stored progress, or nil when there is none
func (s *BoltProgressStore) Load(repoID string) (*models.AnalysisProgress, error) {
	var out *models.AnalysisProgress
	err := s.view(progressBucket, func(b *bolt.Bucket) error {
		data := b.Get([]byte(repoID))
		if data == nil {
			return nil
		}
		out = &models.AnalysisProgress{}
		return json.Unmarshal(data, out)
	})
	return out, err
}

// Delete removes the stored progress of one repository
func (s *BoltProgressStore) Delete(repoID string) error {
	return s.update(progressBucket, func(b *bolt.Bucket) error {
		return b.Delete([]byte(repoID))
	})
}

// List returns every stored progress record
func (s *BoltProgressStore) List() ([]*models.AnalysisProgress, error) {
	var out []*models.AnalysisProgress
	err := s.view(progressBucket, func(b *bolt.Bucket) error {
		return b.ForEach(func(k, v []byte) error {
			p := &models.AnalysisProgress{}
			if err := json.Unmarshal(v, p); err != nil {
				return fmt.Errorf("decode progress %s: %w", k, err)
			}
			out = append(out, p)
			return nil
		})
	})
	return out, err
}

// runLock is the value stored under a repository key while a run holds it
type runLock struct {
	Owner      string    `json:"owner"`
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// WithLockTTL sets how old a run lock must be before another process may
// take it over
func (s *BoltProgressStore) WithLockTTL(ttl time.Duration) *BoltProgressStore {
	if ttl > 0 {
		s.lockTTL = ttl
	}
	return s
}

// TryLock records owner as the holder of the repository run lock. It
// returns false when another owner holds a lock younger than the TTL.
// bbolt allows one writer per file, so the check and the put are atomic
// across processes.
func (s *BoltProgressStore) TryLock(repoID, owner string) (bool, error) {
	acquired := false
	err := s.update(lockBucket, func(b *bolt.Bucket) error {
		if data := b.Get([]byte(repoID)); data != nil {
			var held runLock
			if err := json.Unmarshal(data, &held); err == nil &&
				held.Owner != owner && s.now().Sub(held.AcquiredAt) < s.lockTTL {
				return nil
			}
		}
		data, err := json.Marshal(runLock{Owner: owner, PID: os.Getpid(), AcquiredAt: s.now()})
		if err != nil {
			return fmt.Errorf("marshal run lock: %w", err)
		}
		acquired = true
		return b.Put([]byte(repoID), data)
	})
	if err != nil {
		return false, err
	}
	return acquired, nil
}

// Unlock releases the repository run lock if owner still holds it
func (s *BoltProgressStore) Unlock(repoID, owner string) error {
	return s.update(lockBucket, func(b *bolt.Bucket) error {
		data := b.Get([]byte(repoID))
		if data == nil {
			return nil
		}
		var held runLock
		if err := json.Unmarshal(data, &held); err == nil && held.Owner != owner {
			return nil
		}
		return b.Delete([]byte(repoID))
	})
}

// Locked reports whether any process holds a live run lock for the repository
func (s *BoltProgressStore) Locked(repoID string) (bool, error) {
	locked := false
	err := s.view(lockBucket, func(b *bolt.Bucket) error {
		data := b.Get([]byte(repoID))
		if data == nil {
			return nil
		}
		var held runLock
		if err := json.Unmarshal(data, &held); err != nil {
			return fmt.Errorf("decode run lock %s: %w", repoID, err)
		}
		locked = s.now().Sub(held.AcquiredAt) < s.lockTTL
		return nil
	})
	return locked, err
}
