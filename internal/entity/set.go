package entity

import (
	"sort"
	"sync"

	"github.com/rohankatakam/repograph/internal/models"
)

// Set accumulates entities and relationships for one repository run.
// Safe for concurrent use by producers scanning files in parallel.
type Set struct {
	mu            sync.Mutex
	entities      map[Ref]*Entity
	order         []Ref
	relationships []Relationship
	skipped       int
	skipReasons   []string
}

// NewSet creates an empty set
func NewSet() *Set {
	return &Set{entities: make(map[Ref]*Entity)}
}

// Add validates and stores an entity. A second entity with the same natural
// key replaces the first one's properties. Malformed entities are skipped and
// counted; Add reports whether the entity was kept.
func (s *Set) Add(e Entity) bool {
	if err := e.Validate(); err != nil {
		s.Skip(err.Error())
		return false
	}
	ref, _ := e.Ref()

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entities[ref]; ok {
		for k, v := range e.Properties {
			existing.Set(k, v)
		}
		if e.Confidence > existing.Confidence {
			existing.Confidence = e.Confidence
		}
		return true
	}
	cp := e
	cp.Properties = make(map[string]string, len(e.Properties))
	for k, v := range e.Properties {
		cp.Properties[k] = v
	}
	s.entities[ref] = &cp
	s.order = append(s.order, ref)
	return true
}

// Relate stores a producer-reported relationship after validating it
func (s *Set) Relate(r Relationship) bool {
	if err := r.Validate(); err != nil {
		s.Skip(err.Error())
		return false
	}
	s.mu.Lock()
	s.relationships = append(s.relationships, r)
	s.mu.Unlock()
	return true
}

// Skip counts an entity that could not be used
func (s *Set) Skip(reason string) {
	s.mu.Lock()
	s.skipped++
	if len(s.skipReasons) < 50 {
		s.skipReasons = append(s.skipReasons, reason)
	}
	s.mu.Unlock()
}

// Merge folds another set into s
func (s *Set) Merge(other *Set) {
	if other == nil || other == s {
		return
	}
	entities, relationships := other.Snapshot()
	for _, e := range entities {
		s.Add(e)
	}
	for _, r := range relationships {
		s.Relate(r)
	}
	other.mu.Lock()
	skipped, reasons := other.skipped, append([]string(nil), other.skipReasons...)
	other.mu.Unlock()

	s.mu.Lock()
	s.skipped += skipped
	for _, r := range reasons {
		if len(s.skipReasons) < 50 {
			s.skipReasons = append(s.skipReasons, r)
		}
	}
	s.mu.Unlock()
}

// Snapshot returns copies of the entities, sorted by kind then key, and the
// relationships in insertion order.
func (s *Set) Snapshot() ([]Entity, []Relationship) {
	s.mu.Lock()
	defer s.mu.Unlock()

	refs := append([]Ref(nil), s.order...)
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Kind != refs[j].Kind {
			return refs[i].Kind < refs[j].Kind
		}
		return refs[i].Key < refs[j].Key
	})

	entities := make([]Entity, 0, len(refs))
	for _, ref := range refs {
		e := *s.entities[ref]
		e.Properties = make(map[string]string, len(s.entities[ref].Properties))
		for k, v := range s.entities[ref].Properties {
			e.Properties[k] = v
		}
		entities = append(entities, e)
	}
	return entities, append([]Relationship(nil), s.relationships...)
}

// OfKind returns the entities of one kind, sorted by key
func (s *Set) OfKind(kind models.NodeType) []Entity {
	all, _ := s.Snapshot()
	out := make([]Entity, 0)
	for _, e := range all {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Lookup returns the entity for ref
func (s *Set) Lookup(ref Ref) (Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[ref]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// Len returns the number of distinct entities
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entities)
}

// Skipped returns the number of skipped entities and a sample of reasons
func (s *Set) Skipped() (int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped, append([]string(nil), s.skipReasons...)
}

// CountByKind returns entity counts per kind
func (s *Set) CountByKind() map[models.NodeType]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[models.NodeType]int)
	for ref := range s.entities {
		out[ref.Kind]++
	}
	return out
}
