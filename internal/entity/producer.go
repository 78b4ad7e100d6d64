package entity

import (
	"context"
	"sync"

	"github.com/rohankatakam/repograph/internal/models"
)

// Producer yields entities and relationships for a repository checkout.
// Built-in detectors and external plugins implement the same interface.
type Producer interface {
	Name() string
	Produce(ctx context.Context, repo *models.Repository, out *Set) error
}

// ProducerFunc adapts a function into a Producer
type ProducerFunc struct {
	ProducerName string
	Fn           func(ctx context.Context, repo *models.Repository, out *Set) error
}

func (f ProducerFunc) Name() string { return f.ProducerName }

func (f ProducerFunc) Produce(ctx context.Context, repo *models.Repository, out *Set) error {
	return f.Fn(ctx, repo, out)
}

// Stage is one named pipeline step backed by one or more producers
type Stage struct {
	Name      string
	Producers []Producer
}

// Registry holds the ordered producer stages
type Registry struct {
	mu     sync.RWMutex
	stages []Stage
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends p to the named stage, creating the stage at the end if
// it does not exist yet.
func (r *Registry) Register(stage string, p Producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.stages {
		if r.stages[i].Name == stage {
			r.stages[i].Producers = append(r.stages[i].Producers, p)
			return
		}
	}
	r.stages = append(r.stages, Stage{Name: stage, Producers: []Producer{p}})
}

// Stages returns a copy of the ordered stages
func (r *Registry) Stages() []Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Stage, len(r.stages))
	for i, s := range r.stages {
		out[i] = Stage{Name: s.Name, Producers: append([]Producer(nil), s.Producers...)}
	}
	return out
}
