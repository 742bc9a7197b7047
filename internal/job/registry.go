package job

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownJobType is returned when a record's type has no registered
// rehydrator.
var ErrUnknownJobType = errors.New("unknown job type")

// Rehydrator rebuilds an executable job from its persisted record.
type Rehydrator func(rec Record) (Job, error)

// Registry maps job types to rehydrators so that recovered records can run.
type Registry struct {
	mu          sync.RWMutex
	rehydrators map[string]Rehydrator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rehydrators: make(map[string]Rehydrator)}
}

// Register binds a job type to its rehydrator, replacing any previous one.
func (r *Registry) Register(jobType string, fn Rehydrator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rehydrators[jobType] = fn
}

// Rehydrate rebuilds the job stored in rec.
func (r *Registry) Rehydrate(rec Record) (Job, error) {
	r.mu.RLock()
	fn, ok := r.rehydrators[rec.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, rec.Type)
	}
	return fn(rec)
}
