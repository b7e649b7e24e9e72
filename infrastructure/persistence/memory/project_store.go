// Package memory is an in-process project store used in development and
// tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Itzadetunji/mind-map-sub001/domain/project"
	pkgerrors "github.com/Itzadetunji/mind-map-sub001/pkg/errors"
)

// ProjectStore keeps projects in a map. Stored values are copied in and out.
type ProjectStore struct {
	mu       sync.RWMutex
	projects map[string]*project.Project
	now      func() time.Time
	writes   int
}

// NewProjectStore creates an empty store, optionally seeded.
func NewProjectStore(seed ...*project.Project) *ProjectStore {
	s := &ProjectStore{
		projects: make(map[string]*project.Project),
		now:      time.Now,
	}
	for _, p := range seed {
		s.Put(p)
	}
	return s
}

// Put inserts or replaces a project.
func (s *ProjectStore) Put(p *project.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p.Clone()
}

// GetProject returns a copy of the stored project.
func (s *ProjectStore) GetProject(ctx context.Context, id string) (*project.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.FromContext("get project", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("project")
	}
	return p.Clone(), nil
}

// UpdateProject applies the update to an existing project.
func (s *ProjectStore) UpdateProject(ctx context.Context, update project.Update) (*project.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.FromContext("update project", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[update.ID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("project")
	}
	update.Apply(p, s.now().UTC())
	s.writes++
	return p.Clone(), nil
}

// Writes returns how many updates have been applied.
func (s *ProjectStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Ping always succeeds.
func (s *ProjectStore) Ping(context.Context) error {
	return nil
}
