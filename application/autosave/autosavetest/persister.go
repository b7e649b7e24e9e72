package autosavetest

import (
	"context"
	"sync"
	"time"

	"github.com/Itzadetunji/mind-map-sub001/domain/project"
)

// Persister records every update it receives. Err, when set, is returned
// instead of saving.
type Persister struct {
	mu      sync.Mutex
	updates []project.Update
	err     error
}

// NewPersister returns an empty recording persister.
func NewPersister() *Persister {
	return &Persister{}
}

// FailWith makes subsequent calls return err. Pass nil to succeed again.
func (p *Persister) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// UpdateProject records the update.
func (p *Persister) UpdateProject(ctx context.Context, update project.Update) (*project.Project, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.updates = append(p.updates, update)
	if p.err != nil {
		return nil, p.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	saved := &project.Project{ID: update.ID}
	update.Apply(saved, time.Now())
	return saved, nil
}

// Calls returns the number of UpdateProject calls, failed ones included.
func (p *Persister) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.updates)
}

// Updates returns a copy of the recorded updates.
func (p *Persister) Updates() []project.Update {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]project.Update(nil), p.updates...)
}

// Last returns the most recent update.
func (p *Persister) Last() (project.Update, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.updates) == 0 {
		return project.Update{}, false
	}
	return p.updates[len(p.updates)-1], true
}
