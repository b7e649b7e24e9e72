// Package ports declares the collaborators the application layer depends on.
package ports

import (
	"context"

	"github.com/Itzadetunji/mind-map-sub001/application/autosave"
	"github.com/Itzadetunji/mind-map-sub001/domain/project"
)

// ProjectStore loads and saves mind-map projects. It satisfies
// autosave.Persister.
type ProjectStore interface {
	GetProject(ctx context.Context, id string) (*project.Project, error)
	UpdateProject(ctx context.Context, update project.Update) (*project.Project, error)
}

var _ autosave.Persister = ProjectStore(nil)

// SaveNotifier fans save outcomes out to whoever is watching a session.
type SaveNotifier interface {
	SaveSucceeded(sessionID string, result autosave.Result)
	SaveFailed(sessionID string, err error)
	SessionClosed(sessionID string)
}

// NopNotifier discards every notification.
type NopNotifier struct{}

func (NopNotifier) SaveSucceeded(string, autosave.Result) {}
func (NopNotifier) SaveFailed(string, error)              {}
func (NopNotifier) SessionClosed(string)                  {}

// HealthChecker reports whether a dependency is ready to serve.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Notifiers fans each notification out to every notifier in order.
type Notifiers []SaveNotifier

func (n Notifiers) SaveSucceeded(sessionID string, result autosave.Result) {
	for _, notifier := range n {
		notifier.SaveSucceeded(sessionID, result)
	}
}

func (n Notifiers) SaveFailed(sessionID string, err error) {
	for _, notifier := range n {
		notifier.SaveFailed(sessionID, err)
	}
}

func (n Notifiers) SessionClosed(sessionID string) {
	for _, notifier := range n {
		notifier.SessionClosed(sessionID)
	}
}
