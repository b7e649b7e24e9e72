package autosave

import (
	"context"

	"github.com/Itzadetunji/mind-map-sub001/domain/graph"
)

// Event is a change notification delivered to a Synchronizer.
type Event interface {
	isEvent()
}

// NodesChanged carries the full node list after a change.
type NodesChanged struct {
	Nodes []graph.Node
}

// EdgesChanged carries the full edge list after a change.
type EdgesChanged struct {
	Edges []graph.Edge
}

// TitleChanged carries the new project title.
type TitleChanged struct {
	Title string
}

func (NodesChanged) isEvent() {}
func (EdgesChanged) isEvent() {}
func (TitleChanged) isEvent() {}

// Dispatch routes an event to the matching notify method.
func (s *Synchronizer) Dispatch(ev Event) {
	switch e := ev.(type) {
	case NodesChanged:
		s.NotifyNodesChanged(e.Nodes)
	case EdgesChanged:
		s.NotifyEdgesChanged(e.Edges)
	case TitleChanged:
		s.NotifyTitleChanged(e.Title)
	}
}

// Run drains events until the channel is closed or ctx is done.
func (s *Synchronizer) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.Dispatch(ev)
		}
	}
}
