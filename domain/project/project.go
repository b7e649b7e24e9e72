// Package project describes the persisted mind-map project record and the
// partial update the editor sends back to the store.
package project

import (
	"time"

	"github.com/Itzadetunji/mind-map-sub001/domain/graph"
)

// GraphData is the graph payload stored with a project.
type GraphData struct {
	Nodes []graph.Node `json:"nodes"`
	Edges []graph.Edge `json:"edges"`
}

// Clone returns a deep copy with non-nil lists.
func (g GraphData) Clone() GraphData {
	return GraphData{
		Nodes: graph.CloneNodes(g.Nodes),
		Edges: graph.CloneEdges(g.Edges),
	}
}

// Project is a stored mind map owned by a user.
type Project struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Title     string    `json:"title"`
	GraphData GraphData `json:"graph_data"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the project.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	c := *p
	c.GraphData = p.GraphData.Clone()
	return &c
}

// Update is the partial write sent by autosave. A nil Title leaves the stored
// title unchanged; the graph is always replaced in full.
type Update struct {
	ID        string    `json:"id"`
	Title     *string   `json:"title,omitempty"`
	GraphData GraphData `json:"graph_data"`
}

// Apply writes the update onto p and stamps it with now.
func (u Update) Apply(p *Project, now time.Time) {
	if u.Title != nil {
		p.Title = *u.Title
	}
	p.GraphData = u.GraphData.Clone()
	p.UpdatedAt = now
}
