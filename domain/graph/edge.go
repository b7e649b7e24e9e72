package graph

// Edge connects two nodes by id. The endpoints are plain references; nothing
// in this package requires them to exist.
type Edge struct {
	ID           string `json:"id" validate:"required,max=255"`
	Source       string `json:"source" validate:"required"`
	Target       string `json:"target" validate:"required"`
	Label        string `json:"label,omitempty"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// CloneEdges copies an edge list. The result is never nil.
func CloneEdges(edges []Edge) []Edge {
	out := make([]Edge, len(edges))
	copy(out, edges)
	return out
}

// IndexOfEdge returns the position of the edge with the given id, or -1.
func IndexOfEdge(edges []Edge, id string) int {
	for i := range edges {
		if edges[i].ID == id {
			return i
		}
	}
	return -1
}

// Touches reports whether the edge starts or ends at the node.
func (e Edge) Touches(nodeID string) bool {
	return e.Source == nodeID || e.Target == nodeID
}
