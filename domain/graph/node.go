// Package graph holds the mind-map element types shared by the editor core:
// nodes, edges, snapshots of both, and the fingerprints used to detect
// structural change.
package graph

import "math"

// Position is the canvas location of a node.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// IsFinite reports whether both coordinates are finite numbers.
func (p Position) IsFinite() bool {
	return isFinite(p.X) && isFinite(p.Y)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Node is a single mind-map element as the editor renders it. Type selects
// the renderer ("feature", "screen", "task", ...) and is not interpreted here.
type Node struct {
	ID       string         `json:"id" validate:"required,max=255"`
	Type     string         `json:"type" validate:"required,max=64"`
	Position Position       `json:"position"`
	Data     map[string]any `json:"data,omitempty"`
}

// Clone returns a deep copy of the node including nested data values.
func (n Node) Clone() Node {
	n.Data = cloneData(n.Data)
	return n
}

// CloneNodes deep copies a node list. The result is never nil.
func CloneNodes(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// IndexOfNode returns the position of the node with the given id, or -1.
func IndexOfNode(nodes []Node, id string) int {
	for i := range nodes {
		if nodes[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneData(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies the container shapes produced by encoding/json. Scalars
// are immutable and returned as is.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneData(t)
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		if t == nil {
			return t
		}
		return append([]string(nil), t...)
	default:
		return v
	}
}
