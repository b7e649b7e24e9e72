package autosave

import "github.com/Itzadetunji/mind-map-sub001/domain/graph"

// Baseline identifies the last state known to be persisted.
type Baseline struct {
	Title            string `json:"title"`
	NodesFingerprint string `json:"nodes_fingerprint"`
	EdgesFingerprint string `json:"edges_fingerprint"`
}

// NewBaseline fingerprints a title, node list and edge list.
func NewBaseline(title string, nodes []graph.Node, edges []graph.Edge) Baseline {
	return Baseline{
		Title:            title,
		NodesFingerprint: graph.NodesFingerprint(nodes),
		EdgesFingerprint: graph.EdgesFingerprint(edges),
	}
}

// Changes lists which parts of the state differ from a baseline.
type Changes struct {
	Title bool `json:"title"`
	Nodes bool `json:"nodes"`
	Edges bool `json:"edges"`
}

// Any reports whether anything changed.
func (c Changes) Any() bool {
	return c.Title || c.Nodes || c.Edges
}

// Fields names the changed parts, for logs and notifications.
func (c Changes) Fields() []string {
	fields := make([]string, 0, 3)
	if c.Title {
		fields = append(fields, "title")
	}
	if c.Nodes {
		fields = append(fields, "nodes")
	}
	if c.Edges {
		fields = append(fields, "edges")
	}
	return fields
}

// Compare reports how current differs from b.
func (b Baseline) Compare(current Baseline) Changes {
	return Changes{
		Title: b.Title != current.Title,
		Nodes: b.NodesFingerprint != current.NodesFingerprint,
		Edges: b.EdgesFingerprint != current.EdgesFingerprint,
	}
}
