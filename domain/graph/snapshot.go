package graph

// Snapshot is an immutable copy of the full node and edge lists at one
// moment. Constructors deep copy their input so later edits to the live graph
// never reach a stored snapshot.
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NewSnapshot captures a deep copy of nodes and edges.
func NewSnapshot(nodes []Node, edges []Edge) Snapshot {
	return Snapshot{
		Nodes: CloneNodes(nodes),
		Edges: CloneEdges(edges),
	}
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	return NewSnapshot(s.Nodes, s.Edges)
}

// Diff summarises what changed between two graphs.
type Diff struct {
	NodesAdded   int `json:"nodes_added"`
	NodesRemoved int `json:"nodes_removed"`
	NodesUpdated int `json:"nodes_updated"`
	EdgesAdded   int `json:"edges_added"`
	EdgesRemoved int `json:"edges_removed"`
	EdgesUpdated int `json:"edges_updated"`
}

// IsEmpty reports whether the diff carries no change.
func (d Diff) IsEmpty() bool {
	return d == Diff{}
}

// Compare counts added, removed and updated elements going from before to
// after. Elements are matched by id and compared by fingerprint.
func Compare(before, after Snapshot) Diff {
	var d Diff

	oldNodes := make(map[string]string, len(before.Nodes))
	for _, n := range before.Nodes {
		oldNodes[n.ID] = NodeFingerprint(n)
	}
	for _, n := range after.Nodes {
		fp, ok := oldNodes[n.ID]
		switch {
		case !ok:
			d.NodesAdded++
		case fp != NodeFingerprint(n):
			d.NodesUpdated++
		}
		delete(oldNodes, n.ID)
	}
	d.NodesRemoved = len(oldNodes)

	oldEdges := make(map[string]Edge, len(before.Edges))
	for _, e := range before.Edges {
		oldEdges[e.ID] = e
	}
	for _, e := range after.Edges {
		prev, ok := oldEdges[e.ID]
		switch {
		case !ok:
			d.EdgesAdded++
		case prev != e:
			d.EdgesUpdated++
		}
		delete(oldEdges, e.ID)
	}
	d.EdgesRemoved = len(oldEdges)

	return d
}
