// Package history keeps bounded undo and redo stacks of graph snapshots for
// one editor.
package history

import (
	"sync"

	"github.com/Itzadetunji/mind-map-sub001/domain/graph"
)

// DefaultLimit is the number of undo steps kept when no limit is given.
const DefaultLimit = 50

// State is a copy of both stacks. Past is ordered oldest first; Future is
// ordered nearest-undone first.
type State struct {
	Past   []graph.Snapshot `json:"past"`
	Future []graph.Snapshot `json:"future"`
}

// Manager owns the undo and redo stacks. It is safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	limit  int
	past   []graph.Snapshot
	future []graph.Snapshot
}

// NewManager creates a history manager keeping at most limit undo steps.
// A non-positive limit selects DefaultLimit.
func NewManager(limit int) *Manager {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Manager{limit: limit}
}

// Limit returns the maximum number of undo steps kept.
func (m *Manager) Limit() int {
	return m.limit
}

// TakeSnapshot records the graph as it is before a mutation. The oldest entry
// is evicted once the limit is exceeded, and the redo stack is cleared.
func (m *Manager) TakeSnapshot(nodes []graph.Node, edges []graph.Edge) {
	snap := graph.NewSnapshot(nodes, edges)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.past = m.pushBounded(m.past, snap)
	m.future = nil
}

// Undo moves one step back. The current graph goes onto the front of the redo
// stack and the most recent snapshot is returned. It returns false when there
// is nothing to undo.
func (m *Manager) Undo(currentNodes []graph.Node, currentEdges []graph.Edge) (graph.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.past) == 0 {
		return graph.Snapshot{}, false
	}

	last := len(m.past) - 1
	previous := m.past[last]
	m.past[last] = graph.Snapshot{}
	m.past = m.past[:last]

	current := graph.NewSnapshot(currentNodes, currentEdges)
	m.future = append([]graph.Snapshot{current}, m.future...)

	return previous, true
}

// Redo moves one step forward. The current graph goes onto the end of the undo
// stack, subject to the same limit as TakeSnapshot. It returns false when
// there is nothing to redo.
func (m *Manager) Redo(currentNodes []graph.Node, currentEdges []graph.Edge) (graph.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.future) == 0 {
		return graph.Snapshot{}, false
	}

	next := m.future[0]
	m.future[0] = graph.Snapshot{}
	m.future = m.future[1:]
	if len(m.future) == 0 {
		m.future = nil
	}

	current := graph.NewSnapshot(currentNodes, currentEdges)
	m.past = m.pushBounded(m.past, current)

	return next, true
}

// CanUndo reports whether Undo would return a snapshot.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.past) > 0
}

// CanRedo reports whether Redo would return a snapshot.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.future) > 0
}

// Depth returns the sizes of the undo and redo stacks.
func (m *Manager) Depth() (past, future int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.past), len(m.future)
}

// Reset drops both stacks, for example when a different project is opened.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.past = nil
	m.future = nil
}

// State returns a deep copy of both stacks.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := State{
		Past:   make([]graph.Snapshot, len(m.past)),
		Future: make([]graph.Snapshot, len(m.future)),
	}
	for i, s := range m.past {
		state.Past[i] = s.Clone()
	}
	for i, s := range m.future {
		state.Future[i] = s.Clone()
	}
	return state
}

// pushBounded appends snap and evicts from the front past the limit.
func (m *Manager) pushBounded(stack []graph.Snapshot, snap graph.Snapshot) []graph.Snapshot {
	stack = append(stack, snap)
	over := len(stack) - m.limit
	if over <= 0 {
		return stack
	}
	n := copy(stack, stack[over:])
	for i := n; i < len(stack); i++ {
		stack[i] = graph.Snapshot{}
	}
	return stack[:n]
}
