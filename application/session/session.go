// Package session hosts editor sessions: the live graph of one open project
// together with its undo history and autosave synchronizer.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Itzadetunji/mind-map-sub001/application/autosave"
	"github.com/Itzadetunji/mind-map-sub001/application/ports"
	"github.com/Itzadetunji/mind-map-sub001/domain/graph"
	"github.com/Itzadetunji/mind-map-sub001/domain/history"
	"github.com/Itzadetunji/mind-map-sub001/domain/project"
	pkgerrors "github.com/Itzadetunji/mind-map-sub001/pkg/errors"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = pkgerrors.NewConflictError("editor session is closed").WithCode(pkgerrors.CodeSessionClosed)

// SaveState is the outcome of the most recent persist attempt.
type SaveState string

const (
	SaveStateIdle   SaveState = "idle"
	SaveStateSaved  SaveState = "saved"
	SaveStateFailed SaveState = "failed"
)

// SaveStatus describes the most recent persist attempt.
type SaveStatus struct {
	State SaveState  `json:"state"`
	At    *time.Time `json:"at,omitempty"`
	Error string     `json:"error,omitempty"`
}

// NodePatch is a partial node update. Data keys are merged into the existing
// data; a nil value removes the key.
type NodePatch struct {
	Type     *string         `json:"type,omitempty"`
	Position *graph.Position `json:"position,omitempty"`
	Data     map[string]any  `json:"data,omitempty"`
}

// View is a point-in-time copy of a session for rendering.
type View struct {
	SessionID string       `json:"session_id"`
	ProjectID string       `json:"project_id"`
	Title     string       `json:"title"`
	Nodes     []graph.Node `json:"nodes"`
	Edges     []graph.Edge `json:"edges"`
	CanUndo   bool         `json:"can_undo"`
	CanRedo   bool         `json:"can_redo"`
	UndoDepth int          `json:"undo_depth"`
	RedoDepth int          `json:"redo_depth"`
	Pending   bool         `json:"save_pending"`
	Dirty     bool         `json:"dirty"`
	LastSave  SaveStatus   `json:"last_save"`
}

// Config assembles a Session.
type Config struct {
	ID              string
	UserID          string
	ProjectID       string
	Persister       autosave.Persister
	HistoryLimit    int
	AutosaveOptions []autosave.Option
	Notifier        ports.SaveNotifier
	Clock           autosave.Clock
	Logger          *zap.Logger
}

// Session is the state container for one open project. Every edit updates the
// live graph and is forwarded to the autosave synchronizer; structural edits
// record an undo snapshot first.
type Session struct {
	id        string
	userID    string
	projectID string
	openedAt  time.Time
	clock     autosave.Clock
	notifier  ports.SaveNotifier
	logger    *zap.Logger

	mu         sync.Mutex
	title      string
	nodes      []graph.Node
	edges      []graph.Edge
	history    *history.Manager
	autosave   *autosave.Synchronizer
	lastActive time.Time
	closed     bool

	// retiring is set while Retire flushes; a Close arriving meanwhile is
	// finished by Retire.
	retiring       bool
	closeRequested bool

	statusMu sync.RWMutex
	status   SaveStatus
}

// New builds a session. The graph stays empty and autosave stays gated until
// SetProject is called.
func New(cfg Config) *Session {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Clock == nil {
		cfg.Clock = autosave.SystemClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = ports.NopNotifier{}
	}

	now := cfg.Clock.Now()
	s := &Session{
		id:         cfg.ID,
		userID:     cfg.UserID,
		projectID:  cfg.ProjectID,
		openedAt:   now,
		clock:      cfg.Clock,
		notifier:   cfg.Notifier,
		logger:     cfg.Logger.With(zap.String("session_id", cfg.ID), zap.String("project_id", cfg.ProjectID)),
		nodes:      []graph.Node{},
		edges:      []graph.Edge{},
		history:    history.NewManager(cfg.HistoryLimit),
		lastActive: now,
		status:     SaveStatus{State: SaveStateIdle},
	}

	opts := append([]autosave.Option{
		autosave.WithClock(cfg.Clock),
		autosave.WithLogger(cfg.Logger),
	}, cfg.AutosaveOptions...)
	opts = append(opts, autosave.WithListener(s))
	s.autosave = autosave.New(cfg.ProjectID, cfg.Persister, opts...)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// UserID returns the owner of the session.
func (s *Session) UserID() string { return s.userID }

// ProjectID returns the project being edited.
func (s *Session) ProjectID() string { return s.projectID }

// OpenedAt returns when the session was created.
func (s *Session) OpenedAt() time.Time { return s.openedAt }

// LastActive returns the time of the most recent edit or view.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// SetProject installs a freshly loaded project. History is cleared and the
// autosave baseline is set to the loaded state, so loading never saves.
func (s *Session) SetProject(p *project.Project) error {
	if p == nil {
		return pkgerrors.NewValidationError("project is required")
	}
	if p.ID != s.projectID {
		return pkgerrors.NewConflictError("project does not belong to this session")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.title = p.Title
	s.nodes = graph.CloneNodes(p.GraphData.Nodes)
	s.edges = graph.CloneEdges(p.GraphData.Edges)
	s.history.Reset()
	s.autosave.Load(s.title, s.nodes, s.edges)
	s.lastActive = s.clock.Now()
	return nil
}

// SetTitle renames the project. Titles are not part of undo history.
func (s *Session) SetTitle(title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.title = title
	s.autosave.NotifyTitleChanged(title)
	s.lastActive = s.clock.Now()
	return nil
}

// ApplyNodes replaces the node list as delivered by the renderer, for example
// on drag frames or selection changes. No undo snapshot is taken.
func (s *Session) ApplyNodes(nodes []graph.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.setNodesLocked(graph.CloneNodes(nodes))
	return nil
}

// ApplyEdges replaces the edge list as delivered by the renderer. No undo
// snapshot is taken.
func (s *Session) ApplyEdges(edges []graph.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.setEdgesLocked(graph.CloneEdges(edges))
	return nil
}

// AddNode appends a node and returns it with its id filled in.
func (s *Session) AddNode(node graph.Node) (graph.Node, error) {
	if node.ID == "" {
		node.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return graph.Node{}, ErrClosed
	}
	if graph.IndexOfNode(s.nodes, node.ID) >= 0 {
		return graph.Node{}, pkgerrors.NewConflictError("node already exists").
			WithDetails(map[string]interface{}{"node_id": node.ID})
	}

	s.history.TakeSnapshot(s.nodes, s.edges)
	added := node.Clone()
	next := make([]graph.Node, len(s.nodes), len(s.nodes)+1)
	copy(next, s.nodes)
	s.setNodesLocked(append(next, added))
	return added.Clone(), nil
}

// UpdateNode applies a patch to one node. A patch that changes nothing
// records no snapshot.
func (s *Session) UpdateNode(id string, patch NodePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	idx := graph.IndexOfNode(s.nodes, id)
	if idx < 0 {
		return nodeNotFound(id)
	}

	updated := s.nodes[idx].Clone()
	if patch.Type != nil {
		updated.Type = *patch.Type
	}
	if patch.Position != nil {
		updated.Position = *patch.Position
	}
	if patch.Data != nil {
		if updated.Data == nil {
			updated.Data = make(map[string]any, len(patch.Data))
		}
		merged := (graph.Node{Data: patch.Data}).Clone().Data
		for k, v := range merged {
			if v == nil {
				delete(updated.Data, k)
				continue
			}
			updated.Data[k] = v
		}
	}
	if graph.NodeFingerprint(updated) == graph.NodeFingerprint(s.nodes[idx]) {
		return nil
	}

	s.history.TakeSnapshot(s.nodes, s.edges)
	next := make([]graph.Node, len(s.nodes))
	copy(next, s.nodes)
	next[idx] = updated
	s.setNodesLocked(next)
	return nil
}

// DeleteNode removes a node and every edge touching it.
func (s *Session) DeleteNode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	idx := graph.IndexOfNode(s.nodes, id)
	if idx < 0 {
		return nodeNotFound(id)
	}

	s.history.TakeSnapshot(s.nodes, s.edges)

	nodes := make([]graph.Node, 0, len(s.nodes)-1)
	nodes = append(nodes, s.nodes[:idx]...)
	nodes = append(nodes, s.nodes[idx+1:]...)

	edges := make([]graph.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		if !e.Touches(id) {
			edges = append(edges, e)
		}
	}

	s.setNodesLocked(nodes)
	if len(edges) != len(s.edges) {
		s.setEdgesLocked(edges)
	}
	return nil
}

// Connect adds an edge between two existing nodes. An empty edge id is
// generated.
func (s *Session) Connect(edge graph.Edge) (graph.Edge, error) {
	if edge.Source == "" || edge.Target == "" {
		return graph.Edge{}, pkgerrors.NewValidationError("edge source and target are required")
	}
	if edge.ID == "" {
		edge.ID = "e-" + uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return graph.Edge{}, ErrClosed
	}
	if graph.IndexOfEdge(s.edges, edge.ID) >= 0 {
		return graph.Edge{}, pkgerrors.NewConflictError("edge already exists").
			WithDetails(map[string]interface{}{"edge_id": edge.ID})
	}
	for _, endpoint := range []string{edge.Source, edge.Target} {
		if graph.IndexOfNode(s.nodes, endpoint) < 0 {
			return graph.Edge{}, nodeNotFound(endpoint)
		}
	}

	s.history.TakeSnapshot(s.nodes, s.edges)
	next := make([]graph.Edge, len(s.edges), len(s.edges)+1)
	copy(next, s.edges)
	s.setEdgesLocked(append(next, edge))
	return edge, nil
}

// DeleteEdge removes one edge.
func (s *Session) DeleteEdge(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	idx := graph.IndexOfEdge(s.edges, id)
	if idx < 0 {
		return pkgerrors.NewNotFoundError("edge").
			WithDetails(map[string]interface{}{"edge_id": id})
	}

	s.history.TakeSnapshot(s.nodes, s.edges)
	next := make([]graph.Edge, 0, len(s.edges)-1)
	next = append(next, s.edges[:idx]...)
	next = append(next, s.edges[idx+1:]...)
	s.setEdgesLocked(next)
	return nil
}

// ReplaceGraph swaps in a whole new graph as one undoable step.
func (s *Session) ReplaceGraph(nodes []graph.Node, edges []graph.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.history.TakeSnapshot(s.nodes, s.edges)
	s.setNodesLocked(graph.CloneNodes(nodes))
	s.setEdgesLocked(graph.CloneEdges(edges))
	return nil
}

// TakeSnapshot records the current graph in undo history. Renderers call it
// before gestures they apply through ApplyNodes, such as a drag.
func (s *Session) TakeSnapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.history.TakeSnapshot(s.nodes, s.edges)
	s.lastActive = s.clock.Now()
	return nil
}

// Undo restores the previous snapshot. It reports false when there is
// nothing to undo.
func (s *Session) Undo() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	snap, ok := s.history.Undo(s.nodes, s.edges)
	if !ok {
		return false, nil
	}
	s.setNodesLocked(snap.Nodes)
	s.setEdgesLocked(snap.Edges)
	return true, nil
}

// Redo reapplies the most recently undone snapshot. It reports false when
// there is nothing to redo.
func (s *Session) Redo() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	snap, ok := s.history.Redo(s.nodes, s.edges)
	if !ok {
		return false, nil
	}
	s.setNodesLocked(snap.Nodes)
	s.setEdgesLocked(snap.Edges)
	return true, nil
}

// Flush persists pending changes now.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	// Not under s.mu: the save listener takes statusMu from the flushing
	// goroutine.
	return s.autosave.ForceFlush(ctx)
}

// Close ends the session, optionally flushing first. The synchronizer is
// closed even when the flush fails. Closing twice is a no-op.
func (s *Session) Close(ctx context.Context, flush bool) error {
	s.mu.Lock()
	if s.closed {
		if s.retiring {
			s.closeRequested = true
		}
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var err error
	if flush {
		err = s.autosave.ForceFlush(ctx)
		if err != nil {
			s.logger.Error("Final flush failed, unsaved changes dropped", zap.Error(err))
		}
	}
	s.autosave.Close()
	s.notifier.SessionClosed(s.id)
	s.logger.Info("Editor session closed", zap.Bool("flushed", flush && err == nil))
	return err
}

// Retire closes the session only if its pending changes are saved. Edits are
// rejected while the final flush runs. When the flush fails the session is
// reopened with its unsaved changes and the error is returned.
func (s *Session) Retire(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	s.retiring = true
	s.mu.Unlock()

	err := s.autosave.ForceFlush(ctx)

	s.mu.Lock()
	s.retiring = false
	reopen := err != nil && !s.closeRequested
	if reopen {
		s.closed = false
	}
	s.mu.Unlock()

	if reopen {
		s.logger.Warn("Session kept open, final flush failed", zap.Error(err))
		return err
	}
	s.autosave.Close()
	s.notifier.SessionClosed(s.id)
	s.logger.Info("Editor session retired", zap.Bool("flushed", err == nil))
	return err
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Nodes returns a copy of the live nodes. Unlike View it does not count as
// activity.
func (s *Session) Nodes() []graph.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return graph.CloneNodes(s.nodes)
}

// View returns a copy of the session state.
func (s *Session) View() View {
	s.mu.Lock()
	undoDepth, redoDepth := s.history.Depth()
	v := View{
		SessionID: s.id,
		ProjectID: s.projectID,
		Title:     s.title,
		Nodes:     graph.CloneNodes(s.nodes),
		Edges:     graph.CloneEdges(s.edges),
		CanUndo:   undoDepth > 0,
		CanRedo:   redoDepth > 0,
		UndoDepth: undoDepth,
		RedoDepth: redoDepth,
	}
	s.lastActive = s.clock.Now()
	s.mu.Unlock()

	v.Pending = s.autosave.Pending()
	v.Dirty = s.autosave.Dirty()
	v.LastSave = s.SaveStatus()
	return v
}

// SaveStatus returns the outcome of the most recent persist attempt.
func (s *Session) SaveStatus() SaveStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// OnSaved implements autosave.Listener.
func (s *Session) OnSaved(r autosave.Result) {
	at := r.SavedAt
	s.statusMu.Lock()
	s.status = SaveStatus{State: SaveStateSaved, At: &at}
	s.statusMu.Unlock()

	s.notifier.SaveSucceeded(s.id, r)
}

// OnSaveFailed implements autosave.Listener.
func (s *Session) OnSaveFailed(err error) {
	at := s.clock.Now()
	s.statusMu.Lock()
	s.status = SaveStatus{State: SaveStateFailed, At: &at, Error: err.Error()}
	s.statusMu.Unlock()

	s.notifier.SaveFailed(s.id, err)
}

func (s *Session) setNodesLocked(nodes []graph.Node) {
	s.nodes = nodes
	s.autosave.NotifyNodesChanged(nodes)
	s.lastActive = s.clock.Now()
}

func (s *Session) setEdgesLocked(edges []graph.Edge) {
	s.edges = edges
	s.autosave.NotifyEdgesChanged(edges)
	s.lastActive = s.clock.Now()
}

func nodeNotFound(id string) error {
	return pkgerrors.NewNotFoundError("node").
		WithDetails(map[string]interface{}{"node_id": id})
}
