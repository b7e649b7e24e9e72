package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Itzadetunji/mind-map-sub001/application/session"
	"github.com/Itzadetunji/mind-map-sub001/domain/graph"
	"github.com/Itzadetunji/mind-map-sub001/pkg/auth"
	pkgerrors "github.com/Itzadetunji/mind-map-sub001/pkg/errors"
)

// SessionHandler exposes editor sessions over HTTP.
type SessionHandler struct {
	manager *session.Manager
	errors  *pkgerrors.ErrorHandler
	logger  *zap.Logger
	strict  atomic.Bool
	stream  http.Handler
}

// NewSessionHandler creates a handler. strict turns on whole-graph
// validation of node and edge payloads.
func NewSessionHandler(manager *session.Manager, errs *pkgerrors.ErrorHandler, logger *zap.Logger, strict bool) *SessionHandler {
	h := &SessionHandler{manager: manager, errors: errs, logger: logger}
	h.strict.Store(strict)
	return h
}

// SetStrictValidation toggles graph validation at runtime.
func (h *SessionHandler) SetStrictValidation(on bool) {
	h.strict.Store(on)
}

// SetStream sets the handler for GET /sessions/{sessionID}/ws. Call before
// Routes.
func (h *SessionHandler) SetStream(stream http.Handler) {
	h.stream = stream
}

// Routes mounts the session endpoints on r.
func (h *SessionHandler) Routes(r chi.Router) {
	r.Post("/", h.Open)
	r.Route("/{sessionID}", func(r chi.Router) {
		r.Get("/", h.View)
		r.Delete("/", h.Close)
		r.Put("/title", h.SetTitle)
		r.Put("/nodes", h.ApplyNodes)
		r.Post("/nodes", h.AddNode)
		r.Patch("/nodes/{nodeID}", h.UpdateNode)
		r.Delete("/nodes/{nodeID}", h.DeleteNode)
		r.Put("/edges", h.ApplyEdges)
		r.Post("/edges", h.Connect)
		r.Delete("/edges/{edgeID}", h.DeleteEdge)
		r.Put("/graph", h.ReplaceGraph)
		r.Post("/snapshot", h.TakeSnapshot)
		r.Post("/undo", h.Undo)
		r.Post("/redo", h.Redo)
		r.Post("/flush", h.Flush)
		if h.stream != nil {
			r.Method(http.MethodGet, "/ws", h.stream)
		}
	})
}

// Open handles POST /sessions
func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if err := decode(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	s, err := h.manager.Open(r.Context(), auth.UserID(r.Context()), req.ProjectID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, s.View())
}

// View handles GET /sessions/{sessionID}
func (h *SessionHandler) View(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, s.View())
}

// Close handles DELETE /sessions/{sessionID}. Pending changes are flushed
// unless flush=false.
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	flush := true
	if raw := r.URL.Query().Get("flush"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.errors.Handle(w, r, pkgerrors.NewValidationError("flush must be a boolean"))
			return
		}
		flush = v
	}

	err := h.manager.Close(r.Context(), chi.URLParam(r, "sessionID"), auth.UserID(r.Context()), flush)
	if err != nil {
		if pkgerrors.IsNotFound(err) || pkgerrors.IsForbidden(err) {
			h.errors.Handle(w, r, err)
			return
		}
		h.errors.Handle(w, r, saveFailed(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetTitle handles PUT /sessions/{sessionID}/title
func (h *SessionHandler) SetTitle(w http.ResponseWriter, r *http.Request) {
	var req TitleRequest
	h.mutate(w, r, &req, func(s *session.Session) error {
		return s.SetTitle(*req.Title)
	})
}

// ApplyNodes handles PUT /sessions/{sessionID}/nodes
func (h *SessionHandler) ApplyNodes(w http.ResponseWriter, r *http.Request) {
	var req NodesRequest
	h.mutate(w, r, &req, func(s *session.Session) error {
		// Edges are left out: during a drag they may still point at nodes
		// the client is about to re-add.
		if err := h.checkGraph(req.Nodes, nil); err != nil {
			return err
		}
		return s.ApplyNodes(req.Nodes)
	})
}

// ApplyEdges handles PUT /sessions/{sessionID}/edges
func (h *SessionHandler) ApplyEdges(w http.ResponseWriter, r *http.Request) {
	var req EdgesRequest
	h.mutate(w, r, &req, func(s *session.Session) error {
		if err := h.checkGraph(s.Nodes(), req.Edges); err != nil {
			return err
		}
		return s.ApplyEdges(req.Edges)
	})
}

// ReplaceGraph handles PUT /sessions/{sessionID}/graph
func (h *SessionHandler) ReplaceGraph(w http.ResponseWriter, r *http.Request) {
	var req GraphRequest
	h.mutate(w, r, &req, func(s *session.Session) error {
		if err := h.checkGraph(req.Nodes, req.Edges); err != nil {
			return err
		}
		return s.ReplaceGraph(req.Nodes, req.Edges)
	})
}

// AddNode handles POST /sessions/{sessionID}/nodes
func (h *SessionHandler) AddNode(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req AddNodeRequest
	if err := decode(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	node := req.node()
	if h.strict.Load() && !node.Position.IsFinite() {
		h.errors.Handle(w, r, pkgerrors.NewValidationError("position must be finite").WithCode(pkgerrors.CodeInvalidGraph))
		return
	}

	added, err := s.AddNode(node)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"node":    added,
		"session": s.View(),
	})
}

// UpdateNode handles PATCH /sessions/{sessionID}/nodes/{nodeID}
func (h *SessionHandler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	var req UpdateNodeRequest
	h.mutate(w, r, &req, func(s *session.Session) error {
		if h.strict.Load() && req.Position != nil && !req.Position.IsFinite() {
			return pkgerrors.NewValidationError("position must be finite").WithCode(pkgerrors.CodeInvalidGraph)
		}
		return s.UpdateNode(chi.URLParam(r, "nodeID"), req.patch())
	})
}

// DeleteNode handles DELETE /sessions/{sessionID}/nodes/{nodeID}
func (h *SessionHandler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, nil, func(s *session.Session) error {
		return s.DeleteNode(chi.URLParam(r, "nodeID"))
	})
}

// Connect handles POST /sessions/{sessionID}/edges
func (h *SessionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ConnectRequest
	if err := decode(w, r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	edge, err := s.Connect(req.edge())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"edge":    edge,
		"session": s.View(),
	})
}

// DeleteEdge handles DELETE /sessions/{sessionID}/edges/{edgeID}
func (h *SessionHandler) DeleteEdge(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, nil, func(s *session.Session) error {
		return s.DeleteEdge(chi.URLParam(r, "edgeID"))
	})
}

// TakeSnapshot handles POST /sessions/{sessionID}/snapshot
func (h *SessionHandler) TakeSnapshot(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, nil, func(s *session.Session) error {
		return s.TakeSnapshot()
	})
}

// historyResponse reports whether an undo or redo changed anything.
type historyResponse struct {
	Applied bool `json:"applied"`
	session.View
}

// Undo handles POST /sessions/{sessionID}/undo
func (h *SessionHandler) Undo(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, (*session.Session).Undo)
}

// Redo handles POST /sessions/{sessionID}/redo
func (h *SessionHandler) Redo(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, (*session.Session).Redo)
}

func (h *SessionHandler) step(w http.ResponseWriter, r *http.Request, fn func(*session.Session) (bool, error)) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	applied, err := fn(s)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, historyResponse{Applied: applied, View: s.View()})
}

// Flush handles POST /sessions/{sessionID}/flush
func (h *SessionHandler) Flush(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Flush(r.Context()); err != nil {
		if pkgerrors.IsConflict(err) {
			h.errors.Handle(w, r, err)
			return
		}
		h.logger.Warn("Flush failed",
			zap.String("session_id", s.ID()),
			zap.String("project_id", s.ProjectID()),
			zap.Error(err),
		)
		h.errors.Handle(w, r, saveFailed(err))
		return
	}
	h.respondJSON(w, http.StatusOK, s.View())
}

// mutate resolves the session, decodes req (when non-nil), applies fn and
// answers with the resulting view.
func (h *SessionHandler) mutate(w http.ResponseWriter, r *http.Request, req any, fn func(*session.Session) error) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if req != nil {
		if err := decode(w, r, req); err != nil {
			h.errors.Handle(w, r, err)
			return
		}
	}
	if err := fn(s); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, s.View())
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.manager.Get(chi.URLParam(r, "sessionID"), auth.UserID(r.Context()))
	if err != nil {
		h.errors.Handle(w, r, err)
		return nil, false
	}
	return s, true
}

func (h *SessionHandler) checkGraph(nodes []graph.Node, edges []graph.Edge) error {
	if !h.strict.Load() {
		return nil
	}
	return graph.Validate(nodes, edges)
}

func saveFailed(err error) error {
	if pkgerrors.IsUnavailable(err) {
		return err
	}
	return pkgerrors.NewSaveFailedError(err)
}

func (h *SessionHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
