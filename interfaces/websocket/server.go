package websocket

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Itzadetunji/mind-map-sub001/pkg/auth"
	pkgerrors "github.com/Itzadetunji/mind-map-sub001/pkg/errors"
)

// SessionAuthorizer reports whether userID may watch sessionID.
type SessionAuthorizer func(sessionID, userID string) error

// ServerConfig holds WebSocket server configuration.
type ServerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	AllowedOrigins  []string
	// MaxConnections caps clients per session.
	MaxConnections int
}

// DefaultServerConfig returns default WebSocket server configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		AllowedOrigins:  []string{"*"},
		MaxConnections:  8,
	}
}

// Server upgrades requests on /sessions/{sessionID}/ws.
type Server struct {
	hub       *Hub
	upgrader  websocket.Upgrader
	authorize SessionAuthorizer
	errors    *pkgerrors.ErrorHandler
	maxConns  int
	logger    *zap.Logger
}

// NewServer creates a server. A nil config uses DefaultServerConfig.
func NewServer(hub *Hub, authorize SessionAuthorizer, config *ServerConfig, errs *pkgerrors.ErrorHandler, logger *zap.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	origins := config.AllowedOrigins
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin)
			},
		},
		authorize: authorize,
		errors:    errs,
		maxConns:  config.MaxConnections,
		logger:    logger,
	}
}

// ServeHTTP handles the upgrade. The caller is expected in the request
// context, placed there by the auth middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userID := auth.UserID(r.Context())

	if err := s.authorize(sessionID, userID); err != nil {
		s.errors.Handle(w, r, err)
		return
	}

	if s.maxConns > 0 && s.hub.GetConnectionCount(sessionID) >= s.maxConns {
		s.logger.Warn("Connection limit exceeded for session",
			zap.String("sessionID", sessionID),
			zap.Int("limit", s.maxConns),
		)
		s.errors.HandleStatus(w, r, http.StatusTooManyRequests, "connection limit exceeded")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Warn("Failed to upgrade connection",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr),
		)
		return
	}

	client := NewClient(sessionID, userID, s.hub, conn, s.logger)
	client.Start()

	s.logger.Info("New WebSocket connection established",
		zap.String("sessionID", sessionID),
		zap.String("connectionID", client.ID()),
		zap.String("remoteAddr", r.RemoteAddr),
	)
}
