package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Itzadetunji/mind-map-sub001/application/autosave"
	"github.com/Itzadetunji/mind-map-sub001/application/ports"
	"github.com/Itzadetunji/mind-map-sub001/domain/history"
	pkgerrors "github.com/Itzadetunji/mind-map-sub001/pkg/errors"
)

// Settings are applied to sessions when they open.
type Settings struct {
	AutosaveDelay time.Duration
	HistoryLimit  int
	IdleTimeout   time.Duration
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		AutosaveDelay: autosave.DefaultDelay,
		HistoryLimit:  history.DefaultLimit,
		IdleTimeout:   30 * time.Minute,
	}
}

// Metrics receives session and flush metrics.
type Metrics interface {
	autosave.Recorder
	SetActiveSessions(n int)
}

type noopMetrics struct{}

func (noopMetrics) FlushScheduled()              {}
func (noopMetrics) FlushSkipped()                {}
func (noopMetrics) FlushPersisted(time.Duration) {}
func (noopMetrics) FlushFailed(time.Duration)    {}
func (noopMetrics) SetActiveSessions(int)        {}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithNotifier sets where save outcomes are sent.
func WithNotifier(n ports.SaveNotifier) ManagerOption {
	return func(m *Manager) { m.notifier = n }
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// WithClock replaces the system clock for sessions and the idle check.
func WithClock(c autosave.Clock) ManagerOption {
	return func(m *Manager) { m.clock = c }
}

// WithTracer sets the tracer for session and flush spans.
func WithTracer(t trace.Tracer) ManagerOption {
	return func(m *Manager) { m.tracer = t }
}

// Manager owns every open editor session.
type Manager struct {
	store    ports.ProjectStore
	notifier ports.SaveNotifier
	metrics  Metrics
	clock    autosave.Clock
	tracer   trace.Tracer
	logger   *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	settings Settings
}

// NewManager creates a session manager backed by store.
func NewManager(store ports.ProjectStore, settings Settings, logger *zap.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    store,
		notifier: ports.NopNotifier{},
		metrics:  noopMetrics{},
		clock:    autosave.SystemClock(),
		tracer:   otel.Tracer("session"),
		logger:   logger,
		sessions: make(map[string]*Session),
		settings: normalize(settings),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func normalize(s Settings) Settings {
	d := DefaultSettings()
	if s.AutosaveDelay <= 0 {
		s.AutosaveDelay = d.AutosaveDelay
	}
	if s.HistoryLimit <= 0 {
		s.HistoryLimit = d.HistoryLimit
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = d.IdleTimeout
	}
	return s
}

// ApplySettings replaces the settings used for sessions opened from now on.
func (m *Manager) ApplySettings(s Settings) {
	s = normalize(s)
	m.mu.Lock()
	m.settings = s
	m.mu.Unlock()

	m.logger.Info("Session settings updated",
		zap.Duration("autosave_delay", s.AutosaveDelay),
		zap.Int("history_limit", s.HistoryLimit),
		zap.Duration("idle_timeout", s.IdleTimeout),
	)
}

// Settings returns the current settings.
func (m *Manager) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// Open loads a project and starts an editor session for it.
func (m *Manager) Open(ctx context.Context, userID, projectID string) (*Session, error) {
	if projectID == "" {
		return nil, pkgerrors.NewValidationError("project_id is required")
	}

	ctx, span := m.tracer.Start(ctx, "session.open", trace.WithAttributes(
		attribute.String("project.id", projectID),
	))
	defer span.End()

	p, err := m.store.GetProject(ctx, projectID)
	if err != nil {
		span.RecordError(err)
		return nil, pkgerrors.Wrap(err, "failed to load project")
	}
	if p.UserID != "" && userID != "" && p.UserID != userID {
		return nil, pkgerrors.NewForbiddenError("project belongs to another user")
	}

	settings := m.Settings()
	s := New(Config{
		ID:           uuid.NewString(),
		UserID:       userID,
		ProjectID:    projectID,
		Persister:    m.store,
		HistoryLimit: settings.HistoryLimit,
		AutosaveOptions: []autosave.Option{
			autosave.WithDelay(settings.AutosaveDelay),
			autosave.WithRecorder(m.metrics),
			autosave.WithTracer(m.tracer),
		},
		Notifier: m.notifier,
		Clock:    m.clock,
		Logger:   m.logger,
	})
	if err := s.SetProject(p); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	count := len(m.sessions)
	m.mu.Unlock()
	m.metrics.SetActiveSessions(count)

	span.SetAttributes(attribute.String("session.id", s.ID()))
	m.logger.Info("Editor session opened",
		zap.String("session_id", s.ID()),
		zap.String("project_id", projectID),
		zap.String("user_id", userID),
		zap.Int("nodes", len(p.GraphData.Nodes)),
		zap.Int("edges", len(p.GraphData.Edges)),
	)
	return s, nil
}

// Get returns an open session owned by userID.
func (m *Manager) Get(id, userID string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, pkgerrors.NewNotFoundError("session").WithCode(pkgerrors.CodeSessionNotFound)
	}
	if s.UserID() != userID {
		return nil, pkgerrors.NewForbiddenError("session belongs to another user")
	}
	return s, nil
}

// Close ends a session, flushing first when flush is true.
func (m *Manager) Close(ctx context.Context, id, userID string, flush bool) error {
	s, err := m.Get(id, userID)
	if err != nil {
		return err
	}
	m.remove(id)
	return s.Close(ctx, flush)
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseIdle closes sessions idle for longer than the configured timeout,
// once their changes are saved. A session whose final flush fails stays
// registered with its unsaved changes and is retried on the next call. It
// returns how many were closed.
func (m *Manager) CloseIdle(ctx context.Context) int {
	timeout := m.Settings().IdleTimeout
	now := m.clock.Now()

	m.mu.RLock()
	var idle []*Session
	for _, s := range m.sessions {
		if now.Sub(s.LastActive()) >= timeout {
			idle = append(idle, s)
		}
	}
	m.mu.RUnlock()

	closed := 0
	for _, s := range idle {
		if err := s.Retire(ctx); err != nil && !errors.Is(err, ErrClosed) {
			m.logger.Warn("Idle session kept open, flush failed",
				zap.String("session_id", s.ID()),
				zap.Error(err),
			)
			continue
		}
		m.remove(s.ID())
		closed++
	}
	if closed > 0 {
		m.logger.Info("Closed idle sessions", zap.Int("count", closed))
	}
	return closed
}

// RunJanitor calls CloseIdle every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CloseIdle(ctx)
		}
	}
}

// Shutdown flushes and closes every session. Flush errors are joined.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	m.metrics.SetActiveSessions(0)

	var errs []error
	for _, s := range sessions {
		if err := s.Close(ctx, true); err != nil {
			errs = append(errs, err)
		}
	}
	m.logger.Info("Session manager shut down",
		zap.Int("sessions", len(sessions)),
		zap.Int("flush_failures", len(errs)),
	)
	return errors.Join(errs...)
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()
	m.metrics.SetActiveSessions(count)
}
