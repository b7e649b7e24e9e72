// Package autosave debounces editor changes and persists the project only
// when the title, nodes or edges differ from what was last saved.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Itzadetunji/mind-map-sub001/domain/graph"
	"github.com/Itzadetunji/mind-map-sub001/domain/project"
)

// DefaultDelay is the quiet interval before a scheduled flush runs.
const DefaultDelay = time.Second

// ErrClosed is returned by ForceFlush after Close.
var ErrClosed = errors.New("autosave: synchronizer closed")

// Persister writes a project update. Implementations must tolerate receiving
// the same payload twice.
type Persister interface {
	UpdateProject(ctx context.Context, update project.Update) (*project.Project, error)
}

// Result describes a completed flush.
type Result struct {
	ProjectID string           `json:"project_id"`
	Persisted bool             `json:"persisted"`
	Changes   Changes          `json:"changes"`
	Diff      graph.Diff       `json:"diff"`
	Project   *project.Project `json:"-"`
	Duration  time.Duration    `json:"duration"`
	SavedAt   time.Time        `json:"saved_at"`
}

// Listener is told about every persist attempt. Skipped flushes are not
// reported. Callbacks run on the flushing goroutine.
type Listener interface {
	OnSaved(Result)
	OnSaveFailed(err error)
}

// Recorder receives flush metrics.
type Recorder interface {
	FlushScheduled()
	FlushSkipped()
	FlushPersisted(d time.Duration)
	FlushFailed(d time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) FlushScheduled()              {}
func (noopRecorder) FlushSkipped()                {}
func (noopRecorder) FlushPersisted(time.Duration) {}
func (noopRecorder) FlushFailed(time.Duration)    {}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithDelay sets the debounce interval. Non-positive values are ignored.
func WithDelay(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(s *Synchronizer) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Synchronizer) { s.recorder = r }
}

// WithTracer sets the tracer used for flush spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Synchronizer) { s.tracer = t }
}

// WithListener registers a save listener.
func WithListener(l Listener) Option {
	return func(s *Synchronizer) { s.listener = l }
}

// Synchronizer tracks the live title, nodes and edges of one project and
// writes them to the Persister after a quiet interval. Nothing is scheduled
// until Load has been called.
type Synchronizer struct {
	projectID string
	persister Persister
	delay     time.Duration
	clock     Clock
	logger    *zap.Logger
	recorder  Recorder
	tracer    trace.Tracer
	listener  Listener

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	title      string
	nodes      []graph.Node
	edges      []graph.Edge
	current    Baseline
	baseline   Baseline
	saved      graph.Snapshot
	loaded     bool
	closed     bool
	timer      Timer
	generation uint64
	epoch      uint64

	// flushMu serialises persists so a late timer re-diffs after an
	// in-flight write has moved the baseline.
	flushMu sync.Mutex
}

// New creates a Synchronizer for projectID.
func New(projectID string, persister Persister, opts ...Option) *Synchronizer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		projectID: projectID,
		persister: persister,
		delay:     DefaultDelay,
		clock:     SystemClock(),
		logger:    zap.NewNop(),
		recorder:  noopRecorder{},
		tracer:    otel.Tracer("autosave"),
		ctx:       ctx,
		cancel:    cancel,
		nodes:     []graph.Node{},
		edges:     []graph.Edge{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("project_id", projectID))
	s.current = NewBaseline("", s.nodes, s.edges)
	s.baseline = s.current
	s.saved = graph.NewSnapshot(nil, nil)
	return s
}

// ProjectID returns the project this synchronizer saves.
func (s *Synchronizer) ProjectID() string {
	return s.projectID
}

// Load installs the persisted state as both the live values and the
// baseline, cancels any pending flush and opens the loaded gate.
func (s *Synchronizer) Load(title string, nodes []graph.Node, edges []graph.Edge) {
	b := NewBaseline(title, nodes, edges)
	snap := graph.NewSnapshot(nodes, edges)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimerLocked()
	s.title = title
	s.nodes = snap.Nodes
	s.edges = snap.Edges
	s.current = b
	s.baseline = b
	s.saved = snap
	s.loaded = true
	s.epoch++
}

// NotifyNodesChanged updates the live node list and schedules a flush when
// it differs from the previous live list.
func (s *Synchronizer) NotifyNodesChanged(nodes []graph.Node) {
	fp := graph.NodesFingerprint(nodes)
	copied := graph.CloneNodes(nodes)

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := fp != s.current.NodesFingerprint
	s.nodes = copied
	s.current.NodesFingerprint = fp
	if changed {
		s.scheduleLocked()
	}
}

// NotifyEdgesChanged updates the live edge list and schedules a flush when
// it differs from the previous live list.
func (s *Synchronizer) NotifyEdgesChanged(edges []graph.Edge) {
	fp := graph.EdgesFingerprint(edges)
	copied := graph.CloneEdges(edges)

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := fp != s.current.EdgesFingerprint
	s.edges = copied
	s.current.EdgesFingerprint = fp
	if changed {
		s.scheduleLocked()
	}
}

// NotifyTitleChanged updates the live title and schedules a flush when it
// differs from the previous live title.
func (s *Synchronizer) NotifyTitleChanged(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := title != s.current.Title
	s.title = title
	s.current.Title = title
	if changed {
		s.scheduleLocked()
	}
}

// ForceFlush cancels any pending timer and flushes synchronously. A flush
// with nothing to save returns nil without touching the Persister.
func (s *Synchronizer) ForceFlush(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.stopTimerLocked()
	s.mu.Unlock()

	_, err := s.flush(ctx)
	return err
}

// Close cancels the pending timer and stops further scheduling. Calling it
// more than once is safe.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.stopTimerLocked()
	s.cancel()
}

// Pending reports whether a flush is scheduled.
func (s *Synchronizer) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Baseline returns the fingerprints of the last persisted state.
func (s *Synchronizer) Baseline() Baseline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseline
}

// Dirty reports whether the live state differs from the baseline.
func (s *Synchronizer) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseline.Compare(s.current).Any()
}

func (s *Synchronizer) scheduleLocked() {
	if !s.loaded || s.closed {
		return
	}
	s.stopTimerLocked()
	s.generation++
	gen := s.generation
	s.timer = s.clock.AfterFunc(s.delay, func() { s.fire(gen) })
	s.recorder.FlushScheduled()
}

func (s *Synchronizer) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	// Invalidate a callback that already started before Stop.
	s.generation++
}

func (s *Synchronizer) fire(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	// Errors reach the listener from flush.
	_, _ = s.flush(s.ctx)
}

func (s *Synchronizer) flush(ctx context.Context) (Result, error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return Result{ProjectID: s.projectID}, nil
	}
	title := s.title
	nodes := s.nodes
	edges := s.edges
	current := s.current
	changes := s.baseline.Compare(current)
	previous := s.saved
	epoch := s.epoch
	s.mu.Unlock()

	if !changes.Any() {
		s.recorder.FlushSkipped()
		return Result{ProjectID: s.projectID, Changes: changes}, nil
	}

	ctx, span := s.tracer.Start(ctx, "autosave.flush", trace.WithAttributes(
		attribute.String("project.id", s.projectID),
		attribute.StringSlice("autosave.changes", changes.Fields()),
		attribute.Int("graph.nodes", len(nodes)),
		attribute.Int("graph.edges", len(edges)),
	))
	defer span.End()

	// The live slices are replaced, never mutated, so they can be shared
	// with the persister without holding the lock.
	update := project.Update{
		ID:    s.projectID,
		Title: &title,
		GraphData: project.GraphData{
			Nodes: nodes,
			Edges: edges,
		},
	}

	start := s.clock.Now()
	saved, err := s.persister.UpdateProject(ctx, update)
	elapsed := s.clock.Now().Sub(start)

	if err != nil {
		s.recorder.FlushFailed(elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		s.logger.Warn("Autosave failed",
			zap.Error(err),
			zap.Strings("changes", changes.Fields()),
			zap.Duration("duration", elapsed),
		)
		if s.listener != nil {
			s.listener.OnSaveFailed(err)
		}
		return Result{}, fmt.Errorf("autosave project %s: %w", s.projectID, err)
	}

	snap := graph.Snapshot{Nodes: nodes, Edges: edges}
	s.mu.Lock()
	if s.epoch == epoch {
		s.baseline = current
		s.saved = snap
	}
	s.mu.Unlock()

	result := Result{
		ProjectID: s.projectID,
		Persisted: true,
		Changes:   changes,
		Diff:      graph.Compare(previous, snap),
		Project:   saved,
		Duration:  elapsed,
		SavedAt:   s.clock.Now(),
	}

	s.recorder.FlushPersisted(elapsed)
	span.SetStatus(codes.Ok, "")
	s.logger.Info("Autosave persisted",
		zap.Strings("changes", changes.Fields()),
		zap.Int("nodes", len(nodes)),
		zap.Int("edges", len(edges)),
		zap.Duration("duration", elapsed),
	)
	if s.listener != nil {
		s.listener.OnSaved(result)
	}
	return result, nil
}
