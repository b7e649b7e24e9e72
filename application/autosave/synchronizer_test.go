package autosave_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Itzadetunji/mind-map-sub001/application/autosave"
	"github.com/Itzadetunji/mind-map-sub001/application/autosave/autosavetest"
	"github.com/Itzadetunji/mind-map-sub001/domain/graph"
	"github.com/Itzadetunji/mind-map-sub001/domain/project"
)

const delay = time.Second

var root = graph.Node{ID: "root", Type: "feature", Position: graph.Position{X: 0, Y: 0}, Data: map[string]any{"label": "Idea"}}

type mockListener struct {
	mock.Mock
}

func (m *mockListener) OnSaved(r autosave.Result) {
	m.Called(r)
}

func (m *mockListener) OnSaveFailed(err error) {
	m.Called(err)
}

type mockPersister struct {
	mock.Mock
}

func (m *mockPersister) UpdateProject(ctx context.Context, update project.Update) (*project.Project, error) {
	args := m.Called(ctx, update)
	if p := args.Get(0); p != nil {
		return p.(*project.Project), args.Error(1)
	}
	return nil, args.Error(1)
}

type countingRecorder struct {
	mu                                     sync.Mutex
	scheduled, skipped, persisted, failed int
}

func (r *countingRecorder) FlushScheduled() { r.mu.Lock(); r.scheduled++; r.mu.Unlock() }
func (r *countingRecorder) FlushSkipped()   { r.mu.Lock(); r.skipped++; r.mu.Unlock() }
func (r *countingRecorder) FlushPersisted(time.Duration) {
	r.mu.Lock()
	r.persisted++
	r.mu.Unlock()
}
func (r *countingRecorder) FlushFailed(time.Duration) { r.mu.Lock(); r.failed++; r.mu.Unlock() }

func newSynchronizer(t *testing.T, p autosave.Persister, opts ...autosave.Option) (*autosave.Synchronizer, *autosavetest.Clock) {
	t.Helper()
	clock := autosavetest.NewClock()
	base := []autosave.Option{
		autosave.WithClock(clock),
		autosave.WithDelay(delay),
		autosave.WithLogger(zap.NewNop()),
	}
	s := autosave.New("project-1", p, append(base, opts...)...)
	t.Cleanup(s.Close)
	return s, clock
}

func TestSynchronizer_ConcreteFlushScenario(t *testing.T) {
	// Arrange
	persister := autosavetest.NewPersister()
	s, clock := newSynchronizer(t, persister)
	s.Load("My idea", []graph.Node{}, []graph.Edge{})
	emptyBaseline := s.Baseline()

	// Act
	s.NotifyTitleChanged("My idea")
	s.NotifyNodesChanged([]graph.Node{root})
	clock.Advance(delay)

	// Assert
	require.Equal(t, 1, persister.Calls())
	update, _ := persister.Last()
	assert.Equal(t, "project-1", update.ID)
	require.NotNil(t, update.Title)
	assert.Equal(t, "My idea", *update.Title)
	assert.Equal(t, []graph.Node{root}, update.GraphData.Nodes)
	assert.Equal(t, []graph.Edge{}, update.GraphData.Edges)

	b := s.Baseline()
	assert.Equal(t, graph.NodesFingerprint([]graph.Node{root}), b.NodesFingerprint)
	assert.Equal(t, emptyBaseline.EdgesFingerprint, b.EdgesFingerprint)
	assert.False(t, s.Dirty())

	// A second flush with nothing new issues no persist.
	require.NoError(t, s.ForceFlush(context.Background()))
	assert.Equal(t, 1, persister.Calls())
}

func TestSynchronizer_DebounceCoalescing(t *testing.T) {
	persister := autosavetest.NewPersister()
	recorder := &countingRecorder{}
	s, clock := newSynchronizer(t, persister, autosave.WithRecorder(recorder))
	s.Load("Title", nil, nil)

	var last []graph.Node
	for i := 0; i < 10; i++ {
		n := root.Clone()
		n.Position.X = float64(i * 10)
		last = []graph.Node{n}
		s.NotifyNodesChanged(last)
		clock.Advance(delay / 10)
	}

	assert.Equal(t, 0, persister.Calls(), "no flush while notifications keep arriving")
	assert.Equal(t, 1, clock.Pending())
	assert.True(t, s.Pending())

	clock.Advance(delay)

	require.Equal(t, 1, persister.Calls())
	update, _ := persister.Last()
	assert.Equal(t, last, update.GraphData.Nodes)
	assert.False(t, s.Pending())
	assert.Equal(t, 10, recorder.scheduled)
	assert.Equal(t, 1, recorder.persisted)
}

func TestSynchronizer_IdempotentOnNoOp(t *testing.T) {
	persister := autosavetest.NewPersister()
	s, _ := newSynchronizer(t, persister)
	s.Load("Title", nil, nil)
	s.NotifyNodesChanged([]graph.Node{root})

	require.NoError(t, s.ForceFlush(context.Background()))
	require.NoError(t, s.ForceFlush(context.Background()))

	assert.Equal(t, 1, persister.Calls())
}

func TestSynchronizer_InitialLoadSuppression(t *testing.T) {
	persister := autosavetest.NewPersister()
	s, clock := newSynchronizer(t, persister)

	// Notifications arriving before the project is loaded.
	s.NotifyTitleChanged("Loading")
	s.NotifyNodesChanged([]graph.Node{root})
	s.NotifyEdgesChanged([]graph.Edge{{ID: "e1", Source: "root", Target: "root"}})
	assert.False(t, s.Pending())
	assert.Zero(t, clock.Pending())
	require.NoError(t, s.ForceFlush(context.Background()))

	s.Load("Loaded", []graph.Node{root}, nil)
	clock.Advance(10 * delay)

	assert.Zero(t, persister.Calls())
	assert.False(t, s.Dirty())
}

func TestSynchronizer_LoadCancelsPendingFlush(t *testing.T) {
	persister := autosavetest.NewPersister()
	s, clock := newSynchronizer(t, persister)
	s.Load("First", nil, nil)
	s.NotifyTitleChanged("Edited")
	require.True(t, s.Pending())

	s.Load("Second", []graph.Node{root}, nil)
	clock.Advance(delay)

	assert.Zero(t, persister.Calls())
	assert.Equal(t, "Second", s.Baseline().Title)
}

func TestSynchronizer_UnchangedNotificationDoesNotSchedule(t *testing.T) {
	persister := autosavetest.NewPersister()
	s, clock := newSynchronizer(t, persister)
	s.Load("Title", []graph.Node{root}, nil)

	// Same structure, fresh copy: the renderer re-delivering identical state.
	s.NotifyNodesChanged([]graph.Node{root.Clone()})
	s.NotifyTitleChanged("Title")
	s.NotifyEdgesChanged(nil)

	assert.False(t, s.Pending())
	assert.Zero(t, clock.Pending())
}

func TestSynchronizer_RevertToBaselineSkipsPersist(t *testing.T) {
	persister := autosavetest.NewPersister()
	recorder := &countingRecorder{}
	s, clock := newSynchronizer(t, persister, autosave.WithRecorder(recorder))
	s.Load("Title", nil, nil)

	s.NotifyTitleChanged("Other")
	s.NotifyTitleChanged("Title")
	clock.Advance(delay)

	assert.Zero(t, persister.Calls())
	assert.Equal(t, 1, recorder.skipped)
}

func TestSynchronizer_FailureKeepsBaseline(t *testing.T) {
	// Arrange
	persister := &mockPersister{}
	listener := &mockListener{}
	saveErr := errors.New("network down")
	persister.On("UpdateProject", mock.Anything, mock.AnythingOfType("project.Update")).Return(nil, saveErr).Once()
	listener.On("OnSaveFailed", mock.MatchedBy(func(err error) bool { return errors.Is(err, saveErr) })).Once()

	s, clock := newSynchronizer(t, persister, autosave.WithListener(listener))
	s.Load("Title", nil, nil)
	before := s.Baseline()

	// Act
	s.NotifyNodesChanged([]graph.Node{root})
	clock.Advance(delay)

	// Assert
	assert.Equal(t, before, s.Baseline())
	assert.True(t, s.Dirty())
	assert.False(t, s.Pending(), "failed flushes are not retried")
	clock.Advance(10 * delay)
	persister.AssertNumberOfCalls(t, "UpdateProject", 1)
	listener.AssertExpectations(t)
}

func TestSynchronizer_ForceFlushReturnsError(t *testing.T) {
	persister := autosavetest.NewPersister()
	persister.FailWith(errors.New("boom"))
	s, _ := newSynchronizer(t, persister)
	s.Load("Title", nil, nil)
	s.NotifyTitleChanged("New")

	err := s.ForceFlush(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, "Title", s.Baseline().Title)

	// Recovery: the next flush persists the same state.
	persister.FailWith(nil)
	require.NoError(t, s.ForceFlush(context.Background()))
	assert.Equal(t, "New", s.Baseline().Title)
	assert.Equal(t, 2, persister.Calls())
}

func TestSynchronizer_ForceFlushCancelsTimer(t *testing.T) {
	persister := autosavetest.NewPersister()
	s, clock := newSynchronizer(t, persister)
	s.Load("Title", nil, nil)
	s.NotifyTitleChanged("New")

	require.NoError(t, s.ForceFlush(context.Background()))
	clock.Advance(delay)

	assert.Equal(t, 1, persister.Calls())
	assert.False(t, s.Pending())
}

func TestSynchronizer_ListenerReceivesResult(t *testing.T) {
	persister := autosavetest.NewPersister()
	listener := &mockListener{}
	listener.On("OnSaved", mock.MatchedBy(func(r autosave.Result) bool {
		return r.Persisted &&
			r.ProjectID == "project-1" &&
			r.Changes == autosave.Changes{Nodes: true} &&
			r.Diff.NodesAdded == 1 &&
			r.Project != nil
	})).Once()

	s, clock := newSynchronizer(t, persister, autosave.WithListener(listener))
	s.Load("Title", nil, nil)
	s.NotifyNodesChanged([]graph.Node{root})
	clock.Advance(delay)

	listener.AssertExpectations(t)
}

func TestSynchronizer_CloseStopsScheduling(t *testing.T) {
	persister := autosavetest.NewPersister()
	s, clock := newSynchronizer(t, persister)
	s.Load("Title", nil, nil)
	s.NotifyTitleChanged("Pending")

	s.Close()
	s.Close()
	s.NotifyTitleChanged("After close")
	clock.Advance(delay)

	assert.Zero(t, persister.Calls())
	assert.False(t, s.Pending())
	assert.ErrorIs(t, s.ForceFlush(context.Background()), autosave.ErrClosed)
}

func TestSynchronizer_CallerMutationDoesNotLeak(t *testing.T) {
	persister := autosavetest.NewPersister()
	s, clock := newSynchronizer(t, persister)
	s.Load("Title", nil, nil)

	live := []graph.Node{root.Clone()}
	s.NotifyNodesChanged(live)
	live[0].Data["label"] = "mutated after notify"
	clock.Advance(delay)

	update, ok := persister.Last()
	require.True(t, ok)
	assert.Equal(t, "Idea", update.GraphData.Nodes[0].Data["label"])
}

func TestSynchronizer_DispatchAndRun(t *testing.T) {
	persister := autosavetest.NewPersister()
	s, _ := newSynchronizer(t, persister)
	s.Load("Title", nil, nil)

	events := make(chan autosave.Event, 3)
	events <- autosave.TitleChanged{Title: "From channel"}
	events <- autosave.NodesChanged{Nodes: []graph.Node{root}}
	events <- autosave.EdgesChanged{Edges: []graph.Edge{{ID: "e1", Source: "root", Target: "root"}}}
	close(events)

	require.NoError(t, s.Run(context.Background(), events))
	require.NoError(t, s.ForceFlush(context.Background()))

	update, ok := persister.Last()
	require.True(t, ok)
	assert.Equal(t, "From channel", *update.Title)
	assert.Len(t, update.GraphData.Nodes, 1)
	assert.Len(t, update.GraphData.Edges, 1)
}

func TestSynchronizer_RunStopsOnContext(t *testing.T) {
	s, _ := newSynchronizer(t, autosavetest.NewPersister())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx, make(chan autosave.Event))

	assert.ErrorIs(t, err, context.Canceled)
}

func TestSynchronizer_RealClock(t *testing.T) {
	persister := autosavetest.NewPersister()
	s := autosave.New("project-1", persister, autosave.WithDelay(20*time.Millisecond))
	defer s.Close()
	s.Load("Title", nil, nil)

	s.NotifyTitleChanged("Renamed")

	assert.Eventually(t, func() bool { return persister.Calls() == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return !s.Dirty() }, time.Second, 5*time.Millisecond)
}

// gatedPersister holds every save until release is closed and records how
// many saves overlapped.
type gatedPersister struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once

	mu            sync.Mutex
	inFlight      int
	maxConcurrent int
	titles        []string
}

func newGatedPersister() *gatedPersister {
	return &gatedPersister{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (p *gatedPersister) UpdateProject(ctx context.Context, update project.Update) (*project.Project, error) {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > p.maxConcurrent {
		p.maxConcurrent = p.inFlight
	}
	p.titles = append(p.titles, *update.Title)
	p.mu.Unlock()

	p.once.Do(func() { close(p.started) })
	<-p.release

	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()
	return &project.Project{ID: update.ID, Title: *update.Title}, nil
}

func (p *gatedPersister) snapshot() (titles []string, maxConcurrent int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.titles...), p.maxConcurrent
}

func TestSynchronizer_FlushesDoNotOverlap(t *testing.T) {
	tests := []struct {
		name       string
		edits      []string
		wantTitles []string
		wantSkips  int
	}{
		{
			name:       "edit during save is persisted next",
			edits:      []string{"B"},
			wantTitles: []string{"A", "B"},
		},
		{
			name:       "edit reverted to the saving state is skipped",
			edits:      []string{"B", "A"},
			wantTitles: []string{"A"},
			wantSkips:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			persister := newGatedPersister()
			recorder := &countingRecorder{}
			s, clock := newSynchronizer(t, persister, autosave.WithRecorder(recorder))
			s.Load("Original", nil, nil)
			s.NotifyTitleChanged("A")

			first := make(chan error, 1)
			go func() { first <- s.ForceFlush(context.Background()) }()
			<-persister.started

			// Act: edit while the first save is held, then let the timer fire.
			for _, title := range tt.edits {
				s.NotifyTitleChanged(title)
			}
			second := make(chan struct{})
			go func() {
				clock.Advance(delay)
				close(second)
			}()

			assert.Never(t, func() bool {
				select {
				case <-second:
					return true
				default:
					return false
				}
			}, 50*time.Millisecond, 5*time.Millisecond, "second flush must wait for the first")

			close(persister.release)
			require.NoError(t, <-first)
			<-second

			// Assert
			titles, maxConcurrent := persister.snapshot()
			assert.Equal(t, tt.wantTitles, titles)
			assert.Equal(t, 1, maxConcurrent)
			assert.Equal(t, tt.wantTitles[len(tt.wantTitles)-1], s.Baseline().Title)
			assert.False(t, s.Dirty())

			recorder.mu.Lock()
			defer recorder.mu.Unlock()
			assert.Equal(t, tt.wantSkips, recorder.skipped)
		})
	}
}
