package resilient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Itzadetunji/mind-map-sub001/domain/project"
	pkgerrors "github.com/Itzadetunji/mind-map-sub001/pkg/errors"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetProject(ctx context.Context, id string) (*project.Project, error) {
	args := m.Called(ctx, id)
	if p := args.Get(0); p != nil {
		return p.(*project.Project), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) UpdateProject(ctx context.Context, update project.Update) (*project.Project, error) {
	args := m.Called(ctx, update)
	if p := args.Get(0); p != nil {
		return p.(*project.Project), args.Error(1)
	}
	return nil, args.Error(1)
}

func testSettings() Settings {
	s := DefaultSettings("test-store")
	s.MinRequests = 3
	s.FailureThreshold = 0.5
	s.Timeout = time.Hour
	return s
}

func TestProjectStore_PassesThrough(t *testing.T) {
	inner := new(mockStore)
	inner.On("GetProject", mock.Anything, "p1").Return(&project.Project{ID: "p1"}, nil)
	store := NewProjectStore(inner, testSettings(), zap.NewNop())

	p, err := store.GetProject(context.Background(), "p1")

	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, "closed", store.State())
	inner.AssertExpectations(t)
}

func TestProjectStore_TripsOnFailures(t *testing.T) {
	inner := new(mockStore)
	inner.On("UpdateProject", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))
	store := NewProjectStore(inner, testSettings(), zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := store.UpdateProject(context.Background(), project.Update{ID: "p1"})
		require.Error(t, err)
		assert.False(t, pkgerrors.IsUnavailable(err))
	}

	_, err := store.UpdateProject(context.Background(), project.Update{ID: "p1"})
	assert.True(t, pkgerrors.IsUnavailable(err))
	assert.Equal(t, "open", store.State())
	assert.True(t, pkgerrors.IsUnavailable(store.Ping(context.Background())))
	inner.AssertNumberOfCalls(t, "UpdateProject", 3)
}

func TestProjectStore_NotFoundDoesNotTrip(t *testing.T) {
	inner := new(mockStore)
	inner.On("GetProject", mock.Anything, "missing").Return(nil, pkgerrors.NewNotFoundError("project"))
	store := NewProjectStore(inner, testSettings(), zap.NewNop())

	for i := 0; i < 5; i++ {
		_, err := store.GetProject(context.Background(), "missing")
		assert.True(t, pkgerrors.IsNotFound(err))
	}
	assert.Equal(t, "closed", store.State())
}

func TestProjectStore_CallTimeout(t *testing.T) {
	inner := new(mockStore)
	inner.On("GetProject", mock.Anything, "p1").Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		_, ok := ctx.Deadline()
		assert.True(t, ok)
	}).Return(&project.Project{ID: "p1"}, nil)

	settings := testSettings()
	settings.CallTimeout = time.Second
	store := NewProjectStore(inner, settings, zap.NewNop())

	_, err := store.GetProject(context.Background(), "p1")
	require.NoError(t, err)
	inner.AssertExpectations(t)
}
