package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Itzadetunji/mind-map-sub001/domain/graph"
	"github.com/Itzadetunji/mind-map-sub001/domain/project"
	pkgerrors "github.com/Itzadetunji/mind-map-sub001/pkg/errors"
)

func seedProject() *project.Project {
	return &project.Project{
		ID:     "p1",
		UserID: "u1",
		Title:  "Recipe app",
		GraphData: project.GraphData{
			Nodes: []graph.Node{{ID: "root", Type: "feature", Data: map[string]any{"label": "Recipes"}}},
			Edges: []graph.Edge{},
		},
	}
}

func TestProjectStore_GetProject(t *testing.T) {
	store := NewProjectStore(seedProject())

	p, err := store.GetProject(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Recipe app", p.Title)

	p.GraphData.Nodes[0].Data["label"] = "mutated"
	again, err := store.GetProject(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Recipes", again.GraphData.Nodes[0].Data["label"])

	_, err = store.GetProject(context.Background(), "missing")
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestProjectStore_UpdateProject(t *testing.T) {
	store := NewProjectStore(seedProject())
	title := "Recipe planner"
	update := project.Update{
		ID:    "p1",
		Title: &title,
		GraphData: project.GraphData{
			Nodes: []graph.Node{{ID: "root", Type: "feature"}, {ID: "list", Type: "screen"}},
		},
	}

	saved, err := store.UpdateProject(context.Background(), update)
	require.NoError(t, err)
	assert.Equal(t, "Recipe planner", saved.Title)
	assert.Len(t, saved.GraphData.Nodes, 2)
	assert.NotNil(t, saved.GraphData.Edges)
	assert.False(t, saved.UpdatedAt.IsZero())
	assert.Equal(t, "u1", saved.UserID)

	// Same payload again is harmless.
	_, err = store.UpdateProject(context.Background(), update)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Writes())
}

func TestProjectStore_UpdateWithoutTitleKeepsTitle(t *testing.T) {
	store := NewProjectStore(seedProject())

	saved, err := store.UpdateProject(context.Background(), project.Update{ID: "p1"})

	require.NoError(t, err)
	assert.Equal(t, "Recipe app", saved.Title)
	assert.Empty(t, saved.GraphData.Nodes)
}

func TestProjectStore_Errors(t *testing.T) {
	store := NewProjectStore()

	_, err := store.UpdateProject(context.Background(), project.Update{ID: "nope"})
	assert.True(t, pkgerrors.IsNotFound(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.GetProject(ctx, "p1")
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeTimeout))
}
