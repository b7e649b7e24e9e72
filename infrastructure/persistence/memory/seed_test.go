package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestReadSeedFile(t *testing.T) {
	path := writeSeed(t, `[
		{"id": "p1", "user_id": "u1", "title": "Budget app",
		 "graph_data": {"nodes": [{"id": "root", "type": "feature", "position": {"x": 0, "y": 0}}], "edges": []}}
	]`)

	projects, err := ReadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, projects, 1)

	store := NewProjectStore(projects...)
	p, err := store.GetProject(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Budget app", p.Title)
	assert.Len(t, p.GraphData.Nodes, 1)
}

func TestReadSeedFile_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		errMsg string
	}{
		{name: "not json", body: `nodes: []`, errMsg: "failed to parse seed file"},
		{name: "missing id", body: `[{"title": "x"}]`, errMsg: "seed project 0 has no id"},
		{name: "null entry", body: `[null]`, errMsg: "seed project 0 has no id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadSeedFile(writeSeed(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	_, err := ReadSeedFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
