// Package supabase stores projects in a Supabase PostgREST table.
package supabase

import (
	"context"
	"strings"
	"time"

	supa "github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"github.com/Itzadetunji/mind-map-sub001/domain/project"
	pkgerrors "github.com/Itzadetunji/mind-map-sub001/pkg/errors"
)

const DefaultTable = "projects"

// projectRow mirrors a row of the projects table.
type projectRow struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Title     string            `json:"title"`
	GraphData project.GraphData `json:"graph_data"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (r projectRow) toProject() *project.Project {
	return &project.Project{
		ID:        r.ID,
		UserID:    r.UserID,
		Title:     r.Title,
		GraphData: r.GraphData.Clone(),
		UpdatedAt: r.UpdatedAt,
	}
}

// updateRow is the PATCH body. Title is omitted when the update leaves it alone.
type updateRow struct {
	Title     *string           `json:"title,omitempty"`
	GraphData project.GraphData `json:"graph_data"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ProjectStore reads and writes projects through PostgREST.
type ProjectStore struct {
	client *supa.Client
	table  string
	logger *zap.Logger
	now    func() time.Time
}

// NewClient builds a service-role client for the given project URL.
func NewClient(url, serviceRoleKey string) (*supa.Client, error) {
	client, err := supa.NewClient(strings.TrimRight(url, "/"), serviceRoleKey, nil)
	if err != nil {
		return nil, pkgerrors.NewExternalError("supabase", err)
	}
	return client, nil
}

// NewProjectStore wraps client. An empty table name uses DefaultTable.
func NewProjectStore(client *supa.Client, table string, logger *zap.Logger) *ProjectStore {
	if table == "" {
		table = DefaultTable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectStore{client: client, table: table, logger: logger, now: time.Now}
}

// GetProject fetches one project by id.
func (s *ProjectStore) GetProject(ctx context.Context, id string) (*project.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.FromContext("get project", err)
	}

	var rows []projectRow
	if _, err := s.client.From(s.table).
		Select("*", "", false).
		Eq("id", id).
		ExecuteTo(&rows); err != nil {
		s.logger.Error("Failed to fetch project", zap.String("projectID", id), zap.Error(err))
		return nil, pkgerrors.NewExternalError("supabase", err)
	}
	if len(rows) == 0 {
		return nil, pkgerrors.NewNotFoundError("project")
	}
	return rows[0].toProject(), nil
}

// UpdateProject patches the row and returns the stored representation.
func (s *ProjectStore) UpdateProject(ctx context.Context, update project.Update) (*project.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.FromContext("update project", err)
	}

	body := updateRow{
		Title:     update.Title,
		GraphData: update.GraphData.Clone(),
		UpdatedAt: s.now().UTC(),
	}

	var rows []projectRow
	if _, err := s.client.From(s.table).
		Update(body, "representation", "").
		Eq("id", update.ID).
		ExecuteTo(&rows); err != nil {
		s.logger.Error("Failed to update project", zap.String("projectID", update.ID), zap.Error(err))
		return nil, pkgerrors.NewExternalError("supabase", err)
	}
	if len(rows) == 0 {
		return nil, pkgerrors.NewNotFoundError("project")
	}

	s.logger.Debug("Project updated",
		zap.String("projectID", update.ID),
		zap.Int("nodes", len(body.GraphData.Nodes)),
		zap.Int("edges", len(body.GraphData.Edges)),
	)
	return rows[0].toProject(), nil
}

// Ping issues a one-row select against the table.
func (s *ProjectStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return pkgerrors.FromContext("ping", err)
	}
	if _, _, err := s.client.From(s.table).Select("id", "", false).Limit(1, "").Execute(); err != nil {
		return pkgerrors.NewUnavailableError("supabase").WithCause(err)
	}
	return nil
}
