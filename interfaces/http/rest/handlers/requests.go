package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Itzadetunji/mind-map-sub001/application/session"
	"github.com/Itzadetunji/mind-map-sub001/domain/graph"
	pkgerrors "github.com/Itzadetunji/mind-map-sub001/pkg/errors"
)

const maxBodyBytes = 5 << 20

// OpenSessionRequest is the body of POST /sessions.
type OpenSessionRequest struct {
	ProjectID string `json:"project_id" validate:"required,max=255"`
}

// TitleRequest is the body of PUT /sessions/{id}/title.
type TitleRequest struct {
	Title *string `json:"title" validate:"required"`
}

type NodesRequest struct {
	Nodes []graph.Node `json:"nodes" validate:"required,dive"`
}

type EdgesRequest struct {
	Edges []graph.Edge `json:"edges" validate:"required,dive"`
}

type GraphRequest struct {
	Nodes []graph.Node `json:"nodes" validate:"required,dive"`
	Edges []graph.Edge `json:"edges" validate:"required,dive"`
}

// AddNodeRequest leaves the id optional; the session generates one.
type AddNodeRequest struct {
	ID       string         `json:"id,omitempty" validate:"omitempty,max=255"`
	Type     string         `json:"type" validate:"required,max=64"`
	Position graph.Position `json:"position"`
	Data     map[string]any `json:"data,omitempty"`
}

func (r AddNodeRequest) node() graph.Node {
	return graph.Node{ID: r.ID, Type: r.Type, Position: r.Position, Data: r.Data}
}

type UpdateNodeRequest struct {
	Type     *string         `json:"type,omitempty" validate:"omitempty,min=1,max=64"`
	Position *graph.Position `json:"position,omitempty"`
	Data     map[string]any  `json:"data,omitempty"`
}

func (r UpdateNodeRequest) patch() session.NodePatch {
	return session.NodePatch{Type: r.Type, Position: r.Position, Data: r.Data}
}

// ConnectRequest is the body of POST /sessions/{id}/edges.
type ConnectRequest struct {
	ID           string `json:"id,omitempty" validate:"omitempty,max=255"`
	Source       string `json:"source" validate:"required"`
	Target       string `json:"target" validate:"required"`
	Label        string `json:"label,omitempty" validate:"max=255"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

func (r ConnectRequest) edge() graph.Edge {
	return graph.Edge{ID: r.ID, Source: r.Source, Target: r.Target, Label: r.Label, SourceHandle: r.SourceHandle}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// decode reads a JSON body into dst and validates its struct tags.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return pkgerrors.NewValidationError("request body too large").WithCode(pkgerrors.CodeBodyTooLarge)
		}
		return pkgerrors.NewValidationError("invalid request body").WithCode(pkgerrors.CodeInvalidJSON).WithCause(err)
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return pkgerrors.NewValidationError("invalid request").WithCause(err)
	}
	fields := make(map[string]interface{}, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe.Namespace())] = fmt.Sprintf("failed on '%s'", fe.Tag())
	}
	return pkgerrors.NewValidationError("request validation failed").
		WithCode(pkgerrors.CodeInvalidRequest).
		WithDetails(map[string]interface{}{"fields": fields})
}

// fieldPath drops the struct name prefix from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
