package graph

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/Itzadetunji/mind-map-sub001/pkg/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a graph for problems the editor core tolerates but a
// well-formed project should not contain: missing ids, duplicate ids,
// non-finite positions, node data that cannot be stored as JSON and edges
// pointing at unknown nodes. All problems are
// collected into a single validation error.
func Validate(nodes []Node, edges []Edge) error {
	var problems []string

	seenNodes := make(map[string]struct{}, len(nodes))
	for i, n := range nodes {
		if err := validate.Struct(n); err != nil {
			problems = append(problems, fieldProblems(fmt.Sprintf("nodes[%d]", i), err)...)
		}
		if !n.Position.IsFinite() {
			problems = append(problems, fmt.Sprintf("nodes[%d].position: coordinates must be finite numbers", i))
		}
		if _, err := json.Marshal(n.Data); err != nil {
			problems = append(problems, fmt.Sprintf("nodes[%d].data: value is not JSON-encodable", i))
		}
		if n.ID == "" {
			continue
		}
		if _, dup := seenNodes[n.ID]; dup {
			problems = append(problems, fmt.Sprintf("nodes[%d].id: duplicate node id %q", i, n.ID))
		}
		seenNodes[n.ID] = struct{}{}
	}

	seenEdges := make(map[string]struct{}, len(edges))
	for i, e := range edges {
		if err := validate.Struct(e); err != nil {
			problems = append(problems, fieldProblems(fmt.Sprintf("edges[%d]", i), err)...)
		}
		if e.ID != "" {
			if _, dup := seenEdges[e.ID]; dup {
				problems = append(problems, fmt.Sprintf("edges[%d].id: duplicate edge id %q", i, e.ID))
			}
			seenEdges[e.ID] = struct{}{}
		}
		if _, ok := seenNodes[e.Source]; e.Source != "" && !ok {
			problems = append(problems, fmt.Sprintf("edges[%d].source: unknown node %q", i, e.Source))
		}
		if _, ok := seenNodes[e.Target]; e.Target != "" && !ok {
			problems = append(problems, fmt.Sprintf("edges[%d].target: unknown node %q", i, e.Target))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return pkgerrors.NewValidationError("invalid graph").
		WithCode(pkgerrors.CodeInvalidGraph).
		WithDetails(map[string]interface{}{"problems": problems})
}

func fieldProblems(prefix string, err error) []string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{fmt.Sprintf("%s: %v", prefix, err)}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s.%s: failed %q", prefix, fe.Field(), fe.Tag()))
	}
	return out
}
