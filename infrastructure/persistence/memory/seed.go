package memory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Itzadetunji/mind-map-sub001/domain/project"
)

// ReadSeedFile reads a JSON array of projects, the same shape the projects
// table returns.
func ReadSeedFile(path string) ([]*project.Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var projects []*project.Project
	if err := json.Unmarshal(data, &projects); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	for i, p := range projects {
		if p == nil || p.ID == "" {
			return nil, fmt.Errorf("seed project %d has no id", i)
		}
	}
	return projects, nil
}
