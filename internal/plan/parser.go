package plan

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/t77yq/mission-control/internal/model"
)

// Parse decodes a decomposition payload into a MissionPlan. The provider is
// not trusted: payloads may be truncated, empty, or structurally wrong, and
// any of those conditions is reported as an error so the caller can fall
// back to the bootstrap plan.
func Parse(payload []byte) (*model.MissionPlan, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty decomposition payload")
	}

	var p model.MissionPlan
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode decomposition payload: %w", err)
	}

	if len(p.Subtasks) == 0 {
		return nil, fmt.Errorf("decomposition payload contains no subtasks")
	}

	seen := make(map[string]bool, len(p.Subtasks))
	for i := range p.Subtasks {
		st := &p.Subtasks[i]
		st.Name = strings.TrimSpace(st.Name)
		if st.Name == "" {
			return nil, fmt.Errorf("subtask %d has no name", i)
		}
		if seen[st.Name] {
			return nil, fmt.Errorf("duplicate subtask name %q", st.Name)
		}
		seen[st.Name] = true

		if st.AgentType == "" {
			st.AgentType = "general"
		}
		if st.Priority < model.TaskPriorityLow || st.Priority > model.TaskPriorityCritical {
			st.Priority = model.TaskPriorityMedium
		}
	}

	return &p, nil
}
