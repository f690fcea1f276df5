package plan

import (
	"github.com/t77yq/mission-control/internal/model"
)

// Bootstrap returns the fixed two-phase fallback plan used when the
// decomposition provider fails or returns an unusable payload. A mission
// must never stall in planning, so this plan is always valid: a research
// phase followed by an execution phase that depends on it.
func Bootstrap(mission *model.Mission) *model.MissionPlan {
	return &model.MissionPlan{
		Subtasks: []model.PlannedTask{
			{
				Name:        "bootstrap-research",
				Description: "Gather context for: " + mission.Description,
				Phase:       "research",
				AgentType:   "research",
				Priority:    model.TaskPriorityHigh,
			},
			{
				Name:         "bootstrap-execution",
				Description:  "Execute objective: " + mission.Description,
				Phase:        "execution",
				AgentType:    "general",
				Priority:     model.TaskPriorityMedium,
				Dependencies: []string{"bootstrap-research"},
			},
		},
	}
}
