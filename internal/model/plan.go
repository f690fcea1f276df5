package model

// MissionPlan is the decomposition of a mission into planned subtasks
type MissionPlan struct {
	Subtasks []PlannedTask `json:"subtasks"`
}

// PlannedTask is one entry of a decomposition payload. Dependencies refer
// to the Name of other entries in the same plan.
type PlannedTask struct {
	Name           string       `json:"name"`
	Description    string       `json:"description"`
	Phase          string       `json:"phase,omitempty"`
	EstimatedHours float64      `json:"estimated_hours,omitempty"`
	AgentType      string       `json:"agent_type"`
	Dependencies   []string     `json:"dependencies,omitempty"`
	Priority       TaskPriority `json:"priority,omitempty"`
}
