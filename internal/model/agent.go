package model

import "time"

// AgentStats represents an agent's running execution statistics
type AgentStats struct {
	TasksPending       int           `json:"tasks_pending"`
	TasksRunning       int           `json:"tasks_running"`
	TasksCompleted     int           `json:"tasks_completed"`
	TasksFailed        int           `json:"tasks_failed"`
	SuccessRate        float64       `json:"success_rate"`
	MeanCompletionTime time.Duration `json:"mean_completion_time"`
	CollectedAt        time.Time     `json:"collected_at"`
}

// AgentInfo is the registry view of an agent
type AgentInfo struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Capabilities []Capability `json:"capabilities"`
	Stats        AgentStats   `json:"stats"`
}
