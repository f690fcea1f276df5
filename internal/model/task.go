package model

import (
	"time"
)

// TaskStatus represents the current status of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusBlocked    TaskStatus = "blocked"
)

// Terminal reports whether the status is a final one.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TaskTypePlanning is the task type of the decomposition request the
// orchestrator issues when a mission enters planning.
const TaskTypePlanning = "planning"

// TaskPriority represents the priority level of a task
type TaskPriority int

const (
	TaskPriorityLow      TaskPriority = 1
	TaskPriorityMedium   TaskPriority = 2
	TaskPriorityHigh     TaskPriority = 3
	TaskPriorityCritical TaskPriority = 4
)

// Task represents an atomic unit of work inside a mission
type Task struct {
	ID           string                 `json:"id"`
	MissionID    string                 `json:"mission_id"`
	Type         string                 `json:"type"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Status       TaskStatus             `json:"status"`
	Priority     TaskPriority           `json:"priority"`
	Requirements map[string]interface{} `json:"requirements,omitempty"`
	Context      map[string]interface{} `json:"context,omitempty"`

	// Dependencies holds ids of sibling tasks that must complete first
	Dependencies []string `json:"dependencies,omitempty"`

	// AssignedAgent is set once at dispatch and never reassigned
	AssignedAgent string `json:"assigned_agent,omitempty"`

	// Seq is the insertion position within the mission, used as the
	// stable tie-break when ordering by priority
	Seq int `json:"seq"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Result       map[string]interface{} `json:"result,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Artifacts    []string               `json:"artifacts,omitempty"`
}

// TaskResult represents the outcome of a task execution
type TaskResult struct {
	TaskID      string                 `json:"task_id"`
	MissionID   string                 `json:"mission_id"`
	AgentID     string                 `json:"agent_id"`
	Status      TaskStatus             `json:"status"`
	Result      map[string]interface{} `json:"result,omitempty"`
	Artifacts   []string               `json:"artifacts,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CompletedAt time.Time              `json:"completed_at"`
}
