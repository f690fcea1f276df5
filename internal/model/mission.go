package model

import (
	"time"
)

// MissionStatus represents the lifecycle state of a mission
type MissionStatus string

const (
	MissionStatusPending    MissionStatus = "pending"
	MissionStatusPlanning   MissionStatus = "planning"
	MissionStatusInProgress MissionStatus = "in_progress"
	MissionStatusCompleted  MissionStatus = "completed"
	MissionStatusFailed     MissionStatus = "failed"
	MissionStatusCancelled  MissionStatus = "cancelled"
)

// Terminal reports whether the status is a final one.
func (s MissionStatus) Terminal() bool {
	return s == MissionStatusCompleted || s == MissionStatusFailed || s == MissionStatusCancelled
}

// Mission represents a top-level objective decomposed into tasks
type Mission struct {
	ID           string                 `json:"id"`
	Description  string                 `json:"description"`
	Requirements map[string]interface{} `json:"requirements,omitempty"`
	Priority     TaskPriority           `json:"priority"`
	Status       MissionStatus          `json:"status"`

	// Plan holds the raw decomposition payload as returned by the provider
	Plan []byte `json:"plan,omitempty"`

	// Tasks in insertion order; the planning task is not part of this set
	Tasks []*Task `json:"tasks"`

	ProgressPercentage  float64    `json:"progress_percentage"`
	CurrentPhase        string     `json:"current_phase,omitempty"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Deadline    time.Time  `json:"deadline"`

	Results map[string]interface{} `json:"results,omitempty"`
	Metrics MissionMetrics         `json:"metrics"`
}

// MissionMetrics holds task counters for a mission
type MissionMetrics struct {
	TotalTasks     int `json:"total_tasks"`
	PendingTasks   int `json:"pending_tasks"`
	RunningTasks   int `json:"running_tasks"`
	CompletedTasks int `json:"completed_tasks"`
	FailedTasks    int `json:"failed_tasks"`
}

// MissionStatusReport is the snapshot returned by status queries
type MissionStatusReport struct {
	MissionID           string                 `json:"mission_id"`
	Status              MissionStatus          `json:"status"`
	ProgressPercentage  float64                `json:"progress_percentage"`
	CurrentPhase        string                 `json:"current_phase,omitempty"`
	EstimatedCompletion *time.Time             `json:"estimated_completion,omitempty"`
	Metrics             MissionMetrics         `json:"metrics"`
	Results             map[string]interface{} `json:"results,omitempty"`
}

// TaskByID returns the task with the given id, or nil.
func (m *Mission) TaskByID(id string) *Task {
	for _, t := range m.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// ComputeMetrics recounts task states.
func (m *Mission) ComputeMetrics() MissionMetrics {
	metrics := MissionMetrics{TotalTasks: len(m.Tasks)}
	for _, t := range m.Tasks {
		switch t.Status {
		case TaskStatusPending, TaskStatusBlocked:
			metrics.PendingTasks++
		case TaskStatusInProgress:
			metrics.RunningTasks++
		case TaskStatusCompleted:
			metrics.CompletedTasks++
		case TaskStatusFailed:
			metrics.FailedTasks++
		}
	}
	return metrics
}
