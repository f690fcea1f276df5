package model

import "time"

// Capability represents a skill an agent declares for a set of task types
type Capability struct {
	Name              string        `json:"name"`
	Description       string        `json:"description,omitempty"`
	InputTypes        []string      `json:"input_types"`
	OutputTypes       []string      `json:"output_types,omitempty"`
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
	ConfidenceScore   float64       `json:"confidence_score"`
}

// Handles reports whether the capability covers the given task type.
func (c Capability) Handles(taskType string) bool {
	for _, t := range c.InputTypes {
		if t == taskType {
			return true
		}
	}
	return false
}
