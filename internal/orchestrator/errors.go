package orchestrator

import "errors"

var (
	// ErrMissionNotFound is returned when a mission id is unknown across
	// the queued, active, and archived sets
	ErrMissionNotFound = errors.New("mission not found")

	// ErrNoCapableAgent is returned when no agent has non-zero confidence
	// for a task type
	ErrNoCapableAgent = errors.New("no capable agent available")

	// ErrOrchestratorStopped is returned when submitting to a stopped orchestrator
	ErrOrchestratorStopped = errors.New("orchestrator stopped")
)

// stalledError is the error text recorded on tasks forced failed by a
// mission deadline
const stalledError = "stalled: mission deadline exceeded"
