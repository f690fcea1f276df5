package work

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/t77yq/mission-control/internal/agent"
	"github.com/t77yq/mission-control/internal/model"
)

// Decomposer is the external decomposition provider: given a mission
// description it returns a raw plan payload. Latency is unbounded and the
// payload may be malformed; callers must not trust it.
type Decomposer interface {
	Decompose(ctx context.Context, description string, requirements map[string]interface{}) ([]byte, error)
}

// PlannerExecutor runs decomposition tasks by calling the provider behind
// a circuit breaker. A tripped breaker fails fast, which downstream turns
// into the bootstrap fallback plan rather than a mission failure.
type PlannerExecutor struct {
	logger     *zap.Logger
	decomposer Decomposer
	breaker    *gobreaker.CircuitBreaker
}

// NewPlannerExecutor creates a planner executor around the provider.
func NewPlannerExecutor(decomposer Decomposer, logger *zap.Logger) *PlannerExecutor {
	log := logger.Named("planner")
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "decomposition-provider",
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &PlannerExecutor{
		logger:     log,
		decomposer: decomposer,
		breaker:    breaker,
	}
}

// Execute implements agent.TaskExecutor for planning tasks. The raw plan
// payload is returned in the result under "plan".
func (e *PlannerExecutor) Execute(ctx context.Context, task *model.Task) (*model.TaskResult, error) {
	description, _ := task.Context["mission_description"].(string)
	if description == "" {
		description = task.Description
	}

	payload, err := e.breaker.Execute(func() (interface{}, error) {
		return e.decomposer.Decompose(ctx, description, task.Requirements)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, &agent.ExecutionError{Reason: "decomposition provider unavailable", Retryable: false, Err: err}
		}
		if ctx.Err() != nil {
			return nil, &agent.ExecutionError{Reason: "decomposition timed out", Retryable: true, Err: err}
		}
		return nil, &agent.ExecutionError{Reason: "decomposition failed", Retryable: true, Err: err}
	}

	return &model.TaskResult{
		TaskID:    task.ID,
		MissionID: task.MissionID,
		Status:    model.TaskStatusCompleted,
		Result: map[string]interface{}{
			"plan": string(payload.([]byte)),
		},
		CompletedAt: time.Now(),
	}, nil
}
