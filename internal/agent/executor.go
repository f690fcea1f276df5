package agent

import (
	"context"

	"github.com/t77yq/mission-control/internal/model"
)

// TaskExecutor is the work boundary: per-agent business logic invoked once
// per task. Implementations are opaque to the scheduler; they return a
// result or raise an error, ideally an *ExecutionError so retryability is
// known.
type TaskExecutor interface {
	Execute(ctx context.Context, task *model.Task) (*model.TaskResult, error)
}

// Coordinator applies task state transitions on behalf of the agent. The
// task graph is shared with the orchestrator's scheduling loops, so all
// mutations go through the owner of the mission lock. It also derives the
// context a task runs under, which is how mission cancellation reaches
// in-flight work cooperatively.
type Coordinator interface {
	// TaskContext returns the execution context for a task. The returned
	// cancel must be called when execution ends.
	TaskContext(parent context.Context, task *model.Task) (context.Context, context.CancelFunc)

	// MarkStarted transitions a task pending -> in progress.
	MarkStarted(task *model.Task)

	// MarkCompleted transitions a task in progress -> completed.
	MarkCompleted(task *model.Task, result *model.TaskResult)

	// MarkFailed transitions a task in progress -> failed.
	MarkFailed(task *model.Task, errMsg string)
}

// directCoordinator mutates tasks in place with no external locking. It is
// the default for agents running outside an orchestrator.
type directCoordinator struct{}

func (directCoordinator) TaskContext(parent context.Context, task *model.Task) (context.Context, context.CancelFunc) {
	return context.WithCancel(parent)
}

func (directCoordinator) MarkStarted(task *model.Task) {
	now := nowFunc()
	task.Status = model.TaskStatusInProgress
	task.StartedAt = &now
}

func (directCoordinator) MarkCompleted(task *model.Task, result *model.TaskResult) {
	now := nowFunc()
	task.Status = model.TaskStatusCompleted
	task.Result = result.Result
	task.Artifacts = append(task.Artifacts, result.Artifacts...)
	task.CompletedAt = &now
}

func (directCoordinator) MarkFailed(task *model.Task, errMsg string) {
	now := nowFunc()
	task.Status = model.TaskStatusFailed
	task.ErrorMessage = errMsg
	task.CompletedAt = &now
}
