package orchestrator

import (
	"context"
	"time"

	"github.com/t77yq/mission-control/internal/agent"
	"github.com/t77yq/mission-control/internal/event"
	"github.com/t77yq/mission-control/internal/model"
)

// missionCoordinator applies agent-side task transitions under the owning
// mission's lock and derives task contexts from the mission context, which
// is how cancellation reaches in-flight work.
type missionCoordinator struct {
	o *Orchestrator
}

// Coordinator returns the coordinator agents of this orchestrator must be
// constructed with.
func (o *Orchestrator) Coordinator() agent.Coordinator {
	return &missionCoordinator{o: o}
}

func (c *missionCoordinator) stateFor(missionID string) *missionState {
	c.o.mu.Lock()
	defer c.o.mu.Unlock()
	return c.o.active[missionID]
}

// TaskContext derives the execution context from the mission context. A
// task whose mission is no longer active gets an already-cancelled context
// so the agent skips it.
func (c *missionCoordinator) TaskContext(parent context.Context, task *model.Task) (context.Context, context.CancelFunc) {
	st := c.stateFor(task.MissionID)
	if st == nil {
		ctx, cancel := context.WithCancel(parent)
		cancel()
		return ctx, cancel
	}
	return context.WithCancel(st.ctx)
}

func (c *missionCoordinator) MarkStarted(task *model.Task) {
	st := c.stateFor(task.MissionID)
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if task.Status != model.TaskStatusPending {
		return
	}
	now := time.Now()
	task.Status = model.TaskStatusInProgress
	task.StartedAt = &now
}

func (c *missionCoordinator) MarkCompleted(task *model.Task, result *model.TaskResult) {
	st := c.stateFor(task.MissionID)
	if st == nil {
		return
	}
	st.mu.Lock()
	if task.Status == model.TaskStatusInProgress {
		now := time.Now()
		task.Status = model.TaskStatusCompleted
		task.Result = result.Result
		task.Artifacts = append(task.Artifacts, result.Artifacts...)
		task.CompletedAt = &now
	}
	st.mu.Unlock()

	c.o.bus.PublishTask(event.SubjectTaskCompleted, task)
	c.o.signalDispatch()
}

func (c *missionCoordinator) MarkFailed(task *model.Task, errMsg string) {
	st := c.stateFor(task.MissionID)
	if st == nil {
		return
	}
	st.mu.Lock()
	if !task.Status.Terminal() {
		now := time.Now()
		task.Status = model.TaskStatusFailed
		task.ErrorMessage = errMsg
		task.CompletedAt = &now
	}
	st.mu.Unlock()

	c.o.bus.PublishTask(event.SubjectTaskFailed, task)
	c.o.signalDispatch()
}
