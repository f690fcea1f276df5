package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/mission-control/internal/agent"
	"github.com/t77yq/mission-control/internal/model"
)

// planExecutor stands in for a planning agent's decomposition call.
type planExecutor struct {
	payload string
	err     error
	block   bool
}

func (e *planExecutor) Execute(ctx context.Context, task *model.Task) (*model.TaskResult, error) {
	if e.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	return &model.TaskResult{
		TaskID: task.ID,
		Result: map[string]interface{}{"plan": e.payload},
	}, nil
}

// scriptedExecutor records execution order and fails scripted task names.
type scriptedExecutor struct {
	mu       sync.Mutex
	executed []string
	fail     map[string]error
	block    bool
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{fail: make(map[string]error)}
}

func (e *scriptedExecutor) Execute(ctx context.Context, task *model.Task) (*model.TaskResult, error) {
	if e.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	e.mu.Lock()
	e.executed = append(e.executed, task.Name)
	err := e.fail[task.Name]
	e.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &model.TaskResult{
		TaskID:    task.ID,
		Result:    map[string]interface{}{"done": task.Name},
		Artifacts: []string{"artifact-" + task.Name},
	}, nil
}

func (e *scriptedExecutor) order() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.executed))
	copy(out, e.executed)
	return out
}

func fastConfig() Config {
	return Config{
		MaxConcurrentMissions: 3,
		AdmissionInterval:     10 * time.Millisecond,
		DispatchInterval:      10 * time.Millisecond,
		ProgressInterval:      10 * time.Millisecond,
		MissionDeadline:       10 * time.Minute,
	}
}

func workAgent(id string, types []string, exec agent.TaskExecutor, c agent.Coordinator) *agent.Agent {
	return agent.New(agent.Config{
		ID:   id,
		Name: id,
		Capabilities: []model.Capability{{
			Name:            id + "-cap",
			InputTypes:      types,
			ConfidenceScore: 0.9,
		}},
		ProcessInterval:      5 * time.Millisecond,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     5 * time.Millisecond,
	}, exec, c, zap.NewNop())
}

func startOrchestrator(t *testing.T, cfg Config, build func(c agent.Coordinator) []*agent.Agent) *Orchestrator {
	t.Helper()

	logger := zap.NewNop()
	registry := NewAgentRegistry(logger)
	orch := New(cfg, registry, nil, nil, nil, logger)

	for _, a := range build(orch.Coordinator()) {
		require.NoError(t, registry.Register(a))
		require.NoError(t, a.Start(context.Background()))
	}
	require.NoError(t, orch.Start(context.Background()))
	t.Cleanup(orch.Stop)

	return orch
}

func waitForStatus(t *testing.T, orch *Orchestrator, missionID string, status model.MissionStatus) *model.MissionStatusReport {
	t.Helper()

	var report *model.MissionStatusReport
	require.Eventually(t, func() bool {
		r, err := orch.GetMissionStatus(context.Background(), missionID)
		if err != nil {
			return false
		}
		report = r
		return r.Status == status
	}, 5*time.Second, 10*time.Millisecond)
	return report
}

const chainPlanPayload = `{
	"subtasks": [
		{"name": "first", "description": "step one", "phase": "research", "agent_type": "worker", "priority": 3},
		{"name": "second", "description": "step two", "phase": "execution", "agent_type": "worker", "priority": 2, "dependencies": ["first"]}
	]
}`

func TestOrchestratorLifecycle(t *testing.T) {
	t.Run("Dependent Tasks Run In Order", func(t *testing.T) {
		worker := newScriptedExecutor()
		orch := startOrchestrator(t, fastConfig(), func(c agent.Coordinator) []*agent.Agent {
			return []*agent.Agent{
				workAgent("planner", []string{model.TaskTypePlanning}, &planExecutor{payload: chainPlanPayload}, c),
				workAgent("worker", []string{"worker"}, worker, c),
			}
		})

		id, err := orch.StartMission("ship it", nil, model.TaskPriorityHigh)
		require.NoError(t, err)

		report := waitForStatus(t, orch, id, model.MissionStatusCompleted)
		assert.Equal(t, []string{"first", "second"}, worker.order())
		assert.Equal(t, 100.0, report.ProgressPercentage)
		assert.Equal(t, 2, report.Metrics.CompletedTasks)
		assert.Equal(t, 0, report.Metrics.FailedTasks)

		// Results carry per-task outcomes and collected artifacts
		require.NotNil(t, report.Results)
		assert.Contains(t, report.Results, "first")
		assert.Contains(t, report.Results, "second")
		assert.ElementsMatch(t, []string{"artifact-first", "artifact-second"},
			report.Results["artifacts"])
	})

	t.Run("Partial Failure Fails Mission", func(t *testing.T) {
		payload := `{
			"subtasks": [
				{"name": "good", "agent_type": "worker", "priority": 2},
				{"name": "bad", "agent_type": "worker", "priority": 2}
			]
		}`
		worker := newScriptedExecutor()
		worker.fail["bad"] = &agent.ExecutionError{Reason: "ran out of road", Retryable: false}

		orch := startOrchestrator(t, fastConfig(), func(c agent.Coordinator) []*agent.Agent {
			return []*agent.Agent{
				workAgent("planner", []string{model.TaskTypePlanning}, &planExecutor{payload: payload}, c),
				workAgent("worker", []string{"worker"}, worker, c),
			}
		})

		id, err := orch.StartMission("mixed outcome", nil, model.TaskPriorityMedium)
		require.NoError(t, err)

		report := waitForStatus(t, orch, id, model.MissionStatusFailed)
		assert.Equal(t, 1, report.Metrics.CompletedTasks)
		assert.Equal(t, 1, report.Metrics.FailedTasks)

		require.NotNil(t, report.Results)
		good := report.Results["good"].(map[string]interface{})
		assert.Equal(t, string(model.TaskStatusCompleted), good["status"])
		bad := report.Results["bad"].(map[string]interface{})
		assert.Equal(t, string(model.TaskStatusFailed), bad["status"])
		assert.Contains(t, bad["error"], "ran out of road")
	})

	t.Run("Failed Decomposition Falls Back To Bootstrap", func(t *testing.T) {
		worker := newScriptedExecutor()
		orch := startOrchestrator(t, fastConfig(), func(c agent.Coordinator) []*agent.Agent {
			return []*agent.Agent{
				workAgent("planner", []string{model.TaskTypePlanning},
					&planExecutor{err: &agent.ExecutionError{Reason: "provider down", Retryable: false}}, c),
				workAgent("worker", []string{"research", "general"}, worker, c),
			}
		})

		id, err := orch.StartMission("recover anyway", nil, model.TaskPriorityMedium)
		require.NoError(t, err)

		report := waitForStatus(t, orch, id, model.MissionStatusCompleted)
		assert.Equal(t, []string{"bootstrap-research", "bootstrap-execution"}, worker.order())
		assert.Equal(t, 2, report.Metrics.CompletedTasks)
	})

	t.Run("Unparseable Plan Falls Back To Bootstrap", func(t *testing.T) {
		worker := newScriptedExecutor()
		orch := startOrchestrator(t, fastConfig(), func(c agent.Coordinator) []*agent.Agent {
			return []*agent.Agent{
				workAgent("planner", []string{model.TaskTypePlanning},
					&planExecutor{payload: `{"subtasks": [`}, c),
				workAgent("worker", []string{"research", "general"}, worker, c),
			}
		})

		id, err := orch.StartMission("mangled plan", nil, model.TaskPriorityMedium)
		require.NoError(t, err)

		waitForStatus(t, orch, id, model.MissionStatusCompleted)
		assert.Equal(t, []string{"bootstrap-research", "bootstrap-execution"}, worker.order())
	})

	t.Run("Cyclic Plan Falls Back To Bootstrap", func(t *testing.T) {
		payload := `{
			"subtasks": [
				{"name": "a", "agent_type": "worker", "dependencies": ["b"]},
				{"name": "b", "agent_type": "worker", "dependencies": ["a"]}
			]
		}`
		worker := newScriptedExecutor()
		orch := startOrchestrator(t, fastConfig(), func(c agent.Coordinator) []*agent.Agent {
			return []*agent.Agent{
				workAgent("planner", []string{model.TaskTypePlanning}, &planExecutor{payload: payload}, c),
				workAgent("worker", []string{"worker", "research", "general"}, worker, c),
			}
		})

		id, err := orch.StartMission("impossible graph", nil, model.TaskPriorityMedium)
		require.NoError(t, err)

		waitForStatus(t, orch, id, model.MissionStatusCompleted)
		assert.Equal(t, []string{"bootstrap-research", "bootstrap-execution"}, worker.order())
	})

	t.Run("Concurrency Cap Queues Overflow", func(t *testing.T) {
		cfg := fastConfig()
		cfg.MaxConcurrentMissions = 1

		orch := startOrchestrator(t, cfg, func(c agent.Coordinator) []*agent.Agent {
			return []*agent.Agent{
				workAgent("planner", []string{model.TaskTypePlanning}, &planExecutor{block: true}, c),
			}
		})

		first, err := orch.StartMission("holds the slot", nil, model.TaskPriorityMedium)
		require.NoError(t, err)
		second, err := orch.StartMission("waits in line", nil, model.TaskPriorityMedium)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			c := orch.Counters()
			return c.MissionsActive == 1 && c.MissionsQueued == 1
		}, 5*time.Second, 10*time.Millisecond)

		report, err := orch.GetMissionStatus(context.Background(), second)
		require.NoError(t, err)
		assert.Equal(t, model.MissionStatusPending, report.Status)

		// Freeing the slot admits the queued mission
		ok, err := orch.CancelMission(context.Background(), first)
		require.NoError(t, err)
		assert.True(t, ok)

		require.Eventually(t, func() bool {
			r, err := orch.GetMissionStatus(context.Background(), second)
			return err == nil && r.Status != model.MissionStatusPending
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("Cancel Active Mission", func(t *testing.T) {
		worker := newScriptedExecutor()
		worker.block = true

		orch := startOrchestrator(t, fastConfig(), func(c agent.Coordinator) []*agent.Agent {
			return []*agent.Agent{
				workAgent("planner", []string{model.TaskTypePlanning}, &planExecutor{payload: chainPlanPayload}, c),
				workAgent("worker", []string{"worker"}, worker, c),
			}
		})

		id, err := orch.StartMission("long haul", nil, model.TaskPriorityMedium)
		require.NoError(t, err)
		waitForStatus(t, orch, id, model.MissionStatusInProgress)

		ok, err := orch.CancelMission(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, ok)

		report := waitForStatus(t, orch, id, model.MissionStatusCancelled)
		assert.Equal(t, model.MissionStatusCancelled, report.Status)

		// Cancelling a terminal mission is a no-op
		ok, err = orch.CancelMission(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Cancel Unknown Mission", func(t *testing.T) {
		orch := startOrchestrator(t, fastConfig(), func(c agent.Coordinator) []*agent.Agent {
			return nil
		})

		_, err := orch.CancelMission(context.Background(), "no-such-mission")
		assert.ErrorIs(t, err, ErrMissionNotFound)
	})

	t.Run("Status Of Unknown Mission", func(t *testing.T) {
		orch := startOrchestrator(t, fastConfig(), func(c agent.Coordinator) []*agent.Agent {
			return nil
		})

		_, err := orch.GetMissionStatus(context.Background(), "no-such-mission")
		assert.ErrorIs(t, err, ErrMissionNotFound)
	})

	t.Run("Deadline Fails Stalled Mission", func(t *testing.T) {
		cfg := fastConfig()
		cfg.MissionDeadline = 50 * time.Millisecond

		orch := startOrchestrator(t, cfg, func(c agent.Coordinator) []*agent.Agent {
			return []*agent.Agent{
				workAgent("planner", []string{model.TaskTypePlanning}, &planExecutor{block: true}, c),
			}
		})

		id, err := orch.StartMission("never finishes planning", nil, model.TaskPriorityMedium)
		require.NoError(t, err)

		report := waitForStatus(t, orch, id, model.MissionStatusFailed)
		assert.Equal(t, model.MissionStatusFailed, report.Status)
	})

	t.Run("Archived Status Is Stable", func(t *testing.T) {
		worker := newScriptedExecutor()
		orch := startOrchestrator(t, fastConfig(), func(c agent.Coordinator) []*agent.Agent {
			return []*agent.Agent{
				workAgent("planner", []string{model.TaskTypePlanning}, &planExecutor{payload: chainPlanPayload}, c),
				workAgent("worker", []string{"worker"}, worker, c),
			}
		})

		id, err := orch.StartMission("done and dusted", nil, model.TaskPriorityMedium)
		require.NoError(t, err)
		waitForStatus(t, orch, id, model.MissionStatusCompleted)

		for i := 0; i < 3; i++ {
			report, err := orch.GetMissionStatus(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, model.MissionStatusCompleted, report.Status)
			assert.Equal(t, 100.0, report.ProgressPercentage)
		}

		counters := orch.Counters()
		assert.Equal(t, 1, counters.MissionsSubmitted)
		assert.Equal(t, 1, counters.MissionsCompleted)
		assert.Equal(t, 0, counters.MissionsActive)
	})

	t.Run("Submit After Stop", func(t *testing.T) {
		logger := zap.NewNop()
		orch := New(fastConfig(), NewAgentRegistry(logger), nil, nil, nil, logger)
		require.NoError(t, orch.Start(context.Background()))
		orch.Stop()

		_, err := orch.StartMission("too late", nil, model.TaskPriorityMedium)
		assert.ErrorIs(t, err, ErrOrchestratorStopped)
	})
}
