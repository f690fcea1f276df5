package agent

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/t77yq/mission-control/internal/model"
)

// nowFunc is stubbed in tests
var nowFunc = time.Now

// Config defines tunables for an agent's execution loop
type Config struct {
	ID           string
	Name         string
	Capabilities []model.Capability

	// ProcessInterval is the self-scheduler tick. Assignment also wakes
	// the loop so the interval is only an upper bound.
	ProcessInterval time.Duration

	// TaskTimeout bounds a single task execution including retries.
	TaskTimeout time.Duration

	// MaxRetries is the number of re-attempts after a retryable failure.
	MaxRetries           int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

func (c *Config) applyDefaults() {
	if c.ProcessInterval <= 0 {
		c.ProcessInterval = time.Second
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 5 * time.Minute
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = 500 * time.Millisecond
	}
	if c.RetryMaxInterval <= 0 {
		c.RetryMaxInterval = 30 * time.Second
	}
}

// Agent is a worker that self-schedules its own task queue. All queue state
// is mutated either under mu (assignment) or by the single run goroutine
// (execution), so one processTasks cycle runs at a time by construction.
type Agent struct {
	logger      *zap.Logger
	config      Config
	executor    TaskExecutor
	coordinator Coordinator

	mu        sync.Mutex
	pending   []*model.Task
	completed map[string]*model.Task
	failed    map[string]*model.Task
	stopped   bool

	tasksCompleted int
	tasksFailed    int
	totalDuration  time.Duration

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// New creates an agent. A nil coordinator gets the in-place default.
func New(config Config, executor TaskExecutor, coordinator Coordinator, logger *zap.Logger) *Agent {
	config.applyDefaults()
	if coordinator == nil {
		coordinator = directCoordinator{}
	}
	return &Agent{
		logger:      logger.Named("agent").With(zap.String("agent_id", config.ID)),
		config:      config,
		executor:    executor,
		coordinator: coordinator,
		completed:   make(map[string]*model.Task),
		failed:      make(map[string]*model.Task),
		wake:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// ID returns the agent id.
func (a *Agent) ID() string { return a.config.ID }

// Name returns the agent name.
func (a *Agent) Name() string { return a.config.Name }

// Capabilities returns the declared capabilities.
func (a *Agent) Capabilities() []model.Capability { return a.config.Capabilities }

// Start launches the agent's run loop.
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("Starting agent", zap.String("name", a.config.Name))
	go a.run(ctx)
	return nil
}

// Stop stops the run loop and waits for the in-flight task to finish.
func (a *Agent) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.mu.Unlock()

	a.logger.Info("Stopping agent")
	close(a.stop)
	<-a.done
}

// CanHandle returns the confidence score of the first capability whose
// input types contain the task type, or 0 when none matches.
func (a *Agent) CanHandle(task *model.Task) float64 {
	for _, cap := range a.config.Capabilities {
		if cap.Handles(task.Type) {
			return cap.ConfidenceScore
		}
	}
	return 0
}

// Assign accepts a task into the agent's pending set. The assignment is
// recorded on the task exactly once; execution happens asynchronously.
func (a *Agent) Assign(task *model.Task) error {
	if a.CanHandle(task) == 0 {
		return ErrTaskRejected
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return ErrAgentStopped
	}
	if task.AssignedAgent == "" {
		task.AssignedAgent = a.config.ID
	}
	a.pending = append(a.pending, task)

	a.logger.Info("Task assigned",
		zap.String("task_id", task.ID),
		zap.String("task_type", task.Type),
		zap.Int("queue_length", len(a.pending)))

	// Wake the run loop without waiting for the next tick
	select {
	case a.wake <- struct{}{}:
	default:
	}

	return nil
}

// Stats returns a snapshot of the agent's execution statistics.
func (a *Agent) Stats() model.AgentStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := model.AgentStats{
		TasksPending:   len(a.pending),
		TasksCompleted: a.tasksCompleted,
		TasksFailed:    a.tasksFailed,
		CollectedAt:    nowFunc(),
	}
	total := a.tasksCompleted + a.tasksFailed
	if total > 0 {
		stats.SuccessRate = float64(a.tasksCompleted) / float64(total)
	}
	if a.tasksCompleted > 0 {
		stats.MeanCompletionTime = a.totalDuration / time.Duration(a.tasksCompleted)
	}
	return stats
}

// Info returns the registry view of the agent.
func (a *Agent) Info() model.AgentInfo {
	return model.AgentInfo{
		ID:           a.config.ID,
		Name:         a.config.Name,
		Capabilities: a.config.Capabilities,
		Stats:        a.Stats(),
	}
}

// run is the agent's single-writer execution loop.
func (a *Agent) run(ctx context.Context) {
	defer close(a.done)

	ticker := time.NewTicker(a.config.ProcessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case <-a.wake:
			a.processTasks(ctx)
		case <-ticker.C:
			a.processTasks(ctx)
		}
	}
}

// processTasks drains the pending set, executing tasks one at a time in
// priority order with a stable tie-break on assignment order.
func (a *Agent) processTasks(ctx context.Context) {
	a.mu.Lock()
	batch := a.pending
	a.pending = nil
	a.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].Priority > batch[j].Priority
	})

	for _, task := range batch {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			// Push unexecuted tasks back so a drain can observe them
			a.mu.Lock()
			a.pending = append(a.pending, task)
			a.mu.Unlock()
			continue
		default:
		}
		a.executeWithMonitoring(ctx, task)
	}
}

// executeWithMonitoring runs one task through the executor, applying state
// transitions via the coordinator and updating agent statistics.
func (a *Agent) executeWithMonitoring(ctx context.Context, task *model.Task) {
	taskCtx, cancel := a.coordinator.TaskContext(ctx, task)
	defer cancel()

	if taskCtx.Err() != nil {
		// Mission was cancelled before the task started
		a.recordFailure(task, "mission cancelled before execution")
		return
	}

	a.coordinator.MarkStarted(task)
	started := nowFunc()

	a.logger.Info("Executing task",
		zap.String("task_id", task.ID),
		zap.String("task_type", task.Type))

	result, err := a.executeWithRetry(taskCtx, task)
	duration := nowFunc().Sub(started)

	if err != nil {
		a.logger.Warn("Task execution failed",
			zap.String("task_id", task.ID),
			zap.Duration("duration", duration),
			zap.Error(err))
		a.recordFailure(task, err.Error())
		return
	}

	a.coordinator.MarkCompleted(task, result)

	a.mu.Lock()
	a.completed[task.ID] = task
	a.tasksCompleted++
	a.totalDuration += duration
	a.mu.Unlock()

	a.logger.Info("Task completed",
		zap.String("task_id", task.ID),
		zap.Duration("duration", duration))
}

// executeWithRetry invokes the executor with bounded exponential backoff.
// Terminal failures and context cancellation stop the retry loop early.
func (a *Agent) executeWithRetry(ctx context.Context, task *model.Task) (*model.TaskResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, a.config.TaskTimeout)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = a.config.RetryInitialInterval
	policy.MaxInterval = a.config.RetryMaxInterval

	var result *model.TaskResult
	operation := func() error {
		res, err := a.executor.Execute(execCtx, task)
		if err != nil {
			if !Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(a.config.MaxRetries)), execCtx))
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (a *Agent) recordFailure(task *model.Task, msg string) {
	a.coordinator.MarkFailed(task, msg)

	a.mu.Lock()
	a.failed[task.ID] = task
	a.tasksFailed++
	a.mu.Unlock()
}
