package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/t77yq/mission-control/internal/event"
	"github.com/t77yq/mission-control/internal/model"
	"github.com/t77yq/mission-control/internal/plan"
	"github.com/t77yq/mission-control/internal/storage"
)

// Config defines orchestrator tunables
type Config struct {
	MaxConcurrentMissions int
	AdmissionInterval     time.Duration
	DispatchInterval      time.Duration
	ProgressInterval      time.Duration

	// MissionDeadline bounds a mission's total runtime. Tasks still
	// non-terminal at the deadline are forced failed as stalled.
	MissionDeadline time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrentMissions <= 0 {
		c.MaxConcurrentMissions = 3
	}
	if c.AdmissionInterval <= 0 {
		c.AdmissionInterval = 5 * time.Second
	}
	if c.DispatchInterval <= 0 {
		c.DispatchInterval = 5 * time.Second
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = 10 * time.Second
	}
	if c.MissionDeadline <= 0 {
		c.MissionDeadline = 30 * time.Minute
	}
}

// Counters holds orchestrator-wide mission counts
type Counters struct {
	MissionsSubmitted int `json:"missions_submitted"`
	MissionsQueued    int `json:"missions_queued"`
	MissionsActive    int `json:"missions_active"`
	MissionsCompleted int `json:"missions_completed"`
	MissionsFailed    int `json:"missions_failed"`
	MissionsCancelled int `json:"missions_cancelled"`
}

// missionState wraps an active mission with its lock and cancellation
// context. The lock serializes the dispatch loop, the progress loop, and
// agent-side task transitions over the mission's task graph.
type missionState struct {
	mu           sync.Mutex
	mission      *model.Mission
	planningTask *model.Task
	ctx          context.Context
	cancel       context.CancelFunc
}

// Orchestrator owns the agent pool, the mission queue, and the active and
// archived mission sets. Three periodic loops drive missions through their
// lifecycle: admission, dispatch, and progress.
type Orchestrator struct {
	logger   *zap.Logger
	config   Config
	registry *AgentRegistry
	strategy MatchStrategy
	bus      *event.Bus
	archive  storage.MissionArchive

	mu        sync.Mutex
	queue     *missionQueue
	active    map[string]*missionState
	archived  map[string]*model.Mission
	submitted int
	completed int
	failed    int
	cancelled int
	stopped   bool

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates an orchestrator. The bus and archive may be nil, in which
// case events are dropped and finished missions stay in memory only.
func New(config Config, registry *AgentRegistry, strategy MatchStrategy, bus *event.Bus, archive storage.MissionArchive, logger *zap.Logger) *Orchestrator {
	config.applyDefaults()
	if strategy == nil {
		strategy = BestConfidenceStrategy{}
	}
	return &Orchestrator{
		logger:   logger.Named("orchestrator"),
		config:   config,
		registry: registry,
		strategy: strategy,
		bus:      bus,
		archive:  archive,
		queue:    newMissionQueue(),
		active:   make(map[string]*missionState),
		archived: make(map[string]*model.Mission),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

// Registry returns the orchestrator's agent registry.
func (o *Orchestrator) Registry() *AgentRegistry { return o.registry }

// Start launches the scheduling loops.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.logger.Info("Starting orchestrator",
		zap.Int("max_concurrent_missions", o.config.MaxConcurrentMissions),
		zap.Duration("admission_interval", o.config.AdmissionInterval),
		zap.Duration("dispatch_interval", o.config.DispatchInterval),
		zap.Duration("progress_interval", o.config.ProgressInterval))

	o.wg.Add(3)
	go o.admissionLoop(ctx)
	go o.dispatchLoop(ctx)
	go o.progressLoop(ctx)

	return nil
}

// Stop stops the loops, cancels remaining active missions, and drains the
// agent pool.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	states := make([]*missionState, 0, len(o.active))
	for _, st := range o.active {
		states = append(states, st)
	}
	o.mu.Unlock()

	o.logger.Info("Stopping orchestrator")
	close(o.stop)
	o.wg.Wait()

	for _, st := range states {
		st.cancel()
	}

	g := new(errgroup.Group)
	for _, a := range o.registry.List() {
		a := a
		g.Go(func() error {
			a.Stop()
			return nil
		})
	}
	_ = g.Wait()
}

// StartMission enqueues a new mission and returns its id immediately.
func (o *Orchestrator) StartMission(description string, requirements map[string]interface{}, priority model.TaskPriority) (string, error) {
	now := time.Now()
	mission := &model.Mission{
		ID:           uuid.New().String(),
		Description:  description,
		Requirements: requirements,
		Priority:     priority,
		Status:       model.MissionStatusPending,
		CreatedAt:    now,
		Deadline:     now.Add(o.config.MissionDeadline),
	}

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return "", ErrOrchestratorStopped
	}
	o.queue.push(mission)
	o.submitted++
	queued := o.queue.Len()
	o.mu.Unlock()

	o.bus.PublishMission(event.SubjectMissionSubmitted, mission)

	o.logger.Info("Mission submitted",
		zap.String("mission_id", mission.ID),
		zap.Int("priority", int(priority)),
		zap.Int("queue_length", queued))

	return mission.ID, nil
}

// GetMissionStatus returns a snapshot for any known mission id.
func (o *Orchestrator) GetMissionStatus(ctx context.Context, missionID string) (*model.MissionStatusReport, error) {
	o.mu.Lock()
	if st, ok := o.active[missionID]; ok {
		o.mu.Unlock()
		st.mu.Lock()
		defer st.mu.Unlock()
		return reportFor(st.mission), nil
	}
	if m := o.queue.find(missionID); m != nil {
		o.mu.Unlock()
		return reportFor(m), nil
	}
	if m, ok := o.archived[missionID]; ok {
		o.mu.Unlock()
		return reportFor(m), nil
	}
	o.mu.Unlock()

	if o.archive != nil {
		m, err := o.archive.Get(ctx, missionID)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return reportFor(m), nil
		}
	}

	return nil, ErrMissionNotFound
}

// CancelMission moves a non-terminal mission to cancelled and archives it.
// In-flight task executions are cancelled cooperatively through the
// mission context; they are never preempted.
func (o *Orchestrator) CancelMission(ctx context.Context, missionID string) (bool, error) {
	o.mu.Lock()
	if st, ok := o.active[missionID]; ok {
		o.mu.Unlock()

		st.mu.Lock()
		if st.mission.Status.Terminal() {
			st.mu.Unlock()
			return false, nil
		}
		now := time.Now()
		st.mission.Status = model.MissionStatusCancelled
		st.mission.CompletedAt = &now
		st.mission.Metrics = st.mission.ComputeMetrics()
		mission := st.mission
		st.mu.Unlock()

		st.cancel()
		o.archiveMission(ctx, mission, event.SubjectMissionCancelled)

		o.logger.Info("Mission cancelled", zap.String("mission_id", missionID))
		return true, nil
	}

	if m := o.queue.find(missionID); m != nil {
		now := time.Now()
		m.Status = model.MissionStatusCancelled
		m.CompletedAt = &now
		o.archived[m.ID] = m
		o.cancelled++
		o.mu.Unlock()

		o.bus.PublishMission(event.SubjectMissionCancelled, m)
		o.storeArchive(ctx, m)

		o.logger.Info("Queued mission cancelled", zap.String("mission_id", missionID))
		return true, nil
	}

	if _, ok := o.archived[missionID]; ok {
		o.mu.Unlock()
		return false, nil
	}
	o.mu.Unlock()

	return false, ErrMissionNotFound
}

// Counters returns orchestrator-wide mission counts.
func (o *Orchestrator) Counters() Counters {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Counters{
		MissionsSubmitted: o.submitted,
		MissionsQueued:    o.queue.Len(),
		MissionsActive:    len(o.active),
		MissionsCompleted: o.completed,
		MissionsFailed:    o.failed,
		MissionsCancelled: o.cancelled,
	}
}

// AgentInfos returns the registry view of the agent pool.
func (o *Orchestrator) AgentInfos() []model.AgentInfo {
	return o.registry.Infos()
}

// admissionLoop promotes queued missions into the active set.
func (o *Orchestrator) admissionLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.config.AdmissionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stop:
			return
		case <-ticker.C:
			o.admitMissions(ctx)
		}
	}
}

// dispatchLoop materializes plans and assigns ready tasks. Task completion
// wakes it eagerly so dispatch latency is not bound to the tick.
func (o *Orchestrator) dispatchLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.config.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stop:
			return
		case <-o.wake:
			o.dispatchMissions(ctx)
		case <-ticker.C:
			o.dispatchMissions(ctx)
		}
	}
}

// progressLoop recomputes progress and finalizes finished missions.
func (o *Orchestrator) progressLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.config.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stop:
			return
		case <-ticker.C:
			o.updateProgress(ctx)
		}
	}
}

// admitMissions pops missions off the queue while capacity remains and
// issues their decomposition tasks.
func (o *Orchestrator) admitMissions(ctx context.Context) {
	for {
		o.mu.Lock()
		if len(o.active) >= o.config.MaxConcurrentMissions {
			o.mu.Unlock()
			return
		}
		mission := o.queue.pop()
		if mission == nil {
			o.mu.Unlock()
			return
		}

		mission.Status = model.MissionStatusPlanning
		mission.CurrentPhase = "planning"
		missionCtx, cancel := context.WithCancel(context.Background())
		st := &missionState{
			mission: mission,
			ctx:     missionCtx,
			cancel:  cancel,
		}
		o.active[mission.ID] = st
		o.mu.Unlock()

		o.bus.PublishMission(event.SubjectMissionPlanning, mission)
		o.logger.Info("Mission admitted",
			zap.String("mission_id", mission.ID),
			zap.Int("priority", int(mission.Priority)))

		o.issuePlanningTask(st)
	}
}

// issuePlanningTask creates the decomposition request and assigns it to the
// best planning-capable agent. With no such agent the task fails in place
// and the dispatch loop falls back to the bootstrap plan.
func (o *Orchestrator) issuePlanningTask(st *missionState) {
	st.mu.Lock()
	mission := st.mission
	task := &model.Task{
		ID:          uuid.New().String(),
		MissionID:   mission.ID,
		Type:        model.TaskTypePlanning,
		Name:        "decompose-mission",
		Description: mission.Description,
		Status:      model.TaskStatusPending,
		Priority:    model.TaskPriorityCritical,
		Context: map[string]interface{}{
			"mission_description": mission.Description,
		},
		Requirements: mission.Requirements,
		CreatedAt:    time.Now(),
	}
	st.planningTask = task
	st.mu.Unlock()

	if err := o.dispatchTask(task); err != nil {
		o.logger.Warn("No agent for decomposition task, will bootstrap",
			zap.String("mission_id", mission.ID),
			zap.Error(err))
		st.mu.Lock()
		now := time.Now()
		task.Status = model.TaskStatusFailed
		task.ErrorMessage = err.Error()
		task.CompletedAt = &now
		st.mu.Unlock()
	}
}

// dispatchTask matches a task to the best agent and assigns it.
func (o *Orchestrator) dispatchTask(task *model.Task) error {
	best, err := o.strategy.Select(o.registry.List(), task)
	if err != nil {
		return err
	}
	if err := best.Assign(task); err != nil {
		return err
	}
	o.bus.PublishTask(event.SubjectTaskAssigned, task)
	return nil
}

// dispatchMissions advances every active mission: planning missions whose
// decomposition finished get their task graphs materialized, and running
// missions get ready tasks assigned in priority order.
func (o *Orchestrator) dispatchMissions(ctx context.Context) {
	for _, st := range o.activeStates() {
		st.mu.Lock()
		switch st.mission.Status {
		case model.MissionStatusPlanning:
			o.materializePlan(st)
		case model.MissionStatusInProgress:
			o.dispatchReadyTasks(st)
		}
		st.mu.Unlock()
	}
}

// materializePlan turns a finished decomposition into the mission's task
// graph. Parse failures, invalid graphs, and failed decomposition all fall
// back to the bootstrap plan so the mission never stalls in planning.
// Called with st.mu held.
func (o *Orchestrator) materializePlan(st *missionState) {
	mission := st.mission
	pt := st.planningTask
	if pt == nil || !pt.Status.Terminal() {
		return
	}

	var missionPlan *model.MissionPlan
	if pt.Status == model.TaskStatusCompleted {
		if raw, ok := pt.Result["plan"].(string); ok {
			mission.Plan = []byte(raw)
			parsed, err := plan.Parse([]byte(raw))
			if err != nil {
				o.logger.Warn("Unparseable decomposition payload",
					zap.String("mission_id", mission.ID),
					zap.Error(err))
			} else {
				missionPlan = parsed
			}
		}
	}

	if missionPlan == nil {
		o.logger.Info("Falling back to bootstrap plan",
			zap.String("mission_id", mission.ID))
		missionPlan = plan.Bootstrap(mission)
	}

	tasks, err := plan.Materialize(missionPlan, mission)
	if err != nil {
		// Provider plan had a cyclic or dangling dependency graph; the
		// bootstrap plan is always valid
		o.logger.Warn("Invalid task graph in plan, using bootstrap",
			zap.String("mission_id", mission.ID),
			zap.Error(err))
		tasks, err = plan.Materialize(plan.Bootstrap(mission), mission)
		if err != nil {
			o.logger.Error("Bootstrap plan failed to materialize",
				zap.String("mission_id", mission.ID),
				zap.Error(err))
			return
		}
	}

	now := time.Now()
	mission.Tasks = tasks
	mission.Status = model.MissionStatusInProgress
	mission.StartedAt = &now
	mission.Metrics = mission.ComputeMetrics()
	updatePhase(mission)

	o.bus.PublishMission(event.SubjectMissionStarted, mission)
	o.logger.Info("Mission started",
		zap.String("mission_id", mission.ID),
		zap.Int("tasks", len(tasks)))

	o.dispatchReadyTasks(st)
}

// dispatchReadyTasks assigns unassigned pending tasks whose dependencies
// are all completed, highest priority first with a stable tie-break on
// declaration order. Called with st.mu held.
func (o *Orchestrator) dispatchReadyTasks(st *missionState) {
	mission := st.mission

	var ready []*model.Task
	for _, task := range mission.Tasks {
		if task.Status != model.TaskStatusPending || task.AssignedAgent != "" {
			continue
		}
		if plan.Ready(task, mission) {
			ready = append(ready, task)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].Priority > ready[j].Priority
	})

	for _, task := range ready {
		if err := o.dispatchTask(task); err != nil {
			o.logger.Warn("Task not dispatchable",
				zap.String("mission_id", mission.ID),
				zap.String("task_id", task.ID),
				zap.String("task_type", task.Type),
				zap.Error(err))
			continue
		}
		o.logger.Info("Task dispatched",
			zap.String("mission_id", mission.ID),
			zap.String("task_id", task.ID),
			zap.String("agent_id", task.AssignedAgent))
	}

	updatePhase(mission)
}

// updateProgress recomputes progress for every active mission, enforces
// deadlines, and finalizes missions whose tasks are all terminal.
func (o *Orchestrator) updateProgress(ctx context.Context) {
	now := time.Now()

	for _, st := range o.activeStates() {
		st.mu.Lock()
		mission := st.mission

		if mission.Status.Terminal() {
			st.mu.Unlock()
			continue
		}

		if now.After(mission.Deadline) {
			o.failStalled(st, now)
		}

		if mission.Status == model.MissionStatusInProgress {
			mission.Metrics = mission.ComputeMetrics()
			recomputeProgress(mission, now)
		}

		if missionFinished(mission) {
			o.finalizeMission(mission, now)
		}
		terminal := mission.Status.Terminal()
		st.mu.Unlock()

		if terminal {
			subject := event.SubjectMissionCompleted
			if mission.Status == model.MissionStatusFailed {
				subject = event.SubjectMissionFailed
			}
			st.cancel()
			o.archiveMission(ctx, mission, subject)
		}
	}
}

// failStalled forces every non-terminal task of an overdue mission to
// failed and cancels its context. Called with st.mu held.
func (o *Orchestrator) failStalled(st *missionState, now time.Time) {
	mission := st.mission
	o.logger.Warn("Mission deadline exceeded",
		zap.String("mission_id", mission.ID),
		zap.Time("deadline", mission.Deadline))

	if pt := st.planningTask; pt != nil && !pt.Status.Terminal() {
		pt.Status = model.TaskStatusFailed
		pt.ErrorMessage = stalledError
		pt.CompletedAt = &now
	}
	for _, task := range mission.Tasks {
		if !task.Status.Terminal() {
			task.Status = model.TaskStatusFailed
			task.ErrorMessage = stalledError
			task.CompletedAt = &now
		}
	}

	if mission.Status == model.MissionStatusPlanning || len(mission.Tasks) == 0 {
		// Never materialized; fail the mission directly
		mission.Status = model.MissionStatusFailed
		mission.CompletedAt = &now
		mission.Metrics = mission.ComputeMetrics()
	} else {
		mission.Status = model.MissionStatusInProgress
	}
}

// finalizeMission aggregates task outcomes into the mission result. Called
// with st.mu held after all tasks reached a terminal state.
func (o *Orchestrator) finalizeMission(mission *model.Mission, now time.Time) {
	if mission.Status.Terminal() {
		return
	}

	mission.Metrics = mission.ComputeMetrics()
	if mission.Metrics.FailedTasks > 0 {
		mission.Status = model.MissionStatusFailed
	} else {
		mission.Status = model.MissionStatusCompleted
	}
	mission.CompletedAt = &now
	mission.ProgressPercentage = 100

	results := make(map[string]interface{}, len(mission.Tasks))
	var artifacts []string
	for _, task := range mission.Tasks {
		entry := map[string]interface{}{
			"status": string(task.Status),
		}
		if task.Result != nil {
			entry["result"] = task.Result
		}
		if task.ErrorMessage != "" {
			entry["error"] = task.ErrorMessage
		}
		results[task.Name] = entry
		artifacts = append(artifacts, task.Artifacts...)
	}
	if len(artifacts) > 0 {
		results["artifacts"] = artifacts
	}
	mission.Results = results

	o.logger.Info("Mission finalized",
		zap.String("mission_id", mission.ID),
		zap.String("status", string(mission.Status)),
		zap.Int("completed_tasks", mission.Metrics.CompletedTasks),
		zap.Int("failed_tasks", mission.Metrics.FailedTasks))
}

// archiveMission moves a terminal mission out of the active set.
func (o *Orchestrator) archiveMission(ctx context.Context, mission *model.Mission, subject string) {
	o.mu.Lock()
	delete(o.active, mission.ID)
	o.archived[mission.ID] = mission
	switch mission.Status {
	case model.MissionStatusCompleted:
		o.completed++
	case model.MissionStatusFailed:
		o.failed++
	case model.MissionStatusCancelled:
		o.cancelled++
	}
	o.mu.Unlock()

	o.bus.PublishMission(subject, mission)
	o.storeArchive(ctx, mission)
}

func (o *Orchestrator) storeArchive(ctx context.Context, mission *model.Mission) {
	if o.archive == nil {
		return
	}
	if err := o.archive.Store(ctx, mission); err != nil {
		o.logger.Error("Failed to archive mission",
			zap.String("mission_id", mission.ID),
			zap.Error(err))
	}
}

// activeStates snapshots the active mission set.
func (o *Orchestrator) activeStates() []*missionState {
	o.mu.Lock()
	defer o.mu.Unlock()

	states := make([]*missionState, 0, len(o.active))
	for _, st := range o.active {
		states = append(states, st)
	}
	return states
}

// signalDispatch wakes the dispatch loop without blocking.
func (o *Orchestrator) signalDispatch() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// missionFinished reports whether every task is terminal. Missions without
// a materialized task graph are never finished here; the deadline path
// handles a permanently stalled planning phase.
func missionFinished(m *model.Mission) bool {
	if m.Status != model.MissionStatusInProgress || len(m.Tasks) == 0 {
		return false
	}
	for _, t := range m.Tasks {
		if !t.Status.Terminal() {
			return false
		}
	}
	return true
}

// recomputeProgress derives completion percentage and the linear
// completion estimate from the completed/total ratio.
func recomputeProgress(m *model.Mission, now time.Time) {
	if m.Metrics.TotalTasks == 0 {
		return
	}
	m.ProgressPercentage = float64(m.Metrics.CompletedTasks) / float64(m.Metrics.TotalTasks) * 100

	if m.Metrics.CompletedTasks > 0 && m.StartedAt != nil {
		elapsed := now.Sub(*m.StartedAt)
		estimated := time.Duration(float64(elapsed) * float64(m.Metrics.TotalTasks) / float64(m.Metrics.CompletedTasks))
		eta := m.StartedAt.Add(estimated)
		m.EstimatedCompletion = &eta
	}
}

// updatePhase sets the mission phase to that of the earliest non-terminal
// task.
func updatePhase(m *model.Mission) {
	for _, t := range m.Tasks {
		if t.Status.Terminal() {
			continue
		}
		if phase, ok := t.Context["phase"].(string); ok && phase != "" {
			m.CurrentPhase = phase
		} else {
			m.CurrentPhase = t.Name
		}
		return
	}
	m.CurrentPhase = "finalizing"
}

// reportFor builds a status snapshot for a mission.
func reportFor(m *model.Mission) *model.MissionStatusReport {
	report := &model.MissionStatusReport{
		MissionID:           m.ID,
		Status:              m.Status,
		ProgressPercentage:  m.ProgressPercentage,
		CurrentPhase:        m.CurrentPhase,
		EstimatedCompletion: m.EstimatedCompletion,
		Metrics:             m.ComputeMetrics(),
	}
	if m.Status.Terminal() {
		report.Results = m.Results
	}
	return report
}
