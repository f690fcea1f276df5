package schedule

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/t77yq/mission-control/internal/model"
)

// Submitter enqueues a mission; the orchestrator's StartMission satisfies it.
type Submitter func(description string, requirements map[string]interface{}, priority model.TaskPriority) (string, error)

// RecurringMission submits a mission every time its cron expression fires
type RecurringMission struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Expression   string                 `json:"expression"`
	Description  string                 `json:"description"`
	Requirements map[string]interface{} `json:"requirements,omitempty"`
	Priority     model.TaskPriority     `json:"priority"`
	LastRunTime  *time.Time             `json:"last_run_time,omitempty"`
	NextRunTime  *time.Time             `json:"next_run_time,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// CronScheduler manages recurring mission submissions
type CronScheduler struct {
	logger    *zap.Logger
	cron      *cron.Cron
	submit    Submitter
	schedules sync.Map
	entryIDs  sync.Map
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// NewCronScheduler creates a recurring mission scheduler.
func NewCronScheduler(submit Submitter, logger *zap.Logger) *CronScheduler {
	cronLogger := &cronLogger{logger: logger.Named("cron")}
	cronOptions := []cron.Option{
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cronLogger)),
	}

	return &CronScheduler{
		logger: logger.Named("cron-scheduler"),
		cron:   cron.New(cronOptions...),
		submit: submit,
	}
}

// Start starts the scheduler.
func (s *CronScheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs.
func (s *CronScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// AddSchedule registers a recurring mission.
func (s *CronScheduler) AddSchedule(schedule *RecurringMission) error {
	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}
	if schedule.Priority == 0 {
		schedule.Priority = model.TaskPriorityMedium
	}
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = time.Now()
	}
	schedule.UpdatedAt = time.Now()

	specParser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	spec, err := specParser.Parse(schedule.Expression)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	s.schedules.Store(schedule.ID, schedule)

	entryID, err := s.cron.AddJob(schedule.Expression, &cronJob{
		scheduler: s,
		schedule:  schedule,
	})
	if err != nil {
		s.schedules.Delete(schedule.ID)
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryIDs.Store(schedule.ID, entryID)

	next := spec.Next(time.Now())
	schedule.NextRunTime = &next

	s.logger.Info("Added recurring mission",
		zap.String("id", schedule.ID),
		zap.String("name", schedule.Name),
		zap.String("expression", schedule.Expression),
		zap.Time("next_run", next))

	return nil
}

// RemoveSchedule unregisters a recurring mission.
func (s *CronScheduler) RemoveSchedule(id string) error {
	entryIDVal, ok := s.entryIDs.Load(id)
	if !ok {
		return fmt.Errorf("schedule not found: %s", id)
	}

	s.cron.Remove(entryIDVal.(cron.EntryID))
	s.entryIDs.Delete(id)
	s.schedules.Delete(id)

	s.logger.Info("Removed recurring mission", zap.String("id", id))
	return nil
}

// GetSchedule gets a recurring mission by id.
func (s *CronScheduler) GetSchedule(id string) (*RecurringMission, error) {
	val, ok := s.schedules.Load(id)
	if !ok {
		return nil, fmt.Errorf("schedule not found: %s", id)
	}
	return val.(*RecurringMission), nil
}

// ListSchedules lists all recurring missions.
func (s *CronScheduler) ListSchedules() []*RecurringMission {
	var schedules []*RecurringMission
	s.schedules.Range(func(key, value interface{}) bool {
		schedules = append(schedules, value.(*RecurringMission))
		return true
	})
	return schedules
}

// cronJob implements cron.Job
type cronJob struct {
	scheduler *CronScheduler
	schedule  *RecurringMission
}

// Run implements cron.Job
func (j *cronJob) Run() {
	now := time.Now()
	j.schedule.LastRunTime = &now

	specParser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if spec, err := specParser.Parse(j.schedule.Expression); err == nil {
		next := spec.Next(now)
		j.schedule.NextRunTime = &next
	}

	missionID, err := j.scheduler.submit(j.schedule.Description, j.schedule.Requirements, j.schedule.Priority)
	if err != nil {
		j.scheduler.logger.Error("Failed to submit recurring mission",
			zap.String("schedule_id", j.schedule.ID),
			zap.Error(err))
		return
	}

	j.scheduler.logger.Info("Recurring mission submitted",
		zap.String("schedule_id", j.schedule.ID),
		zap.String("mission_id", missionID),
		zap.Time("executed_at", now))
}
