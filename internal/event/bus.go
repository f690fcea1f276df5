package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/mission-control/internal/model"
)

const (
	missionStreamName = "MISSIONS"

	// Mission lifecycle subjects
	SubjectMissionSubmitted = "mission.submitted"
	SubjectMissionPlanning  = "mission.planning"
	SubjectMissionStarted   = "mission.started"
	SubjectMissionCompleted = "mission.completed"
	SubjectMissionFailed    = "mission.failed"
	SubjectMissionCancelled = "mission.cancelled"

	// Task lifecycle subjects
	SubjectTaskAssigned  = "task.assigned"
	SubjectTaskCompleted = "task.completed"
	SubjectTaskFailed    = "task.failed"

	// Metrics subject
	SubjectMetrics = "metrics.orchestrator"

	streamMaxAge = 24 * time.Hour
)

// MissionEvent is the wire form of a mission lifecycle event
type MissionEvent struct {
	MissionID string              `json:"mission_id"`
	Status    model.MissionStatus `json:"status"`
	Priority  model.TaskPriority  `json:"priority"`
	Timestamp time.Time           `json:"timestamp"`
}

// TaskEvent is the wire form of a task lifecycle event
type TaskEvent struct {
	TaskID    string           `json:"task_id"`
	MissionID string           `json:"mission_id"`
	AgentID   string           `json:"agent_id,omitempty"`
	Type      string           `json:"type"`
	Status    model.TaskStatus `json:"status"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Bus publishes orchestration lifecycle events to JetStream. A nil *Bus is
// valid and drops everything, so components can run without NATS wired.
type Bus struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

// NewBus creates the event bus and its backing stream.
func NewBus(js nats.JetStreamContext, logger *zap.Logger) (*Bus, error) {
	bus := &Bus{
		js:     js,
		logger: logger.Named("event-bus"),
	}

	_, err := js.AddStream(&nats.StreamConfig{
		Name:     missionStreamName,
		Subjects: []string{"mission.*", "task.*", "metrics.*"},
		Storage:  nats.FileStorage,
		MaxAge:   streamMaxAge,
		MaxMsgs:  -1,
	})
	if err != nil {
		if err == nats.ErrStreamNameAlreadyInUse {
			bus.logger.Info("Stream already exists", zap.String("stream", missionStreamName))
			return bus, nil
		}
		return nil, fmt.Errorf("failed to create mission stream: %w", err)
	}

	bus.logger.Info("Stream created", zap.String("stream", missionStreamName))
	return bus, nil
}

// PublishMission publishes a mission lifecycle event.
func (b *Bus) PublishMission(subject string, mission *model.Mission) {
	if b == nil {
		return
	}
	b.publish(subject, MissionEvent{
		MissionID: mission.ID,
		Status:    mission.Status,
		Priority:  mission.Priority,
		Timestamp: time.Now(),
	})
}

// PublishTask publishes a task lifecycle event.
func (b *Bus) PublishTask(subject string, task *model.Task) {
	if b == nil {
		return
	}
	b.publish(subject, TaskEvent{
		TaskID:    task.ID,
		MissionID: task.MissionID,
		AgentID:   task.AssignedAgent,
		Type:      task.Type,
		Status:    task.Status,
		Error:     task.ErrorMessage,
		Timestamp: time.Now(),
	})
}

// PublishMetrics publishes a metrics snapshot.
func (b *Bus) PublishMetrics(snapshot interface{}) {
	if b == nil {
		return
	}
	b.publish(SubjectMetrics, snapshot)
}

func (b *Bus) publish(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("Failed to marshal event",
			zap.String("subject", subject),
			zap.Error(err))
		return
	}

	if _, err := b.js.Publish(subject, data); err != nil {
		b.logger.Error("Failed to publish event",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

// SubscribeTasks delivers task lifecycle events to the handler.
func (b *Bus) SubscribeTasks(handler func(TaskEvent)) (*nats.Subscription, error) {
	if b == nil {
		return nil, fmt.Errorf("event bus not configured")
	}
	return b.js.Subscribe("task.*", func(msg *nats.Msg) {
		var ev TaskEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.logger.Error("Failed to unmarshal task event", zap.Error(err))
			return
		}
		handler(ev)
		msg.Ack()
	})
}

// SubscribeMissions delivers mission lifecycle events to the handler.
func (b *Bus) SubscribeMissions(handler func(MissionEvent)) (*nats.Subscription, error) {
	if b == nil {
		return nil, fmt.Errorf("event bus not configured")
	}
	return b.js.Subscribe("mission.*", func(msg *nats.Msg) {
		var ev MissionEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.logger.Error("Failed to unmarshal mission event", zap.Error(err))
			return
		}
		handler(ev)
		msg.Ack()
	})
}
