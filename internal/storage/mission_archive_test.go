package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/mission-control/internal/model"
)

func newTestArchive(t *testing.T) *SQLiteMissionArchive {
	t.Helper()

	archive, err := NewSQLiteMissionArchive(zap.NewNop(), filepath.Join(t.TempDir(), "missions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })
	return archive
}

func archivedMission(status model.MissionStatus, completedAt time.Time) *model.Mission {
	started := completedAt.Add(-time.Minute)
	taskDone := completedAt.Add(-10 * time.Second)
	return &model.Mission{
		ID:                 uuid.New().String(),
		Description:        "archived mission",
		Priority:           model.TaskPriorityMedium,
		Status:             status,
		ProgressPercentage: 100,
		CreatedAt:          started.Add(-time.Minute),
		StartedAt:          &started,
		CompletedAt:        &completedAt,
		Results: map[string]interface{}{
			"collect": map[string]interface{}{"status": "completed"},
		},
		Metrics: model.MissionMetrics{TotalTasks: 1, CompletedTasks: 1},
		Tasks: []*model.Task{
			{
				ID:            uuid.New().String(),
				Name:          "collect",
				Type:          "research",
				Status:        model.TaskStatusCompleted,
				Priority:      model.TaskPriorityHigh,
				Seq:           0,
				AssignedAgent: "researcher-1",
				Result:        map[string]interface{}{"count": 3.0},
				StartedAt:     &started,
				CompletedAt:   &taskDone,
			},
		},
	}
}

func TestSQLiteMissionArchive(t *testing.T) {
	ctx := context.Background()

	t.Run("Store And Get", func(t *testing.T) {
		archive := newTestArchive(t)
		mission := archivedMission(model.MissionStatusCompleted, time.Now())

		require.NoError(t, archive.Store(ctx, mission))

		got, err := archive.Get(ctx, mission.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, mission.ID, got.ID)
		assert.Equal(t, model.MissionStatusCompleted, got.Status)
		assert.Equal(t, 100.0, got.ProgressPercentage)
		assert.Equal(t, mission.Metrics.CompletedTasks, got.Metrics.CompletedTasks)
		assert.Contains(t, got.Results, "collect")

		require.Len(t, got.Tasks, 1)
		task := got.Tasks[0]
		assert.Equal(t, "collect", task.Name)
		assert.Equal(t, model.TaskStatusCompleted, task.Status)
		assert.Equal(t, "researcher-1", task.AssignedAgent)
		assert.Equal(t, 3.0, task.Result["count"])
		assert.NotNil(t, task.CompletedAt)
	})

	t.Run("Get Unknown Returns Nil", func(t *testing.T) {
		archive := newTestArchive(t)

		got, err := archive.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Store Is Idempotent", func(t *testing.T) {
		archive := newTestArchive(t)
		mission := archivedMission(model.MissionStatusFailed, time.Now())

		require.NoError(t, archive.Store(ctx, mission))
		mission.Status = model.MissionStatusFailed
		require.NoError(t, archive.Store(ctx, mission))

		missions, err := archive.List(ctx, "", 0, 10)
		require.NoError(t, err)
		assert.Len(t, missions, 1)
	})

	t.Run("List Filters By Status", func(t *testing.T) {
		archive := newTestArchive(t)
		now := time.Now()
		require.NoError(t, archive.Store(ctx, archivedMission(model.MissionStatusCompleted, now)))
		require.NoError(t, archive.Store(ctx, archivedMission(model.MissionStatusFailed, now.Add(time.Second))))
		require.NoError(t, archive.Store(ctx, archivedMission(model.MissionStatusCompleted, now.Add(2*time.Second))))

		completed, err := archive.List(ctx, model.MissionStatusCompleted, 0, 10)
		require.NoError(t, err)
		assert.Len(t, completed, 2)

		all, err := archive.List(ctx, "", 0, 10)
		require.NoError(t, err)
		require.Len(t, all, 3)
		// Newest first
		assert.True(t, all[0].CompletedAt.After(*all[2].CompletedAt))

		paged, err := archive.List(ctx, "", 1, 1)
		require.NoError(t, err)
		assert.Len(t, paged, 1)
	})

	t.Run("DeleteBefore Prunes Old Missions", func(t *testing.T) {
		archive := newTestArchive(t)
		now := time.Now()
		old := archivedMission(model.MissionStatusCompleted, now.Add(-48*time.Hour))
		recent := archivedMission(model.MissionStatusCompleted, now)
		require.NoError(t, archive.Store(ctx, old))
		require.NoError(t, archive.Store(ctx, recent))

		require.NoError(t, archive.DeleteBefore(ctx, now.Add(-24*time.Hour)))

		gone, err := archive.Get(ctx, old.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)

		kept, err := archive.Get(ctx, recent.ID)
		require.NoError(t, err)
		require.NotNil(t, kept)
		assert.Empty(t, kept.Tasks[0].ErrorMessage)
	})
}
