package work

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/mission-control/internal/agent"
	"github.com/t77yq/mission-control/internal/model"
)

type fakeDecomposer struct {
	payload []byte
	err     error
	calls   int
}

func (d *fakeDecomposer) Decompose(ctx context.Context, description string, requirements map[string]interface{}) ([]byte, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.payload, nil
}

func planningTask() *model.Task {
	return &model.Task{
		ID:        "t-plan",
		MissionID: "m-1",
		Type:      model.TaskTypePlanning,
		Context: map[string]interface{}{
			"mission_description": "build the thing",
		},
	}
}

func TestPlannerExecutor(t *testing.T) {
	logger := zap.NewNop()

	t.Run("Returns Raw Plan Payload", func(t *testing.T) {
		decomposer := &fakeDecomposer{payload: []byte(`{"subtasks": [{"name": "a"}]}`)}
		executor := NewPlannerExecutor(decomposer, logger)

		result, err := executor.Execute(context.Background(), planningTask())
		require.NoError(t, err)
		assert.Equal(t, `{"subtasks": [{"name": "a"}]}`, result.Result["plan"])
		assert.Equal(t, 1, decomposer.calls)
	})

	t.Run("Provider Error Is Retryable", func(t *testing.T) {
		decomposer := &fakeDecomposer{err: errors.New("provider exploded")}
		executor := NewPlannerExecutor(decomposer, logger)

		_, err := executor.Execute(context.Background(), planningTask())
		require.Error(t, err)
		assert.True(t, agent.Retryable(err))
	})

	t.Run("Open Breaker Fails Fast", func(t *testing.T) {
		decomposer := &fakeDecomposer{err: errors.New("provider down")}
		executor := NewPlannerExecutor(decomposer, logger)

		// Trip the breaker with consecutive failures
		for i := 0; i < 3; i++ {
			_, err := executor.Execute(context.Background(), planningTask())
			require.Error(t, err)
		}
		calls := decomposer.calls

		_, err := executor.Execute(context.Background(), planningTask())
		require.Error(t, err)
		assert.False(t, agent.Retryable(err))
		// The provider was not called while the breaker is open
		assert.Equal(t, calls, decomposer.calls)
	})
}
