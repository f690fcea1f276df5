package work

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/mission-control/internal/agent"
	"github.com/t77yq/mission-control/internal/model"
)

func analysisTask(requirements map[string]interface{}) *model.Task {
	return &model.Task{
		ID:           "t-analysis",
		MissionID:    "m-1",
		Type:         "analysis",
		Requirements: requirements,
	}
}

func TestAnalysisExecutor(t *testing.T) {
	executor := NewAnalysisExecutor(zap.NewNop())
	ctx := context.Background()

	t.Run("Summary", func(t *testing.T) {
		result, err := executor.Execute(ctx, analysisTask(map[string]interface{}{
			"operation":  "summary",
			"input_data": []float64{4, 1, 3, 2},
		}))
		require.NoError(t, err)

		output := result.Result["output"].(map[string]interface{})
		assert.Equal(t, 4, output["count"])
		assert.Equal(t, 1.0, output["min"])
		assert.Equal(t, 4.0, output["max"])
		assert.Equal(t, 2.5, output["mean"])
		assert.Equal(t, 3.0, output["median"])
	})

	t.Run("Summary Is The Default Operation", func(t *testing.T) {
		result, err := executor.Execute(ctx, analysisTask(map[string]interface{}{
			"input_data": []interface{}{1.0, 2.0},
		}))
		require.NoError(t, err)
		assert.Equal(t, "summary", result.Result["operation"])
	})

	t.Run("Scale", func(t *testing.T) {
		result, err := executor.Execute(ctx, analysisTask(map[string]interface{}{
			"operation":  "scale",
			"input_data": []float64{1, 2},
			"parameters": map[string]interface{}{"factor": 10.0},
		}))
		require.NoError(t, err)

		output := result.Result["output"].(map[string]interface{})
		assert.Equal(t, []float64{10, 20}, output["values"])
	})

	t.Run("Unknown Operation Is Terminal", func(t *testing.T) {
		_, err := executor.Execute(ctx, analysisTask(map[string]interface{}{
			"operation":  "prophecy",
			"input_data": []float64{1},
		}))
		require.Error(t, err)
		assert.False(t, agent.Retryable(err))
	})

	t.Run("No Input Data Is Terminal", func(t *testing.T) {
		_, err := executor.Execute(ctx, analysisTask(map[string]interface{}{
			"operation": "summary",
		}))
		require.Error(t, err)
		assert.False(t, agent.Retryable(err))
	})

	t.Run("Custom Analyzer", func(t *testing.T) {
		executor.RegisterAnalyzer("count", analyzerFunc(func(values []float64, params map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"n": len(values)}, nil
		}))

		result, err := executor.Execute(ctx, analysisTask(map[string]interface{}{
			"operation":  "count",
			"input_data": []float64{1, 2, 3},
		}))
		require.NoError(t, err)
		output := result.Result["output"].(map[string]interface{})
		assert.Equal(t, 3, output["n"])
	})
}

type analyzerFunc func(values []float64, params map[string]interface{}) (map[string]interface{}, error)

func (f analyzerFunc) Analyze(values []float64, params map[string]interface{}) (map[string]interface{}, error) {
	return f(values, params)
}
