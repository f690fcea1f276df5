package work

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/mission-control/internal/agent"
	"github.com/t77yq/mission-control/internal/model"
)

// Analyzer performs one named analysis over the task's input values
type Analyzer interface {
	Analyze(values []float64, params map[string]interface{}) (map[string]interface{}, error)
}

// AnalysisExecutor runs in-memory analyses over numeric task input. The
// operation name comes from the task requirements.
type AnalysisExecutor struct {
	logger    *zap.Logger
	analyzers map[string]Analyzer
}

// NewAnalysisExecutor creates an analysis executor with the default
// operations registered.
func NewAnalysisExecutor(logger *zap.Logger) *AnalysisExecutor {
	e := &AnalysisExecutor{
		logger:    logger.Named("analysis"),
		analyzers: make(map[string]Analyzer),
	}

	e.RegisterAnalyzer("summary", &SummaryAnalyzer{})
	e.RegisterAnalyzer("scale", &ScaleAnalyzer{})

	return e
}

// RegisterAnalyzer registers a new analysis operation.
func (e *AnalysisExecutor) RegisterAnalyzer(operation string, analyzer Analyzer) {
	e.analyzers[operation] = analyzer
}

// Execute implements agent.TaskExecutor.
func (e *AnalysisExecutor) Execute(ctx context.Context, task *model.Task) (*model.TaskResult, error) {
	operation, _ := task.Requirements["operation"].(string)
	if operation == "" {
		operation = "summary"
	}

	analyzer, ok := e.analyzers[operation]
	if !ok {
		return nil, &agent.ExecutionError{Reason: fmt.Sprintf("unknown analysis operation: %s", operation), Retryable: false}
	}

	values := floatSlice(task.Requirements["input_data"])
	if len(values) == 0 {
		return nil, &agent.ExecutionError{Reason: "no numeric input data", Retryable: false}
	}

	params, _ := task.Requirements["parameters"].(map[string]interface{})
	output, err := analyzer.Analyze(values, params)
	if err != nil {
		return nil, &agent.ExecutionError{Reason: "analysis failed", Retryable: false, Err: err}
	}

	e.logger.Info("Analysis complete",
		zap.String("task_id", task.ID),
		zap.String("operation", operation),
		zap.Int("values", len(values)))

	return &model.TaskResult{
		TaskID:    task.ID,
		MissionID: task.MissionID,
		Status:    model.TaskStatusCompleted,
		Result: map[string]interface{}{
			"operation": operation,
			"output":    output,
		},
		CompletedAt: time.Now(),
	}, nil
}

// SummaryAnalyzer computes basic descriptive statistics
type SummaryAnalyzer struct{}

// Analyze implements Analyzer.
func (SummaryAnalyzer) Analyze(values []float64, params map[string]interface{}) (map[string]interface{}, error) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}

	return map[string]interface{}{
		"count":  len(sorted),
		"min":    sorted[0],
		"max":    sorted[len(sorted)-1],
		"mean":   sum / float64(len(sorted)),
		"median": sorted[len(sorted)/2],
	}, nil
}

// ScaleAnalyzer multiplies every value by a factor
type ScaleAnalyzer struct{}

// Analyze implements Analyzer.
func (ScaleAnalyzer) Analyze(values []float64, params map[string]interface{}) (map[string]interface{}, error) {
	factor := 1.0
	if f, ok := params["factor"].(float64); ok {
		factor = f
	}

	scaled := make([]float64, len(values))
	for i, v := range values {
		scaled[i] = v * factor
	}

	return map[string]interface{}{
		"factor": factor,
		"values": scaled,
	}, nil
}

func floatSlice(v interface{}) []float64 {
	switch vals := v.(type) {
	case []float64:
		return vals
	case []interface{}:
		out := make([]float64, 0, len(vals))
		for _, item := range vals {
			switch n := item.(type) {
			case float64:
				out = append(out, n)
			case int:
				out = append(out, float64(n))
			}
		}
		return out
	default:
		return nil
	}
}
