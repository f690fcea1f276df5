package work

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/mission-control/internal/agent"
	"github.com/t77yq/mission-control/internal/model"
)

// ReportExecutor assembles a plain-text report from the outputs sibling
// tasks left in the task context.
type ReportExecutor struct {
	logger *zap.Logger
}

// NewReportExecutor creates a report executor.
func NewReportExecutor(logger *zap.Logger) *ReportExecutor {
	return &ReportExecutor{logger: logger.Named("report")}
}

// Execute implements agent.TaskExecutor.
func (e *ReportExecutor) Execute(ctx context.Context, task *model.Task) (*model.TaskResult, error) {
	if ctx.Err() != nil {
		return nil, &agent.ExecutionError{Reason: "report cancelled", Retryable: false, Err: ctx.Err()}
	}

	title, _ := task.Context["mission_description"].(string)
	if title == "" {
		title = task.Description
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Report: %s\n", title)
	fmt.Fprintf(&b, "Generated: %s\n\n", time.Now().Format(time.RFC3339))

	sections, _ := task.Context["sections"].(map[string]interface{})
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(&b, "## %s\n%v\n\n", name, sections[name])
	}
	if len(names) == 0 {
		fmt.Fprintf(&b, "No section content was provided.\n")
	}

	report := b.String()

	e.logger.Info("Report assembled",
		zap.String("task_id", task.ID),
		zap.Int("sections", len(names)),
		zap.Int("bytes", len(report)))

	return &model.TaskResult{
		TaskID:    task.ID,
		MissionID: task.MissionID,
		Status:    model.TaskStatusCompleted,
		Result: map[string]interface{}{
			"report":   report,
			"sections": len(names),
		},
		Artifacts:   []string{fmt.Sprintf("report-%s.txt", task.ID)},
		CompletedAt: time.Now(),
	}, nil
}
