package work

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/mission-control/internal/agent"
	"github.com/t77yq/mission-control/internal/model"
)

const maxFetchBytes = 1 << 20 // 1MB per source

// ResearchExecutor gathers source material for research tasks by fetching
// the urls listed in the task requirements.
type ResearchExecutor struct {
	logger     *zap.Logger
	httpClient *http.Client
}

// NewResearchExecutor creates a research executor.
func NewResearchExecutor(logger *zap.Logger) *ResearchExecutor {
	return &ResearchExecutor{
		logger: logger.Named("research"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Execute implements agent.TaskExecutor.
func (e *ResearchExecutor) Execute(ctx context.Context, task *model.Task) (*model.TaskResult, error) {
	urls := stringSlice(task.Requirements["sources"])

	sources := make(map[string]interface{}, len(urls))
	for _, url := range urls {
		body, status, err := e.fetch(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &agent.ExecutionError{Reason: "research cancelled", Retryable: false, Err: ctx.Err()}
			}
			return nil, &agent.ExecutionError{Reason: fmt.Sprintf("failed to fetch %s", url), Retryable: true, Err: err}
		}
		if status >= 500 {
			return nil, &agent.ExecutionError{Reason: fmt.Sprintf("upstream error %d from %s", status, url), Retryable: true}
		}
		if status >= 400 {
			return nil, &agent.ExecutionError{Reason: fmt.Sprintf("bad source %s: status %d", url, status), Retryable: false}
		}
		sources[url] = map[string]interface{}{
			"status": status,
			"bytes":  len(body),
			"body":   string(body),
		}
	}

	e.logger.Info("Research complete",
		zap.String("task_id", task.ID),
		zap.Int("sources", len(sources)))

	return &model.TaskResult{
		TaskID:    task.ID,
		MissionID: task.MissionID,
		Status:    model.TaskStatusCompleted,
		Result: map[string]interface{}{
			"sources":      sources,
			"source_count": len(sources),
		},
		CompletedAt: time.Now(),
	}, nil
}

func (e *ResearchExecutor) fetch(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}

	return body, resp.StatusCode, nil
}

func stringSlice(v interface{}) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []interface{}:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
