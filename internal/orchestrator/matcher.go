package orchestrator

import (
	"github.com/t77yq/mission-control/internal/agent"
	"github.com/t77yq/mission-control/internal/model"
)

// MatchStrategy selects an agent for a task from the pool
type MatchStrategy interface {
	Select(agents []*agent.Agent, task *model.Task) (*agent.Agent, error)
}

// BestConfidenceStrategy keeps the agent with strictly greater confidence
// than the current best, so the first agent seen wins ties. Matching is
// greedy and independent per task; no reservation is made across tasks
// dispatched in the same tick.
type BestConfidenceStrategy struct{}

// Select implements MatchStrategy.
func (BestConfidenceStrategy) Select(agents []*agent.Agent, task *model.Task) (*agent.Agent, error) {
	var best *agent.Agent
	bestScore := 0.0

	for _, a := range agents {
		if score := a.CanHandle(task); score > bestScore {
			best = a
			bestScore = score
		}
	}

	if best == nil {
		return nil, ErrNoCapableAgent
	}
	return best, nil
}

// LeastLoadedStrategy prefers the capable agent with the fewest pending
// tasks, breaking ties by confidence. Useful for pools of interchangeable
// agents.
type LeastLoadedStrategy struct{}

// Select implements MatchStrategy.
func (LeastLoadedStrategy) Select(agents []*agent.Agent, task *model.Task) (*agent.Agent, error) {
	var best *agent.Agent
	bestLoad := -1
	bestScore := 0.0

	for _, a := range agents {
		score := a.CanHandle(task)
		if score == 0 {
			continue
		}
		load := a.Stats().TasksPending
		if bestLoad == -1 || load < bestLoad || (load == bestLoad && score > bestScore) {
			best = a
			bestLoad = load
			bestScore = score
		}
	}

	if best == nil {
		return nil, ErrNoCapableAgent
	}
	return best, nil
}
