package orchestrator

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/t77yq/mission-control/internal/agent"
	"github.com/t77yq/mission-control/internal/model"
)

// AgentRegistry is the orchestrator-owned agent pool. Agents look up peers
// by id through the registry rather than holding direct references to each
// other.
type AgentRegistry struct {
	logger *zap.Logger
	mu     sync.RWMutex
	agents map[string]*agent.Agent
	order  []string
}

// NewAgentRegistry creates an empty registry.
func NewAgentRegistry(logger *zap.Logger) *AgentRegistry {
	return &AgentRegistry{
		logger: logger.Named("agent-registry"),
		agents: make(map[string]*agent.Agent),
	}
}

// Register adds an agent to the pool.
func (r *AgentRegistry) Register(a *agent.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[a.ID()]; exists {
		return fmt.Errorf("agent %s already registered", a.ID())
	}
	r.agents[a.ID()] = a
	r.order = append(r.order, a.ID())

	r.logger.Info("Agent registered",
		zap.String("agent_id", a.ID()),
		zap.String("name", a.Name()),
		zap.Int("capabilities", len(a.Capabilities())))

	return nil
}

// Unregister removes an agent from the pool.
func (r *AgentRegistry) Unregister(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[agentID]; !exists {
		return
	}
	delete(r.agents, agentID)
	for i, id := range r.order {
		if id == agentID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.logger.Info("Agent unregistered", zap.String("agent_id", agentID))
}

// Lookup returns the agent with the given id, or nil.
func (r *AgentRegistry) Lookup(agentID string) *agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agents[agentID]
}

// List returns all agents in registration order. Stable ordering keeps
// capability matching deterministic.
func (r *AgentRegistry) List() []*agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]*agent.Agent, 0, len(r.agents))
	for _, id := range r.order {
		agents = append(agents, r.agents[id])
	}
	return agents
}

// Infos returns the registry view of every agent.
func (r *AgentRegistry) Infos() []model.AgentInfo {
	agents := r.List()
	infos := make([]model.AgentInfo, 0, len(agents))
	for _, a := range agents {
		infos = append(infos, a.Info())
	}
	return infos
}
