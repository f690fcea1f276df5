package plan

import (
	"fmt"
	"time"

	"github.com/gammazero/toposort"
	"github.com/google/uuid"

	"github.com/t77yq/mission-control/internal/model"
)

// Validate checks that the plan's dependency graph is closed over its own
// subtask names and acyclic. It returns the names in a valid execution order.
func Validate(p *model.MissionPlan) ([]string, error) {
	byName := make(map[string]bool, len(p.Subtasks))
	for _, st := range p.Subtasks {
		byName[st.Name] = true
	}

	var edges []toposort.Edge
	for _, st := range p.Subtasks {
		if len(st.Dependencies) == 0 {
			edges = append(edges, toposort.Edge{nil, st.Name})
			continue
		}
		for _, dep := range st.Dependencies {
			if !byName[dep] {
				return nil, fmt.Errorf("subtask %q depends on unknown subtask %q", st.Name, dep)
			}
			edges = append(edges, toposort.Edge{dep, st.Name})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("dependency cycle in plan: %w", err)
	}

	order := make([]string, 0, len(p.Subtasks))
	for _, name := range sorted {
		if name != nil {
			order = append(order, name.(string))
		}
	}
	if len(order) != len(p.Subtasks) {
		return nil, fmt.Errorf("topological order covers %d of %d subtasks", len(order), len(p.Subtasks))
	}

	return order, nil
}

// Materialize validates the plan and turns it into concrete tasks for the
// mission. Plan-level name references are rewritten to task ids. Tasks are
// returned in the plan's declaration order, which fixes their Seq.
func Materialize(p *model.MissionPlan, mission *model.Mission) ([]*model.Task, error) {
	if _, err := Validate(p); err != nil {
		return nil, err
	}

	now := time.Now()
	ids := make(map[string]string, len(p.Subtasks))
	for _, st := range p.Subtasks {
		ids[st.Name] = uuid.New().String()
	}

	tasks := make([]*model.Task, 0, len(p.Subtasks))
	for i, st := range p.Subtasks {
		deps := make([]string, 0, len(st.Dependencies))
		for _, dep := range st.Dependencies {
			deps = append(deps, ids[dep])
		}

		tasks = append(tasks, &model.Task{
			ID:           ids[st.Name],
			MissionID:    mission.ID,
			Type:         st.AgentType,
			Name:         st.Name,
			Description:  st.Description,
			Status:       model.TaskStatusPending,
			Priority:     st.Priority,
			Requirements: mission.Requirements,
			Context: map[string]interface{}{
				"mission_description": mission.Description,
				"phase":               st.Phase,
				"estimated_hours":     st.EstimatedHours,
			},
			Dependencies: deps,
			Seq:          i,
			CreatedAt:    now,
		})
	}

	return tasks, nil
}

// Ready reports whether every dependency of the task is completed within its
// mission. A dependency id that names no task in the mission leaves the task
// not ready; Materialize prevents that case for validated plans.
func Ready(task *model.Task, mission *model.Mission) bool {
	for _, depID := range task.Dependencies {
		dep := mission.TaskByID(depID)
		if dep == nil || dep.Status != model.TaskStatusCompleted {
			return false
		}
	}
	return true
}
