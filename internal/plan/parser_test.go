package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/mission-control/internal/model"
)

func TestParse(t *testing.T) {
	t.Run("Valid Plan", func(t *testing.T) {
		payload := []byte(`{
			"subtasks": [
				{"name": "research", "description": "Gather sources", "phase": "research", "agent_type": "research", "priority": 3},
				{"name": "report", "description": "Write it up", "phase": "reporting", "agent_type": "report", "priority": 2, "dependencies": ["research"]}
			]
		}`)

		p, err := Parse(payload)
		require.NoError(t, err)
		require.Len(t, p.Subtasks, 2)
		assert.Equal(t, "research", p.Subtasks[0].Name)
		assert.Equal(t, model.TaskPriorityHigh, p.Subtasks[0].Priority)
		assert.Equal(t, []string{"research"}, p.Subtasks[1].Dependencies)
	})

	t.Run("Empty Payload", func(t *testing.T) {
		_, err := Parse(nil)
		assert.Error(t, err)

		_, err = Parse([]byte{})
		assert.Error(t, err)
	})

	t.Run("Malformed JSON", func(t *testing.T) {
		_, err := Parse([]byte(`{"subtasks": [`))
		assert.Error(t, err)
	})

	t.Run("No Subtasks", func(t *testing.T) {
		_, err := Parse([]byte(`{"subtasks": []}`))
		assert.Error(t, err)
	})

	t.Run("Unnamed Subtask", func(t *testing.T) {
		_, err := Parse([]byte(`{"subtasks": [{"name": "  ", "agent_type": "general"}]}`))
		assert.Error(t, err)
	})

	t.Run("Duplicate Names", func(t *testing.T) {
		_, err := Parse([]byte(`{"subtasks": [{"name": "a"}, {"name": "a"}]}`))
		assert.Error(t, err)
	})

	t.Run("Defaults Applied", func(t *testing.T) {
		p, err := Parse([]byte(`{"subtasks": [{"name": "solo", "priority": 99}]}`))
		require.NoError(t, err)
		assert.Equal(t, "general", p.Subtasks[0].AgentType)
		assert.Equal(t, model.TaskPriorityMedium, p.Subtasks[0].Priority)
	})
}
