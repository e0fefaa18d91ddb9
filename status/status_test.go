package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTask_IsTerminal(t *testing.T) {
	terminal := []Task{TaskDONE, TaskVALIDATED, TaskABORTED}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "expected %s to be terminal", s)
	}

	nonTerminal := []Task{TaskTODO, TaskDOING, TaskBLOCKED, TaskREVISE, TaskAWAITING_VALIDATION, TaskPAUSED, TaskRESUMED}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), "expected %s to not be terminal", s)
	}
}

func TestWorkflow_IsTerminal(t *testing.T) {
	terminal := []Workflow{WorkflowSTOPPED, WorkflowERRORED, WorkflowFINISHED}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "expected %s to be terminal", s)
	}

	nonTerminal := []Workflow{WorkflowINITIAL, WorkflowRUNNING, WorkflowPAUSED, WorkflowSTOPPING, WorkflowBLOCKED}
	for _, s := range nonTerminal {
		assert.False(t, s.IsTerminal(), "expected %s to not be terminal", s)
	}
}
