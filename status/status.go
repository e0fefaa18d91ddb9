// Package status defines the closed string enums shared by the task,
// agent, workflow, and feedback lifecycles.
package status

// Task is the status lexicon of a Task.
type Task string

const (
	TaskTODO                Task = "TODO"
	TaskDOING               Task = "DOING"
	TaskBLOCKED             Task = "BLOCKED"
	TaskREVISE              Task = "REVISE"
	TaskDONE                Task = "DONE"
	TaskAWAITING_VALIDATION Task = "AWAITING_VALIDATION"
	TaskVALIDATED           Task = "VALIDATED"
	TaskABORTED             Task = "ABORTED"
	TaskPAUSED              Task = "PAUSED"
	TaskRESUMED             Task = "RESUMED"
)

// IsTerminal reports whether a task in this status can never transition
// again on its own (only an explicit mutator moves it further).
func (s Task) IsTerminal() bool {
	switch s {
	case TaskDONE, TaskVALIDATED, TaskABORTED:
		return true
	default:
		return false
	}
}

// Agent is the status lexicon of an Agent's think-act-observe loop.
type Agent string

const (
	AgentINITIAL                     Agent = "INITIAL"
	AgentTHINKING                    Agent = "THINKING"
	AgentTHINKING_END                Agent = "THINKING_END"
	AgentTHINKING_ERROR              Agent = "THINKING_ERROR"
	AgentTHOUGHT                     Agent = "THOUGHT"
	AgentEXECUTING_ACTION            Agent = "EXECUTING_ACTION"
	AgentUSING_TOOL                  Agent = "USING_TOOL"
	AgentUSING_TOOL_END              Agent = "USING_TOOL_END"
	AgentUSING_TOOL_ERROR            Agent = "USING_TOOL_ERROR"
	AgentOBSERVATION                 Agent = "OBSERVATION"
	AgentFINAL_ANSWER                Agent = "FINAL_ANSWER"
	AgentSELF_QUESTION               Agent = "SELF_QUESTION"
	AgentITERATION_START             Agent = "ITERATION_START"
	AgentITERATION_END               Agent = "ITERATION_END"
	AgentMAX_ITERATIONS_ERROR        Agent = "MAX_ITERATIONS_ERROR"
	AgentTASK_ABORTED                Agent = "TASK_ABORTED"
	AgentPAUSED                      Agent = "PAUSED"
	AgentRESUMED                     Agent = "RESUMED"
	AgentISSUES_PARSING_LLM_OUTPUT   Agent = "ISSUES_PARSING_LLM_OUTPUT"
)

// Workflow is the status lexicon of a team's overall run.
type Workflow string

const (
	WorkflowINITIAL  Workflow = "INITIAL"
	WorkflowRUNNING  Workflow = "RUNNING"
	WorkflowPAUSED   Workflow = "PAUSED"
	WorkflowSTOPPING Workflow = "STOPPING"
	WorkflowSTOPPED  Workflow = "STOPPED"
	WorkflowERRORED  Workflow = "ERRORED"
	WorkflowBLOCKED  Workflow = "BLOCKED"
	WorkflowFINISHED Workflow = "FINISHED"
)

// IsTerminal reports whether the workflow status is a final resting
// state that no strategy dispatch can move on from.
func (s Workflow) IsTerminal() bool {
	switch s {
	case WorkflowSTOPPED, WorkflowERRORED, WorkflowFINISHED:
		return true
	default:
		return false
	}
}

// Feedback is the status lexicon of a single feedback entry.
type Feedback string

const (
	FeedbackPENDING   Feedback = "PENDING"
	FeedbackPROCESSED Feedback = "PROCESSED"
)

// LogKind identifies what a workflow log entry describes.
type LogKind string

const (
	LogWorkflowStatusUpdate LogKind = "WorkflowStatusUpdate"
	LogTaskStatusUpdate     LogKind = "TaskStatusUpdate"
	LogAgentStatusUpdate    LogKind = "AgentStatusUpdate"
)

// Error codes surfaced in logs and returned by mutators, per the
// external interface contract.
const (
	ErrMissingURL         = "ERROR_MISSING_URL"
	ErrMissingQuery       = "ERROR_MISSING_QUERY"
	ErrMaxIterations      = "ERROR_MAX_ITERATIONS"
	ErrLLMParse           = "ERROR_LLM_PARSE"
	ErrToolInvocation     = "ERROR_TOOL_INVOCATION"
	ErrCycleInDeps        = "CYCLE_IN_DEPENDENCIES"
	ErrManagerLoop        = "MANAGER_LOOP"
	ErrInvalidState       = "INVALID_STATE"
	ErrAlreadyRunning     = "ALREADY_RUNNING"
)
