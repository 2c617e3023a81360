package api

import "time"

type (
	// FlowStatus represents the lifecycle state of a flow run
	FlowStatus string

	// TaskStatus represents the lifecycle state of a task run
	TaskStatus string

	// FlowRun is the persisted record of one end-to-end flow execution
	FlowRun struct {
		CreatedAt time.Time    `json:"created_at"`
		UpdatedAt time.Time    `json:"updated_at"`
		Meta      *FlowRunMeta `json:"meta,omitempty"`
		ID        FlowRunID    `json:"id"`
		FlowID    FlowID       `json:"flow_id"`
		FlowName  string       `json:"flow_name"`
		Status    FlowStatus   `json:"status"`
	}

	// FlowRunMeta carries the definition snapshot and, once terminal,
	// either the execution log or the failure cause
	FlowRunMeta struct {
		Flow  *FlowDefinition `json:"flow,omitempty"`
		Input any             `json:"input,omitempty"`
		Log   []*LogEntry     `json:"execution_log,omitempty"`
		Error string          `json:"error,omitempty"`
	}

	// TaskRun is the persisted record of a single task dispatch
	TaskRun struct {
		StartedAt  *time.Time  `json:"started_at"`
		FinishedAt *time.Time  `json:"finished_at"`
		Input      any         `json:"input,omitempty"`
		Result     *TaskRecord `json:"result,omitempty"`
		ID         TaskRunID   `json:"id"`
		FlowRunID  FlowRunID   `json:"flow_run_id"`
		TaskName   TaskName    `json:"task_name"`
		Status     TaskStatus  `json:"status"`
		Error      string      `json:"error,omitempty"`
		Frontier   int         `json:"frontier"`
	}

	// TaskRecord is the persisted capture of an invocation outcome. It holds
	// either the full TaskResult or a structured capture of the failure
	TaskRecord struct {
		*TaskResult
		Failure *FailureRecord `json:"failure,omitempty"`
	}

	// FailureRecord captures an invocation failure
	FailureRecord struct {
		Error string `json:"error"`
		Type  string `json:"type"`
	}

	// LogEntry is the normalized record of a single task invocation, as
	// reported to the engine and stored in the execution log
	LogEntry struct {
		Data      any         `json:"data"`
		Result    *TaskResult `json:"result"`
		Error     *string     `json:"error"`
		TaskRunID TaskRunID   `json:"task_run_id"`
		TaskName  TaskName    `json:"task_name"`
		Success   bool        `json:"success"`
	}

	// ExecutionSummary is the terminal summary returned for a flow run
	ExecutionSummary struct {
		Log       []*LogEntry `json:"execution_log,omitempty"`
		FlowRunID FlowRunID   `json:"flow_run_id"`
		Status    FlowStatus  `json:"status"`
		Error     string      `json:"error,omitempty"`
	}

	// FlowRunDetail is a flow run together with its task runs
	FlowRunDetail struct {
		FlowRun *FlowRun   `json:"flow_run"`
		Tasks   []*TaskRun `json:"tasks"`
	}
)

const (
	FlowRunning   FlowStatus = "running"
	FlowCompleted FlowStatus = "completed"
	FlowFailed    FlowStatus = "failed"
)

const (
	TaskRunning TaskStatus = "running"
	TaskSuccess TaskStatus = "success"
	TaskFailed  TaskStatus = "failed"
)

// IsTerminal returns whether the flow status is completed or failed
func (s FlowStatus) IsTerminal() bool {
	return s == FlowCompleted || s == FlowFailed
}

// IsTerminal returns whether the task status is success or failed
func (s TaskStatus) IsTerminal() bool {
	return s == TaskSuccess || s == TaskFailed
}

// TaskStatusOf maps a task result onto a terminal task status
func TaskStatusOf(res *TaskResult) TaskStatus {
	if res != nil && res.Success {
		return TaskSuccess
	}
	return TaskFailed
}

// IsTerminal returns whether the flow run has reached its final state
func (r *FlowRun) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// Duration returns the elapsed time of a finished task run
func (r *TaskRun) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}
