package api

type (
	// RunFlowRequest submits a flow definition for execution. Input is
	// handed to the start task
	RunFlowRequest struct {
		Flow  *FlowDefinition `json:"flow" binding:"required"`
		Input any             `json:"input,omitempty"`
	}

	// FlowRunsListResponse contains a list of recent flow runs
	FlowRunsListResponse struct {
		FlowRuns []*FlowRun `json:"flow_runs"`
		Count    int        `json:"count"`
	}

	// TasksListResponse contains the names of registered tasks
	TasksListResponse struct {
		Tasks []TaskName `json:"tasks"`
		Count int        `json:"count"`
	}

	// HealthResponse provides service health information
	HealthResponse struct {
		Service string `json:"service"`
		Status  string `json:"status"`
		Error   string `json:"error,omitempty"`
	}

	// ErrorResponse contains error details for failed requests
	ErrorResponse struct {
		Summary *ExecutionSummary `json:"summary,omitempty"`
		Error   string            `json:"error"`
		Status  int               `json:"status,omitempty"`
	}
)
