package api

import "time"

type (
	// EventType identifies the kind of run event
	EventType string

	// RunEvent describes a single lifecycle transition of a flow run or one
	// of its task runs
	RunEvent struct {
		Timestamp time.Time `json:"timestamp"`
		Type      EventType `json:"type"`
		FlowRunID FlowRunID `json:"flow_run_id"`
		TaskRunID TaskRunID `json:"task_run_id,omitempty"`
		TaskName  TaskName  `json:"task_name,omitempty"`
		Status    string    `json:"status,omitempty"`
		Error     string    `json:"error,omitempty"`
	}
)

const (
	EventTypeFlowStarted   EventType = "flow_started"
	EventTypeFlowCompleted EventType = "flow_completed"
	EventTypeFlowFailed    EventType = "flow_failed"
	EventTypeTaskStarted   EventType = "task_started"
	EventTypeTaskFinished  EventType = "task_finished"
)
