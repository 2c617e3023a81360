package api

import "context"

type (
	// Task is the contract every task implementation satisfies. Run returns
	// a TaskResult for both successful and unsuccessful business outcomes;
	// a returned error signals an unrecoverable invocation failure that
	// aborts the entire flow run
	Task interface {
		Name() TaskName
		Run(ctx context.Context, input any) (*TaskResult, error)
	}

	// TaskFactory produces a fresh Task instance for each dispatch
	TaskFactory func() Task

	// TaskResult is the outcome of a single task invocation. Data is the
	// payload forwarded to whichever task(s) the condition routes to next
	TaskResult struct {
		Data    any      `json:"data"`
		Meta    Metadata `json:"meta,omitempty"`
		Success bool     `json:"success"`
	}

	// Metadata carries free-form annotations
	Metadata map[string]any
)

// Succeeded builds a successful TaskResult carrying data
func Succeeded(data any) *TaskResult {
	return &TaskResult{Success: true, Data: data}
}

// Failed builds an unsuccessful TaskResult carrying data
func Failed(data any) *TaskResult {
	return &TaskResult{Success: false, Data: data}
}

// WithMeta returns a copy of the result with the metadata attached
func (r *TaskResult) WithMeta(meta Metadata) *TaskResult {
	res := *r
	res.Meta = meta
	return &res
}
