package store

import (
	"context"
	"errors"

	"github.com/kode4food/flowrun/pkg/api"
)

// Store persists flow runs and task runs. Every write targets a single
// record and is its own atomic unit
type Store interface {
	// CreateFlowRun persists a new flow run, assigning its ID and timestamps
	CreateFlowRun(context.Context, *api.FlowRun) (*api.FlowRun, error)

	// UpdateFlowRun overwrites a non-terminal flow run by ID
	UpdateFlowRun(context.Context, *api.FlowRun) (*api.FlowRun, error)

	// CreateTaskRun persists a new task run for a running flow run
	CreateTaskRun(context.Context, *api.TaskRun) (*api.TaskRun, error)

	// UpdateTaskRun overwrites a non-terminal task run by ID
	UpdateTaskRun(context.Context, *api.TaskRun) (*api.TaskRun, error)

	// GetFlowRun retrieves a flow run by ID
	GetFlowRun(context.Context, api.FlowRunID) (*api.FlowRun, error)

	// GetTaskRun retrieves a task run by ID
	GetTaskRun(context.Context, api.TaskRunID) (*api.TaskRun, error)

	// ListTaskRuns returns the task runs of a flow run in creation order
	ListTaskRuns(context.Context, api.FlowRunID) ([]*api.TaskRun, error)

	// ListFlowRuns returns up to limit flow runs, newest first
	ListFlowRuns(context.Context, int) ([]*api.FlowRun, error)

	// Ping checks that the backing store is reachable
	Ping(context.Context) error
}

var (
	ErrFlowRunNotFound = errors.New("flow run not found")
	ErrTaskRunNotFound = errors.New("task run not found")
	ErrFlowRunTerminal = errors.New("flow run already terminal")
	ErrTaskRunTerminal = errors.New("task run already terminal")
	ErrMissingID       = errors.New("record id is required")
	ErrConflict        = errors.New("concurrent modification")
)
