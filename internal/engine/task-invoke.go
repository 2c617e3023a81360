package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kode4food/flowrun/pkg/api"
	"github.com/kode4food/flowrun/pkg/log"
)

const (
	FailureDispatch    = "dispatch"
	FailurePanic       = "panic"
	FailurePersistence = "persistence"
	FailureTimeout     = "timeout"
	FailureCanceled    = "canceled"
	FailureInvocation  = "invocation"
)

// invoke runs one task and records it as a task run: created, marked
// started, then marked terminal. A returned error is always a
// *FlowExecutionError
func (ex *flowExec) invoke(
	ctx context.Context, step int, name api.TaskName, input any,
) (*api.LogEntry, error) {
	e := ex.engine
	tr, err := e.store.CreateTaskRun(ctx, &api.TaskRun{
		FlowRunID: ex.run.ID,
		TaskName:  name,
		Input:     input,
		Status:    api.TaskRunning,
		Frontier:  step,
	})
	if err != nil {
		return nil, ex.failure(name, "", persistenceErr(err))
	}

	started := e.clock()
	tr.StartedAt = &started
	if _, err := e.store.UpdateTaskRun(ctx, tr); err != nil {
		return nil, ex.taskFailed(ctx, tr, persistenceErr(err))
	}
	e.publish(&api.RunEvent{
		Type:      api.EventTypeTaskStarted,
		FlowRunID: ex.run.ID,
		TaskRunID: tr.ID,
		TaskName:  name,
		Status:    string(api.TaskRunning),
	})

	res, err := e.runTask(ctx, name, input)
	finished := e.clock()
	tr.FinishedAt = &finished
	if err != nil {
		return nil, ex.taskFailed(ctx, tr, err)
	}

	if res == nil {
		res = api.Failed(nil)
	}
	tr.Status = api.TaskStatusOf(res)
	tr.Result = &api.TaskRecord{TaskResult: res}
	if _, err := e.store.UpdateTaskRun(ctx, tr); err != nil {
		return nil, ex.taskFailed(ctx, tr, persistenceErr(err))
	}
	e.taskFinished(tr)

	return &api.LogEntry{
		TaskRunID: tr.ID,
		TaskName:  name,
		Success:   res.Success,
		Data:      res.Data,
		Result:    res,
	}, nil
}

// runTask instantiates a task from the registry and runs it, converting a
// panic into an error
func (e *Engine) runTask(
	ctx context.Context, name api.TaskName, input any,
) (res *api.TaskResult, err error) {
	task, err := e.registry.Instantiate(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDispatch, err)
	}

	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return task.Run(ctx, input)
}

// taskFailed records an invocation failure on the task run. The record is
// written even when ctx has been cancelled
func (ex *flowExec) taskFailed(
	ctx context.Context, tr *api.TaskRun, cause error,
) *FlowExecutionError {
	e := ex.engine
	if tr.FinishedAt == nil {
		finished := e.clock()
		tr.FinishedAt = &finished
	}
	tr.Status = api.TaskFailed
	tr.Error = cause.Error()
	tr.Result = &api.TaskRecord{
		Failure: &api.FailureRecord{
			Error: cause.Error(),
			Type:  FailureType(cause),
		},
	}

	bg := context.WithoutCancel(ctx)
	if _, err := e.store.UpdateTaskRun(bg, tr); err != nil {
		slog.Error("Failed to record task failure",
			log.FlowRunID(tr.FlowRunID),
			log.TaskRunID(tr.ID),
			log.Error(err))
	}
	e.taskFinished(tr)
	return ex.failure(tr.TaskName, tr.ID, cause)
}

func (e *Engine) taskFinished(tr *api.TaskRun) {
	e.metrics.TaskFinished(tr.TaskName, tr.Status, tr.Duration())
	e.publish(&api.RunEvent{
		Type:      api.EventTypeTaskFinished,
		FlowRunID: tr.FlowRunID,
		TaskRunID: tr.ID,
		TaskName:  tr.TaskName,
		Status:    string(tr.Status),
		Error:     tr.Error,
	})
	slog.Debug("Task run finished",
		log.FlowRunID(tr.FlowRunID),
		log.TaskRunID(tr.ID),
		log.TaskName(tr.TaskName),
		log.Status(tr.Status))
}

func (ex *flowExec) failure(
	name api.TaskName, id api.TaskRunID, cause error,
) *FlowExecutionError {
	return &FlowExecutionError{
		FlowRunID: ex.run.ID,
		TaskRunID: id,
		TaskName:  name,
		Cause:     cause,
	}
}

// FailureType classifies an invocation failure for the task run record
func FailureType(err error) string {
	switch {
	case errors.Is(err, ErrDispatch):
		return FailureDispatch
	case errors.Is(err, ErrTaskPanic):
		return FailurePanic
	case errors.Is(err, ErrPersistence):
		return FailurePersistence
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, context.Canceled):
		return FailureCanceled
	default:
		return FailureInvocation
	}
}

func persistenceErr(err error) error {
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
