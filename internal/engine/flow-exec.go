package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kode4food/flowrun/pkg/api"
	"github.com/kode4food/flowrun/pkg/log"
)

// Execute validates the flow, records a new flow run, and drives it to a
// terminal status. Validation failures return a *api.FlowValidationError and
// persist nothing. An aborted run returns its failed summary together with a
// *FlowExecutionError. Once the run is recorded it is driven to completion
// even if ctx is cancelled
func (e *Engine) Execute(
	ctx context.Context, flow *api.FlowDefinition, input any,
) (*api.ExecutionSummary, error) {
	if err := e.ValidateFlow(flow); err != nil {
		e.metrics.FlowRejected()
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	run, err := e.store.CreateFlowRun(ctx, &api.FlowRun{
		FlowID:   flow.ID,
		FlowName: flow.Name,
		Status:   api.FlowRunning,
		Meta: &api.FlowRunMeta{
			Flow:  flow,
			Input: input,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	e.metrics.FlowStarted()
	e.publish(&api.RunEvent{
		Type:      api.EventTypeFlowStarted,
		FlowRunID: run.ID,
		Status:    string(api.FlowRunning),
	})
	slog.Info("Flow run started",
		log.FlowRunID(run.ID),
		log.FlowID(flow.ID))

	ex := newFlowExec(e, run, flow, input)
	if fail := ex.drive(ctx); fail != nil {
		return e.failFlow(ctx, ex, fail)
	}
	return e.completeFlow(ctx, ex)
}

func (e *Engine) completeFlow(
	ctx context.Context, ex *flowExec,
) (*api.ExecutionSummary, error) {
	run := ex.run
	run.Status = api.FlowCompleted
	run.Meta.Log = ex.log

	bg := context.WithoutCancel(ctx)
	if _, err := e.store.UpdateFlowRun(bg, run); err != nil {
		slog.Error("Failed to record flow completion",
			log.FlowRunID(run.ID),
			log.Error(err))
		fail := &FlowExecutionError{
			FlowRunID: run.ID,
			Cause:     fmt.Errorf("%w: %w", ErrPersistence, err),
		}
		return e.failFlow(ctx, ex, fail)
	}

	e.finishFlow(ctx, run)
	slog.Info("Flow run completed",
		log.FlowRunID(run.ID),
		slog.Int("tasks", len(ex.log)))

	return &api.ExecutionSummary{
		FlowRunID: run.ID,
		Status:    api.FlowCompleted,
		Log:       ex.log,
	}, nil
}

func (e *Engine) failFlow(
	ctx context.Context, ex *flowExec, fail *FlowExecutionError,
) (*api.ExecutionSummary, error) {
	run := ex.run
	run.Status = api.FlowFailed
	run.Meta.Log = nil
	run.Meta.Error = fail.Error()

	bg := context.WithoutCancel(ctx)
	if _, err := e.store.UpdateFlowRun(bg, run); err != nil {
		slog.Error("Failed to record flow failure",
			log.FlowRunID(run.ID),
			log.Error(err))
	} else {
		e.finishFlow(ctx, run)
	}

	slog.Warn("Flow run failed",
		log.FlowRunID(run.ID),
		log.TaskName(fail.TaskName),
		log.Error(fail.Cause))

	return &api.ExecutionSummary{
		FlowRunID: run.ID,
		Status:    api.FlowFailed,
		Error:     fail.Error(),
	}, fail
}

func (e *Engine) finishFlow(ctx context.Context, run *api.FlowRun) {
	e.metrics.FlowFinished(run.Status, e.clock().Sub(run.CreatedAt))

	evType := api.EventTypeFlowCompleted
	if run.Status == api.FlowFailed {
		evType = api.EventTypeFlowFailed
	}
	e.publish(&api.RunEvent{
		Type:      evType,
		FlowRunID: run.ID,
		Status:    string(run.Status),
		Error:     run.Meta.Error,
	})

	e.archiveRun(context.WithoutCancel(ctx), run)
}

func (e *Engine) archiveRun(ctx context.Context, run *api.FlowRun) {
	if e.archive == nil {
		return
	}
	tasks, err := e.store.ListTaskRuns(ctx, run.ID)
	if err != nil {
		slog.Error("Failed to list task runs for archive",
			log.FlowRunID(run.ID),
			log.Error(err))
		return
	}
	detail := &api.FlowRunDetail{FlowRun: run, Tasks: tasks}
	if err := e.archive.Put(ctx, detail); err != nil {
		slog.Error("Failed to archive flow run",
			log.FlowRunID(run.ID),
			log.Error(err))
	}
}
