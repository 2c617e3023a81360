package engine

import (
	"context"
	"errors"

	"github.com/kode4food/flowrun/internal/archive"
	"github.com/kode4food/flowrun/internal/store"
	"github.com/kode4food/flowrun/pkg/api"
)

// GetFlowRun returns a flow run with its task runs. Runs that have left the
// Run Store are read back from the archive, when one is configured
func (e *Engine) GetFlowRun(
	ctx context.Context, id api.FlowRunID,
) (*api.FlowRunDetail, error) {
	run, err := e.store.GetFlowRun(ctx, id)
	if err == nil {
		tasks, err := e.store.ListTaskRuns(ctx, id)
		if err != nil {
			return nil, err
		}
		return &api.FlowRunDetail{FlowRun: run, Tasks: tasks}, nil
	}
	if !errors.Is(err, store.ErrFlowRunNotFound) || e.archive == nil {
		return nil, err
	}

	detail, aerr := e.archive.Get(ctx, id)
	if errors.Is(aerr, archive.ErrNotArchived) {
		return nil, err
	}
	return detail, aerr
}

// ListFlowRuns returns up to limit recent flow runs, newest first
func (e *Engine) ListFlowRuns(
	ctx context.Context, limit int,
) ([]*api.FlowRun, error) {
	return e.store.ListFlowRuns(ctx, limit)
}
