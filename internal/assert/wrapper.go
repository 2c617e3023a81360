package assert

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flowrun/internal/config"
	"github.com/kode4food/flowrun/pkg/api"
)

type (
	// RunGetter retrieves persisted flow runs
	RunGetter interface {
		GetFlowRun(context.Context, api.FlowRunID) (*api.FlowRun, error)
	}

	// Wrapper wraps testify assertions with flowrun-specific helpers
	Wrapper struct {
		*testing.T
		*assert.Assertions
	}
)

// New creates a new test assertion wrapper around testify plus flowrun
// helpers
func New(t *testing.T) *Wrapper {
	return &Wrapper{
		T:          t,
		Assertions: assert.New(t),
	}
}

// FlowValid asserts that a flow definition passes validation
func (w *Wrapper) FlowValid(flow *api.FlowDefinition) {
	w.Helper()
	w.NoError(flow.Validate())
	w.NotEmpty(flow.ID)
	w.NotEmpty(flow.StartTask)
	w.True(flow.HasTask(flow.StartTask))
}

// FlowInvalid asserts that a flow definition fails validation with a
// FlowValidationError whose reason contains the given text
func (w *Wrapper) FlowInvalid(
	flow *api.FlowDefinition, contains string,
) *api.FlowValidationError {
	w.Helper()
	var verr *api.FlowValidationError
	if !w.ErrorAs(flow.Validate(), &verr) {
		return nil
	}
	if contains != "" {
		w.Contains(verr.Reason, contains)
	}
	return verr
}

// FlowRunStatus asserts the persisted status of a flow run
func (w *Wrapper) FlowRunStatus(
	ctx context.Context, get RunGetter, id api.FlowRunID,
	expected api.FlowStatus,
) *api.FlowRun {
	w.Helper()
	run, err := get.GetFlowRun(ctx, id)
	if !w.NoError(err) {
		return nil
	}
	w.Equal(expected, run.Status)
	return run
}

// TaskRunsInOrder asserts that task runs are for the given task names, in
// order
func (w *Wrapper) TaskRunsInOrder(
	runs []*api.TaskRun, expected ...api.TaskName,
) {
	w.Helper()
	names := make([]api.TaskName, len(runs))
	for i, run := range runs {
		names[i] = run.TaskName
	}
	w.Equal(expected, names)
}

// ConfigValid asserts that a configuration is valid
func (w *Wrapper) ConfigValid(cfg *config.Config) {
	w.Helper()
	w.NoError(cfg.Validate())
	w.True(cfg.APIPort > 0 && cfg.APIPort <= config.MaxTCPPort)
	w.True(cfg.TaskTimeout > 0)
}

// ConfigInvalid asserts that a configuration is invalid
func (w *Wrapper) ConfigInvalid(cfg *config.Config, contains string) {
	w.Helper()
	err := cfg.Validate()
	w.Error(err)
	if err != nil && contains != "" {
		w.Contains(err.Error(), contains)
	}
}
