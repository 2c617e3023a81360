package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/flowrun/internal/registry"
	"github.com/kode4food/flowrun/internal/store"
	"github.com/kode4food/flowrun/pkg/api"
)

type staticTask struct {
	res  *api.TaskResult
	name api.TaskName
}

func (s *staticTask) Name() api.TaskName {
	return s.name
}

func (s *staticTask) Run(context.Context, any) (*api.TaskResult, error) {
	return s.res, nil
}

// flakyStore rejects the first successful task run update it sees
type flakyStore struct {
	store.Store
	failed bool
}

var errWriteRejected = errors.New("write rejected")

func (s *flakyStore) UpdateTaskRun(
	ctx context.Context, tr *api.TaskRun,
) (*api.TaskRun, error) {
	if !s.failed && tr.Status == api.TaskSuccess {
		s.failed = true
		return nil, errWriteRejected
	}
	return s.Store.UpdateTaskRun(ctx, tr)
}

func newInternalEngine(t *testing.T, reg *registry.Registry) *Engine {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	st := store.NewRedisStore(store.RedisConfig{Addr: server.Addr()})
	t.Cleanup(func() { _ = st.Close() })

	e, err := New(Dependencies{Store: st, Registry: reg})
	require.NoError(t, err)
	return e
}

func register(t *testing.T, reg *registry.Registry, name api.TaskName) {
	t.Helper()
	err := reg.Register(name, func() api.Task {
		return &staticTask{name: name, res: api.Succeeded(string(name))}
	})
	require.NoError(t, err)
}

func startRun(
	t *testing.T, e *Engine, flow *api.FlowDefinition,
) *flowExec {
	t.Helper()
	run, err := e.store.CreateFlowRun(context.Background(), &api.FlowRun{
		FlowID: flow.ID,
		Meta:   &api.FlowRunMeta{Flow: flow},
	})
	require.NoError(t, err)
	return newFlowExec(e, run, flow, nil)
}

func TestDispatchErrorFailsRun(t *testing.T) {
	reg := registry.New()
	register(t, reg, "a")
	e := newInternalEngine(t, reg)

	flow := &api.FlowDefinition{
		ID:        "dispatch",
		Name:      "Dispatch",
		StartTask: "a",
		Tasks: []*api.TaskDefinition{
			{Name: "a"}, {Name: "ghost"},
		},
		Conditions: []*api.ConditionDefinition{
			{
				SourceTask:    "a",
				TargetSuccess: api.Target("ghost"),
				TargetFailure: api.End(),
			},
		},
	}

	ex := startRun(t, e, flow)
	fail := ex.drive(context.Background())
	require.NotNil(t, fail)
	assert.ErrorIs(t, fail, ErrDispatch)
	assert.ErrorIs(t, fail, registry.ErrTaskNotRegistered)
	assert.Equal(t, api.TaskName("ghost"), fail.TaskName)
	assert.Len(t, ex.log, 1)

	tasks, err := e.store.ListTaskRuns(context.Background(), ex.run.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, FailureDispatch, tasks[1].Result.Failure.Type)
}

func TestTerminalWriteFailureRecordsTaskRun(t *testing.T) {
	reg := registry.New()
	register(t, reg, "a")
	e := newInternalEngine(t, reg)
	e.store = &flakyStore{Store: e.store}

	flow := &api.FlowDefinition{
		ID:        "flaky",
		Name:      "Flaky",
		StartTask: "a",
		Tasks:     []*api.TaskDefinition{{Name: "a"}},
	}

	ex := startRun(t, e, flow)
	fail := ex.drive(context.Background())
	require.NotNil(t, fail)
	assert.ErrorIs(t, fail, ErrPersistence)
	assert.ErrorIs(t, fail, errWriteRejected)

	tasks, err := e.store.ListTaskRuns(context.Background(), ex.run.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, api.TaskFailed, tasks[0].Status)
	assert.NotNil(t, tasks[0].FinishedAt)
	require.NotNil(t, tasks[0].Result)
	require.NotNil(t, tasks[0].Result.Failure)
	assert.Equal(t, FailurePersistence, tasks[0].Result.Failure.Type)
}

func TestAdvanceFrontierOutcome(t *testing.T) {
	reg := registry.New()
	for _, name := range []api.TaskName{"s", "a", "b", "c"} {
		register(t, reg, name)
	}
	e := newInternalEngine(t, reg)

	flow := &api.FlowDefinition{
		ID:        "outcome",
		Name:      "Outcome",
		StartTask: "s",
		Tasks: []*api.TaskDefinition{
			{Name: "s"}, {Name: "a"}, {Name: "b"}, {Name: "c"},
		},
		Conditions: []*api.ConditionDefinition{
			{
				SourceTask:    "s",
				TargetSuccess: api.Target("c", "a", "c", "b"),
				TargetFailure: api.End(),
			},
		},
	}

	ex := startRun(t, e, flow)
	out := ex.advanceFrontier(context.Background(), []api.TaskName{"s"})
	adv, ok := out.(advance)
	require.True(t, ok)
	assert.Equal(t, []api.TaskName{"a", "b", "c"}, adv.next)
	assert.Equal(t, "s", ex.inputs["a"])

	out = ex.advanceFrontier(context.Background(), adv.next)
	adv, ok = out.(advance)
	require.True(t, ok)
	assert.Empty(t, adv.next)
	assert.Len(t, ex.log, 4)
}

func TestFailureType(t *testing.T) {
	assert.Equal(t, FailureTimeout, FailureType(context.DeadlineExceeded))
	assert.Equal(t, FailureCanceled, FailureType(context.Canceled))
	assert.Equal(t, FailurePersistence,
		FailureType(persistenceErr(store.ErrFlowRunTerminal)),
	)
	assert.Equal(t, FailureInvocation, FailureType(assert.AnError))
}
