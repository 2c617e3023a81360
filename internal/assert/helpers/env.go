package helpers

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"github.com/kode4food/flowrun/internal/archive"
	"github.com/kode4food/flowrun/internal/engine"
	"github.com/kode4food/flowrun/internal/events"
	"github.com/kode4food/flowrun/internal/metrics"
	"github.com/kode4food/flowrun/internal/registry"
	"github.com/kode4food/flowrun/internal/store"
	"github.com/kode4food/flowrun/pkg/api"
)

// TestEnv holds all the components needed for engine and server testing
type TestEnv struct {
	Engine   *engine.Engine
	Store    *store.RedisStore
	Registry *registry.Registry
	Redis    *miniredis.Miniredis
	Hub      *events.Hub
	Archive  *archive.BlobArchive
	Metrics  *metrics.Metrics
	Calls    *CallLog
	Cleanup  func()
}

// NewTestEnv creates an engine backed by an in-memory Redis, an in-memory
// archive bucket, and an empty registry. Register tasks with RegisterTask
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)

	st := store.NewRedisStore(store.RedisConfig{
		Addr:   server.Addr(),
		Prefix: "test",
	})

	arc, err := archive.New(memblob.OpenBucket(nil), "test")
	require.NoError(t, err)

	hub := events.NewHub()
	reg := registry.New()
	met := metrics.New()

	eng, err := engine.New(engine.Dependencies{
		Store:    st,
		Registry: reg,
		Archive:  arc,
		Events:   hub,
		Metrics:  met,
	})
	require.NoError(t, err)

	return &TestEnv{
		Engine:   eng,
		Store:    st,
		Registry: reg,
		Redis:    server,
		Hub:      hub,
		Archive:  arc,
		Metrics:  met,
		Calls:    NewCallLog(),
		Cleanup: func() {
			hub.Close()
			_ = arc.Close()
			_ = st.Close()
			server.Close()
		},
	}
}

// WithTestEnv runs fn against a fresh TestEnv and cleans up afterward
func WithTestEnv(t *testing.T, fn func(*TestEnv)) {
	t.Helper()
	env := NewTestEnv(t)
	defer env.Cleanup()
	fn(env)
}

// RegisterTask registers a scripted task that records its invocations in
// the environment's CallLog
func (env *TestEnv) RegisterTask(
	t *testing.T, name api.TaskName, run RunFunc,
) {
	t.Helper()
	err := env.Registry.Register(name, func() api.Task {
		return NewMockTask(name, run, env.Calls)
	})
	require.NoError(t, err)
}

// TaskRuns lists the persisted task runs of a flow run
func (env *TestEnv) TaskRuns(
	t *testing.T, id api.FlowRunID,
) []*api.TaskRun {
	t.Helper()
	runs, err := env.Store.ListTaskRuns(context.Background(), id)
	require.NoError(t, err)
	return runs
}

// TaskRunsFor filters the persisted task runs of a flow run by task name
func (env *TestEnv) TaskRunsFor(
	t *testing.T, id api.FlowRunID, name api.TaskName,
) []*api.TaskRun {
	t.Helper()
	var res []*api.TaskRun
	for _, run := range env.TaskRuns(t, id) {
		if run.TaskName == name {
			res = append(res, run)
		}
	}
	return res
}
