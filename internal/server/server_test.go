package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/flowrun/internal/assert/helpers"
	"github.com/kode4food/flowrun/internal/server"
	"github.com/kode4food/flowrun/pkg/api"
)

type testServerEnv struct {
	Server *server.Server
	Router *gin.Engine
	*helpers.TestEnv
}

func init() {
	gin.SetMode(gin.TestMode)
}

func testServer(t *testing.T) *testServerEnv {
	t.Helper()
	env := helpers.NewTestEnv(t)
	srv := server.NewServer(env.Engine, env.Hub, env.Metrics)
	return &testServerEnv{
		Server:  srv,
		Router:  srv.SetupRoutes(),
		TestEnv: env,
	}
}

func (e *testServerEnv) do(
	t *testing.T, method, path string, body any,
) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) *T {
	t.Helper()
	var res T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return &res
}

func TestHealthEndpoint(t *testing.T) {
	env := testServer(t)
	defer env.Cleanup()

	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	res := decode[api.HealthResponse](t, w)
	assert.Equal(t, "flowrun", res.Service)
	assert.Equal(t, "healthy", res.Status)
}

func TestHealthUnavailable(t *testing.T) {
	env := testServer(t)
	defer env.Cleanup()

	env.Redis.SetError("server down")
	defer env.Redis.SetError("")

	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	res := decode[api.HealthResponse](t, w)
	assert.Equal(t, "unhealthy", res.Status)
	assert.NotEmpty(t, res.Error)
}

func TestListTasks(t *testing.T) {
	env := testServer(t)
	defer env.Cleanup()

	env.RegisterTask(t, "b", helpers.Succeeds(nil))
	env.RegisterTask(t, "a", helpers.Succeeds(nil))

	w := env.do(t, http.MethodGet, "/tasks", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	res := decode[api.TasksListResponse](t, w)
	assert.Equal(t, []api.TaskName{"a", "b"}, res.Tasks)
	assert.Equal(t, 2, res.Count)
}

func TestRunFlowCompleted(t *testing.T) {
	env := testServer(t)
	defer env.Cleanup()

	env.RegisterTask(t, "a", helpers.Echo())
	env.RegisterTask(t, "b", helpers.Succeeds(map[string]any{"ok": true}))

	flow := helpers.NewFlow(helpers.Tasks("a", "b"),
		helpers.Route("a", api.Target("b"), api.End()),
	)
	w := env.do(t, http.MethodPost, "/flows/run", api.RunFlowRequest{
		Flow:  flow,
		Input: map[string]any{"x": 1},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	summary := decode[api.ExecutionSummary](t, w)
	assert.Equal(t, api.FlowCompleted, summary.Status)
	assert.NotEmpty(t, summary.FlowRunID)
	if assert.Len(t, summary.Log, 2) {
		assert.Equal(t, api.TaskName("a"), summary.Log[0].TaskName)
		assert.Equal(t, map[string]any{"x": float64(1)}, summary.Log[0].Data)
		assert.Equal(t, api.TaskName("b"), summary.Log[1].TaskName)
	}
}

func TestRunFlowAlias(t *testing.T) {
	env := testServer(t)
	defer env.Cleanup()

	env.RegisterTask(t, "a", helpers.Succeeds(nil))

	flow := helpers.NewFlow(helpers.Tasks("a"))
	w := env.do(t, http.MethodPost, "/run-flow", api.RunFlowRequest{
		Flow: flow,
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRunFlowInvalidJSON(t *testing.T) {
	env := testServer(t)
	defer env.Cleanup()

	w := env.do(t, http.MethodPost, "/flows/run", "not-json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	res := decode[api.ErrorResponse](t, w)
	assert.Contains(t, res.Error, "invalid JSON")
}

func TestRunFlowMissingFlow(t *testing.T) {
	env := testServer(t)
	defer env.Cleanup()

	w := env.do(t, http.MethodPost, "/flows/run", "{}")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunFlowValidationError(t *testing.T) {
	env := testServer(t)
	defer env.Cleanup()

	env.RegisterTask(t, "a", helpers.Succeeds(nil))

	flow := helpers.NewFlow(helpers.Tasks("a"))
	flow.StartTask = "missing"
	w := env.do(t, http.MethodPost, "/flows/run", api.RunFlowRequest{
		Flow: flow,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	res := decode[api.ErrorResponse](t, w)
	assert.Contains(t, res.Error, "start_task")
	assert.Nil(t, res.Summary)

	runs, err := env.Engine.ListFlowRuns(context.Background(), 10)
	assert.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunFlowUnregisteredTask(t *testing.T) {
	env := testServer(t)
	defer env.Cleanup()

	flow := helpers.NewFlow(helpers.Tasks("ghost"))
	w := env.do(t, http.MethodPost, "/flows/run", api.RunFlowRequest{
		Flow: flow,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	res := decode[api.ErrorResponse](t, w)
	assert.Contains(t, res.Error, "tasks not registered: ghost")
}

func TestRunFlowExecutionFailure(t *testing.T) {
	env := testServer(t)
	defer env.Cleanup()

	env.RegisterTask(t, "a", helpers.Succeeds(nil))
	env.RegisterTask(t, "b", helpers.Errors(errors.New("boom")))

	flow := helpers.NewFlow(helpers.Tasks("a", "b"),
		helpers.Route("a", api.Target("b"), api.End()),
	)
	w := env.do(t, http.MethodPost, "/flows/run", api.RunFlowRequest{
		Flow: flow,
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	res := decode[api.ErrorResponse](t, w)
	assert.Equal(t, "task b failed: boom", res.Error)
	if assert.NotNil(t, res.Summary) {
		assert.Equal(t, api.FlowFailed, res.Summary.Status)
		assert.Empty(t, res.Summary.Log)
		env.FlowRunStatus(t, res.Summary.FlowRunID, api.FlowFailed)
	}
}

func TestGetFlowRun(t *testing.T) {
	env := testServer(t)
	defer env.Cleanup()

	env.RegisterTask(t, "a", helpers.Succeeds(nil))
	summary, err := env.Engine.Execute(
		context.Background(), helpers.NewFlow(helpers.Tasks("a")), nil,
	)
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/flows/"+string(summary.FlowRunID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	detail := decode[api.FlowRunDetail](t, w)
	assert.Equal(t, summary.FlowRunID, detail.FlowRun.ID)
	assert.Equal(t, api.FlowCompleted, detail.FlowRun.Status)
	if assert.Len(t, detail.Tasks, 1) {
		assert.Equal(t, api.TaskSuccess, detail.Tasks[0].Status)
	}
}

func TestGetFlowRunNotFound(t *testing.T) {
	env := testServer(t)
	defer env.Cleanup()

	w := env.do(t, http.MethodGet, "/flows/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	res := decode[api.ErrorResponse](t, w)
	assert.Contains(t, res.Error, "unknown")
}

func TestListFlowRuns(t *testing.T) {
	env := testServer(t)
	defer env.Cleanup()

	env.RegisterTask(t, "a", helpers.Succeeds(nil))
	flow := helpers.NewFlow(helpers.Tasks("a"))
	for range 3 {
		_, err := env.Engine.Execute(context.Background(), flow, nil)
		require.NoError(t, err)
	}

	w := env.do(t, http.MethodGet, "/flows?limit=2", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	res := decode[api.FlowRunsListResponse](t, w)
	assert.Equal(t, 2, res.Count)
	assert.Len(t, res.FlowRuns, 2)

	w = env.do(t, http.MethodGet, "/flows", nil)
	res = decode[api.FlowRunsListResponse](t, w)
	assert.Equal(t, 3, res.Count)
}

func TestListFlowRunsInvalidLimit(t *testing.T) {
	env := testServer(t)
	defer env.Cleanup()

	for _, limit := range []string{"abc", "0", "-1", "100000"} {
		w := env.do(t, http.MethodGet, "/flows?limit="+limit, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, limit)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := testServer(t)
	defer env.Cleanup()

	env.RegisterTask(t, "a", helpers.Succeeds(nil))
	_, err := env.Engine.Execute(
		context.Background(), helpers.NewFlow(helpers.Tasks("a")), nil,
	)
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t,
		strings.Contains(body, "flowrun_flow_runs_started_total 1"),
	)
	assert.Contains(t, body, "flowrun_task_runs_finished_total")
}

func TestCORSPreflight(t *testing.T) {
	env := testServer(t)
	defer env.Cleanup()

	w := env.do(t, http.MethodOptions, "/flows/run", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestOptionalRoutes(t *testing.T) {
	env := helpers.NewTestEnv(t)
	defer env.Cleanup()

	router := server.NewServer(env.Engine, nil, nil).SetupRoutes()
	for _, path := range []string{"/metrics", "/events"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func (e *testServerEnv) FlowRunStatus(
	t *testing.T, id api.FlowRunID, expected api.FlowStatus,
) {
	t.Helper()
	run, err := e.Store.GetFlowRun(context.Background(), id)
	if assert.NoError(t, err) {
		assert.Equal(t, expected, run.Status)
	}
}
