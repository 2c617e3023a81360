package tasks_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/flowrun/internal/registry"
	"github.com/kode4food/flowrun/internal/tasks"
	"github.com/kode4food/flowrun/pkg/api"
)

func newEndpoint(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json",
				r.Header.Get("Content-Type"))
			assert.Equal(t, "flowrun/1.0", r.Header.Get("User-Agent"))

			var req tasks.HTTPTaskRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, api.TaskName("remote"), req.Task)

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		},
	))
	t.Cleanup(server.Close)
	return server
}

func runRemote(
	t *testing.T, server *httptest.Server, input any,
) (*api.TaskResult, error) {
	t.Helper()
	client := tasks.NewHTTPClient(5 * time.Second)
	task := tasks.NewHTTPTask(client, "remote", server.URL)
	assert.Equal(t, api.TaskName("remote"), task.Name())
	return task.Run(context.Background(), input)
}

func TestHTTPTaskSuccess(t *testing.T) {
	server := newEndpoint(t, http.StatusOK,
		`{"success":true,"data":{"value":10},"meta":{"source":"remote"}}`,
	)

	res, err := runRemote(t, server, map[string]any{"a": 1})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, map[string]any{"value": 10.0}, res.Data)
	assert.Equal(t, api.Metadata{"source": "remote"}, res.Meta)
}

func TestHTTPTaskUnsuccessful(t *testing.T) {
	server := newEndpoint(t, http.StatusOK, `{"success":false}`)

	res, err := runRemote(t, server, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Nil(t, res.Data)
	assert.Nil(t, res.Meta)
}

func TestHTTPTaskInvocationFailures(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"server error", `{}`, tasks.ErrHTTPStatus, 500},
		{"client error", `{"success":true}`, tasks.ErrHTTPStatus, 404},
		{"invalid json", `not json`, tasks.ErrInvalidResponse, 200},
		{"not an object", `[1,2]`, tasks.ErrInvalidResponse, 200},
		{"missing flag", `{"data":1}`, tasks.ErrMissingSuccess, 200},
		{"string flag", `{"success":"yes"}`, tasks.ErrMissingSuccess, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newEndpoint(t, tt.status, tt.body)
			_, err := runRemote(t, server, nil)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestHTTPTaskTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := tasks.NewHTTPClient(time.Second)
	task := tasks.NewHTTPTask(client, "remote", url)
	_, err := task.Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestRegisterHTTP(t *testing.T) {
	reg := registry.New()
	client := tasks.NewHTTPClient(time.Second)

	err := tasks.RegisterHTTP(reg, client, map[api.TaskName]string{
		"a": "http://localhost:1/a",
		"b": "http://localhost:1/b",
	})
	require.NoError(t, err)
	assert.Equal(t, []api.TaskName{"a", "b"}, reg.Names())

	err = tasks.RegisterHTTP(reg, client, map[api.TaskName]string{"c": ""})
	assert.ErrorIs(t, err, tasks.ErrEndpointRequired)
}
