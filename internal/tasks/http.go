package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/kode4food/flowrun/internal/registry"
	"github.com/kode4food/flowrun/pkg/api"
	"github.com/kode4food/flowrun/pkg/log"
)

type (
	// HTTPTask delegates its work to a remote endpoint. The endpoint
	// receives an HTTPTaskRequest and answers with a TaskResult document
	HTTPTask struct {
		client   *resty.Client
		name     api.TaskName
		endpoint string
	}

	// HTTPTaskRequest is the body posted to an HTTP task endpoint
	HTTPTaskRequest struct {
		Input any          `json:"input"`
		Task  api.TaskName `json:"task"`
	}
)

const userAgent = "flowrun/1.0"

var (
	ErrHTTPStatus       = errors.New("task endpoint returned HTTP error")
	ErrInvalidResponse  = errors.New("task endpoint returned invalid JSON")
	ErrMissingSuccess   = errors.New("task response has no success flag")
	ErrEndpointRequired = errors.New("task endpoint is required")
)

// NewHTTPClient creates the resty client shared by HTTP tasks
func NewHTTPClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)
}

// RegisterHTTP registers one HTTP task per endpoint, all sharing client
func RegisterHTTP(
	reg *registry.Registry, client *resty.Client,
	endpoints map[api.TaskName]string,
) error {
	for name, endpoint := range endpoints {
		if endpoint == "" {
			return fmt.Errorf("%w: %s", ErrEndpointRequired, name)
		}
		err := reg.Register(name, func() api.Task {
			return NewHTTPTask(client, name, endpoint)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// NewHTTPTask creates a task that posts its input to endpoint
func NewHTTPTask(
	client *resty.Client, name api.TaskName, endpoint string,
) *HTTPTask {
	return &HTTPTask{
		client:   client,
		name:     name,
		endpoint: endpoint,
	}
}

func (t *HTTPTask) Name() api.TaskName {
	return t.name
}

// Run posts the input to the endpoint. Transport failures, non-2xx statuses,
// and malformed responses are invocation failures; a well-formed response
// with success=false is a normal unsuccessful result
func (t *HTTPTask) Run(
	ctx context.Context, input any,
) (*api.TaskResult, error) {
	start := time.Now()
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(&HTTPTaskRequest{Task: t.name, Input: input}).
		Post(t.endpoint)
	if err != nil {
		slog.Error("HTTP task request failed",
			log.TaskName(t.name),
			slog.Duration("duration", time.Since(start)),
			log.Error(err))
		return nil, err
	}

	body := resp.Body()
	if resp.StatusCode() < http.StatusOK ||
		resp.StatusCode() >= http.StatusMultipleChoices {
		slog.Error("HTTP task error",
			log.TaskName(t.name),
			slog.Int("status_code", resp.StatusCode()),
			slog.String("response_body", string(body)))
		return nil, fmt.Errorf("%w: HTTP %d", ErrHTTPStatus, resp.StatusCode())
	}

	return parseTaskResult(body)
}

func parseTaskResult(body []byte) (*api.TaskResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidResponse
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, ErrInvalidResponse
	}

	success := doc.Get("success")
	if success.Type != gjson.True && success.Type != gjson.False {
		return nil, ErrMissingSuccess
	}

	res := &api.TaskResult{
		Success: success.Bool(),
		Data:    doc.Get("data").Value(),
	}
	if meta, ok := doc.Get("meta").Value().(map[string]any); ok {
		res.Meta = meta
	}
	return res, nil
}
