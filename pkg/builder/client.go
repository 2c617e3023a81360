package builder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kode4food/flowrun/pkg/api"
)

// Client talks to a flowrun server
type Client struct {
	http    *resty.Client
	baseURL string
}

const (
	DefaultServerURL = "http://localhost:8080"
	DefaultTimeout   = 60 * time.Second

	routeRun   = "/flows/run"
	routeFlows = "/flows"
	routeTasks = "/tasks"
)

var (
	ErrRunFlow      = errors.New("failed to run flow")
	ErrFlowFailed   = errors.New("flow run failed")
	ErrGetFlowRun   = errors.New("failed to get flow run")
	ErrListFlowRuns = errors.New("failed to list flow runs")
	ErrListTasks    = errors.New("failed to list tasks")
	ErrNotFound     = errors.New("flow run not found")
)

// NewClient creates a client for the server at baseURL. The timeout bounds
// each request, including a synchronous flow run
func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		baseURL: baseURL,
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json"),
	}
}

// BaseURL returns the server address the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RunFlow submits a flow and waits for its terminal summary. A run aborted
// by an invocation failure returns the failed summary together with an
// error wrapping ErrFlowFailed
func (c *Client) RunFlow(
	ctx context.Context, flow *api.FlowDefinition, input any,
) (*api.ExecutionSummary, error) {
	var summary api.ExecutionSummary
	var errResp api.ErrorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(&api.RunFlowRequest{Flow: flow, Input: input}).
		SetResult(&summary).
		SetError(&errResp).
		Post(routeRun)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRunFlow, err)
	}
	if !resp.IsError() {
		return &summary, nil
	}
	if errResp.Summary != nil {
		return errResp.Summary, fmt.Errorf("%w: %s",
			ErrFlowFailed, errResp.Error)
	}
	return nil, responseError(ErrRunFlow, resp, &errResp)
}

// GetFlowRun returns a flow run with its task runs
func (c *Client) GetFlowRun(
	ctx context.Context, id api.FlowRunID,
) (*api.FlowRunDetail, error) {
	var detail api.FlowRunDetail
	var errResp api.ErrorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", string(id)).
		SetResult(&detail).
		SetError(&errResp).
		Get(routeFlows + "/{id}")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGetFlowRun, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if resp.IsError() {
		return nil, responseError(ErrGetFlowRun, resp, &errResp)
	}
	return &detail, nil
}

// ListFlowRuns returns up to limit recent flow runs, newest first. A limit
// of zero uses the server default
func (c *Client) ListFlowRuns(
	ctx context.Context, limit int,
) (*api.FlowRunsListResponse, error) {
	var list api.FlowRunsListResponse
	var errResp api.ErrorResponse
	req := c.http.R().
		SetContext(ctx).
		SetResult(&list).
		SetError(&errResp)
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	resp, err := req.Get(routeFlows)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListFlowRuns, err)
	}
	if resp.IsError() {
		return nil, responseError(ErrListFlowRuns, resp, &errResp)
	}
	return &list, nil
}

// ListTasks returns the names of the tasks registered with the server
func (c *Client) ListTasks(
	ctx context.Context,
) (*api.TasksListResponse, error) {
	var list api.TasksListResponse
	var errResp api.ErrorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&list).
		SetError(&errResp).
		Get(routeTasks)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListTasks, err)
	}
	if resp.IsError() {
		return nil, responseError(ErrListTasks, resp, &errResp)
	}
	return &list, nil
}

func responseError(
	base error, resp *resty.Response, errResp *api.ErrorResponse,
) error {
	msg := errResp.Error
	if msg == "" {
		msg = strings.TrimSpace(resp.String())
	}
	return fmt.Errorf("%w: status %d: %s", base, resp.StatusCode(), msg)
}
