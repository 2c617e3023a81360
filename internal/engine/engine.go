package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kode4food/flowrun/internal/metrics"
	"github.com/kode4food/flowrun/internal/registry"
	"github.com/kode4food/flowrun/internal/store"
	"github.com/kode4food/flowrun/pkg/api"
)

type (
	// Engine executes flow definitions against a task registry, persisting
	// every flow run and task run in a Run Store. An Engine is safe for
	// concurrent use; each Execute call drives its own flow run
	Engine struct {
		store    store.Store
		registry *registry.Registry
		archive  Archive
		events   EventPublisher
		metrics  *metrics.Metrics
		clock    Clock
	}

	// Dependencies are the collaborators of an Engine. Store and Registry
	// are required
	Dependencies struct {
		Store    store.Store
		Registry *registry.Registry
		Archive  Archive
		Events   EventPublisher
		Metrics  *metrics.Metrics
		Clock    Clock
	}

	// Archive keeps terminal flow runs after the Run Store lets them go
	Archive interface {
		Put(context.Context, *api.FlowRunDetail) error
		Get(context.Context, api.FlowRunID) (*api.FlowRunDetail, error)
	}

	// EventPublisher receives run lifecycle events
	EventPublisher interface {
		Publish(*api.RunEvent)
	}

	// Clock provides the current time for run and task timestamps
	Clock func() time.Time

	// FlowExecutionError reports the invocation failure that aborted a flow
	// run
	FlowExecutionError struct {
		Cause     error
		FlowRunID api.FlowRunID
		TaskRunID api.TaskRunID
		TaskName  api.TaskName
	}
)

var (
	ErrStoreRequired    = errors.New("run store is required")
	ErrRegistryRequired = errors.New("task registry is required")
	ErrDispatch         = errors.New("task dispatch failed")
	ErrTaskPanic        = errors.New("task panicked")
	ErrPersistence      = errors.New("run store write failed")
)

// New creates an Engine from its dependencies
func New(deps Dependencies) (*Engine, error) {
	if deps.Store == nil {
		return nil, ErrStoreRequired
	}
	if deps.Registry == nil {
		return nil, ErrRegistryRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		store:    deps.Store,
		registry: deps.Registry,
		archive:  deps.Archive,
		events:   deps.Events,
		metrics:  deps.Metrics,
		clock:    clock,
	}, nil
}

// Now returns the current time from the Engine's clock
func (e *Engine) Now() time.Time {
	return e.clock()
}

// ValidateFlow checks a flow definition for structural soundness and
// confirms that every declared task is registered
func (e *Engine) ValidateFlow(flow *api.FlowDefinition) error {
	if flow == nil {
		return &api.FlowValidationError{Reason: "flow is required"}
	}
	if err := flow.Validate(); err != nil {
		return err
	}
	if missing := e.registry.Missing(flow.TaskNames()...); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, name := range missing {
			names[i] = string(name)
		}
		return &api.FlowValidationError{
			Reason: "tasks not registered: " + strings.Join(names, ", "),
		}
	}
	return nil
}

// Tasks returns the names of all registered tasks
func (e *Engine) Tasks() []api.TaskName {
	return e.registry.Names()
}

// Health reports whether the Run Store is reachable
func (e *Engine) Health(ctx context.Context) error {
	return e.store.Ping(ctx)
}

func (e *Engine) publish(ev *api.RunEvent) {
	if e.events == nil {
		return
	}
	ev.Timestamp = e.clock()
	e.events.Publish(ev)
}

func (e *FlowExecutionError) Error() string {
	if e.TaskName == "" {
		return fmt.Sprintf("flow run %s failed: %v", e.FlowRunID, e.Cause)
	}
	return fmt.Sprintf("task %s failed: %v", e.TaskName, e.Cause)
}

func (e *FlowExecutionError) Unwrap() error {
	return e.Cause
}
