package helpers

import (
	"context"
	"sync"
	"time"

	"github.com/kode4food/flowrun/pkg/api"
)

type (
	// MockTask is a scripted task whose behavior is supplied by a RunFunc
	MockTask struct {
		run   RunFunc
		calls *CallLog
		name  api.TaskName
	}

	// RunFunc scripts the behavior of a MockTask
	RunFunc func(ctx context.Context, input any) (*api.TaskResult, error)

	// Call records one MockTask invocation
	Call struct {
		Started  time.Time
		Finished time.Time
		Input    any
		Task     api.TaskName
	}

	// CallLog collects MockTask invocations across goroutines
	CallLog struct {
		calls []Call
		mu    sync.Mutex
	}
)

// NewMockTask creates a task that runs fn and records each call in calls
func NewMockTask(name api.TaskName, fn RunFunc, calls *CallLog) *MockTask {
	return &MockTask{
		name:  name,
		run:   fn,
		calls: calls,
	}
}

// Name returns the task name
func (m *MockTask) Name() api.TaskName {
	return m.name
}

// Run invokes the scripted behavior and records the call
func (m *MockTask) Run(
	ctx context.Context, input any,
) (*api.TaskResult, error) {
	started := time.Now()
	defer func() {
		if m.calls != nil {
			m.calls.add(Call{
				Task:     m.name,
				Input:    input,
				Started:  started,
				Finished: time.Now(),
			})
		}
	}()
	return m.run(ctx, input)
}

// Returns scripts a task that always returns res
func Returns(res *api.TaskResult) RunFunc {
	return func(context.Context, any) (*api.TaskResult, error) {
		return res, nil
	}
}

// Succeeds scripts a task that succeeds with data
func Succeeds(data any) RunFunc {
	return Returns(api.Succeeded(data))
}

// Fails scripts a task that returns an unsuccessful result with data
func Fails(data any) RunFunc {
	return Returns(api.Failed(data))
}

// Errors scripts a task that signals an invocation failure
func Errors(err error) RunFunc {
	return func(context.Context, any) (*api.TaskResult, error) {
		return nil, err
	}
}

// Panics scripts a task that panics with v
func Panics(v any) RunFunc {
	return func(context.Context, any) (*api.TaskResult, error) {
		panic(v)
	}
}

// Echo scripts a task that succeeds with its own input as data
func Echo() RunFunc {
	return func(_ context.Context, input any) (*api.TaskResult, error) {
		return api.Succeeded(input), nil
	}
}

// Delayed runs fn after waiting for d
func Delayed(d time.Duration, fn RunFunc) RunFunc {
	return func(ctx context.Context, input any) (*api.TaskResult, error) {
		time.Sleep(d)
		return fn(ctx, input)
	}
}

// NewCallLog creates an empty CallLog
func NewCallLog() *CallLog {
	return &CallLog{}
}

// Calls returns a copy of all recorded calls in completion order
func (l *CallLog) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	res := make([]Call, len(l.calls))
	copy(res, l.calls)
	return res
}

// For returns the recorded calls of a single task
func (l *CallLog) For(name api.TaskName) []Call {
	var res []Call
	for _, c := range l.Calls() {
		if c.Task == name {
			res = append(res, c)
		}
	}
	return res
}

// Count returns how many times a task was invoked
func (l *CallLog) Count(name api.TaskName) int {
	return len(l.For(name))
}

func (l *CallLog) add(c Call) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, c)
}
