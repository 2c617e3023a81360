package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/kode4food/flowrun/internal/registry"
	"github.com/kode4food/flowrun/pkg/api"
	"github.com/kode4food/flowrun/pkg/log"
)

type (
	// FetchTask produces a fixed value, simulating a data source
	FetchTask struct {
		delay time.Duration
	}

	// DoubleTask doubles the "value" field of its input
	DoubleTask struct{}

	// StoreTask echoes its input back, simulating a data sink
	StoreTask struct {
		delay time.Duration
	}
)

const (
	FetchTaskName  api.TaskName = "task1"
	DoubleTaskName api.TaskName = "task2"
	StoreTaskName  api.TaskName = "task3"

	DefaultSampleDelay = 100 * time.Millisecond

	fetchedValue = 10
)

// RegisterSamples registers the sample tasks. delay simulates the I/O wait
// of the fetch and store tasks
func RegisterSamples(reg *registry.Registry, delay time.Duration) error {
	samples := map[api.TaskName]api.TaskFactory{
		FetchTaskName: func() api.Task {
			return &FetchTask{delay: delay}
		},
		DoubleTaskName: func() api.Task {
			return &DoubleTask{}
		},
		StoreTaskName: func() api.Task {
			return &StoreTask{delay: delay}
		},
	}
	for name, factory := range samples {
		if err := reg.Register(name, factory); err != nil {
			return err
		}
	}
	return nil
}

func (*FetchTask) Name() api.TaskName {
	return FetchTaskName
}

func (t *FetchTask) Run(
	ctx context.Context, _ any,
) (*api.TaskResult, error) {
	if err := sleep(ctx, t.delay); err != nil {
		return nil, err
	}
	slog.Debug("Fetching data", log.TaskName(FetchTaskName))
	data := map[string]any{"value": fetchedValue}
	return api.Succeeded(data).WithMeta(api.Metadata{
		"info": "fetched 10",
	}), nil
}

func (*DoubleTask) Name() api.TaskName {
	return DoubleTaskName
}

func (*DoubleTask) Run(
	_ context.Context, input any,
) (*api.TaskResult, error) {
	m, ok := input.(map[string]any)
	if !ok {
		return api.Failed(nil), nil
	}
	value, ok := m["value"]
	if !ok {
		return api.Failed(nil), nil
	}
	processed, ok := double(value)
	if !ok {
		return api.Failed(nil), nil
	}
	return api.Succeeded(map[string]any{"processed": processed}), nil
}

func (*StoreTask) Name() api.TaskName {
	return StoreTaskName
}

func (t *StoreTask) Run(
	ctx context.Context, input any,
) (*api.TaskResult, error) {
	if err := sleep(ctx, t.delay); err != nil {
		return nil, err
	}
	slog.Debug("Storing data",
		log.TaskName(StoreTaskName),
		slog.Any("data", input))
	return api.Succeeded(input).WithMeta(api.Metadata{"stored": true}), nil
}

func double(value any) (any, bool) {
	switch v := value.(type) {
	case int:
		return v * 2, true
	case int64:
		return v * 2, true
	case float64:
		return v * 2, true
	default:
		return nil, false
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
