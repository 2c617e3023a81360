package tasks_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/flowrun/internal/registry"
	"github.com/kode4food/flowrun/internal/tasks"
	"github.com/kode4food/flowrun/pkg/api"
)

func TestRegisterSamples(t *testing.T) {
	reg := registry.New()
	require.NoError(t, tasks.RegisterSamples(reg, 0))
	assert.Equal(t, []api.TaskName{"task1", "task2", "task3"}, reg.Names())

	assert.Error(t, tasks.RegisterSamples(reg, 0))
}

func TestFetchTask(t *testing.T) {
	task := &tasks.FetchTask{}
	assert.Equal(t, tasks.FetchTaskName, task.Name())

	res, err := task.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, map[string]any{"value": 10}, res.Data)
	assert.Equal(t, "fetched 10", res.Meta["info"])
}

func TestDoubleTask(t *testing.T) {
	task := &tasks.DoubleTask{}
	ctx := context.Background()

	res, err := task.Run(ctx, map[string]any{"value": 10})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, map[string]any{"processed": 20}, res.Data)

	res, err = task.Run(ctx, map[string]any{"value": 2.5})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"processed": 5.0}, res.Data)

	for _, input := range []any{
		nil, "value", map[string]any{}, map[string]any{"value": "x"},
	} {
		res, err := task.Run(ctx, input)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Nil(t, res.Data)
	}
}

func TestStoreTask(t *testing.T) {
	reg := registry.New()
	require.NoError(t, tasks.RegisterSamples(reg, 0))

	task, err := reg.Instantiate(tasks.StoreTaskName)
	require.NoError(t, err)

	input := map[string]any{"processed": 20}
	res, err := task.Run(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, input, res.Data)
	assert.Equal(t, true, res.Meta["stored"])
}

func TestSampleDelayHonorsContext(t *testing.T) {
	reg := registry.New()
	require.NoError(t, tasks.RegisterSamples(reg, time.Minute))

	task, err := reg.Instantiate(tasks.FetchTaskName)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = task.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
