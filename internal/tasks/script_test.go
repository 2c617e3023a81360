package tasks_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/flowrun/internal/registry"
	"github.com/kode4food/flowrun/internal/tasks"
	"github.com/kode4food/flowrun/pkg/api"
)

func runScript(
	t *testing.T, source string, input any,
) (*api.TaskResult, error) {
	t.Helper()
	task, err := tasks.NewScriptTask(tasks.NewLuaEnv(), "script", source)
	require.NoError(t, err)
	return task.Run(context.Background(), input)
}

func TestScriptStructuredResult(t *testing.T) {
	res, err := runScript(t, `
		return {
			success = input.value > 5,
			data = { processed = input.value * 2 },
			meta = { engine = "lua" },
		}
	`, map[string]any{"value": 10})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, map[string]any{"processed": 20}, res.Data)
	assert.Equal(t, api.Metadata{"engine": "lua"}, res.Meta)

	res, err = runScript(t, `
		return { success = false, data = "too small" }
	`, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "too small", res.Data)
	assert.Nil(t, res.Meta)
}

func TestScriptPlainResult(t *testing.T) {
	res, err := runScript(t, `return input`, "hello")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "hello", res.Data)

	res, err = runScript(t, `return { 1, 2.5, "x" }`, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2.5, "x"}, res.Data)

	res, err = runScript(t, `return { a = { b = true } }`, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": map[string]any{"b": true},
	}, res.Data)

	res, err = runScript(t, `local x = 1`, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Nil(t, res.Data)
}

func TestScriptInputConversion(t *testing.T) {
	res, err := runScript(t, `
		return { input.list[2], input.flag, input.nested.name, #input.list }
	`, map[string]any{
		"list":   []any{"a", "b"},
		"flag":   true,
		"nested": map[string]any{"name": "n"},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"b", true, "n", 2}, res.Data)
}

func TestScriptErrors(t *testing.T) {
	_, err := tasks.NewScriptTask(tasks.NewLuaEnv(), "bad", "return (")
	assert.ErrorIs(t, err, tasks.ErrLuaCompile)

	_, err = runScript(t, `error("boom")`, nil)
	assert.ErrorIs(t, err, tasks.ErrLuaExecution)

	_, err = runScript(t, `return os.time()`, nil)
	assert.ErrorIs(t, err, tasks.ErrLuaExecution)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	task, err := tasks.NewScriptTask(tasks.NewLuaEnv(), "s", "return 1")
	require.NoError(t, err)
	_, err = task.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScriptStateReuse(t *testing.T) {
	env := tasks.NewLuaEnv()
	task, err := tasks.NewScriptTask(env, "inc", `return input + 1`)
	require.NoError(t, err)

	for i := range 20 {
		res, err := task.Run(context.Background(), i)
		require.NoError(t, err)
		assert.Equal(t, i+1, res.Data)
	}
}

func TestScriptGlobalsDoNotLeak(t *testing.T) {
	env := tasks.NewLuaEnv()
	writer, err := tasks.NewScriptTask(env, "writer", `
		counter = (counter or 0) + 1
		string.shout = function(s) return s .. "!" end
		return counter
	`)
	require.NoError(t, err)
	reader, err := tasks.NewScriptTask(env, "reader", `
		return { counter = counter, shout = string.shout ~= nil }
	`)
	require.NoError(t, err)

	ctx := context.Background()
	for range 3 {
		res, err := writer.Run(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Data)
	}

	res, err := reader.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"shout": false}, res.Data)
}

func TestRegisterScripts(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600)
		require.NoError(t, err)
	}
	write("double.lua", `return { success = true, data = input * 2 }`)
	write("echo.lua", `return input`)
	write("README.md", `ignored`)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.lua"), 0o700))

	reg := registry.New()
	names, err := tasks.RegisterScripts(reg, tasks.NewLuaEnv(), dir)
	require.NoError(t, err)
	assert.Equal(t, []api.TaskName{"double", "echo"}, names)
	assert.Equal(t, names, reg.Names())

	task, err := reg.Instantiate("double")
	require.NoError(t, err)
	assert.Equal(t, api.TaskName("double"), task.Name())
	res, err := task.Run(context.Background(), 21)
	require.NoError(t, err)
	assert.Equal(t, 42, res.Data)

	write("broken.lua", `return (`)
	_, err = tasks.RegisterScripts(registry.New(), tasks.NewLuaEnv(), dir)
	assert.ErrorIs(t, err, tasks.ErrLuaCompile)

	_, err = tasks.RegisterScripts(reg, tasks.NewLuaEnv(), "/no/such/dir")
	assert.Error(t, err)
}
