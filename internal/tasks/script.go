package tasks

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Shopify/go-lua"

	"github.com/kode4food/flowrun/internal/registry"
	"github.com/kode4food/flowrun/pkg/api"
)

// ScriptTask runs a compiled Lua script. A script that returns a table with
// a boolean success field produces a result from its success, data and meta
// fields. Any other return value becomes the data of a successful result
type ScriptTask struct {
	env    *LuaEnv
	script *CompiledLua
	name   api.TaskName
}

const scriptExt = ".lua"

// NewScriptTask compiles source into a task named name
func NewScriptTask(
	env *LuaEnv, name api.TaskName, source string,
) (*ScriptTask, error) {
	script, err := env.Compile(string(name), source)
	if err != nil {
		return nil, err
	}
	return &ScriptTask{
		env:    env,
		script: script,
		name:   name,
	}, nil
}

// RegisterScripts compiles every *.lua file in dir and registers each as a
// task named after the file without its extension
func RegisterScripts(
	reg *registry.Registry, env *LuaEnv, dir string,
) ([]api.TaskName, error) {
	sources, err := LoadScripts(dir)
	if err != nil {
		return nil, err
	}

	names := make([]api.TaskName, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		task, err := NewScriptTask(env, name, sources[name])
		if err != nil {
			return nil, err
		}
		err = reg.Register(name, func() api.Task {
			return task
		})
		if err != nil {
			return nil, err
		}
	}
	return names, nil
}

// LoadScripts reads the *.lua files of dir, keyed by task name
func LoadScripts(dir string) (map[api.TaskName]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	res := map[api.TaskName]string{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != scriptExt {
			continue
		}
		src, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(entry.Name(), scriptExt)
		res[api.TaskName(name)] = string(src)
	}
	return res, nil
}

func (t *ScriptTask) Name() api.TaskName {
	return t.name
}

// Run executes the script with input bound to the local variable input. A
// Lua runtime error is an invocation failure
func (t *ScriptTask) Run(
	ctx context.Context, input any,
) (*api.TaskResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var res *api.TaskResult
	err := t.env.Call(t.script, input, func(L *lua.State, idx int) {
		res = luaTaskResult(L, idx)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func luaTaskResult(L *lua.State, index int) *api.TaskResult {
	if L.TypeOf(index) != lua.TypeTable {
		return api.Succeeded(luaToGo(L, index))
	}

	abs := L.AbsIndex(index)
	L.Field(abs, "success")
	flagged := L.TypeOf(-1) == lua.TypeBoolean
	success := L.ToBoolean(-1)
	L.Pop(1)
	if !flagged {
		return api.Succeeded(luaToGo(L, abs))
	}

	L.Field(abs, "data")
	data := luaToGo(L, -1)
	L.Pop(1)

	L.Field(abs, "meta")
	meta, _ := luaToGo(L, -1).(map[string]any)
	L.Pop(1)

	return &api.TaskResult{
		Success: success,
		Data:    data,
		Meta:    meta,
	}
}
