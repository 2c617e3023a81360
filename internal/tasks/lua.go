package tasks

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Shopify/go-lua"
)

type (
	// LuaEnv compiles Lua scripts and runs them in sandboxed states drawn
	// from a pool
	LuaEnv struct {
		statePool chan *lua.State
	}

	// CompiledLua is a script compiled to Lua bytecode
	CompiledLua struct {
		bytecode []byte
		name     string
	}
)

const (
	luaStatePoolSize    = 10
	luaGlobalTableIndex = -2
	luaTableValueIndex  = -3
	luaGlobalTableName  = "_G"
	luaInputPrelude     = "local input = select(1, ...)\n"
	luaBinaryMode       = "b"
)

var (
	ErrLuaCompile   = errors.New("lua compile error")
	ErrLuaLoad      = errors.New("lua load error")
	ErrLuaExecution = errors.New("lua execution error")
)

var luaExclude = [...]string{
	"io", "os", "debug", "package", "require", "dofile", "loadfile", "load",
}

// NewLuaEnv creates a Lua environment with an empty state pool
func NewLuaEnv() *LuaEnv {
	return &LuaEnv{
		statePool: make(chan *lua.State, luaStatePoolSize),
	}
}

// Compile compiles a script body. The body sees its task input as the local
// variable input
func (e *LuaEnv) Compile(name, script string) (*CompiledLua, error) {
	L := lua.NewState()
	e.setupSandbox(L)

	if err := lua.LoadString(L, luaInputPrelude+script); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLuaCompile, name, err)
	}

	var buf bytes.Buffer
	if err := L.Dump(&buf); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLuaCompile, name, err)
	}

	return &CompiledLua{
		bytecode: buf.Bytes(),
		name:     name,
	}, nil
}

// Call runs a compiled script with a single argument and hands its first
// return value, still on the Lua stack, to read
func (e *LuaEnv) Call(
	c *CompiledLua, arg any, read func(*lua.State, int),
) error {
	L := e.getState()
	defer e.returnState(L)

	e.setupSandbox(L)
	err := L.Load(bytes.NewReader(c.bytecode), c.name, luaBinaryMode)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}

	goToLua(L, arg)
	if err := L.ProtectedCall(1, 1, 0); err != nil {
		return fmt.Errorf("%w: %w", ErrLuaExecution, err)
	}

	read(L, -1)
	L.Pop(1)
	return nil
}

func (e *LuaEnv) setupSandbox(L *lua.State) {
	lua.OpenLibraries(L)
	L.Global(luaGlobalTableName)
	for _, name := range luaExclude {
		L.PushNil()
		L.SetField(luaGlobalTableIndex, name)
	}
	L.Pop(1)
}

func (e *LuaEnv) getState() *lua.State {
	select {
	case L := <-e.statePool:
		return L
	default:
		return lua.NewState()
	}
}

func (e *LuaEnv) returnState(L *lua.State) {
	L.SetTop(0)
	resetGlobals(L)

	select {
	case e.statePool <- L:
	default:
	}
}

// resetGlobals removes every global so the next script starts from a fresh
// sandbox. Assigning nil to an existing field is allowed during traversal
func resetGlobals(L *lua.State) {
	L.PushGlobalTable()
	L.PushNil()
	for L.Next(-2) {
		L.Pop(1)
		L.PushValue(-1)
		L.PushNil()
		L.RawSet(-4)
	}
	L.Pop(1)
}

func goToLua(L *lua.State, value any) {
	switch v := value.(type) {
	case string:
		L.PushString(v)
	case bool:
		L.PushBoolean(v)
	case int:
		L.PushInteger(v)
	case int64:
		L.PushInteger(int(v))
	case float64:
		L.PushNumber(v)
	case []any:
		pushLuaArray(L, v)
	case map[string]any:
		pushLuaMap(L, v)
	case nil:
		L.PushNil()
	default:
		L.PushString(fmt.Sprintf("%v", v))
	}
}

func pushLuaArray(L *lua.State, arr []any) {
	L.CreateTable(len(arr), 0)
	for i, item := range arr {
		L.PushInteger(i + 1)
		goToLua(L, item)
		L.SetTable(luaTableValueIndex)
	}
}

func pushLuaMap(L *lua.State, m map[string]any) {
	L.CreateTable(0, len(m))
	for k, val := range m {
		L.PushString(k)
		goToLua(L, val)
		L.SetTable(luaTableValueIndex)
	}
}

func luaToGo(L *lua.State, index int) any {
	switch L.TypeOf(index) {
	case lua.TypeBoolean:
		return L.ToBoolean(index)
	case lua.TypeNumber:
		return luaNumberToGo(L, index)
	case lua.TypeString:
		s, _ := L.ToString(index)
		return s
	case lua.TypeTable:
		return luaTableToAny(L, index)
	default:
		return nil
	}
}

func luaNumberToGo(L *lua.State, index int) any {
	num, _ := L.ToNumber(index)
	if num == float64(int(num)) {
		return int(num)
	}
	return num
}

// luaTableToAny converts a sequence to []any and any other table to a map
// keyed by the string form of its keys
func luaTableToAny(L *lua.State, index int) any {
	abs := L.AbsIndex(index)
	length := L.RawLength(abs)

	count := 0
	L.PushNil()
	for L.Next(abs) {
		count++
		L.Pop(1)
	}

	if length > 0 && count == length {
		arr := make([]any, length)
		for i := 1; i <= length; i++ {
			L.RawGetInt(abs, i)
			arr[i-1] = luaToGo(L, -1)
			L.Pop(1)
		}
		return arr
	}

	result := map[string]any{}
	L.PushNil()
	for L.Next(abs) {
		var key string
		if L.TypeOf(-2) == lua.TypeString {
			key, _ = L.ToString(-2)
		} else {
			key = fmt.Sprintf("%v", luaToGo(L, -2))
		}
		result[key] = luaToGo(L, -1)
		L.Pop(1)
	}
	return result
}
