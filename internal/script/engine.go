package script

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"
	lua "github.com/yuin/gopher-lua"

	"github.com/quill-ls/quill/internal/rpc"
)

// Engine owns one Lua state and wires script-defined handlers into a
// dispatcher.
type Engine struct {
	L          *lua.LState
	dispatcher *rpc.Dispatcher
	logger     *log.Logger
}

// NewEngine creates an Engine registering handlers on d.
func NewEngine(d *rpc.Dispatcher, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	e := &Engine{
		L:          lua.NewState(),
		dispatcher: d,
		logger:     logger,
	}
	e.L.PreloadModule("quill", e.moduleLoader)
	return e
}

// Close releases the Lua state.
func (e *Engine) Close() {
	e.L.Close()
}

// LoadDir loads every *.lua file in dir, in name order. A missing directory
// is not an error; a broken script is.
func (e *Engine) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading script dir %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".lua") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := e.LoadFile(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// LoadFile executes one script file.
func (e *Engine) LoadFile(path string) error {
	if err := e.L.DoFile(path); err != nil {
		return fmt.Errorf("loading script %s: %w", path, err)
	}
	e.logger.Debug("script loaded", "path", path)
	return nil
}

// moduleLoader builds the "quill" module table.
func (e *Engine) moduleLoader(L *lua.LState) int {
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"on_notification": e.luaOnNotification,
		"on_request":      e.luaOnRequest,
		"log":             e.luaLog,
	})
	L.Push(mod)
	return 1
}

// luaOnNotification registers a script function as a notification handler.
func (e *Engine) luaOnNotification(L *lua.LState) int {
	method := L.CheckString(1)
	fn := L.CheckFunction(2)

	ok := e.dispatcher.HandleNotification(method, func(params json.RawMessage) error {
		_, err := e.call(fn, string(params), 0)
		return err
	})
	L.Push(lua.LBool(ok))
	return 1
}

// luaOnRequest registers a script function as a request handler.
func (e *Engine) luaOnRequest(L *lua.LState) int {
	method := L.CheckString(1)
	fn := L.CheckFunction(2)

	ok := e.dispatcher.HandleRequest(method, func(params json.RawMessage) (any, error) {
		ret, err := e.call(fn, string(params), 1)
		if err != nil {
			return nil, err
		}
		return luaResult(ret), nil
	})
	L.Push(lua.LBool(ok))
	return 1
}

// luaLog lets scripts write to the server log.
func (e *Engine) luaLog(L *lua.LState) int {
	e.logger.Info(L.CheckString(1), "source", "script")
	return 0
}

// call invokes a Lua function with the params text and returns its first
// result when nret is 1.
func (e *Engine) call(fn *lua.LFunction, params string, nret int) (lua.LValue, error) {
	e.L.Push(fn)
	e.L.Push(lua.LString(params))
	if err := e.L.PCall(1, nret, nil); err != nil {
		return lua.LNil, fmt.Errorf("script handler: %w", err)
	}
	if nret == 0 {
		return lua.LNil, nil
	}
	ret := e.L.Get(-1)
	e.L.Pop(1)
	return ret, nil
}

// luaResult converts a script return value into a reply result. A string
// holding valid JSON is embedded verbatim.
func luaResult(v lua.LValue) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		s := string(val)
		if gjson.Valid(s) {
			return json.RawMessage(s)
		}
		return s
	default:
		return v.String()
	}
}
