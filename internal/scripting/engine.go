package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM. Single-goroutine access only: hooks
// run on the host tick.
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a VM, lets setup install globals, then loads every .lua
// file in dir in name order.
func NewEngine(dir string, log *zap.Logger, setup func(*lua.LState)) (*Engine, error) {
	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	if setup != nil {
		setup(vm)
	}
	e := &Engine{vm: vm, log: log}
	if err := e.loadDir(dir); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	n := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		n++
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	if n == 0 {
		return fmt.Errorf("no lua scripts in %s", dir)
	}
	return nil
}

// Has reports whether a global function is defined.
func (e *Engine) Has(name string) bool {
	_, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	return ok
}

// Call runs a global function if the scripts define it. Script errors are
// returned, never raised.
func (e *Engine) Call(name string, args ...lua.LValue) error {
	fn, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return nil
	}
	return e.CallFn(fn, args...)
}

// CallFn runs a Lua function value, discarding its results.
func (e *Engine) CallFn(fn *lua.LFunction, args ...lua.LValue) error {
	if err := e.vm.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...); err != nil {
		return fmt.Errorf("lua %s: %w", fn.String(), err)
	}
	return nil
}

// VM exposes the state for table construction.
func (e *Engine) VM() *lua.LState { return e.vm }

func (e *Engine) Close() {
	e.vm.Close()
}
