package scripting

import (
	"path/filepath"
	"sort"
	"time"
	"unsafe"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/ecsact-dev/ecsact-unreal/internal/catalog"
	"github.com/ecsact-dev/ecsact-unreal/internal/events"
	"github.com/ecsact-dev/ecsact-unreal/internal/runner"
	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
)

// RunnerName is the custom runner name the Lua logic registers under.
const RunnerName = "lua"

// Factory builds Lua runner logic from the scripts in dir/runner.
func Factory(dir string, cat *catalog.Catalog) runner.CustomFactory {
	return func(deps runner.Deps) (runner.CustomLogic, error) {
		return NewRunnerLogic(filepath.Join(dir, "runner"), cat, deps.Log)
	}
}

// RunnerLogic drives a custom runner from Lua hooks:
//
//	runner_start()  runner_tick(dt)  runner_stop()
//	on_entity_created(entity, placeholder)  on_entity_destroyed(entity)
//	on_component(kind, entity, name, fields)
//
// Scripts reach the runtime through the global ecs table.
type RunnerLogic struct {
	cat         *catalog.Catalog
	log         *zap.Logger
	eng         *Engine
	r           *runner.Custom
	unsubscribe []func()
}

func NewRunnerLogic(dir string, cat *catalog.Catalog, log *zap.Logger) (*RunnerLogic, error) {
	l := &RunnerLogic{cat: cat, log: log.Named("lua")}
	eng, err := NewEngine(dir, l.log, l.install)
	if err != nil {
		return nil, err
	}
	l.eng = eng
	return l, nil
}

// Engine exposes the VM the hooks run in.
func (l *RunnerLogic) Engine() *Engine { return l.eng }

func (l *RunnerLogic) Start(r *runner.Custom) error {
	l.r = r
	c := r.Collector()
	l.unsubscribe = append(l.unsubscribe,
		c.OnInit(l.componentHook("init")),
		c.OnUpdate(l.componentHook("update")),
		c.OnRemove(l.componentHook("remove")),
		c.OnCreated(func(e runtime.EntityID, p runtime.PlaceholderID) {
			l.hook("on_entity_created", lua.LNumber(e), lua.LNumber(p))
		}),
		c.OnDestroyed(func(e runtime.EntityID) {
			l.hook("on_entity_destroyed", lua.LNumber(e))
		}),
	)
	return l.eng.Call("runner_start")
}

func (l *RunnerLogic) Tick(_ *runner.Custom, dt time.Duration) {
	l.hook("runner_tick", lua.LNumber(dt.Seconds()))
}

func (l *RunnerLogic) Stop(*runner.Custom) {
	l.hook("runner_stop")
	for _, u := range l.unsubscribe {
		u()
	}
	l.unsubscribe = nil
	l.r = nil
	l.eng.Close()
}

func (l *RunnerLogic) hook(name string, args ...lua.LValue) {
	if err := l.eng.Call(name, args...); err != nil {
		l.log.Error("lua hook failed", zap.String("hook", name), zap.Error(err))
	}
}

func (l *RunnerLogic) componentHook(kind string) events.ComponentHandler {
	return func(e runtime.EntityID, id runtime.ComponentID, data unsafe.Pointer) {
		if !l.eng.Has("on_component") {
			return
		}
		s, err := l.cat.Component(id)
		if err != nil {
			l.log.Debug("event for component outside the catalog", zap.Int32("component", int32(id)))
			return
		}
		fields := l.eng.VM().NewTable()
		if data != nil {
			for k, v := range s.Decode(runtime.Bytes(data, s.Size())) {
				fields.RawSetString(k, lua.LNumber(v))
			}
		}
		l.hook("on_component", lua.LString(kind), lua.LNumber(e), lua.LString(s.Name), fields)
	}
}

func (l *RunnerLogic) install(L *lua.LState) {
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"create_registry":  l.luaCreateRegistry,
		"execute":          l.luaExecute,
		"push_action":      l.luaPushAction,
		"add_component":    l.luaAddComponent,
		"update_component": l.luaUpdateComponent,
		"remove_component": l.luaRemoveComponent,
		"destroy_entity":   l.luaDestroyEntity,
		"create_entity":    l.luaCreateEntity,
		"log":              l.luaLog,
	})
	L.SetGlobal("ecs", mod)
}

func (l *RunnerLogic) owner(L *lua.LState) *runner.Custom {
	if l.r == nil {
		L.RaiseError("ecs: runner not started")
	}
	return l.r
}

func (l *RunnerLogic) luaCreateRegistry(L *lua.LState) int {
	r := l.owner(L)
	id, err := r.CreateRegistry(L.OptString(1, "lua"))
	if err != nil {
		L.RaiseError("ecs.create_registry: %s", err.Error())
	}
	L.Push(lua.LNumber(id))
	return 1
}

// ecs.execute([registry]) returns the status name.
func (l *RunnerLogic) luaExecute(L *lua.LState) int {
	r := l.owner(L)
	reg := runtime.RegistryID(L.OptInt(1, int(r.Registry())))
	L.Push(lua.LString(r.Execute(reg).String()))
	return 1
}

func (l *RunnerLogic) luaPushAction(L *lua.LState) int {
	r := l.owner(L)
	s, err := l.cat.ActionByName(L.CheckString(1))
	if err != nil {
		L.ArgError(1, err.Error())
	}
	r.Buffer().PushAction(runtime.ActionID(s.ID), l.encode(L, s, L.OptTable(2, nil)))
	return 0
}

func (l *RunnerLogic) luaAddComponent(L *lua.LState) int {
	r := l.owner(L)
	e, s := l.entityComponent(L)
	r.Buffer().AddComponent(e, runtime.ComponentID(s.ID), l.encode(L, s, L.OptTable(3, nil)))
	return 0
}

func (l *RunnerLogic) luaUpdateComponent(L *lua.LState) int {
	r := l.owner(L)
	e, s := l.entityComponent(L)
	r.Buffer().UpdateComponent(e, runtime.ComponentID(s.ID), l.encode(L, s, L.OptTable(3, nil)))
	return 0
}

func (l *RunnerLogic) luaRemoveComponent(L *lua.LState) int {
	r := l.owner(L)
	e, s := l.entityComponent(L)
	r.Buffer().RemoveComponent(e, runtime.ComponentID(s.ID))
	return 0
}

func (l *RunnerLogic) luaDestroyEntity(L *lua.LState) int {
	r := l.owner(L)
	r.Buffer().DestroyEntity(runtime.EntityID(L.CheckInt(1)))
	return 0
}

// ecs.create_entity({name = fields, ...}, on_create) returns the placeholder.
func (l *RunnerLogic) luaCreateEntity(L *lua.LState) int {
	r := l.owner(L)
	comps := L.OptTable(1, nil)
	cb := L.OptFunction(2, nil)

	type pending struct {
		id   runtime.ComponentID
		data []byte
	}
	var list []pending
	if comps != nil {
		var names []string
		comps.ForEach(func(k, _ lua.LValue) { names = append(names, k.String()) })
		sort.Strings(names)
		for _, name := range names {
			s, err := l.cat.ComponentByName(name)
			if err != nil {
				L.ArgError(1, err.Error())
			}
			fields, _ := comps.RawGetString(name).(*lua.LTable)
			list = append(list, pending{runtime.ComponentID(s.ID), l.encode(L, s, fields)})
		}
	}

	b := r.CreateEntity()
	for _, p := range list {
		b.AddComponent(p.id, p.data)
	}
	if cb != nil {
		b.OnCreate(func(e runtime.EntityID) {
			if err := l.eng.CallFn(cb, lua.LNumber(e)); err != nil {
				l.log.Error("lua on_create failed", zap.Int32("entity", int32(e)), zap.Error(err))
			}
		})
	}
	b.Finish()
	L.Push(lua.LNumber(b.Placeholder()))
	return 1
}

func (l *RunnerLogic) luaLog(L *lua.LState) int {
	l.log.Info(L.CheckString(1))
	return 0
}

func (l *RunnerLogic) entityComponent(L *lua.LState) (runtime.EntityID, *catalog.Schema) {
	e := runtime.EntityID(L.CheckInt(1))
	s, err := l.cat.ComponentByName(L.CheckString(2))
	if err != nil {
		L.ArgError(2, err.Error())
	}
	return e, s
}

// encode converts a Lua field table to a payload. Booleans become 0 or 1.
func (l *RunnerLogic) encode(L *lua.LState, s *catalog.Schema, t *lua.LTable) []byte {
	values := make(map[string]float64)
	if t != nil {
		t.ForEach(func(k, v lua.LValue) {
			switch v := v.(type) {
			case lua.LNumber:
				values[k.String()] = float64(v)
			case lua.LBool:
				if v {
					values[k.String()] = 1
				} else {
					values[k.String()] = 0
				}
			default:
				L.RaiseError("%s.%s: expected number or boolean, got %s", s.Name, k.String(), v.Type())
			}
		})
	}
	data, err := s.Encode(values)
	if err != nil {
		L.RaiseError("%s", err.Error())
	}
	return data
}
