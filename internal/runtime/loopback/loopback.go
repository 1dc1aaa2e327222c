// Package loopback is an in-process implementation of the runtime entry
// points. It keeps registries in memory, applies execution options in the
// same order a native runtime does and reports every change through the
// caller's events collector.
package loopback

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/ecsact-dev/ecsact-unreal/internal/core/ecs"
	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
)

// Layout reports payload sizes. Raw payload pointers carry no length, so the
// runtime needs the schema to copy them.
type Layout interface {
	ComponentSize(id runtime.ComponentID) (int, bool)
	ActionSize(id runtime.ActionID) (int, bool)
}

// System runs once per execution step after the step's options are applied.
type System func(ctx *SystemContext)

// Runtime is not safe for concurrent use. Callers drive it from one goroutine,
// as they would a native runtime.
type Runtime struct {
	log     *zap.Logger
	layout  Layout
	systems []System

	registries   map[runtime.RegistryID]*registry
	nextRegistry runtime.RegistryID

	sessions    map[runtime.SessionID]*session
	nextSession runtime.SessionID
	nextRequest runtime.RequestID
	legacy      runtime.SessionID
}

func New(layout Layout, log *zap.Logger) *Runtime {
	return &Runtime{
		log:        log.Named("loopback"),
		layout:     layout,
		registries: make(map[runtime.RegistryID]*registry),
		sessions:   make(map[runtime.SessionID]*session),
		legacy:     runtime.InvalidSession,
	}
}

// AddSystem appends a system. Systems run in registration order.
func (r *Runtime) AddSystem(s System) {
	r.systems = append(r.systems, s)
}

// Table returns a function table with every entry point bound to r.
func (r *Runtime) Table() *runtime.Table {
	t := &runtime.Table{}
	r.Bind(t)
	return t
}

// Bind installs every entry point of r into t.
func (r *Runtime) Bind(t *runtime.Table) {
	t.Reset()
	t.CreateRegistry.Set(r.CreateRegistry)
	t.DestroyRegistry.Set(r.DestroyRegistry)
	t.CountEntities.Set(r.CountEntities)
	t.ExecuteSystems.Set(r.ExecuteSystems)
	t.Stream.Set(r.Stream)
	t.AsyncStart.Set(r.AsyncStart)
	t.AsyncStop.Set(r.AsyncStop)
	t.AsyncEnqueueExecutionOptions.Set(r.AsyncEnqueueExecutionOptions)
	t.AsyncFlushEvents.Set(r.AsyncFlushEvents)
	t.AsyncGetCurrentTick.Set(r.AsyncGetCurrentTick)
	t.AsyncStream.Set(r.AsyncStream)
	t.AsyncConnect.Set(r.AsyncConnect)
	t.AsyncDisconnect.Set(r.AsyncDisconnect)
}

func (r *Runtime) CreateRegistry(name string) runtime.RegistryID {
	id := r.nextRegistry
	r.nextRegistry++
	r.registries[id] = newRegistry(name)
	r.log.Debug("registry created", zap.Int32("registry", int32(id)), zap.String("name", name))
	return id
}

func (r *Runtime) DestroyRegistry(id runtime.RegistryID) {
	delete(r.registries, id)
}

func (r *Runtime) CountEntities(id runtime.RegistryID) int32 {
	reg, ok := r.registries[id]
	if !ok {
		return 0
	}
	return int32(reg.world.Pool().Len())
}

func (r *Runtime) ExecuteSystems(id runtime.RegistryID, count int32, opts *runtime.ExecutionOptions, events *runtime.EventsCollector) runtime.ExecSysError {
	reg, ok := r.registries[id]
	if !ok {
		return runtime.ExecSysInvalidRegistry
	}
	b, status := r.copyOptions(opts)
	if status != runtime.ExecSysOK {
		return status
	}
	return r.execute(reg, count, b, events)
}

func (r *Runtime) Stream(id runtime.RegistryID, entity runtime.EntityID, component runtime.ComponentID, data unsafe.Pointer) runtime.StreamError {
	reg, ok := r.registries[id]
	if !ok {
		return runtime.StreamInvalidRegistry
	}
	return r.stream(reg, entity, component, data)
}

func (r *Runtime) stream(reg *registry, entity runtime.EntityID, component runtime.ComponentID, data unsafe.Pointer) runtime.StreamError {
	e := ecs.EntityID(entity)
	if !reg.world.Alive(e) {
		return runtime.StreamInvalidEntity
	}
	// Streamed values overwrite silently; no update event is reported.
	reg.store(component).Set(e, r.copyComponent(component, data))
	return runtime.StreamOK
}

// execute applies b and runs systems count times. Options apply only to the
// first step.
func (r *Runtime) execute(reg *registry, count int32, b *batch, events *runtime.EventsCollector) runtime.ExecSysError {
	if count < 1 {
		count = 1
	}
	if events == nil {
		events = &runtime.EventsCollector{}
	}
	for i := int32(0); i < count; i++ {
		ctx := &SystemContext{reg: reg, events: events}
		if i == 0 && b != nil {
			r.apply(reg, b, events)
			ctx.actions = b.actions
		}
		for _, s := range r.systems {
			s(ctx)
		}
		reg.world.FlushDestroyQueue(func(e ecs.EntityID) { reg.emitDestroy(e, events) })
	}
	return runtime.ExecSysOK
}

func (r *Runtime) apply(reg *registry, b *batch, events *runtime.EventsCollector) {
	for _, c := range b.creates {
		e := reg.world.CreateEntity()
		events.EmitCreated(runtime.EntityID(e), c.placeholder)
		for _, comp := range c.components {
			reg.add(e, comp.id, comp.data, events)
		}
	}
	for _, a := range b.adds {
		if !reg.world.Alive(a.entity) {
			r.log.Debug("add on dead entity", zap.Int32("entity", int32(a.entity)))
			continue
		}
		reg.add(a.entity, a.id, a.data, events)
	}
	for _, u := range b.updates {
		reg.update(u.entity, u.id, u.data, events)
	}
	for _, rm := range b.removes {
		reg.remove(rm.entity, rm.id, events)
	}
	for _, e := range b.destroys {
		reg.world.MarkForDestruction(e)
	}
	reg.world.FlushDestroyQueue(func(e ecs.EntityID) { reg.emitDestroy(e, events) })
}

func (r *Runtime) copyComponent(id runtime.ComponentID, data unsafe.Pointer) []byte {
	n, ok := r.layout.ComponentSize(id)
	if !ok {
		r.log.Debug("component without layout", zap.Int32("component", int32(id)))
		return nil
	}
	return append([]byte(nil), runtime.Bytes(data, n)...)
}

func dataPointer(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}
