// Package mirror keeps an engine-side copy of the runtime's entities in a
// donburi world, so host code can query them without calling the runtime.
package mirror

import (
	"time"
	"unsafe"

	"github.com/yohamta/donburi"
	"github.com/yohamta/donburi/features/events"
	"go.uber.org/zap"

	"github.com/ecsact-dev/ecsact-unreal/internal/host"
	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
	"github.com/ecsact-dev/ecsact-unreal/internal/subsystem"
)

const Name = "mirror"

// Sizer reports component payload sizes. *catalog.Catalog implements it.
type Sizer interface {
	ComponentSize(id runtime.ComponentID) (int, bool)
}

// RuntimeData is the mirrored state of one runtime entity.
type RuntimeData struct {
	Entity     runtime.EntityID
	Components map[runtime.ComponentID][]byte
}

var Runtime = donburi.NewComponentType[RuntimeData]()

type EntityEvent struct {
	Kind        runtime.Event
	Entity      runtime.EntityID
	Placeholder runtime.PlaceholderID
}

type ComponentEvent struct {
	Kind      runtime.Event
	Entity    runtime.EntityID
	Component runtime.ComponentID
	Data      []byte // owned copy, nil on remove of an unsized component
}

// Published on the mirror's world and delivered by ProcessEvents after each
// runner tick. Host code subscribes through an Option or on World directly.
var (
	EntityEvents    = events.NewEventType[EntityEvent]()
	ComponentEvents = events.NewEventType[ComponentEvent]()
)

// Option configures a Mirror when it is built.
type Option func(*Mirror)

// LogEvents subscribes a debug log line to every mirrored entity and
// component event.
func LogEvents() Option {
	return func(m *Mirror) {
		EntityEvents.Subscribe(m.world, func(_ donburi.World, e EntityEvent) {
			m.log.Debug("entity event",
				zap.Stringer("kind", e.Kind),
				zap.Int32("entity", int32(e.Entity)),
				zap.Int32("placeholder", int32(e.Placeholder)),
			)
		})
		ComponentEvents.Subscribe(m.world, func(_ donburi.World, e ComponentEvent) {
			m.log.Debug("component event",
				zap.Stringer("kind", e.Kind),
				zap.Int32("entity", int32(e.Entity)),
				zap.Int32("component", int32(e.Component)),
				zap.Int("bytes", len(e.Data)),
			)
		})
	}
}

func Factory(sizer Sizer, opts ...Option) subsystem.Factory {
	return func() subsystem.Subsystem { return New(sizer, opts...) }
}

type Mirror struct {
	subsystem.Base
	sizer   Sizer
	log     *zap.Logger
	world   donburi.World
	entries map[runtime.EntityID]donburi.Entity
}

func New(sizer Sizer, opts ...Option) *Mirror {
	m := &Mirror{
		sizer:   sizer,
		log:     zap.NewNop(),
		world:   donburi.NewWorld(),
		entries: make(map[runtime.EntityID]donburi.Entity),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// World returns the donburi world holding the mirrored entities.
func (m *Mirror) World() donburi.World { return m.world }

// Len returns the number of mirrored entities.
func (m *Mirror) Len() int { return len(m.entries) }

// Get returns the mirrored state of e.
func (m *Mirror) Get(e runtime.EntityID) (*RuntimeData, bool) {
	ent, ok := m.entries[e]
	if !ok {
		return nil, false
	}
	return Runtime.Get(m.world.Entry(ent)), true
}

// Component returns the last payload seen for (e, id).
func (m *Mirror) Component(e runtime.EntityID, id runtime.ComponentID) ([]byte, bool) {
	d, ok := m.Get(e)
	if !ok {
		return nil, false
	}
	data, ok := d.Components[id]
	return data, ok
}

func (m *Mirror) RunnerStart(o subsystem.Owner) {
	m.Base.RunnerStart(o)
	m.log = o.Logger().Named(Name)
}

func (m *Mirror) RunnerStop(o subsystem.Owner) {
	m.log.Debug("mirror stopped", zap.Int("entities", len(m.entries)))
	for e, ent := range m.entries {
		m.world.Remove(ent)
		delete(m.entries, e)
	}
	m.Base.RunnerStop(o)
}

func (m *Mirror) RunnerTick(time.Duration) {
	EntityEvents.ProcessEvents(m.world)
	ComponentEvents.ProcessEvents(m.world)
}

func (m *Mirror) WorldChanged(w host.World) {
	m.log.Info("world changed", zap.Stringer("world", w))
}

func (m *Mirror) EntityCreated(e runtime.EntityID, p runtime.PlaceholderID) {
	m.ensure(e)
	EntityEvents.Publish(m.world, EntityEvent{Kind: runtime.EventCreateEntity, Entity: e, Placeholder: p})
}

func (m *Mirror) EntityDestroyed(e runtime.EntityID) {
	if ent, ok := m.entries[e]; ok {
		m.world.Remove(ent)
		delete(m.entries, e)
	}
	EntityEvents.Publish(m.world, EntityEvent{Kind: runtime.EventDestroyEntity, Entity: e})
}

func (m *Mirror) InitComponentRaw(e runtime.EntityID, id runtime.ComponentID, data unsafe.Pointer) {
	m.set(runtime.EventInitComponent, e, id, data)
}

func (m *Mirror) UpdateComponentRaw(e runtime.EntityID, id runtime.ComponentID, data unsafe.Pointer) {
	m.set(runtime.EventUpdateComponent, e, id, data)
}

func (m *Mirror) RemoveComponentRaw(e runtime.EntityID, id runtime.ComponentID, data unsafe.Pointer) {
	payload := m.copy(id, data)
	if d, ok := m.Get(e); ok {
		delete(d.Components, id)
	}
	ComponentEvents.Publish(m.world, ComponentEvent{Kind: runtime.EventRemoveComponent, Entity: e, Component: id, Data: payload})
}

func (m *Mirror) set(kind runtime.Event, e runtime.EntityID, id runtime.ComponentID, data unsafe.Pointer) {
	payload := m.copy(id, data)
	d := m.ensure(e)
	d.Components[id] = payload
	ComponentEvents.Publish(m.world, ComponentEvent{Kind: kind, Entity: e, Component: id, Data: payload})
}

// copy takes the payload out of runtime memory, which is only valid during
// the callback.
func (m *Mirror) copy(id runtime.ComponentID, data unsafe.Pointer) []byte {
	n, ok := m.sizer.ComponentSize(id)
	if !ok {
		m.log.Debug("component without layout", zap.Int32("component", int32(id)))
		return nil
	}
	return append([]byte(nil), runtime.Bytes(data, n)...)
}

// ensure returns the mirrored state of e, creating it for entities whose
// creation was not observed.
func (m *Mirror) ensure(e runtime.EntityID) *RuntimeData {
	if d, ok := m.Get(e); ok {
		return d
	}
	ent := m.world.Create(Runtime)
	Runtime.SetValue(m.world.Entry(ent), RuntimeData{
		Entity:     e,
		Components: make(map[runtime.ComponentID][]byte),
	})
	m.entries[e] = ent
	return Runtime.Get(m.world.Entry(ent))
}
