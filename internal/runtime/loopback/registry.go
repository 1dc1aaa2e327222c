package loopback

import (
	"github.com/ecsact-dev/ecsact-unreal/internal/core/ecs"
	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
)

type registry struct {
	name  string
	world *ecs.World
}

func newRegistry(name string) *registry {
	return &registry{name: name, world: ecs.NewWorld()}
}

func (reg *registry) store(id runtime.ComponentID) *ecs.Store[[]byte] {
	if s, ok := reg.world.Registry().Store(int32(id)); ok {
		return s.(*ecs.Store[[]byte])
	}
	s := ecs.NewStore[[]byte]()
	reg.world.Registry().Register(int32(id), s)
	return s
}

func (reg *registry) add(e ecs.EntityID, id runtime.ComponentID, data []byte, events *runtime.EventsCollector) {
	s := reg.store(id)
	if s.Has(e) {
		return
	}
	s.Set(e, data)
	events.EmitInit(runtime.EntityID(e), id, dataPointer(data))
}

func (reg *registry) update(e ecs.EntityID, id runtime.ComponentID, data []byte, events *runtime.EventsCollector) {
	s := reg.store(id)
	if !s.Has(e) {
		return
	}
	s.Set(e, data)
	events.EmitUpdate(runtime.EntityID(e), id, dataPointer(data))
}

func (reg *registry) remove(e ecs.EntityID, id runtime.ComponentID, events *runtime.EventsCollector) {
	s := reg.store(id)
	old, ok := s.Get(e)
	if !ok {
		return
	}
	events.EmitRemove(runtime.EntityID(e), id, dataPointer(old))
	s.Remove(e)
}

// emitDestroy reports a remove for every component the entity still holds,
// then the destroy itself.
func (reg *registry) emitDestroy(e ecs.EntityID, events *runtime.EventsCollector) {
	for _, key := range reg.world.Registry().Keys() {
		reg.remove(e, runtime.ComponentID(key), events)
	}
	events.EmitDestroyed(runtime.EntityID(e))
}

type componentValue struct {
	id   runtime.ComponentID
	data []byte
}

type entityComponent struct {
	entity ecs.EntityID
	id     runtime.ComponentID
	data   []byte
}

type createRequest struct {
	placeholder runtime.PlaceholderID
	components  []componentValue
}

// Action is an action payload copied out of the execution options.
type Action struct {
	ID   runtime.ActionID
	Data []byte
}

// batch is an owned copy of one ExecutionOptions value.
type batch struct {
	creates  []createRequest
	adds     []entityComponent
	updates  []entityComponent
	removes  []entityComponent
	actions  []Action
	destroys []ecs.EntityID
}

func (r *Runtime) copyOptions(opts *runtime.ExecutionOptions) (*batch, runtime.ExecSysError) {
	if opts.Empty() {
		return nil, runtime.ExecSysOK
	}
	b := &batch{}
	for _, c := range opts.CreatedEntities() {
		req := createRequest{placeholder: c.Placeholder}
		for _, comp := range c.Components {
			req.components = append(req.components, componentValue{comp.ID, r.copyComponent(comp.ID, comp.Data)})
		}
		b.creates = append(b.creates, req)
	}
	entities, comps := opts.AddedComponents()
	for i := range comps {
		b.adds = append(b.adds, entityComponent{ecs.EntityID(entities[i]), comps[i].ID, r.copyComponent(comps[i].ID, comps[i].Data)})
	}
	entities, comps = opts.UpdatedComponents()
	for i := range comps {
		b.updates = append(b.updates, entityComponent{ecs.EntityID(entities[i]), comps[i].ID, r.copyComponent(comps[i].ID, comps[i].Data)})
	}
	entities, ids := opts.RemovedComponents()
	for i := range ids {
		b.removes = append(b.removes, entityComponent{entity: ecs.EntityID(entities[i]), id: ids[i]})
	}
	for _, a := range opts.ActionList() {
		n, ok := r.layout.ActionSize(a.ID)
		if !ok {
			return nil, runtime.ExecSysActionOutOfBounds
		}
		b.actions = append(b.actions, Action{ID: a.ID, Data: append([]byte(nil), runtime.Bytes(a.Data, n)...)})
	}
	for _, e := range opts.DestroyedEntities() {
		b.destroys = append(b.destroys, ecs.EntityID(e))
	}
	return b, runtime.ExecSysOK
}

// SystemContext is the view a System gets of the registry being executed.
// Changes are reported to the step's events collector as they happen.
type SystemContext struct {
	reg     *registry
	events  *runtime.EventsCollector
	actions []Action
}

// Actions returns the actions submitted with this step.
func (c *SystemContext) Actions() []Action { return c.actions }

// Entities returns the entities holding component, in ascending id order.
func (c *SystemContext) Entities(component runtime.ComponentID) []runtime.EntityID {
	ids := c.reg.store(component).Entities()
	out := make([]runtime.EntityID, len(ids))
	for i, id := range ids {
		out[i] = runtime.EntityID(id)
	}
	return out
}

func (c *SystemContext) Get(entity runtime.EntityID, component runtime.ComponentID) ([]byte, bool) {
	return c.reg.store(component).Get(ecs.EntityID(entity))
}

func (c *SystemContext) Has(entity runtime.EntityID, component runtime.ComponentID) bool {
	return c.reg.store(component).Has(ecs.EntityID(entity))
}

func (c *SystemContext) Add(entity runtime.EntityID, component runtime.ComponentID, data []byte) {
	e := ecs.EntityID(entity)
	if !c.reg.world.Alive(e) {
		return
	}
	c.reg.add(e, component, append([]byte(nil), data...), c.events)
}

func (c *SystemContext) Update(entity runtime.EntityID, component runtime.ComponentID, data []byte) {
	c.reg.update(ecs.EntityID(entity), component, append([]byte(nil), data...), c.events)
}

func (c *SystemContext) Remove(entity runtime.EntityID, component runtime.ComponentID) {
	c.reg.remove(ecs.EntityID(entity), component, c.events)
}

// Create makes an entity that no builder asked for; it is reported without a
// placeholder.
func (c *SystemContext) Create() runtime.EntityID {
	e := c.reg.world.CreateEntity()
	c.events.EmitCreated(runtime.EntityID(e), runtime.NoPlaceholder)
	return runtime.EntityID(e)
}

// Destroy queues the entity for destruction at the end of the step.
func (c *SystemContext) Destroy(entity runtime.EntityID) {
	c.reg.world.MarkForDestruction(ecs.EntityID(entity))
}
