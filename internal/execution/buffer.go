// Package execution accumulates one step's worth of mutations in the memory
// layout the runtime's execute call reads.
//
// The buffer owns a private copy of every payload it is given. Copies and the
// compiled arrays that point at them are pinned until Clear, which is the
// single release point. The compiled view returned by CPtr is updated on every
// mutating call and must not be used after Clear. A buffer holding records
// must be cleared before it is dropped.
package execution

import (
	goruntime "runtime"
	"unsafe"

	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
)

// PlaceholderResolver receives on-create callbacks registered by builders.
// The events collector implements it.
type PlaceholderResolver interface {
	RegisterPlaceholder(p runtime.PlaceholderID, fn func(runtime.EntityID))
}

type componentRecord struct {
	entity runtime.EntityID
	id     runtime.ComponentID
	data   []byte
}

type createRecord struct {
	placeholder runtime.PlaceholderID
	components  []componentRecord
}

type actionRecord struct {
	id   runtime.ActionID
	data []byte
}

type Buffer struct {
	resolver PlaceholderResolver
	// on-create callbacks finished before a resolver was set
	pendingOnCreate map[runtime.PlaceholderID]func(runtime.EntityID)

	adds     []componentRecord
	updates  []componentRecord
	removes  []componentRecord
	actions  []actionRecord
	creates  []createRecord
	destroys []runtime.EntityID

	// compiled arrays referenced by opts
	addEntities    []runtime.EntityID
	addComponents  []runtime.Component
	updEntities    []runtime.EntityID
	updComponents  []runtime.Component
	remEntities    []runtime.EntityID
	remComponents  []runtime.ComponentID
	cActions       []runtime.Action
	cPlaceholders  []runtime.PlaceholderID
	cCreateLengths []int32
	cCreateLists   []*runtime.Component
	cCreateComps   [][]runtime.Component
	cDestroys      []runtime.EntityID

	opts   runtime.ExecutionOptions
	pinner goruntime.Pinner
	pinned bool
}

func New() *Buffer {
	return &Buffer{}
}

// SetResolver sets where builder on-create callbacks are registered.
// Callbacks finished before it was set are handed over now.
func (b *Buffer) SetResolver(r PlaceholderResolver) {
	b.resolver = r
	if r == nil {
		return
	}
	for p, fn := range b.pendingOnCreate {
		r.RegisterPlaceholder(p, fn)
	}
	b.pendingOnCreate = nil
}

// PendingOnCreate returns the number of on-create callbacks waiting for a
// resolver.
func (b *Buffer) PendingOnCreate() int { return len(b.pendingOnCreate) }

func (b *Buffer) registerOnCreate(p runtime.PlaceholderID, fn func(runtime.EntityID)) {
	if b.resolver != nil {
		b.resolver.RegisterPlaceholder(p, fn)
		return
	}
	if b.pendingOnCreate == nil {
		b.pendingOnCreate = make(map[runtime.PlaceholderID]func(runtime.EntityID))
	}
	b.pendingOnCreate[p] = fn
}

func (b *Buffer) PushAction(id runtime.ActionID, payload []byte) {
	data := b.own(payload)
	b.actions = append(b.actions, actionRecord{id: id, data: data})
	b.cActions = grow(b, b.cActions, runtime.Action{ID: id, Data: dataPointer(data)})
	b.opts.ActionsLength = int32(len(b.cActions))
	b.opts.Actions = first(b.cActions)
}

func (b *Buffer) AddComponent(entity runtime.EntityID, id runtime.ComponentID, payload []byte) {
	data := b.own(payload)
	b.adds = append(b.adds, componentRecord{entity: entity, id: id, data: data})
	b.addEntities = grow(b, b.addEntities, entity)
	b.addComponents = grow(b, b.addComponents, runtime.Component{ID: id, Data: dataPointer(data)})
	b.opts.AddComponentsLength = int32(len(b.adds))
	b.opts.AddComponentsEntities = first(b.addEntities)
	b.opts.AddComponents = first(b.addComponents)
}

func (b *Buffer) UpdateComponent(entity runtime.EntityID, id runtime.ComponentID, payload []byte) {
	data := b.own(payload)
	b.updates = append(b.updates, componentRecord{entity: entity, id: id, data: data})
	b.updEntities = grow(b, b.updEntities, entity)
	b.updComponents = grow(b, b.updComponents, runtime.Component{ID: id, Data: dataPointer(data)})
	b.opts.UpdateComponentsLength = int32(len(b.updates))
	b.opts.UpdateComponentsEntities = first(b.updEntities)
	b.opts.UpdateComponents = first(b.updComponents)
}

func (b *Buffer) RemoveComponent(entity runtime.EntityID, id runtime.ComponentID) {
	b.removes = append(b.removes, componentRecord{entity: entity, id: id})
	b.remEntities = grow(b, b.remEntities, entity)
	b.remComponents = grow(b, b.remComponents, id)
	b.opts.RemoveComponentsLength = int32(len(b.removes))
	b.opts.RemoveComponentsEntities = first(b.remEntities)
	b.opts.RemoveComponents = first(b.remComponents)
}

func (b *Buffer) DestroyEntity(entity runtime.EntityID) {
	b.destroys = append(b.destroys, entity)
	b.cDestroys = grow(b, b.cDestroys, entity)
	b.opts.DestroyEntitiesLength = int32(len(b.destroys))
	b.opts.DestroyEntities = first(b.cDestroys)
}

// IsNotEmpty reports whether any of the six lists holds a record.
func (b *Buffer) IsNotEmpty() bool {
	return len(b.adds) > 0 ||
		len(b.updates) > 0 ||
		len(b.removes) > 0 ||
		len(b.actions) > 0 ||
		len(b.creates) > 0 ||
		len(b.destroys) > 0
}

// Clear drops every record, payload copy and pending on-create callback and
// zeroes the compiled view. Calling it on an empty buffer does nothing.
func (b *Buffer) Clear() {
	if b.pinned {
		b.pinner.Unpin()
		b.pinned = false
	}
	resolver := b.resolver
	*b = Buffer{resolver: resolver}
}

// CPtr returns the compiled view. It is valid until the next mutating call
// or Clear.
func (b *Buffer) CPtr() *runtime.ExecutionOptions {
	return &b.opts
}

// own returns a pinned private copy of payload.
func (b *Buffer) own(payload []byte) []byte {
	if len(payload) == 0 {
		return nil
	}
	c := make([]byte, len(payload))
	copy(c, payload)
	b.adopt(c)
	return c
}

// adopt pins a payload copy made elsewhere until Clear.
func (b *Buffer) adopt(data []byte) {
	if len(data) > 0 {
		pin(b, &data[0])
	}
}

func pin[T any](b *Buffer, p *T) {
	if p == nil {
		return
	}
	b.pinner.Pin(p)
	b.pinned = true
}

// grow appends v to a compiled array. A reallocated backing array is pinned;
// the one it replaces stays pinned until Clear, so a frame of n pushes keeps
// O(log n) stale arrays.
func grow[T any](b *Buffer, s []T, v T) []T {
	old := cap(s)
	s = append(s, v)
	if cap(s) != old {
		pin(b, &s[0])
	}
	return s
}

// addCreate compiles one finished builder. Its component list is built once
// and never rewritten.
func (b *Buffer) addCreate(c createRecord) {
	b.creates = append(b.creates, c)
	var comps []runtime.Component
	if len(c.components) > 0 {
		comps = make([]runtime.Component, len(c.components))
		for j, r := range c.components {
			comps[j] = runtime.Component{ID: r.id, Data: dataPointer(r.data)}
		}
		pin(b, &comps[0])
	}
	b.cCreateComps = append(b.cCreateComps, comps)
	b.cPlaceholders = grow(b, b.cPlaceholders, c.placeholder)
	b.cCreateLengths = grow(b, b.cCreateLengths, int32(len(comps)))
	b.cCreateLists = grow(b, b.cCreateLists, first(comps))
	b.opts.CreateEntitiesLength = int32(len(b.creates))
	b.opts.CreateEntities = first(b.cPlaceholders)
	b.opts.CreateEntitiesComponentsLength = first(b.cCreateLengths)
	b.opts.CreateEntitiesComponents = first(b.cCreateLists)
}

func first[T any](s []T) *T {
	if len(s) == 0 {
		return nil
	}
	return &s[0]
}

func dataPointer(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}
