// Package events receives the runtime's raw callbacks during an execute or
// flush call and fans them out to subscribers.
package events

import (
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
)

type (
	ComponentHandler func(entity runtime.EntityID, component runtime.ComponentID, data unsafe.Pointer)
	CreatedHandler   func(entity runtime.EntityID, placeholder runtime.PlaceholderID)
	DestroyedHandler func(entity runtime.EntityID)
)

// subscribers is an ordered multicast list. Dispatch iterates a snapshot, so
// handlers may subscribe or unsubscribe while being called.
type subscribers[F any] struct {
	next  int
	items []subscriber[F]
}

type subscriber[F any] struct {
	id int
	fn F
}

func (s *subscribers[F]) add(fn F) func() {
	s.next++
	id := s.next
	s.items = append(s.items, subscriber[F]{id: id, fn: fn})
	return func() {
		for i := range s.items {
			if s.items[i].id == id {
				s.items = append(s.items[:i:i], s.items[i+1:]...)
				return
			}
		}
	}
}

func (s *subscribers[F]) snapshot() []subscriber[F] {
	return append([]subscriber[F](nil), s.items...)
}

// Collector owns one raw events collector whose callbacks route back to it.
type Collector struct {
	log *zap.Logger
	ctx runtime.Context[Collector]
	raw runtime.EventsCollector

	placeholders map[runtime.PlaceholderID]func(runtime.EntityID)

	init      subscribers[ComponentHandler]
	update    subscribers[ComponentHandler]
	remove    subscribers[ComponentHandler]
	created   subscribers[CreatedHandler]
	destroyed subscribers[DestroyedHandler]
}

var trampolines struct {
	once      sync.Once
	component uintptr
	entity    uintptr
}

func loadTrampolines() {
	trampolines.once.Do(func() {
		trampolines.component = runtime.NewComponentCallback(componentTrampoline)
		trampolines.entity = runtime.NewEntityCallback(entityTrampoline)
	})
}

func componentTrampoline(ev runtime.Event, entity runtime.EntityID, component runtime.ComponentID, data unsafe.Pointer, userData uintptr) {
	c := runtime.Resolve[Collector](userData)
	if c == nil {
		return
	}
	switch ev {
	case runtime.EventInitComponent:
		c.HandleInit(entity, component, data)
	case runtime.EventUpdateComponent:
		c.HandleUpdate(entity, component, data)
	case runtime.EventRemoveComponent:
		c.HandleRemove(entity, component, data)
	}
}

func entityTrampoline(ev runtime.Event, entity runtime.EntityID, placeholder runtime.PlaceholderID, userData uintptr) {
	c := runtime.Resolve[Collector](userData)
	if c == nil {
		return
	}
	switch ev {
	case runtime.EventCreateEntity:
		c.HandleCreated(entity, placeholder)
	case runtime.EventDestroyEntity:
		c.HandleDestroyed(entity)
	}
}

func NewCollector(log *zap.Logger) *Collector {
	loadTrampolines()
	c := &Collector{
		log:          log,
		placeholders: make(map[runtime.PlaceholderID]func(runtime.EntityID)),
	}
	c.ctx = runtime.NewContext(c)
	h := c.ctx.Handle()
	c.raw = runtime.EventsCollector{
		InitCallback:            trampolines.component,
		InitUserData:            h,
		UpdateCallback:          trampolines.component,
		UpdateUserData:          h,
		RemoveCallback:          trampolines.component,
		RemoveUserData:          h,
		EntityCreatedCallback:   trampolines.entity,
		EntityCreatedUserData:   h,
		EntityDestroyedCallback: trampolines.entity,
		EntityDestroyedUserData: h,
	}
	return c
}

// Raw returns the struct handed to execute and flush calls.
func (c *Collector) Raw() *runtime.EventsCollector { return &c.raw }

// Close releases the callback context. Events arriving afterwards are dropped.
func (c *Collector) Close() {
	c.ctx.Release()
}

func (c *Collector) OnInit(fn ComponentHandler) (unsubscribe func())   { return c.init.add(fn) }
func (c *Collector) OnUpdate(fn ComponentHandler) (unsubscribe func()) { return c.update.add(fn) }
func (c *Collector) OnRemove(fn ComponentHandler) (unsubscribe func()) { return c.remove.add(fn) }
func (c *Collector) OnCreated(fn CreatedHandler) (unsubscribe func())  { return c.created.add(fn) }
func (c *Collector) OnDestroyed(fn DestroyedHandler) (unsubscribe func()) {
	return c.destroyed.add(fn)
}

// RegisterPlaceholder arranges for fn to run once when the runtime reports p
// as created. A second registration for the same placeholder replaces the
// first.
func (c *Collector) RegisterPlaceholder(p runtime.PlaceholderID, fn func(runtime.EntityID)) {
	if p == runtime.NoPlaceholder {
		c.log.Warn("on-create ignored for entity without placeholder")
		return
	}
	if _, ok := c.placeholders[p]; ok {
		c.log.Warn("placeholder reused before resolution", zap.Int32("placeholder", int32(p)))
	}
	c.placeholders[p] = fn
}

// PendingPlaceholders returns the number of unresolved on-create callbacks.
func (c *Collector) PendingPlaceholders() int { return len(c.placeholders) }

func (c *Collector) HandleInit(entity runtime.EntityID, component runtime.ComponentID, data unsafe.Pointer) {
	for _, s := range c.init.snapshot() {
		s.fn(entity, component, data)
	}
}

func (c *Collector) HandleUpdate(entity runtime.EntityID, component runtime.ComponentID, data unsafe.Pointer) {
	for _, s := range c.update.snapshot() {
		s.fn(entity, component, data)
	}
}

func (c *Collector) HandleRemove(entity runtime.EntityID, component runtime.ComponentID, data unsafe.Pointer) {
	for _, s := range c.remove.snapshot() {
		s.fn(entity, component, data)
	}
}

// HandleCreated resolves the placeholder's on-create callback, if any, and
// then notifies every created subscriber. NoPlaceholder marks an entity the
// runtime created on its own and is never looked up.
func (c *Collector) HandleCreated(entity runtime.EntityID, placeholder runtime.PlaceholderID) {
	if placeholder != runtime.NoPlaceholder {
		if fn, ok := c.placeholders[placeholder]; ok {
			delete(c.placeholders, placeholder)
			fn(entity)
		} else {
			c.log.Debug("entity created without on-create callback",
				zap.Int32("entity", int32(entity)),
				zap.Int32("placeholder", int32(placeholder)),
			)
		}
	}
	for _, s := range c.created.snapshot() {
		s.fn(entity, placeholder)
	}
}

func (c *Collector) HandleDestroyed(entity runtime.EntityID) {
	for _, s := range c.destroyed.snapshot() {
		s.fn(entity)
	}
}
