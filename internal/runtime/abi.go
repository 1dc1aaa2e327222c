package runtime

import "unsafe"

// Component mirrors ecsact_component.
type Component struct {
	ID   ComponentID
	Data unsafe.Pointer
}

// Action mirrors ecsact_action.
type Action struct {
	ID   ActionID
	Data unsafe.Pointer
}

// ExecutionOptions mirrors ecsact_execution_options: parallel arrays with an
// explicit C int length in front of each group.
type ExecutionOptions struct {
	AddComponentsLength   int32
	AddComponentsEntities *EntityID
	AddComponents         *Component

	UpdateComponentsLength   int32
	UpdateComponentsEntities *EntityID
	UpdateComponents         *Component

	RemoveComponentsLength   int32
	RemoveComponentsEntities *EntityID
	RemoveComponents         *ComponentID

	ActionsLength int32
	Actions       *Action

	CreateEntitiesLength           int32
	CreateEntities                 *PlaceholderID
	CreateEntitiesComponentsLength *int32
	CreateEntitiesComponents       **Component

	DestroyEntitiesLength int32
	DestroyEntities       *EntityID
}

// EventsCollector mirrors ecsact_execution_events_collector. Callback fields
// hold C function pointers, user data fields hold opaque context handles.
type EventsCollector struct {
	InitCallback            uintptr
	InitUserData            uintptr
	UpdateCallback          uintptr
	UpdateUserData          uintptr
	RemoveCallback          uintptr
	RemoveUserData          uintptr
	EntityCreatedCallback   uintptr
	EntityCreatedUserData   uintptr
	EntityDestroyedCallback uintptr
	EntityDestroyedUserData uintptr
}

// AsyncEventsCollector mirrors ecsact_async_events_collector.
type AsyncEventsCollector struct {
	AsyncErrorCallback   uintptr
	AsyncErrorUserData   uintptr
	SystemErrorCallback  uintptr
	SystemErrorUserData  uintptr
	SessionEventCallback uintptr
	SessionEventUserData uintptr
	RequestDoneCallback  uintptr
	RequestDoneUserData  uintptr
}

// CreateEntity is one create-entity request read back from ExecutionOptions.
type CreateEntity struct {
	Placeholder PlaceholderID
	Components  []Component
}

func view[T any](p *T, n int32) []T {
	if p == nil || n <= 0 {
		return nil
	}
	return unsafe.Slice(p, int(n))
}

// Bytes views n bytes at p. The slice aliases p; copy it to keep it past the call.
func Bytes(p unsafe.Pointer, n int) []byte {
	if p == nil || n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(p), n)
}

// Empty reports whether every length field is zero.
func (o *ExecutionOptions) Empty() bool {
	return o == nil || (o.AddComponentsLength == 0 &&
		o.UpdateComponentsLength == 0 &&
		o.RemoveComponentsLength == 0 &&
		o.ActionsLength == 0 &&
		o.CreateEntitiesLength == 0 &&
		o.DestroyEntitiesLength == 0)
}

// The accessors below are for runtimes implemented in Go and for tests. The
// returned slices alias the options' memory and share its lifetime.

func (o *ExecutionOptions) AddedComponents() ([]EntityID, []Component) {
	return view(o.AddComponentsEntities, o.AddComponentsLength), view(o.AddComponents, o.AddComponentsLength)
}

func (o *ExecutionOptions) UpdatedComponents() ([]EntityID, []Component) {
	return view(o.UpdateComponentsEntities, o.UpdateComponentsLength), view(o.UpdateComponents, o.UpdateComponentsLength)
}

func (o *ExecutionOptions) RemovedComponents() ([]EntityID, []ComponentID) {
	return view(o.RemoveComponentsEntities, o.RemoveComponentsLength), view(o.RemoveComponents, o.RemoveComponentsLength)
}

func (o *ExecutionOptions) ActionList() []Action {
	return view(o.Actions, o.ActionsLength)
}

func (o *ExecutionOptions) DestroyedEntities() []EntityID {
	return view(o.DestroyEntities, o.DestroyEntitiesLength)
}

func (o *ExecutionOptions) CreatedEntities() []CreateEntity {
	placeholders := view(o.CreateEntities, o.CreateEntitiesLength)
	lengths := view(o.CreateEntitiesComponentsLength, o.CreateEntitiesLength)
	lists := view(o.CreateEntitiesComponents, o.CreateEntitiesLength)
	out := make([]CreateEntity, len(placeholders))
	for i, p := range placeholders {
		out[i] = CreateEntity{Placeholder: p, Components: view(lists[i], lengths[i])}
	}
	return out
}

// Emit* invoke the collector's callbacks the way the runtime does during an
// execute or flush call. A zero callback pointer is skipped.

func (c *EventsCollector) EmitInit(entity EntityID, component ComponentID, data unsafe.Pointer) {
	callComponent(c.InitCallback, EventInitComponent, entity, component, data, c.InitUserData)
}

func (c *EventsCollector) EmitUpdate(entity EntityID, component ComponentID, data unsafe.Pointer) {
	callComponent(c.UpdateCallback, EventUpdateComponent, entity, component, data, c.UpdateUserData)
}

func (c *EventsCollector) EmitRemove(entity EntityID, component ComponentID, data unsafe.Pointer) {
	callComponent(c.RemoveCallback, EventRemoveComponent, entity, component, data, c.RemoveUserData)
}

func (c *EventsCollector) EmitCreated(entity EntityID, placeholder PlaceholderID) {
	callEntity(c.EntityCreatedCallback, EventCreateEntity, entity, placeholder, c.EntityCreatedUserData)
}

func (c *EventsCollector) EmitDestroyed(entity EntityID) {
	callEntity(c.EntityDestroyedCallback, EventDestroyEntity, entity, NoPlaceholder, c.EntityDestroyedUserData)
}

func (c *AsyncEventsCollector) EmitAsyncError(session SessionID, err AsyncError, requests []RequestID) {
	callRequests(c.AsyncErrorCallback, session, int32(err), true, requests, c.AsyncErrorUserData)
}

func (c *AsyncEventsCollector) EmitSystemError(session SessionID, err ExecSysError) {
	callSessionCode(c.SystemErrorCallback, session, int32(err), c.SystemErrorUserData, false)
}

func (c *AsyncEventsCollector) EmitSessionEvent(session SessionID, ev SessionEvent) {
	callSessionCode(c.SessionEventCallback, session, int32(ev), c.SessionEventUserData, true)
}

func (c *AsyncEventsCollector) EmitRequestDone(session SessionID, requests []RequestID) {
	callRequests(c.RequestDoneCallback, session, 0, false, requests, c.RequestDoneUserData)
}
