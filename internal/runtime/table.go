package runtime

import (
	"unsafe"

	"go.uber.org/zap"
)

// Go-shaped signatures of the runtime entry points.
type (
	CreateRegistryFunc  func(name string) RegistryID
	DestroyRegistryFunc func(registry RegistryID)
	CountEntitiesFunc   func(registry RegistryID) int32
	ExecuteSystemsFunc  func(registry RegistryID, count int32, opts *ExecutionOptions, events *EventsCollector) ExecSysError
	StreamFunc          func(registry RegistryID, entity EntityID, component ComponentID, data unsafe.Pointer) StreamError

	AsyncStartFunc                   func(options unsafe.Pointer, size int32) SessionID
	AsyncStopFunc                    func(session SessionID)
	AsyncEnqueueExecutionOptionsFunc func(session SessionID, opts *ExecutionOptions) RequestID
	AsyncFlushEventsFunc             func(session SessionID, events *EventsCollector, async *AsyncEventsCollector)
	AsyncGetCurrentTickFunc          func(session SessionID) int32
	AsyncStreamFunc                  func(session SessionID, entity EntityID, component ComponentID, data unsafe.Pointer) StreamError

	// Pre-session connection API kept by older runtime builds.
	AsyncConnectFunc    func(connection string) RequestID
	AsyncDisconnectFunc func()
)

// Exported symbol names.
const (
	EntryCreateRegistry               = "ecsact_create_registry"
	EntryDestroyRegistry              = "ecsact_destroy_registry"
	EntryCountEntities                = "ecsact_count_entities"
	EntryExecuteSystems               = "ecsact_execute_systems"
	EntryStream                       = "ecsact_stream"
	EntryAsyncStart                   = "ecsact_async_start"
	EntryAsyncStop                    = "ecsact_async_stop"
	EntryAsyncEnqueueExecutionOptions = "ecsact_async_enqueue_execution_options"
	EntryAsyncFlushEvents             = "ecsact_async_flush_events"
	EntryAsyncGetCurrentTick          = "ecsact_async_get_current_tick"
	EntryAsyncStream                  = "ecsact_async_stream"
	EntryAsyncConnect                 = "ecsact_async_connect"
	EntryAsyncDisconnect              = "ecsact_async_disconnect"
)

// Entry is one optional slot of the table. The function is only reachable
// through Get, which forces callers to handle absence.
type Entry[F any] struct {
	fn F
	ok bool
}

// Set installs fn. Passing a nil func is the caller's bug; use Clear instead.
func (e *Entry[F]) Set(fn F) {
	e.fn = fn
	e.ok = true
}

func (e *Entry[F]) Clear() {
	var zero F
	e.fn = zero
	e.ok = false
}

func (e *Entry[F]) Get() (F, bool) {
	return e.fn, e.ok
}

func (e *Entry[F]) Available() bool {
	return e.ok
}

// Table holds every entry point the runtime may export. The zero value has
// every slot absent.
type Table struct {
	CreateRegistry  Entry[CreateRegistryFunc]
	DestroyRegistry Entry[DestroyRegistryFunc]
	CountEntities   Entry[CountEntitiesFunc]
	ExecuteSystems  Entry[ExecuteSystemsFunc]
	Stream          Entry[StreamFunc]

	AsyncStart                   Entry[AsyncStartFunc]
	AsyncStop                    Entry[AsyncStopFunc]
	AsyncEnqueueExecutionOptions Entry[AsyncEnqueueExecutionOptionsFunc]
	AsyncFlushEvents             Entry[AsyncFlushEventsFunc]
	AsyncGetCurrentTick          Entry[AsyncGetCurrentTickFunc]
	AsyncStream                  Entry[AsyncStreamFunc]

	AsyncConnect    Entry[AsyncConnectFunc]
	AsyncDisconnect Entry[AsyncDisconnectFunc]
}

type slot struct {
	name      string
	available func() bool
	clear     func()
}

func slotOf[F any](name string, e *Entry[F]) slot {
	return slot{name: name, available: e.Available, clear: e.Clear}
}

func (t *Table) slots() []slot {
	return []slot{
		slotOf(EntryCreateRegistry, &t.CreateRegistry),
		slotOf(EntryDestroyRegistry, &t.DestroyRegistry),
		slotOf(EntryCountEntities, &t.CountEntities),
		slotOf(EntryExecuteSystems, &t.ExecuteSystems),
		slotOf(EntryStream, &t.Stream),
		slotOf(EntryAsyncStart, &t.AsyncStart),
		slotOf(EntryAsyncStop, &t.AsyncStop),
		slotOf(EntryAsyncEnqueueExecutionOptions, &t.AsyncEnqueueExecutionOptions),
		slotOf(EntryAsyncFlushEvents, &t.AsyncFlushEvents),
		slotOf(EntryAsyncGetCurrentTick, &t.AsyncGetCurrentTick),
		slotOf(EntryAsyncStream, &t.AsyncStream),
		slotOf(EntryAsyncConnect, &t.AsyncConnect),
		slotOf(EntryAsyncDisconnect, &t.AsyncDisconnect),
	}
}

// EntryPoints lists every known symbol name in table order.
func EntryPoints() []string {
	var t Table
	s := t.slots()
	names := make([]string, len(s))
	for i := range s {
		names[i] = s[i].name
	}
	return names
}

// Reset marks every slot absent.
func (t *Table) Reset() {
	for _, s := range t.slots() {
		s.clear()
	}
}

// Missing returns the names of absent entry points.
func (t *Table) Missing() []string {
	var out []string
	for _, s := range t.slots() {
		if !s.available() {
			out = append(out, s.name)
		}
	}
	return out
}

// Loaded reports whether at least one entry point is present.
func (t *Table) Loaded() bool {
	for _, s := range t.slots() {
		if s.available() {
			return true
		}
	}
	return false
}

// SupportsAsync reports whether the session based execution path is usable.
func (t *Table) SupportsAsync() bool {
	return t.AsyncStart.Available() &&
		t.AsyncEnqueueExecutionOptions.Available() &&
		t.AsyncFlushEvents.Available()
}

// LogAvailability writes one debug line per absent entry point.
func (t *Table) LogAvailability(log *zap.Logger) {
	missing := t.Missing()
	for _, name := range missing {
		log.Debug("runtime entry point absent", zap.String("entry_point", name))
	}
	log.Info("runtime table loaded",
		zap.Int("available", len(t.slots())-len(missing)),
		zap.Int("missing", len(missing)),
		zap.Bool("async", t.SupportsAsync()),
	)
}
