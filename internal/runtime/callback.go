package runtime

import (
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// Raw callback shapes. The trailing userData is the opaque context handle the
// collector was registered with.
type (
	ComponentCallback    func(ev Event, entity EntityID, component ComponentID, data unsafe.Pointer, userData uintptr)
	EntityCallback       func(ev Event, entity EntityID, placeholder PlaceholderID, userData uintptr)
	AsyncErrorCallback   func(session SessionID, err AsyncError, n int32, requests *RequestID, userData uintptr)
	SystemErrorCallback  func(session SessionID, err ExecSysError, userData uintptr)
	SessionEventCallback func(session SessionID, ev SessionEvent, userData uintptr)
	RequestDoneCallback  func(session SessionID, n int32, requests *RequestID, userData uintptr)
)

// callbacks maps every function pointer handed out by the New*Callback
// constructors back to its Go function, so runtimes implemented in Go can
// dispatch without a round trip through C.
var callbacks = struct {
	mu        sync.RWMutex
	byPtr     map[uintptr]any
	native    map[uintptr]bool
	synthetic uintptr
}{
	byPtr:  make(map[uintptr]any),
	native: make(map[uintptr]bool),
}

// Function pointers cannot be freed. Create each callback once per process.

func NewComponentCallback(fn ComponentCallback) uintptr       { return newCallback(fn) }
func NewEntityCallback(fn EntityCallback) uintptr             { return newCallback(fn) }
func NewAsyncErrorCallback(fn AsyncErrorCallback) uintptr     { return newCallback(fn) }
func NewSystemErrorCallback(fn SystemErrorCallback) uintptr   { return newCallback(fn) }
func NewSessionEventCallback(fn SessionEventCallback) uintptr { return newCallback(fn) }
func NewRequestDoneCallback(fn RequestDoneCallback) uintptr   { return newCallback(fn) }

func newCallback(fn any) uintptr {
	ptr, native := nativeCallback(fn)
	callbacks.mu.Lock()
	defer callbacks.mu.Unlock()
	if !native {
		// Odd values are never valid code addresses; they only resolve
		// through the lookup table.
		callbacks.synthetic += 2
		ptr = callbacks.synthetic | 1
	}
	callbacks.byPtr[ptr] = fn
	callbacks.native[ptr] = native
	return ptr
}

func nativeCallback(fn any) (ptr uintptr, ok bool) {
	defer func() {
		if recover() != nil {
			ptr, ok = 0, false
		}
	}()
	return purego.NewCallback(fn), true
}

// CallableFromC reports whether ptr is a real C function pointer. A collector
// holding synthetic pointers can only be driven by a Go runtime.
func CallableFromC(ptr uintptr) bool {
	callbacks.mu.RLock()
	defer callbacks.mu.RUnlock()
	return callbacks.native[ptr]
}

func lookupCallback(ptr uintptr) any {
	callbacks.mu.RLock()
	defer callbacks.mu.RUnlock()
	return callbacks.byPtr[ptr]
}

func callComponent(fn uintptr, ev Event, entity EntityID, component ComponentID, data unsafe.Pointer, userData uintptr) {
	if fn == 0 {
		return
	}
	if cb, ok := lookupCallback(fn).(ComponentCallback); ok {
		cb(ev, entity, component, data, userData)
		return
	}
	purego.SyscallN(fn, uintptr(ev), uintptr(entity), uintptr(component), uintptr(data), userData)
}

func callEntity(fn uintptr, ev Event, entity EntityID, placeholder PlaceholderID, userData uintptr) {
	if fn == 0 {
		return
	}
	if cb, ok := lookupCallback(fn).(EntityCallback); ok {
		cb(ev, entity, placeholder, userData)
		return
	}
	purego.SyscallN(fn, uintptr(ev), uintptr(entity), uintptr(placeholder), userData)
}

func callRequests(fn uintptr, session SessionID, code int32, withCode bool, requests []RequestID, userData uintptr) {
	if fn == 0 {
		return
	}
	var ids *RequestID
	if len(requests) > 0 {
		ids = &requests[0]
	}
	n := int32(len(requests))
	switch cb := lookupCallback(fn).(type) {
	case AsyncErrorCallback:
		cb(session, AsyncError(code), n, ids, userData)
		return
	case RequestDoneCallback:
		cb(session, n, ids, userData)
		return
	}
	if withCode {
		purego.SyscallN(fn, uintptr(session), uintptr(code), uintptr(n), uintptr(unsafe.Pointer(ids)), userData)
	} else {
		purego.SyscallN(fn, uintptr(session), uintptr(n), uintptr(unsafe.Pointer(ids)), userData)
	}
}

func callSessionCode(fn uintptr, session SessionID, code int32, userData uintptr, sessionEvent bool) {
	if fn == 0 {
		return
	}
	switch cb := lookupCallback(fn).(type) {
	case SessionEventCallback:
		if sessionEvent {
			cb(session, SessionEvent(code), userData)
			return
		}
	case SystemErrorCallback:
		if !sessionEvent {
			cb(session, ExecSysError(code), userData)
			return
		}
	}
	purego.SyscallN(fn, uintptr(session), uintptr(code), userData)
}

// RequestIDs views the (length, pointer) pair a request callback receives.
func RequestIDs(n int32, requests *RequestID) []RequestID {
	return view(requests, n)
}

// Context is a typed callback context. The runtime only ever sees Handle(),
// an opaque integer; Resolve turns it back into the owning value.
type Context[T any] struct {
	handle uintptr
}

var contexts = struct {
	mu       sync.RWMutex
	next     uintptr
	byHandle map[uintptr]any
}{byHandle: make(map[uintptr]any)}

func NewContext[T any](v *T) Context[T] {
	contexts.mu.Lock()
	defer contexts.mu.Unlock()
	contexts.next++
	contexts.byHandle[contexts.next] = v
	return Context[T]{handle: contexts.next}
}

func (c Context[T]) Handle() uintptr { return c.handle }

// Release forgets the handle. Callbacks arriving afterwards resolve to nil.
func (c Context[T]) Release() {
	contexts.mu.Lock()
	defer contexts.mu.Unlock()
	delete(contexts.byHandle, c.handle)
}

// Resolve returns the value registered under handle, or nil if the handle is
// unknown, released, or registered for a different type.
func Resolve[T any](handle uintptr) *T {
	contexts.mu.RLock()
	defer contexts.mu.RUnlock()
	v, _ := contexts.byHandle[handle].(*T)
	return v
}
