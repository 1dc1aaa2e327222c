package execution

import (
	"unsafe"

	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
)

// ComponentType is implemented by generated component structs. The struct
// must be pointer free; its memory is copied verbatim into the runtime.
type ComponentType interface {
	ComponentID() runtime.ComponentID
}

// ActionType is implemented by generated action structs.
type ActionType interface {
	ActionID() runtime.ActionID
}

func bytesOf[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}

func AddComponent[C ComponentType](b *Buffer, entity runtime.EntityID, c C) {
	b.AddComponent(entity, c.ComponentID(), bytesOf(&c))
}

func UpdateComponent[C ComponentType](b *Buffer, entity runtime.EntityID, c C) {
	b.UpdateComponent(entity, c.ComponentID(), bytesOf(&c))
}

func RemoveComponent[C ComponentType](b *Buffer, entity runtime.EntityID) {
	var zero C
	b.RemoveComponent(entity, zero.ComponentID())
}

func PushAction[A ActionType](b *Buffer, a A) {
	b.PushAction(a.ActionID(), bytesOf(&a))
}

// With adds c to the builder.
func With[C ComponentType](e *EntityBuilder, c C) *EntityBuilder {
	return e.AddComponent(c.ComponentID(), bytesOf(&c))
}

// Decode copies a callback payload into a C value. data must point at a
// payload of component type C.
func Decode[C any](data unsafe.Pointer) C {
	var zero C
	if data == nil {
		return zero
	}
	return *(*C)(data)
}
