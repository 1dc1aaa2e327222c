// Package subsystem holds the pluggable listeners attached to a running
// runner. A subsystem implements Subsystem and any of the optional listener
// interfaces; the runner discovers them with SubsystemsOf.
package subsystem

import (
	"time"
	"unsafe"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ecsact-dev/ecsact-unreal/internal/execution"
	"github.com/ecsact-dev/ecsact-unreal/internal/host"
	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
)

// Owner is the runner as seen by its subsystems.
type Owner interface {
	ID() uuid.UUID
	World() host.World
	Logger() *zap.Logger
	// Buffer returns the buffer collecting mutations for the next submit.
	Buffer() *execution.Buffer
	// CreateEntity starts a builder with a fresh placeholder.
	CreateEntity() *execution.EntityBuilder
	Stream(entity runtime.EntityID, component runtime.ComponentID, data unsafe.Pointer) runtime.StreamError
}

type Subsystem interface {
	RunnerStart(o Owner)
	RunnerStop(o Owner)
}

// ComponentListener receives raw component events. data is valid only for
// the duration of the call.
type ComponentListener interface {
	InitComponentRaw(entity runtime.EntityID, component runtime.ComponentID, data unsafe.Pointer)
	UpdateComponentRaw(entity runtime.EntityID, component runtime.ComponentID, data unsafe.Pointer)
	RemoveComponentRaw(entity runtime.EntityID, component runtime.ComponentID, data unsafe.Pointer)
}

type EntityListener interface {
	EntityCreated(entity runtime.EntityID, placeholder runtime.PlaceholderID)
	EntityDestroyed(entity runtime.EntityID)
}

type AsyncListener interface {
	AsyncSessionEvent(session runtime.SessionID, ev runtime.SessionEvent)
}

type WorldListener interface {
	WorldChanged(w host.World)
}

// Ticker runs after every runner tick.
type Ticker interface {
	RunnerTick(dt time.Duration)
}

// Base is embedded by subsystems that only need the owner reference.
type Base struct {
	owner Owner
}

func (b *Base) RunnerStart(o Owner) { b.owner = o }
func (b *Base) RunnerStop(Owner)    { b.owner = nil }

// Runner returns the owning runner, or nil when not started.
func (b *Base) Runner() Owner { return b.owner }
