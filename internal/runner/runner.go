// Package runner drives one execution step per host tick for a world. Three
// variants share the Start/Tick/Stop contract: Sync calls the runtime's
// blocking execute, Async talks to a session, Custom delegates to integrator
// logic.
package runner

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ecsact-dev/ecsact-unreal/internal/config"
	"github.com/ecsact-dev/ecsact-unreal/internal/core/event"
	"github.com/ecsact-dev/ecsact-unreal/internal/events"
	"github.com/ecsact-dev/ecsact-unreal/internal/execution"
	"github.com/ecsact-dev/ecsact-unreal/internal/host"
	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
	"github.com/ecsact-dev/ecsact-unreal/internal/subsystem"
)

type State int

const (
	StateCreated State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Runner is implemented by *Sync, *Async and *Custom.
type Runner interface {
	subsystem.Owner
	Kind() string
	State() State
	Start()
	Tick(dt time.Duration)
	Stop()
	WorldChanged(w host.World)
	Subsystems() *subsystem.Registry
	Collector() *events.Collector
}

// Deps is everything a runner needs from the module.
type Deps struct {
	Table      *runtime.Table
	Log        *zap.Logger
	Bus        *event.Bus
	Subsystems *subsystem.Catalog
	Customs    CustomCatalog
	Runtime    config.RuntimeConfig
	Async      config.AsyncConfig
}

// Base carries the state every variant shares: lifecycle, the double
// buffered execution options, the events collector and the subsystems.
type Base struct {
	id    uuid.UUID
	kind  string
	world host.World
	deps  Deps
	log   *zap.Logger
	state State

	// back collects mutations; front is the buffer being submitted.
	front, back *execution.Buffer

	collector       *events.Collector
	subsystems      *subsystem.Registry
	nextPlaceholder runtime.PlaceholderID
	logged          map[string]bool
	unsubscribe     []func()
}

func newBase(kind string, world host.World, deps Deps) Base {
	id := uuid.New()
	log := deps.Log.Named("runner").With(
		zap.String("runner", id.String()),
		zap.String("kind", kind),
		zap.String("world", world.Name),
	)
	collector := events.NewCollector(log.Named("events"))
	front, back := execution.New(), execution.New()
	front.SetResolver(collector)
	back.SetResolver(collector)
	return Base{
		id:         id,
		kind:       kind,
		world:      world,
		deps:       deps,
		log:        log,
		front:      front,
		back:       back,
		collector:  collector,
		subsystems: subsystem.NewRegistry(log.Named("subsystems")),
		logged:     make(map[string]bool),
	}
}

func (b *Base) ID() uuid.UUID                   { return b.id }
func (b *Base) Kind() string                    { return b.kind }
func (b *Base) World() host.World               { return b.world }
func (b *Base) Logger() *zap.Logger             { return b.log }
func (b *Base) State() State                    { return b.state }
func (b *Base) Subsystems() *subsystem.Registry { return b.subsystems }
func (b *Base) Collector() *events.Collector    { return b.collector }

// Buffer returns the buffer collecting mutations for the next submit.
func (b *Base) Buffer() *execution.Buffer { return b.back }

// NextPlaceholder returns a placeholder unique for this runner.
func (b *Base) NextPlaceholder() runtime.PlaceholderID {
	b.nextPlaceholder++
	return b.nextPlaceholder
}

// CreateEntity starts a builder that finishes into whichever buffer is
// collecting when Finish runs, so a builder kept across a tick is not
// submitted a frame late.
func (b *Base) CreateEntity() *execution.EntityBuilder {
	return execution.NewEntityBuilder(b.NextPlaceholder(), func() *execution.Buffer { return b.back })
}

// BuildEntity is the scoped form of CreateEntity.
func (b *Base) BuildEntity(fn func(*execution.EntityBuilder)) runtime.PlaceholderID {
	eb := b.CreateEntity()
	defer eb.Finish()
	fn(eb)
	return eb.Placeholder()
}

func (b *Base) WorldChanged(w host.World) {
	b.world = w
	subsystem.Broadcast(b.subsystems, "world_changed", func(l subsystem.WorldListener) {
		l.WorldChanged(w)
	})
}

func (b *Base) start(owner subsystem.Owner) bool {
	switch b.state {
	case StateRunning:
		b.log.Error("runner already running")
		return false
	case StateStopped:
		b.log.Error("runner cannot be restarted")
		return false
	}
	b.wireCollector()
	b.subsystems.Initialize(b.deps.Subsystems, b.deps.Runtime.Subsystems, b.deps.Runtime.ExcludeSubsystems)
	b.subsystems.Start(owner)
	b.state = StateRunning
	b.log.Info("runner started", zap.Strings("subsystems", b.subsystems.Names()))
	event.Emit(b.deps.Bus, event.RunnerStarted{Runner: b.id, World: b.world.ID, Kind: b.kind})
	return true
}

func (b *Base) stop(owner subsystem.Owner) bool {
	if b.state != StateRunning {
		b.log.Error("runner not running", zap.Stringer("state", b.state))
		return false
	}
	b.subsystems.Stop(owner)
	b.state = StateStopped
	for _, u := range b.unsubscribe {
		u()
	}
	b.unsubscribe = nil
	b.front.Clear()
	b.back.Clear()
	b.collector.Close()
	b.log.Info("runner stopped")
	event.Emit(b.deps.Bus, event.RunnerStopped{Runner: b.id, World: b.world.ID})
	return true
}

// wireCollector forwards every collector event to the matching subsystems.
func (b *Base) wireCollector() {
	c, reg := b.collector, b.subsystems
	b.unsubscribe = append(b.unsubscribe,
		c.OnInit(func(e runtime.EntityID, id runtime.ComponentID, data unsafe.Pointer) {
			subsystem.Broadcast(reg, "init_component", func(l subsystem.ComponentListener) { l.InitComponentRaw(e, id, data) })
		}),
		c.OnUpdate(func(e runtime.EntityID, id runtime.ComponentID, data unsafe.Pointer) {
			subsystem.Broadcast(reg, "update_component", func(l subsystem.ComponentListener) { l.UpdateComponentRaw(e, id, data) })
		}),
		c.OnRemove(func(e runtime.EntityID, id runtime.ComponentID, data unsafe.Pointer) {
			subsystem.Broadcast(reg, "remove_component", func(l subsystem.ComponentListener) { l.RemoveComponentRaw(e, id, data) })
		}),
		c.OnCreated(func(e runtime.EntityID, p runtime.PlaceholderID) {
			subsystem.Broadcast(reg, "entity_created", func(l subsystem.EntityListener) { l.EntityCreated(e, p) })
		}),
		c.OnDestroyed(func(e runtime.EntityID) {
			subsystem.Broadcast(reg, "entity_destroyed", func(l subsystem.EntityListener) { l.EntityDestroyed(e) })
		}),
	)
}

// submit hands the accumulated mutations to fn and clears them afterwards.
// The buffers are swapped first, so mutations made by event handlers during
// fn are kept for the next submit. opts is nil when nothing was queued.
func (b *Base) submit(fn func(opts *runtime.ExecutionOptions)) {
	b.front, b.back = b.back, b.front
	defer b.front.Clear()

	var opts *runtime.ExecutionOptions
	if b.front.IsNotEmpty() {
		opts = b.front.CPtr()
		if ce := b.log.Check(zap.DebugLevel, "submitting execution options"); ce != nil {
			ce.Write(zap.Object("options", b.front.Describe()))
		}
	}
	fn(opts)
}

func (b *Base) tickSubsystems(dt time.Duration) {
	subsystem.Broadcast(b.subsystems, "tick", func(t subsystem.Ticker) { t.RunnerTick(dt) })
}

// errorOnce logs msg at error level the first time key is seen.
func (b *Base) errorOnce(key, msg string, fields ...zap.Field) {
	if b.logged[key] {
		return
	}
	b.logged[key] = true
	b.log.Error(msg, fields...)
}

func (b *Base) warnOnce(key, msg string, fields ...zap.Field) {
	if b.logged[key] {
		return
	}
	b.logged[key] = true
	b.log.Warn(msg, fields...)
}

func (b *Base) missing(entry string) {
	b.errorOnce("missing:"+entry, "runtime entry point unavailable", zap.String("entry_point", entry))
}

// guard runs integrator code and logs a panic instead of propagating it.
func (b *Base) guard(hook string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			b.log.Error("runner hook panic", zap.String("hook", hook), zap.String("panic", fmt.Sprint(p)))
		}
	}()
	fn()
}
