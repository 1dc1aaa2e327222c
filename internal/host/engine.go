package host

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ecsact-dev/ecsact-unreal/internal/core/event"
	"github.com/ecsact-dev/ecsact-unreal/internal/core/system"
)

// WorldDelegate is notified when a world is initialized or cleaned up.
type WorldDelegate func(World)

// Engine is a minimal stand-in for the host game engine: it owns worlds,
// fires init/cleanup delegates, and ticks registered tickables once per frame.
type Engine struct {
	log   *zap.Logger
	bus   *event.Bus
	ticks *system.Runner

	worlds    []World
	onInit    []WorldDelegate
	onCleanup []WorldDelegate
	frame     uint64

	inbox chan func() // drained at frame start
}

const inboxSize = 64

func NewEngine(bus *event.Bus, log *zap.Logger) *Engine {
	if bus == nil {
		bus = event.NewBus()
	}
	return &Engine{
		log:   log.Named("host"),
		bus:   bus,
		ticks: system.NewRunner(),
		inbox: make(chan func(), inboxSize),
	}
}

// Post schedules fn to run on the tick goroutine at the start of the next
// frame. Safe to call from any goroutine; reports false if the queue is full.
func (e *Engine) Post(fn func()) bool {
	select {
	case e.inbox <- fn:
		return true
	default:
		e.log.Warn("engine inbox full, dropping request")
		return false
	}
}

func (e *Engine) drain() {
	for {
		select {
		case fn := <-e.inbox:
			fn()
		default:
			return
		}
	}
}

func (e *Engine) Bus() *event.Bus { return e.bus }

// Frame returns the number of completed frames.
func (e *Engine) Frame() uint64 { return e.frame }

func (e *Engine) OnWorldInit(fn WorldDelegate)    { e.onInit = append(e.onInit, fn) }
func (e *Engine) OnWorldCleanup(fn WorldDelegate) { e.onCleanup = append(e.onCleanup, fn) }

// Register adds a tickable and returns a func that removes it.
func (e *Engine) Register(t system.Tickable) func() {
	return e.ticks.Register(t)
}

// AddWorld creates a world and fires the init delegates.
func (e *Engine) AddWorld(name string, t WorldType) World {
	w := NewWorld(name, t)
	e.worlds = append(e.worlds, w)
	e.log.Info("world init", zap.Stringer("world", w), zap.String("id", w.ID.String()))
	for _, fn := range e.onInit {
		fn(w)
	}
	return w
}

// RemoveWorld fires the cleanup delegates and forgets the world. It reports
// whether the world existed.
func (e *Engine) RemoveWorld(id uuid.UUID) bool {
	for i, w := range e.worlds {
		if w.ID != id {
			continue
		}
		e.log.Info("world cleanup", zap.Stringer("world", w), zap.String("id", w.ID.String()))
		for _, fn := range e.onCleanup {
			fn(w)
		}
		e.worlds = append(e.worlds[:i], e.worlds[i+1:]...)
		return true
	}
	return false
}

// Worlds returns the live worlds in creation order.
func (e *Engine) Worlds() []World {
	return append([]World(nil), e.worlds...)
}

// Tick runs one frame: posted requests run first, then host notifications
// from the previous frame are dispatched, then every tickable in phase order.
func (e *Engine) Tick(dt time.Duration) {
	e.drain()
	e.bus.SwapBuffers()
	e.bus.DispatchAll()
	e.ticks.Tick(dt)
	e.frame++
}

// Run ticks at the given rate until ctx is done. Each frame gets the time
// measured since the previous one, so late frames report their real length.
func (e *Engine) Run(ctx context.Context, rate time.Duration) error {
	ticker := time.NewTicker(rate)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			e.Tick(now.Sub(last))
			last = now
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Shutdown cleans up every world, newest first.
func (e *Engine) Shutdown() {
	for len(e.worlds) > 0 {
		e.RemoveWorld(e.worlds[len(e.worlds)-1].ID)
	}
}
