package runner

import (
	goruntime "runtime"
	"time"
	"unsafe"

	"go.uber.org/zap"

	"github.com/ecsact-dev/ecsact-unreal/internal/core/event"
	"github.com/ecsact-dev/ecsact-unreal/internal/events"
	"github.com/ecsact-dev/ecsact-unreal/internal/host"
	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
	"github.com/ecsact-dev/ecsact-unreal/internal/subsystem"
)

// Async enqueues execution options on a runtime session and polls it for
// events once per tick.
type Async struct {
	Base
	async   *events.AsyncCollector
	session runtime.SessionID

	onStart []func(runtime.SessionID)
	onStop  []func(runtime.SessionID)
}

func NewAsync(world host.World, deps Deps) *Async {
	r := &Async{
		Base:    newBase("async", world, deps),
		session: runtime.InvalidSession,
	}
	r.async = events.NewAsyncCollector(r.log.Named("async"))
	return r
}

// Session returns the current session, or InvalidSession.
func (r *Async) Session() runtime.SessionID { return r.session }

// AsyncCollector exposes the async collector for error subscriptions.
func (r *Async) AsyncCollector() *events.AsyncCollector { return r.async }

func (r *Async) OnSessionStart(fn func(runtime.SessionID)) { r.onStart = append(r.onStart, fn) }
func (r *Async) OnSessionStop(fn func(runtime.SessionID))  { r.onStop = append(r.onStop, fn) }

// OnRequestDone registers fn to run once when req completes.
func (r *Async) OnRequestDone(req runtime.RequestID, fn events.RequestDoneHandler) {
	r.async.OnRequestDone(req, fn)
}

// OnRequestError registers fn to run once if req fails.
func (r *Async) OnRequestError(req runtime.RequestID, fn events.RequestErrorHandler) {
	r.async.OnRequestError(req, fn)
}

func (r *Async) Start() {
	if !r.start(r) {
		return
	}
	r.unsubscribe = append(r.unsubscribe, r.async.OnSessionEvent(r.handleSessionEvent))
	if r.deps.Async.AutoStart && r.deps.Async.Connection != "" {
		r.SessionStart(r.deps.Async.Connection)
	}
}

// SessionStart opens a session with the given connection string. The session
// reports pending and started through the next flushes.
func (r *Async) SessionStart(conn string) {
	if r.session != runtime.InvalidSession {
		r.log.Warn("async session already started", zap.Int32("session", int32(r.session)))
		return
	}
	start, ok := r.deps.Table.AsyncStart.Get()
	if !ok {
		r.missing(runtime.EntryAsyncStart)
		return
	}
	blob := append([]byte(conn), 0)
	var pin goruntime.Pinner
	pin.Pin(&blob[0])
	r.session = start(unsafe.Pointer(&blob[0]), int32(len(conn)))
	pin.Unpin()
	r.log.Info("async session starting", zap.Int32("session", int32(r.session)))
}

// SessionStop closes the session and reports it stopped locally; the
// runtime sends nothing more for a stopped session.
func (r *Async) SessionStop() {
	if r.session == runtime.InvalidSession {
		return
	}
	session := r.session
	if stop, ok := r.deps.Table.AsyncStop.Get(); ok {
		stop(session)
	} else {
		r.missing(runtime.EntryAsyncStop)
	}
	r.handleSessionEvent(session, runtime.SessionStopped)
}

func (r *Async) handleSessionEvent(session runtime.SessionID, ev runtime.SessionEvent) {
	r.log.Info("async session event", zap.Int32("session", int32(session)), zap.Stringer("event", ev))
	switch ev {
	case runtime.SessionStarted:
		for _, fn := range r.onStart {
			r.guard("session_start", func() { fn(session) })
		}
	case runtime.SessionStopped:
		if r.session == session {
			r.session = runtime.InvalidSession
		}
		for _, fn := range r.onStop {
			r.guard("session_stop", func() { fn(session) })
		}
	}
	subsystem.Broadcast(r.subsystems, "async_session_event", func(l subsystem.AsyncListener) {
		l.AsyncSessionEvent(session, ev)
	})
	event.Emit(r.deps.Bus, event.SessionChanged{Runner: r.id, Session: session, Event: ev})
}

// EnqueueExecutionOptions submits the queued mutations to the session and
// returns the request id. It returns InvalidRequest and keeps the mutations
// when nothing can be submitted.
func (r *Async) EnqueueExecutionOptions() runtime.RequestID {
	if r.session == runtime.InvalidSession || !r.back.IsNotEmpty() {
		return runtime.InvalidRequest
	}
	enqueue, ok := r.deps.Table.AsyncEnqueueExecutionOptions.Get()
	if !ok {
		r.missing(runtime.EntryAsyncEnqueueExecutionOptions)
		return runtime.InvalidRequest
	}
	req := runtime.InvalidRequest
	r.submit(func(opts *runtime.ExecutionOptions) {
		r.guard("enqueue", func() { req = enqueue(r.session, opts) })
	})
	return req
}

func (r *Async) Tick(dt time.Duration) {
	if r.state != StateRunning {
		return
	}
	if r.session == runtime.InvalidSession {
		r.warnOnce("no-session", "async session not started, skipping tick")
		return
	}
	r.EnqueueExecutionOptions()

	flush, ok := r.deps.Table.AsyncFlushEvents.Get()
	if !ok {
		r.missing(runtime.EntryAsyncFlushEvents)
		return
	}
	r.guard("flush", func() { flush(r.session, r.collector.Raw(), r.async.Raw()) })
	r.tickSubsystems(dt)
}

// CurrentTick returns the session's execution count, or 0 when unknown.
func (r *Async) CurrentTick() int32 {
	if r.session == runtime.InvalidSession {
		return 0
	}
	get, ok := r.deps.Table.AsyncGetCurrentTick.Get()
	if !ok {
		r.missing(runtime.EntryAsyncGetCurrentTick)
		return 0
	}
	return get(r.session)
}

func (r *Async) Stream(entity runtime.EntityID, component runtime.ComponentID, data unsafe.Pointer) runtime.StreamError {
	stream, ok := r.deps.Table.AsyncStream.Get()
	if !ok {
		r.missing(runtime.EntryAsyncStream)
		return runtime.StreamInvalidRegistry
	}
	if r.session == runtime.InvalidSession {
		return runtime.StreamInvalidRegistry
	}
	return stream(r.session, entity, component, data)
}

func (r *Async) Stop() {
	if r.state != StateRunning {
		r.stop(r)
		return
	}
	r.SessionStop()
	r.stop(r)
	r.async.Close()
}
