package loopback

import (
	"strings"
	"unsafe"

	"go.uber.org/zap"

	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
)

// ConnectionScheme is the only connection string prefix the loopback accepts.
const ConnectionScheme = "loopback://"

type queuedRequest struct {
	id    runtime.RequestID
	batch *batch
}

type session struct {
	id      runtime.SessionID
	reg     *registry
	started bool
	failed  bool
	pending []runtime.SessionEvent
	queue   []queuedRequest
	errors  []runtime.RequestID
	tick    int32
}

func (r *Runtime) AsyncStart(options unsafe.Pointer, size int32) runtime.SessionID {
	conn := string(runtime.Bytes(options, int(size)))
	r.nextSession++
	s := &session{
		id:      r.nextSession,
		reg:     newRegistry(conn),
		pending: []runtime.SessionEvent{runtime.SessionPending},
	}
	if conn != "" && !strings.HasPrefix(conn, ConnectionScheme) {
		s.failed = true
	}
	r.sessions[s.id] = s
	r.log.Debug("session starting", zap.Int32("session", int32(s.id)), zap.String("connection", conn))
	return s.id
}

func (r *Runtime) AsyncStop(id runtime.SessionID) {
	delete(r.sessions, id)
	if id == r.legacy {
		r.legacy = runtime.InvalidSession
	}
}

func (r *Runtime) AsyncEnqueueExecutionOptions(id runtime.SessionID, opts *runtime.ExecutionOptions) runtime.RequestID {
	r.nextRequest++
	req := r.nextRequest
	s, ok := r.sessions[id]
	if !ok {
		r.log.Debug("enqueue on unknown session", zap.Int32("session", int32(id)))
		return req
	}
	b, status := r.copyOptions(opts)
	if status != runtime.ExecSysOK {
		s.errors = append(s.errors, req)
		return req
	}
	s.queue = append(s.queue, queuedRequest{id: req, batch: b})
	return req
}

// AsyncFlushEvents reports pending session events, then runs one step per
// queued request (or one empty step) and reports the requests as done.
func (r *Runtime) AsyncFlushEvents(id runtime.SessionID, events *runtime.EventsCollector, async *runtime.AsyncEventsCollector) {
	if async == nil {
		async = &runtime.AsyncEventsCollector{}
	}
	s, ok := r.sessions[id]
	if !ok {
		async.EmitAsyncError(id, runtime.AsyncErrSessionNotStarted, nil)
		return
	}
	for _, ev := range s.pending {
		async.EmitSessionEvent(id, ev)
	}
	s.pending = s.pending[:0]

	if s.failed {
		async.EmitAsyncError(id, runtime.AsyncErrInvalidConnectionString, queuedIDs(s.queue))
		async.EmitSessionEvent(id, runtime.SessionStopped)
		r.AsyncStop(id)
		return
	}
	if !s.started {
		s.started = true
		async.EmitSessionEvent(id, runtime.SessionStarted)
	}
	if len(s.errors) > 0 {
		async.EmitAsyncError(id, runtime.AsyncErrExecutionMergeFailure, s.errors)
		s.errors = nil
	}

	queue := s.queue
	s.queue = nil
	if len(queue) == 0 {
		r.step(s, nil, events, async)
	}
	for _, q := range queue {
		r.step(s, q.batch, events, async)
	}
	if len(queue) > 0 {
		async.EmitRequestDone(id, queuedIDs(queue))
	}
}

func (r *Runtime) step(s *session, b *batch, events *runtime.EventsCollector, async *runtime.AsyncEventsCollector) {
	if status := r.execute(s.reg, 1, b, events); status != runtime.ExecSysOK {
		async.EmitSystemError(s.id, status)
	}
	s.tick++
}

func queuedIDs(q []queuedRequest) []runtime.RequestID {
	ids := make([]runtime.RequestID, len(q))
	for i := range q {
		ids[i] = q[i].id
	}
	return ids
}

func (r *Runtime) AsyncGetCurrentTick(id runtime.SessionID) int32 {
	if s, ok := r.sessions[id]; ok {
		return s.tick
	}
	return 0
}

func (r *Runtime) AsyncStream(id runtime.SessionID, entity runtime.EntityID, component runtime.ComponentID, data unsafe.Pointer) runtime.StreamError {
	s, ok := r.sessions[id]
	if !ok {
		return runtime.StreamInvalidRegistry
	}
	return r.stream(s.reg, entity, component, data)
}

// AsyncConnect opens the single session of the connection based API.
func (r *Runtime) AsyncConnect(conn string) runtime.RequestID {
	if r.legacy != runtime.InvalidSession {
		r.AsyncStop(r.legacy)
	}
	p, n := runtime.CString(conn)
	r.legacy = r.AsyncStart(p, n)
	r.nextRequest++
	return r.nextRequest
}

func (r *Runtime) AsyncDisconnect() {
	if r.legacy != runtime.InvalidSession {
		r.AsyncStop(r.legacy)
	}
}

// LegacySession returns the session opened by AsyncConnect.
func (r *Runtime) LegacySession() runtime.SessionID { return r.legacy }
