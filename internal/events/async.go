package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
)

type (
	RequestDoneHandler  func(request runtime.RequestID)
	RequestErrorHandler func(request runtime.RequestID, err runtime.AsyncError)
	AsyncErrorHandler   func(err runtime.AsyncError, requests []runtime.RequestID)
	SystemErrorHandler  func(err runtime.ExecSysError)
	SessionHandler      func(session runtime.SessionID, ev runtime.SessionEvent)
)

// AsyncCollector owns one raw async events collector. Request callbacks are
// keyed by request id and fire at most once: when the runtime reports an id
// as done or failed, every callback registered for that id runs and the id is
// forgotten. Ids the runtime never reports keep their callbacks forever.
type AsyncCollector struct {
	log *zap.Logger
	ctx runtime.Context[AsyncCollector]
	raw runtime.AsyncEventsCollector

	done map[runtime.RequestID][]RequestDoneHandler
	errs map[runtime.RequestID][]RequestErrorHandler

	asyncErrors  subscribers[AsyncErrorHandler]
	systemErrors subscribers[SystemErrorHandler]
	sessions     subscribers[SessionHandler]
}

var asyncTrampolines struct {
	once         sync.Once
	asyncError   uintptr
	systemError  uintptr
	sessionEvent uintptr
	requestDone  uintptr
}

func loadAsyncTrampolines() {
	asyncTrampolines.once.Do(func() {
		asyncTrampolines.asyncError = runtime.NewAsyncErrorCallback(
			func(_ runtime.SessionID, err runtime.AsyncError, n int32, ids *runtime.RequestID, userData uintptr) {
				if c := runtime.Resolve[AsyncCollector](userData); c != nil {
					c.HandleAsyncError(err, runtime.RequestIDs(n, ids))
				}
			})
		asyncTrampolines.systemError = runtime.NewSystemErrorCallback(
			func(_ runtime.SessionID, err runtime.ExecSysError, userData uintptr) {
				if c := runtime.Resolve[AsyncCollector](userData); c != nil {
					c.HandleSystemError(err)
				}
			})
		asyncTrampolines.sessionEvent = runtime.NewSessionEventCallback(
			func(session runtime.SessionID, ev runtime.SessionEvent, userData uintptr) {
				if c := runtime.Resolve[AsyncCollector](userData); c != nil {
					c.HandleSessionEvent(session, ev)
				}
			})
		asyncTrampolines.requestDone = runtime.NewRequestDoneCallback(
			func(_ runtime.SessionID, n int32, ids *runtime.RequestID, userData uintptr) {
				if c := runtime.Resolve[AsyncCollector](userData); c != nil {
					c.HandleRequestsDone(runtime.RequestIDs(n, ids))
				}
			})
	})
}

func NewAsyncCollector(log *zap.Logger) *AsyncCollector {
	loadAsyncTrampolines()
	c := &AsyncCollector{
		log:  log,
		done: make(map[runtime.RequestID][]RequestDoneHandler),
		errs: make(map[runtime.RequestID][]RequestErrorHandler),
	}
	c.ctx = runtime.NewContext(c)
	h := c.ctx.Handle()
	c.raw = runtime.AsyncEventsCollector{
		AsyncErrorCallback:   asyncTrampolines.asyncError,
		AsyncErrorUserData:   h,
		SystemErrorCallback:  asyncTrampolines.systemError,
		SystemErrorUserData:  h,
		SessionEventCallback: asyncTrampolines.sessionEvent,
		SessionEventUserData: h,
		RequestDoneCallback:  asyncTrampolines.requestDone,
		RequestDoneUserData:  h,
	}
	return c
}

func (c *AsyncCollector) Raw() *runtime.AsyncEventsCollector { return &c.raw }

func (c *AsyncCollector) Close() {
	c.ctx.Release()
}

func (c *AsyncCollector) OnRequestDone(req runtime.RequestID, fn RequestDoneHandler) {
	c.done[req] = append(c.done[req], fn)
}

func (c *AsyncCollector) OnRequestError(req runtime.RequestID, fn RequestErrorHandler) {
	c.errs[req] = append(c.errs[req], fn)
}

func (c *AsyncCollector) OnAsyncError(fn AsyncErrorHandler) (unsubscribe func()) {
	return c.asyncErrors.add(fn)
}

func (c *AsyncCollector) OnSystemError(fn SystemErrorHandler) (unsubscribe func()) {
	return c.systemErrors.add(fn)
}

func (c *AsyncCollector) OnSessionEvent(fn SessionHandler) (unsubscribe func()) {
	return c.sessions.add(fn)
}

// PendingRequests returns the number of request ids with registered callbacks.
func (c *AsyncCollector) PendingRequests() int {
	n := len(c.done)
	for id := range c.errs {
		if _, ok := c.done[id]; !ok {
			n++
		}
	}
	return n
}

func (c *AsyncCollector) HandleRequestsDone(requests []runtime.RequestID) {
	for _, id := range requests {
		handlers := c.done[id]
		delete(c.done, id)
		delete(c.errs, id)
		for _, fn := range handlers {
			fn(id)
		}
	}
}

func (c *AsyncCollector) HandleAsyncError(err runtime.AsyncError, requests []runtime.RequestID) {
	c.log.Error("async error",
		zap.Stringer("error", err),
		zap.Int("requests", len(requests)),
	)
	for _, id := range requests {
		handlers := c.errs[id]
		delete(c.errs, id)
		delete(c.done, id)
		for _, fn := range handlers {
			fn(id, err)
		}
	}
	for _, s := range c.asyncErrors.snapshot() {
		s.fn(err, requests)
	}
}

func (c *AsyncCollector) HandleSystemError(err runtime.ExecSysError) {
	c.log.Error("async system execution error", zap.Stringer("error", err))
	for _, s := range c.systemErrors.snapshot() {
		s.fn(err)
	}
}

func (c *AsyncCollector) HandleSessionEvent(session runtime.SessionID, ev runtime.SessionEvent) {
	for _, s := range c.sessions.snapshot() {
		s.fn(session, ev)
	}
}
