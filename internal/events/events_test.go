package events

import (
	"testing"
	"unsafe"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
)

func TestPlaceholderResolvedExactlyOnce(t *testing.T) {
	c := NewCollector(zaptest.NewLogger(t))
	defer c.Close()

	var resolved []runtime.EntityID
	c.RegisterPlaceholder(3, func(e runtime.EntityID) { resolved = append(resolved, e) })
	var notified int
	c.OnCreated(func(runtime.EntityID, runtime.PlaceholderID) { notified++ })

	raw := c.Raw()
	raw.EmitCreated(40, 3)
	raw.EmitCreated(41, 3)

	if len(resolved) != 1 || resolved[0] != 40 {
		t.Fatalf("resolved = %v, want [40]", resolved)
	}
	if notified != 2 {
		t.Errorf("created subscribers notified %d times, want 2", notified)
	}
	if c.PendingPlaceholders() != 0 {
		t.Error("placeholder still pending")
	}
}

func TestCreatedWithoutPlaceholder(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := NewCollector(zap.New(core))
	defer c.Close()

	fired := false
	c.RegisterPlaceholder(1, func(runtime.EntityID) { fired = true })

	var got []runtime.PlaceholderID
	c.OnCreated(func(_ runtime.EntityID, p runtime.PlaceholderID) { got = append(got, p) })
	c.Raw().EmitCreated(5, runtime.NoPlaceholder)

	if fired {
		t.Fatal("on-create fired for an entity without placeholder")
	}
	if len(got) != 1 || got[0] != runtime.NoPlaceholder {
		t.Fatalf("subscribers saw %v", got)
	}
	if logs.Len() != 0 {
		t.Errorf("unexpected log lines: %v", logs.All())
	}
	if c.PendingPlaceholders() != 1 {
		t.Error("unrelated registration consumed")
	}
}

func TestComponentFanOutAndUnsubscribe(t *testing.T) {
	c := NewCollector(zaptest.NewLogger(t))
	defer c.Close()

	var a, b []runtime.Event
	unsubA := c.OnInit(func(runtime.EntityID, runtime.ComponentID, unsafe.Pointer) { a = append(a, runtime.EventInitComponent) })
	c.OnInit(func(runtime.EntityID, runtime.ComponentID, unsafe.Pointer) { b = append(b, runtime.EventInitComponent) })
	c.OnUpdate(func(runtime.EntityID, runtime.ComponentID, unsafe.Pointer) { b = append(b, runtime.EventUpdateComponent) })
	c.OnRemove(func(runtime.EntityID, runtime.ComponentID, unsafe.Pointer) { b = append(b, runtime.EventRemoveComponent) })
	var destroyed []runtime.EntityID
	c.OnDestroyed(func(e runtime.EntityID) { destroyed = append(destroyed, e) })

	raw := c.Raw()
	raw.EmitInit(1, 2, nil)
	unsubA()
	raw.EmitInit(1, 2, nil)
	raw.EmitUpdate(1, 2, nil)
	raw.EmitRemove(1, 2, nil)
	raw.EmitDestroyed(1)

	if len(a) != 1 {
		t.Errorf("unsubscribed handler ran %d times, want 1", len(a))
	}
	want := []runtime.Event{runtime.EventInitComponent, runtime.EventInitComponent, runtime.EventUpdateComponent, runtime.EventRemoveComponent}
	if len(b) != len(want) {
		t.Fatalf("events = %v, want %v", b, want)
	}
	for i := range want {
		if b[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, b[i], want[i])
		}
	}
	if len(destroyed) != 1 || destroyed[0] != 1 {
		t.Errorf("destroyed = %v", destroyed)
	}
}

func TestClosedCollectorDropsEvents(t *testing.T) {
	c := NewCollector(zaptest.NewLogger(t))
	n := 0
	c.OnDestroyed(func(runtime.EntityID) { n++ })
	raw := *c.Raw()
	c.Close()
	raw.EmitDestroyed(1)
	if n != 0 {
		t.Fatal("event delivered after Close")
	}
}

func TestRequestCallbacksFanOutOnce(t *testing.T) {
	c := NewAsyncCollector(zaptest.NewLogger(t))
	defer c.Close()

	var first, second int
	c.OnRequestDone(9, func(runtime.RequestID) { first++ })
	c.OnRequestDone(9, func(runtime.RequestID) { second++ })
	c.OnRequestDone(10, func(runtime.RequestID) { t.Error("request 10 should not complete") })

	raw := c.Raw()
	raw.EmitRequestDone(1, []runtime.RequestID{9, 11})
	raw.EmitRequestDone(1, []runtime.RequestID{9})

	if first != 1 || second != 1 {
		t.Fatalf("callbacks ran %d/%d times, want 1/1", first, second)
	}
	if c.PendingRequests() != 1 {
		t.Errorf("pending = %d, want 1", c.PendingRequests())
	}
}

func TestRequestErrorClearsDone(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	c := NewAsyncCollector(zap.New(core))
	defer c.Close()

	var gotErr runtime.AsyncError
	c.OnRequestError(4, func(_ runtime.RequestID, err runtime.AsyncError) { gotErr = err })
	c.OnRequestDone(4, func(runtime.RequestID) { t.Error("done fired after error") })
	var global []runtime.RequestID
	c.OnAsyncError(func(_ runtime.AsyncError, ids []runtime.RequestID) { global = append(global, ids...) })

	raw := c.Raw()
	raw.EmitAsyncError(2, runtime.AsyncErrExecutionMergeFailure, []runtime.RequestID{4})
	raw.EmitRequestDone(2, []runtime.RequestID{4})

	if gotErr != runtime.AsyncErrExecutionMergeFailure {
		t.Errorf("error = %s", gotErr)
	}
	if len(global) != 1 || global[0] != 4 {
		t.Errorf("global error ids = %v", global)
	}
	if logs.FilterMessage("async error").Len() != 1 {
		t.Errorf("async error not logged once: %v", logs.All())
	}
}

func TestSessionEventsBroadcast(t *testing.T) {
	c := NewAsyncCollector(zaptest.NewLogger(t))
	defer c.Close()

	var seen []runtime.SessionEvent
	c.OnSessionEvent(func(_ runtime.SessionID, ev runtime.SessionEvent) { seen = append(seen, ev) })
	var sysErr runtime.ExecSysError
	c.OnSystemError(func(err runtime.ExecSysError) { sysErr = err })

	raw := c.Raw()
	raw.EmitSessionEvent(1, runtime.SessionPending)
	raw.EmitSessionEvent(1, runtime.SessionStarted)
	raw.EmitSystemError(1, runtime.ExecSysActionOutOfBounds)

	if len(seen) != 2 || seen[1] != runtime.SessionStarted {
		t.Errorf("session events = %v", seen)
	}
	if sysErr != runtime.ExecSysActionOutOfBounds {
		t.Errorf("system error = %s", sysErr)
	}
}
