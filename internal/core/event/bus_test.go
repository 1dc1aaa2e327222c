package event

import "testing"

func TestEventsReadableNextTick(t *testing.T) {
	b := NewBus()
	var got []RunnerStopped
	Subscribe(b, func(e RunnerStopped) { got = append(got, e) })

	Emit(b, RunnerStopped{})
	b.DispatchAll()
	if len(got) != 0 {
		t.Fatal("event delivered in the tick it was emitted")
	}
	if b.Pending() != 1 {
		t.Fatalf("pending = %d", b.Pending())
	}

	b.SwapBuffers()
	b.DispatchAll()
	if len(got) != 1 {
		t.Fatalf("delivered %d events, want 1", len(got))
	}

	b.SwapBuffers()
	b.DispatchAll()
	if len(got) != 1 {
		t.Fatal("event delivered twice")
	}
}

func TestEmitOnNilBus(t *testing.T) {
	var b *Bus
	Emit(b, RunnerStarted{Kind: "sync"})
}
