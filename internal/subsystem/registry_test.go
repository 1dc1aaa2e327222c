package subsystem

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
)

type recorder struct {
	Base
	name string
	log  *[]string
}

func (r *recorder) RunnerStart(o Owner) {
	r.Base.RunnerStart(o)
	*r.log = append(*r.log, "start:"+r.name)
}

func (r *recorder) RunnerStop(o Owner) {
	*r.log = append(*r.log, "stop:"+r.name)
	r.Base.RunnerStop(o)
}

type listening struct {
	recorder
	created []runtime.EntityID
}

func (l *listening) EntityCreated(e runtime.EntityID, _ runtime.PlaceholderID) {
	l.created = append(l.created, e)
}
func (l *listening) EntityDestroyed(runtime.EntityID) {}

type panicky struct{ Base }

func (*panicky) RunnerStart(Owner) { panic("start failed") }

func TestInitializeOrderAndSkips(t *testing.T) {
	var calls []string
	cat := NewCatalog()
	cat.Register("a", func() Subsystem { return &recorder{name: "a", log: &calls} })
	cat.Register("b", func() Subsystem { return &listening{recorder: recorder{name: "b", log: &calls}} })
	cat.Register("abstract", nil)
	cat.Register("excluded", func() Subsystem { return &recorder{name: "excluded", log: &calls} })

	core, logs := observer.New(zapcore.WarnLevel)
	r := NewRegistry(zap.New(core))
	r.Initialize(cat, []string{"b", "a", "b", "abstract", "excluded", "missing"}, []string{"excluded"})

	names := r.Names()
	if len(names) != 2 || names[0] != "b" || names[1] != "a" {
		t.Fatalf("names = %v, want [b a]", names)
	}
	if logs.FilterMessage("unknown subsystem").Len() != 1 {
		t.Errorf("unknown subsystem not warned: %v", logs.All())
	}

	r.Start(nil)
	r.Stop(nil)
	want := []string{"start:b", "start:a", "stop:b", "stop:a"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, calls[i], want[i])
		}
	}
	if r.Len() != 0 {
		t.Error("registry not torn down after Stop")
	}
}

func TestEmptyListSelectsWholeCatalog(t *testing.T) {
	var calls []string
	cat := NewCatalog()
	cat.Register("x", func() Subsystem { return &recorder{name: "x", log: &calls} })
	cat.Register("y", func() Subsystem { return &recorder{name: "y", log: &calls} })
	r := NewRegistry(zaptest.NewLogger(t))
	r.Initialize(cat, nil, []string{"y"})
	if names := r.Names(); len(names) != 1 || names[0] != "x" {
		t.Fatalf("names = %v", names)
	}
}

func TestSubsystemsOfAndBroadcast(t *testing.T) {
	var calls []string
	r := NewRegistry(zaptest.NewLogger(t))
	plain := &recorder{name: "plain", log: &calls}
	l1 := &listening{recorder: recorder{name: "l1", log: &calls}}
	l2 := &listening{recorder: recorder{name: "l2", log: &calls}}
	r.Add("plain", plain)
	r.Add("l1", l1)
	r.Add("l2", l2)

	ls := SubsystemsOf[EntityListener](r)
	if len(ls) != 2 {
		t.Fatalf("entity listeners = %d, want 2", len(ls))
	}
	if got := SubsystemsOf[ComponentListener](r); len(got) != 0 {
		t.Errorf("component listeners = %d, want 0", len(got))
	}

	Broadcast(r, "entity_created", func(l EntityListener) { l.EntityCreated(7, 1) })
	if len(l1.created) != 1 || len(l2.created) != 1 {
		t.Error("broadcast missed a listener")
	}
}

func TestStartPanicIsContained(t *testing.T) {
	var calls []string
	core, logs := observer.New(zapcore.ErrorLevel)
	r := NewRegistry(zap.New(core))
	r.Add("bad", &panicky{})
	r.Add("good", &recorder{name: "good", log: &calls})
	r.Start(nil)

	if len(calls) != 1 || calls[0] != "start:good" {
		t.Fatalf("calls = %v", calls)
	}
	if logs.FilterMessage("subsystem panic").Len() != 1 {
		t.Error("panic not logged")
	}
}
