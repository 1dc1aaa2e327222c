package mirror

import (
	"bytes"
	"testing"
	"time"
	"unsafe"

	"github.com/yohamta/donburi"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ecsact-dev/ecsact-unreal/internal/catalog"
	"github.com/ecsact-dev/ecsact-unreal/internal/host"
	"github.com/ecsact-dev/ecsact-unreal/internal/runner"
	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
	"github.com/ecsact-dev/ecsact-unreal/internal/runtime/loopback"
	"github.com/ecsact-dev/ecsact-unreal/internal/subsystem"
)

const testCatalog = `
components:
  - id: 1
    name: health
    fields:
      - { name: value, type: i32 }
`

func setup(t *testing.T) (*runner.Sync, *Mirror, *catalog.Schema) {
	t.Helper()
	log := zaptest.NewLogger(t)
	cat, err := catalog.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatal(err)
	}
	m := New(cat)
	subs := subsystem.NewCatalog()
	subs.Register(Name, func() subsystem.Subsystem { return m })
	r := runner.NewSync(host.NewWorld("main", host.WorldGame), runner.Deps{
		Table:      loopback.New(cat, log).Table(),
		Log:        log,
		Subsystems: subs,
	})
	health, _ := cat.ComponentByName("health")
	return r, m, health
}

func TestMirrorTracksEntities(t *testing.T) {
	r, m, health := setup(t)
	var entityEvents []EntityEvent
	var componentEvents []ComponentEvent
	EntityEvents.Subscribe(m.World(), func(_ donburi.World, e EntityEvent) { entityEvents = append(entityEvents, e) })
	ComponentEvents.Subscribe(m.World(), func(_ donburi.World, e ComponentEvent) { componentEvents = append(componentEvents, e) })
	r.Start()
	defer r.Stop()

	five, _ := health.Encode(map[string]float64{"value": 5})
	created := runtime.EntityID(-1)
	r.CreateEntity().
		AddComponent(runtime.ComponentID(health.ID), five).
		OnCreate(func(e runtime.EntityID) { created = e }).
		Finish()
	r.Tick(time.Millisecond)

	if m.Len() != 1 {
		t.Fatalf("mirrored = %d", m.Len())
	}
	got, ok := m.Component(created, runtime.ComponentID(health.ID))
	if !ok || !bytes.Equal(got, five) {
		t.Fatalf("mirrored payload = %v, want %v", got, five)
	}
	if len(entityEvents) != 1 || entityEvents[0].Placeholder != 1 {
		t.Errorf("entity events = %+v", entityEvents)
	}
	if len(componentEvents) != 1 || componentEvents[0].Kind != runtime.EventInitComponent {
		t.Errorf("component events = %+v", componentEvents)
	}

	nine, _ := health.Encode(map[string]float64{"value": 9})
	r.Buffer().UpdateComponent(created, runtime.ComponentID(health.ID), nine)
	r.Tick(time.Millisecond)
	got, _ = m.Component(created, runtime.ComponentID(health.ID))
	if health.Decode(got)["value"] != 9 {
		t.Errorf("value after update = %v", health.Decode(got))
	}

	r.Buffer().DestroyEntity(created)
	r.Tick(time.Millisecond)
	if _, ok := m.Get(created); ok || m.Len() != 0 {
		t.Error("entity still mirrored after destroy")
	}
	last := entityEvents[len(entityEvents)-1]
	if last.Kind != runtime.EventDestroyEntity || last.Entity != created {
		t.Errorf("last entity event = %+v", last)
	}
}

func TestMirrorCopiesPayload(t *testing.T) {
	_, m, health := setup(t)
	data, _ := health.Encode(map[string]float64{"value": 3})
	m.InitComponentRaw(7, runtime.ComponentID(health.ID), unsafe.Pointer(&data[0]))
	data[0] = 0xff // runtime memory reused after the callback

	got, ok := m.Component(7, runtime.ComponentID(health.ID))
	if !ok || health.Decode(got)["value"] != 3 {
		t.Fatalf("payload not copied: %v", got)
	}
}

func TestMirrorLogEvents(t *testing.T) {
	cat, err := catalog.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatal(err)
	}
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)
	subs := subsystem.NewCatalog()
	subs.Register(Name, Factory(cat, LogEvents()))
	r := runner.NewSync(host.NewWorld("main", host.WorldGame), runner.Deps{
		Table:      loopback.New(cat, zaptest.NewLogger(t)).Table(),
		Log:        log,
		Subsystems: subs,
	})
	r.Start()
	defer r.Stop()

	health, _ := cat.ComponentByName("health")
	data, _ := health.Encode(map[string]float64{"value": 1})
	r.CreateEntity().AddComponent(runtime.ComponentID(health.ID), data).Finish()
	r.Tick(time.Millisecond)

	entity := logs.FilterMessage("entity event").All()
	if len(entity) != 1 || entity[0].ContextMap()["placeholder"] != int32(1) {
		t.Fatalf("entity event logs = %+v", entity)
	}
	comp := logs.FilterMessage("component event").All()
	if len(comp) != 1 || comp[0].ContextMap()["bytes"] != 4 {
		t.Errorf("component event logs = %+v", comp)
	}
}
