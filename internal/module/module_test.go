package module

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ecsact-dev/ecsact-unreal/internal/config"
	"github.com/ecsact-dev/ecsact-unreal/internal/host"
	"github.com/ecsact-dev/ecsact-unreal/internal/runner"
	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
	"github.com/ecsact-dev/ecsact-unreal/internal/runtime/loopback"
	"github.com/ecsact-dev/ecsact-unreal/internal/subsystem"
)

type noLayout struct{}

func (noLayout) ComponentSize(runtime.ComponentID) (int, bool) { return 0, true }
func (noLayout) ActionSize(runtime.ActionID) (int, bool)       { return 0, true }

// exclusive fails the test if a runner starts while another runner of the
// same world is still running.
type exclusive struct {
	t       *testing.T
	started *[]subsystem.Owner
}

func (s *exclusive) RunnerStart(o subsystem.Owner) {
	for _, prev := range *s.started {
		r := prev.(runner.Runner)
		if prev.World().ID == o.World().ID && r.State() == runner.StateRunning {
			s.t.Errorf("runner %s still running when %s started", prev.ID(), o.ID())
		}
	}
	*s.started = append(*s.started, o)
}

func (s *exclusive) RunnerStop(subsystem.Owner) {}

type fixture struct {
	m       *Module
	rt      *loopback.Runtime
	started []subsystem.Owner
}

func newFixture(t *testing.T, log *zap.Logger, mode config.RunnerMode) *fixture {
	f := &fixture{rt: loopback.New(noLayout{}, log)}
	cat := subsystem.NewCatalog()
	cat.Register("exclusive", func() subsystem.Subsystem {
		return &exclusive{t: t, started: &f.started}
	})
	f.m = New(Options{
		Source:     LoopbackSource{Runtime: f.rt},
		Runtime:    config.RuntimeConfig{Runner: mode},
		Async:      config.AsyncConfig{Connection: "loopback://test", AutoStart: true},
		Subsystems: cat,
	}, log)
	return f
}

func TestLoadGuards(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t), config.RunnerAutomatic)
	if err := f.m.Unload(); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("unload before load = %v", err)
	}
	if err := f.m.Load(); err != nil {
		t.Fatal(err)
	}
	if !f.m.Table().Loaded() || !f.m.Table().SupportsAsync() {
		t.Fatal("loopback table not bound")
	}
	if err := f.m.Load(); !errors.Is(err, ErrAlreadyLoaded) {
		t.Fatalf("second load = %v", err)
	}
	if err := f.m.Unload(); err != nil {
		t.Fatal(err)
	}
	if f.m.Table().Loaded() {
		t.Fatal("table not reset on unload")
	}
	if len(f.m.Table().Missing()) != len(runtime.EntryPoints()) {
		t.Fatal("entry points left after unload")
	}
}

func TestOnlyPlayableWorldsGetRunners(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t), config.RunnerAutomatic)
	if err := f.m.Load(); err != nil {
		t.Fatal(err)
	}
	defer f.m.Shutdown()

	e := host.NewEngine(nil, zaptest.NewLogger(t))
	f.m.Attach(e)
	game := e.AddWorld("game", host.WorldGame)
	pie := e.AddWorld("pie", host.WorldPIE)
	editor := e.AddWorld("editor", host.WorldEditor)
	preview := e.AddWorld("preview", host.WorldPreview)

	for _, w := range []host.World{game, pie} {
		r, ok := f.m.Runner(w)
		if !ok || r.State() != runner.StateRunning {
			t.Fatalf("%s: no running runner", w)
		}
		if r.Kind() != "async" {
			t.Errorf("%s: automatic mode picked %s, want async", w, r.Kind())
		}
	}
	for _, w := range []host.World{editor, preview} {
		if _, ok := f.m.Runner(w); ok {
			t.Errorf("%s got a runner", w)
		}
	}

	e.RemoveWorld(game.ID)
	if _, ok := f.m.Runner(game); ok {
		t.Error("runner survived world cleanup")
	}
	if len(f.m.Runners()) != 1 {
		t.Errorf("runners = %d, want 1", len(f.m.Runners()))
	}
}

func TestSingleRunnerPerWorld(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t), config.RunnerAutomatic)
	if err := f.m.Load(); err != nil {
		t.Fatal(err)
	}
	defer f.m.Shutdown()

	w := host.NewWorld("main", host.WorldGame)
	f.m.OnWorldInit(w)
	first, _ := f.m.Runner(w)
	f.m.OnWorldInit(w)
	second, _ := f.m.Runner(w)

	if first == second {
		t.Fatal("second init did not replace the runner")
	}
	if first.State() != runner.StateStopped {
		t.Errorf("first runner state = %s", first.State())
	}
	if second.State() != runner.StateRunning {
		t.Errorf("second runner state = %s", second.State())
	}
	if len(f.started) != 2 {
		t.Errorf("starts observed = %d", len(f.started))
	}
	if len(f.m.Runners()) != 1 {
		t.Errorf("runners = %d", len(f.m.Runners()))
	}
}

func TestUnloadStopsRunnersAndSessions(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t), config.RunnerAutomatic)
	if err := f.m.Load(); err != nil {
		t.Fatal(err)
	}
	w := host.NewWorld("main", host.WorldGame)
	f.m.OnWorldInit(w)
	r, _ := f.m.Runner(w)
	async := r.(*runner.Async)
	session := async.Session()

	f.m.Tick(time.Millisecond)
	f.m.Tick(time.Millisecond)
	if async.CurrentTick() == 0 {
		t.Fatal("session did not advance")
	}
	connect, _ := f.m.Table().AsyncConnect.Get()
	connect("loopback://legacy")

	if err := f.m.Unload(); err != nil {
		t.Fatal(err)
	}
	if r.State() != runner.StateStopped {
		t.Errorf("runner state after unload = %s", r.State())
	}
	if f.rt.AsyncGetCurrentTick(session) != 0 {
		t.Error("session still open after unload")
	}
	if f.rt.LegacySession() != runtime.InvalidSession {
		t.Error("legacy connection still open after unload")
	}
	if len(f.m.Runners()) != 0 {
		t.Error("runners kept after unload")
	}
}

func TestSyncModeTicksRegistry(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t), config.RunnerAutomatic)
	if err := f.m.Load(); err != nil {
		t.Fatal(err)
	}
	defer f.m.Shutdown()
	// Without the async entry points automatic mode falls back to sync.
	f.m.Table().AsyncFlushEvents.Clear()

	w := host.NewWorld("main", host.WorldGame)
	f.m.OnWorldInit(w)
	r, _ := f.m.Runner(w)
	if r.Kind() != "sync" {
		t.Fatalf("kind = %s, want sync", r.Kind())
	}
	r.CreateEntity().Finish()
	f.m.Tick(time.Millisecond)
	reg := r.(*runner.Sync).Registry()
	if n := f.rt.CountEntities(reg); n != 1 {
		t.Fatalf("entities = %d, want 1", n)
	}
}

func TestReloadSkipsUnchangedRuntime(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t), config.RunnerAutomatic)
	if _, err := f.m.Reload(); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("reload before load = %v", err)
	}
	if err := f.m.Load(); err != nil {
		t.Fatal(err)
	}
	defer f.m.Shutdown()
	w := host.NewWorld("main", host.WorldGame)
	f.m.OnWorldInit(w)
	before, _ := f.m.Runner(w)

	reloaded, err := f.m.Reload()
	if err != nil || reloaded {
		t.Fatalf("reload = %v, %v", reloaded, err)
	}
	after, _ := f.m.Runner(w)
	if before != after || after.State() != runner.StateRunning {
		t.Fatal("runner replaced by a no-op reload")
	}
}

func TestNativeSourceMissingLibrary(t *testing.T) {
	m := New(Options{
		Source: NativeSource{Path: filepath.Join(t.TempDir(), "missing.so")},
	}, zaptest.NewLogger(t))
	if err := m.Load(); err == nil {
		t.Fatal("load of a missing library succeeded")
	}
	if m.Loaded() || m.Table().Loaded() {
		t.Fatal("module reports loaded after failure")
	}
}

func TestWorldInitWithoutRuntime(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := newFixture(t, zap.New(core), config.RunnerAutomatic)
	w := host.NewWorld("main", host.WorldGame)
	f.m.OnWorldInit(w)
	if _, ok := f.m.Runner(w); ok {
		t.Fatal("runner started without a runtime")
	}
	if logs.FilterMessage("runtime not loaded, world has no runner").Len() != 1 {
		t.Errorf("warning not logged: %v", logs.All())
	}
}

func TestRunnerOrWarnLogsOnce(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := newFixture(t, zap.New(core), config.RunnerAutomatic)
	w := host.NewWorld("main", host.WorldGame)
	for i := 0; i < 3; i++ {
		if f.m.RunnerOrWarn(w) != nil {
			t.Fatal("unexpected runner")
		}
	}
	if n := logs.FilterMessage("no runner for world").Len(); n != 1 {
		t.Errorf("warnings = %d, want 1", n)
	}
}

func TestCustomRunnerMissingFromCatalog(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t), config.RunnerCustom)
	f.m.opts.Runtime.CustomRunner = "nope"
	if err := f.m.Load(); err != nil {
		t.Fatal(err)
	}
	defer f.m.Shutdown()
	w := host.NewWorld("main", host.WorldGame)
	if _, err := f.m.StartRunner(w); err == nil {
		t.Fatal("expected an error for an unregistered custom runner")
	}
	if _, ok := f.m.Runner(w); ok {
		t.Fatal("runner attached despite error")
	}
}
