package scripting

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ecsact-dev/ecsact-unreal/internal/catalog"
	"github.com/ecsact-dev/ecsact-unreal/internal/config"
	"github.com/ecsact-dev/ecsact-unreal/internal/host"
	"github.com/ecsact-dev/ecsact-unreal/internal/runner"
	"github.com/ecsact-dev/ecsact-unreal/internal/runtime/loopback"
	"github.com/ecsact-dev/ecsact-unreal/internal/subsystem"
)

const testCatalog = `
components:
  - id: 1
    name: health
    fields:
      - { name: value, type: i32 }
actions:
  - id: 10
    name: hurt
    fields:
      - { name: amount, type: i32 }
`

const testScript = `
local reg
ticks = 0
events = {}
function runner_start()
  reg = ecs.create_registry("test")
end
function runner_tick(dt)
  ticks = ticks + 1
  if ticks == 1 then
    placeholder = ecs.create_entity({ health = { value = 10 } }, function(e)
      created = e
    end)
  elseif ticks == 2 then
    ecs.update_component(created, "health", { value = 7 })
    ecs.push_action("hurt", { amount = 3 })
  elseif ticks == 3 then
    ecs.destroy_entity(created)
  end
  last_status = ecs.execute(reg)
end
function on_component(kind, entity, name, fields)
  events[#events + 1] = kind .. ":" .. name .. ":" .. tostring(fields.value)
end
function on_entity_destroyed(entity)
  destroyed = entity
end
function runner_stop()
  stopped = true
end
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.lua"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func newCustom(t *testing.T, log *zap.Logger, logic runner.CustomLogic, cat *catalog.Catalog) (*runner.Custom, *loopback.Runtime) {
	rt := loopback.New(cat, log)
	deps := runner.Deps{
		Table:      rt.Table(),
		Log:        log,
		Subsystems: subsystem.NewCatalog(),
		Runtime:    config.RuntimeConfig{Runner: config.RunnerCustom, CustomRunner: RunnerName},
	}
	return runner.NewCustom(host.NewWorld("main", host.WorldGame), deps, logic), rt
}

func TestLuaRunnerDrivesRuntime(t *testing.T) {
	log := zaptest.NewLogger(t)
	cat, err := catalog.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatal(err)
	}
	logic, err := NewRunnerLogic(writeScript(t, testScript), cat, log)
	if err != nil {
		t.Fatal(err)
	}
	var seen []int32
	rt := loopback.New(cat, log)
	rt.AddSystem(func(ctx *loopback.SystemContext) {
		for _, a := range ctx.Actions() {
			seen = append(seen, int32(a.ID))
		}
	})
	r := runner.NewCustom(host.NewWorld("main", host.WorldGame), runner.Deps{
		Table:      rt.Table(),
		Log:        log,
		Subsystems: subsystem.NewCatalog(),
	}, logic)
	vm := logic.Engine().VM()

	r.Start()
	for i := 0; i < 3; i++ {
		r.Tick(16 * time.Millisecond)
	}

	if s := vm.GetGlobal("last_status"); s.String() != "ok" {
		t.Fatalf("last status = %s", s)
	}
	created, ok := vm.GetGlobal("created").(lua.LNumber)
	if !ok {
		t.Fatal("on_create callback did not run")
	}
	if d := vm.GetGlobal("destroyed"); d != created {
		t.Errorf("destroyed = %v, want %v", d, created)
	}
	if len(seen) != 1 || seen[0] != 10 {
		t.Errorf("actions seen = %v", seen)
	}

	events := vm.GetGlobal("events").(*lua.LTable)
	want := []string{"init:health:10", "update:health:7", "remove:health:7"}
	if events.Len() != len(want) {
		t.Fatalf("events = %d, want %d", events.Len(), len(want))
	}
	for i, w := range want {
		if got := events.RawGetInt(i + 1).String(); got != w {
			t.Errorf("event %d = %s, want %s", i, got, w)
		}
	}

	r.Stop()
	if r.State() != runner.StateStopped {
		t.Fatalf("state = %s", r.State())
	}
}

func TestLuaFactoryThroughRunnerSelection(t *testing.T) {
	log := zaptest.NewLogger(t)
	cat, err := catalog.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "runner"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "runner", "main.lua"), []byte("function runner_tick(dt) end"), 0o644); err != nil {
		t.Fatal(err)
	}
	rt := loopback.New(cat, log)
	r, err := runner.New(host.NewWorld("main", host.WorldGame), runner.Deps{
		Table:      rt.Table(),
		Log:        log,
		Subsystems: subsystem.NewCatalog(),
		Customs:    runner.CustomCatalog{RunnerName: Factory(dir, cat)},
		Runtime:    config.RuntimeConfig{Runner: config.RunnerCustom, CustomRunner: RunnerName},
	})
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind() != "custom" {
		t.Fatalf("kind = %s", r.Kind())
	}
	r.Start()
	r.Tick(time.Millisecond)
	r.Stop()
}

func TestScriptErrorsAreLogged(t *testing.T) {
	log := zaptest.NewLogger(t)
	cat, _ := catalog.Parse([]byte(testCatalog))
	logic, err := NewRunnerLogic(writeScript(t, `
function runner_tick(dt)
  ecs.add_component(1, "no_such_component", {})
end`), cat, log)
	if err != nil {
		t.Fatal(err)
	}
	r, _ := newCustom(t, log, logic, cat)
	r.Start()
	r.Tick(time.Millisecond) // must not panic
	r.Stop()
}

func TestMissingScriptDir(t *testing.T) {
	cat, _ := catalog.Parse([]byte(testCatalog))
	if _, err := NewRunnerLogic(filepath.Join(t.TempDir(), "nope"), cat, zaptest.NewLogger(t)); err == nil {
		t.Fatal("expected error for a missing script directory")
	}
}
