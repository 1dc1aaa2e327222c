// Package module owns the process-wide runtime: it loads the function table,
// starts one runner per playable world, ticks them, and tears everything
// down in the reverse order on unload.
package module

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ecsact-dev/ecsact-unreal/internal/config"
	"github.com/ecsact-dev/ecsact-unreal/internal/core/event"
	"github.com/ecsact-dev/ecsact-unreal/internal/core/system"
	"github.com/ecsact-dev/ecsact-unreal/internal/host"
	"github.com/ecsact-dev/ecsact-unreal/internal/runner"
	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
	"github.com/ecsact-dev/ecsact-unreal/internal/subsystem"
)

var (
	ErrAlreadyLoaded = errors.New("runtime already loaded")
	ErrNotLoaded     = errors.New("runtime not loaded")
)

// Options configure a Module. Runtime and Async are read when a runner
// starts.
type Options struct {
	Source     Source
	Runtime    config.RuntimeConfig
	Async      config.AsyncConfig
	Bus        *event.Bus
	Subsystems *subsystem.Catalog
	Customs    runner.CustomCatalog
}

type worldRunner struct {
	world  host.World
	runner runner.Runner
}

type Module struct {
	log  *zap.Logger
	opts Options

	mu          sync.Mutex // guards load state
	table       runtime.Table
	closer      io.Closer
	fingerprint string
	loaded      bool

	runners []worldRunner // in start order
	warned  map[uuid.UUID]bool
}

func New(opts Options, log *zap.Logger) *Module {
	if opts.Subsystems == nil {
		opts.Subsystems = subsystem.NewCatalog()
	}
	return &Module{
		log:    log.Named("module"),
		opts:   opts,
		warned: make(map[uuid.UUID]bool),
	}
}

// Table is the process-wide function table. Every slot is absent while the
// module is unloaded.
func (m *Module) Table() *runtime.Table { return &m.table }

func (m *Module) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

func (m *Module) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load()
}

func (m *Module) load() error {
	if m.loaded {
		m.log.Error("runtime already loaded", zap.String("source", m.opts.Source.Name()))
		return ErrAlreadyLoaded
	}
	fp, err := m.opts.Source.Fingerprint()
	if err != nil {
		return fmt.Errorf("fingerprint runtime: %w", err)
	}
	closer, err := m.opts.Source.Load(&m.table, m.log)
	if err != nil {
		m.table.Reset()
		return fmt.Errorf("load runtime: %w", err)
	}
	m.closer, m.fingerprint, m.loaded = closer, fp, true
	m.table.LogAvailability(m.log)
	m.log.Info("runtime loaded",
		zap.String("source", m.opts.Source.Name()),
		zap.String("fingerprint", fp),
		zap.Bool("async", m.table.SupportsAsync()),
	)
	return nil
}

// Unload stops every runner, closes async connections, resets the table and
// releases the runtime.
func (m *Module) Unload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unload()
}

func (m *Module) unload() error {
	if !m.loaded {
		m.log.Error("unload without a loaded runtime")
		return ErrNotLoaded
	}
	for i := len(m.runners) - 1; i >= 0; i-- {
		m.stopRunner(m.runners[i])
	}
	m.runners = nil
	if disconnect, ok := m.table.AsyncDisconnect.Get(); ok {
		disconnect()
	}
	m.table.Reset()
	err := m.closer.Close()
	m.closer, m.loaded = nil, false
	m.log.Info("runtime unloaded", zap.String("source", m.opts.Source.Name()))
	if err != nil {
		return fmt.Errorf("unload runtime: %w", err)
	}
	return nil
}

// Reload unloads and loads the runtime again when its fingerprint changed,
// then restarts runners for the worlds that had one. It reports whether a
// reload happened.
func (m *Module) Reload() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return false, ErrNotLoaded
	}
	fp, err := m.opts.Source.Fingerprint()
	if err != nil {
		return false, fmt.Errorf("fingerprint runtime: %w", err)
	}
	if fp == m.fingerprint {
		m.log.Debug("runtime unchanged, skipping reload", zap.String("fingerprint", fp))
		return false, nil
	}
	worlds := make([]host.World, len(m.runners))
	for i, wr := range m.runners {
		worlds[i] = wr.world
	}
	if err := m.unload(); err != nil {
		return false, err
	}
	if err := m.load(); err != nil {
		return false, err
	}
	for _, w := range worlds {
		m.StartRunner(w)
	}
	return true, nil
}

// Attach wires the module into the host engine's world delegates and tick.
func (m *Module) Attach(e *host.Engine) func() {
	e.OnWorldInit(m.OnWorldInit)
	e.OnWorldCleanup(m.OnWorldCleanup)
	return e.Register(m)
}

// OnWorldInit starts a runner for game and PIE worlds.
func (m *Module) OnWorldInit(w host.World) {
	if !w.Type.Playable() {
		m.log.Debug("world ignored", zap.Stringer("world", w))
		return
	}
	if !m.Loaded() {
		m.log.Warn("runtime not loaded, world has no runner", zap.Stringer("world", w))
		return
	}
	m.StartRunner(w)
}

func (m *Module) OnWorldCleanup(w host.World) {
	i := m.indexOf(w.ID)
	if i < 0 {
		return
	}
	m.stopRunner(m.runners[i])
	m.runners = append(m.runners[:i], m.runners[i+1:]...)
	delete(m.warned, w.ID)
}

// StartRunner builds and starts the configured runner for w. A runner
// already attached to w is stopped first.
func (m *Module) StartRunner(w host.World) (runner.Runner, error) {
	if i := m.indexOf(w.ID); i >= 0 {
		m.log.Warn("world already has a runner, stopping it", zap.Stringer("world", w))
		m.stopRunner(m.runners[i])
		m.runners = append(m.runners[:i], m.runners[i+1:]...)
	}
	r, err := runner.New(w, runner.Deps{
		Table:      &m.table,
		Log:        m.log,
		Bus:        m.opts.Bus,
		Subsystems: m.opts.Subsystems,
		Customs:    m.opts.Customs,
		Runtime:    m.opts.Runtime,
		Async:      m.opts.Async,
	})
	if err != nil {
		m.log.Error("cannot create runner", zap.Stringer("world", w), zap.Error(err))
		return nil, err
	}
	m.runners = append(m.runners, worldRunner{world: w, runner: r})
	r.Start()
	return r, nil
}

func (m *Module) stopRunner(wr worldRunner) {
	if wr.runner.State() == runner.StateRunning {
		wr.runner.Stop()
	}
}

// Runner returns the runner attached to w.
func (m *Module) Runner(w host.World) (runner.Runner, bool) {
	if i := m.indexOf(w.ID); i >= 0 {
		return m.runners[i].runner, true
	}
	return nil, false
}

// RunnerOrWarn returns the runner attached to w, or nil with a warning
// logged once per world.
func (m *Module) RunnerOrWarn(w host.World) runner.Runner {
	if r, ok := m.Runner(w); ok {
		return r
	}
	if !m.warned[w.ID] {
		m.warned[w.ID] = true
		m.log.Warn("no runner for world", zap.Stringer("world", w))
	}
	return nil
}

// Runners returns the attached runners in start order.
func (m *Module) Runners() []runner.Runner {
	out := make([]runner.Runner, len(m.runners))
	for i, wr := range m.runners {
		out[i] = wr.runner
	}
	return out
}

func (m *Module) Phase() system.Phase { return system.PhaseUpdate }

// Tick ticks every running runner.
func (m *Module) Tick(dt time.Duration) {
	for _, wr := range append([]worldRunner(nil), m.runners...) {
		if wr.runner.State() == runner.StateRunning {
			wr.runner.Tick(dt)
		}
	}
}

// Shutdown unloads the runtime if it is loaded.
func (m *Module) Shutdown() error {
	if !m.Loaded() {
		return nil
	}
	return m.Unload()
}

func (m *Module) indexOf(id uuid.UUID) int {
	for i, wr := range m.runners {
		if wr.world.ID == id {
			return i
		}
	}
	return -1
}
