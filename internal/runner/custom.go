package runner

import (
	"fmt"
	"sort"
	"time"
	"unsafe"

	"go.uber.org/zap"

	"github.com/ecsact-dev/ecsact-unreal/internal/host"
	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
)

// CustomLogic is integrator supplied runner behavior. The runner guarantees
// the call order Start, Tick..., Stop and nothing else.
type CustomLogic interface {
	Start(r *Custom) error
	Tick(r *Custom, dt time.Duration)
	Stop(r *Custom)
}

// CustomFactory builds the logic for one runner.
type CustomFactory func(deps Deps) (CustomLogic, error)

// CustomCatalog maps the configured custom runner name to its factory.
type CustomCatalog map[string]CustomFactory

func (c CustomCatalog) Names() []string {
	names := make([]string, 0, len(c))
	for n := range c {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type Custom struct {
	Base
	logic    CustomLogic
	registry runtime.RegistryID
}

func NewCustom(world host.World, deps Deps, logic CustomLogic) *Custom {
	return &Custom{
		Base:     newBase("custom", world, deps),
		logic:    logic,
		registry: runtime.InvalidRegistry,
	}
}

func (r *Custom) Start() {
	if !r.start(r) {
		return
	}
	r.guard("start", func() {
		if err := r.logic.Start(r); err != nil {
			r.log.Error("custom runner start failed", zap.Error(err))
		}
	})
}

func (r *Custom) Tick(dt time.Duration) {
	if r.state != StateRunning {
		return
	}
	r.guard("tick", func() { r.logic.Tick(r, dt) })
	r.tickSubsystems(dt)
}

func (r *Custom) Stop() {
	if r.state == StateRunning {
		r.guard("stop", func() { r.logic.Stop(r) })
	}
	r.stop(r)
}

// Table exposes the runtime entry points to the logic.
func (r *Custom) Table() *runtime.Table { return r.deps.Table }

// CreateRegistry creates a registry and makes it the default for Execute and
// Stream.
func (r *Custom) CreateRegistry(name string) (runtime.RegistryID, error) {
	create, ok := r.deps.Table.CreateRegistry.Get()
	if !ok {
		r.missing(runtime.EntryCreateRegistry)
		return runtime.InvalidRegistry, fmt.Errorf("%s unavailable", runtime.EntryCreateRegistry)
	}
	r.registry = create(name)
	return r.registry, nil
}

func (r *Custom) Registry() runtime.RegistryID { return r.registry }

// Execute submits the queued mutations to reg and runs its systems once.
func (r *Custom) Execute(reg runtime.RegistryID) runtime.ExecSysError {
	exec, ok := r.deps.Table.ExecuteSystems.Get()
	if !ok {
		r.missing(runtime.EntryExecuteSystems)
		return runtime.ExecSysUnknown
	}
	status := runtime.ExecSysOK
	r.submit(func(opts *runtime.ExecutionOptions) {
		status = exec(reg, 1, opts, r.collector.Raw())
	})
	if status != runtime.ExecSysOK {
		r.log.Error("execute systems failed", zap.Stringer("status", status), zap.Int32("registry", int32(reg)))
	}
	return status
}

func (r *Custom) Stream(entity runtime.EntityID, component runtime.ComponentID, data unsafe.Pointer) runtime.StreamError {
	stream, ok := r.deps.Table.Stream.Get()
	if !ok {
		r.missing(runtime.EntryStream)
		return runtime.StreamInvalidRegistry
	}
	return stream(r.registry, entity, component, data)
}
