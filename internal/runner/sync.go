package runner

import (
	"time"
	"unsafe"

	"go.uber.org/zap"

	"github.com/ecsact-dev/ecsact-unreal/internal/host"
	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
)

// DefaultRegistryName names the registry a sync runner creates for itself.
const DefaultRegistryName = "Default Registry"

// Sync executes systems against one local registry with the runtime's
// blocking execute call.
type Sync struct {
	Base
	registry runtime.RegistryID
	owned    bool
}

func NewSync(world host.World, deps Deps) *Sync {
	return &Sync{
		Base:     newBase("sync", world, deps),
		registry: runtime.InvalidRegistry,
	}
}

// Registry returns the registry executed each tick, or InvalidRegistry.
func (r *Sync) Registry() runtime.RegistryID { return r.registry }

// SetRegistry makes the runner execute reg. The runner does not destroy a
// registry it did not create.
func (r *Sync) SetRegistry(reg runtime.RegistryID) {
	r.registry = reg
	r.owned = false
}

func (r *Sync) Start() {
	r.start(r)
}

func (r *Sync) Tick(dt time.Duration) {
	if r.state != StateRunning {
		return
	}
	exec, ok := r.deps.Table.ExecuteSystems.Get()
	if !ok {
		r.missing(runtime.EntryExecuteSystems)
		return
	}
	if !r.ensureRegistry() {
		return
	}
	r.submit(func(opts *runtime.ExecutionOptions) {
		status := runtime.ExecSysOK
		// systems and event handlers run inside exec
		r.guard("execute", func() {
			status = exec(r.registry, 1, opts, r.collector.Raw())
		})
		if status == runtime.ExecSysOK {
			return
		}
		r.log.Error("execute systems failed",
			zap.Stringer("status", status),
			zap.Int32("registry", int32(r.registry)),
		)
		if status == runtime.ExecSysInvalidRegistry {
			r.registry = runtime.InvalidRegistry
		}
	})
	r.tickSubsystems(dt)
}

func (r *Sync) ensureRegistry() bool {
	if r.registry != runtime.InvalidRegistry {
		return true
	}
	create, ok := r.deps.Table.CreateRegistry.Get()
	if !ok {
		r.missing(runtime.EntryCreateRegistry)
		return false
	}
	r.log.Warn("runner registry unset, creating one", zap.String("name", DefaultRegistryName))
	r.registry = create(DefaultRegistryName)
	r.owned = true
	return r.registry != runtime.InvalidRegistry
}

func (r *Sync) Stream(entity runtime.EntityID, component runtime.ComponentID, data unsafe.Pointer) runtime.StreamError {
	stream, ok := r.deps.Table.Stream.Get()
	if !ok {
		r.missing(runtime.EntryStream)
		return runtime.StreamInvalidRegistry
	}
	if r.registry == runtime.InvalidRegistry {
		return runtime.StreamInvalidRegistry
	}
	return stream(r.registry, entity, component, data)
}

func (r *Sync) Stop() {
	if !r.stop(r) {
		return
	}
	if !r.owned || r.registry == runtime.InvalidRegistry {
		return
	}
	if destroy, ok := r.deps.Table.DestroyRegistry.Get(); ok {
		destroy(r.registry)
	}
	r.registry = runtime.InvalidRegistry
}
