package runner

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ecsact-dev/ecsact-unreal/internal/config"
	"github.com/ecsact-dev/ecsact-unreal/internal/host"
)

// New builds the runner variant selected by deps.Runtime.Runner. Automatic
// mode checks once, here, whether the runtime exports the async entry points.
func New(world host.World, deps Deps) (Runner, error) {
	switch deps.Runtime.Runner {
	case config.RunnerAutomatic, "":
		if deps.Table.SupportsAsync() {
			return NewAsync(world, deps), nil
		}
		return NewSync(world, deps), nil
	case config.RunnerAsynchronous:
		if !deps.Table.SupportsAsync() {
			deps.Log.Error("asynchronous runner selected but the runtime lacks async entry points",
				zap.Strings("missing", deps.Table.Missing()))
		}
		return NewAsync(world, deps), nil
	case config.RunnerCustom:
		name := deps.Runtime.CustomRunner
		factory, ok := deps.Customs[name]
		if !ok {
			return nil, fmt.Errorf("custom runner %q not registered (have %v)", name, deps.Customs.Names())
		}
		logic, err := factory(deps)
		if err != nil {
			return nil, fmt.Errorf("custom runner %q: %w", name, err)
		}
		return NewCustom(world, deps, logic), nil
	default:
		return nil, fmt.Errorf("unknown runner mode %q", deps.Runtime.Runner)
	}
}
