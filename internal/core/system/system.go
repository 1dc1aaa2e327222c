package system

import "time"

// Phase defines execution ordering within a single host frame.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain host input, dispatch host bus
	PhasePreUpdate               // 1: world init/cleanup bookkeeping
	PhaseUpdate                  // 2: runner ticks
	PhasePostUpdate              // 3: observers of runner output
	PhaseCleanup                 // 4: end of frame
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre_update"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post_update"
	case PhaseCleanup:
		return "cleanup"
	}
	return "unknown"
}

// Tickable is anything the host engine ticks once per frame.
type Tickable interface {
	Phase() Phase
	Tick(dt time.Duration)
}

// TickFunc adapts a function to Tickable.
type TickFunc struct {
	At Phase
	Fn func(dt time.Duration)
}

func (f TickFunc) Phase() Phase          { return f.At }
func (f TickFunc) Tick(dt time.Duration) { f.Fn(dt) }
