package system

import (
	"sort"
	"time"
)

// Runner ticks registered tickables in phase order. Tickables sharing a phase
// keep their registration order.
type Runner struct {
	tickables []entry
	next      int
	sorted    bool
}

type entry struct {
	id int
	Tickable
}

func NewRunner() *Runner {
	return &Runner{
		tickables: make([]entry, 0, 8),
	}
}

// Register adds t and returns a func that removes it again.
func (r *Runner) Register(t Tickable) (unregister func()) {
	r.next++
	id := r.next
	r.tickables = append(r.tickables, entry{id: id, Tickable: t})
	r.sorted = false
	return func() {
		for i, e := range r.tickables {
			if e.id == id {
				r.tickables = append(r.tickables[:i], r.tickables[i+1:]...)
				return
			}
		}
	}
}

func (r *Runner) Len() int { return len(r.tickables) }

func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	for _, t := range r.snapshot() {
		t.Tick(dt)
	}
}

// TickPhase ticks only the tickables registered for phase.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for _, t := range r.snapshot() {
		if t.Phase() == phase {
			t.Tick(dt)
		}
	}
}

// snapshot lets a tickable register or unregister others mid-frame.
func (r *Runner) snapshot() []entry {
	return append([]entry(nil), r.tickables...)
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.tickables, func(i, j int) bool {
			return r.tickables[i].Phase() < r.tickables[j].Phase()
		})
		r.sorted = true
	}
}
