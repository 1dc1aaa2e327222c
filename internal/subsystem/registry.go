package subsystem

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Factory creates one subsystem instance. A nil factory marks an abstract
// entry that is never instantiated.
type Factory func() Subsystem

// Catalog maps configuration names to factories.
type Catalog struct {
	factories map[string]Factory
}

func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

func (c *Catalog) Register(name string, f Factory) {
	c.factories[name] = f
}

func (c *Catalog) Lookup(name string) (Factory, bool) {
	f, ok := c.factories[name]
	return f, ok
}

// Names returns every registered name in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.factories))
	for n := range c.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type entry struct {
	name string
	sub  Subsystem
}

// Registry is the set of subsystems attached to one runner, kept in
// registration order.
type Registry struct {
	log     *zap.Logger
	entries []entry
	started bool
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{log: log}
}

// Initialize instantiates one subsystem per configured name. Duplicates,
// excluded names, abstract entries and unknown names are skipped. An empty
// names list selects every catalog entry.
func (r *Registry) Initialize(cat *Catalog, names, exclude []string) {
	if len(names) == 0 {
		names = cat.Names()
	}
	skip := make(map[string]bool, len(exclude)+len(names))
	for _, n := range exclude {
		skip[n] = true
	}
	for _, n := range names {
		if skip[n] {
			continue
		}
		skip[n] = true
		f, ok := cat.Lookup(n)
		if !ok {
			r.log.Warn("unknown subsystem", zap.String("subsystem", n))
			continue
		}
		if f == nil {
			r.log.Debug("abstract subsystem skipped", zap.String("subsystem", n))
			continue
		}
		r.Add(n, f())
	}
}

// Add attaches s under name. Subsystems added after Start are not started.
func (r *Registry) Add(name string, s Subsystem) {
	r.entries = append(r.entries, entry{name: name, sub: s})
}

func (r *Registry) Len() int { return len(r.entries) }

// Names returns subsystem names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.name
	}
	return out
}

// Start calls every subsystem's start hook in registration order.
func (r *Registry) Start(o Owner) {
	r.started = true
	for _, e := range r.entries {
		e := e
		r.guard(e.name, "start", func() { e.sub.RunnerStart(o) })
	}
}

// Stop calls every stop hook in registration order and detaches all
// subsystems.
func (r *Registry) Stop(o Owner) {
	if !r.started {
		r.entries = nil
		return
	}
	for _, e := range r.entries {
		e := e
		r.guard(e.name, "stop", func() { e.sub.RunnerStop(o) })
	}
	r.entries = nil
	r.started = false
}

func (r *Registry) guard(name, hook string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("subsystem panic",
				zap.String("subsystem", name),
				zap.String("hook", hook),
				zap.String("panic", fmt.Sprint(p)),
			)
		}
	}()
	fn()
}

// SubsystemsOf returns every attached subsystem assignable to T, in
// registration order.
func SubsystemsOf[T any](r *Registry) []T {
	var out []T
	for _, e := range r.entries {
		if v, ok := e.sub.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// Broadcast calls fn for every subsystem assignable to T. A panicking
// subsystem is logged and does not stop delivery to the rest.
func Broadcast[T any](r *Registry, hook string, fn func(T)) {
	for _, e := range r.entries {
		v, ok := e.sub.(T)
		if !ok {
			continue
		}
		r.guard(e.name, hook, func() { fn(v) })
	}
}
