package execution

import "github.com/ecsact-dev/ecsact-unreal/internal/runtime"

// EntityBuilder collects the components of one entity to create. Finish
// commits it to the target buffer; later calls are no-ops.
type EntityBuilder struct {
	target      func() *Buffer
	placeholder runtime.PlaceholderID
	components  []componentRecord // unpinned copies until Finish
	onCreate    func(runtime.EntityID)
	valid       bool
}

// CreateEntity starts a create request tagged with placeholder p that
// finishes into b. The caller must call Finish; BuildEntity does so on every
// path.
func (b *Buffer) CreateEntity(p runtime.PlaceholderID) *EntityBuilder {
	return NewEntityBuilder(p, func() *Buffer { return b })
}

// NewEntityBuilder starts a create request whose buffer is looked up when
// Finish runs, so a builder held across a submit still lands in the buffer
// that goes out next.
func NewEntityBuilder(p runtime.PlaceholderID, target func() *Buffer) *EntityBuilder {
	return &EntityBuilder{target: target, placeholder: p, valid: true}
}

// BuildEntity runs fn on a new builder and finishes it afterwards, including
// when fn panics.
func (b *Buffer) BuildEntity(p runtime.PlaceholderID, fn func(*EntityBuilder)) {
	eb := b.CreateEntity(p)
	defer eb.Finish()
	fn(eb)
}

func (e *EntityBuilder) Placeholder() runtime.PlaceholderID { return e.placeholder }

// Valid reports whether Finish has not run yet.
func (e *EntityBuilder) Valid() bool { return e.valid }

func (e *EntityBuilder) AddComponent(id runtime.ComponentID, payload []byte) *EntityBuilder {
	if !e.valid {
		return e
	}
	var data []byte
	if len(payload) > 0 {
		data = append([]byte(nil), payload...)
	}
	e.components = append(e.components, componentRecord{id: id, data: data})
	return e
}

// OnCreate sets fn to run once with the real entity id when the runtime
// reports this placeholder as created. A buffer without a resolver keeps fn
// until SetResolver is called.
func (e *EntityBuilder) OnCreate(fn func(runtime.EntityID)) *EntityBuilder {
	if e.valid {
		e.onCreate = fn
	}
	return e
}

func (e *EntityBuilder) Finish() {
	if !e.valid {
		return
	}
	e.valid = false
	b := e.target()
	for i := range e.components {
		b.adopt(e.components[i].data)
	}
	b.addCreate(createRecord{placeholder: e.placeholder, components: e.components})
	if e.onCreate != nil {
		b.registerOnCreate(e.placeholder, e.onCreate)
	}
	e.components = nil
	e.onCreate = nil
}
