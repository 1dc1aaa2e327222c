package execution

import (
	"go.uber.org/zap/zapcore"

	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
)

// Summary is a loggable digest of a buffer's contents.
type Summary struct {
	Actions    []runtime.ActionID
	Creates    []runtime.PlaceholderID
	Adds       []runtime.ComponentID
	Updates    []runtime.ComponentID
	Removes    []runtime.ComponentID
	Destroys   []runtime.EntityID
	PayloadLen int
}

func (b *Buffer) Describe() Summary {
	var s Summary
	for _, a := range b.actions {
		s.Actions = append(s.Actions, a.id)
		s.PayloadLen += len(a.data)
	}
	for _, c := range b.creates {
		s.Creates = append(s.Creates, c.placeholder)
		for _, r := range c.components {
			s.PayloadLen += len(r.data)
		}
	}
	for _, r := range b.adds {
		s.Adds = append(s.Adds, r.id)
		s.PayloadLen += len(r.data)
	}
	for _, r := range b.updates {
		s.Updates = append(s.Updates, r.id)
		s.PayloadLen += len(r.data)
	}
	for _, r := range b.removes {
		s.Removes = append(s.Removes, r.id)
	}
	s.Destroys = append(s.Destroys, b.destroys...)
	return s
}

func (s Summary) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("actions", len(s.Actions))
	enc.AddInt("creates", len(s.Creates))
	enc.AddInt("adds", len(s.Adds))
	enc.AddInt("updates", len(s.Updates))
	enc.AddInt("removes", len(s.Removes))
	enc.AddInt("destroys", len(s.Destroys))
	enc.AddInt("payload_bytes", s.PayloadLen)
	return enc.AddArray("components", componentIDs(append(append(append([]runtime.ComponentID(nil), s.Adds...), s.Updates...), s.Removes...)))
}

type componentIDs []runtime.ComponentID

func (a componentIDs) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, v := range a {
		enc.AppendInt32(int32(v))
	}
	return nil
}
