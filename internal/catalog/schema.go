package catalog

import (
	"fmt"

	"github.com/ecsact-dev/ecsact-unreal/internal/payload"
)

// FieldType is a scalar field kind.
type FieldType string

const (
	I8     FieldType = "i8"
	U8     FieldType = "u8"
	I16    FieldType = "i16"
	U16    FieldType = "u16"
	I32    FieldType = "i32"
	U32    FieldType = "u32"
	F32    FieldType = "f32"
	F64    FieldType = "f64"
	Bool   FieldType = "bool"
	Entity FieldType = "entity" // runtime entity id, an i32
)

// width is both size and alignment.
func (t FieldType) width() (int, bool) {
	switch t {
	case I8, U8, Bool:
		return 1, true
	case I16, U16:
		return 2, true
	case I32, U32, F32, Entity:
		return 4, true
	case F64:
		return 8, true
	}
	return 0, false
}

type Field struct {
	Name   string    `yaml:"name"`
	Type   FieldType `yaml:"type"`
	Offset int       `yaml:"-"`
}

// Schema is one component or action struct.
type Schema struct {
	ID     int32   `yaml:"id"`
	Name   string  `yaml:"name"`
	Fields []Field `yaml:"fields"`

	size  int
	align int
}

// layout assigns C struct offsets: each field at its natural alignment, the
// struct padded to its largest alignment.
func (s *Schema) layout() error {
	if s.Name == "" {
		return fmt.Errorf("id %d has no name", s.ID)
	}
	off, align := 0, 1
	seen := make(map[string]bool, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		w, ok := f.Type.width()
		if !ok {
			return fmt.Errorf("field %s: unsupported type %q", f.Name, f.Type)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %s", f.Name)
		}
		seen[f.Name] = true
		if rem := off % w; rem != 0 {
			off += w - rem
		}
		f.Offset = off
		off += w
		if w > align {
			align = w
		}
	}
	if rem := off % align; rem != 0 {
		off += align - rem
	}
	s.size, s.align = off, align
	return nil
}

func (s *Schema) Size() int  { return s.size }
func (s *Schema) Align() int { return s.align }

// Encode builds a payload from named field values. Missing fields are zero.
func (s *Schema) Encode(values map[string]float64) ([]byte, error) {
	for name := range values {
		if !s.hasField(name) {
			return nil, fmt.Errorf("%s: %w %q", s.Name, ErrUnknownField, name)
		}
	}
	w := payload.NewWriter(s.size)
	for _, f := range s.Fields {
		v := values[f.Name]
		switch f.Type {
		case I8:
			w.WriteI8(int8(v))
		case U8:
			w.WriteU8(uint8(v))
		case Bool:
			w.WriteBool(v != 0)
		case I16:
			w.WriteI16(int16(v))
		case U16:
			w.WriteU16(uint16(v))
		case I32, Entity:
			w.WriteI32(int32(v))
		case U32:
			w.WriteU32(uint32(v))
		case F32:
			w.WriteF32(float32(v))
		case F64:
			w.WriteF64(v)
		}
	}
	return w.Bytes(s.align), nil
}

// Decode reads every field of a payload.
func (s *Schema) Decode(data []byte) map[string]float64 {
	out := make(map[string]float64, len(s.Fields))
	r := payload.NewReader(data)
	for _, f := range s.Fields {
		var v float64
		switch f.Type {
		case I8:
			v = float64(r.ReadI8())
		case U8:
			v = float64(r.ReadU8())
		case Bool:
			if r.ReadBool() {
				v = 1
			}
		case I16:
			v = float64(r.ReadI16())
		case U16:
			v = float64(r.ReadU16())
		case I32, Entity:
			v = float64(r.ReadI32())
		case U32:
			v = float64(r.ReadU32())
		case F32:
			v = float64(r.ReadF32())
		case F64:
			v = r.ReadF64()
		}
		out[f.Name] = v
	}
	return out
}

// FieldNames returns field names in declaration order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

func (s *Schema) hasField(name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}
