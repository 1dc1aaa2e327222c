package catalog

import (
	"errors"
	"testing"

	"github.com/ecsact-dev/ecsact-unreal/internal/runtime"
)

const sample = `
components:
  - id: 1
    name: mixed
    fields:
      - { name: a, type: u8 }
      - { name: b, type: f64 }
      - { name: c, type: i16 }
  - id: 2
    name: tag
actions:
  - id: 10
    name: hit
    fields:
      - { name: target, type: entity }
      - { name: crit, type: bool }
`

func TestLayout(t *testing.T) {
	c, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	mixed, err := c.ComponentByName("mixed")
	if err != nil {
		t.Fatal(err)
	}
	wantOffsets := []int{0, 8, 16}
	for i, f := range mixed.Fields {
		if f.Offset != wantOffsets[i] {
			t.Errorf("%s offset = %d, want %d", f.Name, f.Offset, wantOffsets[i])
		}
	}
	if mixed.Size() != 24 || mixed.Align() != 8 {
		t.Errorf("size/align = %d/%d, want 24/8", mixed.Size(), mixed.Align())
	}

	if n, ok := c.ComponentSize(2); !ok || n != 0 {
		t.Errorf("tag size = %d, %v", n, ok)
	}
	if n, ok := c.ActionSize(10); !ok || n != 8 {
		t.Errorf("hit size = %d, %v", n, ok)
	}
	if _, ok := c.ComponentSize(99); ok {
		t.Error("unknown component has a size")
	}
}

func TestEncodeDecode(t *testing.T) {
	c, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	mixed, _ := c.Component(1)
	data, err := mixed.Encode(map[string]float64{"a": 200, "b": -0.5, "c": -7})
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != mixed.Size() {
		t.Fatalf("encoded %d bytes, want %d", len(data), mixed.Size())
	}
	got := mixed.Decode(data)
	if got["a"] != 200 || got["b"] != -0.5 || got["c"] != -7 {
		t.Fatalf("decoded %v", got)
	}

	if _, err := mixed.Encode(map[string]float64{"nope": 1}); !errors.Is(err, ErrUnknownField) {
		t.Errorf("unknown field err = %v", err)
	}
}

func TestLookupErrors(t *testing.T) {
	c, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Component(runtime.ComponentID(42)); !errors.Is(err, ErrUnknownComponent) {
		t.Errorf("component err = %v", err)
	}
	if _, err := c.ActionByName("missing"); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("action err = %v", err)
	}
	if names := c.Components(); len(names) != 2 || names[0].Name != "mixed" {
		t.Errorf("components = %v", names)
	}
}

func TestParseRejectsBadSchemas(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad type", "components:\n  - {id: 1, name: x, fields: [{name: a, type: string}]}\n"},
		{"duplicate id", "components:\n  - {id: 1, name: x}\n  - {id: 1, name: y}\n"},
		{"duplicate name", "actions:\n  - {id: 1, name: x}\n  - {id: 2, name: x}\n"},
		{"duplicate field", "components:\n  - {id: 1, name: x, fields: [{name: a, type: i8}, {name: a, type: i8}]}\n"},
		{"no name", "components:\n  - {id: 1}\n"},
	}
	for _, tt := range tests {
		if _, err := Parse([]byte(tt.yaml)); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestLoadShippedCatalog(t *testing.T) {
	c, err := Load("../../data/catalog.yaml")
	if err != nil {
		t.Fatal(err)
	}
	comps, acts := c.Count()
	if comps == 0 || acts == 0 {
		t.Fatalf("counts = %d/%d", comps, acts)
	}
}
