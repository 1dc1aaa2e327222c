package payload

import (
	"bytes"
	"testing"
)

func TestWriterAlignsFields(t *testing.T) {
	w := NewWriter(16)
	w.WriteU8(1)
	w.WriteI32(-2)
	w.WriteBool(true)
	w.WriteU16(0x0304)
	got := w.Bytes(4)

	want := []byte{
		1, 0, 0, 0, // u8 + padding
		0xfe, 0xff, 0xff, 0xff, // i32
		1, 0, // bool + padding
		0x04, 0x03, // u16
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("bytes = % x\nwant    % x", got, want)
	}
}

func TestReaderMatchesWriter(t *testing.T) {
	w := NewWriter(32)
	w.WriteI8(-5)
	w.WriteF64(2.5)
	w.WriteF32(-1.25)
	w.WriteI16(-300)
	data := w.Bytes(8)
	if len(data) != 24 {
		t.Fatalf("len = %d, want 24", len(data))
	}

	r := NewReader(data)
	if v := r.ReadI8(); v != -5 {
		t.Errorf("i8 = %d", v)
	}
	if v := r.ReadF64(); v != 2.5 {
		t.Errorf("f64 = %v", v)
	}
	if v := r.ReadF32(); v != -1.25 {
		t.Errorf("f32 = %v", v)
	}
	if v := r.ReadI16(); v != -300 {
		t.Errorf("i16 = %d", v)
	}
	if r.Remaining() != 2 {
		t.Errorf("remaining = %d", r.Remaining())
	}
}

func TestReaderPastEndReturnsZero(t *testing.T) {
	r := NewReader([]byte{7})
	if r.ReadU8() != 7 || r.ReadU32() != 0 || r.ReadF64() != 0 {
		t.Fatal("short read did not return zero")
	}
	if r.Remaining() != 0 {
		t.Fatalf("remaining = %d", r.Remaining())
	}
}
