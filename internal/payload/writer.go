// Package payload reads and writes component and action payloads in their C
// struct layout: fixed-width little-endian fields at natural alignment.
package payload

import (
	"encoding/binary"
	"math"
)

// Writer builds one payload. All multi-byte writes are little-endian.
type Writer struct {
	buf []byte
}

func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

// Align pads with zero bytes up to the next multiple of n.
func (w *Writer) Align(n int) {
	for n > 1 && len(w.buf)%n != 0 {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) WriteU8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteI8(v int8) {
	w.buf = append(w.buf, byte(v))
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

func (w *Writer) WriteU16(v uint16) {
	w.Align(2)
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *Writer) WriteI16(v int16) { w.WriteU16(uint16(v)) }

func (w *Writer) WriteU32(v uint32) {
	w.Align(4)
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) WriteI32(v int32) { w.WriteU32(uint32(v)) }

func (w *Writer) WriteF32(v float32) { w.WriteU32(math.Float32bits(v)) }

func (w *Writer) WriteF64(v float64) {
	w.Align(8)
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
}

// Bytes returns the payload padded to a multiple of align, the struct's
// alignment.
func (w *Writer) Bytes(align int) []byte {
	w.Align(align)
	return w.buf
}

// Len returns the current unpadded length.
func (w *Writer) Len() int {
	return len(w.buf)
}
