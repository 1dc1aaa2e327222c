package payload

import (
	"encoding/binary"
	"math"
)

// Reader reads payload fields in declaration order, skipping the padding a
// C compiler would insert. Reads past the end return zero.
type Reader struct {
	data []byte
	off  int
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Align skips to the next multiple of n.
func (r *Reader) Align(n int) {
	if n > 1 {
		if rem := r.off % n; rem != 0 {
			r.off += n - rem
		}
	}
}

func (r *Reader) ReadU8() uint8 {
	if r.off >= len(r.data) {
		r.off++
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

func (r *Reader) ReadI8() int8 { return int8(r.ReadU8()) }

func (r *Reader) ReadBool() bool { return r.ReadU8() != 0 }

func (r *Reader) ReadU16() uint16 {
	r.Align(2)
	if r.off+2 > len(r.data) {
		r.off += 2
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *Reader) ReadI16() int16 { return int16(r.ReadU16()) }

func (r *Reader) ReadU32() uint32 {
	r.Align(4)
	if r.off+4 > len(r.data) {
		r.off += 4
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *Reader) ReadI32() int32 { return int32(r.ReadU32()) }

func (r *Reader) ReadF32() float32 { return math.Float32frombits(r.ReadU32()) }

func (r *Reader) ReadF64() float64 {
	r.Align(8)
	if r.off+8 > len(r.data) {
		r.off += 8
		return 0
	}
	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8
	return math.Float64frombits(v)
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	if r.off >= len(r.data) {
		return 0
	}
	return len(r.data) - r.off
}
