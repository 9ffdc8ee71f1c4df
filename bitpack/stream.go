package bitpack

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

var ErrVarint = errors.New("bitpack: varint overflows 32 bits")

// Writer appends LSB-first bit fields to a byte buffer. A stream written
// with Writer at a fixed width is byte-identical to the little-endian bytes
// of the equivalent word array.
type Writer struct {
	buf []byte
	acc uint64
	n   uint8
}

func NewWriter() *Writer { return &Writer{buf: make([]byte, 0, 256)} }

// WriteBits appends the low n bits of v. n must be at most 56.
func (w *Writer) WriteBits(v uint64, n uint8) {
	w.acc |= (v & (1<<n - 1)) << w.n
	w.n += n
	for w.n >= 8 {
		w.buf = append(w.buf, byte(w.acc))
		w.acc >>= 8
		w.n -= 8
	}
}

// Bytes flushes any partial byte and returns the stream.
func (w *Writer) Bytes() []byte {
	if w.n > 0 {
		w.buf = append(w.buf, byte(w.acc))
		w.acc = 0
		w.n = 0
	}
	return w.buf
}

// Reader walks an LSB-first stream by absolute bit offset.
type Reader struct {
	data []byte
	off  uint64
}

func NewReader(b []byte) *Reader { return &Reader{data: b} }

// ReadBits returns the next n bits (n <= 56).
func (r *Reader) ReadBits(n uint8) (uint64, error) {
	end := r.off + uint64(n)
	if end > 8*uint64(len(r.data)) {
		return 0, io.ErrUnexpectedEOF
	}
	var v uint64
	for got := uint8(0); got < n; {
		b := r.data[r.off>>3] >> (r.off & 7)
		take := min(8-uint8(r.off&7), n-got)
		v |= (uint64(b) & (1<<take - 1)) << got
		got += take
		r.off += uint64(take)
	}
	return v, nil
}

// AppendUvarint appends x as a base-128 varint.
func AppendUvarint(dst []byte, x uint32) []byte {
	return binary.AppendUvarint(dst, uint64(x))
}

// Uvarint decodes a varint at *pos and advances it. Values that do not fit
// 32 bits are rejected.
func Uvarint(src []byte, pos *int) (uint32, error) {
	if *pos >= len(src) {
		return 0, io.ErrUnexpectedEOF
	}
	v, n := binary.Uvarint(src[*pos:])
	switch {
	case n == 0:
		return 0, io.ErrUnexpectedEOF
	case n < 0 || v > math.MaxUint32:
		return 0, ErrVarint
	}
	*pos += n
	return uint32(v), nil
}
