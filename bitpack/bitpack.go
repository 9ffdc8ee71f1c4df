// Package bitpack reads and writes fixed-width unsigned fields at a linear
// cell index inside a flat array of 32-bit words.
//
// Cell i occupies bits [i*bits, i*bits+bits) of the word stream. A field that
// crosses a word boundary keeps its low-order bits in the low word and the
// remainder at bit 0 of the next word.
package bitpack

import (
	"errors"
	"fmt"
	"math/bits"
	"sync/atomic"
)

// WordBits is the width of one word in the packed stream.
const WordBits = 32

var (
	ErrZeroWidth   = errors.New("bitpack: zero bit width")
	ErrWidth       = errors.New("bitpack: bit width exceeds word size")
	ErrOutOfBounds = errors.New("bitpack: field out of bounds")
)

// BitsFor returns the index width needed for a palette of n entries:
// max(1, ceil(log2(n))).
func BitsFor(n int) uint {
	if n <= 2 {
		return 1
	}
	return uint(bits.Len(uint(n - 1)))
}

// WordsFor returns how many words hold cells fields of the given width.
func WordsFor(cells int, width uint) int {
	if cells <= 0 || width == 0 {
		return 0
	}
	return (cells*int(width) + WordBits - 1) / WordBits
}

func mask(width uint) uint32 {
	if width >= WordBits {
		return ^uint32(0)
	}
	return uint32(1)<<width - 1
}

// locate validates the field and returns its word index, bit offset and
// whether it straddles into the next word.
func locate(words []uint32, i int, width uint) (int, uint, bool, error) {
	if width == 0 {
		return 0, 0, false, ErrZeroWidth
	}
	if width > WordBits {
		return 0, 0, false, fmt.Errorf("%w: %d", ErrWidth, width)
	}
	if i < 0 {
		return 0, 0, false, fmt.Errorf("%w: cell %d", ErrOutOfBounds, i)
	}
	cursor := i * int(width)
	w := cursor / WordBits
	off := uint(cursor % WordBits)
	split := width > WordBits-off
	last := w
	if split {
		last++
	}
	if last >= len(words) {
		return 0, 0, false, fmt.Errorf("%w: cell %d needs word %d of %d", ErrOutOfBounds, i, last, len(words))
	}
	return w, off, split, nil
}

// Write stores v in cell i without touching bits outside the field.
// It is not safe for concurrent writers that share a word; use WriteAtomic.
func Write(words []uint32, i int, width uint, v uint32) error {
	w, off, split, err := locate(words, i, width)
	if err != nil {
		return err
	}
	v &= mask(width)
	if !split {
		m := mask(width) << off
		words[w] = words[w]&^m | v<<off
		return nil
	}
	lo := WordBits - off
	words[w] = words[w]&^(mask(lo)<<off) | (v&mask(lo))<<off
	hi := width - lo
	words[w+1] = words[w+1]&^mask(hi) | v>>lo
	return nil
}

// WriteAtomic stores v in cell i using a compare-and-swap loop on every word
// the field touches, so lanes writing neighbouring cells never lose updates.
func WriteAtomic(words []uint32, i int, width uint, v uint32) error {
	w, off, split, err := locate(words, i, width)
	if err != nil {
		return err
	}
	v &= mask(width)
	if !split {
		casField(&words[w], mask(width)<<off, v<<off)
		return nil
	}
	lo := WordBits - off
	casField(&words[w], mask(lo)<<off, (v&mask(lo))<<off)
	hi := width - lo
	casField(&words[w+1], mask(hi), v>>lo)
	return nil
}

func casField(addr *uint32, m, bitsIn uint32) {
	for {
		old := atomic.LoadUint32(addr)
		next := old&^m | bitsIn
		if old == next || atomic.CompareAndSwapUint32(addr, old, next) {
			return
		}
	}
}

// Read returns the field stored in cell i.
func Read(words []uint32, i int, width uint) (uint32, error) {
	w, off, split, err := locate(words, i, width)
	if err != nil {
		return 0, err
	}
	if !split {
		return words[w] >> off & mask(width), nil
	}
	lo := WordBits - off
	v := words[w] >> off & mask(lo)
	v |= (words[w+1] & mask(width-lo)) << lo
	return v, nil
}

// ReadAtomic is Read with atomic loads, for readers racing WriteAtomic.
func ReadAtomic(words []uint32, i int, width uint) (uint32, error) {
	w, off, split, err := locate(words, i, width)
	if err != nil {
		return 0, err
	}
	first := atomic.LoadUint32(&words[w])
	if !split {
		return first >> off & mask(width), nil
	}
	lo := WordBits - off
	v := first >> off & mask(lo)
	v |= (atomic.LoadUint32(&words[w+1]) & mask(width-lo)) << lo
	return v, nil
}
