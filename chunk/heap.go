package chunk

import (
	"errors"
	"fmt"
	"sort"
)

var ErrHeapFull = errors.New("chunk: heap full")

type span struct {
	off, n int
}

// Heap is a flat word buffer carved into ranges by offset. Ranges are only
// ever referred to by offset, so Grow may move the backing array.
type Heap struct {
	words []uint32
	free  []span // sorted by offset, never adjacent
}

func NewHeap(capacity int) *Heap {
	h := &Heap{words: make([]uint32, capacity)}
	if capacity > 0 {
		h.free = []span{{0, capacity}}
	}
	return h
}

// Words returns the backing array. The slice is invalidated by Grow.
func (h *Heap) Words() []uint32 { return h.words }

func (h *Heap) Cap() int { return len(h.words) }

// Available returns the number of free words.
func (h *Heap) Available() int {
	n := 0
	for _, s := range h.free {
		n += s.n
	}
	return n
}

// Alloc reserves n words, first fit, and zeroes them.
func (h *Heap) Alloc(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("chunk: invalid allocation size %d", n)
	}
	for i, s := range h.free {
		if s.n < n {
			continue
		}
		off := s.off
		if s.n == n {
			h.free = append(h.free[:i], h.free[i+1:]...)
		} else {
			h.free[i] = span{s.off + n, s.n - n}
		}
		clear(h.words[off : off+n])
		return off, nil
	}
	return 0, fmt.Errorf("%w: need %d words, %d free of %d", ErrHeapFull, n, h.Available(), len(h.words))
}

// Free returns [off, off+n) to the pool, merging with neighbouring spans.
func (h *Heap) Free(off, n int) {
	i := sort.Search(len(h.free), func(i int) bool { return h.free[i].off > off })
	h.free = append(h.free, span{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = span{off, n}
	if i+1 < len(h.free) && h.free[i].off+h.free[i].n == h.free[i+1].off {
		h.free[i].n += h.free[i+1].n
		h.free = append(h.free[:i+1], h.free[i+2:]...)
	}
	if i > 0 && h.free[i-1].off+h.free[i-1].n == h.free[i].off {
		h.free[i-1].n += h.free[i].n
		h.free = append(h.free[:i], h.free[i+1:]...)
	}
}

// Grow moves the heap into a larger array. Offsets handed out earlier stay
// valid; slices taken from the old array do not.
func (h *Heap) Grow(capacity int) {
	old := len(h.words)
	if capacity <= old {
		return
	}
	words := make([]uint32, capacity)
	copy(words, h.words)
	h.words = words
	h.Free(old, capacity-old)
}
