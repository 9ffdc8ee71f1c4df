// Package builder derives a chunk's palette and index stream from its raw
// cells, in place in the store's heap.
//
// A build runs in two lane-parallel passes separated by a barrier. The
// insertion pass claims palette slots with a compare-and-swap on the
// chunk's palette count; the re-encode pass writes each cell's slot index
// with bitpack.WriteAtomic, since neighbouring cells share words.
package builder

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	uatomic "go.uber.org/atomic"

	"github.com/voxelsplace/voxcore/bitpack"
	"github.com/voxelsplace/voxcore/chunk"
	"github.com/voxelsplace/voxcore/internal/parallel"
	"github.com/voxelsplace/voxcore/logging"
)

// Stats describes one build.
type Stats struct {
	Entries int
	Bits    uint
	// Dropped counts cells whose value found no palette slot. They are
	// encoded as the last slot.
	Dropped  int
	Duration time.Duration
}

type Option func(*Builder)

// WithLanes sets the number of goroutines per pass. Zero means GOMAXPROCS.
func WithLanes(n int) Option {
	return func(b *Builder) { b.lanes = n }
}

// WithOrder fixes the order in which cells are handed to lanes. perm must be
// a permutation of the chunk's cell indices.
func WithOrder(perm []int) Option {
	return func(b *Builder) { b.order = perm }
}

type Builder struct {
	store *chunk.Store
	lanes int
	order []int

	overflows uatomic.Uint64
}

func New(store *chunk.Store, opts ...Option) *Builder {
	b := &Builder{store: store}
	for _, o := range opts {
		o(b)
	}
	if b.order != nil && len(b.order) != store.Layout().Dims.Cells() {
		panic(fmt.Sprintf("builder: order has %d cells, chunk has %d", len(b.order), store.Layout().Dims.Cells()))
	}
	return b
}

// Overflows is the total number of dropped cells across all builds.
func (b *Builder) Overflows() uint64 { return b.overflows.Load() }

// Build populates h's palette and compressed regions from its raw region.
// The raw region must not change while Build runs. Precondition violations
// panic; a cancelled context stops the build between passes and leaves the
// chunk to be rebuilt.
func (b *Builder) Build(ctx context.Context, h chunk.Handle) (Stats, error) {
	start := time.Now()
	v, err := b.store.View(h)
	if err != nil {
		return Stats{}, err
	}
	cells := v.Layout.Dims.Cells()
	limit := uint32(v.Layout.MaxPaletteEntries)

	v.Palette[0] = 0
	clear(v.Palette[1:])
	clear(v.Compressed)
	v.Meta.PaletteCount.Store(1)

	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	var dropped uatomic.Int64
	parallel.Run(b.lanes, cells, b.order, func(i int) {
		id := v.Raw[i]
		if id == 0 {
			return
		}
		if !insert(v.Meta, v.Palette, id, limit) {
			dropped.Inc()
		}
	})
	inserted := time.Now()

	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	count := int(v.Meta.PaletteCount.Load())
	bits := bitpack.BitsFor(count)
	if count > 1 {
		parallel.Run(b.lanes, cells, b.order, func(i int) {
			id := v.Raw[i]
			if id == 0 {
				return
			}
			s := slotOf(v.Palette[:count], id)
			if s < 0 {
				s = count - 1
			}
			if err := bitpack.WriteAtomic(v.Compressed, i, bits, uint32(s)); err != nil {
				panic(fmt.Errorf("builder: %v cell %d: %w", h, i, err))
			}
		})
	}

	st := Stats{Entries: count, Bits: bits, Dropped: int(dropped.Load()), Duration: time.Since(start)}
	log := logging.Logger()
	if st.Dropped > 0 {
		b.overflows.Add(uint64(st.Dropped))
		log.Warn("palette overflow", "chunk", h.String(), "limit", limit, "dropped_cells", st.Dropped)
	}
	log.Debug("palette built", "chunk", h.String(), "entries", count, "bits", bits,
		"insert", inserted.Sub(start), "total", st.Duration)
	return st, nil
}

// insert finds or claims a palette slot for id. It reports false when the
// palette is full.
func insert(m *chunk.Metadata, pal []uint32, id, limit uint32) bool {
	for {
		c := m.PaletteCount.Load()
		if scan(pal, c, id) {
			return true
		}
		if c >= limit {
			return false
		}
		if m.PaletteCount.CompareAndSwap(c, c+1) {
			atomic.StoreUint32(&pal[c], id)
			return true
		}
	}
}

// scan looks for id in the first c slots. A zero slot past slot 0 has been
// claimed but not yet written, so scan waits for it.
func scan(pal []uint32, c, id uint32) bool {
	for s := uint32(0); s < c; s++ {
		v := atomic.LoadUint32(&pal[s])
		for v == 0 && s > 0 {
			runtime.Gosched()
			v = atomic.LoadUint32(&pal[s])
		}
		if v == id {
			return true
		}
	}
	return false
}

func slotOf(pal []uint32, id uint32) int {
	for s, v := range pal {
		if v == id {
			return s
		}
	}
	return -1
}
