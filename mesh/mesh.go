// Package mesh finds the visible faces of a built chunk.
//
// A face is visible when the cell is solid and its neighbour along the face
// normal is air. Neighbours outside the chunk never count as air, so faces
// on the chunk boundary are not emitted.
package mesh

import (
	"context"
	"fmt"
	"iter"
	"time"

	uatomic "go.uber.org/atomic"

	"github.com/voxelsplace/voxcore/bitpack"
	"github.com/voxelsplace/voxcore/chunk"
	"github.com/voxelsplace/voxcore/internal/parallel"
	"github.com/voxelsplace/voxcore/logging"
	"github.com/voxelsplace/voxcore/palette"
)

type Option func(*Extractor)

// WithLanes sets the number of extraction goroutines. Zero means GOMAXPROCS.
func WithLanes(n int) Option {
	return func(e *Extractor) { e.lanes = n }
}

type Extractor struct {
	store *chunk.Store
	lanes int

	overflows uatomic.Uint64
}

func New(store *chunk.Store, opts ...Option) *Extractor {
	e := &Extractor{store: store}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Overflows is the total number of faces dropped for lack of mesh slots.
func (e *Extractor) Overflows() uint64 { return e.overflows.Load() }

// resolver reads cells of a chunk whose palette is no longer changing.
type resolver struct {
	h     chunk.Handle
	dims  chunk.Dims
	pal   []uint32
	words []uint32
	count int
	bits  uint
}

func newResolver(h chunk.Handle, v chunk.View) resolver {
	count := int(v.Meta.PaletteCount.Load())
	return resolver{
		h:     h,
		dims:  v.Layout.Dims,
		pal:   v.Palette,
		words: v.Compressed,
		count: count,
		bits:  bitpack.BitsFor(count),
	}
}

// value panics on a corrupt stream: a visible-face set built from it would
// be wrong.
func (r resolver) value(i int) uint32 {
	switch r.count {
	case 0:
		panic(fmt.Errorf("mesh: %v: %w", r.h, palette.ErrEmptyPalette))
	case 1:
		return r.pal[0]
	}
	s, err := bitpack.Read(r.words, i, r.bits)
	if err != nil {
		panic(fmt.Errorf("mesh: %v cell %d: %w", r.h, i, err))
	}
	if int(s) >= r.count {
		panic(fmt.Errorf("mesh: %v cell %d decoded %d: %w", r.h, i, s, palette.ErrIndexOutOfRange))
	}
	return r.pal[s]
}

func (r resolver) visible(x, y, z int, dir chunk.Direction) bool {
	n := dir.Normal()
	nx, ny, nz := x+n[0], y+n[1], z+n[2]
	if !r.dims.Contains(nx, ny, nz) {
		return false
	}
	return r.value(r.dims.Index(nx, ny, nz)) == 0
}

// IsFaceVisible reports whether the face of the cell at pos looking along
// dir borders air inside the chunk. The cell's own content is not checked.
func (e *Extractor) IsFaceVisible(h chunk.Handle, pos [3]int, dir chunk.Direction) (bool, error) {
	v, err := e.store.View(h)
	if err != nil {
		return false, err
	}
	if !v.Layout.Dims.Contains(pos[0], pos[1], pos[2]) {
		return false, fmt.Errorf("%w: %v", palette.ErrCellOutOfRange, pos)
	}
	if int(dir) >= len(chunk.Directions) {
		return false, fmt.Errorf("mesh: invalid direction %d", dir)
	}
	if v.Meta.PaletteCount.Load() == 0 {
		return false, palette.ErrEmptyPalette
	}
	return newResolver(h, v).visible(pos[0], pos[1], pos[2], dir), nil
}

// Extract appends every visible face of h to its mesh region and returns how
// many it wrote. Slots are reserved through Metadata.FaceCount, which the
// caller resets between runs. Faces past the region's capacity are dropped.
// Slot order is not stable across runs.
func (e *Extractor) Extract(ctx context.Context, h chunk.Handle) (int, error) {
	start := time.Now()
	v, err := e.store.View(h)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r := newResolver(h, v)
	if r.count == 0 {
		return 0, fmt.Errorf("mesh: %v: %w", h, palette.ErrEmptyPalette)
	}
	limit := uint32(v.Layout.MaxFaces)
	var written, dropped uatomic.Int64

	parallel.Run(e.lanes, r.dims.Cells(), nil, func(i int) {
		block := r.value(i)
		if block == 0 {
			return
		}
		x, y, z := r.dims.XYZ(i)
		for _, dir := range chunk.Directions {
			if !r.visible(x, y, z, dir) {
				continue
			}
			slot := v.Meta.FaceCount.Inc() - 1
			if slot >= limit {
				dropped.Inc()
				continue
			}
			f := chunk.Face{Pos: [3]uint8{uint8(x), uint8(y), uint8(z)}, Dir: dir, Block: block, Valid: true}
			f.Encode(v.Mesh[int(slot)*chunk.FaceWords:])
			written.Inc()
		}
	})

	log := logging.Logger()
	if n := dropped.Load(); n > 0 {
		e.overflows.Add(uint64(n))
		log.Warn("mesh overflow", "chunk", h.String(), "limit", limit, "dropped_faces", n)
	}
	log.Debug("faces extracted", "chunk", h.String(), "faces", written.Load(), "took", time.Since(start))
	return int(written.Load()), nil
}

// Visible walks the visible faces of h in raster and direction order without
// touching the mesh region. The sequence can be ranged over repeatedly.
func (e *Extractor) Visible(h chunk.Handle) (iter.Seq[chunk.Face], error) {
	v, err := e.store.View(h)
	if err != nil {
		return nil, err
	}
	return func(yield func(chunk.Face) bool) {
		r := newResolver(h, v)
		if r.count == 0 {
			return
		}
		for i := range r.dims.Cells() {
			block := r.value(i)
			if block == 0 {
				continue
			}
			x, y, z := r.dims.XYZ(i)
			for _, dir := range chunk.Directions {
				if !r.visible(x, y, z, dir) {
					continue
				}
				if !yield(chunk.Face{Pos: [3]uint8{uint8(x), uint8(y), uint8(z)}, Dir: dir, Block: block, Valid: true}) {
					return
				}
			}
		}
	}, nil
}
