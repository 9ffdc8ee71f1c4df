package chunk

import (
	"errors"
	"fmt"
	"iter"
	"sync"

	"go.uber.org/atomic"

	"github.com/voxelsplace/voxcore/bitpack"
	"github.com/voxelsplace/voxcore/palette"
)

var (
	ErrUnknownHandle = errors.New("chunk: unknown or released handle")
	ErrLayout        = errors.New("chunk: invalid layout")
)

// Layout fixes the worst-case size of every per-chunk region.
type Layout struct {
	Dims              Dims
	MaxPaletteEntries int
	MaxFaces          int
}

// DefaultLayout is an 8x8x8 chunk with a 256-entry palette and room for
// every face of every cell.
var DefaultLayout = Layout{Dims: Default, MaxPaletteEntries: 256, MaxFaces: Default.Cells() * 6}

// MaxEdge is the largest edge a face record can address.
const MaxEdge = 256

// Validate checks that every region can hold what the builder and extractor
// write into it. Slot 0 is reserved for air, so a palette needs two entries
// before any solid cell fits.
func (l Layout) Validate() error {
	d := l.Dims
	if d.X < 1 || d.Y < 1 || d.Z < 1 || max(d.X, d.Y, d.Z) > MaxEdge {
		return fmt.Errorf("%w: dims %v outside 1..%d", ErrLayout, d, MaxEdge)
	}
	if l.MaxPaletteEntries < 2 {
		return fmt.Errorf("%w: %d palette entries, need at least 2", ErrLayout, l.MaxPaletteEntries)
	}
	if l.MaxFaces < 0 {
		return fmt.Errorf("%w: negative face capacity %d", ErrLayout, l.MaxFaces)
	}
	return nil
}

func (l Layout) MaxBits() uint       { return bitpack.BitsFor(l.MaxPaletteEntries) }
func (l Layout) PaletteWords() int    { return l.MaxPaletteEntries }
func (l Layout) CompressedWords() int { return bitpack.WordsFor(l.Dims.Cells(), l.MaxBits()) }
func (l Layout) RawWords() int        { return l.Dims.Cells() }
func (l Layout) MeshWords() int       { return l.MaxFaces * FaceWords }

// ChunkWords is the heap footprint of one chunk.
func (l Layout) ChunkWords() int {
	return l.PaletteWords() + l.CompressedWords() + l.RawWords() + l.MeshWords()
}

// Handle names a live chunk in a Store. A handle goes stale once released,
// even if its slot is reused.
type Handle struct {
	slot uint32
	gen  uint32
}

func (h Handle) String() string { return fmt.Sprintf("chunk#%d.%d", h.slot, h.gen) }

// Metadata locates one chunk's regions in the heap and carries its counters.
type Metadata struct {
	PaletteOffset    int
	CompressedOffset int
	RawOffset        int
	MeshOffset       int
	SizeRawMaxBytes  int

	PaletteCount atomic.Uint32
	FaceCount    atomic.Uint32
	MeshValid    atomic.Bool
	// Digest is the content hash of the raw cells the mesh was built from.
	Digest atomic.Uint64

	base, words int
	gen         uint32
}

// Bits is the index width implied by the current palette count.
func (m *Metadata) Bits() uint { return bitpack.BitsFor(int(m.PaletteCount.Load())) }

// Store owns the shared heap and the metadata arena.
type Store struct {
	layout Layout

	mu    sync.Mutex
	heap  *Heap
	metas []*Metadata
	gens  []uint32
	slots []uint32 // released arena slots
}

// NewStore creates a store whose heap starts with capacity words.
func NewStore(layout Layout, capacity int) *Store {
	return &Store{layout: layout, heap: NewHeap(capacity)}
}

// NewStoreFor sizes the heap for n chunks.
func NewStoreFor(layout Layout, n int) *Store {
	return NewStore(layout, n*layout.ChunkWords())
}

func (s *Store) Layout() Layout { return s.layout }

// Allocate reserves worst-case regions for a new chunk. It fails with
// ErrLayout when the store's layout is unusable.
func (s *Store) Allocate() (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.layout
	if err := l.Validate(); err != nil {
		return Handle{}, err
	}
	base, err := s.heap.Alloc(l.ChunkWords())
	if err != nil {
		return Handle{}, err
	}
	m := &Metadata{
		PaletteOffset:   base,
		SizeRawMaxBytes: l.RawWords() * 4,
		base:            base,
		words:           l.ChunkWords(),
	}
	m.CompressedOffset = m.PaletteOffset + l.PaletteWords()
	m.RawOffset = m.CompressedOffset + l.CompressedWords()
	m.MeshOffset = m.RawOffset + l.RawWords()

	var slot uint32
	if n := len(s.slots); n > 0 {
		slot = s.slots[n-1]
		s.slots = s.slots[:n-1]
	} else {
		slot = uint32(len(s.metas))
		s.metas = append(s.metas, nil)
		s.gens = append(s.gens, 0)
	}
	s.gens[slot]++
	m.gen = s.gens[slot]
	s.metas[slot] = m
	return Handle{slot: slot, gen: m.gen}, nil
}

// Release returns the chunk's regions to the heap. No build or extraction
// may still be running against h.
func (s *Store) Release(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.lookupLocked(h)
	if err != nil {
		return err
	}
	s.heap.Free(m.base, m.words)
	s.metas[h.slot] = nil
	s.slots = append(s.slots, h.slot)
	return nil
}

// Grow enlarges the heap. Views taken before Grow must not be used after it.
func (s *Store) Grow(capacity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heap.Grow(capacity)
}

// Live returns the number of allocated chunks.
func (s *Store) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.metas) - len(s.slots)
}

// Available returns the number of free heap words.
func (s *Store) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.Available()
}

func (s *Store) lookupLocked(h Handle) (*Metadata, error) {
	if int(h.slot) >= len(s.metas) || s.metas[h.slot] == nil || s.metas[h.slot].gen != h.gen {
		return nil, fmt.Errorf("%w: %v", ErrUnknownHandle, h)
	}
	return s.metas[h.slot], nil
}

// Meta returns the metadata of a live chunk.
func (s *Store) Meta(h Handle) (*Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(h)
}

// View returns zero-copy slices over the chunk's four regions.
func (s *Store) View(h Handle) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.lookupLocked(h)
	if err != nil {
		return View{}, err
	}
	l := s.layout
	w := s.heap.Words()
	return View{
		Meta:       m,
		Layout:     l,
		Palette:    w[m.PaletteOffset : m.PaletteOffset+l.PaletteWords() : m.PaletteOffset+l.PaletteWords()],
		Compressed: w[m.CompressedOffset : m.CompressedOffset+l.CompressedWords() : m.CompressedOffset+l.CompressedWords()],
		Raw:        w[m.RawOffset : m.RawOffset+l.RawWords() : m.RawOffset+l.RawWords()],
		Mesh:       w[m.MeshOffset : m.MeshOffset+l.MeshWords() : m.MeshOffset+l.MeshWords()],
	}, nil
}

// View is a window onto one chunk's heap regions.
type View struct {
	Meta   *Metadata
	Layout Layout

	Palette    []uint32
	Compressed []uint32
	Raw        []uint32
	Mesh       []uint32
}

// Value resolves cell i through the palette and index stream.
func (v View) Value(i int) (uint32, error) {
	count := int(v.Meta.PaletteCount.Load())
	if count == 0 {
		return 0, palette.ErrEmptyPalette
	}
	if i < 0 || i >= v.Layout.Dims.Cells() {
		return 0, fmt.Errorf("%w: %d", palette.ErrCellOutOfRange, i)
	}
	if count == 1 {
		return v.Palette[0], nil
	}
	s, err := bitpack.Read(v.Compressed, i, bitpack.BitsFor(count))
	if err != nil {
		return 0, err
	}
	if int(s) >= count {
		return 0, fmt.Errorf("%w: cell %d decoded %d, palette has %d", palette.ErrIndexOutOfRange, i, s, count)
	}
	return v.Palette[s], nil
}

// Snapshot copies the chunk's palette and index stream into a host Palette.
func (v View) Snapshot() (*palette.Palette, error) {
	count := int(v.Meta.PaletteCount.Load())
	cells := v.Layout.Dims.Cells()
	values := make([]uint32, count)
	copy(values, v.Palette[:count])
	var words []uint32
	if count > 1 {
		words = make([]uint32, bitpack.WordsFor(cells, bitpack.BitsFor(count)))
		copy(words, v.Compressed)
	}
	return palette.New(values, words, cells)
}

// Faces yields the face records written so far, in slot order.
func (v View) Faces() iter.Seq[Face] {
	return func(yield func(Face) bool) {
		n := int(v.Meta.FaceCount.Load())
		if n > v.Layout.MaxFaces {
			n = v.Layout.MaxFaces
		}
		for i := 0; i < n; i++ {
			f := DecodeFace(v.Mesh[i*FaceWords : (i+1)*FaceWords])
			if !f.Valid {
				continue
			}
			if !yield(f) {
				return
			}
		}
	}
}
