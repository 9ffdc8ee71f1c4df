package chunk

import (
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/voxelsplace/voxcore/palette"
)

func TestDimsIndex(t *testing.T) {
	d := Default
	if got := d.Index(2, 2, 2); got != 146 {
		t.Fatalf("Index(2,2,2) = %d", got)
	}
	if got := d.Index(5, 5, 5); got != 365 {
		t.Fatalf("Index(5,5,5) = %d", got)
	}
	d = Dims{X: 3, Y: 5, Z: 7}
	for i := 0; i < d.Cells(); i++ {
		x, y, z := d.XYZ(i)
		if !d.Contains(x, y, z) || d.Index(x, y, z) != i {
			t.Fatalf("XYZ(%d) = %d,%d,%d", i, x, y, z)
		}
	}
	if d.Contains(-1, 0, 0) || d.Contains(0, 5, 0) {
		t.Fatal("Contains accepted an outside cell")
	}
}

func TestFaceEncoding(t *testing.T) {
	for _, dir := range Directions {
		f := Face{Pos: [3]uint8{7, 0, 255}, Dir: dir, Block: 0xDEADBEEF, Valid: true}
		w := make([]uint32, FaceWords)
		f.Encode(w)
		if got := DecodeFace(w); got != f {
			t.Fatalf("%v: got %+v", dir, got)
		}
	}
	if DecodeFace([]uint32{0, 0}).Valid {
		t.Fatal("zeroed slot decoded as valid")
	}
}

func TestDirections(t *testing.T) {
	for _, d := range Directions {
		n := d.Normal()
		sum := n[0] + n[1] + n[2]
		if n[d.Axis()] == 0 || (sum > 0) != d.Positive() {
			t.Fatalf("%v: normal %v axis %d", d, n, d.Axis())
		}
	}
}

func TestHeapAllocFreeCoalesce(t *testing.T) {
	h := NewHeap(100)
	a, _ := h.Alloc(10)
	b, _ := h.Alloc(20)
	c, _ := h.Alloc(30)
	if a != 0 || b != 10 || c != 30 {
		t.Fatalf("offsets %d %d %d", a, b, c)
	}
	h.Free(b, 20)
	h.Free(a, 10)
	if len(h.free) != 2 || h.free[0] != (span{0, 30}) {
		t.Fatalf("free list %+v", h.free)
	}
	h.Free(c, 30)
	if len(h.free) != 1 || h.free[0] != (span{0, 100}) {
		t.Fatalf("free list after full release %+v", h.free)
	}
	if _, err := h.Alloc(101); !errors.Is(err, ErrHeapFull) {
		t.Fatalf("want ErrHeapFull, got %v", err)
	}
}

func TestHeapAllocZeroes(t *testing.T) {
	h := NewHeap(8)
	off, _ := h.Alloc(8)
	for i := range h.Words() {
		h.Words()[i] = 9
	}
	h.Free(off, 8)
	off, _ = h.Alloc(8)
	if slices.ContainsFunc(h.Words()[off:off+8], func(w uint32) bool { return w != 0 }) {
		t.Fatal("reused range not zeroed")
	}
}

func TestHeapGrowKeepsOffsets(t *testing.T) {
	h := NewHeap(16)
	off, _ := h.Alloc(16)
	h.Words()[off+3] = 77
	h.Grow(48)
	if h.Words()[off+3] != 77 {
		t.Fatal("Grow lost data")
	}
	next, err := h.Alloc(32)
	if err != nil || next != 16 {
		t.Fatalf("Alloc after Grow = %d, %v", next, err)
	}
}

func TestStoreRegionsDoNotOverlap(t *testing.T) {
	l := DefaultLayout
	s := NewStoreFor(l, 4)
	type rng struct{ lo, hi int }
	var ranges []rng
	for i := 0; i < 4; i++ {
		h, err := s.Allocate()
		if err != nil {
			t.Fatal(err)
		}
		m, _ := s.Meta(h)
		ranges = append(ranges,
			rng{m.PaletteOffset, m.PaletteOffset + l.PaletteWords()},
			rng{m.CompressedOffset, m.CompressedOffset + l.CompressedWords()},
			rng{m.RawOffset, m.RawOffset + l.RawWords()},
			rng{m.MeshOffset, m.MeshOffset + l.MeshWords()},
		)
		if m.SizeRawMaxBytes != 512*4 {
			t.Fatalf("SizeRawMaxBytes = %d", m.SizeRawMaxBytes)
		}
	}
	for i := range ranges {
		for j := i + 1; j < len(ranges); j++ {
			if ranges[i].lo < ranges[j].hi && ranges[j].lo < ranges[i].hi {
				t.Fatalf("ranges %v and %v overlap", ranges[i], ranges[j])
			}
		}
	}
	if _, err := s.Allocate(); !errors.Is(err, ErrHeapFull) {
		t.Fatalf("fifth chunk: want ErrHeapFull, got %v", err)
	}
}

func TestStoreRejectsBadLayout(t *testing.T) {
	tests := []struct {
		name string
		l    Layout
	}{
		{"no palette", Layout{Dims: Default, MaxPaletteEntries: 0, MaxFaces: 6}},
		{"air only", Layout{Dims: Default, MaxPaletteEntries: 1, MaxFaces: 6}},
		{"negative faces", Layout{Dims: Default, MaxPaletteEntries: 4, MaxFaces: -1}},
		{"flat", Layout{Dims: Dims{X: 8, Y: 0, Z: 8}, MaxPaletteEntries: 4}},
		{"wide", Layout{Dims: Dims{X: 257, Y: 1, Z: 1}, MaxPaletteEntries: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(tt.l, 1<<16)
			if _, err := s.Allocate(); !errors.Is(err, ErrLayout) {
				t.Fatalf("want ErrLayout, got %v", err)
			}
			if s.Live() != 0 {
				t.Fatalf("Live = %d after failed Allocate", s.Live())
			}
		})
	}
	ok := Layout{Dims: Dims{X: 256, Y: 1, Z: 1}, MaxPaletteEntries: 2}
	if _, err := NewStoreFor(ok, 1).Allocate(); err != nil {
		t.Fatalf("minimal layout: %v", err)
	}
}

func TestStoreReleaseAndReuse(t *testing.T) {
	s := NewStoreFor(DefaultLayout, 1)
	h1, err := s.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Release(h1); err != nil {
		t.Fatal(err)
	}
	if err := s.Release(h1); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("double release: want ErrUnknownHandle, got %v", err)
	}
	h2, err := s.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.View(h1); !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("stale handle: want ErrUnknownHandle, got %v", err)
	}
	if _, err := s.View(h2); err != nil {
		t.Fatal(err)
	}
	if s.Live() != 1 {
		t.Fatalf("Live = %d", s.Live())
	}
}

func TestStoreGrowPreservesViews(t *testing.T) {
	s := NewStoreFor(DefaultLayout, 1)
	h, _ := s.Allocate()
	v, _ := s.View(h)
	v.Raw[10] = 4
	s.Grow(3 * DefaultLayout.ChunkWords())
	v, _ = s.View(h)
	if v.Raw[10] != 4 {
		t.Fatal("raw region lost across Grow")
	}
	if _, err := s.Allocate(); err != nil {
		t.Fatalf("Allocate after Grow: %v", err)
	}
}

func TestViewValueAndSnapshot(t *testing.T) {
	s := NewStoreFor(DefaultLayout, 1)
	h, _ := s.Allocate()
	v, _ := s.View(h)

	if _, err := v.Value(0); !errors.Is(err, palette.ErrEmptyPalette) {
		t.Fatalf("want ErrEmptyPalette, got %v", err)
	}

	raw := make([]uint32, 512)
	raw[1], raw[2] = 6, 9
	p := palette.Build(raw)
	copy(v.Palette, p.Values())
	copy(v.Compressed, p.Words())
	v.Meta.PaletteCount.Store(uint32(p.Len()))

	for i, want := range raw {
		got, err := v.Value(i)
		if err != nil || got != want {
			t.Fatalf("cell %d: %d, %v", i, got, err)
		}
	}
	snap, err := v.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	got, err := snap.Decompress()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(raw, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	// Index 3 at 2 bits is past a 3-entry palette.
	v.Compressed[0] |= 0x3
	if _, err := v.Value(0); !errors.Is(err, palette.ErrIndexOutOfRange) {
		t.Fatalf("want ErrIndexOutOfRange, got %v", err)
	}
}

func TestViewFaces(t *testing.T) {
	l := Layout{Dims: Default, MaxPaletteEntries: 4, MaxFaces: 3}
	s := NewStoreFor(l, 1)
	h, _ := s.Allocate()
	v, _ := s.View(h)
	want := []Face{
		{Pos: [3]uint8{1, 2, 3}, Dir: PosY, Block: 5, Valid: true},
		{Pos: [3]uint8{4, 4, 4}, Dir: NegZ, Block: 6, Valid: true},
	}
	for i, f := range want {
		f.Encode(v.Mesh[i*FaceWords:])
	}
	v.Meta.FaceCount.Store(2)
	got := slices.Collect(v.Faces())
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	// A counter past MaxFaces is clamped to the region.
	v.Meta.FaceCount.Store(9)
	if n := len(slices.Collect(v.Faces())); n != 2 {
		t.Fatalf("faces with overflowed counter = %d", n)
	}
}

func TestMortonOrder(t *testing.T) {
	d := Default
	order := MortonOrder(d)
	seen := make([]bool, d.Cells())
	for _, i := range order {
		if seen[i] {
			t.Fatalf("raster index %d visited twice", i)
		}
		seen[i] = true
	}
	if order[0] != 0 || order[1] != d.Index(1, 0, 0) || order[2] != d.Index(0, 1, 0) || order[4] != d.Index(0, 0, 1) {
		t.Fatalf("unexpected leading order %v", order[:8])
	}
	raw := make([]uint32, d.Cells())
	for i := range raw {
		raw[i] = uint32(i * 3)
	}
	if diff := cmp.Diff(raw, FromMorton(d, ToMorton(d, raw))); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}
