package mesh

import (
	"cmp"
	"context"
	"errors"
	"math/rand"
	"slices"
	"testing"

	gocmp "github.com/google/go-cmp/cmp"

	"github.com/voxelsplace/voxcore/builder"
	"github.com/voxelsplace/voxcore/chunk"
	"github.com/voxelsplace/voxcore/internal/parallel"
	"github.com/voxelsplace/voxcore/palette"
)

func built(t testing.TB, l chunk.Layout, raw []uint32) (*chunk.Store, chunk.Handle, chunk.View) {
	t.Helper()
	s := chunk.NewStoreFor(l, 1)
	h, err := s.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	v, _ := s.View(h)
	copy(v.Raw, raw)
	if _, err := builder.New(s).Build(context.Background(), h); err != nil {
		t.Fatal(err)
	}
	return s, h, v
}

func compareFaces(a, b chunk.Face) int {
	if c := slices.Compare(a.Pos[:], b.Pos[:]); c != 0 {
		return c
	}
	return cmp.Compare(a.Dir, b.Dir)
}

func meshFaces(v chunk.View) []chunk.Face {
	faces := slices.Collect(v.Faces())
	slices.SortFunc(faces, compareFaces)
	return faces
}

func TestSingleCellHasSixFaces(t *testing.T) {
	d := chunk.Default
	raw := make([]uint32, d.Cells())
	raw[d.Index(3, 4, 5)] = 77
	s, h, v := built(t, chunk.DefaultLayout, raw)

	n, err := New(s, WithLanes(4)).Extract(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	if n != 6 || v.Meta.FaceCount.Load() != 6 {
		t.Fatalf("extracted %d, counter %d", n, v.Meta.FaceCount.Load())
	}
	var want []chunk.Face
	for _, dir := range chunk.Directions {
		want = append(want, chunk.Face{Pos: [3]uint8{3, 4, 5}, Dir: dir, Block: 77, Valid: true})
	}
	if diff := gocmp.Diff(want, meshFaces(v)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestScenarioHasTwelveFaces(t *testing.T) {
	d := chunk.Default
	raw := make([]uint32, d.Cells())
	raw[d.Index(2, 2, 2)] = 1
	raw[d.Index(5, 5, 5)] = 1
	s, h, v := built(t, chunk.DefaultLayout, raw)
	n, err := New(s).Extract(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	if n != 12 {
		t.Fatalf("extracted %d faces", n)
	}
	for _, f := range meshFaces(v) {
		if f.Block != 1 || (f.Pos != [3]uint8{2, 2, 2} && f.Pos != [3]uint8{5, 5, 5}) {
			t.Fatalf("unexpected face %+v", f)
		}
	}
}

func TestBoundaryFacesInvisible(t *testing.T) {
	d := chunk.Default
	raw := make([]uint32, d.Cells())
	for i := range raw {
		raw[i] = 3
	}
	s, h, _ := built(t, chunk.DefaultLayout, raw)
	e := New(s)
	for i := range d.Cells() {
		x, y, z := d.XYZ(i)
		for _, dir := range chunk.Directions {
			n := dir.Normal()
			if d.Contains(x+n[0], y+n[1], z+n[2]) {
				continue
			}
			ok, err := e.IsFaceVisible(h, [3]int{x, y, z}, dir)
			if err != nil || ok {
				t.Fatalf("(%d,%d,%d) %v: %v, %v", x, y, z, dir, ok, err)
			}
		}
	}
}

func TestBoundaryCellNextToAir(t *testing.T) {
	d := chunk.Default
	raw := make([]uint32, d.Cells())
	raw[d.Index(0, 0, 0)] = 9
	s, h, _ := built(t, chunk.DefaultLayout, raw)
	e := New(s)
	n, err := e.Extract(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("corner cell produced %d faces", n)
	}
	ok, _ := e.IsFaceVisible(h, [3]int{0, 0, 0}, chunk.PosX)
	if !ok {
		t.Fatal("+X face of corner cell should be visible")
	}
	ok, _ = e.IsFaceVisible(h, [3]int{0, 0, 0}, chunk.NegX)
	if ok {
		t.Fatal("-X face of corner cell should be hidden")
	}
}

func TestIsFaceVisibleErrors(t *testing.T) {
	s, h, _ := built(t, chunk.DefaultLayout, nil)
	e := New(s)
	if _, err := e.IsFaceVisible(h, [3]int{8, 0, 0}, chunk.PosX); !errors.Is(err, palette.ErrCellOutOfRange) {
		t.Fatalf("want ErrCellOutOfRange, got %v", err)
	}
	_ = s.Release(h)
	if _, err := e.IsFaceVisible(h, [3]int{0, 0, 0}, chunk.PosX); !errors.Is(err, chunk.ErrUnknownHandle) {
		t.Fatalf("want ErrUnknownHandle, got %v", err)
	}
}

func TestExtractMatchesVisible(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	raw := make([]uint32, 512)
	for i := range raw {
		if rng.Intn(2) == 0 {
			raw[i] = uint32(1 + rng.Intn(5))
		}
	}
	s, h, v := built(t, chunk.DefaultLayout, raw)
	e := New(s, WithLanes(16))
	if _, err := e.Extract(context.Background(), h); err != nil {
		t.Fatal(err)
	}
	seq, err := e.Visible(h)
	if err != nil {
		t.Fatal(err)
	}
	want := slices.Collect(seq)
	slices.SortFunc(want, compareFaces)
	if diff := gocmp.Diff(want, meshFaces(v)); diff != "" {
		t.Fatalf("(-iterator +mesh):\n%s", diff)
	}
	// Restartable.
	if again := slices.Collect(seq); len(again) != len(want) {
		t.Fatalf("second walk yielded %d, first %d", len(again), len(want))
	}
}

func TestExtractDoesNotResetCounter(t *testing.T) {
	d := chunk.Default
	raw := make([]uint32, d.Cells())
	raw[d.Index(3, 3, 3)] = 2
	s, h, v := built(t, chunk.DefaultLayout, raw)
	e := New(s)
	ctx := context.Background()
	_, _ = e.Extract(ctx, h)
	_, _ = e.Extract(ctx, h)
	if got := v.Meta.FaceCount.Load(); got != 12 {
		t.Fatalf("counter after two runs = %d", got)
	}
}

func TestExtractDropsPastCapacity(t *testing.T) {
	l := chunk.Layout{Dims: chunk.Default, MaxPaletteEntries: 16, MaxFaces: 4}
	d := l.Dims
	raw := make([]uint32, d.Cells())
	raw[d.Index(3, 3, 3)] = 2
	s, h, v := built(t, l, raw)
	e := New(s, WithLanes(2))
	n, err := e.Extract(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 || e.Overflows() != 2 || len(meshFaces(v)) != 4 {
		t.Fatalf("written %d overflows %d", n, e.Overflows())
	}
}

func TestExtractUnbuiltChunk(t *testing.T) {
	s := chunk.NewStoreFor(chunk.DefaultLayout, 1)
	h, _ := s.Allocate()
	if _, err := New(s).Extract(context.Background(), h); !errors.Is(err, palette.ErrEmptyPalette) {
		t.Fatalf("want ErrEmptyPalette, got %v", err)
	}
}

func TestExtractPanicsOnCorruptStream(t *testing.T) {
	d := chunk.Default
	raw := make([]uint32, d.Cells())
	raw[0], raw[1] = 5, 6
	s, h, v := built(t, chunk.DefaultLayout, raw)
	// Three entries at two bits; slot 3 does not exist.
	v.Compressed[10] = 0xFFFFFFFF
	defer func() {
		r := recover()
		p, ok := r.(*parallel.LanePanic)
		if !ok || !errors.Is(p, palette.ErrIndexOutOfRange) {
			t.Fatalf("recovered %v", r)
		}
	}()
	_, _ = New(s).Extract(context.Background(), h)
	t.Fatal("Extract returned normally")
}

func BenchmarkExtract(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	raw := make([]uint32, 512)
	for i := range raw {
		if rng.Intn(2) == 0 {
			raw[i] = uint32(1 + rng.Intn(8))
		}
	}
	s, h, v := built(b, chunk.DefaultLayout, raw)
	e := New(s)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v.Meta.FaceCount.Store(0)
		if _, err := e.Extract(ctx, h); err != nil {
			b.Fatal(err)
		}
	}
}
