// Package palette turns a dense array of block IDs into the distinct values
// it contains plus a bit-packed stream of per-cell palette indices.
package palette

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/brentp/intintmap"

	"github.com/voxelsplace/voxcore/bitpack"
)

var (
	ErrEmptyPalette    = errors.New("palette: empty palette")
	ErrIndexOutOfRange = errors.New("palette: decoded index out of range")
	ErrCellOutOfRange  = errors.New("palette: cell out of range")
	ErrPaletteFull     = errors.New("palette: no room at current bit width")
	ErrShortStream     = errors.New("palette: index stream too short")
)

// Palette is an ordered set of distinct values and the packed index of every
// cell. With one value or fewer the index stream is elided and every cell
// resolves to Values()[0].
type Palette struct {
	values []uint32
	words  []uint32
	bits   uint
	cells  int
}

// Build scans raw left to right and assigns slots in first-occurrence order.
func Build(raw []uint32) *Palette {
	slots := intintmap.New(64, 0.6)
	values := make([]uint32, 0, 16)
	idx := make([]uint32, len(raw))
	for i, v := range raw {
		s, ok := slots.Get(int64(v))
		if !ok {
			s = int64(len(values))
			slots.Put(int64(v), s)
			values = append(values, v)
		}
		idx[i] = uint32(s)
	}
	p := &Palette{values: values, bits: bitpack.BitsFor(len(values)), cells: len(raw)}
	if len(values) <= 1 {
		return p
	}
	p.words = make([]uint32, bitpack.WordsFor(len(raw), p.bits))
	for i, s := range idx {
		// words is sized for every cell, so Write cannot fail here.
		_ = bitpack.Write(p.words, i, p.bits, s)
	}
	return p
}

// New wraps existing palette data without copying it.
func New(values, words []uint32, cells int) (*Palette, error) {
	if cells < 0 {
		return nil, fmt.Errorf("%w: negative cell count %d", ErrCellOutOfRange, cells)
	}
	p := &Palette{values: values, bits: bitpack.BitsFor(len(values)), cells: cells}
	if len(values) <= 1 {
		return p, nil
	}
	if need := bitpack.WordsFor(cells, p.bits); len(words) < need {
		return nil, fmt.Errorf("%w: have %d words, need %d", ErrShortStream, len(words), need)
	}
	p.words = words
	return p, nil
}

func (p *Palette) Values() []uint32 { return p.values }
func (p *Palette) Words() []uint32  { return p.words }
func (p *Palette) Len() int         { return len(p.values) }
func (p *Palette) Cells() int       { return p.cells }

// Bits is the index width, max(1, ceil(log2(Len()))).
func (p *Palette) Bits() uint { return p.bits }

// Elided reports whether the index stream is omitted.
func (p *Palette) Elided() bool { return len(p.values) <= 1 }

// Index returns the palette slot stored for cell i.
func (p *Palette) Index(i int) (uint32, error) {
	if len(p.values) == 0 {
		return 0, ErrEmptyPalette
	}
	if i < 0 || i >= p.cells {
		return 0, fmt.Errorf("%w: %d not in [0,%d)", ErrCellOutOfRange, i, p.cells)
	}
	if p.Elided() {
		return 0, nil
	}
	s, err := bitpack.Read(p.words, i, p.bits)
	if err != nil {
		return 0, err
	}
	if int(s) >= len(p.values) {
		return 0, fmt.Errorf("%w: cell %d decoded %d, palette has %d", ErrIndexOutOfRange, i, s, len(p.values))
	}
	return s, nil
}

// Get returns the value of cell i.
func (p *Palette) Get(i int) (uint32, error) {
	s, err := p.Index(i)
	if err != nil {
		return 0, err
	}
	return p.values[s], nil
}

// Decompress expands every cell. It is meant for verification, not hot paths.
func (p *Palette) Decompress() ([]uint32, error) {
	out := make([]uint32, p.cells)
	if p.cells == 0 {
		return out, nil
	}
	if len(p.values) == 0 {
		return nil, ErrEmptyPalette
	}
	if p.Elided() {
		for i := range out {
			out[i] = p.values[0]
		}
		return out, nil
	}
	for i := range out {
		v, err := p.Get(i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Region decompresses the box [origin, origin+size) of a chunk laid out as
// x + dims[0]*(y + dims[1]*z). Cells outside the chunk read as 0.
func (p *Palette) Region(dims, origin, size [3]int) ([]uint32, error) {
	if dims[0]*dims[1]*dims[2] != p.cells {
		return nil, fmt.Errorf("%w: dims %v do not cover %d cells", ErrCellOutOfRange, dims, p.cells)
	}
	out := make([]uint32, 0, size[0]*size[1]*size[2])
	for z := 0; z < size[2]; z++ {
		for y := 0; y < size[1]; y++ {
			for x := 0; x < size[0]; x++ {
				wx, wy, wz := origin[0]+x, origin[1]+y, origin[2]+z
				if wx < 0 || wx >= dims[0] || wy < 0 || wy >= dims[1] || wz < 0 || wz >= dims[2] {
					out = append(out, 0)
					continue
				}
				v, err := p.Get(wx + dims[0]*(wy+dims[1]*wz))
				if err != nil {
					return nil, err
				}
				out = append(out, v)
			}
		}
	}
	return out, nil
}

// Add returns the slot of v, appending it when absent. Appending never
// re-encodes, so it fails with ErrPaletteFull once the current width is used up.
func (p *Palette) Add(v uint32) (int, error) {
	for i, x := range p.values {
		if x == v {
			return i, nil
		}
	}
	switch {
	case len(p.values) == 0:
		p.values = append(p.values, v)
		return 0, nil
	case len(p.values) == 1:
		// Every cell currently maps to slot 0, which an all-zero stream encodes.
		p.words = make([]uint32, bitpack.WordsFor(p.cells, 1))
		p.bits = 1
	case len(p.values) >= 1<<p.bits:
		return 0, fmt.Errorf("%w: %d entries at %d bits", ErrPaletteFull, len(p.values), p.bits)
	}
	p.values = append(p.values, v)
	return len(p.values) - 1, nil
}

// Set stores v in cell i, adding it to the palette if needed.
func (p *Palette) Set(i int, v uint32) error {
	if i < 0 || i >= p.cells {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrCellOutOfRange, i, p.cells)
	}
	s, err := p.Add(v)
	if err != nil {
		return err
	}
	if p.Elided() {
		return nil
	}
	return bitpack.Write(p.words, i, p.bits, uint32(s))
}

// Optimize reorders slots by descending use and rewrites every index.
// Slots used equally keep their relative order.
func (p *Palette) Optimize() error {
	if p.Elided() {
		return nil
	}
	counts := make([]int, len(p.values))
	for i := 0; i < p.cells; i++ {
		s, err := p.Index(i)
		if err != nil {
			return err
		}
		counts[s]++
	}
	order := make([]int, len(p.values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return counts[order[a]] > counts[order[b]] })

	remap := intintmap.New(len(order), 0.6)
	values := make([]uint32, len(p.values))
	for next, old := range order {
		remap.Put(int64(old), int64(next))
		values[next] = p.values[old]
	}
	for i := 0; i < p.cells; i++ {
		s, _ := bitpack.Read(p.words, i, p.bits)
		n, _ := remap.Get(int64(s))
		if err := bitpack.Write(p.words, i, p.bits, uint32(n)); err != nil {
			return err
		}
	}
	p.values = values
	return nil
}

// Ratio is raw bytes over packed bytes, counting the palette itself.
func (p *Palette) Ratio() float64 {
	raw := float64(p.cells * 4)
	packed := float64(len(p.words)*4 + len(p.values)*4)
	if len(p.words) == 0 {
		return math.Inf(1)
	}
	return raw / packed
}
