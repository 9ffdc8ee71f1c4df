// Package dump is the on-disk form of a compressed chunk.
//
// A dump stores the palette and the bit-packed index stream of one chunk,
// optionally compressed, behind a small fixed header:
//
//	"VXCD" | version u8 | compression u8 | layout u8 | X u16 | Y u16 | Z u16
//	| content length u32 | content | xxhash64(content before compression) u64
//
// Content is a varint palette length, the palette as varints, the index
// width as one byte (0 when the stream is elided) and the LSB-first index
// stream. The stream bytes equal the little-endian bytes of the 32-bit words
// the chunk store keeps in memory.
package dump

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	xxhash "github.com/cespare/xxhash/v2"

	"github.com/voxelsplace/voxcore/bitpack"
	"github.com/voxelsplace/voxcore/chunk"
	"github.com/voxelsplace/voxcore/palette"
)

const (
	magic      = "VXCD"
	version1   = 1
	headerSize = 4 + 1 + 1 + 1 + 6 + 4
	sumSize    = 8

	// maxCells keeps the decoded raw cells within maxContent.
	maxCells = maxContent / 4
)

var (
	ErrFormat    = errors.New("dump: not a chunk dump")
	ErrVersion   = errors.New("dump: unsupported version")
	ErrChecksum  = errors.New("dump: checksum mismatch")
	ErrCellCount = errors.New("dump: cell count does not match dims")
	ErrLayout    = errors.New("dump: unknown layout")
)

// Layout is the order in which cells are stored.
type Layout uint8

const (
	LayoutRaster Layout = iota
	LayoutMorton
)

func (l Layout) String() string {
	switch l {
	case LayoutRaster:
		return "raster"
	case LayoutMorton:
		return "morton"
	}
	return fmt.Sprintf("layout(%d)", uint8(l))
}

// ParseLayout accepts "raster" or "morton". The empty string means raster.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(s) {
	case "", "raster":
		return LayoutRaster, nil
	case "morton":
		return LayoutMorton, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrLayout, s)
}

type Options struct {
	Compression Compression
	Layout      Layout
	// Optimize orders the palette by descending use before encoding.
	Optimize bool
}

// Chunk is a decoded dump. Palette indexes cells in raster order whatever
// the stored layout.
type Chunk struct {
	Dims        chunk.Dims
	Compression Compression
	Layout      Layout
	Palette     *palette.Palette
	Raw         []uint32
}

// Encode compresses raw, a raster-ordered chunk of size d.
func Encode(d chunk.Dims, raw []uint32, opts Options) ([]byte, error) {
	if len(raw) != d.Cells() || len(raw) == 0 {
		return nil, fmt.Errorf("%w: %d cells for %v", ErrCellCount, len(raw), d)
	}
	if d.X > 0xFFFF || d.Y > 0xFFFF || d.Z > 0xFFFF {
		return nil, fmt.Errorf("dump: dims %v too large", d)
	}
	if err := checkDims(d, opts.Layout); err != nil {
		return nil, err
	}
	var stored []uint32
	switch opts.Layout {
	case LayoutRaster:
		stored = raw
	case LayoutMorton:
		stored = chunk.ToMorton(d, raw)
	default:
		return nil, fmt.Errorf("%w: %d", ErrLayout, opts.Layout)
	}
	p := palette.Build(stored)
	if opts.Optimize {
		if err := p.Optimize(); err != nil {
			return nil, err
		}
	}
	content, err := encodeContent(p)
	if err != nil {
		return nil, err
	}
	packed, err := compress(opts.Compression, content)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.Grow(headerSize + len(packed) + sumSize)
	out.WriteString(magic)
	_ = binary.Write(&out, binary.LittleEndian, uint8(version1))
	_ = binary.Write(&out, binary.LittleEndian, uint8(opts.Compression))
	_ = binary.Write(&out, binary.LittleEndian, uint8(opts.Layout))
	_ = binary.Write(&out, binary.LittleEndian, uint16(d.X))
	_ = binary.Write(&out, binary.LittleEndian, uint16(d.Y))
	_ = binary.Write(&out, binary.LittleEndian, uint16(d.Z))
	_ = binary.Write(&out, binary.LittleEndian, uint32(len(packed)))
	_, _ = out.Write(packed)
	_ = binary.Write(&out, binary.LittleEndian, xxhash.Sum64(content))
	return out.Bytes(), nil
}

func encodeContent(p *palette.Palette) ([]byte, error) {
	values := p.Values()
	buf := make([]byte, 0, 1+5*len(values)+1)
	buf = bitpack.AppendUvarint(buf, uint32(len(values)))
	for _, v := range values {
		buf = bitpack.AppendUvarint(buf, v)
	}
	if p.Elided() {
		return append(buf, 0), nil
	}
	buf = append(buf, byte(p.Bits()))
	w := bitpack.NewWriter()
	for i := range p.Cells() {
		s, err := p.Index(i)
		if err != nil {
			return nil, err
		}
		w.WriteBits(uint64(s), uint8(p.Bits()))
	}
	return append(buf, w.Bytes()...), nil
}

// Header is the fixed part of a dump.
type Header struct {
	Version     uint8
	Compression Compression
	Layout      Layout
	Dims        chunk.Dims
	Length      uint32
}

// ParseHeader reads the fixed header and returns it with the content
// section and trailing checksum.
func ParseHeader(b []byte) (Header, []byte, uint64, error) {
	var h Header
	if len(b) < headerSize+sumSize || string(b[:4]) != magic {
		return h, nil, 0, ErrFormat
	}
	h.Version = b[4]
	if h.Version != version1 {
		return h, nil, 0, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	h.Compression = Compression(b[5])
	h.Layout = Layout(b[6])
	h.Dims = chunk.Dims{
		X: int(binary.LittleEndian.Uint16(b[7:])),
		Y: int(binary.LittleEndian.Uint16(b[9:])),
		Z: int(binary.LittleEndian.Uint16(b[11:])),
	}
	h.Length = binary.LittleEndian.Uint32(b[13:])
	if uint64(len(b)) != uint64(headerSize)+uint64(h.Length)+sumSize {
		return h, nil, 0, fmt.Errorf("%w: content length %d, have %d bytes", ErrFormat, h.Length, len(b)-headerSize-sumSize)
	}
	content := b[headerSize : headerSize+int(h.Length)]
	sum := binary.LittleEndian.Uint64(b[headerSize+int(h.Length):])
	return h, content, sum, nil
}

// checkDims bounds the cell count a dump may declare and the edges a Morton
// layout can order.
func checkDims(d chunk.Dims, layout Layout) error {
	if d.X <= 0 || d.Y <= 0 || d.Z <= 0 || d.Cells() > maxCells {
		return fmt.Errorf("%w: %v exceeds %d cells", ErrCellCount, d, maxCells)
	}
	if layout == LayoutMorton && max(d.X, d.Y, d.Z) > chunk.MaxMortonEdge {
		return fmt.Errorf("%w: morton order needs edges of at most %d, got %v", ErrLayout, chunk.MaxMortonEdge, d)
	}
	return nil
}

// Decode parses and verifies a dump.
func Decode(b []byte) (*Chunk, error) {
	h, packed, sum, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}
	if h.Layout != LayoutRaster && h.Layout != LayoutMorton {
		return nil, fmt.Errorf("%w: %d", ErrLayout, h.Layout)
	}
	if err := checkDims(h.Dims, h.Layout); err != nil {
		return nil, err
	}
	content, err := decompress(h.Compression, packed)
	if err != nil {
		return nil, fmt.Errorf("dump: %v content: %w", h.Compression, err)
	}
	if got := xxhash.Sum64(content); got != sum {
		return nil, fmt.Errorf("%w: %016x != %016x", ErrChecksum, got, sum)
	}
	p, err := decodeContent(h.Dims, h.Layout, content)
	if err != nil {
		return nil, err
	}
	raw, err := p.Decompress()
	if err != nil {
		return nil, err
	}
	return &Chunk{Dims: h.Dims, Compression: h.Compression, Layout: h.Layout, Palette: p, Raw: raw}, nil
}

func decodeContent(d chunk.Dims, layout Layout, content []byte) (*palette.Palette, error) {
	cells := d.Cells()
	pos := 0
	n, err := bitpack.Uvarint(content, &pos)
	if err != nil {
		return nil, fmt.Errorf("dump: palette length: %w", err)
	}
	if int(n) > cells || n == 0 || int(n) > len(content)-pos {
		return nil, fmt.Errorf("%w: palette of %d entries for %d cells", ErrFormat, n, cells)
	}
	values := make([]uint32, n)
	for i := range values {
		if values[i], err = bitpack.Uvarint(content, &pos); err != nil {
			return nil, fmt.Errorf("dump: palette entry %d: %w", i, err)
		}
	}
	if pos >= len(content) {
		return nil, fmt.Errorf("%w: missing index width", ErrFormat)
	}
	bits := uint(content[pos])
	pos++
	if n == 1 {
		if bits != 0 {
			return nil, fmt.Errorf("%w: width %d for a single-entry palette", ErrFormat, bits)
		}
		return palette.New(values, nil, cells)
	}
	if bits != bitpack.BitsFor(int(n)) {
		return nil, fmt.Errorf("%w: width %d for %d entries", ErrFormat, bits, n)
	}

	if need, have := uint64(cells)*uint64(bits), 8*uint64(len(content)-pos); need > have {
		return nil, fmt.Errorf("%w: %d cells at %d bits need %d bits, have %d", ErrFormat, cells, bits, need, have)
	}
	if layout == LayoutMorton && max(d.X, d.Y, d.Z) > chunk.MaxMortonEdge {
		return nil, fmt.Errorf("%w: morton order for %v", ErrLayout, d)
	}
	words := make([]uint32, bitpack.WordsFor(cells, bits))
	var order []int
	if layout == LayoutMorton {
		order = chunk.MortonOrder(d)
	}
	r := bitpack.NewReader(content[pos:])
	for k := range cells {
		s, err := r.ReadBits(uint8(bits))
		if err != nil {
			return nil, fmt.Errorf("dump: index stream at cell %d: %w", k, err)
		}
		i := k
		if order != nil {
			i = order[k]
		}
		if err := bitpack.Write(words, i, bits, uint32(s)); err != nil {
			return nil, err
		}
	}
	return palette.New(values, words, cells)
}
