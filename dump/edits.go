package dump

import (
	"errors"
	"fmt"

	"github.com/voxelsplace/voxcore/bitpack"
	"github.com/voxelsplace/voxcore/chunk"
)

var ErrEditIndex = errors.New("dump: edit index outside chunk")

// Edit sets one raster cell. Block 0 clears the cell to air.
type Edit struct {
	Index uint32
	Block uint32
}

// EncodeEdits writes an edit stream for a chunk of size d: a varint count,
// the cell indices packed at BitsFor(cells) bits, then the block IDs as
// varints.
func EncodeEdits(d chunk.Dims, edits []Edit) ([]byte, error) {
	cells := d.Cells()
	width := uint8(bitpack.BitsFor(cells))
	buf := bitpack.AppendUvarint(nil, uint32(len(edits)))
	w := bitpack.NewWriter()
	for _, e := range edits {
		if int(e.Index) >= cells {
			return nil, fmt.Errorf("%w: %d of %d", ErrEditIndex, e.Index, cells)
		}
		w.WriteBits(uint64(e.Index), width)
	}
	buf = append(buf, w.Bytes()...)
	for _, e := range edits {
		buf = bitpack.AppendUvarint(buf, e.Block)
	}
	return buf, nil
}

// DecodeEdits parses a stream written by EncodeEdits.
func DecodeEdits(d chunk.Dims, b []byte) ([]Edit, error) {
	cells := d.Cells()
	width := bitpack.BitsFor(cells)
	pos := 0
	n, err := bitpack.Uvarint(b, &pos)
	if err != nil {
		return nil, fmt.Errorf("dump: edit count: %w", err)
	}
	idxBytes := (uint64(n)*uint64(width) + 7) / 8
	if idxBytes > uint64(len(b)-pos) {
		return nil, fmt.Errorf("%w: %d edits need %d index bytes, have %d", ErrFormat, n, idxBytes, len(b)-pos)
	}
	edits := make([]Edit, n)
	r := bitpack.NewReader(b[pos : pos+int(idxBytes)])
	for i := range edits {
		v, err := r.ReadBits(uint8(width))
		if err != nil {
			return nil, err
		}
		if int(v) >= cells {
			return nil, fmt.Errorf("%w: %d of %d", ErrEditIndex, v, cells)
		}
		edits[i].Index = uint32(v)
	}
	pos += int(idxBytes)
	for i := range edits {
		if edits[i].Block, err = bitpack.Uvarint(b, &pos); err != nil {
			return nil, fmt.Errorf("dump: edit %d block: %w", i, err)
		}
	}
	if pos != len(b) {
		return nil, fmt.Errorf("%w: %d trailing bytes after edits", ErrFormat, len(b)-pos)
	}
	return edits, nil
}

// ApplyEdits patches raw in order. Nothing is written unless every index is
// in range.
func ApplyEdits(raw []uint32, edits []Edit) error {
	for _, e := range edits {
		if int(e.Index) >= len(raw) {
			return fmt.Errorf("%w: %d of %d", ErrEditIndex, e.Index, len(raw))
		}
	}
	for _, e := range edits {
		raw[e.Index] = e.Block
	}
	return nil
}

// Diff lists the edits that turn from into to.
func Diff(from, to []uint32) ([]Edit, error) {
	if len(from) != len(to) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrCellCount, len(from), len(to))
	}
	var edits []Edit
	for i := range to {
		if from[i] != to[i] {
			edits = append(edits, Edit{Index: uint32(i), Block: to[i]})
		}
	}
	return edits, nil
}
