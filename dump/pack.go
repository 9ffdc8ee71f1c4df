package dump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	xxhash "github.com/cespare/xxhash/v2"
)

const (
	packMagic    = "VXCDPACK"
	packVersion1 = 1

	cdcTarget = 4096
	cdcMin    = 1024
	cdcMax    = 16384
)

// PackEntry is one named dump inside a pack.
type PackEntry struct {
	Name string
	Dump []byte
}

// Pack bundles many dumps. Marshal splits the dumps into content-defined
// blocks and stores each distinct block once, so chunks that repeat (solid
// stone, open sky) cost one copy.
type Pack struct {
	Entries []PackEntry
}

func (p *Pack) Add(name string, dump []byte) {
	p.Entries = append(p.Entries, PackEntry{Name: name, Dump: dump})
}

// Marshal encodes the pack, compressing the content section with comp.
func (p *Pack) Marshal(comp Compression) ([]byte, error) {
	var content bytes.Buffer
	blocks, seqs := buildCDCIndex(p.Entries, cdcTarget, cdcMin, cdcMax)
	_ = binary.Write(&content, binary.LittleEndian, uint32(len(blocks)))
	for _, blk := range blocks {
		_ = binary.Write(&content, binary.LittleEndian, uint32(len(blk)))
		_, _ = content.Write(blk)
	}
	_ = binary.Write(&content, binary.LittleEndian, uint32(len(p.Entries)))
	for i, e := range p.Entries {
		nb := []byte(e.Name)
		if len(nb) > math.MaxUint16 {
			return nil, fmt.Errorf("dump: pack entry name too long: %.32s...", e.Name)
		}
		_ = binary.Write(&content, binary.LittleEndian, uint16(len(nb)))
		_, _ = content.Write(nb)
		_ = binary.Write(&content, binary.LittleEndian, uint32(len(e.Dump)))
		_ = binary.Write(&content, binary.LittleEndian, uint32(len(seqs[i])))
		for _, idx := range seqs[i] {
			_ = binary.Write(&content, binary.LittleEndian, uint32(idx))
		}
	}
	packed, err := compress(comp, content.Bytes())
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	out.WriteString(packMagic)
	out.WriteByte(packVersion1)
	out.WriteByte(byte(comp))
	_, _ = out.Write(packed)
	return out.Bytes(), nil
}

// UnmarshalPack parses a pack written by Marshal.
func UnmarshalPack(data []byte) (*Pack, Compression, error) {
	if len(data) < len(packMagic)+2 || string(data[:len(packMagic)]) != packMagic {
		return nil, 0, ErrFormat
	}
	if v := data[len(packMagic)]; v != packVersion1 {
		return nil, 0, fmt.Errorf("%w: pack %d", ErrVersion, v)
	}
	comp := Compression(data[len(packMagic)+1])
	content, err := decompress(comp, data[len(packMagic)+2:])
	if err != nil {
		return nil, 0, err
	}

	r := bytes.NewReader(content)
	var nBlocks uint32
	if err := binary.Read(r, binary.LittleEndian, &nBlocks); err != nil {
		return nil, 0, err
	}
	if uint64(nBlocks)*4 > uint64(r.Len()) {
		return nil, 0, fmt.Errorf("%w: %d blocks in %d bytes", ErrFormat, nBlocks, r.Len())
	}
	blocks := make([][]byte, nBlocks)
	for i := range blocks {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, 0, err
		}
		if uint64(n) > uint64(r.Len()) {
			return nil, 0, fmt.Errorf("%w: block %d of %d bytes", ErrFormat, i, n)
		}
		blocks[i] = make([]byte, n)
		if _, err := io.ReadFull(r, blocks[i]); err != nil {
			return nil, 0, err
		}
	}
	var nEntries uint32
	if err := binary.Read(r, binary.LittleEndian, &nEntries); err != nil {
		return nil, 0, err
	}
	if uint64(nEntries)*10 > uint64(r.Len()) {
		return nil, 0, fmt.Errorf("%w: %d entries in %d bytes", ErrFormat, nEntries, r.Len())
	}
	p := &Pack{Entries: make([]PackEntry, nEntries)}
	for i := range p.Entries {
		var nameLen uint16
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return nil, 0, err
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, 0, err
		}
		var rawLen, seqLen uint32
		if err := binary.Read(r, binary.LittleEndian, &rawLen); err != nil {
			return nil, 0, err
		}
		if err := binary.Read(r, binary.LittleEndian, &seqLen); err != nil {
			return nil, 0, err
		}
		if uint64(seqLen)*4 > uint64(r.Len()) {
			return nil, 0, fmt.Errorf("%w: entry %q has %d blocks", ErrFormat, name, seqLen)
		}
		seq := make([]uint32, seqLen)
		if err := binary.Read(r, binary.LittleEndian, seq); err != nil {
			return nil, 0, err
		}
		var size uint64
		for _, idx := range seq {
			if idx >= nBlocks {
				return nil, 0, fmt.Errorf("%w: block index %d of %d", ErrFormat, idx, nBlocks)
			}
			size += uint64(len(blocks[idx]))
		}
		if size != uint64(rawLen) {
			return nil, 0, fmt.Errorf("%w: entry %q is %d bytes, want %d", ErrFormat, name, size, rawLen)
		}
		dump := make([]byte, 0, size)
		for _, idx := range seq {
			dump = append(dump, blocks[idx]...)
		}
		p.Entries[i] = PackEntry{Name: string(name), Dump: dump}
	}
	return p, comp, nil
}

// buildCDCIndex cuts every entry at content-defined boundaries with a gear
// rolling hash and returns the distinct blocks plus each entry's block
// sequence.
func buildCDCIndex(entries []PackEntry, target, minSz, maxSz int) ([][]byte, [][]int) {
	gear := make([]uint64, 256)
	seed := xxhash.Sum64String("voxcore-cdc-gear")
	for i := range gear {
		var b [16]byte
		binary.LittleEndian.PutUint64(b[:8], seed+uint64(i)*0x9E3779B185EBCA87)
		binary.LittleEndian.PutUint64(b[8:], ^(seed + uint64(i)*0xC2B2AE3D27D4EB4F))
		v := xxhash.Sum64(b[:])
		if v == 0 {
			v = 0x9E3779B185EBCA87
		}
		gear[i] = v
	}

	mask := uint64(1)<<uint(math.Round(math.Log2(float64(target)))) - 1
	var blocks [][]byte
	index := make(map[uint64][]int, 256)
	addBlock := func(b []byte) int {
		h := xxhash.Sum64(b)
		for _, idx := range index[h] {
			if bytes.Equal(blocks[idx], b) {
				return idx
			}
		}
		idx := len(blocks)
		blocks = append(blocks, bytes.Clone(b))
		index[h] = append(index[h], idx)
		return idx
	}

	seqs := make([][]int, len(entries))
	for i, e := range entries {
		data := e.Dump
		var seq []int
		start := 0
		var h uint64
		for pos := range data {
			h = h<<1 + gear[data[pos]]
			size := pos - start + 1
			if size < minSz {
				continue
			}
			if h&mask == 0 || size >= maxSz {
				seq = append(seq, addBlock(data[start:pos+1]))
				start = pos + 1
				h = 0
			}
		}
		if start < len(data) {
			seq = append(seq, addBlock(data[start:]))
		}
		seqs[i] = seq
	}
	return blocks, seqs
}
