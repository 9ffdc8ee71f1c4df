// Package api exposes in-memory conversions used by the CLI and the wasm
// bridge: RLE text to chunk dumps, dumps to glTF, packs, and statistics.
package api

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/voxelsplace/voxcore/builder"
	"github.com/voxelsplace/voxcore/chunk"
	"github.com/voxelsplace/voxcore/dump"
	"github.com/voxelsplace/voxcore/export"
	"github.com/voxelsplace/voxcore/mesh"
	"github.com/voxelsplace/voxcore/pipeline"
)

var ErrRLE = errors.New("api: invalid RLE")

// ParseRLE reads "count,value,count,value,..." with optional brackets.
func ParseRLE(s string) ([]uint32, error) {
	s = strings.Trim(s, "[] \n\t")
	var out []uint32
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrRLE, p, err)
		}
		out = append(out, uint32(v))
	}
	if len(out) == 0 || len(out)%2 != 0 {
		return nil, fmt.Errorf("%w: need count/value pairs, got %d numbers", ErrRLE, len(out))
	}
	return out, nil
}

// ExpandRLE expands count/value pairs into exactly d.Cells() raster cells.
func ExpandRLE(d chunk.Dims, rle []uint32) ([]uint32, error) {
	raw := make([]uint32, 0, d.Cells())
	for i := 0; i+1 < len(rle); i += 2 {
		n, v := int(rle[i]), rle[i+1]
		if len(raw)+n > d.Cells() {
			return nil, fmt.Errorf("%w: runs exceed %d cells", ErrRLE, d.Cells())
		}
		for range n {
			raw = append(raw, v)
		}
	}
	if len(raw) != d.Cells() {
		return nil, fmt.Errorf("%w: runs cover %d of %d cells", ErrRLE, len(raw), d.Cells())
	}
	return raw, nil
}

// CompressRLE is the inverse of ExpandRLE.
func CompressRLE(raw []uint32) []uint32 {
	var out []uint32
	for i := 0; i < len(raw); {
		j := i + 1
		for j < len(raw) && raw[j] == raw[i] {
			j++
		}
		out = append(out, uint32(j-i), raw[i])
		i = j
	}
	return out
}

func RLEToRaw(s string, d chunk.Dims) ([]uint32, error) {
	rle, err := ParseRLE(s)
	if err != nil {
		return nil, err
	}
	return ExpandRLE(d, rle)
}

func RLEToDump(s string, d chunk.Dims, opts dump.Options) ([]byte, error) {
	raw, err := RLEToRaw(s, d)
	if err != nil {
		return nil, err
	}
	return dump.Encode(d, raw, opts)
}

// Meshed is a chunk after a full regeneration.
type Meshed struct {
	Dims   chunk.Dims
	Result pipeline.Result
	Faces  []chunk.Face
}

// MeshRaw regenerates one chunk in a private store and returns its faces.
// The palette bound is sized so nothing overflows.
func MeshRaw(ctx context.Context, d chunk.Dims, raw []uint32) (*Meshed, error) {
	if max(d.X, d.Y, d.Z) > 256 {
		return nil, fmt.Errorf("api: %v: edges above 256 cannot be meshed", d)
	}
	distinct := len(slices.Compact(slices.Sorted(slices.Values(raw))))
	l := chunk.Layout{Dims: d, MaxPaletteEntries: max(distinct+1, 2), MaxFaces: d.Cells() * 6}
	s := chunk.NewStoreFor(l, 1)
	h, err := s.Allocate()
	if err != nil {
		return nil, err
	}
	p := pipeline.New(s, builder.New(s), mesh.New(s), 1)
	res, err := p.Regenerate(ctx, h, raw)
	if err != nil {
		return nil, err
	}
	v, err := s.View(h)
	if err != nil {
		return nil, err
	}
	return &Meshed{Dims: d, Result: res, Faces: slices.Collect(v.Faces())}, nil
}

// DumpToGLB meshes a dump and returns binary glTF. greedy merges coplanar
// faces; otherwise every face becomes its own quad.
func DumpToGLB(b []byte, greedy bool, color export.ColorFunc) ([]byte, error) {
	c, err := dump.Decode(b)
	if err != nil {
		return nil, err
	}
	m, err := MeshRaw(context.Background(), c.Dims, c.Raw)
	if err != nil {
		return nil, err
	}
	return export.GLB(geometry(m, greedy), color)
}

func geometry(m *Meshed, greedy bool) *export.Mesh {
	if greedy {
		return export.Greedy(m.Dims, slices.Values(m.Faces))
	}
	return export.Quads(slices.Values(m.Faces))
}

// PackToGLB meshes every entry of a pack and lays the chunks out in a row
// along X, one glTF node per entry.
func PackToGLB(b []byte, greedy bool, color export.ColorFunc) ([]byte, error) {
	pk, _, err := dump.UnmarshalPack(b)
	if err != nil {
		return nil, err
	}
	scene := export.NewScene(color)
	x := float32(0)
	for _, e := range pk.Entries {
		c, err := dump.Decode(e.Dump)
		if err != nil {
			return nil, fmt.Errorf("api: pack entry %q: %w", e.Name, err)
		}
		m, err := MeshRaw(context.Background(), c.Dims, c.Raw)
		if err != nil {
			return nil, fmt.Errorf("api: pack entry %q: %w", e.Name, err)
		}
		scene.Add(e.Name, geometry(m, greedy), mgl32.Vec3{x, 0, 0})
		x += float32(c.Dims.X + 1)
	}
	return scene.Bytes()
}

// PackDumps bundles named dumps. Every dump must decode.
func PackDumps(files map[string][]byte, comp dump.Compression) ([]byte, error) {
	if len(files) == 0 {
		return nil, errors.New("api: no dumps to pack")
	}
	var pk dump.Pack
	for _, name := range slices.Sorted(maps.Keys(files)) {
		if _, _, _, err := dump.ParseHeader(files[name]); err != nil {
			return nil, fmt.Errorf("api: %s: %w", name, err)
		}
		pk.Add(name, files[name])
	}
	return pk.Marshal(comp)
}

func UnpackDumps(b []byte) (map[string][]byte, error) {
	pk, _, err := dump.UnmarshalPack(b)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(pk.Entries))
	for _, e := range pk.Entries {
		out[e.Name] = e.Dump
	}
	return out, nil
}

// Stats summarises one dump.
type Stats struct {
	Dims        chunk.Dims
	Compression dump.Compression
	Layout      dump.Layout
	Entries     int
	Bits        uint
	Solid       int
	Faces       int
	RawBytes    int
	DumpBytes   int
	Ratio       float64
}

func DumpStats(b []byte) (Stats, error) {
	c, err := dump.Decode(b)
	if err != nil {
		return Stats{}, err
	}
	m, err := MeshRaw(context.Background(), c.Dims, c.Raw)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		Dims:        c.Dims,
		Compression: c.Compression,
		Layout:      c.Layout,
		Entries:     c.Palette.Len(),
		Bits:        c.Palette.Bits(),
		Faces:       len(m.Faces),
		RawBytes:    len(c.Raw) * 4,
		DumpBytes:   len(b),
	}
	if c.Palette.Elided() {
		st.Bits = 0
	}
	for _, v := range c.Raw {
		if v != 0 {
			st.Solid++
		}
	}
	st.Ratio = float64(st.RawBytes) / float64(st.DumpBytes)
	return st, nil
}
