package chunk

import (
	"fmt"
	"sort"
	"sync"
)

func expand3(v uint32) uint32 {
	v &= 0x3FF
	v = (v | (v << 16)) & 0x030000FF
	v = (v | (v << 8)) & 0x0300F00F
	v = (v | (v << 4)) & 0x030C30C3
	v = (v | (v << 2)) & 0x09249249
	return v
}

// Morton3D interleaves the low 10 bits of x, y and z.
func Morton3D(x, y, z uint32) uint32 {
	return expand3(x) | (expand3(y) << 1) | (expand3(z) << 2)
}

// MaxMortonEdge is the largest edge Morton3D keys without collisions.
const MaxMortonEdge = 1 << 10

var mortonCache sync.Map // Dims -> []int

// MortonOrder returns the raster indices of d sorted by Morton key, so that
// out[rank] is the raster index visited at that rank. It panics when an edge
// exceeds MaxMortonEdge. The returned slice is shared and must not be
// modified.
func MortonOrder(d Dims) []int {
	if max(d.X, d.Y, d.Z) > MaxMortonEdge {
		panic(fmt.Sprintf("chunk: morton order for %v: edge above %d", d, MaxMortonEdge))
	}
	if v, ok := mortonCache.Load(d); ok {
		return v.([]int)
	}
	n := d.Cells()
	keys := make([]uint32, n)
	order := make([]int, n)
	for i := range order {
		x, y, z := d.XYZ(i)
		keys[i] = Morton3D(uint32(x), uint32(y), uint32(z))
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return keys[order[a]] < keys[order[b]] })
	v, _ := mortonCache.LoadOrStore(d, order)
	return v.([]int)
}

// ToMorton reorders raster-ordered cells into Morton order.
func ToMorton(d Dims, raster []uint32) []uint32 {
	order := MortonOrder(d)
	out := make([]uint32, len(order))
	for rank, i := range order {
		out[rank] = raster[i]
	}
	return out
}

// FromMorton inverts ToMorton.
func FromMorton(d Dims, morton []uint32) []uint32 {
	order := MortonOrder(d)
	out := make([]uint32, len(order))
	for rank, i := range order {
		out[i] = morton[rank]
	}
	return out
}
