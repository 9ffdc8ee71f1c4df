// Package export turns extracted faces into renderable geometry and writes
// it as binary glTF for previewing chunks outside the engine.
package export

import (
	"iter"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/voxelsplace/voxcore/chunk"
)

type Vertex struct {
	Pos    mgl32.Vec3
	Normal mgl32.Vec3
	Block  uint32
}

// Mesh is an indexed triangle list, two triangles per quad.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

func (m *Mesh) Quads() int { return len(m.Indices) / 6 }

func normal(dir chunk.Direction) mgl32.Vec3 {
	n := dir.Normal()
	return mgl32.Vec3{float32(n[0]), float32(n[1]), float32(n[2])}
}

// addQuad appends the face of the cell box starting at cell, facing dir,
// spanning su cells along the first in-plane axis and sv along the second.
// Triangles wind counter-clockwise seen from outside.
func (m *Mesh) addQuad(dir chunk.Direction, cell [3]int, su, sv int, block uint32) {
	axis := dir.Axis()
	u, v := (axis+1)%3, (axis+2)%3
	o := mgl32.Vec3{float32(cell[0]), float32(cell[1]), float32(cell[2])}
	if dir.Positive() {
		o[axis]++
	}
	var du, dv mgl32.Vec3
	du[u] = float32(su)
	dv[v] = float32(sv)
	corners := [4]mgl32.Vec3{o, o.Add(du), o.Add(du).Add(dv), o.Add(dv)}
	if !dir.Positive() {
		corners[1], corners[3] = corners[3], corners[1]
	}
	n := normal(dir)
	base := uint32(len(m.Vertices))
	for _, c := range corners {
		m.Vertices = append(m.Vertices, Vertex{Pos: c, Normal: n, Block: block})
	}
	m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
}

// Quads emits one unit quad per face.
func Quads(faces iter.Seq[chunk.Face]) *Mesh {
	m := &Mesh{}
	for f := range faces {
		m.addQuad(f.Dir, [3]int{int(f.Pos[0]), int(f.Pos[1]), int(f.Pos[2])}, 1, 1, f.Block)
	}
	return m
}

// Greedy merges coplanar faces of the same block into rectangles. The
// result covers exactly the same surface as Quads.
func Greedy(d chunk.Dims, faces iter.Seq[chunk.Face]) *Mesh {
	var planes [6][]uint32
	for i := range planes {
		planes[i] = make([]uint32, d.Cells())
	}
	for f := range faces {
		x, y, z := int(f.Pos[0]), int(f.Pos[1]), int(f.Pos[2])
		if !d.Contains(x, y, z) || int(f.Dir) >= len(planes) {
			continue
		}
		planes[f.Dir][d.Index(x, y, z)] = f.Block
	}

	m := &Mesh{}
	dims := d.Array()
	for _, dir := range chunk.Directions {
		blocks := planes[dir]
		axis := dir.Axis()
		u, v := (axis+1)%3, (axis+2)%3
		nu, nv := dims[u], dims[v]
		at := func(p, a, b int) int {
			var c [3]int
			c[axis], c[u], c[v] = p, a, b
			return d.Index(c[0], c[1], c[2])
		}
		done := make([]bool, nu*nv)
		for p := range dims[axis] {
			clear(done)
			for a := range nu {
				for b := 0; b < nv; {
					block := blocks[at(p, a, b)]
					if block == 0 || done[a*nv+b] {
						b++
						continue
					}
					w := 1
					for b+w < nv && blocks[at(p, a, b+w)] == block && !done[a*nv+b+w] {
						w++
					}
					h := 1
				grow:
					for a+h < nu {
						for k := b; k < b+w; k++ {
							if blocks[at(p, a+h, k)] != block || done[(a+h)*nv+k] {
								break grow
							}
						}
						h++
					}
					for i := a; i < a+h; i++ {
						for k := b; k < b+w; k++ {
							done[i*nv+k] = true
						}
					}
					var cell [3]int
					cell[axis], cell[u], cell[v] = p, a, b
					m.addQuad(dir, cell, h, w, block)
					b += w
				}
			}
		}
	}
	return m
}
