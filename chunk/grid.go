package chunk

import "fmt"

// Dims is the cell extent of a chunk on each axis.
type Dims struct {
	X, Y, Z int
}

// Default is the 8x8x8 chunk used by the renderer.
var Default = Dims{X: 8, Y: 8, Z: 8}

func (d Dims) Cells() int { return d.X * d.Y * d.Z }

// Index returns the raster index x + X*(y + Y*z).
func (d Dims) Index(x, y, z int) int { return x + d.X*(y+d.Y*z) }

// XYZ inverts Index.
func (d Dims) XYZ(i int) (x, y, z int) {
	x = i % d.X
	y = (i / d.X) % d.Y
	z = i / (d.X * d.Y)
	return
}

// Contains reports whether (x,y,z) lies inside [0,X)x[0,Y)x[0,Z).
func (d Dims) Contains(x, y, z int) bool {
	return x >= 0 && x < d.X && y >= 0 && y < d.Y && z >= 0 && z < d.Z
}

func (d Dims) Array() [3]int { return [3]int{d.X, d.Y, d.Z} }

func (d Dims) String() string { return fmt.Sprintf("%dx%dx%d", d.X, d.Y, d.Z) }
