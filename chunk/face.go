package chunk

// Direction is one of the six axis-aligned face normals.
type Direction uint8

const (
	NegX Direction = iota
	PosX
	NegY
	PosY
	NegZ
	PosZ
)

// Directions lists every face direction in enumeration order.
var Directions = [6]Direction{NegX, PosX, NegY, PosY, NegZ, PosZ}

var normals = [6][3]int{
	{-1, 0, 0},
	{1, 0, 0},
	{0, -1, 0},
	{0, 1, 0},
	{0, 0, -1},
	{0, 0, 1},
}

var dirNames = [6]string{"-X", "+X", "-Y", "+Y", "-Z", "+Z"}

func (d Direction) Normal() [3]int { return normals[d] }

// Axis is 0, 1 or 2 for X, Y, Z.
func (d Direction) Axis() int { return int(d) / 2 }

// Positive reports whether the normal points along +axis.
func (d Direction) Positive() bool { return d&1 == 1 }

func (d Direction) String() string {
	if int(d) < len(dirNames) {
		return dirNames[d]
	}
	return "invalid"
}

// FaceWords is the number of heap words one Face record occupies.
const FaceWords = 2

const validBit = 1 << 31

// Face is one visible quad: the solid cell at Pos looking along Dir.
type Face struct {
	Pos   [3]uint8
	Dir   Direction
	Block uint32
	Valid bool
}

// Encode packs f into w[0:FaceWords].
func (f Face) Encode(w []uint32) {
	w0 := uint32(f.Pos[0]) | uint32(f.Pos[1])<<8 | uint32(f.Pos[2])<<16 | uint32(f.Dir&0x7)<<24
	if f.Valid {
		w0 |= validBit
	}
	w[0] = w0
	w[1] = f.Block
}

// DecodeFace unpacks a record written by Encode.
func DecodeFace(w []uint32) Face {
	return Face{
		Pos:   [3]uint8{uint8(w[0]), uint8(w[0] >> 8), uint8(w[0] >> 16)},
		Dir:   Direction(w[0] >> 24 & 0x7),
		Block: w[1],
		Valid: w[0]&validBit != 0,
	}
}
