package export

import (
	"encoding/binary"
	"fmt"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/lucasb-eyer/go-colorful"
)

// ColorFunc maps a block ID to a linear RGBA vertex colour.
type ColorFunc func(block uint32) [4]float32

// BlockColor derives a stable colour from the block ID's hash. Air is fully
// transparent.
func BlockColor(block uint32) [4]float32 {
	if block == 0 {
		return [4]float32{}
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], block)
	h := xxhash.Sum64(b[:])
	hue := float64(h % 360)
	sat := 0.45 + float64(h>>16&0xFF)/255*0.4
	val := 0.6 + float64(h>>24&0xFF)/255*0.35
	return rgba(colorful.Hsv(hue, sat, val), 1)
}

func rgba(c colorful.Color, alpha float32) [4]float32 {
	r, g, b := c.Clamped().LinearRgb()
	return [4]float32{float32(r), float32(g), float32(b), alpha}
}

// HexPalette builds a ColorFunc from "#rrggbb" strings. Blocks missing from
// the table fall back to BlockColor.
func HexPalette(table map[uint32]string) (ColorFunc, error) {
	colors := make(map[uint32][4]float32, len(table))
	for id, hex := range table {
		c, err := colorful.Hex(hex)
		if err != nil {
			return nil, fmt.Errorf("export: block %d colour %q: %w", id, hex, err)
		}
		colors[id] = rgba(c, 1)
	}
	return func(block uint32) [4]float32 {
		if c, ok := colors[block]; ok {
			return c
		}
		return BlockColor(block)
	}, nil
}
