// Package config loads voxcore tool settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/voxelsplace/voxcore/chunk"
	"github.com/voxelsplace/voxcore/dump"
)

var ErrInvalid = errors.New("config: invalid value")

type Config struct {
	ChunkSize         []int  `yaml:"chunk_size"`
	MaxPaletteEntries int    `yaml:"max_palette_entries"`
	MaxFaces          int    `yaml:"max_faces"` // 0 means six per cell
	Lanes             int    `yaml:"lanes"`     // 0 means GOMAXPROCS
	HeapWords         int    `yaml:"heap_words"`
	LogLevel          string `yaml:"log_level"`

	Dump Dump `yaml:"dump"`
}

type Dump struct {
	Compression string `yaml:"compression"`
	Layout      string `yaml:"layout"`
}

func Default() Config {
	return Config{
		ChunkSize:         []int{8, 8, 8},
		MaxPaletteEntries: 256,
		LogLevel:          "info",
		Dump: Dump{
			Compression: "zstd",
			Layout:      "raster",
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	c := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("voxcore.yaml: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if len(c.ChunkSize) != 3 {
		return fmt.Errorf("%w: chunk_size needs 3 edges, got %d", ErrInvalid, len(c.ChunkSize))
	}
	for _, e := range c.ChunkSize {
		if e < 1 || e > 256 {
			return fmt.Errorf("%w: chunk edge %d outside 1..256", ErrInvalid, e)
		}
	}
	if c.MaxPaletteEntries < 2 || c.MaxPaletteEntries > 1<<16 {
		return fmt.Errorf("%w: max_palette_entries %d outside 2..65536", ErrInvalid, c.MaxPaletteEntries)
	}
	if c.MaxFaces < 0 {
		return fmt.Errorf("%w: max_faces %d", ErrInvalid, c.MaxFaces)
	}
	if c.Lanes < 0 {
		return fmt.Errorf("%w: lanes %d", ErrInvalid, c.Lanes)
	}
	if c.HeapWords < 0 {
		return fmt.Errorf("%w: heap_words %d", ErrInvalid, c.HeapWords)
	}
	if _, err := dump.ParseCompression(c.Dump.Compression); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := dump.ParseLayout(c.Dump.Layout); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func (c Config) Dims() chunk.Dims {
	return chunk.Dims{X: c.ChunkSize[0], Y: c.ChunkSize[1], Z: c.ChunkSize[2]}
}

// Layout derives the per-chunk region sizes.
func (c Config) Layout() chunk.Layout {
	d := c.Dims()
	faces := c.MaxFaces
	if faces == 0 {
		faces = d.Cells() * 6
	}
	return chunk.Layout{Dims: d, MaxPaletteEntries: c.MaxPaletteEntries, MaxFaces: faces}
}

func (c Config) WorkerLanes() int {
	if c.Lanes == 0 {
		return runtime.GOMAXPROCS(0)
	}
	return c.Lanes
}

// HeapCapacity is the initial heap size in words, at least one chunk.
func (c Config) HeapCapacity() int {
	return max(c.HeapWords, c.Layout().ChunkWords())
}

func (c Config) DumpOptions() dump.Options {
	comp, _ := dump.ParseCompression(c.Dump.Compression)
	layout, _ := dump.ParseLayout(c.Dump.Layout)
	return dump.Options{Compression: comp, Layout: layout}
}
