package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/voxelsplace/voxcore/api"
	"github.com/voxelsplace/voxcore/config"
	"github.com/voxelsplace/voxcore/export"
	"github.com/voxelsplace/voxcore/logging"
)

// RunRLE2Dump expands an RLE string into a chunk of the configured size and
// writes it as a dump.
func RunRLE2Dump(cfg config.Config, rle, outPath string) error {
	b, err := api.RLEToDump(rle, cfg.Dims(), cfg.DumpOptions())
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, b, 0o644); err != nil {
		return err
	}
	logging.Logger().Info("dump written", "path", outPath, "size", humanize.Bytes(uint64(len(b))))
	return nil
}

// RunDump2GLB meshes a dump file into a binary glTF file.
func RunDump2GLB(inPath, outPath string, greedy bool) error {
	b, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	start := time.Now()
	glb, err := api.DumpToGLB(b, greedy, export.BlockColor)
	if err != nil {
		return fmt.Errorf("%s: %w", inPath, err)
	}
	logging.Logger().Info("glb built", "path", outPath, "size", humanize.Bytes(uint64(len(glb))), "took", time.Since(start))
	return os.WriteFile(outPath, glb, 0o644)
}

// RunPack2GLB meshes every entry of a pack into one glTF scene.
func RunPack2GLB(inPath, outPath string, greedy bool) error {
	b, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	start := time.Now()
	glb, err := api.PackToGLB(b, greedy, export.BlockColor)
	if err != nil {
		return fmt.Errorf("%s: %w", inPath, err)
	}
	logging.Logger().Info("glb built", "path", outPath, "size", humanize.Bytes(uint64(len(glb))), "took", time.Since(start))
	return os.WriteFile(outPath, glb, 0o644)
}

// RunStats prints one line per dump file.
func RunStats(w io.Writer, paths ...string) error {
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		st, err := api.DumpStats(b)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		fmt.Fprintf(w, "%s: %v %s/%s palette=%d bits=%d solid=%s faces=%s raw=%s dump=%s ratio=%.2fx\n",
			filepath.Base(p), st.Dims, st.Compression, st.Layout,
			st.Entries, st.Bits, humanize.Comma(int64(st.Solid)), humanize.Comma(int64(st.Faces)),
			humanize.Bytes(uint64(st.RawBytes)), humanize.Bytes(uint64(st.DumpBytes)), st.Ratio)
	}
	return nil
}
