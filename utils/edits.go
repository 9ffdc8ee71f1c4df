package utils

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/voxelsplace/voxcore/api"
	"github.com/voxelsplace/voxcore/config"
	"github.com/voxelsplace/voxcore/dump"
	"github.com/voxelsplace/voxcore/logging"
)

// RunApplyEdits applies a JSON edit document to a dump or a pack. A pack is
// patched entry by entry. A single dump takes the edits of the one chunk
// the document names.
func RunApplyEdits(doc []byte, inputPath, outputPath string) error {
	edits, err := api.EditsFromJSON(doc)
	if err != nil {
		return err
	}
	b, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	var out []byte
	if bytes.HasPrefix(b, []byte("VXCDPACK")) {
		out, err = api.PatchPack(b, edits)
	} else {
		var ed []dump.Edit
		if ed, err = single(edits); err == nil {
			out, err = api.PatchDump(b, ed)
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", inputPath, err)
	}
	if err := os.WriteFile(outputPath, out, 0o644); err != nil {
		return err
	}
	logging.Logger().Info("edits applied", "path", outputPath, "chunks", len(edits))
	return nil
}

// RunEdits2Dump applies a single-chunk edit document to an all-air chunk.
func RunEdits2Dump(cfg config.Config, doc []byte, outPath string) error {
	edits, err := api.EditsFromJSON(doc)
	if err != nil {
		return err
	}
	ed, err := single(edits)
	if err != nil {
		return err
	}
	d := cfg.Dims()
	raw := make([]uint32, d.Cells())
	if err := dump.ApplyEdits(raw, ed); err != nil {
		return err
	}
	b, err := dump.Encode(d, raw, cfg.DumpOptions())
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, b, 0o644)
}

// RunDiff writes the edit document that turns the dump at from into the
// dump at to.
func RunDiff(fromPath, toPath, outPath string) error {
	from, err := decodeFile(fromPath)
	if err != nil {
		return err
	}
	to, err := decodeFile(toPath)
	if err != nil {
		return err
	}
	if from.Dims != to.Dims {
		return fmt.Errorf("chunk dimensions differ: %v vs %v", from.Dims, to.Dims)
	}
	ed, err := dump.Diff(from.Raw, to.Raw)
	if err != nil {
		return err
	}
	doc, err := api.EditsToJSON(map[string][]dump.Edit{filepath.Base(toPath): ed})
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, doc, 0o644)
}

func decodeFile(path string) (*dump.Chunk, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := dump.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func single(edits map[string][]dump.Edit) ([]dump.Edit, error) {
	if len(edits) != 1 {
		return nil, fmt.Errorf("edit document names %d chunks, want 1", len(edits))
	}
	for _, ed := range edits {
		return ed, nil
	}
	return nil, nil
}
