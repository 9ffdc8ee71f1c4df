package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/voxelsplace/voxcore/dump"
	"github.com/voxelsplace/voxcore/logging"
)

// CreatePack reads dump files and writes a pack to outputFile. Entries are
// named by base file name and must share chunk dimensions.
func CreatePack(inputFiles []string, outputFile string, comp dump.Compression) error {
	if len(inputFiles) == 0 {
		return errors.New("no dump files provided")
	}
	type item struct {
		name string
		data []byte
		hdr  dump.Header
		err  error
	}
	items := make([]item, len(inputFiles))

	var wg sync.WaitGroup
	for i := range inputFiles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := inputFiles[i]
			b, err := os.ReadFile(path)
			if err != nil {
				items[i].err = err
				return
			}
			hdr, _, _, err := dump.ParseHeader(b)
			if err != nil {
				items[i].err = fmt.Errorf("%s: %w", path, err)
				return
			}
			items[i] = item{name: filepath.Base(path), data: b, hdr: hdr}
		}(i)
	}
	wg.Wait()

	var pk dump.Pack
	seen := make(map[string]struct{}, len(items))
	for i, it := range items {
		if it.err != nil {
			return it.err
		}
		if it.hdr.Dims != items[0].hdr.Dims {
			return fmt.Errorf("inconsistent chunk dimensions (%s: %v, %s: %v)",
				inputFiles[0], items[0].hdr.Dims, inputFiles[i], it.hdr.Dims)
		}
		if _, dup := seen[it.name]; dup {
			return fmt.Errorf("duplicate entry name %q", it.name)
		}
		seen[it.name] = struct{}{}
		pk.Add(it.name, it.data)
	}

	start := time.Now()
	data, err := pk.Marshal(comp)
	if err != nil {
		return err
	}
	logging.Logger().Info("pack written", "path", outputFile, "entries", len(items),
		"size", humanize.Bytes(uint64(len(data))), "took", time.Since(start))
	return os.WriteFile(outputFile, data, 0o644)
}

// UnpackToDir writes every pack entry into outputDir.
func UnpackToDir(packFile, outputDir string) error {
	data, err := os.ReadFile(packFile)
	if err != nil {
		return err
	}
	pk, _, err := dump.UnmarshalPack(data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(pk.Entries))
	for _, e := range pk.Entries {
		wg.Add(1)
		go func(e dump.PackEntry) {
			defer wg.Done()
			// entry names come from the file; keep writes inside outputDir
			name := filepath.Base(filepath.Clean("/" + e.Name))
			if err := os.WriteFile(filepath.Join(outputDir, name), e.Dump, 0o644); err != nil {
				errCh <- err
			}
		}(e)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}
