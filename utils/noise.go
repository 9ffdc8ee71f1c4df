package utils

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/voxelsplace/voxcore/chunk"
	"github.com/voxelsplace/voxcore/config"
	"github.com/voxelsplace/voxcore/dump"
	"github.com/voxelsplace/voxcore/logging"
)

// NoiseChunk fills percentage% of d's cells with random block IDs in
// [1, blocks]. Everything else is air.
func NoiseChunk(d chunk.Dims, percentage float64, blocks int, r *rand.Rand) []uint32 {
	percentage = min(max(percentage, 0), 100)
	blocks = max(blocks, 1)
	total := d.Cells()
	want := min(int(float64(total)*(percentage/100.0)+0.5), total)

	idx := make([]int, total)
	for i := range idx {
		idx[i] = i
	}
	// partial Fisher-Yates: only the first want positions are needed
	for i := 0; i < want; i++ {
		j := i + r.Intn(total-i)
		idx[i], idx[j] = idx[j], idx[i]
	}

	raw := make([]uint32, total)
	for _, i := range idx[:want] {
		raw[i] = uint32(1 + r.Intn(blocks))
	}
	return raw
}

// RunGenNoise writes amount dumps named 0.vxcd..(amount-1).vxcd into outDir.
// Each file's fill percentage is drawn uniformly from [minP, maxP]. A zero
// seed uses the clock.
func RunGenNoise(cfg config.Config, minP, maxP float64, blocks, amount int, outDir string, seed int64) error {
	amount = max(amount, 0)
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	minP, maxP = max(minP, 0), min(maxP, 100)
	if maxP < minP {
		minP, maxP = maxP, minP
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	d, opts := cfg.Dims(), cfg.DumpOptions()
	base := uint64(seed)
	for i := 0; i < amount; i++ {
		const weyl = uint64(0x9e3779b97f4a7c15)
		s := base ^ (uint64(i)+1)*weyl
		r := rand.New(rand.NewSource(int64(s & 0x7fffffffffffffff)))

		perc := minP
		if maxP > minP {
			perc = minP + r.Float64()*(maxP-minP)
		}
		b, err := dump.Encode(d, NoiseChunk(d, perc, blocks, r), opts)
		if err != nil {
			return err
		}
		path := filepath.Join(outDir, fmt.Sprintf("%d.vxcd", i))
		if err := os.WriteFile(path, b, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	logging.Logger().Info("noise generated", "dir", outDir, "chunks", amount, "dims", d.String())
	return nil
}
