package utils

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/voxelsplace/voxcore/builder"
	"github.com/voxelsplace/voxcore/chunk"
	"github.com/voxelsplace/voxcore/config"
	"github.com/voxelsplace/voxcore/mesh"
	"github.com/voxelsplace/voxcore/pipeline"
)

// BenchReport sums one RegenerateAll pass over noise chunks.
type BenchReport struct {
	Chunks    int
	Faces     int
	Entries   int
	Dropped   int
	HeapWords int
	Took      time.Duration
}

// Bench allocates n chunks in one store, fills them with noise and
// regenerates them all through the pipeline.
func Bench(ctx context.Context, cfg config.Config, n int, fill float64, seed int64) (BenchReport, error) {
	l := cfg.Layout()
	s := chunk.NewStore(l, max(cfg.HeapCapacity(), n*l.ChunkWords()))
	lanes := cfg.WorkerLanes()
	p := pipeline.New(s, builder.New(s, builder.WithLanes(lanes)), mesh.New(s, mesh.WithLanes(lanes)), lanes)

	r := rand.New(rand.NewSource(seed))
	jobs := make([]pipeline.Job, n)
	for i := range jobs {
		h, err := s.Allocate()
		if err != nil {
			return BenchReport{}, fmt.Errorf("chunk %d: %w", i, err)
		}
		jobs[i] = pipeline.Job{Handle: h, Raw: NoiseChunk(l.Dims, fill, 255, r)}
	}

	start := time.Now()
	results, err := p.RegenerateAll(ctx, jobs)
	rep := BenchReport{Chunks: n, HeapWords: n * l.ChunkWords(), Took: time.Since(start)}
	if err != nil {
		return rep, err
	}
	for _, res := range results {
		rep.Faces += res.Faces
		rep.Entries += res.Build.Entries
		rep.Dropped += res.Build.Dropped
	}
	return rep, nil
}

// RunBench runs Bench and prints the report.
func RunBench(ctx context.Context, w io.Writer, cfg config.Config, n int, fill float64, seed int64) error {
	rep, err := Bench(ctx, cfg, n, fill, seed)
	if err != nil {
		return err
	}
	perChunk := time.Duration(0)
	if rep.Chunks > 0 {
		perChunk = rep.Took / time.Duration(rep.Chunks)
	}
	fmt.Fprintf(w, "%s chunks of %v in %v (%v/chunk)\n", humanize.Comma(int64(rep.Chunks)), cfg.Dims(), rep.Took, perChunk)
	fmt.Fprintf(w, "faces=%s palette entries=%s dropped=%d heap=%s\n",
		humanize.Comma(int64(rep.Faces)), humanize.Comma(int64(rep.Entries)), rep.Dropped,
		humanize.Bytes(uint64(rep.HeapWords)*4))
	return nil
}
