// Package pipeline regenerates chunks: raw cells in, palette, index stream
// and visible faces out.
//
// Phases of one chunk always run in order (write raw, build, extract, mark
// valid). Different chunks may regenerate concurrently since their heap
// regions never overlap.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	xxhash "github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/voxelsplace/voxcore/builder"
	"github.com/voxelsplace/voxcore/chunk"
	"github.com/voxelsplace/voxcore/dump"
	"github.com/voxelsplace/voxcore/logging"
	"github.com/voxelsplace/voxcore/mesh"
)

var ErrRawSize = errors.New("pipeline: raw cell count does not match layout")

// Result reports one regeneration.
type Result struct {
	Handle  chunk.Handle
	Skipped bool // raw content unchanged and mesh still valid
	Build   builder.Stats
	Faces   int
	Took    time.Duration
}

// Job pairs a chunk with its new raw content.
type Job struct {
	Handle chunk.Handle
	Raw    []uint32
}

type Pipeline struct {
	store     *chunk.Store
	builder   *builder.Builder
	extractor *mesh.Extractor
	workers   int
}

// New wires a pipeline. workers bounds how many chunks RegenerateAll runs
// at once; zero means four.
func New(store *chunk.Store, b *builder.Builder, e *mesh.Extractor, workers int) *Pipeline {
	if workers <= 0 {
		workers = 4
	}
	return &Pipeline{store: store, builder: b, extractor: e, workers: workers}
}

func (p *Pipeline) Store() *chunk.Store { return p.store }

// Regenerate writes raw into h and rebuilds everything derived from it.
func (p *Pipeline) Regenerate(ctx context.Context, h chunk.Handle, raw []uint32) (Result, error) {
	v, err := p.store.View(h)
	if err != nil {
		return Result{}, err
	}
	if len(raw) != len(v.Raw) {
		return Result{}, fmt.Errorf("%w: got %d, want %d", ErrRawSize, len(raw), len(v.Raw))
	}
	sum := digest(raw)
	if v.Meta.MeshValid.Load() && v.Meta.Digest.Load() == sum {
		return Result{Handle: h, Skipped: true}, nil
	}
	copy(v.Raw, raw)
	return p.rebuild(ctx, h, v, sum)
}

// Refresh rebuilds h from the raw cells already in its region.
func (p *Pipeline) Refresh(ctx context.Context, h chunk.Handle) (Result, error) {
	v, err := p.store.View(h)
	if err != nil {
		return Result{}, err
	}
	return p.rebuild(ctx, h, v, digest(v.Raw))
}

func (p *Pipeline) rebuild(ctx context.Context, h chunk.Handle, v chunk.View, sum uint64) (Result, error) {
	start := time.Now()
	v.Meta.MeshValid.Store(false)
	st, err := p.builder.Build(ctx, h)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: build %v: %w", h, err)
	}
	v.Meta.FaceCount.Store(0)
	n, err := p.extractor.Extract(ctx, h)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: extract %v: %w", h, err)
	}
	v.Meta.Digest.Store(sum)
	v.Meta.MeshValid.Store(true)
	res := Result{Handle: h, Build: st, Faces: n, Took: time.Since(start)}
	logging.Logger().Debug("chunk regenerated", "chunk", h.String(), "entries", st.Entries, "faces", n, "took", res.Took)
	return res, nil
}

// RegenerateAll runs jobs concurrently. Jobs must name distinct chunks. The
// first error cancels the jobs not yet started.
func (p *Pipeline) RegenerateAll(ctx context.Context, jobs []Job) ([]Result, error) {
	seen := make(map[chunk.Handle]struct{}, len(jobs))
	for _, j := range jobs {
		if _, dup := seen[j.Handle]; dup {
			return nil, fmt.Errorf("pipeline: chunk %v queued twice", j.Handle)
		}
		seen[j.Handle] = struct{}{}
	}
	results := make([]Result, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, j := range jobs {
		g.Go(func() error {
			r, err := p.Regenerate(ctx, j.Handle, j.Raw)
			results[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// ApplyEdits patches h's raw cells and regenerates the chunk.
func (p *Pipeline) ApplyEdits(ctx context.Context, h chunk.Handle, edits []dump.Edit) (Result, error) {
	v, err := p.store.View(h)
	if err != nil {
		return Result{}, err
	}
	raw := append([]uint32(nil), v.Raw...)
	if err := dump.ApplyEdits(raw, edits); err != nil {
		return Result{}, err
	}
	return p.Regenerate(ctx, h, raw)
}

func digest(raw []uint32) uint64 {
	d := xxhash.New()
	var b [4]byte
	for _, v := range raw {
		b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
		_, _ = d.Write(b[:])
	}
	return d.Sum64()
}
