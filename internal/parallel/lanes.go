// Package parallel runs per-cell kernels across a fixed number of lanes.
package parallel

import (
	"fmt"
	"runtime"
	"sync"
)

// Lanes normalises a lane count; n <= 0 means GOMAXPROCS.
func Lanes(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// LanePanic carries a panic raised inside a lane back to the caller.
type LanePanic struct {
	Lane  int
	Value any
}

func (p *LanePanic) Error() string { return fmt.Sprintf("lane %d: %v", p.Lane, p.Value) }

// Unwrap exposes the panic value when it is an error.
func (p *LanePanic) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}

// Run calls fn for every position 0..n-1, striding positions across lanes,
// and returns once all lanes are done. order, when non-nil, maps a position
// to the cell passed to fn. A panic in any lane is re-raised on the calling
// goroutine as a *LanePanic after the others finish.
func Run(lanes, n int, order []int, fn func(cell int)) {
	lanes = min(Lanes(lanes), max(n, 1))
	var (
		wg    sync.WaitGroup
		once  sync.Once
		fault *LanePanic
	)
	wg.Add(lanes)
	for lane := range lanes {
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					once.Do(func() { fault = &LanePanic{Lane: lane, Value: r} })
				}
			}()
			for k := lane; k < n; k += lanes {
				cell := k
				if order != nil {
					cell = order[k]
				}
				fn(cell)
			}
		}()
	}
	wg.Wait()
	if fault != nil {
		panic(fault)
	}
}
