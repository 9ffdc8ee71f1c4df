package parallel

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestRunVisitsEveryCellOnce(t *testing.T) {
	for _, lanes := range []int{0, 1, 3, 64, 1000} {
		hits := make([]atomic.Int32, 100)
		Run(lanes, len(hits), nil, func(cell int) { hits[cell].Add(1) })
		for i := range hits {
			if n := hits[i].Load(); n != 1 {
				t.Fatalf("lanes=%d cell %d visited %d times", lanes, i, n)
			}
		}
	}
}

func TestRunOrder(t *testing.T) {
	order := []int{3, 2, 1, 0}
	var got [4]int
	Run(1, 4, order, func(cell int) { got[cell]++ })
	if got != [4]int{1, 1, 1, 1} {
		t.Fatalf("got %v", got)
	}
}

func TestRunEmpty(t *testing.T) {
	Run(4, 0, nil, func(int) { t.Fatal("called") })
}

var errBoom = errors.New("boom")

func TestRunRepanics(t *testing.T) {
	defer func() {
		r := recover()
		p, ok := r.(*LanePanic)
		if !ok || !errors.Is(p, errBoom) {
			t.Fatalf("recovered %v", r)
		}
	}()
	Run(4, 16, nil, func(cell int) {
		if cell == 7 {
			panic(errBoom)
		}
	})
	t.Fatal("Run returned normally")
}
