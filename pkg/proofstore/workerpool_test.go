package proofstore

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNewCPUPoolClampsSize(t *testing.T) {
	cases := []struct {
		requested, want int
	}{
		{0, 2},
		{1, 2},
		{2, 2},
		{5, 5},
		{8, 8},
		{9, 8},
		{1000, 8},
	}
	for _, c := range cases {
		p := newCPUPool(c.requested)
		if got := cap(p.sem); got != c.want {
			t.Errorf("newCPUPool(%d) pool size = %d, want %d", c.requested, got, c.want)
		}
	}
}

func TestSubmitCPUDeliversResult(t *testing.T) {
	p := newCPUPool(2)
	out := submitCPU(p, func() (int, error) { return 42, nil })
	res := <-out
	if res.err != nil || res.val != 42 {
		t.Errorf("got %+v, want val=42 err=nil", res)
	}
}

func TestSubmitCPUBoundsConcurrency(t *testing.T) {
	const size = 2
	p := newCPUPool(size)

	var inFlight, maxInFlight atomic.Int64
	release := make(chan struct{})

	results := make([]<-chan asyncResult[int], 0, 6)
	for i := 0; i < 6; i++ {
		results = append(results, submitCPU(p, func() (int, error) {
			n := inFlight.Add(1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			<-release
			inFlight.Add(-1)
			return 0, nil
		}))
	}

	// Give every task a chance to start; only `size` of them can be
	// running at once, the rest block waiting for the semaphore.
	time.Sleep(50 * time.Millisecond)
	close(release)
	for _, r := range results {
		<-r
	}

	if got := maxInFlight.Load(); got > int64(size) {
		t.Errorf("observed %d tasks in flight at once, want at most %d", got, size)
	}
}
