package engine

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/cpuid/v2"

	"github.com/sanonone/spikegrid/pkg/core/kernel"
	"github.com/sanonone/spikegrid/pkg/metrics"
)

// shardAlign is the number of slots covered by one cache line of the int32
// cursor arrays. Shard boundaries are rounded up to it so adjacent workers
// never write the same line.
var shardAlign = func() int {
	line := int(cpuid.CPU.CacheLine)
	if line <= 0 {
		line = 64
	}
	return line / 4
}()

// workers resolves the configured worker count; 0 means one per CPU.
func (e *Engine) workers() int {
	w := e.opts.Workers
	if w == 0 {
		w = runtime.NumCPU()
	}
	if w < 1 {
		w = 1
	}
	return w
}

// Advance runs one simulation step over every edge slot and increments the
// step counter. The engine picks the sequential or the shard-parallel path
// from the configured worker count; both paths call the same resolved kernel
// handles and produce identical state.
func (e *Engine) Advance() {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	n := e.Syn.Capacity()
	w := e.workers()

	path := "sequential"
	if w > 1 && n >= shardAlign*w {
		path = "parallel"
		e.advanceParallel(n, w)
	} else {
		kernel.AdvanceRange(e.Syn, 0, n, e.opts.DeltaT, e.kern)
	}

	atomic.AddUint64(&e.step, 1)
	atomic.AddInt64(&e.stepsSince, 1)
	metrics.StepDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
}

// advanceParallel splits the slot range into per-worker shards. Edges never
// span shards (a shard boundary is a slot boundary), and deposits into the
// shared accumulator are atomic, so no further coordination is needed beyond
// the final wait.
func (e *Engine) advanceParallel(n, w int) {
	per := (n + w - 1) / w
	if r := per % shardAlign; r != 0 {
		per += shardAlign - r
	}

	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += per {
		hi := lo + per
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			kernel.AdvanceRange(e.Syn, lo, hi, e.opts.DeltaT, e.kern)
		}(lo, hi)
	}
	wg.Wait()
}

// AdvanceN runs n consecutive simulation steps.
func (e *Engine) AdvanceN(n int) {
	for i := 0; i < n; i++ {
		e.Advance()
	}
}
