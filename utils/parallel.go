// Package utils holds small shared helpers for the solver packages.
package utils

import (
	"runtime"
	"sync"
)

// ParallelFor runs fn over contiguous chunks covering [0, n), fanned out
// across up to GOMAXPROCS goroutines, and returns after all chunks complete.
// Chunks are disjoint, so fn may write freely to per-index output slots.
// Small ranges run inline on the calling goroutine.
func ParallelFor(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	workers := runtime.GOMAXPROCS(0)
	const minChunk = 64
	if workers > n/minChunk {
		workers = n / minChunk
	}
	if workers <= 1 {
		fn(0, n)
		return
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}
