package intrinsic

import (
	"runtime"
	"sync"
)

// numStripes returns the number of stripes parallelStripes uses for n items.
func numStripes(n int) int {
	if n <= 0 {
		return 0
	}
	return min(runtime.NumCPU(), n)
}

// parallelStripes splits [0, n) into numStripes(n) contiguous stripes and
// runs fn on each stripe in its own goroutine. fn must only write to outputs
// owned by its stripe.
func parallelStripes(n int, fn func(part, start, end int)) {
	numWorkers := numStripes(n)
	if numWorkers == 0 {
		return
	}
	if numWorkers == 1 {
		fn(0, 0, n)
		return
	}

	var wg sync.WaitGroup
	perWorker := n / numWorkers
	wg.Add(numWorkers)
	for i := range numWorkers {
		start := i * perWorker
		end := (i + 1) * perWorker
		// The last stripe takes the remainder.
		if i == numWorkers-1 {
			end = n
		}
		go func(part, start, end int) {
			defer wg.Done()
			fn(part, start, end)
		}(i, start, end)
	}
	wg.Wait()
}
