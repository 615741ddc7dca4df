package workflow

import "runtime"

// PoolSize returns the worker count for a batch of n inputs: the smallest of
// the configured cap (0 means no cap), the CPU count and the number of
// workers that fit in available memory, never below one.
func PoolSize(configured, inputs int, memPerWorkerMiB int) int {
	return poolSize(configured, runtime.NumCPU(), availableMemory(), uint64(max(memPerWorkerMiB, 0))<<20, inputs)
}

func poolSize(configured, cpus int, availMem, perWorker uint64, inputs int) int {
	n := max(cpus, 1)
	if configured > 0 && configured < n {
		n = configured
	}
	if availMem > 0 && perWorker > 0 {
		if fit := int(availMem / perWorker); fit < n {
			n = fit
		}
	}
	if inputs > 0 && inputs < n {
		n = inputs
	}
	return max(n, 1)
}
