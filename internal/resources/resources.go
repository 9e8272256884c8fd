// Package resources sizes the bounded worker pool that runs DAG steps
// in parallel (spec section 5: "parallelism ... is at the step level
// via a bounded worker pool sized by a configured core count"). It
// prefers an explicit configured count, then a cgroup-detected CPU
// quota on Linux (github.com/ja7ad/consumption/pkg/system/cgroup),
// then runtime.NumCPU.
package resources

import "runtime"

// WorkerCount returns the number of workers the DAG executor should
// run with. configured <= 0 means "auto": detect from the cgroup CPU
// quota (Linux) and fall back to the Go runtime's visible CPU count.
// The result is always >= 1.
func WorkerCount(configured int) int {
	if configured > 0 {
		return configured
	}
	if n := quotaCPUs(); n > 0 {
		return n
	}
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}
