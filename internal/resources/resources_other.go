//go:build !linux

package resources

// quotaCPUs is a no-op off Linux; cgroup detection is a Linux-only
// concept, so WorkerCount falls straight through to runtime.NumCPU.
func quotaCPUs() int { return 0 }
