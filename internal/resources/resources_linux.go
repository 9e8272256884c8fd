//go:build linux

package resources

import (
	"bufio"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/ja7ad/consumption/pkg/system/cgroup"
)

// quotaCPUs returns the number of whole CPUs the current cgroup's CPU
// quota allows, or 0 if no quota is in effect (or it cannot be read),
// in which case the caller should fall back to runtime.NumCPU.
func quotaCPUs() int {
	version, _, err := cgroup.Detect()
	if err != nil {
		return 0
	}
	switch version {
	case cgroup.V2, cgroup.Hybrid:
		if n := quotaCPUsV2("/sys/fs/cgroup/cpu.max"); n > 0 {
			return n
		}
		return 0
	case cgroup.V1:
		return quotaCPUsV1("/sys/fs/cgroup/cpu/cpu.cfs_quota_us", "/sys/fs/cgroup/cpu/cpu.cfs_period_us")
	default:
		return 0
	}
}

// quotaCPUsV2 parses a cgroup v2 "cpu.max" file, whose content is
// either "max <period>" (unlimited) or "<quota> <period>" in
// microseconds.
func quotaCPUsV2(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return 0
	}
	fields := strings.Fields(sc.Text())
	if len(fields) != 2 || fields[0] == "max" {
		return 0
	}
	quota, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || quota <= 0 {
		return 0
	}
	period, err := strconv.ParseFloat(fields[1], 64)
	if err != nil || period <= 0 {
		return 0
	}
	return cpusFromRatio(quota / period)
}

// quotaCPUsV1 reads the cgroup v1 cpu.cfs_quota_us/cpu.cfs_period_us
// pair. A quota of -1 means unlimited.
func quotaCPUsV1(quotaPath, periodPath string) int {
	quota, err := readIntFile(quotaPath)
	if err != nil || quota <= 0 {
		return 0
	}
	period, err := readIntFile(periodPath)
	if err != nil || period <= 0 {
		return 0
	}
	return cpusFromRatio(float64(quota) / float64(period))
}

func readIntFile(path string) (int64, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

// cpusFromRatio rounds a fractional CPU quota down to a whole worker
// count, never exceeding the CPUs actually visible to the process and
// never returning fewer than 1.
func cpusFromRatio(ratio float64) int {
	n := int(math.Floor(ratio))
	if n < 1 {
		n = 1
	}
	if visible := runtime.NumCPU(); visible > 0 && n > visible {
		n = visible
	}
	return n
}
