// Package memlimit applies a process memory budget and reports free memory.
package memlimit

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime/debug"
	"strconv"
	"strings"
)

// ErrUnsupported is returned where the platform lacks the needed facility.
var ErrUnsupported = errors.New("not supported on this platform")

// Apply sets the Go runtime soft memory limit to limit bytes. With hard it
// also lowers the address-space rlimit, so allocations beyond it fail
// instead of swapping. The address-space limit covers virtual memory the Go
// runtime reserves up front and should leave generous headroom. A limit of
// zero or less is a no-op.
func Apply(limit int64, hard bool) error {
	if limit <= 0 {
		return nil
	}
	debug.SetMemoryLimit(limit)
	if !hard {
		return nil
	}
	if err := setAddressSpace(uint64(limit)); err != nil {
		return fmt.Errorf("setting address space limit: %w", err)
	}
	return nil
}

// Reset removes the soft memory limit set by Apply.
func Reset() {
	debug.SetMemoryLimit(math.MaxInt64)
}

// meminfoFields are summed into the free-memory estimate: page cache and
// buffers can be reclaimed on demand.
var meminfoFields = map[string]bool{
	"MemFree:": true,
	"Buffers:": true,
	"Cached:":  true,
}

// parseMeminfo sums the reclaimable memory fields of a /proc/meminfo
// listing, in bytes.
func parseMeminfo(r io.Reader) (int64, error) {
	var total int64
	found := 0
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 || !meminfoFields[fields[0]] {
			continue
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing %s: %w", fields[0], err)
		}
		total += kb * 1024
		found++
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	if found == 0 {
		return 0, errors.New("no memory fields in meminfo")
	}
	return total, nil
}
