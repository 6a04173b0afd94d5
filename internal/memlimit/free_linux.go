package memlimit

import (
	"os"

	"golang.org/x/sys/unix"
)

// Free returns an estimate of the memory available to a new allocation:
// free memory plus buffers and page cache.
func Free() (int64, error) {
	f, err := os.Open("/proc/meminfo")
	if err == nil {
		defer f.Close()
		if n, err := parseMeminfo(f); err == nil {
			return n, nil
		}
	}

	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return 0, err
	}
	unit := int64(si.Unit)
	if unit == 0 {
		unit = 1
	}
	return (int64(si.Freeram) + int64(si.Bufferram)) * unit, nil
}
