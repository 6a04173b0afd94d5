//go:build linux || darwin

package memlimit

import "golang.org/x/sys/unix"

func setAddressSpace(limit uint64) error {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_AS, &rl); err != nil {
		return err
	}
	if limit > rl.Max {
		limit = rl.Max
	}
	rl.Cur = limit
	return unix.Setrlimit(unix.RLIMIT_AS, &rl)
}
