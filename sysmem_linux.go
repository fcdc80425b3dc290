//go:build linux

package treehash

import "golang.org/x/sys/unix"

// SystemMemoryBytes returns total RAM from sysinfo(2), or 0 if the call
// fails.
func SystemMemoryBytes() uint64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0
	}
	return uint64(info.Totalram) * uint64(info.Unit)
}
