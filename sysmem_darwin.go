//go:build darwin

package treehash

import "golang.org/x/sys/unix"

// SystemMemoryBytes returns total RAM from the hw.memsize sysctl, or 0 if
// it cannot be read.
func SystemMemoryBytes() uint64 {
	n, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return 0
	}
	return n
}
