//go:build !linux && !darwin

package treehash

// SystemMemoryBytes returns 0 on platforms without a RAM probe; the planner
// then assumes 2 GiB.
func SystemMemoryBytes() uint64 { return 0 }
