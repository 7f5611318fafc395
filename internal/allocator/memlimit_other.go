//go:build !linux && !darwin

package allocator

// SystemMemoryLimit is not probed on this platform.
func SystemMemoryLimit() uint64 { return 0 }
