package allocator

import "golang.org/x/sys/unix"

// SystemMemoryLimit returns the smaller of physical RAM and the process
// address space limit, or 0 when neither is known.
func SystemMemoryLimit() uint64 {
	limit := rlimitAS()
	if ram, err := unix.SysctlUint64("hw.memsize"); err == nil && ram > 0 {
		if limit == 0 || ram < limit {
			limit = ram
		}
	}
	return limit
}
