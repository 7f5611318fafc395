package allocator

import "golang.org/x/sys/unix"

// SystemMemoryLimit returns the smaller of physical RAM and the process
// address space limit, or 0 when neither is known.
func SystemMemoryLimit() uint64 {
	limit := rlimitAS()
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err == nil {
		ram := uint64(info.Totalram) * uint64(info.Unit)
		if ram > 0 && (limit == 0 || ram < limit) {
			limit = ram
		}
	}
	return limit
}
