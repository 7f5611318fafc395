package allocator

// ClampLimit lowers limit to the host memory limit. A zero limit means
// unlimited and is replaced by the host limit when one is known.
func ClampLimit(limit uint64) uint64 {
	sys := SystemMemoryLimit()
	if sys == 0 {
		return limit
	}
	if limit == 0 || limit > sys {
		return sys
	}
	return limit
}
