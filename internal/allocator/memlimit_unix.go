//go:build linux || darwin

package allocator

import "golang.org/x/sys/unix"

// rlimitUnlimited covers RLIM_INFINITY on both linux and darwin.
const rlimitUnlimited = 1 << 62

// rlimitAS returns the soft address space limit, 0 when unlimited.
func rlimitAS() uint64 {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_AS, &rl); err != nil {
		return 0
	}
	if uint64(rl.Cur) >= rlimitUnlimited {
		return 0
	}
	return uint64(rl.Cur)
}
