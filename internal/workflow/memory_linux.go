//go:build linux

package workflow

import "golang.org/x/sys/unix"

// availableMemory returns free plus buffer memory in bytes, or 0 when
// unknown.
func availableMemory() uint64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	return (uint64(info.Freeram) + uint64(info.Bufferram)) * unit
}
