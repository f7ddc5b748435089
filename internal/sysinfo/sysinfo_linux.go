//go:build linux

package sysinfo

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Memory reads physical memory totals via sysinfo(2). Buffer pages count
// as free — the kernel reclaims them under pressure.
func (OSProbe) Memory() (Memory, error) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return Memory{}, fmt.Errorf("sysinfo: %w", err)
	}
	unit := uint64(si.Unit)
	if unit == 0 {
		unit = 1
	}
	return Memory{
		TotalBytes: uint64(si.Totalram) * unit,
		FreeBytes:  (uint64(si.Freeram) + uint64(si.Bufferram)) * unit,
	}, nil
}

// LoadAverage reads the load averages via sysinfo(2). The kernel reports
// them in 16.16 fixed point.
func (OSProbe) LoadAverage() (Load, error) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return Load{}, fmt.Errorf("sysinfo: %w", err)
	}
	const scale = 1 << 16
	return Load{
		One:     float64(si.Loads[0]) / scale,
		Five:    float64(si.Loads[1]) / scale,
		Fifteen: float64(si.Loads[2]) / scale,
	}, nil
}

// DiskFree reports free and total bytes for the filesystem containing path
// via statfs(2). Free is the space available to unprivileged users.
func (OSProbe) DiskFree(path string) (free, total uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, fmt.Errorf("statfs %q: %w", path, err)
	}
	bsize := uint64(st.Bsize)
	return uint64(st.Bavail) * bsize, uint64(st.Blocks) * bsize, nil
}
