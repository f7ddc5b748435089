//go:build darwin

package sysinfo

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Memory reads physical memory totals from sysctl. Only total and free
// page counts are available; inactive pages count as free.
func (OSProbe) Memory() (Memory, error) {
	total, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return Memory{}, fmt.Errorf("sysctl hw.memsize: %w", err)
	}
	pageSize, err := unix.SysctlUint32("hw.pagesize")
	if err != nil {
		return Memory{}, fmt.Errorf("sysctl hw.pagesize: %w", err)
	}
	freePages, err := unix.SysctlUint32("vm.page_free_count")
	if err != nil {
		return Memory{}, fmt.Errorf("sysctl vm.page_free_count: %w", err)
	}
	return Memory{
		TotalBytes: total,
		FreeBytes:  uint64(freePages) * uint64(pageSize),
	}, nil
}

// LoadAverage reads the load averages from the vm.loadavg sysctl.
func (OSProbe) LoadAverage() (Load, error) {
	raw, err := unix.SysctlRaw("vm.loadavg")
	if err != nil {
		return Load{}, fmt.Errorf("sysctl vm.loadavg: %w", err)
	}
	load, err := parseLoadavgSysctl(raw)
	if err != nil {
		return Load{}, fmt.Errorf("sysctl vm.loadavg: %w", err)
	}
	return load, nil
}

// DiskFree reports free and total bytes for the filesystem containing path.
func (OSProbe) DiskFree(path string) (free, total uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, fmt.Errorf("statfs %q: %w", path, err)
	}
	bsize := uint64(st.Bsize)
	return uint64(st.Bavail) * bsize, uint64(st.Blocks) * bsize, nil
}
