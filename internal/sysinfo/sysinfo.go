// Package sysinfo probes host resources for the system and filesystem
// checkers: physical memory, load averages, disk free space, and the Go
// runtime version. Production code uses [OSProbe]; tests inject a fake.
package sysinfo

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// Memory reports physical memory in bytes. Free includes reclaimable
// buffer/cache pages where the platform exposes them.
type Memory struct {
	TotalBytes uint64
	FreeBytes  uint64
}

// UsedPercent returns the used fraction of physical memory as a percentage.
func (m Memory) UsedPercent() float64 {
	if m.TotalBytes == 0 {
		return 0
	}
	used := m.TotalBytes - m.FreeBytes
	return float64(used) / float64(m.TotalBytes) * 100
}

// Load holds the 1-, 5-, and 15-minute load averages.
type Load struct {
	One     float64
	Five    float64
	Fifteen float64
}

// parseLoadavgSysctl decodes a BSD vm.loadavg sysctl buffer: three
// uint32 fixed-point averages followed by the scale as a C long. On
// 64-bit kernels struct padding puts the 8-byte scale at offset 16; on
// 32-bit kernels it is 4 bytes at offset 12. All supported platforms
// are little-endian.
func parseLoadavgSysctl(raw []byte) (Load, error) {
	if len(raw) < 16 {
		return Load{}, fmt.Errorf("short read (%d bytes)", len(raw))
	}
	var scale float64
	if len(raw) >= 24 {
		scale = float64(binary.LittleEndian.Uint64(raw[16:24]))
	} else {
		scale = float64(binary.LittleEndian.Uint32(raw[12:16]))
	}
	if scale == 0 {
		scale = 2048
	}
	return Load{
		One:     float64(binary.LittleEndian.Uint32(raw[0:4])) / scale,
		Five:    float64(binary.LittleEndian.Uint32(raw[4:8])) / scale,
		Fifteen: float64(binary.LittleEndian.Uint32(raw[8:12])) / scale,
	}, nil
}

// Probe abstracts host resource queries. All methods may be called
// concurrently.
type Probe interface {
	// Memory returns physical memory totals.
	Memory() (Memory, error)
	// LoadAverage returns the system load averages.
	LoadAverage() (Load, error)
	// DiskFree returns free and total bytes for the filesystem containing path.
	DiskFree(path string) (free, total uint64, err error)
	// NumCPU returns the number of logical CPUs.
	NumCPU() int
}

// OSProbe implements [Probe] against the running host. Platform-specific
// syscalls live in the build-tagged files.
type OSProbe struct{}

// NumCPU returns the logical CPU count.
func (OSProbe) NumCPU() int { return runtime.NumCPU() }

// GoMinor parses a runtime version string of the form "go1.25.0" (or a
// devel string containing one) and returns the minor version. Used by the
// runtime-version sub-check.
func GoMinor(version string) (int, error) {
	v := strings.TrimPrefix(version, "go")
	if i := strings.Index(v, "go"); i >= 0 {
		// devel strings embed the release, e.g. "devel go1.25-abcdef".
		v = v[i+2:]
	}
	parts := strings.SplitN(v, ".", 3)
	if len(parts) < 2 || parts[0] != "1" {
		return 0, fmt.Errorf("unrecognized runtime version %q", version)
	}
	minor := parts[1]
	if i := strings.IndexFunc(minor, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		minor = minor[:i]
	}
	n, err := strconv.Atoi(minor)
	if err != nil {
		return 0, fmt.Errorf("unrecognized runtime version %q", version)
	}
	return n, nil
}
