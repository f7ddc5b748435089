//go:build !linux && !darwin

package sysinfo

import "errors"

// ErrUnsupported is returned on platforms without resource probe support.
// Checkers convert it into a warning rather than an error — an unprobeable
// host is not a failing host.
var ErrUnsupported = errors.New("sysinfo: not supported on this platform")

// Memory is unsupported on this platform.
func (OSProbe) Memory() (Memory, error) { return Memory{}, ErrUnsupported }

// LoadAverage is unsupported on this platform.
func (OSProbe) LoadAverage() (Load, error) { return Load{}, ErrUnsupported }

// DiskFree is unsupported on this platform.
func (OSProbe) DiskFree(string) (uint64, uint64, error) { return 0, 0, ErrUnsupported }
