// Package fsys defines a minimal filesystem interface for testability.
//
// Production code uses [OSFS] which delegates to the os package.
// Tests use [Fake] which provides an in-memory filesystem with spy
// capabilities and error injection.
package fsys

import (
	"os"
)

// FS abstracts the filesystem operations used by the config loader, the
// filesystem checker, and its remediation paths. It covers exactly the
// operations those callers need — no more.
type FS interface {
	// MkdirAll creates a directory path and all parents that do not exist.
	MkdirAll(path string, perm os.FileMode) error

	// WriteFile writes data to the named file, creating it if necessary.
	WriteFile(name string, data []byte, perm os.FileMode) error

	// ReadFile reads the named file and returns its contents.
	ReadFile(name string) ([]byte, error)

	// Stat returns file info for the named file.
	Stat(name string) (os.FileInfo, error)

	// ReadDir reads the named directory and returns its entries.
	ReadDir(name string) ([]os.DirEntry, error)

	// Chmod changes the mode of the named file.
	Chmod(name string, mode os.FileMode) error

	// Remove removes the named file or empty directory.
	Remove(name string) error
}

// OSFS implements [FS] by delegating to the os package.
type OSFS struct{}

// MkdirAll delegates to [os.MkdirAll].
func (OSFS) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// WriteFile delegates to [os.WriteFile].
func (OSFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// ReadFile delegates to [os.ReadFile].
func (OSFS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// Stat delegates to [os.Stat].
func (OSFS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

// ReadDir delegates to [os.ReadDir].
func (OSFS) ReadDir(name string) ([]os.DirEntry, error) {
	return os.ReadDir(name)
}

// Chmod delegates to [os.Chmod].
func (OSFS) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(name, mode)
}

// Remove delegates to [os.Remove].
func (OSFS) Remove(name string) error {
	return os.Remove(name)
}
