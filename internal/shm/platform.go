// Package shm contains platform-specific helpers for the shared integer buffer.
package shm

import (
	"path/filepath"
	"strings"
)

// DefaultDir is where named shared memory objects live on Linux.
const DefaultDir = "/dev/shm"

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr []byte
	Path string
	// ReplacedStale is set when Create found and removed an object left by an earlier run.
	ReplacedStale bool
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	Dir    string
	Name   string
	Size   int
	Create bool
}

// Path returns the system-visible path of the object. A leading slash in Name,
// as in POSIX shm_open names, is ignored.
func (o MapOptions) Path() string {
	return ObjectPath(o.Dir, o.Name)
}

// ObjectPath joins a shared memory directory and an object name.
func ObjectPath(dir, name string) string {
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, strings.TrimPrefix(name, "/"))
}

// Function implementations are provided in platform-specific files (platform_linux.go, platform_other.go).
