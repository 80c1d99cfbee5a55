package shm

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
)

// CanCreate reports whether size bytes fit in the filesystem holding dir. An
// empty dir means DefaultDir. Only tmpfs under /dev/shm is checked, anything
// else always returns true.
func CanCreate(size uint64, dir string) bool {
	if dir == "" {
		dir = DefaultDir
	}
	clean := filepath.Clean(dir)
	if clean != DefaultDir && !strings.HasPrefix(clean, DefaultDir+"/") {
		return true
	}
	stat, err := disk.Usage(DefaultDir)
	if err != nil {
		return true
	}
	return stat.Free >= size
}

// PathExists reports whether a named object is present.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
