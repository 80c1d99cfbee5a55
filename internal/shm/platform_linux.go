//go:build linux

package shm

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// MapRegion maps or creates a shared memory region (Linux implementation).
//
// With Create set the object is created exclusively; an object of the same name
// left behind by a crashed run is unlinked and created again.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Size <= 0 {
		return nil, fmt.Errorf("invalid region size %d", opts.Size)
	}
	path := opts.Path()
	flags := unix.O_RDWR | unix.O_CLOEXEC
	if opts.Create {
		flags |= unix.O_CREAT | unix.O_EXCL
	}
	stale := false
	fd, err := unix.Open(path, flags, 0600)
	if opts.Create && errors.Is(err, unix.EEXIST) {
		if err := unix.Unlink(path); err != nil && !errors.Is(err, unix.ENOENT) {
			return nil, fmt.Errorf("unlink stale %s: %w", path, err)
		}
		stale = true
		fd, err = unix.Open(path, flags, 0600)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// the mapping keeps the object alive, the descriptor is not needed afterwards
	defer func() { _ = unix.Close(fd) }()

	if opts.Create {
		if err := unix.Ftruncate(fd, int64(opts.Size)); err != nil {
			_ = unix.Unlink(path)
			return nil, fmt.Errorf("ftruncate: %w", err)
		}
	} else {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			return nil, fmt.Errorf("fstat: %w", err)
		}
		if st.Size < int64(opts.Size) {
			return nil, fmt.Errorf("object %s has %d bytes, want %d", path, st.Size, opts.Size)
		}
	}
	addr, err := unix.Mmap(fd, 0, opts.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		if opts.Create {
			_ = unix.Unlink(path)
		}
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &MappedRegion{
		Addr:          addr,
		Path:          path,
		ReplacedStale: stale,
	}, nil
}

// UnmapRegion unmaps the shared memory region (Linux implementation).
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := unix.Munmap(region.Addr); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	region.Addr = nil
	return nil
}

// UnlinkRegion removes the object's name from the system namespace.
func UnlinkRegion(path string) error {
	if err := unix.Unlink(path); err != nil {
		return fmt.Errorf("unlink %s: %w", path, err)
	}
	return nil
}
