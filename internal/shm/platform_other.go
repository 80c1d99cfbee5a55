//go:build !linux

package shm

import (
	"context"
	"errors"
)

// ErrUnsupported is returned on platforms without a /dev/shm style namespace.
var ErrUnsupported = errors.New("shared memory regions are only implemented on linux")

// MapRegion maps or creates a shared memory region.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	return nil, ErrUnsupported
}

// UnmapRegion unmaps the shared memory region.
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	return ErrUnsupported
}

// UnlinkRegion removes the object's name from the system namespace.
func UnlinkRegion(path string) error {
	return ErrUnsupported
}
