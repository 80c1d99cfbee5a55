package shm

import (
	"errors"
	"fmt"
)

// ErrInvalidLayout is returned for a buffer that cannot be split into equal regions.
var ErrInvalidLayout = errors.New("invalid buffer layout")

// Layout describes how a buffer of Len values is partitioned into Regions
// contiguous regions of equal size.
type Layout struct {
	Len     int
	Regions int
}

// NewLayout validates and returns a layout.
func NewLayout(length, regions int) (Layout, error) {
	switch {
	case length <= 0:
		return Layout{}, fmt.Errorf("%w: length %d", ErrInvalidLayout, length)
	case regions <= 0:
		return Layout{}, fmt.Errorf("%w: %d regions", ErrInvalidLayout, regions)
	case length%regions != 0:
		return Layout{}, fmt.Errorf("%w: length %d not divisible by %d regions", ErrInvalidLayout, length, regions)
	}
	return Layout{Len: length, Regions: regions}, nil
}

// RegionSize returns the number of values in each region.
func (l Layout) RegionSize() int {
	if l.Regions == 0 {
		return 0
	}
	return l.Len / l.Regions
}

// Contains reports whether region is a valid region index.
func (l Layout) Contains(region int) bool {
	return region >= 0 && region < l.Regions
}

// Span returns the half-open index range [start, end) of a region.
func (l Layout) Span(region int) (start, end int, ok bool) {
	if !l.Contains(region) {
		return 0, 0, false
	}
	size := l.RegionSize()
	start = region * size
	return start, start + size, true
}
