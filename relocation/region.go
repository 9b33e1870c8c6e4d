// SPDX-License-Identifier: MIT
//
// Copyright (c) 2023, 2024 Adrian "asie" Siekierka
// Copyright (c) 2026 The metaedit Authors

package relocation

import (
	"slices"
)

// Placeable is a span of bytes which can be assigned an offset inside a Region.
type Placeable interface {
	Offset() uint32
	SetOffset(uint32)
	Size() uint32
	Alignment() uint32
}

// Region is a bounded address range holding non-overlapping, offset-ordered entries.
type Region[T Placeable] struct {
	offset  uint32
	size    uint32
	entries []T
}

func NewRegion[T Placeable](offset uint32, size uint32) *Region[T] {
	return &Region[T]{
		offset:  offset,
		size:    size,
		entries: make([]T, 0),
	}
}

func AlignUp(value uint32, align uint32) uint32 {
	if align <= 1 {
		return value
	}
	return (value + align - 1) / align * align
}

func alignUp64(value uint64, align uint32) uint64 {
	if align <= 1 {
		return value
	}
	a := uint64(align)
	return (value + a - 1) / a * a
}

func (r Region[T]) Offset() uint32 {
	return r.offset
}

func (r Region[T]) Size() uint32 {
	return r.size
}

func (r Region[T]) end() uint64 {
	return uint64(r.offset) + uint64(r.size)
}

func (r Region[T]) Empty() bool {
	return len(r.entries) == 0
}

func (r Region[T]) Entries() []T {
	return r.entries
}

// UsedEnd returns the exclusive end of the last placed entry, or the region
// start when nothing has been placed.
func (r Region[T]) UsedEnd() uint32 {
	if r.Empty() {
		return r.offset
	}
	last := r.entries[len(r.entries)-1]
	return last.Offset() + last.Size()
}

// UsedSize is the number of bytes between the region start and UsedEnd,
// gaps included.
func (r Region[T]) UsedSize() uint32 {
	return r.UsedEnd() - r.offset
}

// gap returns the bounds of the free space preceding entries[i]; i == len(entries)
// denotes the space after the last entry.
func (r Region[T]) gap(i int) (uint64, uint64) {
	start := uint64(r.offset)
	if i > 0 {
		prev := r.entries[i-1]
		start = uint64(prev.Offset()) + uint64(prev.Size())
	}
	end := r.end()
	if i < len(r.entries) {
		end = uint64(r.entries[i].Offset())
	}
	return start, end
}

// findGap returns the first gap inside [offsetMin, offsetMax) able to hold
// size bytes at the given alignment.
func (r Region[T]) findGap(offsetMin uint64, offsetMax uint64, size uint32, align uint32) (bool, uint64, int) {
	for i := 0; i <= len(r.entries); i++ {
		gapStart, gapEnd := r.gap(i)
		gapStart = max(gapStart, offsetMin)
		gapEnd = min(gapEnd, offsetMax)
		if gapStart >= gapEnd && size > 0 {
			continue
		}

		offset := alignUp64(gapStart, align)
		if offset+uint64(size) <= gapEnd {
			return true, offset, i
		}
	}

	return false, 0, 0
}

// FindGap reports the first aligned offset at which size bytes would fit.
func (r Region[T]) FindGap(size uint32, align uint32) (bool, uint32) {
	ok, offset, _ := r.findGap(uint64(r.offset), r.end(), size, align)
	return ok, uint32(offset)
}

// Place assigns entry the first free offset honouring its alignment.
//
// offsetRange optionally restricts placement: one element pins the entry to
// exactly that offset, two elements give an inclusive [min, max] window for
// the entry start. With simulate set the region is left unmodified.
func (r *Region[T]) Place(entry T, offsetRange []uint32, simulate bool) bool {
	offsetMin := uint64(r.offset)
	offsetMax := r.end()

	if offsetRange != nil {
		if len(offsetRange) == 2 {
			offsetMin = max(offsetMin, uint64(offsetRange[0]))
			offsetMax = min(offsetMax, uint64(offsetRange[1])+uint64(entry.Size()))
		} else if len(offsetRange) == 1 {
			if uint64(offsetRange[0])%uint64(max(entry.Alignment(), 1)) != 0 {
				return false
			}
			offsetMin = max(offsetMin, uint64(offsetRange[0]))
			offsetMax = min(offsetMax, uint64(offsetRange[0])+uint64(entry.Size()))
		} else {
			panic("Unsupported offsetRange length")
		}
	}

	if offsetMin > offsetMax {
		return false
	}

	ok, offset, index := r.findGap(offsetMin, offsetMax, entry.Size(), entry.Alignment())
	if !ok {
		return false
	}

	if !simulate {
		entry.SetOffset(uint32(offset))
		r.entries = slices.Insert(r.entries, index, entry)
	}
	return true
}
