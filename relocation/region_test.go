// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package relocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type MockRegionEntry struct {
	offset uint32
	size   uint32
	align  uint32
}

func (r MockRegionEntry) Offset() uint32 {
	return r.offset
}

func (r *MockRegionEntry) SetOffset(offset uint32) {
	r.offset = offset
}

func (r MockRegionEntry) Size() uint32 {
	return r.size
}

func (r MockRegionEntry) Alignment() uint32 {
	return r.align
}

func NewMockRegionEntry(size uint32, align uint32) *MockRegionEntry {
	return &MockRegionEntry{
		offset: 0,
		size:   size,
		align:  align,
	}
}

func TestAddEntries(t *testing.T) {
	e1 := NewMockRegionEntry(64, 1)
	e2 := NewMockRegionEntry(32, 1)
	r := NewRegion[*MockRegionEntry](0, 1000)
	assert.True(t, r.Place(e1, nil, false), "first entry placement")
	assert.True(t, r.Place(e2, nil, false), "second entry placement")
	assert.Equal(t, uint32(0), e1.Offset(), "first entry offset")
	assert.Equal(t, uint32(64), e2.Offset(), "second entry offset")
	assert.Equal(t, uint32(96), r.UsedEnd())
}

func TestAddEntriesAlignment(t *testing.T) {
	// e1, e4, e3, e2, e6, e5
	e1 := NewMockRegionEntry(61, 4)
	e2 := NewMockRegionEntry(30, 4)
	e3 := NewMockRegionEntry(1, 2)
	e4 := NewMockRegionEntry(1, 1)
	e5 := NewMockRegionEntry(1, 128)
	e6 := NewMockRegionEntry(1, 16)
	r := NewRegion[*MockRegionEntry](0, 1000)
	assert.True(t, r.Place(e1, nil, false), "first entry placement")
	assert.True(t, r.Place(e2, nil, false), "second entry placement")
	assert.True(t, r.Place(e3, nil, false), "third entry placement")
	assert.True(t, r.Place(e4, nil, false), "fourth entry placement")
	assert.True(t, r.Place(e5, nil, false), "fifth entry placement")
	assert.True(t, r.Place(e6, nil, false), "sixth entry placement")
	assert.Equal(t, uint32(0), e1.Offset(), "first entry offset")
	assert.Equal(t, uint32(64), e2.Offset(), "second entry offset")
	assert.Equal(t, uint32(62), e3.Offset(), "third entry offset")
	assert.Equal(t, uint32(61), e4.Offset(), "fourth entry offset")
	assert.Equal(t, uint32(128), e5.Offset(), "fifth entry offset")
	assert.Equal(t, uint32(96), e6.Offset(), "sixth entry offset")
}

func TestPlaceFixedOffset(t *testing.T) {
	r := NewRegion[*MockRegionEntry](0x100, 0x100)
	table := NewMockRegionEntry(0x80, 1)
	next := NewMockRegionEntry(0x28, 1)
	assert.True(t, r.Place(table, []uint32{0x100}, false))
	assert.True(t, r.Place(next, []uint32{0x180}, true), "simulated placement")
	assert.Equal(t, uint32(0), next.Offset(), "simulation must not assign")
	assert.True(t, r.Place(next, []uint32{0x180}, false))
	assert.Equal(t, uint32(0x180), next.Offset())

	overlap := NewMockRegionEntry(0x10, 1)
	assert.False(t, r.Place(overlap, []uint32{0x1a0}, false), "overlaps placed entry")
	tooBig := NewMockRegionEntry(0x60, 1)
	assert.False(t, r.Place(tooBig, []uint32{0x1a8}, false), "crosses region end")
}

func TestRegionFull(t *testing.T) {
	r := NewRegion[*MockRegionEntry](0, 16)
	assert.True(t, r.Place(NewMockRegionEntry(16, 1), nil, false))
	assert.False(t, r.Place(NewMockRegionEntry(1, 1), nil, false))
	ok, _ := r.FindGap(0, 1)
	assert.True(t, ok, "zero-sized spans always fit")
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint32(0x200), AlignUp(0x1c4, 0x200))
	assert.Equal(t, uint32(0x200), AlignUp(0x200, 0x200))
	assert.Equal(t, uint32(7), AlignUp(7, 0))
}
