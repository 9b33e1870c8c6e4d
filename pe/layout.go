// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package pe

import (
	"encoding/binary"
	"fmt"

	"github.com/Ghua8088/metaedit/relocation"
	"github.com/hashicorp/go-hclog"
)

const (
	resourceSectionName            = ".rsrc"
	resourceSectionCharacteristics = IMAGE_SCN_CNT_INITIALIZED_DATA | IMAGE_SCN_MEM_READ

	debugDirectoryEntrySize = 28
)

type span struct {
	offset uint32
	size   uint32
}

func (s *span) Offset() uint32 {
	return s.offset
}

func (s *span) SetOffset(offset uint32) {
	s.offset = offset
}

func (s *span) Size() uint32 {
	return s.size
}

func (s *span) Alignment() uint32 {
	return 1
}

func hex(v uint32) string {
	return fmt.Sprintf("0x%x", v)
}

// SetResources replaces the resource directory. build is called with the RVA
// the blob will be placed at, since resource data entries carry absolute RVAs,
// and must return the serialized directory for that address. extent is the
// number of bytes from the directory's RVA that its tables and data occupy;
// the data directory size is used when it is larger.
//
// The blob is written in place when it fits the bytes the current directory
// occupies plus the zero padding after them. Otherwise the resource section
// is grown, shifting the file data after it and, if necessary, the virtual
// addresses of movable sections after it. As a last resort the directory is
// moved to a newly appended section. Section bytes outside the old directory
// are never overwritten, and the section's virtual size never shrinks.
func (img *Image) SetResources(build func(rva uint32) ([]byte, error), extent uint32, logger hclog.Logger) error {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if len(img.DataDirectory) <= IMAGE_DIRECTORY_ENTRY_RESOURCE {
		return fmt.Errorf("%w: optional header has no resource directory entry", ErrUnsupportedFormat)
	}

	sec, err := img.ResourceSection()
	if err != nil {
		return err
	}
	if sec == nil {
		return img.appendResources(build, logger)
	}

	dir := &img.DataDirectory[IMAGE_DIRECTORY_ENTRY_RESOURCE]
	blob, err := build(dir.VirtualAddress)
	if err != nil {
		return err
	}
	size := uint32(len(blob))
	start := dir.VirtualAddress - sec.VirtualAddress

	limit, dedicated := img.resourceLimit(sec, start)
	capacity := uint32(0)
	if limit > start {
		capacity = limit - start
	}
	off := sec.PointerToRawData + start
	old := min(max(dir.Size, extent), capacity)
	owned := old
	for owned < capacity && img.data[off+owned] == 0 {
		owned++
	}
	next := img.nextSection(sec)

	if size <= owned && (next == nil || dir.VirtualAddress+size <= next.VirtualAddress) {
		logger.Debug("writing resources in place",
			"section", sec.Name,
			"rva", hex(dir.VirtualAddress),
			"old_size", dir.Size,
			"new_size", size)

		copy(img.data[off:], blob)
		clear(img.data[off+size : off+max(size, old)])
		sec.VirtualSize = max(sec.VirtualSize, start+size)
		dir.Size = size
		return img.writeHeaders()
	}

	// Growing rewrites everything up to the end of the section's raw data.
	if dedicated && start+owned == sec.SizeOfRawData {
		ok, err := img.growResources(sec, start, blob, logger)
		if err != nil || ok {
			return err
		}
	}

	logger.Debug("moving resources to a new section",
		"section", sec.Name,
		"rva", hex(dir.VirtualAddress),
		"size", size)
	if !img.headerRoom() {
		return fmt.Errorf("%w: resource section %q cannot grow and the header has no room for a new section", ErrUnsupportedFormat, sec.Name)
	}
	if old > 0 {
		clear(img.data[off : off+old])
	}
	return img.appendResources(build, logger)
}

// resourceLimit returns the section-relative end of the raw space available to
// a resource directory starting at start. The space is dedicated when no other
// data directory lives after it in the same section.
func (img *Image) resourceLimit(sec *Section, start uint32) (uint32, bool) {
	limit := sec.SizeOfRawData
	dedicated := true
	for i, dir := range img.DataDirectory {
		if i == IMAGE_DIRECTORY_ENTRY_RESOURCE || i == IMAGE_DIRECTORY_ENTRY_SECURITY || dir.Size == 0 {
			continue
		}
		if !sec.Contains(dir.VirtualAddress) {
			continue
		}
		rel := dir.VirtualAddress - sec.VirtualAddress
		if rel >= start {
			limit = min(limit, rel)
			dedicated = false
		}
	}
	return limit, dedicated
}

// nextSection returns the section with the lowest virtual address above sec.
func (img *Image) nextSection(sec *Section) *Section {
	var next *Section
	for _, s := range img.Sections {
		if s.VirtualAddress > sec.VirtualAddress && (next == nil || s.VirtualAddress < next.VirtualAddress) {
			next = s
		}
	}
	return next
}

// movable reports whether nothing but the data directories can refer to the
// section's addresses, so that its virtual address may change.
func (img *Image) movable(sec *Section) bool {
	if sec.Characteristics&IMAGE_SCN_MEM_DISCARDABLE != 0 {
		return true
	}
	reloc := img.Directory(IMAGE_DIRECTORY_ENTRY_BASERELOC)
	return reloc.Size != 0 && sec.Contains(reloc.VirtualAddress)
}

// growResources extends the raw data of a dedicated resource section to hold
// blob. It reports false without modifying anything if the sections after it
// would have to move and cannot.
func (img *Image) growResources(sec *Section, start uint32, blob []byte, logger hclog.Logger) (bool, error) {
	size := uint32(len(blob))
	newRaw := max(relocation.AlignUp(start+size, img.FileAlignment), sec.SizeOfRawData)
	newVirtualEnd := sec.VirtualAddress + max(sec.VirtualSize, start+size)

	// Sections after the resource section in memory, and the shift they need.
	var later []*Section
	var vdelta uint32
	if next := img.nextSection(sec); next != nil {
		for _, s := range img.Sections {
			if s.VirtualAddress > sec.VirtualAddress {
				later = append(later, s)
			}
		}
		if newVirtualEnd > next.VirtualAddress {
			vdelta = relocation.AlignUp(relocation.AlignUp(newVirtualEnd, img.SectionAlignment)-next.VirtualAddress, img.SectionAlignment)
			for _, s := range later {
				if !img.movable(s) {
					logger.Debug("section after resources cannot move",
						"section", s.Name,
						"rva", hex(s.VirtualAddress))
					return false, nil
				}
			}
		}
	}

	delta := newRaw - sec.SizeOfRawData
	insertAt := sec.RawEnd()
	logger.Debug("growing resource section",
		"section", sec.Name,
		"old_raw_size", hex(sec.SizeOfRawData),
		"new_raw_size", hex(newRaw),
		"delta", hex(delta),
		"virtual_delta", hex(vdelta))

	img.insert(insertAt, delta)
	sec.SizeOfRawData = newRaw
	sec.VirtualSize = max(sec.VirtualSize, start+size)
	if sec.Characteristics&IMAGE_SCN_CNT_INITIALIZED_DATA != 0 {
		img.SizeOfInitializedData += delta
	}

	if vdelta > 0 {
		img.shiftDebugAddresses(later, vdelta)
		for i := range img.DataDirectory {
			dir := &img.DataDirectory[i]
			if i == IMAGE_DIRECTORY_ENTRY_SECURITY || dir.VirtualAddress == 0 {
				continue
			}
			for _, s := range later {
				if s.Contains(dir.VirtualAddress) {
					dir.VirtualAddress += vdelta
					break
				}
			}
		}
		for _, s := range later {
			logger.Debug("moving section",
				"section", s.Name,
				"old_rva", hex(s.VirtualAddress),
				"new_rva", hex(s.VirtualAddress+vdelta))
			s.VirtualAddress += vdelta
		}
	}

	off := sec.PointerToRawData + start
	copy(img.data[off:], blob)
	clear(img.data[off+size : sec.RawEnd()])

	img.DataDirectory[IMAGE_DIRECTORY_ENTRY_RESOURCE].Size = size
	img.updateSizeOfImage()
	return true, img.writeHeaders()
}

// appendResources places the resource directory in a new section after all
// existing ones. Overlay data, including a trailing certificate table, is
// kept after the new section.
func (img *Image) appendResources(build func(rva uint32) ([]byte, error), logger hclog.Logger) error {
	if !img.headerRoom() {
		return fmt.Errorf("%w: no room for a new section header", ErrUnsupportedFormat)
	}

	vaEnd := img.SizeOfImage
	for _, s := range img.Sections {
		vaEnd = max(vaEnd, s.VirtualEnd())
	}
	rva := relocation.AlignUp(max(vaEnd, img.SizeOfHeaders), img.SectionAlignment)

	blob, err := build(rva)
	if err != nil {
		return err
	}
	size := uint32(len(blob))
	rawSize := relocation.AlignUp(size, img.FileAlignment)

	insertAt := img.rawEnd()
	rawOffset := relocation.AlignUp(insertAt, img.FileAlignment)
	img.insert(insertAt, rawOffset-insertAt+rawSize)
	copy(img.data[rawOffset:], blob)

	name := resourceSectionName
	if img.Section(name) != nil {
		name = resourceSectionName + "2"
	}
	sec := &Section{
		Name:             name,
		VirtualSize:      size,
		VirtualAddress:   rva,
		SizeOfRawData:    rawSize,
		PointerToRawData: rawOffset,
		Characteristics:  resourceSectionCharacteristics,
	}
	logger.Debug("appending resource section",
		"section", sec.Name,
		"rva", hex(rva),
		"offset", hex(rawOffset),
		"size", size)

	img.Sections = append(img.Sections, sec)
	img.SizeOfInitializedData += rawSize
	img.DataDirectory[IMAGE_DIRECTORY_ENTRY_RESOURCE] = DataDirectory{VirtualAddress: rva, Size: size}
	img.updateSizeOfImage()
	return img.writeHeaders()
}

// SizeOfImage is only ever raised; some linkers reserve more than the
// sections cover.
func (img *Image) updateSizeOfImage() {
	var end uint32
	for _, s := range img.Sections {
		end = max(end, s.VirtualEnd())
	}
	img.SizeOfImage = max(img.SizeOfImage, relocation.AlignUp(end, img.SectionAlignment))
}

// headerRoom reports whether one more section header fits between the
// section table and the first byte of section data, without covering any
// data directory stored in the header area.
func (img *Image) headerRoom() bool {
	limit := min(img.SizeOfHeaders, uint32(len(img.data)))
	for _, sec := range img.Sections {
		if sec.SizeOfRawData > 0 && sec.PointerToRawData < limit {
			limit = sec.PointerToRawData
		}
	}
	if limit <= img.sectionTableOffset {
		return false
	}

	region := relocation.NewRegion[*span](img.sectionTableOffset, limit-img.sectionTableOffset)
	table := &span{size: uint32(len(img.Sections)) * IMAGE_SECTION_HEADER_SIZE}
	if !region.Place(table, []uint32{img.sectionTableOffset}, false) {
		return false
	}
	for i, dir := range img.DataDirectory {
		if i == IMAGE_DIRECTORY_ENTRY_SECURITY || dir.Size == 0 || dir.VirtualAddress >= limit {
			continue
		}
		if dir.VirtualAddress+dir.Size <= img.sectionTableOffset {
			continue
		}
		if !region.Place(&span{size: dir.Size}, []uint32{dir.VirtualAddress}, false) {
			return false
		}
	}

	slot := &span{size: IMAGE_SECTION_HEADER_SIZE}
	if !region.Place(slot, []uint32{table.offset + table.size}, false) {
		return false
	}
	for _, b := range img.data[slot.offset : slot.offset+slot.size] {
		if b != 0 {
			return false
		}
	}
	return true
}

// shiftDebugAddresses moves AddressOfRawData of debug directory entries
// pointing into sections about to move by vdelta. File offsets of debug data
// are kept current by insert.
func (img *Image) shiftDebugAddresses(moved []*Section, vdelta uint32) {
	img.forEachDebugEntry(func(entry []byte) {
		addr := binary.LittleEndian.Uint32(entry[20:])
		for _, s := range moved {
			if addr != 0 && s.Contains(addr) {
				binary.LittleEndian.PutUint32(entry[20:], addr+vdelta)
				return
			}
		}
	})
}

func (img *Image) shiftDebugOffsets(pos uint32, delta uint32) {
	img.forEachDebugEntry(func(entry []byte) {
		ptr := binary.LittleEndian.Uint32(entry[24:])
		if ptr != 0 && ptr >= pos {
			binary.LittleEndian.PutUint32(entry[24:], ptr+delta)
		}
	})
}

func (img *Image) forEachDebugEntry(fn func(entry []byte)) {
	dir := img.Directory(IMAGE_DIRECTORY_ENTRY_DEBUG)
	if dir.Size < debugDirectoryEntrySize {
		return
	}
	off, ok := img.RVAToOffset(dir.VirtualAddress)
	if !ok || uint64(off)+uint64(dir.Size) > uint64(len(img.data)) {
		return
	}
	for i := uint32(0); i+debugDirectoryEntrySize <= dir.Size; i += debugDirectoryEntrySize {
		fn(img.data[off+i : off+i+debugDirectoryEntrySize])
	}
}
