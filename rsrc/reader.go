// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package rsrc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"
)

const (
	sizeOfDirTable  = 16
	sizeOfDirEntry  = 8
	sizeOfDataEntry = 16

	highBit = 0x80000000

	// Three levels are conventional; anything this deep is a loop or garbage.
	maxDepth = 16
)

type resourceDirectoryTable struct {
	Characteristics      uint32
	TimeDateStamp        uint32
	MajorVersion         uint16
	MinorVersion         uint16
	NumberOfNamedEntries uint16
	NumberOfIDEntries    uint16
}

type resourceDirectoryEntry struct {
	Name         uint32
	OffsetToData uint32
}

type resourceDataEntry struct {
	DataRVA  uint32
	Size     uint32
	CodePage uint32
	Reserved uint32
}

type parser struct {
	data       []byte
	sectionRVA uint32
	// base is the section offset of the root; entry offsets are relative to it.
	base uint32
	open map[uint32]bool
	// end is the highest section offset any table, name or blob reaches.
	end uint32
}

// Parse decodes the resource directory at rootRVA. section holds the in-memory
// contents of the section containing it, which starts at sectionRVA; every
// table, name and data blob must lie inside it.
func Parse(section []byte, sectionRVA uint32, rootRVA uint32) (*Directory, error) {
	dir, _, err := ParseExtent(section, sectionRVA, rootRVA)
	return dir, err
}

// ParseExtent is Parse, also returning the number of bytes from rootRVA to
// the end of the furthest table, name or data blob of the directory. Data
// placed after the directory makes this larger than the size recorded in
// the data directory entry.
func ParseExtent(section []byte, sectionRVA uint32, rootRVA uint32) (*Directory, uint32, error) {
	if rootRVA < sectionRVA || uint64(rootRVA-sectionRVA) >= uint64(len(section)) {
		return nil, 0, fmt.Errorf("%w: root at 0x%x outside section", ErrCorruptTree, rootRVA)
	}
	p := &parser{
		data:       section,
		sectionRVA: sectionRVA,
		base:       rootRVA - sectionRVA,
		open:       make(map[uint32]bool),
	}
	dir, err := p.readDirectory(0, 0)
	if err != nil {
		return nil, 0, err
	}
	return dir, p.end - p.base, nil
}

// at converts a root-relative offset to a section offset.
func (p *parser) at(rel uint32) (uint32, error) {
	off := uint64(p.base) + uint64(rel)
	if off >= uint64(len(p.data)) {
		return 0, fmt.Errorf("%w: offset 0x%x outside section of 0x%x bytes", ErrCorruptTree, off, len(p.data))
	}
	return uint32(off), nil
}

// bounds checks that size bytes at offset lie inside the section and marks
// them as part of the directory.
func (p *parser) bounds(offset uint32, size uint32) error {
	if uint64(offset)+uint64(size) > uint64(len(p.data)) {
		return fmt.Errorf("%w: %d bytes at offset 0x%x exceed section of 0x%x bytes", ErrCorruptTree, size, offset, len(p.data))
	}
	p.end = max(p.end, offset+size)
	return nil
}

func (p *parser) readDirectory(rel uint32, depth int) (*Directory, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting deeper than %d", ErrCorruptTree, maxDepth)
	}
	offset, err := p.at(rel)
	if err != nil {
		return nil, err
	}
	if p.open[offset] {
		return nil, fmt.Errorf("%w: directory at 0x%x contains itself", ErrCorruptTree, offset)
	}
	p.open[offset] = true
	defer delete(p.open, offset)

	if err := p.bounds(offset, sizeOfDirTable); err != nil {
		return nil, err
	}
	var table resourceDirectoryTable
	if err := binary.Read(bytes.NewReader(p.data[offset:]), binary.LittleEndian, &table); err != nil {
		return nil, err
	}

	count := uint32(table.NumberOfNamedEntries) + uint32(table.NumberOfIDEntries)
	if err := p.bounds(offset+sizeOfDirTable, count*sizeOfDirEntry); err != nil {
		return nil, fmt.Errorf("%w: directory at 0x%x claims %d entries", ErrCorruptTree, offset, count)
	}

	entries := make([]resourceDirectoryEntry, count)
	if err := binary.Read(bytes.NewReader(p.data[offset+sizeOfDirTable:]), binary.LittleEndian, entries); err != nil {
		return nil, err
	}

	dir := &Directory{
		Characteristics: table.Characteristics,
		TimeDateStamp:   table.TimeDateStamp,
		MajorVersion:    table.MajorVersion,
		MinorVersion:    table.MinorVersion,
		Entries:         make([]*Entry, 0, count),
	}
	for _, raw := range entries {
		e := &Entry{}

		if raw.Name&highBit != 0 {
			name, err := p.readName(raw.Name &^ highBit)
			if err != nil {
				return nil, err
			}
			e.ID = Name(name)
		} else {
			e.ID = ID(raw.Name)
		}

		if raw.OffsetToData&highBit != 0 {
			sub, err := p.readDirectory(raw.OffsetToData&^highBit, depth+1)
			if err != nil {
				return nil, err
			}
			e.Dir = sub
		} else {
			leaf, err := p.readLeaf(raw.OffsetToData)
			if err != nil {
				return nil, err
			}
			e.Leaf = leaf
		}

		dir.Entries = append(dir.Entries, e)
	}

	slices.SortStableFunc(dir.Entries, compareEntries)
	for i := 1; i < len(dir.Entries); i++ {
		if dir.Entries[i-1].ID.Compare(dir.Entries[i].ID) == 0 {
			return nil, fmt.Errorf("%w: duplicate entry %s at 0x%x", ErrCorruptTree, dir.Entries[i].ID, offset)
		}
	}

	return dir, nil
}

func (p *parser) readName(rel uint32) (string, error) {
	offset, err := p.at(rel)
	if err != nil {
		return "", err
	}
	if err := p.bounds(offset, 2); err != nil {
		return "", err
	}
	length := uint32(binary.LittleEndian.Uint16(p.data[offset:]))
	if err := p.bounds(offset+2, length*2); err != nil {
		return "", err
	}
	return decodeUTF16(p.data[offset+2 : offset+2+length*2]), nil
}

func (p *parser) readLeaf(rel uint32) (*Leaf, error) {
	offset, err := p.at(rel)
	if err != nil {
		return nil, err
	}
	if err := p.bounds(offset, sizeOfDataEntry); err != nil {
		return nil, err
	}
	var de resourceDataEntry
	if err := binary.Read(bytes.NewReader(p.data[offset:]), binary.LittleEndian, &de); err != nil {
		return nil, err
	}

	if de.DataRVA < p.sectionRVA {
		return nil, fmt.Errorf("%w: data at 0x%x precedes section", ErrCorruptTree, de.DataRVA)
	}
	start := de.DataRVA - p.sectionRVA
	if err := p.bounds(start, de.Size); err != nil {
		return nil, err
	}

	return &Leaf{
		Data:     slices.Clone(p.data[start : start+de.Size]),
		CodePage: de.CodePage,
		Reserved: de.Reserved,
	}, nil
}
