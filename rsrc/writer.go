// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package rsrc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/Ghua8088/metaedit/relocation"
)

// Resource data is padded to 8 bytes, as Visual C++ does.
const dataAlignment = 8

type chunk struct {
	offset uint32
	size   uint32
	align  uint32
}

func (c *chunk) Offset() uint32 {
	return c.offset
}

func (c *chunk) SetOffset(offset uint32) {
	c.offset = offset
}

func (c *chunk) Size() uint32 {
	return c.size
}

func (c *chunk) Alignment() uint32 {
	return c.align
}

type dirNode struct {
	chunk
	dir     *Directory
	entries []*Entry
}

type leafNode struct {
	desc chunk
	data chunk
	leaf *Leaf
}

type layout struct {
	region *relocation.Region[*chunk]
	dirs   []*dirNode
	dirOf  map[*Directory]*dirNode
	leaves []*leafNode
	leafOf map[*Leaf]*leafNode
	names  map[string]*chunk
	order  []string
}

// appendChunk places c after everything placed so far, keeping the
// canonical section order.
func (l *layout) appendChunk(c *chunk) bool {
	return l.region.Place(c, []uint32{l.region.UsedEnd(), math.MaxUint32 - c.size}, false)
}

func (l *layout) addName(name string) error {
	if _, ok := l.names[name]; ok {
		return nil
	}
	units := len(encodeUTF16(name)) / 2
	if units > math.MaxUint16 {
		return fmt.Errorf("resource name of %d characters is too long", units)
	}
	l.names[name] = &chunk{size: uint32(2 + 2*units), align: 2}
	l.order = append(l.order, name)
	return nil
}

// Write serializes the tree for placement at rva. Directory tables come
// first in breadth-first order, followed by the data entry descriptors, the
// leaf data and finally the name strings. Entries are written names first,
// then IDs, each group sorted.
func Write(root *Directory, rva uint32) ([]byte, error) {
	l := &layout{
		region: relocation.NewRegion[*chunk](0, math.MaxUint32),
		dirOf:  make(map[*Directory]*dirNode),
		leafOf: make(map[*Leaf]*leafNode),
		names:  make(map[string]*chunk),
	}

	// Pass 1: sizes, then offsets
	queue := []*Directory{root}
	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]
		if _, ok := l.dirOf[d]; ok {
			return nil, fmt.Errorf("%w: directory reachable twice", ErrCorruptTree)
		}

		entries := slices.Clone(d.Entries)
		slices.SortStableFunc(entries, compareEntries)
		node := &dirNode{
			chunk:   chunk{size: sizeOfDirTable + uint32(len(entries))*sizeOfDirEntry, align: 4},
			dir:     d,
			entries: entries,
		}
		l.dirs = append(l.dirs, node)
		l.dirOf[d] = node

		for _, e := range entries {
			if (e.Dir == nil) == (e.Leaf == nil) {
				return nil, fmt.Errorf("%w: entry %s must hold either a directory or data", ErrCorruptTree, e.ID)
			}
			if e.ID.IsName() {
				if err := l.addName(e.ID.Name); err != nil {
					return nil, err
				}
			}
			if e.Dir != nil {
				queue = append(queue, e.Dir)
			} else if _, ok := l.leafOf[e.Leaf]; !ok {
				leaf := &leafNode{
					desc: chunk{size: sizeOfDataEntry, align: 4},
					data: chunk{size: uint32(len(e.Leaf.Data)), align: dataAlignment},
					leaf: e.Leaf,
				}
				l.leaves = append(l.leaves, leaf)
				l.leafOf[e.Leaf] = leaf
			}
		}
	}

	chunks := make([]*chunk, 0, len(l.dirs)+2*len(l.leaves)+len(l.order))
	for _, node := range l.dirs {
		chunks = append(chunks, &node.chunk)
	}
	for _, leaf := range l.leaves {
		chunks = append(chunks, &leaf.desc)
	}
	for _, leaf := range l.leaves {
		chunks = append(chunks, &leaf.data)
	}
	for _, name := range l.order {
		chunks = append(chunks, l.names[name])
	}
	for _, c := range chunks {
		if !l.appendChunk(c) {
			return nil, errors.New("resource directory exceeds 4 GiB")
		}
	}

	size := l.region.UsedEnd()
	if uint64(rva)+uint64(size) > math.MaxUint32 {
		return nil, fmt.Errorf("resource directory of %d bytes does not fit at 0x%x", size, rva)
	}

	// Pass 2: contents
	out := make([]byte, size)
	for _, node := range l.dirs {
		var buf bytes.Buffer
		named := 0
		for _, e := range node.entries {
			if e.ID.IsName() {
				named++
			}
		}
		table := resourceDirectoryTable{
			Characteristics:      node.dir.Characteristics,
			TimeDateStamp:        node.dir.TimeDateStamp,
			MajorVersion:         node.dir.MajorVersion,
			MinorVersion:         node.dir.MinorVersion,
			NumberOfNamedEntries: uint16(named),
			NumberOfIDEntries:    uint16(len(node.entries) - named),
		}
		if err := binary.Write(&buf, binary.LittleEndian, &table); err != nil {
			return nil, err
		}
		for _, e := range node.entries {
			var raw resourceDirectoryEntry
			if e.ID.IsName() {
				raw.Name = l.names[e.ID.Name].offset | highBit
			} else {
				raw.Name = e.ID.ID
			}
			if e.Dir != nil {
				raw.OffsetToData = l.dirOf[e.Dir].offset | highBit
			} else {
				raw.OffsetToData = l.leafOf[e.Leaf].desc.offset
			}
			if err := binary.Write(&buf, binary.LittleEndian, &raw); err != nil {
				return nil, err
			}
		}
		copy(out[node.offset:], buf.Bytes())
	}

	for _, leaf := range l.leaves {
		de := resourceDataEntry{
			DataRVA:  rva + leaf.data.offset,
			Size:     leaf.data.size,
			CodePage: leaf.leaf.CodePage,
			Reserved: leaf.leaf.Reserved,
		}
		binary.LittleEndian.PutUint32(out[leaf.desc.offset:], de.DataRVA)
		binary.LittleEndian.PutUint32(out[leaf.desc.offset+4:], de.Size)
		binary.LittleEndian.PutUint32(out[leaf.desc.offset+8:], de.CodePage)
		binary.LittleEndian.PutUint32(out[leaf.desc.offset+12:], de.Reserved)
		copy(out[leaf.data.offset:], leaf.leaf.Data)
	}

	for _, name := range l.order {
		c := l.names[name]
		encoded := encodeUTF16(name)
		binary.LittleEndian.PutUint16(out[c.offset:], uint16(len(encoded)/2))
		copy(out[c.offset+2:], encoded)
	}

	return out, nil
}
