// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package icon

import (
	"bytes"
	"slices"

	"github.com/Ghua8088/metaedit/rsrc"
	"github.com/lunixbochs/struc"
)

const groupEntrySize = 14

// GroupEntry describes one frame inside an RT_GROUP_ICON resource. It
// matches the ICO directory entry with the file offset replaced by the
// RT_ICON resource ID.
type GroupEntry struct {
	Width      uint8  `struc:"uint8"`
	Height     uint8  `struc:"uint8"`
	ColorCount uint8  `struc:"uint8"`
	Reserved   uint8  `struc:"uint8"`
	Planes     uint16 `struc:"uint16,little"`
	BitCount   uint16 `struc:"uint16,little"`
	BytesInRes uint32 `struc:"uint32,little"`
	ID         uint16 `struc:"uint16,little"`
}

func (e *GroupEntry) Size() (int, int) {
	return byteSize(e.Width), byteSize(e.Height)
}

// ParseGroup decodes an RT_GROUP_ICON payload.
func ParseGroup(data []byte) ([]GroupEntry, error) {
	r := bytes.NewReader(data)
	var dir iconDir
	if err := struc.Unpack(r, &dir); err != nil {
		return nil, invalid("icon group header: %v", err)
	}
	if dir.Type != iconTypeIcon {
		return nil, invalid("icon group of type %d", dir.Type)
	}
	if len(data) < iconDirSize+groupEntrySize*int(dir.Count) {
		return nil, invalid("icon group claims %d entries in %d bytes", dir.Count, len(data))
	}

	entries := make([]GroupEntry, dir.Count)
	for i := range entries {
		if err := struc.Unpack(r, &entries[i]); err != nil {
			return nil, invalid("icon group entry %d: %v", i, err)
		}
	}
	return entries, nil
}

// EncodeGroup builds an RT_GROUP_ICON payload.
func EncodeGroup(entries []GroupEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := struc.Pack(&buf, &iconDir{Type: iconTypeIcon, Count: uint16(len(entries))}); err != nil {
		return nil, err
	}
	for i := range entries {
		if err := struc.Pack(&buf, &entries[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// groupReferences collects the RT_ICON IDs used by every language of the
// group directory. Undecodable groups reference nothing.
func groupReferences(group *rsrc.Entry) []uint16 {
	var ids []uint16
	collect := func(leaf *rsrc.Leaf) {
		entries, err := ParseGroup(leaf.Data)
		if err != nil {
			return
		}
		for _, e := range entries {
			ids = append(ids, e.ID)
		}
	}
	if group.Leaf != nil {
		collect(group.Leaf)
	} else {
		group.Dir.Walk(func(_ []rsrc.Identifier, leaf *rsrc.Leaf) error {
			collect(leaf)
			return nil
		})
	}
	return ids
}

// Install replaces the main icon of tree with set.
//
// The main icon is the first RT_GROUP_ICON entry; its name and language are
// kept. Without one, the icon is installed as group 1 in US English. Icons
// referenced by the replaced group are removed unless another group still
// uses them. New frames take the lowest free RT_ICON IDs starting at 1.
func Install(tree *rsrc.Directory, set ImageSet) error {
	if err := set.Validate(); err != nil {
		return err
	}

	name := rsrc.ID(1)
	lang := rsrc.ID(rsrc.LANG_EN_US)
	var stale []uint16
	if group := tree.First(rsrc.ID(rsrc.RT_GROUP_ICON)); group != nil {
		name = group.ID
		if group.Dir != nil && !group.Dir.Empty() {
			lang = group.Dir.Entries[0].ID
		}
		stale = groupReferences(group)
		tree.Delete(rsrc.ID(rsrc.RT_GROUP_ICON), name)
	}

	if len(stale) > 0 {
		var used []uint16
		if groups := tree.Dir(rsrc.ID(rsrc.RT_GROUP_ICON)); groups != nil {
			for _, g := range groups.Entries {
				used = append(used, groupReferences(g)...)
			}
		}
		for _, id := range stale {
			if !slices.Contains(used, id) {
				tree.Delete(rsrc.ID(rsrc.RT_ICON), rsrc.ID(uint32(id)))
			}
		}
	}

	taken := make(map[uint32]bool)
	if icons := tree.Dir(rsrc.ID(rsrc.RT_ICON)); icons != nil {
		for _, e := range icons.Entries {
			if !e.ID.IsName() {
				taken[e.ID.ID] = true
			}
		}
	}

	entries := make([]GroupEntry, 0, len(set))
	next := uint32(1)
	for _, f := range set {
		for taken[next] {
			next++
		}
		if next > 0xFFFF {
			return invalid("no free icon IDs left")
		}
		taken[next] = true

		if err := tree.Set(&rsrc.Leaf{Data: bytes.Clone(f.Data)}, rsrc.ID(rsrc.RT_ICON), rsrc.ID(next), lang); err != nil {
			return err
		}
		entries = append(entries, GroupEntry{
			Width:      sizeByte(f.Width),
			Height:     sizeByte(f.Height),
			ColorCount: f.ColorCount,
			Planes:     f.Planes,
			BitCount:   f.BitCount,
			BytesInRes: uint32(len(f.Data)),
			ID:         uint16(next),
		})
	}

	data, err := EncodeGroup(entries)
	if err != nil {
		return err
	}
	return tree.Set(&rsrc.Leaf{Data: data}, rsrc.ID(rsrc.RT_GROUP_ICON), name, lang)
}

// MainGroup returns the entries of the main icon group, or nil if the tree
// has none.
func MainGroup(tree *rsrc.Directory) ([]GroupEntry, error) {
	group := tree.First(rsrc.ID(rsrc.RT_GROUP_ICON))
	if group == nil {
		return nil, nil
	}
	leaf := group.Leaf
	if leaf == nil {
		first := group.Dir.First()
		if first == nil || first.Leaf == nil {
			return nil, nil
		}
		leaf = first.Leaf
	}
	return ParseGroup(leaf.Data)
}
