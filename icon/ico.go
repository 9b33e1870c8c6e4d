// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package icon

import (
	"bytes"
	"io"

	"github.com/lunixbochs/struc"
)

const (
	iconDirSize      = 6
	iconDirEntrySize = 16

	iconTypeIcon = 1
)

type iconDir struct {
	Reserved uint16 `struc:"uint16,little"`
	Type     uint16 `struc:"uint16,little"`
	Count    uint16 `struc:"uint16,little"`
}

type iconDirEntry struct {
	Width      uint8  `struc:"uint8"`
	Height     uint8  `struc:"uint8"`
	ColorCount uint8  `struc:"uint8"`
	Reserved   uint8  `struc:"uint8"`
	Planes     uint16 `struc:"uint16,little"`
	BitCount   uint16 `struc:"uint16,little"`
	BytesInRes uint32 `struc:"uint32,little"`
	Offset     uint32 `struc:"uint32,little"`
}

// Widths and heights of 256 are stored as 0.
func sizeByte(v int) uint8 {
	if v >= MaxSize {
		return 0
	}
	return uint8(v)
}

func byteSize(v uint8) int {
	if v == 0 {
		return MaxSize
	}
	return int(v)
}

// IsICO reports whether data starts with an icon directory header.
func IsICO(data []byte) bool {
	return len(data) >= iconDirSize && bytes.Equal(data[:4], []byte{0, 0, iconTypeIcon, 0})
}

// ParseICO reads every frame of an .ico file.
func ParseICO(data []byte) (ImageSet, error) {
	r := bytes.NewReader(data)
	var dir iconDir
	if err := struc.Unpack(r, &dir); err != nil {
		return nil, invalid("ICO header: %v", err)
	}
	if dir.Reserved != 0 || dir.Type != iconTypeIcon {
		return nil, invalid("not an icon file (type %d)", dir.Type)
	}
	if dir.Count == 0 {
		return nil, invalid("icon file without images")
	}

	set := make(ImageSet, 0, dir.Count)
	for i := 0; i < int(dir.Count); i++ {
		var e iconDirEntry
		if err := struc.Unpack(r, &e); err != nil {
			return nil, invalid("ICO entry %d: %v", i, err)
		}
		end := uint64(e.Offset) + uint64(e.BytesInRes)
		if end > uint64(len(data)) || e.Offset < iconDirSize {
			return nil, invalid("ICO entry %d data at 0x%x+%d outside file", i, e.Offset, e.BytesInRes)
		}

		f := &Frame{
			Width:      byteSize(e.Width),
			Height:     byteSize(e.Height),
			ColorCount: e.ColorCount,
			Planes:     e.Planes,
			BitCount:   e.BitCount,
			Data:       bytes.Clone(data[e.Offset:end]),
		}
		f.fill()
		if err := f.Validate(); err != nil {
			return nil, err
		}
		set = append(set, f)
	}
	return set, nil
}

// WriteICO writes the set as an .ico file.
func (s ImageSet) WriteICO(w io.Writer) error {
	if err := struc.Pack(w, &iconDir{Type: iconTypeIcon, Count: uint16(len(s))}); err != nil {
		return err
	}
	offset := uint32(iconDirSize + iconDirEntrySize*len(s))
	for _, f := range s {
		e := iconDirEntry{
			Width:      sizeByte(f.Width),
			Height:     sizeByte(f.Height),
			ColorCount: f.ColorCount,
			Planes:     f.Planes,
			BitCount:   f.BitCount,
			BytesInRes: uint32(len(f.Data)),
			Offset:     offset,
		}
		if err := struc.Pack(w, &e); err != nil {
			return err
		}
		offset += e.BytesInRes
	}
	for _, f := range s {
		if _, err := w.Write(f.Data); err != nil {
			return err
		}
	}
	return nil
}
