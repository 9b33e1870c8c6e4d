// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package pe

import (
	"bytes"
	"fmt"
	"slices"
)

// writeHeaders serializes the file header, optional header and section
// table back into the image buffer. Bytes of the optional header past the
// data directories are left untouched.
func (img *Image) writeHeaders() error {
	if len(img.Sections) > 0xFFFF {
		return fmt.Errorf("%w: %d sections", ErrUnsupportedFormat, len(img.Sections))
	}
	img.NumberOfSections = uint16(len(img.Sections))

	var buf bytes.Buffer
	if err := img.writeFileHeader(&buf); err != nil {
		return err
	}
	if err := img.writeOptionalHeader(&buf); err != nil {
		return err
	}
	if buf.Len() > IMAGE_FILE_HEADER_SIZE+int(img.SizeOfOptionalHeader) {
		return fmt.Errorf("%w: optional header does not fit in %d bytes", ErrUnsupportedFormat, img.SizeOfOptionalHeader)
	}
	copy(img.data[img.peOffset+4:], buf.Bytes())

	buf.Reset()
	for _, sec := range img.Sections {
		if err := img.writeSectionHeader(&buf, sec); err != nil {
			return err
		}
	}
	if int(img.sectionTableOffset)+buf.Len() > len(img.data) {
		return fmt.Errorf("%w: section table exceeds file", ErrFormat)
	}
	copy(img.data[img.sectionTableOffset:], buf.Bytes())

	return nil
}

// insert opens a zero-filled gap of size bytes at file offset pos and moves
// every file offset at or past pos accordingly.
func (img *Image) insert(pos uint32, size uint32) {
	if size == 0 {
		return
	}
	img.data = slices.Insert(img.data, int(pos), make([]byte, size)...)

	for _, sec := range img.Sections {
		if sec.SizeOfRawData > 0 && sec.PointerToRawData >= pos {
			sec.PointerToRawData += size
		}
		if sec.PointerToRelocations != 0 && sec.PointerToRelocations >= pos {
			sec.PointerToRelocations += size
		}
		if sec.PointerToLinenumbers != 0 && sec.PointerToLinenumbers >= pos {
			sec.PointerToLinenumbers += size
		}
	}
	if img.PointerToSymbolTable != 0 && img.PointerToSymbolTable >= pos {
		img.PointerToSymbolTable += size
	}
	img.shiftDebugOffsets(pos, size)
	if len(img.DataDirectory) > IMAGE_DIRECTORY_ENTRY_SECURITY {
		cert := &img.DataDirectory[IMAGE_DIRECTORY_ENTRY_SECURITY]
		if cert.Size > 0 && cert.VirtualAddress >= pos {
			cert.VirtualAddress += size
		}
	}
}
