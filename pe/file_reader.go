// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package pe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// ReadImage parses the headers of a PE image. The image keeps a reference to
// data; edits performed through the Image modify it or replace it.
func ReadImage(data []byte) (*Image, error) {
	img := &Image{data: data}

	if len(data) < IMAGE_DOS_HEADER_SIZE {
		return nil, fmt.Errorf("%w: file too short (%d bytes)", ErrFormat, len(data))
	}
	if binary.LittleEndian.Uint16(data) != IMAGE_DOS_SIGNATURE {
		return nil, fmt.Errorf("%w: missing MZ signature", ErrFormat)
	}

	img.peOffset = binary.LittleEndian.Uint32(data[dosLfanewOffset:])
	if uint64(img.peOffset)+4+IMAGE_FILE_HEADER_SIZE > uint64(len(data)) {
		return nil, fmt.Errorf("%w: PE header offset 0x%x beyond end of file", ErrFormat, img.peOffset)
	}
	if binary.LittleEndian.Uint32(data[img.peOffset:]) != IMAGE_NT_SIGNATURE {
		return nil, fmt.Errorf("%w: missing PE signature at 0x%x", ErrFormat, img.peOffset)
	}

	// Read file header
	if err := img.readFileHeader(bytes.NewReader(data[img.peOffset+4:])); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	// Read optional header
	img.optionalOffset = img.peOffset + 4 + IMAGE_FILE_HEADER_SIZE
	optionalEnd := uint64(img.optionalOffset) + uint64(img.SizeOfOptionalHeader)
	if optionalEnd > uint64(len(data)) {
		return nil, fmt.Errorf("%w: optional header exceeds file", ErrFormat)
	}
	if err := img.readOptionalHeader(data[img.optionalOffset:optionalEnd]); err != nil {
		return nil, err
	}

	// Read section headers
	img.sectionTableOffset = uint32(optionalEnd)
	tableEnd := uint64(img.sectionTableOffset) + uint64(img.NumberOfSections)*IMAGE_SECTION_HEADER_SIZE
	if tableEnd > uint64(len(data)) {
		return nil, fmt.Errorf("%w: section table exceeds file", ErrFormat)
	}
	if img.SizeOfHeaders != 0 && tableEnd > uint64(img.SizeOfHeaders) {
		return nil, fmt.Errorf("%w: section table exceeds SizeOfHeaders", ErrFormat)
	}

	r := bytes.NewReader(data[img.sectionTableOffset:tableEnd])
	img.Sections = make([]*Section, 0, img.NumberOfSections)
	for i := 0; i < int(img.NumberOfSections); i++ {
		sec, err := img.readSectionHeader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		if sec.SizeOfRawData > 0 && uint64(sec.PointerToRawData)+uint64(sec.SizeOfRawData) > uint64(len(data)) {
			return nil, fmt.Errorf("%w: section %q raw data exceeds file", ErrFormat, sec.Name)
		}
		img.Sections = append(img.Sections, sec)
	}

	for i := 1; i < len(img.Sections); i++ {
		if img.Sections[i].VirtualAddress < img.Sections[i-1].VirtualEnd() {
			return nil, fmt.Errorf("%w: section %q overlaps %q", ErrFormat, img.Sections[i].Name, img.Sections[i-1].Name)
		}
	}

	return img, nil
}

func mapFile(f *os.File) (mmap.MMap, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	// Empty files cannot be mapped; anything below a DOS header is not an image.
	if fi.Size() < IMAGE_DOS_HEADER_SIZE {
		return nil, fmt.Errorf("%w: file too short (%d bytes)", ErrFormat, fi.Size())
	}
	return mmap.Map(f, mmap.RDONLY, 0)
}

// Load reads the image at path into a private, writable buffer.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := mapFile(f)
	if err != nil {
		return nil, err
	}
	data := make([]byte, len(m))
	copy(data, m)
	if err := m.Unmap(); err != nil {
		return nil, err
	}

	return ReadImage(data)
}

// MappedImage is a read-only image backed by a memory mapping of the file.
// It must not be edited; Close releases the mapping.
type MappedImage struct {
	*Image
	m mmap.MMap
	f *os.File
}

// Open maps the image at path read-only.
func Open(path string) (*MappedImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	m, err := mapFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	img, err := ReadImage(m)
	if err != nil {
		m.Unmap()
		f.Close()
		return nil, err
	}

	return &MappedImage{Image: img, m: m, f: f}, nil
}

func (mi *MappedImage) Close() error {
	err := mi.m.Unmap()
	if cerr := mi.f.Close(); err == nil {
		err = cerr
	}
	mi.Image = nil
	return err
}

// Bytes returns the current contents of the image.
func (img *Image) Bytes() []byte {
	return img.data
}

func (img *Image) IsDLL() bool {
	return img.Characteristics&IMAGE_FILE_DLL != 0
}

// Directory returns the data directory entry at index, or a zero entry
// if the image declares fewer directories.
func (img *Image) Directory(index int) DataDirectory {
	if index < len(img.DataDirectory) {
		return img.DataDirectory[index]
	}
	return DataDirectory{}
}

// SectionAt returns the section whose virtual range contains rva.
func (img *Image) SectionAt(rva uint32) *Section {
	for _, sec := range img.Sections {
		if sec.Contains(rva) {
			return sec
		}
	}
	return nil
}

func (img *Image) Section(name string) *Section {
	for _, sec := range img.Sections {
		if sec.Name == name {
			return sec
		}
	}
	return nil
}

// SectionData returns the section as it appears in memory: raw data followed
// by zero fill up to VirtualSize.
func (img *Image) SectionData(sec *Section) []byte {
	raw := sec.SizeOfRawData
	size := sec.VirtualSize
	if size == 0 {
		size = raw
	}
	if raw > size {
		raw = size
	}
	if !sec.Characteristics.HasDataInFile() {
		raw = 0
	}

	data := img.data[sec.PointerToRawData : sec.PointerToRawData+raw]
	if raw == size {
		return data
	}
	buf := make([]byte, size)
	copy(buf, data)
	return buf
}

// ResourceSection returns the section holding the resource directory, or
// nil if the image has none.
func (img *Image) ResourceSection() (*Section, error) {
	dir := img.Directory(IMAGE_DIRECTORY_ENTRY_RESOURCE)
	if dir.VirtualAddress == 0 {
		return nil, nil
	}
	sec := img.SectionAt(dir.VirtualAddress)
	if sec == nil {
		return nil, fmt.Errorf("%w: resource directory at 0x%x is outside any section", ErrFormat, dir.VirtualAddress)
	}
	return sec, nil
}

// RVAToOffset translates an RVA backed by file data into a file offset.
func (img *Image) RVAToOffset(rva uint32) (uint32, bool) {
	sec := img.SectionAt(rva)
	if sec == nil {
		if rva < img.SizeOfHeaders {
			return rva, true
		}
		return 0, false
	}
	delta := rva - sec.VirtualAddress
	if delta >= sec.SizeOfRawData {
		return 0, false
	}
	return sec.PointerToRawData + delta, true
}
