// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

// Package petest builds small synthetic PE images for tests.
//
// The images are laid out the way common linkers produce them: headers
// padded to HeaderSize, sections packed in address order with file alignment
// 0x200 and section alignment 0x1000, optional overlay and certificate table
// at the end of the file. It deliberately shares no code with package pe.
package petest

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

const (
	FileAlignment    = 0x200
	SectionAlignment = 0x1000
	PEOffset         = 0x80

	CharacteristicsCode  = 0x60000020
	CharacteristicsData  = 0xC0000040
	CharacteristicsRsrc  = 0x40000040
	CharacteristicsReloc = 0x42000040
)

type Section struct {
	Name            string
	Data            []byte
	VirtualSize     uint32
	Characteristics uint32
}

type Options struct {
	PE32Plus bool
	DLL      bool
	Machine  uint16

	// HeaderSize is SizeOfHeaders; defaults to 0x400.
	HeaderSize uint32
	// DataDirectories is NumberOfRvaAndSizes; defaults to 16.
	DataDirectories uint32
	// FillHeader writes non-zero bytes after the section table, leaving no
	// room for another section header.
	FillHeader bool

	// Sections precede the resource section. Defaults to a single .text.
	Sections []Section
	// Resources, when set, produces a .rsrc section at the given RVA.
	Resources func(rva uint32) []byte
	// ResourcePrefix precedes the resource directory inside .rsrc.
	ResourcePrefix []byte
	// ResourceTrailer follows the resource data inside .rsrc and is mapped,
	// but the resource directory entry does not cover it.
	ResourceTrailer []byte
	// ResourceSlack is extra raw space reserved after the resource data.
	ResourceSlack uint32
	// Trailing sections follow the resource section.
	Trailing []Section
	// Reloc appends a discardable .reloc section with one base relocation block.
	Reloc bool

	Overlay     []byte
	Certificate []byte
}

type fileHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

type sectionHeader struct {
	Name                 [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLinenumbers uint32
	NumberOfRelocations  uint16
	NumberOfLinenumbers  uint16
	Characteristics      uint32
}

type dataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

func alignUp(v uint32, a uint32) uint32 {
	return (v + a - 1) / a * a
}

// DefaultText is the content of the default .text section.
var DefaultText = append([]byte{0x55, 0x48, 0x89, 0xE5, 0x31, 0xC0, 0x5D, 0xC3}, bytes.Repeat([]byte{0xCC}, 56)...)

func Build(opts Options) []byte {
	if opts.HeaderSize == 0 {
		opts.HeaderSize = 0x400
	}
	if opts.DataDirectories == 0 {
		opts.DataDirectories = 16
	}
	if opts.Machine == 0 {
		if opts.PE32Plus {
			opts.Machine = 0x8664
		} else {
			opts.Machine = 0x14C
		}
	}
	if opts.Sections == nil {
		opts.Sections = []Section{{Name: ".text", Data: DefaultText, Characteristics: CharacteristicsCode}}
	}

	dirs := make([]dataDirectory, opts.DataDirectories)
	var headers []sectionHeader
	var contents [][]byte

	rva := uint32(SectionAlignment)
	raw := opts.HeaderSize
	add := func(s Section, slack uint32) {
		vsize := s.VirtualSize
		if vsize == 0 {
			vsize = uint32(len(s.Data))
		}
		var sh sectionHeader
		copy(sh.Name[:], s.Name)
		sh.VirtualSize = vsize
		sh.VirtualAddress = rva
		sh.Characteristics = s.Characteristics
		if len(s.Data) > 0 || slack > 0 {
			sh.SizeOfRawData = alignUp(uint32(len(s.Data))+slack, FileAlignment)
			sh.PointerToRawData = raw
			raw += sh.SizeOfRawData
		}
		headers = append(headers, sh)
		content := make([]byte, sh.SizeOfRawData)
		copy(content, s.Data)
		contents = append(contents, content)
		rva = alignUp(rva+max(vsize, 1), SectionAlignment)
	}

	for _, s := range opts.Sections {
		add(s, 0)
	}
	if opts.Resources != nil {
		root := rva + uint32(len(opts.ResourcePrefix))
		data := opts.Resources(root)
		if len(dirs) > 2 {
			dirs[2] = dataDirectory{root, uint32(len(data))}
		}
		data = append(bytes.Clone(opts.ResourcePrefix), data...)
		data = append(data, opts.ResourceTrailer...)
		add(Section{Name: ".rsrc", Data: data, Characteristics: CharacteristicsRsrc}, opts.ResourceSlack)
	}
	for _, s := range opts.Trailing {
		add(s, 0)
	}
	if opts.Reloc {
		block := make([]byte, 12)
		binary.LittleEndian.PutUint32(block[0:], SectionAlignment)
		binary.LittleEndian.PutUint32(block[4:], 12)
		binary.LittleEndian.PutUint16(block[8:], 0x3000|0x010)
		if len(dirs) > 5 {
			dirs[5] = dataDirectory{rva, uint32(len(block))}
		}
		add(Section{Name: ".reloc", Data: block, Characteristics: CharacteristicsReloc}, 0)
	}

	var sizeOfCode, sizeOfData uint32
	for _, sh := range headers {
		if sh.Characteristics&0x20 != 0 {
			sizeOfCode += sh.SizeOfRawData
		} else if sh.Characteristics&0x40 != 0 {
			sizeOfData += sh.SizeOfRawData
		}
	}

	var buf bytes.Buffer
	dos := make([]byte, PEOffset)
	dos[0], dos[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(dos[0x3C:], PEOffset)
	copy(dos[0x40:], "This program cannot be run in DOS mode.\r\n$")
	buf.Write(dos)
	buf.WriteString("PE\x00\x00")

	optionalSize := uint16(96 + 8*len(dirs))
	characteristics := uint16(0x0002 | 0x0100)
	if opts.PE32Plus {
		optionalSize = uint16(112 + 8*len(dirs))
		characteristics = 0x0002 | 0x0020
	}
	if opts.DLL {
		characteristics |= 0x2000
	}
	write(&buf, fileHeader{
		Machine:              opts.Machine,
		NumberOfSections:     uint16(len(headers)),
		TimeDateStamp:        0x5F000000,
		SizeOfOptionalHeader: optionalSize,
		Characteristics:      characteristics,
	})

	common := func(magic uint16) {
		write(&buf, magic)
		write(&buf, [2]uint8{14, 0})
		write(&buf, [5]uint32{sizeOfCode, sizeOfData, 0, SectionAlignment, SectionAlignment})
	}
	tail := []any{
		uint32(SectionAlignment), uint32(FileAlignment),
		[6]uint16{6, 0, 0, 0, 6, 0},
		uint32(0),
		rva,
		opts.HeaderSize,
		uint32(0), // checksum
		uint16(3),
		uint16(0x8160),
	}
	if opts.PE32Plus {
		common(0x20B)
		write(&buf, uint64(0x140000000))
		for _, v := range tail {
			write(&buf, v)
		}
		write(&buf, [4]uint64{0x100000, 0x1000, 0x100000, 0x1000})
	} else {
		common(0x10B)
		write(&buf, uint32(SectionAlignment)) // BaseOfData
		write(&buf, uint32(0x400000))
		for _, v := range tail {
			write(&buf, v)
		}
		write(&buf, [4]uint32{0x100000, 0x1000, 0x100000, 0x1000})
	}
	write(&buf, uint32(0))
	write(&buf, uint32(len(dirs)))

	// The certificate directory holds a file offset, known only once the
	// full layout is.
	overlayEnd := raw + uint32(len(opts.Overlay))
	if len(opts.Certificate) > 0 && len(dirs) > 4 {
		dirs[4] = dataDirectory{alignUp(overlayEnd, 8), uint32(8 + len(opts.Certificate))}
	}
	write(&buf, dirs)

	for _, sh := range headers {
		write(&buf, sh)
	}
	if opts.FillHeader {
		for buf.Len() < int(opts.HeaderSize) {
			buf.WriteByte(0xEE)
		}
	}
	if buf.Len() > int(opts.HeaderSize) {
		panic("petest: headers exceed HeaderSize")
	}
	buf.Write(make([]byte, int(opts.HeaderSize)-buf.Len()))

	for _, c := range contents {
		buf.Write(c)
	}
	buf.Write(opts.Overlay)

	if len(opts.Certificate) > 0 {
		buf.Write(make([]byte, int(alignUp(overlayEnd, 8)-overlayEnd)))
		write(&buf, uint32(8+len(opts.Certificate)))
		write(&buf, uint16(0x0200))
		write(&buf, uint16(0x0002))
		buf.Write(opts.Certificate)
		for buf.Len()%8 != 0 {
			buf.WriteByte(0)
		}
	}

	return buf.Bytes()
}

func write(buf *bytes.Buffer, v any) {
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
}

// WriteFile stores data in a fresh temporary directory and returns its path.
func WriteFile(tb testing.TB, name string, data []byte) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), name)
	if err := os.WriteFile(path, data, 0o755); err != nil {
		tb.Fatal(err)
	}
	return path
}
