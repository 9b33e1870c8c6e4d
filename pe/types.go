// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package pe

// Image is a parsed PE file backed by its full byte buffer.
// Header fields are decoded into the structs below; edits are made to them
// and written back to the buffer by writeHeaders.
type Image struct {
	FileHeader
	OptionalHeader
	Sections []*Section

	data               []byte
	peOffset           uint32
	optionalOffset     uint32
	sectionTableOffset uint32
}

type FileHeader struct {
	Machine              MachineType
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

// OptionalHeader holds the PE32 and PE32+ optional header in a single shape;
// fields narrower in PE32 are widened.
type OptionalHeader struct {
	Magic                       OptionalHeaderMagic
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	BaseOfData                  uint32 // PE32 only
	ImageBase                   uint64
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Win32VersionValue           uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   Subsystem
	DllCharacteristics          uint16
	SizeOfStackReserve          uint64
	SizeOfStackCommit           uint64
	SizeOfHeapReserve           uint64
	SizeOfHeapCommit            uint64
	LoaderFlags                 uint32
	DataDirectory               []DataDirectory
}

type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

type Section struct {
	Name                 string
	rawName              [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLinenumbers uint32
	NumberOfRelocations  uint16
	NumberOfLinenumbers  uint16
	Characteristics      SectionFlag
}

// VirtualEnd is the exclusive end RVA covered by the section in memory.
func (s *Section) VirtualEnd() uint32 {
	if s.VirtualSize == 0 {
		return s.VirtualAddress + s.SizeOfRawData
	}
	return s.VirtualAddress + s.VirtualSize
}

// RawEnd is the exclusive end offset of the section's data in the file.
func (s *Section) RawEnd() uint32 {
	return s.PointerToRawData + s.SizeOfRawData
}

func (s *Section) Contains(rva uint32) bool {
	return rva >= s.VirtualAddress && rva < s.VirtualEnd()
}
