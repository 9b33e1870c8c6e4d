// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package pe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

type fileHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

type optionalHeader32 struct {
	Magic                       uint16
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	BaseOfData                  uint32
	ImageBase                   uint32
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
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint32
	SizeOfStackCommit           uint32
	SizeOfHeapReserve           uint32
	SizeOfHeapCommit            uint32
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
}

type optionalHeader64 struct {
	Magic                       uint16
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
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
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint64
	SizeOfStackCommit           uint64
	SizeOfHeapReserve           uint64
	SizeOfHeapCommit            uint64
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
}

// The checksum field sits at the same offset in both optional header layouts.
const checksumFieldOffset = 64

func (img *Image) Is64() bool {
	return img.Magic == IMAGE_NT_OPTIONAL_HDR64_MAGIC
}

func (img *Image) sizeOptionalHeader() int {
	if img.Is64() {
		return binary.Size(&optionalHeader64{})
	} else {
		return binary.Size(&optionalHeader32{})
	}
}

func (img *Image) readFileHeader(r io.Reader) error {
	var fh fileHeader
	if err := binary.Read(r, binary.LittleEndian, &fh); err != nil {
		return err
	}

	img.Machine = MachineType(fh.Machine)
	img.NumberOfSections = fh.NumberOfSections
	img.TimeDateStamp = fh.TimeDateStamp
	img.PointerToSymbolTable = fh.PointerToSymbolTable
	img.NumberOfSymbols = fh.NumberOfSymbols
	img.SizeOfOptionalHeader = fh.SizeOfOptionalHeader
	img.Characteristics = fh.Characteristics
	return nil
}

func (img *Image) writeFileHeader(w io.Writer) error {
	fh := fileHeader{
		Machine:              uint16(img.Machine),
		NumberOfSections:     img.NumberOfSections,
		TimeDateStamp:        img.TimeDateStamp,
		PointerToSymbolTable: img.PointerToSymbolTable,
		NumberOfSymbols:      img.NumberOfSymbols,
		SizeOfOptionalHeader: img.SizeOfOptionalHeader,
		Characteristics:      img.Characteristics,
	}
	return binary.Write(w, binary.LittleEndian, &fh)
}

func (img *Image) readOptionalHeader(b []byte) error {
	if len(b) < 2 {
		return fmt.Errorf("%w: optional header truncated", ErrFormat)
	}
	img.Magic = OptionalHeaderMagic(binary.LittleEndian.Uint16(b))
	if img.Magic != IMAGE_NT_OPTIONAL_HDR32_MAGIC && img.Magic != IMAGE_NT_OPTIONAL_HDR64_MAGIC {
		return fmt.Errorf("%w: invalid optional header magic 0x%x", ErrFormat, uint16(img.Magic))
	}
	if len(b) < img.sizeOptionalHeader() {
		return fmt.Errorf("%w: optional header is %d bytes, need %d", ErrFormat, len(b), img.sizeOptionalHeader())
	}

	r := bytes.NewReader(b)
	var rvaCount uint32

	if img.Is64() {
		var oh optionalHeader64
		if err := binary.Read(r, binary.LittleEndian, &oh); err != nil {
			return err
		}

		img.MajorLinkerVersion = oh.MajorLinkerVersion
		img.MinorLinkerVersion = oh.MinorLinkerVersion
		img.SizeOfCode = oh.SizeOfCode
		img.SizeOfInitializedData = oh.SizeOfInitializedData
		img.SizeOfUninitializedData = oh.SizeOfUninitializedData
		img.AddressOfEntryPoint = oh.AddressOfEntryPoint
		img.BaseOfCode = oh.BaseOfCode
		img.BaseOfData = 0
		img.ImageBase = oh.ImageBase
		img.SectionAlignment = oh.SectionAlignment
		img.FileAlignment = oh.FileAlignment
		img.MajorOperatingSystemVersion = oh.MajorOperatingSystemVersion
		img.MinorOperatingSystemVersion = oh.MinorOperatingSystemVersion
		img.MajorImageVersion = oh.MajorImageVersion
		img.MinorImageVersion = oh.MinorImageVersion
		img.MajorSubsystemVersion = oh.MajorSubsystemVersion
		img.MinorSubsystemVersion = oh.MinorSubsystemVersion
		img.Win32VersionValue = oh.Win32VersionValue
		img.SizeOfImage = oh.SizeOfImage
		img.SizeOfHeaders = oh.SizeOfHeaders
		img.CheckSum = oh.CheckSum
		img.Subsystem = Subsystem(oh.Subsystem)
		img.DllCharacteristics = oh.DllCharacteristics
		img.SizeOfStackReserve = oh.SizeOfStackReserve
		img.SizeOfStackCommit = oh.SizeOfStackCommit
		img.SizeOfHeapReserve = oh.SizeOfHeapReserve
		img.SizeOfHeapCommit = oh.SizeOfHeapCommit
		img.LoaderFlags = oh.LoaderFlags
		rvaCount = oh.NumberOfRvaAndSizes
	} else {
		var oh optionalHeader32
		if err := binary.Read(r, binary.LittleEndian, &oh); err != nil {
			return err
		}

		img.MajorLinkerVersion = oh.MajorLinkerVersion
		img.MinorLinkerVersion = oh.MinorLinkerVersion
		img.SizeOfCode = oh.SizeOfCode
		img.SizeOfInitializedData = oh.SizeOfInitializedData
		img.SizeOfUninitializedData = oh.SizeOfUninitializedData
		img.AddressOfEntryPoint = oh.AddressOfEntryPoint
		img.BaseOfCode = oh.BaseOfCode
		img.BaseOfData = oh.BaseOfData
		img.ImageBase = uint64(oh.ImageBase)
		img.SectionAlignment = oh.SectionAlignment
		img.FileAlignment = oh.FileAlignment
		img.MajorOperatingSystemVersion = oh.MajorOperatingSystemVersion
		img.MinorOperatingSystemVersion = oh.MinorOperatingSystemVersion
		img.MajorImageVersion = oh.MajorImageVersion
		img.MinorImageVersion = oh.MinorImageVersion
		img.MajorSubsystemVersion = oh.MajorSubsystemVersion
		img.MinorSubsystemVersion = oh.MinorSubsystemVersion
		img.Win32VersionValue = oh.Win32VersionValue
		img.SizeOfImage = oh.SizeOfImage
		img.SizeOfHeaders = oh.SizeOfHeaders
		img.CheckSum = oh.CheckSum
		img.Subsystem = Subsystem(oh.Subsystem)
		img.DllCharacteristics = oh.DllCharacteristics
		img.SizeOfStackReserve = uint64(oh.SizeOfStackReserve)
		img.SizeOfStackCommit = uint64(oh.SizeOfStackCommit)
		img.SizeOfHeapReserve = uint64(oh.SizeOfHeapReserve)
		img.SizeOfHeapCommit = uint64(oh.SizeOfHeapCommit)
		img.LoaderFlags = oh.LoaderFlags
		rvaCount = oh.NumberOfRvaAndSizes
	}

	if rvaCount > IMAGE_NUMBEROF_DIRECTORY_ENTRIES {
		return fmt.Errorf("%w: %d data directories", ErrFormat, rvaCount)
	}
	if img.sizeOptionalHeader()+int(rvaCount)*IMAGE_DATA_DIRECTORY_SIZE > len(b) {
		return fmt.Errorf("%w: data directories exceed optional header", ErrFormat)
	}

	img.DataDirectory = make([]DataDirectory, rvaCount)
	if err := binary.Read(r, binary.LittleEndian, img.DataDirectory); err != nil {
		return err
	}

	if img.FileAlignment == 0 || img.SectionAlignment == 0 {
		return fmt.Errorf("%w: zero alignment", ErrFormat)
	}

	return nil
}

func (img *Image) writeOptionalHeader(w io.Writer) error {
	if img.Is64() {
		oh := optionalHeader64{
			Magic:                       uint16(img.Magic),
			MajorLinkerVersion:          img.MajorLinkerVersion,
			MinorLinkerVersion:          img.MinorLinkerVersion,
			SizeOfCode:                  img.SizeOfCode,
			SizeOfInitializedData:       img.SizeOfInitializedData,
			SizeOfUninitializedData:     img.SizeOfUninitializedData,
			AddressOfEntryPoint:         img.AddressOfEntryPoint,
			BaseOfCode:                  img.BaseOfCode,
			ImageBase:                   img.ImageBase,
			SectionAlignment:            img.SectionAlignment,
			FileAlignment:               img.FileAlignment,
			MajorOperatingSystemVersion: img.MajorOperatingSystemVersion,
			MinorOperatingSystemVersion: img.MinorOperatingSystemVersion,
			MajorImageVersion:           img.MajorImageVersion,
			MinorImageVersion:           img.MinorImageVersion,
			MajorSubsystemVersion:       img.MajorSubsystemVersion,
			MinorSubsystemVersion:       img.MinorSubsystemVersion,
			Win32VersionValue:           img.Win32VersionValue,
			SizeOfImage:                 img.SizeOfImage,
			SizeOfHeaders:               img.SizeOfHeaders,
			CheckSum:                    img.CheckSum,
			Subsystem:                   uint16(img.Subsystem),
			DllCharacteristics:          img.DllCharacteristics,
			SizeOfStackReserve:          img.SizeOfStackReserve,
			SizeOfStackCommit:           img.SizeOfStackCommit,
			SizeOfHeapReserve:           img.SizeOfHeapReserve,
			SizeOfHeapCommit:            img.SizeOfHeapCommit,
			LoaderFlags:                 img.LoaderFlags,
			NumberOfRvaAndSizes:         uint32(len(img.DataDirectory)),
		}
		if err := binary.Write(w, binary.LittleEndian, &oh); err != nil {
			return err
		}
	} else {
		oh := optionalHeader32{
			Magic:                       uint16(img.Magic),
			MajorLinkerVersion:          img.MajorLinkerVersion,
			MinorLinkerVersion:          img.MinorLinkerVersion,
			SizeOfCode:                  img.SizeOfCode,
			SizeOfInitializedData:       img.SizeOfInitializedData,
			SizeOfUninitializedData:     img.SizeOfUninitializedData,
			AddressOfEntryPoint:         img.AddressOfEntryPoint,
			BaseOfCode:                  img.BaseOfCode,
			BaseOfData:                  img.BaseOfData,
			ImageBase:                   uint32(img.ImageBase),
			SectionAlignment:            img.SectionAlignment,
			FileAlignment:               img.FileAlignment,
			MajorOperatingSystemVersion: img.MajorOperatingSystemVersion,
			MinorOperatingSystemVersion: img.MinorOperatingSystemVersion,
			MajorImageVersion:           img.MajorImageVersion,
			MinorImageVersion:           img.MinorImageVersion,
			MajorSubsystemVersion:       img.MajorSubsystemVersion,
			MinorSubsystemVersion:       img.MinorSubsystemVersion,
			Win32VersionValue:           img.Win32VersionValue,
			SizeOfImage:                 img.SizeOfImage,
			SizeOfHeaders:               img.SizeOfHeaders,
			CheckSum:                    img.CheckSum,
			Subsystem:                   uint16(img.Subsystem),
			DllCharacteristics:          img.DllCharacteristics,
			SizeOfStackReserve:          uint32(img.SizeOfStackReserve),
			SizeOfStackCommit:           uint32(img.SizeOfStackCommit),
			SizeOfHeapReserve:           uint32(img.SizeOfHeapReserve),
			SizeOfHeapCommit:            uint32(img.SizeOfHeapCommit),
			LoaderFlags:                 img.LoaderFlags,
			NumberOfRvaAndSizes:         uint32(len(img.DataDirectory)),
		}
		if err := binary.Write(w, binary.LittleEndian, &oh); err != nil {
			return err
		}
	}

	return binary.Write(w, binary.LittleEndian, img.DataDirectory)
}
