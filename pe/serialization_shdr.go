// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package pe

import (
	"bytes"
	"encoding/binary"
	"io"
)

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

func sectionName(raw [8]byte) string {
	if i := bytes.IndexByte(raw[:], 0); i >= 0 {
		return string(raw[:i])
	}
	return string(raw[:])
}

func (img *Image) readSectionHeader(r io.Reader) (*Section, error) {
	var sh sectionHeader
	if err := binary.Read(r, binary.LittleEndian, &sh); err != nil {
		return nil, err
	}

	return &Section{
		Name:                 sectionName(sh.Name),
		rawName:              sh.Name,
		VirtualSize:          sh.VirtualSize,
		VirtualAddress:       sh.VirtualAddress,
		SizeOfRawData:        sh.SizeOfRawData,
		PointerToRawData:     sh.PointerToRawData,
		PointerToRelocations: sh.PointerToRelocations,
		PointerToLinenumbers: sh.PointerToLinenumbers,
		NumberOfRelocations:  sh.NumberOfRelocations,
		NumberOfLinenumbers:  sh.NumberOfLinenumbers,
		Characteristics:      SectionFlag(sh.Characteristics),
	}, nil
}

func (img *Image) writeSectionHeader(w io.Writer, input *Section) error {
	var sh sectionHeader

	// Keep the original name bytes unless the name was changed, so
	// "/4"-style long name references and trailing garbage survive.
	if sectionName(input.rawName) == input.Name {
		sh.Name = input.rawName
	} else {
		copy(sh.Name[:], input.Name)
	}
	sh.VirtualSize = input.VirtualSize
	sh.VirtualAddress = input.VirtualAddress
	sh.SizeOfRawData = input.SizeOfRawData
	sh.PointerToRawData = input.PointerToRawData
	sh.PointerToRelocations = input.PointerToRelocations
	sh.PointerToLinenumbers = input.PointerToLinenumbers
	sh.NumberOfRelocations = input.NumberOfRelocations
	sh.NumberOfLinenumbers = input.NumberOfLinenumbers
	sh.Characteristics = uint32(input.Characteristics)

	return binary.Write(w, binary.LittleEndian, &sh)
}
