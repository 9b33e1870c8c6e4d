// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package pe

import (
	"encoding/binary"
	"fmt"
)

// Checksum computes the PE image checksum of data: the 16-bit one's
// complement style word sum with carries folded back in, plus the file
// length. The four bytes at fieldOffset are summed as zero.
func Checksum(data []byte, fieldOffset int) uint32 {
	var sum uint32
	n := len(data)

	zeroed := func(i int) bool {
		return i >= fieldOffset && i < fieldOffset+4
	}

	for i := 0; i < n; i += 2 {
		var word uint32
		if !zeroed(i) {
			word = uint32(data[i])
		}
		if i+1 < n && !zeroed(i+1) {
			word |= uint32(data[i+1]) << 8
		}
		sum += word
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	sum = (sum & 0xFFFF) + (sum >> 16)

	return sum + uint32(n)
}

func (img *Image) checksumOffset() int {
	return int(img.optionalOffset) + checksumFieldOffset
}

// UpdateChecksum recomputes the checksum over the current buffer and stores it.
func (img *Image) UpdateChecksum() error {
	off := img.checksumOffset()
	if off+4 > len(img.data) || checksumFieldOffset+4 > int(img.SizeOfOptionalHeader) {
		return fmt.Errorf("%w: field at 0x%x outside optional header", ErrChecksumWrite, off)
	}
	img.CheckSum = Checksum(img.data, off)
	binary.LittleEndian.PutUint32(img.data[off:], img.CheckSum)
	return nil
}

// VerifyChecksum reports whether the stored checksum matches the contents.
func (img *Image) VerifyChecksum() bool {
	off := img.checksumOffset()
	if off+4 > len(img.data) {
		return false
	}
	return binary.LittleEndian.Uint32(img.data[off:]) == Checksum(img.data, off)
}
