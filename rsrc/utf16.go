// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package rsrc

import (
	"encoding/binary"

	"golang.org/x/text/encoding/unicode"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func encodeUTF16(s string) []byte {
	b, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil
	}
	return b
}

func decodeUTF16(b []byte) string {
	s, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(s)
}

func utf16Units(s string) []uint16 {
	b := encodeUTF16(s)
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return units
}
