// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package versioninfo

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

const (
	typeBinary = 0
	typeText   = 1

	blockHeaderSize = 6
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// block is the common node of all version resource structures: a length,
// a value length, a type, a NUL-terminated UTF-16 key, the value and the
// children, each of the last three starting on a 4-byte boundary.
type block struct {
	Key      string
	Type     uint16
	Value    []byte
	Children []*block
}

func align4(n int) int {
	return (n + 3) &^ 3
}

func encodeUTF16Z(s string) []byte {
	b, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		b = nil
	}
	return append(b, 0, 0)
}

// decodeUTF16Z decodes up to the first NUL.
func decodeUTF16Z(b []byte) string {
	for i := 0; i+1 < len(b); i += 2 {
		if b[i] == 0 && b[i+1] == 0 {
			b = b[:i]
			break
		}
	}
	s, err := utf16le.NewDecoder().Bytes(b[:len(b)&^1])
	if err != nil {
		return ""
	}
	return string(s)
}

// readBlock decodes the block at off. Offsets are relative to the start of
// the resource data, which is where alignment is measured from.
func readBlock(data []byte, off int, depth int) (*block, int, error) {
	if depth > 8 {
		return nil, 0, fmt.Errorf("%w: nesting too deep", ErrInvalidVersionInfo)
	}
	if off+blockHeaderSize > len(data) {
		return nil, 0, fmt.Errorf("%w: block header at 0x%x truncated", ErrInvalidVersionInfo, off)
	}
	length := int(binary.LittleEndian.Uint16(data[off:]))
	valueLength := int(binary.LittleEndian.Uint16(data[off+2:]))
	b := &block{Type: binary.LittleEndian.Uint16(data[off+4:])}

	end := off + length
	if length < blockHeaderSize || end > len(data) {
		return nil, 0, fmt.Errorf("%w: block at 0x%x has length %d", ErrInvalidVersionInfo, off, length)
	}

	p := off + blockHeaderSize
	keyEnd := p
	for keyEnd+1 < end && (data[keyEnd] != 0 || data[keyEnd+1] != 0) {
		keyEnd += 2
	}
	if keyEnd+1 >= end {
		return nil, 0, fmt.Errorf("%w: unterminated key at 0x%x", ErrInvalidVersionInfo, off)
	}
	b.Key = decodeUTF16Z(data[p:keyEnd])
	p = align4(keyEnd + 2)

	size := valueLength
	if b.Type == typeText {
		size *= 2
	}
	if p+size > end {
		// Some writers count text values in bytes.
		size = max(0, end-p)
	}
	if size > 0 {
		b.Value = bytes.Clone(data[p : p+size])
	}
	p = align4(p + size)

	for p+blockHeaderSize <= end {
		child, childEnd, err := readBlock(data, p, depth+1)
		if err != nil {
			return nil, 0, err
		}
		if childEnd > end {
			return nil, 0, fmt.Errorf("%w: block %q overruns its parent", ErrInvalidVersionInfo, child.Key)
		}
		b.Children = append(b.Children, child)
		p = align4(childEnd)
	}
	return b, end, nil
}

// write appends the block to buf, which must end on a 4-byte boundary.
// The block's own length excludes trailing padding; padding between
// children is counted by the parent.
func (b *block) write(buf *bytes.Buffer) error {
	start := buf.Len()
	buf.Write(make([]byte, blockHeaderSize))
	buf.Write(encodeUTF16Z(b.Key))
	pad(buf)
	buf.Write(b.Value)
	for _, c := range b.Children {
		pad(buf)
		if err := c.write(buf); err != nil {
			return err
		}
	}

	length := buf.Len() - start
	valueLength := len(b.Value)
	if b.Type == typeText {
		valueLength /= 2
	}
	if length > 0xFFFF || valueLength > 0xFFFF {
		return fmt.Errorf("version block %q of %d bytes is too large", b.Key, length)
	}
	out := buf.Bytes()[start:]
	binary.LittleEndian.PutUint16(out, uint16(length))
	binary.LittleEndian.PutUint16(out[2:], uint16(valueLength))
	binary.LittleEndian.PutUint16(out[4:], b.Type)
	return nil
}

func pad(buf *bytes.Buffer) {
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
}

func (b *block) child(key string) *block {
	for _, c := range b.Children {
		if c.Key == key {
			return c
		}
	}
	return nil
}
