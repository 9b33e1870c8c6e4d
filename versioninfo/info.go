// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

// Package versioninfo reads, merges and writes VS_VERSIONINFO resources.
package versioninfo

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var ErrInvalidVersionInfo = errors.New("versioninfo: invalid version resource")

const (
	VS_FFI_SIGNATURE     = 0xFEEF04BD
	VS_FFI_STRUCVERSION  = 0x00010000
	VS_FFI_FILEFLAGSMASK = 0x0000003F

	VOS_NT_WINDOWS32 = 0x00040004

	VFT_UNKNOWN = 0
	VFT_APP     = 1
	VFT_DLL     = 2
)

// Well-known string keys, in the order they are written.
const (
	CompanyName      = "CompanyName"
	FileDescription  = "FileDescription"
	FileVersion      = "FileVersion"
	InternalName     = "InternalName"
	LegalCopyright   = "LegalCopyright"
	OriginalFilename = "OriginalFilename"
	ProductName      = "ProductName"
	ProductVersion   = "ProductVersion"
)

var wellKnownKeys = []string{
	CompanyName,
	FileDescription,
	FileVersion,
	InternalName,
	LegalCopyright,
	OriginalFilename,
	ProductName,
	ProductVersion,
}

// Quad is a four-part version number, most significant part first.
type Quad [4]uint16

// ParseQuad parses one to four dot-separated 16-bit numbers.
func ParseQuad(s string) (Quad, error) {
	var q Quad
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) > 4 {
		return q, fmt.Errorf("version %q has more than four parts", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return q, fmt.Errorf("version %q: %w", s, err)
		}
		q[i] = uint16(v)
	}
	return q, nil
}

func (q Quad) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", q[0], q[1], q[2], q[3])
}

func (q Quad) split() (uint32, uint32) {
	return uint32(q[0])<<16 | uint32(q[1]), uint32(q[2])<<16 | uint32(q[3])
}

func joinQuad(ms, ls uint32) Quad {
	return Quad{uint16(ms >> 16), uint16(ms), uint16(ls >> 16), uint16(ls)}
}

// FixedInfo is VS_FIXEDFILEINFO without its signature and structure version.
type FixedInfo struct {
	FileVersion    Quad
	ProductVersion Quad
	FileFlagsMask  uint32
	FileFlags      uint32
	FileOS         uint32
	FileType       uint32
	FileSubtype    uint32
	FileDate       uint64
}

type Translation struct {
	Language uint16
	CodePage uint16
}

// DefaultTranslation is US English, Unicode.
var DefaultTranslation = Translation{Language: 0x0409, CodePage: 0x04B0}

// String renders the translation as a string table key, e.g. "040904b0".
func (t Translation) String() string {
	return fmt.Sprintf("%04x%04x", t.Language, t.CodePage)
}

func parseTranslation(key string) (Translation, bool) {
	v, err := strconv.ParseUint(key, 16, 32)
	if err != nil || len(key) != 8 {
		return Translation{}, false
	}
	return Translation{Language: uint16(v >> 16), CodePage: uint16(v)}, true
}

type String struct {
	Key   string
	Value string
}

// StringTable holds the strings of one language and code page. Key is the
// table name as stored, normally the hex form of a Translation.
type StringTable struct {
	Key     string
	Strings []String
}

func (t *StringTable) Get(key string) (string, bool) {
	for _, s := range t.Strings {
		if s.Key == key {
			return s.Value, true
		}
	}
	return "", false
}

func rank(key string) int {
	if i := slices.Index(wellKnownKeys, key); i >= 0 {
		return i
	}
	return len(wellKnownKeys)
}

// Set replaces the value of key in place, or inserts it: well-known keys go
// before the first entry that sorts after them, other keys at the end.
func (t *StringTable) Set(key, value string) {
	for i := range t.Strings {
		if t.Strings[i].Key == key {
			t.Strings[i].Value = value
			return
		}
	}
	r := rank(key)
	at := len(t.Strings)
	if r < len(wellKnownKeys) {
		at = slices.IndexFunc(t.Strings, func(s String) bool { return rank(s.Key) > r })
		if at < 0 {
			at = len(t.Strings)
		}
	}
	t.Strings = slices.Insert(t.Strings, at, String{Key: key, Value: value})
}

func (t *StringTable) Delete(key string) bool {
	n := len(t.Strings)
	t.Strings = slices.DeleteFunc(t.Strings, func(s String) bool { return s.Key == key })
	return len(t.Strings) != n
}

type Info struct {
	Fixed        FixedInfo
	Tables       []*StringTable
	Translations []Translation

	// Unrecognized top-level blocks, written back unchanged.
	extra []*block
}

// New returns an empty version resource for a file of the given VFT_ type.
func New(fileType uint32) *Info {
	return &Info{
		Fixed: FixedInfo{
			FileFlagsMask: VS_FFI_FILEFLAGSMASK,
			FileOS:        VOS_NT_WINDOWS32,
			FileType:      fileType,
		},
	}
}

// Table returns the first string table, creating a US English one if there
// is none.
func (info *Info) Table() *StringTable {
	if len(info.Tables) == 0 {
		info.Tables = append(info.Tables, &StringTable{Key: DefaultTranslation.String()})
		if len(info.Translations) == 0 {
			info.Translations = append(info.Translations, DefaultTranslation)
		}
	}
	return info.Tables[0]
}

// Get looks key up in the first string table.
func (info *Info) Get(key string) (string, bool) {
	if len(info.Tables) == 0 {
		return "", false
	}
	return info.Tables[0].Get(key)
}

// Set stores a string in the first string table. FileVersion and
// ProductVersion values that parse as version numbers also update the
// matching fixed field. Any key is accepted: well-known keys are kept in
// their conventional order, other keys follow them in the order they were
// first set.
func (info *Info) Set(key, value string) {
	info.Table().Set(key, value)
	switch key {
	case FileVersion:
		if q, err := ParseQuad(value); err == nil {
			info.Fixed.FileVersion = q
		}
	case ProductVersion:
		if q, err := ParseQuad(value); err == nil {
			info.Fixed.ProductVersion = q
		}
	}
}

// SetVersion sets both file and product version.
func (info *Info) SetVersion(version string) {
	info.Set(FileVersion, version)
	info.Set(ProductVersion, version)
}

// Strings returns the first string table as a map.
func (info *Info) Strings() map[string]string {
	m := make(map[string]string)
	if len(info.Tables) > 0 {
		for _, s := range info.Tables[0].Strings {
			m[s.Key] = s.Value
		}
	}
	return m
}
