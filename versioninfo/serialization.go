// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package versioninfo

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	keyVersionInfo    = "VS_VERSION_INFO"
	keyStringFileInfo = "StringFileInfo"
	keyVarFileInfo    = "VarFileInfo"
	keyTranslation    = "Translation"

	fixedFileInfoSize = 52
)

type fixedFileInfo struct {
	Signature        uint32
	StrucVersion     uint32
	FileVersionMS    uint32
	FileVersionLS    uint32
	ProductVersionMS uint32
	ProductVersionLS uint32
	FileFlagsMask    uint32
	FileFlags        uint32
	FileOS           uint32
	FileType         uint32
	FileSubtype      uint32
	FileDateMS       uint32
	FileDateLS       uint32
}

// Decode parses a VS_VERSIONINFO resource.
func Decode(data []byte) (*Info, error) {
	root, _, err := readBlock(data, 0, 0)
	if err != nil {
		return nil, err
	}
	if root.Key != keyVersionInfo {
		return nil, fmt.Errorf("%w: root block %q", ErrInvalidVersionInfo, root.Key)
	}

	info := &Info{}
	if len(root.Value) > 0 {
		if len(root.Value) < fixedFileInfoSize {
			return nil, fmt.Errorf("%w: fixed file info of %d bytes", ErrInvalidVersionInfo, len(root.Value))
		}
		var ffi fixedFileInfo
		if err := binary.Read(bytes.NewReader(root.Value), binary.LittleEndian, &ffi); err != nil {
			return nil, err
		}
		if ffi.Signature != VS_FFI_SIGNATURE {
			return nil, fmt.Errorf("%w: fixed file info signature 0x%08x", ErrInvalidVersionInfo, ffi.Signature)
		}
		info.Fixed = FixedInfo{
			FileVersion:    joinQuad(ffi.FileVersionMS, ffi.FileVersionLS),
			ProductVersion: joinQuad(ffi.ProductVersionMS, ffi.ProductVersionLS),
			FileFlagsMask:  ffi.FileFlagsMask,
			FileFlags:      ffi.FileFlags,
			FileOS:         ffi.FileOS,
			FileType:       ffi.FileType,
			FileSubtype:    ffi.FileSubtype,
			FileDate:       uint64(ffi.FileDateMS)<<32 | uint64(ffi.FileDateLS),
		}
	}

	for _, c := range root.Children {
		switch c.Key {
		case keyStringFileInfo:
			for _, tb := range c.Children {
				table := &StringTable{Key: tb.Key}
				for _, s := range tb.Children {
					table.Strings = append(table.Strings, String{Key: s.Key, Value: decodeUTF16Z(s.Value)})
				}
				info.Tables = append(info.Tables, table)
			}
		case keyVarFileInfo:
			for _, v := range c.Children {
				if v.Key != keyTranslation {
					continue
				}
				for i := 0; i+4 <= len(v.Value); i += 4 {
					info.Translations = append(info.Translations, Translation{
						Language: binary.LittleEndian.Uint16(v.Value[i:]),
						CodePage: binary.LittleEndian.Uint16(v.Value[i+2:]),
					})
				}
			}
		default:
			info.extra = append(info.extra, c)
		}
	}
	return info, nil
}

func (info *Info) tree() (*block, error) {
	f := info.Fixed
	fileMS, fileLS := f.FileVersion.split()
	productMS, productLS := f.ProductVersion.split()
	ffi := fixedFileInfo{
		Signature:        VS_FFI_SIGNATURE,
		StrucVersion:     VS_FFI_STRUCVERSION,
		FileVersionMS:    fileMS,
		FileVersionLS:    fileLS,
		ProductVersionMS: productMS,
		ProductVersionLS: productLS,
		FileFlagsMask:    f.FileFlagsMask,
		FileFlags:        f.FileFlags,
		FileOS:           f.FileOS,
		FileType:         f.FileType,
		FileSubtype:      f.FileSubtype,
		FileDateMS:       uint32(f.FileDate >> 32),
		FileDateLS:       uint32(f.FileDate),
	}
	var value bytes.Buffer
	if err := binary.Write(&value, binary.LittleEndian, &ffi); err != nil {
		return nil, err
	}

	root := &block{Key: keyVersionInfo, Type: typeBinary, Value: value.Bytes()}

	if len(info.Tables) > 0 {
		sfi := &block{Key: keyStringFileInfo, Type: typeText}
		for _, t := range info.Tables {
			tb := &block{Key: t.Key, Type: typeText}
			for _, s := range t.Strings {
				tb.Children = append(tb.Children, &block{Key: s.Key, Type: typeText, Value: encodeUTF16Z(s.Value)})
			}
			sfi.Children = append(sfi.Children, tb)
		}
		root.Children = append(root.Children, sfi)
	}

	translations := info.Translations
	if len(translations) == 0 {
		for _, t := range info.Tables {
			if tr, ok := parseTranslation(t.Key); ok {
				translations = append(translations, tr)
			}
		}
	}
	if len(translations) > 0 {
		var v bytes.Buffer
		for _, t := range translations {
			binary.Write(&v, binary.LittleEndian, t)
		}
		root.Children = append(root.Children, &block{
			Key:  keyVarFileInfo,
			Type: typeText,
			Children: []*block{
				{Key: keyTranslation, Type: typeBinary, Value: v.Bytes()},
			},
		})
	}

	root.Children = append(root.Children, info.extra...)
	return root, nil
}

// Encode serializes the resource.
func (info *Info) Encode() ([]byte, error) {
	root, err := info.tree()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := root.write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
