// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package versioninfo

import (
	"encoding/binary"
	"testing"

	"github.com/Ghua8088/metaedit/rsrc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tc-hib/winres/version"
)

func u16(data []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(data[off:])
}

func TestEncodeLayout(t *testing.T) {
	info := New(VFT_APP)
	info.Set("A", "BC")
	data, err := info.Encode()
	require.NoError(t, err)

	assert.Len(t, data, 240)
	assert.Equal(t, uint16(240), u16(data, 0))
	assert.Equal(t, uint16(fixedFileInfoSize), u16(data, 2))
	assert.Equal(t, uint32(VS_FFI_SIGNATURE), binary.LittleEndian.Uint32(data[40:]))

	// StringFileInfo, its table and the single string.
	assert.Equal(t, uint16(78), u16(data, 92))
	assert.Equal(t, uint16(42), u16(data, 128))
	assert.Equal(t, []uint16{18, 3, typeText}, []uint16{u16(data, 152), u16(data, 154), u16(data, 156)},
		"string length excludes its trailing padding")

	// VarFileInfo starts on the next 4-byte boundary.
	assert.Equal(t, keyVarFileInfo, decodeUTF16Z(data[172+6:]))
	assert.Equal(t, uint16(4), u16(data, 204+2))
	assert.Equal(t, []byte{0x09, 0x04, 0xB0, 0x04}, data[236:240])
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	info := New(VFT_DLL)
	info.Fixed.FileFlags = 1
	info.Fixed.FileDate = 0x0102030405060708
	info.Set(CompanyName, "Example Corp")
	info.Set(FileDescription, "Ünïcødé ✓ 𝄞")
	info.Set("Comments", "")
	info.Tables = append(info.Tables, &StringTable{Key: "040704b0", Strings: []String{{Key: ProductName, Value: "Beispiel"}}})
	info.Translations = append(info.Translations, Translation{Language: 0x0407, CodePage: 0x04B0})
	info.extra = []*block{{Key: "Custom", Type: typeBinary, Value: []byte{1, 2, 3}}}

	data, err := info.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, info, decoded)

	again, err := decoded.Encode()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	info := New(VFT_APP)
	info.Set(ProductName, "x")
	valid, err := info.Encode()
	require.NoError(t, err)

	corrupt := func(off int, v uint16) []byte {
		d := append([]byte(nil), valid...)
		binary.LittleEndian.PutUint16(d[off:], v)
		return d
	}

	cases := map[string][]byte{
		"empty":      nil,
		"truncated":  valid[:len(valid)-2],
		"short":      corrupt(0, 4),
		"wrong key":  corrupt(6, 'W'),
		"signature":  corrupt(40, 0),
		"fixed info": corrupt(2, 8),
		"overrun":    corrupt(92, 0x7FFF),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data)
			assert.ErrorIs(t, err, ErrInvalidVersionInfo)
		})
	}
}

func TestSetOrder(t *testing.T) {
	info := New(VFT_APP)
	info.Set("Comments", "c")
	info.Set(ProductName, "p")
	info.Set(CompanyName, "a")
	info.Set(CompanyName, "b")

	var keys []string
	for _, s := range info.Tables[0].Strings {
		keys = append(keys, s.Key)
	}
	assert.Equal(t, []string{CompanyName, ProductName, "Comments"}, keys)
	v, ok := info.Get(CompanyName)
	assert.True(t, ok)
	assert.Equal(t, "b", v, "last write wins")
	assert.Equal(t, []Translation{DefaultTranslation}, info.Translations)
}

func TestSetCustomKeysFollowWellKnown(t *testing.T) {
	info := New(VFT_APP)
	info.Set("Zeta", "z")
	info.Set("Build", "7")
	info.Set(LegalCopyright, "(c)")
	info.Set(CompanyName, "a")

	var keys []string
	for _, s := range info.Tables[0].Strings {
		keys = append(keys, s.Key)
	}
	assert.Equal(t, []string{CompanyName, LegalCopyright, "Zeta", "Build"}, keys)
}

func TestSetVersion(t *testing.T) {
	info := New(VFT_APP)
	info.SetVersion("1.2.3")
	assert.Equal(t, Quad{1, 2, 3, 0}, info.Fixed.FileVersion)
	assert.Equal(t, Quad{1, 2, 3, 0}, info.Fixed.ProductVersion)

	info.SetVersion("2.0-beta")
	assert.Equal(t, Quad{1, 2, 3, 0}, info.Fixed.FileVersion, "non-numeric versions only set strings")
	assert.Equal(t, map[string]string{FileVersion: "2.0-beta", ProductVersion: "2.0-beta"}, info.Strings())
}

func TestParseQuad(t *testing.T) {
	q, err := ParseQuad(" 10.20.30.40 ")
	require.NoError(t, err)
	assert.Equal(t, Quad{10, 20, 30, 40}, q)
	assert.Equal(t, "10.20.30.40", q.String())

	for _, s := range []string{"", "1.2.3.4.5", "1.x", "70000"} {
		_, err := ParseQuad(s)
		assert.Error(t, err, s)
	}
}

func TestUpdateMerges(t *testing.T) {
	tree := rsrc.New()
	require.NoError(t, Update(tree, VFT_APP, func(info *Info) {
		info.Set(CompanyName, "A")
		info.Set(FileDescription, "B")
	}))
	require.NotNil(t, tree.Get(rsrc.ID(rsrc.RT_VERSION), rsrc.ID(1), rsrc.ID(rsrc.LANG_EN_US)))

	require.NoError(t, Update(tree, VFT_APP, func(info *Info) {
		info.Set(FileDescription, "C")
	}))
	info, err := Load(tree)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{CompanyName: "A", FileDescription: "C"}, info.Strings())
	assert.Equal(t, uint32(VFT_APP), info.Fixed.FileType)
}

func TestUpdateKeepsLocation(t *testing.T) {
	existing := New(VFT_DLL)
	existing.Set(ProductName, "P")
	data, err := existing.Encode()
	require.NoError(t, err)

	tree := rsrc.New()
	require.NoError(t, tree.Set(&rsrc.Leaf{Data: data, CodePage: 1252}, rsrc.ID(rsrc.RT_VERSION), rsrc.ID(1), rsrc.ID(0x0407)))
	require.NoError(t, Update(tree, VFT_APP, func(info *Info) { info.SetVersion("3.1") }))

	assert.Len(t, tree.Dir(rsrc.ID(rsrc.RT_VERSION), rsrc.ID(1)).Entries, 1)
	leaf := tree.Get(rsrc.ID(rsrc.RT_VERSION), rsrc.ID(1), rsrc.ID(0x0407)).Leaf
	assert.Equal(t, uint32(1252), leaf.CodePage)

	info, err := Decode(leaf.Data)
	require.NoError(t, err)
	assert.Equal(t, uint32(VFT_DLL), info.Fixed.FileType, "existing fixed fields kept")
	assert.Equal(t, Quad{3, 1, 0, 0}, info.Fixed.FileVersion)
	assert.Equal(t, "P", info.Strings()[ProductName])

	nilInfo, err := Load(rsrc.New())
	require.NoError(t, err)
	assert.Nil(t, nilInfo)

	require.NoError(t, tree.Set(&rsrc.Leaf{Data: []byte("junk")}, rsrc.ID(rsrc.RT_VERSION), rsrc.ID(1), rsrc.ID(0x0407)))
	assert.ErrorIs(t, Update(tree, VFT_APP, func(*Info) {}), ErrInvalidVersionInfo)
}

func TestWinresCompatibility(t *testing.T) {
	info := New(VFT_APP)
	info.SetVersion("1.2.3.4")
	info.Set(CompanyName, "Example Corp")
	info.Set(LegalCopyright, "© 2024")
	data, err := info.Encode()
	require.NoError(t, err)

	theirs, err := version.FromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, [4]uint16{1, 2, 3, 4}, theirs.FileVersion)
	assert.Equal(t, [4]uint16{1, 2, 3, 4}, theirs.ProductVersion)

	var ref version.Info
	ref.FileVersion = [4]uint16{5, 6, 7, 8}
	require.NoError(t, ref.Set(0x0409, "CompanyName", "Other Corp"))
	require.NoError(t, ref.Set(0x0409, "ProductName", "Thing"))

	ours, err := Decode(ref.Bytes())
	require.NoError(t, err)
	assert.Equal(t, Quad{5, 6, 7, 8}, ours.Fixed.FileVersion)
	assert.Equal(t, "Other Corp", ours.Strings()[CompanyName])
	assert.Equal(t, "Thing", ours.Strings()[ProductName])
	assert.Equal(t, "040904b0", ours.Tables[0].Key)
}
