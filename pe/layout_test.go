// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package pe

import (
	"bytes"
	"testing"

	"github.com/Ghua8088/metaedit/internal/petest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(b byte, n int) func(rva uint32) ([]byte, error) {
	return func(rva uint32) ([]byte, error) {
		return bytes.Repeat([]byte{b}, n), nil
	}
}

func resources(n int) func(rva uint32) []byte {
	return func(rva uint32) []byte {
		return bytes.Repeat([]byte{0x11}, n)
	}
}

func reread(t *testing.T, img *Image) *Image {
	t.Helper()
	out, err := ReadImage(bytes.Clone(img.Bytes()))
	require.NoError(t, err)
	return out
}

func TestSetResourcesAppendsSection(t *testing.T) {
	overlay := []byte("overlay payload")
	data := petest.Build(petest.Options{Overlay: overlay})
	img, err := ReadImage(bytes.Clone(data))
	require.NoError(t, err)

	var builtAt uint32
	err = img.SetResources(func(rva uint32) ([]byte, error) {
		builtAt = rva
		return bytes.Repeat([]byte{0xAB}, 100), nil
	}, 0, nil)
	require.NoError(t, err)

	out := reread(t, img)
	require.Len(t, out.Sections, 2)
	sec := out.Sections[1]
	assert.Equal(t, ".rsrc", sec.Name)
	assert.Equal(t, uint32(0x2000), sec.VirtualAddress)
	assert.Equal(t, builtAt, sec.VirtualAddress)
	assert.Equal(t, uint32(100), sec.VirtualSize)
	assert.Equal(t, uint32(0x600), sec.PointerToRawData)
	assert.Equal(t, uint32(0x200), sec.SizeOfRawData)
	assert.Equal(t, resourceSectionCharacteristics, sec.Characteristics)
	assert.Equal(t, DataDirectory{0x2000, 100}, out.Directory(IMAGE_DIRECTORY_ENTRY_RESOURCE))
	assert.Equal(t, uint32(0x3000), out.SizeOfImage)

	assert.Len(t, out.Bytes(), len(data)+0x200)
	assert.Equal(t, data[:petest.PEOffset], out.Bytes()[:petest.PEOffset], "DOS header and stub untouched")
	assert.True(t, bytes.HasSuffix(out.Bytes(), overlay), "overlay stays at the end")
	assert.Equal(t, data[0x400:0x600], out.Bytes()[0x400:0x600], ".text untouched")
}

func TestSetResourcesInPlace(t *testing.T) {
	data := petest.Build(petest.Options{Resources: resources(0x300)})
	img, err := ReadImage(bytes.Clone(data))
	require.NoError(t, err)

	require.NoError(t, img.SetResources(fill(0x22, 0x100), 0, nil))
	out := reread(t, img)

	assert.Len(t, out.Bytes(), len(data), "smaller blob keeps the file size")
	sec := out.Section(".rsrc")
	require.NotNil(t, sec)
	assert.Equal(t, uint32(0x300), sec.VirtualSize, "virtual size never shrinks")
	assert.Equal(t, uint32(0x400), sec.SizeOfRawData)
	assert.Equal(t, uint32(0x100), out.Directory(IMAGE_DIRECTORY_ENTRY_RESOURCE).Size)

	raw := out.Bytes()[sec.PointerToRawData:sec.RawEnd()]
	assert.Equal(t, bytes.Repeat([]byte{0x22}, 0x100), raw[:0x100])
	assert.Equal(t, make([]byte, 0x300), raw[0x100:], "stale resource bytes are cleared")

	// Up to the raw size still fits without moving anything.
	require.NoError(t, img.SetResources(fill(0x33, 0x400), 0, nil))
	assert.Len(t, img.Bytes(), len(data))
}

func TestSetResourcesKeepsTrailingSectionData(t *testing.T) {
	trailer := []byte("CONSTANTDATA")
	data := petest.Build(petest.Options{
		Resources:       resources(0x200),
		ResourceTrailer: append(make([]byte, 0x100), trailer...),
		ResourceSlack:   0x400,
	})
	img, err := ReadImage(bytes.Clone(data))
	require.NoError(t, err)
	sec := img.Section(".rsrc")
	vsize := sec.VirtualSize
	require.Equal(t, uint32(0x200+0x100+len(trailer)), vsize)

	// Shrinking clears only the old directory.
	require.NoError(t, img.SetResources(fill(0x22, 0x80), 0, nil))
	raw := img.SectionData(sec)
	assert.Equal(t, make([]byte, 0x200-0x80), raw[0x80:0x200])
	assert.Equal(t, trailer, raw[0x300:0x300+len(trailer)])
	assert.Equal(t, vsize, sec.VirtualSize)

	// The directory may take the zero padding before the trailer.
	require.NoError(t, img.SetResources(fill(0x33, 0x300), 0, nil))
	raw = img.SectionData(sec)
	assert.Equal(t, trailer, raw[0x300:0x300+len(trailer)])
	assert.Len(t, img.Sections, 2)

	// Anything larger would overwrite the trailer, so the directory moves.
	require.NoError(t, img.SetResources(fill(0x44, 0x400), 0, nil))
	out := reread(t, img)
	require.Len(t, out.Sections, 3)
	old := out.Section(".rsrc")
	assert.Equal(t, vsize, old.VirtualSize)
	raw = out.SectionData(old)
	assert.Equal(t, make([]byte, 0x300), raw[:0x300], "old directory is cleared")
	assert.Equal(t, trailer, raw[0x300:0x300+len(trailer)])
	assert.Equal(t, DataDirectory{out.Sections[2].VirtualAddress, 0x400}, out.Directory(IMAGE_DIRECTORY_ENTRY_RESOURCE))
}

func TestSetResourcesExtentBeyondDirectorySize(t *testing.T) {
	data := petest.Build(petest.Options{Resources: resources(0x100), ResourceTrailer: []byte("leaf data"), ResourceSlack: 0x100})
	img, err := ReadImage(bytes.Clone(data))
	require.NoError(t, err)
	sec := img.Section(".rsrc")

	// The trailer belongs to the directory here, so it is cleared and reused.
	require.NoError(t, img.SetResources(fill(0x22, 0x10), 0x100+9, nil))
	raw := img.SectionData(sec)
	assert.Equal(t, make([]byte, 0x100+9-0x10), raw[0x10:0x100+9])
}

func TestSetResourcesGrowShiftsLaterSections(t *testing.T) {
	data := petest.Build(petest.Options{Resources: resources(0x100), Reloc: true})
	img, err := ReadImage(bytes.Clone(data))
	require.NoError(t, err)
	require.Equal(t, uint32(0x3000), img.Section(".reloc").VirtualAddress)
	relocBytes := bytes.Clone(img.SectionData(img.Section(".reloc")))

	require.NoError(t, img.SetResources(fill(0x44, 0x1800), 0, nil))
	out := reread(t, img)

	rsrc := out.Section(".rsrc")
	reloc := out.Section(".reloc")
	require.NotNil(t, rsrc)
	require.NotNil(t, reloc)

	const delta = 0x1800 - 0x200
	assert.Len(t, out.Bytes(), len(data)+delta)
	assert.Equal(t, uint32(0x1800), rsrc.SizeOfRawData)
	assert.Equal(t, uint32(0x1800), rsrc.VirtualSize)
	assert.Equal(t, uint32(0x800+delta), reloc.PointerToRawData)
	assert.Equal(t, uint32(0x4000), reloc.VirtualAddress)
	assert.Equal(t, DataDirectory{0x4000, 12}, out.Directory(IMAGE_DIRECTORY_ENTRY_BASERELOC))
	assert.Equal(t, uint32(0x5000), out.SizeOfImage)
	assert.Equal(t, relocBytes, out.SectionData(reloc))
}

func TestSetResourcesImmovableSectionRelocates(t *testing.T) {
	data := petest.Build(petest.Options{
		Resources: resources(0x100),
		Trailing: []petest.Section{
			{Name: ".data", Data: []byte("global state"), Characteristics: petest.CharacteristicsData},
		},
	})
	img, err := ReadImage(bytes.Clone(data))
	require.NoError(t, err)

	require.NoError(t, img.SetResources(fill(0x55, 0x1800), 0, nil))
	out := reread(t, img)

	require.Len(t, out.Sections, 4)
	assert.Equal(t, uint32(0x3000), out.Section(".data").VirtualAddress, "non-discardable sections never move")
	moved := out.Sections[3]
	assert.Equal(t, ".rsrc2", moved.Name)
	assert.Equal(t, DataDirectory{moved.VirtualAddress, 0x1800}, out.Directory(IMAGE_DIRECTORY_ENTRY_RESOURCE))
	assert.Equal(t, make([]byte, 0x100), out.SectionData(out.Section(".rsrc"))[:0x100], "old directory is cleared")
}

func TestSetResourcesNoRoom(t *testing.T) {
	img, err := ReadImage(petest.Build(petest.Options{FillHeader: true}))
	require.NoError(t, err)
	assert.ErrorIs(t, img.SetResources(fill(0, 16), 0, nil), ErrUnsupportedFormat)

	img, err = ReadImage(petest.Build(petest.Options{DataDirectories: 2}))
	require.NoError(t, err)
	assert.ErrorIs(t, img.SetResources(fill(0, 16), 0, nil), ErrUnsupportedFormat)
}

func TestStripCertificate(t *testing.T) {
	cert := bytes.Repeat([]byte{0x30}, 24)
	data := petest.Build(petest.Options{Resources: resources(0x20), Certificate: cert})
	img, err := ReadImage(bytes.Clone(data))
	require.NoError(t, err)

	certs, err := img.Certificates()
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, uint16(WIN_CERT_TYPE_PKCS_SIGNED_DATA), certs[0].Type)
	assert.Equal(t, uint16(WIN_CERT_REVISION_2_0), certs[0].Revision)
	assert.Equal(t, cert, certs[0].Data)

	_, err = img.Signer()
	assert.Error(t, err, "garbage is not a PKCS#7 blob")

	stripped, err := img.StripCertificate()
	require.NoError(t, err)
	assert.True(t, stripped)
	out := reread(t, img)
	assert.False(t, out.HasCertificate())
	assert.Len(t, out.Bytes(), len(data)-8-len(cert))

	stripped, err = out.StripCertificate()
	assert.NoError(t, err)
	assert.False(t, stripped)
}

func TestGrowKeepsCertificateOffset(t *testing.T) {
	cert := bytes.Repeat([]byte{0x30}, 16)
	data := petest.Build(petest.Options{Resources: resources(0x20), Certificate: cert})
	img, err := ReadImage(bytes.Clone(data))
	require.NoError(t, err)
	before := img.Directory(IMAGE_DIRECTORY_ENTRY_SECURITY)

	require.NoError(t, img.SetResources(fill(0x66, 0x500), 0, nil))
	after := img.Directory(IMAGE_DIRECTORY_ENTRY_SECURITY)
	assert.Equal(t, before.VirtualAddress+0x400, after.VirtualAddress)

	certs, err := img.Certificates()
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, cert, certs[0].Data)
}
