// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package metaedit

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"math/rand"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/Ghua8088/metaedit/icon"
	"github.com/Ghua8088/metaedit/internal/petest"
	"github.com/Ghua8088/metaedit/manifest"
	"github.com/Ghua8088/metaedit/pe"
	"github.com/Ghua8088/metaedit/rsrc"
	"github.com/Ghua8088/metaedit/versioninfo"
	spe "github.com/saferwall/pe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tc-hib/winres"
	"github.com/tc-hib/winres/version"
)

const testManifest = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<assembly xmlns="urn:schemas-microsoft-com:asm.v1" manifestVersion="1.0">
  <trustInfo xmlns="urn:schemas-microsoft-com:asm.v3">
    <security>
      <requestedPrivileges>
        <requestedExecutionLevel level="asInvoker" uiAccess="false"/>
      </requestedPrivileges>
    </security>
  </trustInfo>
</assembly>
`

func frames(t *testing.T, sizes ...int) icon.ImageSet {
	t.Helper()
	var set icon.ImageSet
	for _, s := range sizes {
		img := image.NewNRGBA(image.Rect(0, 0, s, s))
		for i := range img.Pix {
			img.Pix[i] = uint8(i * s)
		}
		img.SetNRGBA(0, 0, color.NRGBA{})
		f, err := icon.FromImage(img)
		require.NoError(t, err)
		set = append(set, f)
	}
	return set
}

// baseTree is a typical application's resources: icon, version strings,
// manifest and an unrelated data blob.
func baseTree(t *testing.T) *rsrc.Directory {
	t.Helper()
	tree := rsrc.New()
	require.NoError(t, icon.Install(tree, frames(t, 16, 32)))
	require.NoError(t, versioninfo.Update(tree, versioninfo.VFT_APP, func(info *versioninfo.Info) {
		info.Set(versioninfo.CompanyName, "A")
		info.Set(versioninfo.FileDescription, "B")
	}))
	require.NoError(t, manifest.Install(tree, []byte(testManifest), false))
	require.NoError(t, tree.Set(&rsrc.Leaf{Data: []byte("payload"), CodePage: 1252}, rsrc.ID(rsrc.RT_RCDATA), rsrc.Name("CONFIG"), rsrc.ID(rsrc.LANG_NEUTRAL)))
	return tree
}

func build(t *testing.T, opts petest.Options, tree *rsrc.Directory) []byte {
	t.Helper()
	if tree != nil {
		opts.Resources = func(rva uint32) []byte {
			blob, err := rsrc.Write(tree, rva)
			require.NoError(t, err)
			return blob
		}
	}
	return petest.Build(opts)
}

func fixture(t *testing.T, opts petest.Options, tree *rsrc.Directory) string {
	t.Helper()
	return petest.WriteFile(t, "app.exe", build(t, opts, tree))
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func editOps(t *testing.T) []Operation {
	return []Operation{
		SetIcon{Frames: frames(t, 16, 24, 32)},
		SetVersionField(versioninfo.FileDescription, "C"),
		SetVersion{Version: "1.2.3.4"},
		SetManifest{XML: []byte(testManifest)},
	}
}

func TestNoOp(t *testing.T) {
	path := fixture(t, petest.Options{Reloc: true}, baseTree(t))
	data := readFile(t, path)

	before, err := Inspect(path)
	require.NoError(t, err)
	require.NoError(t, Apply(path, nil, nil))
	after, err := Inspect(path)
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.Equal(t, data, readFile(t, path))

	// Operations that restate the current contents are a no-op as well.
	require.NoError(t, Apply(path, []Operation{
		SetManifest{XML: []byte(testManifest)},
		SetVersionField(versioninfo.CompanyName, "A"),
		DeleteResource{Path: []rsrc.Identifier{rsrc.ID(rsrc.RT_BITMAP)}},
	}, nil))
	assert.Equal(t, data, readFile(t, path))
}

func TestIdempotence(t *testing.T) {
	path := fixture(t, petest.Options{Reloc: true}, baseTree(t))

	require.NoError(t, Apply(path, editOps(t), nil))
	once := readFile(t, path)
	require.NoError(t, Apply(path, editOps(t), nil))
	assert.Equal(t, once, readFile(t, path))
}

func TestPreservation(t *testing.T) {
	path := fixture(t, petest.Options{}, baseTree(t))
	before, err := Inspect(path)
	require.NoError(t, err)

	require.NoError(t, Apply(path, []Operation{SetVersionField(versioninfo.ProductName, "P")}, nil))
	after, err := Inspect(path)
	require.NoError(t, err)

	untouched := func(s *ResourceSummary) []ResourceEntry {
		var out []ResourceEntry
		for _, e := range s.Resources {
			if e.Type != rsrc.ID(rsrc.RT_VERSION) {
				out = append(out, e)
			}
		}
		return out
	}
	assert.Equal(t, untouched(before), untouched(after))
	assert.Len(t, after.Resources, len(before.Resources))
	assert.Equal(t, "P", after.Version.Strings[versioninfo.ProductName])
}

func TestResourcesAfterSectionPrefix(t *testing.T) {
	prefix := bytes.Repeat([]byte("RDATA..."), 0x20)
	path := fixture(t, petest.Options{ResourcePrefix: prefix}, baseTree(t))
	before, err := Inspect(path)
	require.NoError(t, err)
	require.Len(t, before.Resources, baseTree(t).Count())

	require.NoError(t, Apply(path, []Operation{SetVersionField(versioninfo.ProductName, "P")}, nil))
	after, err := Inspect(path)
	require.NoError(t, err)
	assert.Len(t, after.Resources, len(before.Resources))
	assert.Equal(t, "A", after.Version.Strings[versioninfo.CompanyName])
	assert.Equal(t, "P", after.Version.Strings[versioninfo.ProductName])

	img, err := pe.ReadImage(readFile(t, path))
	require.NoError(t, err)
	assert.Equal(t, prefix, img.SectionData(img.Section(".rsrc"))[:len(prefix)])
}

func TestUnreferencedSectionDataKept(t *testing.T) {
	marker := []byte("CONSTANTDATA")
	path := fixture(t, petest.Options{
		ResourceTrailer: append(make([]byte, 0x100), marker...),
		ResourceSlack:   0x400,
	}, baseTree(t))
	img, err := pe.ReadImage(readFile(t, path))
	require.NoError(t, err)
	sec := img.Section(".rsrc")
	at := img.Directory(pe.IMAGE_DIRECTORY_ENTRY_RESOURCE).Size + 0x100
	require.Equal(t, marker, img.SectionData(sec)[at:at+uint32(len(marker))])

	require.NoError(t, Apply(path, []Operation{SetVersionField(versioninfo.ProductName, "P")}, nil))
	edited, err := pe.ReadImage(readFile(t, path))
	require.NoError(t, err)
	kept := edited.Section(".rsrc")
	assert.GreaterOrEqual(t, kept.VirtualSize, sec.VirtualSize)
	assert.Equal(t, marker, edited.SectionData(kept)[at:at+uint32(len(marker))])

	s, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, "P", s.Version.Strings[versioninfo.ProductName])
}

func TestSizeDisciplineInPlace(t *testing.T) {
	path := fixture(t, petest.Options{Reloc: true}, baseTree(t))
	data := readFile(t, path)
	img, err := pe.ReadImage(data)
	require.NoError(t, err)

	require.NoError(t, Apply(path, []Operation{SetManifest{XML: []byte("<assembly/>")}}, nil))
	out := readFile(t, path)
	assert.Len(t, out, len(data))

	edited, err := pe.ReadImage(out)
	require.NoError(t, err)
	require.Len(t, edited.Sections, len(img.Sections))
	for i, sec := range img.Sections {
		assert.Equal(t, sec.PointerToRawData, edited.Sections[i].PointerToRawData, sec.Name)
		assert.Equal(t, sec.VirtualAddress, edited.Sections[i].VirtualAddress, sec.Name)
	}
	assert.Less(t, edited.Directory(pe.IMAGE_DIRECTORY_ENTRY_RESOURCE).Size, img.Directory(pe.IMAGE_DIRECTORY_ENTRY_RESOURCE).Size)
}

func TestSizeDisciplineGrow(t *testing.T) {
	path := fixture(t, petest.Options{Reloc: true}, baseTree(t))
	data := readFile(t, path)
	img, err := pe.ReadImage(data)
	require.NoError(t, err)
	oldRsrc := img.Section(".rsrc")
	oldReloc := img.Section(".reloc")

	require.NoError(t, Apply(path, []Operation{SetIcon{Frames: frames(t, 16, 32, 48, 64, 128)}}, nil))
	out := readFile(t, path)
	edited, err := pe.ReadImage(out)
	require.NoError(t, err)

	newSize := edited.Directory(pe.IMAGE_DIRECTORY_ENTRY_RESOURCE).Size
	delta := (newSize+petest.FileAlignment-1)/petest.FileAlignment*petest.FileAlignment - oldRsrc.SizeOfRawData
	require.NotZero(t, delta)
	assert.Len(t, out, len(data)+int(delta))
	assert.Equal(t, oldRsrc.PointerToRawData, edited.Section(".rsrc").PointerToRawData)
	assert.Equal(t, oldReloc.PointerToRawData+delta, edited.Section(".reloc").PointerToRawData)
	assert.Equal(t, data[oldReloc.PointerToRawData:oldReloc.RawEnd()], out[oldReloc.PointerToRawData+delta:edited.Section(".reloc").RawEnd()])
}

func TestVersionMerge(t *testing.T) {
	path := fixture(t, petest.Options{}, baseTree(t))
	require.NoError(t, Apply(path, []Operation{SetVersionField(versioninfo.FileDescription, "C")}, nil))

	summary, err := Inspect(path)
	require.NoError(t, err)
	require.True(t, summary.HasVersion())
	assert.Equal(t, map[string]string{
		versioninfo.CompanyName:     "A",
		versioninfo.FileDescription: "C",
	}, summary.Version.Strings)
}

func TestIconIDUniqueness(t *testing.T) {
	path := fixture(t, petest.Options{}, baseTree(t))
	set := frames(t, 16, 20, 32, 48)
	require.NoError(t, Apply(path, []Operation{SetIcon{Frames: set}}, nil))

	summary, err := Inspect(path)
	require.NoError(t, err)
	require.Len(t, summary.Icon, len(set))

	ids := make(map[rsrc.Identifier]bool)
	for _, e := range summary.Resources {
		if e.Type == rsrc.ID(rsrc.RT_ICON) {
			assert.False(t, ids[e.Name], "icon %s appears twice", e.Name)
			ids[e.Name] = true
		}
	}
	assert.Len(t, ids, len(set), "no orphaned icons remain")
	for i, f := range summary.Icon {
		assert.True(t, ids[rsrc.ID(uint32(f.ID))])
		assert.Equal(t, set[i].Width, f.Width)
		assert.Equal(t, set[i].Height, f.Height)
	}
}

func TestChecksumValidity(t *testing.T) {
	path := fixture(t, petest.Options{Reloc: true}, baseTree(t))
	require.NoError(t, Apply(path, editOps(t), nil))
	out := readFile(t, path)

	img, err := pe.ReadImage(out)
	require.NoError(t, err)
	assert.True(t, img.VerifyChecksum())
	assert.NotZero(t, img.CheckSum)

	oracle, err := spe.NewBytes(out, &spe.Options{})
	require.NoError(t, err)
	require.NoError(t, oracle.Parse())
	assert.Equal(t, img.CheckSum, oracle.Checksum())

	summary, err := Inspect(path)
	require.NoError(t, err)
	assert.True(t, summary.ChecksumValid)
}

func TestMalformedInput(t *testing.T) {
	data := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(data)
	data[0] = 'X'
	path := petest.WriteFile(t, "random.bin", data)

	err := Apply(path, editOps(t), nil)
	assert.Equal(t, FormatError, KindOf(err))
	assert.ErrorIs(t, err, pe.ErrFormat)
	assert.Equal(t, data, readFile(t, path))

	_, err = Inspect(path)
	assert.Equal(t, FormatError, KindOf(err))

	empty := petest.WriteFile(t, "empty.exe", nil)
	assert.Equal(t, FormatError, KindOf(Apply(empty, nil, nil)))
}

func TestUnsupportedImages(t *testing.T) {
	for name, opts := range map[string]petest.Options{
		"ia64":      {PE32Plus: true, Machine: 0x0200},
		"no header": {FillHeader: true},
	} {
		t.Run(name, func(t *testing.T) {
			path := fixture(t, opts, nil)
			data := readFile(t, path)
			err := Apply(path, []Operation{SetVersion{Version: "1.0"}}, nil)
			assert.Equal(t, UnsupportedFormat, KindOf(err))
			assert.Equal(t, data, readFile(t, path))
		})
	}
}

func TestAllOrNothing(t *testing.T) {
	path := fixture(t, petest.Options{}, baseTree(t))
	data := readFile(t, path)

	cases := map[string]struct {
		ops  []Operation
		kind Kind
	}{
		"manifest":  {[]Operation{SetVersion{Version: "9.9"}, SetManifest{XML: []byte("<assembly>")}}, InvalidManifest},
		"no frames": {[]Operation{SetVersion{Version: "9.9"}, SetIcon{}}, InvalidIconData},
		"bad frame": {[]Operation{SetIcon{Frames: icon.ImageSet{{Width: 16, Height: 16, Data: []byte("x")}}}}, InvalidIconData},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			err := Apply(path, c.ops, nil)
			assert.Equal(t, c.kind, KindOf(err))
			var ee *EditError
			require.True(t, errors.As(err, &ee))
			assert.Equal(t, path, ee.Path)
			assert.Equal(t, data, readFile(t, path))
		})
	}
}

func TestCorruptResourceTree(t *testing.T) {
	path := fixture(t, petest.Options{Resources: func(uint32) []byte {
		// A root directory claiming far more entries than follow it.
		return []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xFF, 0x7F}
	}}, nil)
	data := readFile(t, path)

	err := Apply(path, []Operation{SetVersion{Version: "1.0"}}, nil)
	assert.Equal(t, CorruptResourceTree, KindOf(err))
	assert.ErrorIs(t, err, rsrc.ErrCorruptTree)
	assert.Equal(t, data, readFile(t, path))
}

func TestNewResourceSection(t *testing.T) {
	for name, opts := range map[string]petest.Options{
		"pe32":     {},
		"pe32plus": {PE32Plus: true, DLL: true},
	} {
		t.Run(name, func(t *testing.T) {
			path := fixture(t, opts, nil)
			summary, err := Inspect(path)
			require.NoError(t, err)
			assert.Empty(t, summary.Resources)

			require.NoError(t, Apply(path, editOps(t), nil))
			summary, err = Inspect(path)
			require.NoError(t, err)
			assert.True(t, summary.HasVersion())
			assert.True(t, summary.HasIcon())
			assert.True(t, summary.Manifest)
			assert.Equal(t, opts.DLL, summary.DLL)

			f, err := os.Open(path)
			require.NoError(t, err)
			defer f.Close()
			rs, err := winres.LoadFromEXE(f)
			require.NoError(t, err)

			manifestID := uint32(manifest.ResourceID(opts.DLL))
			assert.Equal(t, []byte(testManifest), rs.Get(winres.RT_MANIFEST, winres.ID(manifestID), 0))
			vi, err := version.FromBytes(rs.Get(winres.RT_VERSION, winres.ID(1), rsrc.LANG_EN_US))
			require.NoError(t, err)
			assert.Equal(t, [4]uint16{1, 2, 3, 4}, vi.FileVersion)

			fileType := uint32(versioninfo.VFT_APP)
			if opts.DLL {
				fileType = versioninfo.VFT_DLL
			}
			info, err := versioninfo.Decode(rs.Get(winres.RT_VERSION, winres.ID(1), rsrc.LANG_EN_US))
			require.NoError(t, err)
			assert.Equal(t, fileType, info.Fixed.FileType)
		})
	}
}

func TestSignatureHandling(t *testing.T) {
	cert := bytes.Repeat([]byte{0x30}, 40)
	path := fixture(t, petest.Options{Certificate: cert}, baseTree(t))
	data := readFile(t, path)

	summary, err := Inspect(path)
	require.NoError(t, err)
	assert.True(t, summary.Signed)

	require.NoError(t, Apply(path, []Operation{SetManifest{XML: []byte(testManifest)}}, nil))
	assert.Equal(t, data, readFile(t, path), "unchanged images keep their signature")

	require.NoError(t, Apply(path, []Operation{SetManifest{XML: []byte("<assembly/>")}}, nil))
	summary, err = Inspect(path)
	require.NoError(t, err)
	assert.False(t, summary.Signed)
	assert.Less(t, len(readFile(t, path)), len(data), "trailing certificate table removed")
	assert.True(t, summary.ChecksumValid)
}

func TestOutputOption(t *testing.T) {
	path := fixture(t, petest.Options{}, baseTree(t))
	data := readFile(t, path)
	out := filepath.Join(t.TempDir(), "branded.exe")

	require.NoError(t, Apply(path, editOps(t), &Options{Output: out}))
	assert.Equal(t, data, readFile(t, path), "input untouched")

	summary, err := Inspect(out)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", summary.Version.FileVersion)

	fi, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), fi.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")

	copied := filepath.Join(t.TempDir(), "copy.exe")
	require.NoError(t, Apply(path, nil, &Options{Output: copied}))
	assert.Equal(t, data, readFile(t, copied))
}

func TestDeleteResource(t *testing.T) {
	path := fixture(t, petest.Options{}, baseTree(t))
	require.NoError(t, Apply(path, []Operation{
		DeleteResource{Path: []rsrc.Identifier{rsrc.ID(rsrc.RT_RCDATA), rsrc.Name("CONFIG")}},
		DeleteResource{Path: []rsrc.Identifier{rsrc.ID(rsrc.RT_MANIFEST)}},
	}, nil))

	summary, err := Inspect(path)
	require.NoError(t, err)
	assert.False(t, summary.Manifest)
	for _, e := range summary.Resources {
		assert.NotEqual(t, rsrc.ID(rsrc.RT_RCDATA), e.Type)
	}
	assert.True(t, summary.HasIcon())
	assert.True(t, summary.HasVersion())
}

func TestApplyBatch(t *testing.T) {
	data := build(t, petest.Options{}, baseTree(t))
	dir := t.TempDir()
	var jobs []Job
	for _, name := range []string{"a.exe", "b.exe", "c.exe"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, data, 0o644))
		jobs = append(jobs, Job{Path: path, Operations: editOps(t)})
	}
	jobs = append(jobs, Job{Path: filepath.Join(dir, "d.exe"), Output: jobs[0].Path})

	var done atomic.Int32
	errs := ApplyBatch(jobs, 2, &Options{Progress: func(string, error) { done.Add(1) }})
	require.Len(t, errs, 4)
	for _, err := range errs[:3] {
		assert.NoError(t, err)
	}
	assert.ErrorIs(t, errs[3], ErrDuplicateTarget)
	assert.Equal(t, int32(3), done.Load())

	first := readFile(t, jobs[0].Path)
	assert.Equal(t, first, readFile(t, jobs[1].Path))
	assert.Equal(t, first, readFile(t, jobs[2].Path))
}

func TestKinds(t *testing.T) {
	assert.Equal(t, "corrupt resource tree", CorruptResourceTree.String())
	assert.Equal(t, IOError, KindOf(os.ErrNotExist))
	assert.Equal(t, InvalidManifest, KindOf(manifest.ErrInvalidManifest))

	err := Apply(filepath.Join(t.TempDir(), "missing.exe"), nil, nil)
	assert.Equal(t, IOError, KindOf(err))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
