// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package metaedit

import (
	"fmt"

	"github.com/Ghua8088/metaedit/icon"
	"github.com/Ghua8088/metaedit/pe"
	"github.com/Ghua8088/metaedit/rsrc"
	"github.com/Ghua8088/metaedit/versioninfo"
	"github.com/cespare/xxhash/v2"
)

// ResourceEntry describes one resource data entry.
type ResourceEntry struct {
	Type     rsrc.Identifier
	Name     rsrc.Identifier
	Language rsrc.Identifier
	Size     int
	CodePage uint32
	// Digest is the xxhash64 of the data.
	Digest uint64
}

func (e ResourceEntry) String() string {
	return fmt.Sprintf("%s/%s/%s (%d bytes, %016x)", e.Type.TypeString(), e.Name, e.Language, e.Size, e.Digest)
}

type VersionSummary struct {
	FileVersion    string
	ProductVersion string
	Strings        map[string]string
}

type IconFrame struct {
	Width    int
	Height   int
	BitCount uint16
	ID       uint16
}

// ResourceSummary is a read-only view of an image's resources.
type ResourceSummary struct {
	Machine  string
	PE32Plus bool
	DLL      bool

	Resources []ResourceEntry
	Version   *VersionSummary
	Icon      []IconFrame
	Manifest  bool

	Signed        bool
	Signer        string
	Checksum      uint32
	ChecksumValid bool
}

func (s *ResourceSummary) HasVersion() bool {
	return s.Version != nil
}

func (s *ResourceSummary) HasIcon() bool {
	return len(s.Icon) > 0
}

// Inspect lists the resources of the image at path.
func Inspect(path string) (*ResourceSummary, error) {
	img, err := pe.Open(path)
	if err != nil {
		return nil, wrap("inspect", path, err)
	}
	defer img.Close()

	summary, err := summarize(img.Image)
	if err != nil {
		return nil, wrap("inspect", path, err)
	}
	return summary, nil
}

func summarize(img *pe.Image) (*ResourceSummary, error) {
	tree, _, _, err := readResources(img)
	if err != nil {
		return nil, err
	}

	s := &ResourceSummary{
		Machine:       img.Machine.String(),
		PE32Plus:      img.Is64(),
		DLL:           img.IsDLL(),
		Manifest:      tree.Get(rsrc.ID(rsrc.RT_MANIFEST)) != nil,
		Signed:        img.HasCertificate(),
		Checksum:      img.CheckSum,
		ChecksumValid: img.VerifyChecksum(),
	}
	if s.Signed {
		// Unparseable signatures are still reported as present.
		s.Signer, _ = img.Signer()
	}

	tree.Walk(func(path []rsrc.Identifier, leaf *rsrc.Leaf) error {
		e := ResourceEntry{
			Type:     path[0],
			Size:     len(leaf.Data),
			CodePage: leaf.CodePage,
			Digest:   xxhash.Sum64(leaf.Data),
		}
		if len(path) > 1 {
			e.Name = path[1]
		}
		if len(path) > 2 {
			e.Language = path[2]
		}
		s.Resources = append(s.Resources, e)
		return nil
	})

	info, err := versioninfo.Load(tree)
	if err != nil {
		return nil, err
	}
	if info != nil {
		s.Version = &VersionSummary{
			FileVersion:    info.Fixed.FileVersion.String(),
			ProductVersion: info.Fixed.ProductVersion.String(),
			Strings:        info.Strings(),
		}
	}

	group, err := icon.MainGroup(tree)
	if err != nil {
		return nil, fmt.Errorf("%w: main icon group: %v", rsrc.ErrCorruptTree, err)
	}
	for _, e := range group {
		w, h := e.Size()
		s.Icon = append(s.Icon, IconFrame{Width: w, Height: h, BitCount: e.BitCount, ID: e.ID})
	}
	return s, nil
}
