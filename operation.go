// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package metaedit

import (
	"fmt"

	"github.com/Ghua8088/metaedit/icon"
	"github.com/Ghua8088/metaedit/manifest"
	"github.com/Ghua8088/metaedit/rsrc"
	"github.com/Ghua8088/metaedit/versioninfo"
	"github.com/hashicorp/go-hclog"
)

// An Operation is one requested change to the resources of an image.
// Operations are applied in order; later ones win over earlier ones.
type Operation interface {
	fmt.Stringer
	apply(s *session) error
}

type session struct {
	tree   *rsrc.Directory
	dll    bool
	logger hclog.Logger
}

func (s *session) fileType() uint32 {
	if s.dll {
		return versioninfo.VFT_DLL
	}
	return versioninfo.VFT_APP
}

// SetIcon replaces the main icon.
type SetIcon struct {
	Frames icon.ImageSet
}

func (op SetIcon) String() string {
	return fmt.Sprintf("set icon (%d frames)", len(op.Frames))
}

func (op SetIcon) apply(s *session) error {
	return icon.Install(s.tree, op.Frames)
}

// SetVersionFields sets version strings. FileVersion and ProductVersion
// values that are plain version numbers also set the numeric version.
type SetVersionFields struct {
	Fields []versioninfo.String
}

// SetVersionField is a single-field SetVersionFields.
func SetVersionField(key, value string) SetVersionFields {
	return SetVersionFields{Fields: []versioninfo.String{{Key: key, Value: value}}}
}

func (op SetVersionFields) String() string {
	return fmt.Sprintf("set %d version fields", len(op.Fields))
}

func (op SetVersionFields) apply(s *session) error {
	return versioninfo.Update(s.tree, s.fileType(), func(info *versioninfo.Info) {
		for _, f := range op.Fields {
			info.Set(f.Key, f.Value)
		}
	})
}

// SetVersion sets FileVersion and ProductVersion.
type SetVersion struct {
	Version string
}

func (op SetVersion) String() string {
	return "set version " + op.Version
}

func (op SetVersion) apply(s *session) error {
	return versioninfo.Update(s.tree, s.fileType(), func(info *versioninfo.Info) {
		info.SetVersion(op.Version)
	})
}

// SetManifest replaces the application manifest.
type SetManifest struct {
	XML []byte
}

func (op SetManifest) String() string {
	return fmt.Sprintf("set manifest (%d bytes)", len(op.XML))
}

func (op SetManifest) apply(s *session) error {
	return manifest.Install(s.tree, op.XML, s.dll)
}

// DeleteResource removes the entry at Path, given as type and optionally
// name and language, with everything below it. Missing entries are not an
// error.
type DeleteResource struct {
	Path []rsrc.Identifier
}

func (op DeleteResource) String() string {
	return "delete " + rsrc.FormatPath(op.Path)
}

func (op DeleteResource) apply(s *session) error {
	if !s.tree.Delete(op.Path...) {
		s.logger.Debug("resource to delete not found", "path", rsrc.FormatPath(op.Path))
	}
	return nil
}
