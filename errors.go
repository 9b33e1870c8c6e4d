// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package metaedit

import (
	"errors"
	"fmt"

	"github.com/Ghua8088/metaedit/icon"
	"github.com/Ghua8088/metaedit/manifest"
	"github.com/Ghua8088/metaedit/pe"
	"github.com/Ghua8088/metaedit/rsrc"
	"github.com/Ghua8088/metaedit/versioninfo"
)

// Kind classifies edit failures.
type Kind int

const (
	IOError Kind = iota
	FormatError
	CorruptResourceTree
	UnsupportedFormat
	InvalidManifest
	InvalidIconData
	// ChecksumWriteFailure is never returned; such failures are logged.
	ChecksumWriteFailure
)

var kindNames = map[Kind]string{
	IOError:              "I/O error",
	FormatError:          "format error",
	CorruptResourceTree:  "corrupt resource tree",
	UnsupportedFormat:    "unsupported format",
	InvalidManifest:      "invalid manifest",
	InvalidIconData:      "invalid icon data",
	ChecksumWriteFailure: "checksum write failure",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

var ErrDuplicateTarget = errors.New("metaedit: file is already part of this batch")

// EditError is returned by every failing operation of this package.
type EditError struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *EditError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *EditError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or IOError for errors not produced by
// this package.
func KindOf(err error) Kind {
	var ee *EditError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return classify(err)
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, pe.ErrFormat):
		return FormatError
	case errors.Is(err, rsrc.ErrCorruptTree), errors.Is(err, rsrc.ErrPathConflict), errors.Is(err, versioninfo.ErrInvalidVersionInfo):
		return CorruptResourceTree
	case errors.Is(err, pe.ErrUnsupportedFormat):
		return UnsupportedFormat
	case errors.Is(err, manifest.ErrInvalidManifest):
		return InvalidManifest
	case errors.Is(err, icon.ErrInvalidIconData):
		return InvalidIconData
	case errors.Is(err, pe.ErrChecksumWrite):
		return ChecksumWriteFailure
	}
	return IOError
}

func wrap(op string, path string, err error) error {
	if err == nil {
		return nil
	}
	var ee *EditError
	if errors.As(err, &ee) {
		return err
	}
	return &EditError{Kind: classify(err), Op: op, Path: path, Err: err}
}
