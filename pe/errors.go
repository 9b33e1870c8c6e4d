// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package pe

import "errors"

var (
	// ErrFormat is returned for files which are not PE images or whose
	// headers are truncated or inconsistent.
	ErrFormat = errors.New("pe: invalid image format")
	// ErrUnsupportedFormat is returned for valid images which cannot take
	// the requested edit.
	ErrUnsupportedFormat = errors.New("pe: unsupported image")
	// ErrChecksumWrite is returned when the checksum field cannot be
	// updated. Callers treat it as a warning.
	ErrChecksumWrite = errors.New("pe: checksum not written")
)
