// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

// Package manifest installs side-by-side assembly manifests as RT_MANIFEST
// resources.
package manifest

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/Ghua8088/metaedit/rsrc"
)

var ErrInvalidManifest = errors.New("manifest: invalid manifest")

// Resource IDs the loader looks for.
const (
	CREATEPROCESS_MANIFEST_RESOURCE_ID  = 1
	ISOLATIONAWARE_MANIFEST_RESOURCE_ID = 2
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Validate checks that data is well-formed XML with an assembly root
// element. The schema is not checked.
func Validate(data []byte) error {
	d := xml.NewDecoder(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	root := ""
	depth := 0
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				if root != "" {
					return fmt.Errorf("%w: more than one root element", ErrInvalidManifest)
				}
				root = t.Name.Local
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(t)) > 0 {
				return fmt.Errorf("%w: text outside the root element", ErrInvalidManifest)
			}
		}
	}
	if root == "" {
		return fmt.Errorf("%w: no root element", ErrInvalidManifest)
	}
	if root != "assembly" {
		return fmt.Errorf("%w: root element is <%s>, not <assembly>", ErrInvalidManifest, root)
	}
	return nil
}

// ResourceID returns the manifest ID for executables or DLLs.
func ResourceID(dll bool) uint32 {
	if dll {
		return ISOLATIONAWARE_MANIFEST_RESOURCE_ID
	}
	return CREATEPROCESS_MANIFEST_RESOURCE_ID
}

// Install stores data as the language-neutral manifest, replacing every
// language of the previous one.
func Install(tree *rsrc.Directory, data []byte, dll bool) error {
	if err := Validate(data); err != nil {
		return err
	}
	id := rsrc.ID(ResourceID(dll))
	tree.Delete(rsrc.ID(rsrc.RT_MANIFEST), id)
	return tree.Set(&rsrc.Leaf{Data: bytes.Clone(data)}, rsrc.ID(rsrc.RT_MANIFEST), id, rsrc.ID(rsrc.LANG_NEUTRAL))
}
