// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package versioninfo

import (
	"github.com/Ghua8088/metaedit/rsrc"
)

// location finds the version resource: the first RT_VERSION entry and its
// first language, or ID 1 in US English when there is none.
func location(tree *rsrc.Directory) (name rsrc.Identifier, lang rsrc.Identifier, leaf *rsrc.Leaf) {
	name, lang = rsrc.ID(1), rsrc.ID(rsrc.LANG_EN_US)
	e := tree.First(rsrc.ID(rsrc.RT_VERSION))
	if e == nil {
		return
	}
	name = e.ID
	if e.Leaf != nil {
		return name, lang, e.Leaf
	}
	if first := e.Dir.First(); first != nil {
		lang = first.ID
		leaf = first.Leaf
	}
	return
}

// Load decodes the version resource of tree, or returns nil if it has none.
func Load(tree *rsrc.Directory) (*Info, error) {
	_, _, leaf := location(tree)
	if leaf == nil {
		return nil, nil
	}
	return Decode(leaf.Data)
}

// Update applies fn to the version resource of tree and stores the result
// in the same place. Fields fn leaves alone keep their current values. A
// tree without version resource starts from New(fileType).
func Update(tree *rsrc.Directory, fileType uint32, fn func(info *Info)) error {
	name, lang, leaf := location(tree)

	var info *Info
	codePage := uint32(0)
	if leaf != nil {
		var err error
		if info, err = Decode(leaf.Data); err != nil {
			return err
		}
		codePage = leaf.CodePage
	} else {
		info = New(fileType)
	}

	fn(info)

	data, err := info.Encode()
	if err != nil {
		return err
	}
	path := []rsrc.Identifier{rsrc.ID(rsrc.RT_VERSION), name}
	if leaf == nil || tree.Get(path...).Leaf == nil {
		path = append(path, lang)
	}
	return tree.Set(&rsrc.Leaf{Data: data, CodePage: codePage}, path...)
}
