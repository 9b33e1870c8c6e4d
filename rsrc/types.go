// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

// Package rsrc reads, edits and writes PE resource directory trees.
package rsrc

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

var (
	ErrCorruptTree  = errors.New("rsrc: corrupt resource directory")
	ErrPathConflict = errors.New("rsrc: path crosses a data entry")
)

// Predefined resource types
const (
	RT_CURSOR       = 1
	RT_BITMAP       = 2
	RT_ICON         = 3
	RT_MENU         = 4
	RT_DIALOG       = 5
	RT_STRING       = 6
	RT_FONTDIR      = 7
	RT_FONT         = 8
	RT_ACCELERATOR  = 9
	RT_RCDATA       = 10
	RT_MESSAGETABLE = 11
	RT_GROUP_CURSOR = 12
	RT_GROUP_ICON   = 14
	RT_VERSION      = 16
	RT_DLGINCLUDE   = 17
	RT_PLUGPLAY     = 19
	RT_VXD          = 20
	RT_ANICURSOR    = 21
	RT_ANIICON      = 22
	RT_HTML         = 23
	RT_MANIFEST     = 24
)

const (
	LANG_NEUTRAL = 0x0000
	LANG_EN_US   = 0x0409
)

var typeNames = map[uint32]string{
	RT_CURSOR:       "CURSOR",
	RT_BITMAP:       "BITMAP",
	RT_ICON:         "ICON",
	RT_MENU:         "MENU",
	RT_DIALOG:       "DIALOG",
	RT_STRING:       "STRING",
	RT_FONTDIR:      "FONTDIR",
	RT_FONT:         "FONT",
	RT_ACCELERATOR:  "ACCELERATOR",
	RT_RCDATA:       "RCDATA",
	RT_MESSAGETABLE: "MESSAGETABLE",
	RT_GROUP_CURSOR: "GROUP_CURSOR",
	RT_GROUP_ICON:   "GROUP_ICON",
	RT_VERSION:      "VERSION",
	RT_DLGINCLUDE:   "DLGINCLUDE",
	RT_PLUGPLAY:     "PLUGPLAY",
	RT_VXD:          "VXD",
	RT_ANICURSOR:    "ANICURSOR",
	RT_ANIICON:      "ANIICON",
	RT_HTML:         "HTML",
	RT_MANIFEST:     "MANIFEST",
}

// Identifier names a directory entry, either by number or by string.
type Identifier struct {
	ID    uint32
	Name  string
	named bool
}

func ID(id uint32) Identifier {
	return Identifier{ID: id}
}

func Name(name string) Identifier {
	return Identifier{Name: name, named: true}
}

// TypeID returns the identifier of a predefined resource type given its
// name ("ICON", "VERSION", ...), or a string identifier otherwise.
func TypeID(name string) Identifier {
	for id, n := range typeNames {
		if n == name {
			return ID(id)
		}
	}
	return Name(name)
}

func (i Identifier) IsName() bool {
	return i.named
}

func (i Identifier) String() string {
	if i.named {
		return i.Name
	}
	return fmt.Sprintf("#%d", i.ID)
}

// TypeString renders the identifier as a resource type.
func (i Identifier) TypeString() string {
	if !i.named {
		if n, ok := typeNames[i.ID]; ok {
			return n
		}
	}
	return i.String()
}

// Compare orders identifiers the way resource loaders expect: names
// before numbers, names by UTF-16 code unit, numbers ascending.
func (i Identifier) Compare(j Identifier) int {
	if i.named != j.named {
		if i.named {
			return -1
		}
		return 1
	}
	if !i.named {
		return cmp.Compare(i.ID, j.ID)
	}
	return slices.Compare(utf16Units(i.Name), utf16Units(j.Name))
}

type Directory struct {
	Characteristics uint32
	TimeDateStamp   uint32
	MajorVersion    uint16
	MinorVersion    uint16
	Entries         []*Entry
}

// Entry is a directory child; exactly one of Dir and Leaf is set.
type Entry struct {
	ID   Identifier
	Dir  *Directory
	Leaf *Leaf
}

type Leaf struct {
	Data     []byte
	CodePage uint32
	Reserved uint32
}

func compareEntries(a *Entry, b *Entry) int {
	return a.ID.Compare(b.ID)
}
