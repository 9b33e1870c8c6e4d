// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package rsrc

import (
	"fmt"
	"slices"
)

func New() *Directory {
	return &Directory{}
}

// Clone deep-copies the tree, leaf data included.
func (d *Directory) Clone() *Directory {
	c := *d
	c.Entries = make([]*Entry, len(d.Entries))
	for i, e := range d.Entries {
		ce := &Entry{ID: e.ID}
		if e.Dir != nil {
			ce.Dir = e.Dir.Clone()
		} else {
			ce.Leaf = e.Leaf.Clone()
		}
		c.Entries[i] = ce
	}
	return &c
}

func (l *Leaf) Clone() *Leaf {
	c := *l
	c.Data = slices.Clone(l.Data)
	return &c
}

func (d *Directory) Empty() bool {
	return len(d.Entries) == 0
}

func (d *Directory) find(id Identifier) (int, bool) {
	return slices.BinarySearchFunc(d.Entries, id, func(e *Entry, id Identifier) int {
		return e.ID.Compare(id)
	})
}

// Get returns the entry at path, or nil.
func (d *Directory) Get(path ...Identifier) *Entry {
	dir := d
	var entry *Entry
	for _, id := range path {
		if dir == nil {
			return nil
		}
		i, ok := dir.find(id)
		if !ok {
			return nil
		}
		entry = dir.Entries[i]
		dir = entry.Dir
	}
	return entry
}

// Dir returns the directory at path, or nil.
func (d *Directory) Dir(path ...Identifier) *Directory {
	if len(path) == 0 {
		return d
	}
	if e := d.Get(path...); e != nil {
		return e.Dir
	}
	return nil
}

// First returns the first child of the directory at path, or nil.
func (d *Directory) First(path ...Identifier) *Entry {
	dir := d.Dir(path...)
	if dir == nil || dir.Empty() {
		return nil
	}
	return dir.Entries[0]
}

// Set stores leaf at path, creating intermediate directories as needed and
// replacing whatever was there before.
func (d *Directory) Set(leaf *Leaf, path ...Identifier) error {
	if len(path) == 0 {
		return fmt.Errorf("%w: empty path", ErrPathConflict)
	}

	dir := d
	for n, id := range path {
		i, ok := dir.find(id)
		last := n == len(path)-1
		if !ok {
			e := &Entry{ID: id}
			if last {
				e.Leaf = leaf
			} else {
				e.Dir = New()
			}
			dir.Entries = slices.Insert(dir.Entries, i, e)
			dir = e.Dir
			continue
		}

		e := dir.Entries[i]
		if last {
			e.Dir = nil
			e.Leaf = leaf
			return nil
		}
		if e.Dir == nil {
			return fmt.Errorf("%w: %s", ErrPathConflict, FormatPath(path[:n+1]))
		}
		dir = e.Dir
	}
	return nil
}

// Delete removes the entry at path with all its descendants. Directories
// left empty by the removal are removed too. Reports whether anything was
// deleted.
func (d *Directory) Delete(path ...Identifier) bool {
	if len(path) == 0 {
		return false
	}
	i, ok := d.find(path[0])
	if !ok {
		return false
	}
	if len(path) == 1 {
		d.Entries = slices.Delete(d.Entries, i, i+1)
		return true
	}

	e := d.Entries[i]
	if e.Dir == nil || !e.Dir.Delete(path[1:]...) {
		return false
	}
	if e.Dir.Empty() {
		d.Entries = slices.Delete(d.Entries, i, i+1)
	}
	return true
}

// Walk calls fn for every leaf in canonical order.
func (d *Directory) Walk(fn func(path []Identifier, leaf *Leaf) error) error {
	return d.walk(nil, fn)
}

func (d *Directory) walk(prefix []Identifier, fn func(path []Identifier, leaf *Leaf) error) error {
	for _, e := range d.Entries {
		path := append(slices.Clip(prefix), e.ID)
		if e.Dir != nil {
			if err := e.Dir.walk(path, fn); err != nil {
				return err
			}
		} else if err := fn(path, e.Leaf); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of leaves in the tree.
func (d *Directory) Count() int {
	n := 0
	d.Walk(func([]Identifier, *Leaf) error {
		n++
		return nil
	})
	return n
}

// FormatPath renders a leaf path as TYPE/NAME/LANG.
func FormatPath(path []Identifier) string {
	s := ""
	for i, id := range path {
		if i > 0 {
			s += "/"
		}
		if i == 0 {
			s += id.TypeString()
		} else {
			s += id.String()
		}
	}
	return s
}
