// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/Ghua8088/metaedit"
	"github.com/Ghua8088/metaedit/icon"
	"github.com/Ghua8088/metaedit/rsrc"
	"github.com/Ghua8088/metaedit/versioninfo"
)

// Edit describes the changes to make to one target. Empty fields leave the
// corresponding resource alone.
type Edit struct {
	Path   string `toml:"path" yaml:"path"`
	Output string `toml:"output" yaml:"output"`

	Icon      string `toml:"icon" yaml:"icon"`
	IconSizes []int  `toml:"icon_sizes" yaml:"icon_sizes"`
	Resampler string `toml:"resampler" yaml:"resampler"`

	Version     string            `toml:"version" yaml:"version"`
	Company     string            `toml:"company" yaml:"company"`
	Description string            `toml:"description" yaml:"description"`
	Product     string            `toml:"product" yaml:"product"`
	Copyright   string            `toml:"copyright" yaml:"copyright"`
	Strings     map[string]string `toml:"strings" yaml:"strings"`

	Manifest string   `toml:"manifest" yaml:"manifest"`
	Delete   []string `toml:"delete" yaml:"delete"`
}

func pick(base, over string) string {
	if over != "" {
		return over
	}
	return base
}

// Merge returns e overlaid with the non-empty fields of over. String maps
// are merged key by key and deletions accumulate.
func (e Edit) Merge(over Edit) Edit {
	out := Edit{
		Path:        pick(e.Path, over.Path),
		Output:      pick(e.Output, over.Output),
		Icon:        pick(e.Icon, over.Icon),
		IconSizes:   e.IconSizes,
		Resampler:   pick(e.Resampler, over.Resampler),
		Version:     pick(e.Version, over.Version),
		Company:     pick(e.Company, over.Company),
		Description: pick(e.Description, over.Description),
		Product:     pick(e.Product, over.Product),
		Copyright:   pick(e.Copyright, over.Copyright),
		Manifest:    pick(e.Manifest, over.Manifest),
		Delete:      append(slices.Clone(e.Delete), over.Delete...),
	}
	if len(over.IconSizes) > 0 {
		out.IconSizes = over.IconSizes
	}
	if len(e.Strings)+len(over.Strings) > 0 {
		out.Strings = make(map[string]string)
		for k, v := range e.Strings {
			out.Strings[k] = v
		}
		for k, v := range over.Strings {
			out.Strings[k] = v
		}
	}
	return out
}

func (e Edit) resolve(dir string) Edit {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	e.Path = abs(e.Path)
	e.Output = abs(e.Output)
	e.Icon = abs(e.Icon)
	e.Manifest = abs(e.Manifest)
	return e
}

// Empty reports whether the edit requests no change.
func (e Edit) Empty() bool {
	return e.Icon == "" && e.Version == "" && e.Company == "" && e.Description == "" &&
		e.Product == "" && e.Copyright == "" && len(e.Strings) == 0 && e.Manifest == "" &&
		len(e.Delete) == 0
}

// ParseResourcePath parses a resource path of the form TYPE[/NAME[/LANG]].
// Components that are numbers, optionally prefixed with '#', are IDs. The
// type may also be a predefined type name such as ICON or RCDATA.
func ParseResourcePath(s string) ([]rsrc.Identifier, error) {
	parts := strings.Split(s, "/")
	if s == "" || len(parts) > 3 {
		return nil, fmt.Errorf("invalid resource path %q", s)
	}
	path := make([]rsrc.Identifier, len(parts))
	for i, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid resource path %q", s)
		}
		if v, err := strconv.ParseUint(strings.TrimPrefix(p, "#"), 10, 32); err == nil {
			path[i] = rsrc.ID(uint32(v))
		} else if i == 0 {
			path[i] = rsrc.TypeID(strings.ToUpper(p))
		} else {
			path[i] = rsrc.Name(p)
		}
	}
	return path, nil
}

// Operations reads the files the edit refers to and returns the operations
// that carry it out. sizes is used for raster icons when the edit names no
// sizes of its own.
func (e Edit) Operations(sizes []int) ([]metaedit.Operation, error) {
	var ops []metaedit.Operation

	for _, d := range e.Delete {
		path, err := ParseResourcePath(d)
		if err != nil {
			return nil, err
		}
		ops = append(ops, metaedit.DeleteResource{Path: path})
	}

	if e.Icon != "" {
		data, err := os.ReadFile(e.Icon)
		if err != nil {
			return nil, err
		}
		r, err := icon.ResamplerByName(e.Resampler)
		if err != nil {
			return nil, err
		}
		if len(e.IconSizes) > 0 {
			sizes = e.IconSizes
		}
		set, err := icon.Read(data, sizes, r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Icon, err)
		}
		ops = append(ops, metaedit.SetIcon{Frames: set})
	}

	if e.Manifest != "" {
		data, err := os.ReadFile(e.Manifest)
		if err != nil {
			return nil, err
		}
		ops = append(ops, metaedit.SetManifest{XML: data})
	}

	if e.Version != "" {
		ops = append(ops, metaedit.SetVersion{Version: e.Version})
	}

	var fields []versioninfo.String
	for _, f := range []versioninfo.String{
		{Key: versioninfo.CompanyName, Value: e.Company},
		{Key: versioninfo.FileDescription, Value: e.Description},
		{Key: versioninfo.ProductName, Value: e.Product},
		{Key: versioninfo.LegalCopyright, Value: e.Copyright},
	} {
		if f.Value != "" {
			fields = append(fields, f)
		}
	}
	keys := make([]string, 0, len(e.Strings))
	for k := range e.Strings {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fields = append(fields, versioninfo.String{Key: k, Value: e.Strings[k]})
	}
	if len(fields) > 0 {
		ops = append(ops, metaedit.SetVersionFields{Fields: fields})
	}

	return ops, nil
}
