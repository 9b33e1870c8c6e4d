// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

// Package config loads the command line tool's settings from the
// environment and from branding files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Ghua8088/metaedit"
	"gopkg.in/yaml.v3"
)

var ErrUnknownFormat = errors.New("config: unknown file format")

// File is a branding file. Defaults apply to every target; each target
// overrides them field by field. Relative paths are taken relative to the
// directory holding the file.
//
//	[defaults]
//	company = "Example Corp"
//	version = "1.2.0"
//
//	[[target]]
//	path = "bin/app.exe"
//	icon = "assets/app.ico"
type File struct {
	Defaults Edit   `toml:"defaults" yaml:"defaults"`
	Targets  []Edit `toml:"target" yaml:"targets"`
}

func decodeTOML(path string, f *File) error {
	md, err := toml.DecodeFile(path, f)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	return nil
}

func decodeYAML(path string, f *File) error {
	r, err := os.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	return dec.Decode(f)
}

// Load reads a branding file, TOML or YAML by extension, and resolves its
// relative paths.
func Load(path string) (*File, error) {
	f := &File{}
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = decodeTOML(path, f)
	case ".yaml", ".yml":
		err = decodeYAML(path, f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	f.Defaults = f.Defaults.resolve(dir)
	for i := range f.Targets {
		if f.Targets[i].Path == "" {
			return nil, fmt.Errorf("config: %s: target %d has no path", path, i+1)
		}
		f.Targets[i] = f.Targets[i].resolve(dir)
	}
	return f, nil
}

// Edits returns each target merged over the defaults, then over cli.
func (f *File) Edits(cli Edit) []Edit {
	edits := make([]Edit, len(f.Targets))
	for i, t := range f.Targets {
		edits[i] = f.Defaults.Merge(t).Merge(cli)
	}
	return edits
}

// Jobs turns edits into batch jobs.
func Jobs(edits []Edit, sizes []int) ([]metaedit.Job, error) {
	jobs := make([]metaedit.Job, 0, len(edits))
	for _, e := range edits {
		ops, err := e.Operations(sizes)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Path, err)
		}
		jobs = append(jobs, metaedit.Job{Path: e.Path, Operations: ops, Output: e.Output})
	}
	return jobs, nil
}
