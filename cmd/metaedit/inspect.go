// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/Ghua8088/metaedit"
	"github.com/schollz/cli/v2"
	"gopkg.in/yaml.v3"
)

type inspectResource struct {
	Type     string `yaml:"type"`
	Name     string `yaml:"name"`
	Language string `yaml:"language"`
	Size     int    `yaml:"size"`
	Digest   string `yaml:"digest"`
}

type inspectReport struct {
	Path          string            `yaml:"path"`
	Machine       string            `yaml:"machine"`
	PE32Plus      bool              `yaml:"pe32plus"`
	DLL           bool              `yaml:"dll"`
	FileVersion   string            `yaml:"file_version,omitempty"`
	Product       string            `yaml:"product_version,omitempty"`
	Strings       map[string]string `yaml:"strings,omitempty"`
	Icon          []string          `yaml:"icon,omitempty"`
	Manifest      bool              `yaml:"manifest"`
	Signed        bool              `yaml:"signed"`
	Signer        string            `yaml:"signer,omitempty"`
	Checksum      string            `yaml:"checksum"`
	ChecksumValid bool              `yaml:"checksum_valid"`
	Resources     []inspectResource `yaml:"resources"`
}

func newReport(path string, s *metaedit.ResourceSummary) *inspectReport {
	r := &inspectReport{
		Path:          path,
		Machine:       s.Machine,
		PE32Plus:      s.PE32Plus,
		DLL:           s.DLL,
		Manifest:      s.Manifest,
		Signed:        s.Signed,
		Signer:        s.Signer,
		Checksum:      fmt.Sprintf("%08x", s.Checksum),
		ChecksumValid: s.ChecksumValid,
	}
	if s.HasVersion() {
		r.FileVersion = s.Version.FileVersion
		r.Product = s.Version.ProductVersion
		r.Strings = s.Version.Strings
	}
	for _, f := range s.Icon {
		r.Icon = append(r.Icon, fmt.Sprintf("%dx%d %dbpp #%d", f.Width, f.Height, f.BitCount, f.ID))
	}
	for _, e := range s.Resources {
		r.Resources = append(r.Resources, inspectResource{
			Type:     e.Type.TypeString(),
			Name:     e.Name.String(),
			Language: e.Language.String(),
			Size:     e.Size,
			Digest:   fmt.Sprintf("%016x", e.Digest),
		})
	}
	return r
}

func (r *inspectReport) writeText(w io.Writer) {
	fmt.Fprintf(w, "%s: %s", r.Path, r.Machine)
	if r.PE32Plus {
		fmt.Fprint(w, " PE32+")
	}
	if r.DLL {
		fmt.Fprint(w, " DLL")
	}
	fmt.Fprintln(w)

	if r.FileVersion != "" {
		fmt.Fprintf(w, "  version   %s (product %s)\n", r.FileVersion, r.Product)
		keys := make([]string, 0, len(r.Strings))
		for k := range r.Strings {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "    %-18s %s\n", k, r.Strings[k])
		}
	}
	for _, f := range r.Icon {
		fmt.Fprintf(w, "  icon      %s\n", f)
	}
	fmt.Fprintf(w, "  manifest  %t\n", r.Manifest)
	if r.Signed {
		fmt.Fprintf(w, "  signed    %s\n", r.Signer)
	}
	valid := "valid"
	if !r.ChecksumValid {
		valid = "invalid"
	}
	fmt.Fprintf(w, "  checksum  %s (%s)\n", r.Checksum, valid)
	for _, e := range r.Resources {
		fmt.Fprintf(w, "  %-14s %-12s %-6s %8d %s\n", e.Type, e.Name, e.Language, e.Size, e.Digest)
	}
}

func runInspect(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("no input files")
	}
	format := c.String("format")
	if format != "text" && format != "yaml" {
		return fmt.Errorf("unknown format %q", format)
	}

	var reports []*inspectReport
	for _, path := range c.Args().Slice() {
		s, err := metaedit.Inspect(path)
		if err != nil {
			return err
		}
		reports = append(reports, newReport(path, s))
	}

	if format == "yaml" {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(reports)
	}
	for _, r := range reports {
		r.writeText(os.Stdout)
	}
	return nil
}
