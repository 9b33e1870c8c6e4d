// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

// Package metaedit rewrites the icon, version information and manifest of
// PE executables without a compiler or linker.
package metaedit

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Ghua8088/metaedit/pe"
	"github.com/Ghua8088/metaedit/rsrc"
	"github.com/hashicorp/go-hclog"
)

type Options struct {
	// Output is the file to write; the input is overwritten when empty.
	Output string
	// Logger receives progress and warnings. Defaults to a null logger.
	Logger hclog.Logger
	// Progress, if set, is called by ApplyBatch after each job. It may be
	// called from several goroutines at once.
	Progress func(path string, err error)
}

func (o *Options) logger() hclog.Logger {
	if o == nil || o.Logger == nil {
		return hclog.NewNullLogger()
	}
	return o.Logger
}

func checkSupported(img *pe.Image) error {
	if !img.Machine.Supported() {
		return fmt.Errorf("%w: machine %s (0x%04x)", pe.ErrUnsupportedFormat, img.Machine, uint16(img.Machine))
	}
	if img.Subsystem.IsEFI() {
		return fmt.Errorf("%w: EFI subsystem %d", pe.ErrUnsupportedFormat, img.Subsystem)
	}
	return nil
}

// readResources parses the resource directory of img, returning it with its
// RVA and the number of bytes it occupies. Images without one yield an empty
// tree.
func readResources(img *pe.Image) (*rsrc.Directory, uint32, uint32, error) {
	sec, err := img.ResourceSection()
	if err != nil || sec == nil {
		return rsrc.New(), 0, 0, err
	}
	rva := img.Directory(pe.IMAGE_DIRECTORY_ENTRY_RESOURCE).VirtualAddress
	tree, extent, err := rsrc.ParseExtent(img.SectionData(sec), sec.VirtualAddress, rva)
	if err != nil {
		return nil, 0, 0, err
	}
	return tree, rva, extent, nil
}

// Apply performs ops on the image at path, in order, and writes the result
// to opts.Output or back to path. Either every operation takes effect or
// the destination is left untouched.
//
// When the resulting resource tree equals the existing one nothing is
// rewritten, so applying the same operations twice gives the same file.
// Any other change removes the image's Authenticode signature, which it
// would invalidate.
func Apply(path string, ops []Operation, opts *Options) error {
	logger := opts.logger().With("path", path)
	dest := path
	if opts != nil && opts.Output != "" {
		dest = opts.Output
	}

	fi, err := os.Stat(path)
	if err != nil {
		return wrap("load", path, err)
	}
	img, err := pe.Load(path)
	if err != nil {
		return wrap("load", path, err)
	}
	if err := checkSupported(img); err != nil {
		return wrap("load", path, err)
	}

	tree, rva, extent, err := readResources(img)
	if err != nil {
		return wrap("parse", path, err)
	}
	before, err := rsrc.Write(tree, rva)
	if err != nil {
		return wrap("parse", path, err)
	}

	s := &session{tree: tree.Clone(), dll: img.IsDLL(), logger: logger}
	for _, op := range ops {
		logger.Debug("applying", "operation", op.String())
		if err := op.apply(s); err != nil {
			return wrap(op.String(), path, err)
		}
	}

	after, err := rsrc.Write(s.tree, rva)
	if err != nil {
		return wrap("build", path, err)
	}
	if bytes.Equal(before, after) {
		if dest == path {
			logger.Debug("resources unchanged, not rewriting")
			return nil
		}
	} else {
		if err := rewrite(img, s.tree, extent, logger); err != nil {
			return wrap("relocate", path, err)
		}
	}

	if err := writeFileAtomic(dest, img.Bytes(), fi.Mode().Perm()); err != nil {
		return wrap("write", dest, err)
	}
	logger.Info("wrote image", "output", dest, "size", len(img.Bytes()))
	return nil
}

func rewrite(img *pe.Image, tree *rsrc.Directory, extent uint32, logger hclog.Logger) error {
	if stripped, err := img.StripCertificate(); err != nil {
		return err
	} else if stripped {
		logger.Warn("removed Authenticode signature invalidated by the edit")
	}

	err := img.SetResources(func(rva uint32) ([]byte, error) {
		return rsrc.Write(tree, rva)
	}, extent, logger)
	if err != nil {
		return err
	}

	if err := img.UpdateChecksum(); err != nil {
		logger.Warn("image checksum left unchanged", "error", err)
	}
	return nil
}

// writeFileAtomic replaces path with data through a temporary file in the
// same directory, so readers see either the old or the new file.
func writeFileAtomic(path string, data []byte, perm fs.FileMode) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return err
	}
	if err = f.Chmod(perm); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
