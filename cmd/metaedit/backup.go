// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pierrec/lz4/v4"
	"github.com/schollz/cli/v2"
)

const backupSuffix = ".orig.lz4"

// writeBackup stores an lz4 frame of path next to it and returns its name.
func writeBackup(path string) (name string, err error) {
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	name = path + backupSuffix
	out, err := os.Create(name)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(name)
		}
	}()

	zw := lz4.NewWriter(out)
	if err := zw.Apply(lz4.CompressionLevelOption(lz4.Level5)); err != nil {
		return "", err
	}
	if _, err := io.Copy(zw, in); err != nil {
		return "", err
	}
	return name, zw.Close()
}

// restoreBackup overwrites path with the contents of its backup.
func restoreBackup(path string) error {
	path = strings.TrimSuffix(path, backupSuffix)
	in, err := os.Open(path + backupSuffix)
	if err != nil {
		return err
	}
	defer in.Close()

	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	data, err := io.ReadAll(lz4.NewReader(in))
	if err != nil {
		return fmt.Errorf("%s%s: %w", path, backupSuffix, err)
	}
	return os.WriteFile(path, data, mode)
}

func runRestore(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("no input files")
	}
	for _, path := range c.Args().Slice() {
		lock, err := lockPath(strings.TrimSuffix(path, backupSuffix))
		if err != nil {
			return err
		}
		err = restoreBackup(path)
		lock.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}
