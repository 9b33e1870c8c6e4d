// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

var errLocked = errors.New("file is being edited by another metaedit process")

// lockName returns the lock file guarding path. Locks live in the temporary
// directory, keyed by the absolute path, and are never removed so that
// every process locks the same inode.
func lockName(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("metaedit-%016x.lock", xxhash.Sum64String(abs))), nil
}

// lockPath takes an exclusive advisory lock on path without blocking.
func lockPath(path string) (*fileLock, error) {
	name, err := lockName(path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	l := &fileLock{f: f}
	if err := l.lock(); err != nil {
		f.Close()
		if errors.Is(err, errLocked) {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	return l, nil
}

type fileLock struct {
	f *os.File
}

func (l *fileLock) Unlock() error {
	err := l.unlock()
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	return err
}
