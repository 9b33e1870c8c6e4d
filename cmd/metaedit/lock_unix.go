// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

//go:build unix

package main

import (
	"errors"

	"golang.org/x/sys/unix"
)

func (l *fileLock) lock() error {
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return errLocked
	}
	return err
}

func (l *fileLock) unlock() error {
	return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
}
