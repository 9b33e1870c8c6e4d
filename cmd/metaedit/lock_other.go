// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

//go:build !unix && !windows

package main

// No advisory locking on this platform.

func (l *fileLock) lock() error {
	return nil
}

func (l *fileLock) unlock() error {
	return nil
}
