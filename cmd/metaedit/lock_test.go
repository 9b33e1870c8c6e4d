// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

//go:build unix || windows

package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.exe")

	first, err := lockPath(path)
	require.NoError(t, err)

	_, err = lockPath(path)
	assert.ErrorIs(t, err, errLocked)

	other, err := lockPath(path + ".other")
	require.NoError(t, err)
	require.NoError(t, other.Unlock())

	require.NoError(t, first.Unlock())
	again, err := lockPath(path)
	require.NoError(t, err)
	require.NoError(t, again.Unlock())
}
