// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xyproto/env/v2"
)

const (
	EnvLogLevel  = "METAEDIT_LOG_LEVEL"
	EnvWorkers   = "METAEDIT_WORKERS"
	EnvIconSizes = "METAEDIT_ICON_SIZES"
	EnvBackup    = "METAEDIT_BACKUP"
)

// Env holds the settings read from the environment. Flags override them.
type Env struct {
	LogLevel  string
	Workers   int
	IconSizes []int
	Backup    bool
}

// FromEnv reads the current environment.
func FromEnv() (*Env, error) {
	// env caches os.Environ on first use.
	env.Load()

	sizes, err := ParseSizes(env.Str(EnvIconSizes))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvIconSizes, err)
	}
	return &Env{
		LogLevel:  env.Str(EnvLogLevel, "info"),
		Workers:   env.Int(EnvWorkers, 0),
		IconSizes: sizes,
		Backup:    env.Bool(EnvBackup),
	}, nil
}

// ParseSizes parses a list of icon sizes such as "256,48,32,16". Sizes may
// be separated by commas or whitespace. An empty string yields nil.
func ParseSizes(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	var sizes []int
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil || v < 1 || v > 256 {
			return nil, fmt.Errorf("invalid icon size %q", f)
		}
		sizes = append(sizes, v)
	}
	return sizes, nil
}
