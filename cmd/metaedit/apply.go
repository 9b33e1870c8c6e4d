// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Ghua8088/metaedit"
	"github.com/Ghua8088/metaedit/internal/config"
	"github.com/hashicorp/go-hclog"
	"github.com/schollz/cli/v2"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// flagEdit collects the edit given on the command line.
func flagEdit(c *cli.Context) (config.Edit, error) {
	e := config.Edit{
		Output:      c.String("output"),
		Icon:        c.String("icon"),
		Resampler:   c.String("resampler"),
		Version:     c.String("version"),
		Company:     c.String("company"),
		Description: c.String("description"),
		Product:     c.String("product"),
		Copyright:   c.String("copyright"),
		Manifest:    c.String("manifest"),
		Delete:      c.StringSlice("delete"),
	}

	sizes, err := config.ParseSizes(c.String("icon-sizes"))
	if err != nil {
		return e, err
	}
	e.IconSizes = sizes

	for _, kv := range c.StringSlice("string") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return e, fmt.Errorf("invalid --string %q, expected KEY=VALUE", kv)
		}
		if e.Strings == nil {
			e.Strings = make(map[string]string)
		}
		e.Strings[k] = v
	}
	return e, nil
}

func targets(c *cli.Context, cliEdit config.Edit) ([]config.Edit, error) {
	var edits []config.Edit
	if path := c.String("config"); path != "" {
		f, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		edits = f.Edits(cliEdit)
	}
	for _, arg := range c.Args().Slice() {
		e := cliEdit
		e.Path = arg
		edits = append(edits, e)
	}

	if len(edits) == 0 {
		return nil, errors.New("no input files")
	}
	if cliEdit.Output != "" && len(edits) > 1 {
		return nil, errors.New("--output needs exactly one input file")
	}
	for _, e := range edits {
		if e.Empty() {
			return nil, fmt.Errorf("%s: nothing to change", e.Path)
		}
	}
	return edits, nil
}

func newProgress(n int) func(string, error) {
	if n < 2 || !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	bar := progressbar.NewOptions(n,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("editing"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	return func(string, error) {
		_ = bar.Add(1)
	}
}

func runApply(c *cli.Context) error {
	env, err := config.FromEnv()
	if err != nil {
		return err
	}
	level := env.LogLevel
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	logger, err := newLogger(level)
	if err != nil {
		return err
	}

	cliEdit, err := flagEdit(c)
	if err != nil {
		return err
	}
	edits, err := targets(c, cliEdit)
	if err != nil {
		return err
	}
	jobs, err := config.Jobs(edits, env.IconSizes)
	if err != nil {
		return err
	}

	locked := make(map[string]bool)
	for _, job := range jobs {
		path := filepath.Clean(job.Path)
		if locked[path] {
			continue
		}
		locked[path] = true
		lock, err := lockPath(path)
		if err != nil {
			return err
		}
		defer lock.Unlock()
	}

	if c.Bool("backup") || env.Backup {
		for _, job := range jobs {
			if job.Output != "" {
				continue
			}
			name, err := writeBackup(job.Path)
			if err != nil {
				return fmt.Errorf("backup of %s: %w", job.Path, err)
			}
			logger.Info("saved backup", "path", job.Path, "backup", name)
		}
	}

	workers := env.Workers
	if c.IsSet("workers") {
		workers = c.Int("workers")
	}
	errs := metaedit.ApplyBatch(jobs, workers, &metaedit.Options{
		Logger:   logger,
		Progress: newProgress(len(jobs)),
	})
	return report(logger, jobs, errs)
}

func report(logger hclog.Logger, jobs []metaedit.Job, errs []error) error {
	failed := 0
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed++
		logger.Error("edit failed", "path", jobs[i].Path, "kind", metaedit.KindOf(err).String(), "error", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(jobs))
	}
	return nil
}
