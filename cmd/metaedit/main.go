// SPDX-License-Identifier: MIT
//
// Copyright (c) 2026 The metaedit Authors

// Command metaedit sets the icon, version information and manifest of
// Windows executables.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/schollz/cli/v2"
)

func newLogger(level string) (hclog.Logger, error) {
	l := hclog.LevelFromString(level)
	if l == hclog.NoLevel {
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "metaedit",
		Level:  l,
		Output: os.Stderr,
	}), nil
}

func applyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "icon", Usage: "icon `FILE` (.ico, .png, .bmp, .jpg, .gif)"},
		&cli.StringFlag{Name: "icon-sizes", Usage: "frame `SIZES` to derive from a raster icon, e.g. 256,48,32,16"},
		&cli.StringFlag{Name: "resampler", Usage: "resampling filter: catmullrom, lanczos, bilinear or nearest"},
		&cli.StringFlag{Name: "version", Usage: "file and product `VERSION`"},
		&cli.StringFlag{Name: "company", Usage: "CompanyName"},
		&cli.StringFlag{Name: "description", Usage: "FileDescription"},
		&cli.StringFlag{Name: "product", Usage: "ProductName"},
		&cli.StringFlag{Name: "copyright", Usage: "LegalCopyright"},
		&cli.StringSliceFlag{Name: "string", Aliases: []string{"s"}, Usage: "version string `KEY=VALUE` (repeatable)"},
		&cli.StringFlag{Name: "manifest", Usage: "application manifest `FILE`"},
		&cli.StringSliceFlag{Name: "delete", Usage: "remove the resource at `TYPE/NAME[/LANG]` (repeatable)"},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "write to `FILE` instead of overwriting the input"},
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "branding `FILE` (.toml or .yaml) listing targets"},
		&cli.StringFlag{Name: "log-level", Usage: "trace, debug, info, warn or error"},
		&cli.IntFlag{Name: "workers", Aliases: []string{"j"}, Usage: "files to edit in parallel (default: number of CPUs)"},
		&cli.BoolFlag{Name: "backup", Usage: "keep an lz4-compressed copy of each overwritten file"},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "metaedit",
		Usage:     "edit icons, version information and manifests of Windows executables",
		UsageText: "metaedit [options] FILE...\n   metaedit inspect FILE...\n   metaedit restore FILE...",
		Flags:     applyFlags(),
		Action:    runApply,
		Commands: []*cli.Command{
			{
				Name:      "apply",
				Usage:     "apply edits to one or more files",
				ArgsUsage: "FILE...",
				Flags:     applyFlags(),
				Action:    runApply,
			},
			{
				Name:      "inspect",
				Usage:     "list the resources of one or more files",
				ArgsUsage: "FILE...",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Value: "text", Usage: "output format: text or yaml"},
				},
				Action: runInspect,
			},
			{
				Name:      "restore",
				Usage:     "restore files from their --backup copies",
				ArgsUsage: "FILE...",
				Action:    runRestore,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "metaedit: "+strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
