// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"log/slog"
	"os"

	"github.com/gogpu/rg"
	"github.com/urfave/cli"
)

// loadConfig reads the --config file, or returns the defaults.
func loadConfig(ctx *cli.Context) (rg.Config, error) {
	path := ctx.GlobalString("config")
	if path == "" {
		return rg.DefaultConfig(), nil
	}
	return rg.LoadConfig(path)
}

// setupLogging installs a stderr logger at the configured level, raised
// by -v and -vv.
func setupLogging(ctx *cli.Context, cfg rg.Config) error {
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	if ctx.GlobalBool("v") {
		level = min(level, slog.LevelInfo)
	}
	if ctx.GlobalBool("vv") {
		level = slog.LevelDebug
	}
	rg.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}
