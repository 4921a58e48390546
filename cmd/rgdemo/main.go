// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command rgdemo drives a small deferred renderer through the render
// graph on the noop HAL backend: a G-buffer pass, tiled lighting, TAA
// with temporal history and a tonemap into the swapchain.
//
// Usage:
//
//	rgdemo [-v|-vv] [--config rg.toml] run [--frames N] [--sheet out.png]
//	rgdemo dump [--width W] [--height H]
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "rgdemo:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "rgdemo"
	app.Usage = "render frames through the render graph on the noop GPU backend"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: "load render graph settings from a TOML `FILE`",
		},
	}
	sizeFlags := []cli.Flag{
		cli.IntFlag{
			Name:  "width",
			Value: 320,
			Usage: "frame width",
		},
		cli.IntFlag{
			Name:  "height",
			Value: 180,
			Usage: "frame height",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "run",
			Usage: "render frames and print statistics",
			Description: `
Render a number of frames, carrying TAA history between them, and print
per-pass timings plus barrier and allocation counts. With --sheet the last
frame's lit image, TAA history and debug-hook output are read back and
written as a PNG contact sheet.`,
			Flags: append([]cli.Flag{
				cli.IntFlag{
					Name:  "frames, n",
					Value: 8,
					Usage: "number of frames to render",
				},
				cli.Float64Flag{
					Name:  "exposure",
					Value: 1.0,
					Usage: "exposure applied before tonemapping",
				},
				cli.StringFlag{
					Name:  "debug-pass",
					Usage: "copy the output of the named pass for inspection",
				},
				cli.StringFlag{
					Name:  "sheet, o",
					Usage: "write a contact sheet of the last frame to `FILE`",
				},
			}, sizeFlags...),
			Action: runFrames,
		},
		{
			Name:        "dump",
			Usage:       "print the passes and resources of one frame",
			Description: `Build and compile one frame graph without executing it.`,
			Flags:       sizeFlags,
			Action:      dumpGraph,
		},
	}
	return app
}
