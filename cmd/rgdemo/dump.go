// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"fmt"
	"io"

	"github.com/gogpu/rg"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// Print the passes and resources of one frame graph.
func dumpGraph(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if err := setupLogging(ctx, cfg); err != nil {
		return err
	}

	device, queue, cleanup, err := openNoopDevice()
	if err != nil {
		return err
	}
	defer cleanup()

	r, err := newRenderer(device, queue, rendererConfig{
		Width:  uint32(ctx.Int("width")),
		Height: uint32(ctx.Int("height")),
		Graph:  cfg,
	})
	if err != nil {
		return err
	}
	defer r.close()

	tg := rg.NewTemporalRenderGraph(r.temporal, r.device, r.graphOptions()...)
	if _, err := r.buildFrame(tg); err != nil {
		r.temporal = tg.Abandon()
		return err
	}
	g, exported := tg.ExportTemporal()
	// The graph is never executed.
	defer func() { r.temporal = exported.Abandon() }()

	compiled, err := g.Compile(r.pipes)
	if err != nil {
		return err
	}
	printGraph(ctx.App.Writer, compiled)
	return nil
}

func printGraph(w io.Writer, compiled *rg.CompiledRenderGraph) {
	g := compiled.Graph()
	names := g.PassNames()

	passes := tablewriter.NewWriter(w)
	passes.SetAutoFormatHeaders(false)
	passes.SetHeader([]string{"#", "Pass"})
	for i, name := range names {
		passes.Append([]string{fmt.Sprintf("%d", i), name})
	}
	pipes := compiled.Pipelines()
	passes.SetFooter([]string{"", fmt.Sprintf("%d compute, %d raster pipelines", len(pipes.Compute), len(pipes.Raster))})
	passes.Render()

	info := compiled.ResourceInfo()
	resources := tablewriter.NewWriter(w)
	resources.SetAutoFormatHeaders(false)
	resources.SetHeader([]string{"ID", "Kind", "Last pass", "Usage"})
	for id, kind := range info.ResourceKind {
		last := "-"
		if lt := info.Lifetimes[id]; lt.Accessed && lt.LastAccess < len(names) {
			last = names[lt.LastAccess]
		}
		usage := "-"
		switch kind {
		case rg.KindImage:
			usage = fmt.Sprintf("texture %#x", uint32(info.ImageUsage[id]))
		case rg.KindBuffer, rg.KindRayTracingAcceleration:
			usage = fmt.Sprintf("buffer %#x", uint32(info.BufferUsage[id]))
		}
		resources.Append([]string{fmt.Sprintf("%d", id), kind.String(), last, usage})
	}
	resources.Render()
}
