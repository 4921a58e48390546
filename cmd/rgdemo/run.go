// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/gogpu/rg"
	"github.com/gogpu/rg/debugview"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// sheetTileSize is the thumbnail size of contact sheet tiles.
const sheetTileSize = 160

// Render frames and print statistics.
func runFrames(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if err := setupLogging(ctx, cfg); err != nil {
		return err
	}
	if pass := ctx.String("debug-pass"); pass != "" {
		cfg.DebugHook = rg.DebugHookConfig{Pass: pass}
	}
	frames := ctx.Int("frames")
	if frames <= 0 {
		return fmt.Errorf("--frames must be positive, got %d", frames)
	}

	device, queue, cleanup, err := openNoopDevice()
	if err != nil {
		return err
	}
	defer cleanup()

	r, err := newRenderer(device, queue, rendererConfig{
		Width:    uint32(ctx.Int("width")),
		Height:   uint32(ctx.Int("height")),
		Exposure: float32(ctx.Float64("exposure")),
		Graph:    cfg,
	})
	if err != nil {
		return err
	}
	defer r.close()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sheet := ctx.String("sheet")
	results, err := renderFrames(sigCtx, r, frames, sheet != "")
	if err != nil {
		return err
	}
	printStats(ctx.App.Writer, r, results)

	if sheet == "" {
		return nil
	}
	return writeSheet(sheet, results[len(results)-1])
}

// renderFrames renders n frames, capturing the last one when capture is
// set.
func renderFrames(ctx context.Context, r *renderer, n int, capture bool) ([]*frameResult, error) {
	results := make([]*frameResult, 0, n)
	for i := range n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.cfg.Capture = capture && i == n-1
		res, err := r.renderFrame(ctx)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func writeSheet(path string, res *frameResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := debugview.WritePNG(f, res.contactSheet(sheetTileSize)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// printStats writes per-pass timings and per-run totals as tables.
func printStats(w io.Writer, r *renderer, results []*frameResult) {
	passes := tablewriter.NewWriter(w)
	passes.SetAutoFormatHeaders(false)
	passes.SetAutoWrapText(false)
	passes.SetHeader([]string{"Pass", "Count", "Mean", "Min", "Max"})
	for _, s := range r.prof.Stats() {
		passes.Append([]string{
			s.Name,
			fmt.Sprintf("%d", s.Count),
			s.Mean.String(),
			s.Min.String(),
			s.Max.String(),
		})
	}
	passes.Render()

	var total rg.ExecutionStats
	for _, res := range results {
		total.PassesRecorded += res.Exec.PassesRecorded
		total.TextureBarriers += res.Exec.TextureBarriers
		total.BufferBarriers += res.Exec.BufferBarriers
		total.BarriersSkipped += res.Exec.BarriersSkipped
		total.ResourcesCreated += res.Exec.ResourcesCreated
		total.ResourcesReused += res.Exec.ResourcesReused
	}
	pipes := r.pipes.Stats()
	images, buffers := r.transient.Stats()

	summary := tablewriter.NewWriter(w)
	summary.SetAutoFormatHeaders(false)
	summary.SetHeader([]string{"Metric", "Value"})
	rows := [][2]string{
		{"frames", fmt.Sprintf("%d", len(results))},
		{"passes recorded", fmt.Sprintf("%d", total.PassesRecorded)},
		{"texture barriers", fmt.Sprintf("%d", total.TextureBarriers)},
		{"buffer barriers", fmt.Sprintf("%d", total.BufferBarriers)},
		{"barriers skipped", fmt.Sprintf("%d", total.BarriersSkipped)},
		{"resources created", fmt.Sprintf("%d", total.ResourcesCreated)},
		{"resources reused", fmt.Sprintf("%d", total.ResourcesReused)},
		{"pipelines", fmt.Sprintf("%d compute, %d raster", pipes.Compute, pipes.Raster)},
		{"shaders compiled", fmt.Sprintf("%d", pipes.ShadersCompiled)},
		{"transient images", fmt.Sprintf("%d parked, %.0f%% hit rate", images.Len, images.HitRate*100)},
		{"transient buffers", fmt.Sprintf("%d parked, %.0f%% hit rate", buffers.Len, buffers.HitRate*100)},
		{"temporal resources", fmt.Sprintf("%d", len(r.temporal.Keys()))},
	}
	for _, row := range rows {
		summary.Append(row[:])
	}
	summary.Render()
}
