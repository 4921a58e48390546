// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/gogpu/rg"
	"github.com/gogpu/rg/debugview"
	"github.com/gogpu/wgpu/hal"
)

func newTestRenderer(t *testing.T, cfg rg.Config) *renderer {
	t.Helper()
	device, queue, cleanup, err := openNoopDevice()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(cleanup)
	r, err := newRenderer(device, queue, rendererConfig{Width: 64, Height: 32, Graph: cfg})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.close)
	return r
}

func TestFrameConstantsLayout(t *testing.T) {
	if got := binary.Size(frameConstants{}); got != frameConstantsSize {
		t.Errorf("frameConstants is %d bytes, uniform block is %d", got, frameConstantsSize)
	}
}

func TestHaltonJitter(t *testing.T) {
	tests := []struct {
		frame uint32
		want  [2]float32
	}{
		{0, [2]float32{0, -1.0 / 6}},
		{1, [2]float32{-0.25, 1.0 / 6}},
		{2, [2]float32{0.25, -7.0 / 18}},
		{8, [2]float32{0, -1.0 / 6}},
	}
	for _, tt := range tests {
		got := haltonJitter(tt.frame)
		for i := range got {
			if math.Abs(float64(got[i]-tt.want[i])) > 1e-6 {
				t.Errorf("haltonJitter(%d) = %v, want %v", tt.frame, got, tt.want)
				break
			}
		}
	}
}

func TestRenderFramesReusesResources(t *testing.T) {
	r := newTestRenderer(t, rg.DefaultConfig())

	results, err := renderFrames(context.Background(), r, 3, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}

	wantPasses := []string{"gbuffer", "light tiles", "lighting", "taa", "tonemap"}
	if !slices.Equal(results[0].Passes, wantPasses) {
		t.Errorf("passes = %v, want %v", results[0].Passes, wantPasses)
	}
	if got := results[0].Exec.ResourcesCreated; got != 4 {
		t.Errorf("frame 0 created %d resources, want 4", got)
	}
	for _, res := range results[1:] {
		if res.Exec.ResourcesCreated != 0 || res.Exec.ResourcesReused != 4 {
			t.Errorf("frame %d: created %d reused %d, want 0/4",
				res.Index, res.Exec.ResourcesCreated, res.Exec.ResourcesReused)
		}
	}
	if got := len(results[2].Profile.Scopes); got != len(wantPasses) {
		t.Errorf("profiled %d scopes, want %d", got, len(wantPasses))
	}

	stats := r.pipes.Stats()
	if stats.Compute != 1 || stats.Raster != 4 {
		t.Errorf("pipelines = %d compute %d raster, want 1/4", stats.Compute, stats.Raster)
	}
	// fullscreen plus five pass shaders, each compiled once.
	if stats.ShadersCompiled != 6 {
		t.Errorf("ShadersCompiled = %d, want 6", stats.ShadersCompiled)
	}

	keys := r.temporal.Keys()
	if len(keys) != 2 {
		t.Fatalf("temporal keys = %v", keys)
	}
	for _, key := range keys {
		if _, _, ok := r.temporal.Resource(key); !ok {
			t.Errorf("temporal resource %q missing", key)
		}
	}
	if len(r.frameBindGroups) != 0 {
		t.Errorf("%d bind groups left after the frame", len(r.frameBindGroups))
	}
}

func TestCaptureWithDebugHook(t *testing.T) {
	cfg := rg.DefaultConfig()
	cfg.DebugHook = rg.DebugHookConfig{Pass: "lighting"}
	r := newTestRenderer(t, cfg)

	results, err := renderFrames(context.Background(), r, 2, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(results[0].Captures) != 0 {
		t.Errorf("first frame captured %d images", len(results[0].Captures))
	}

	last := results[1]
	for _, want := range []string{"debug: lighting", "readback: lit", "readback: history", "readback: debug lighting"} {
		if !slices.Contains(last.Passes, want) {
			t.Errorf("passes %v lack %q", last.Passes, want)
		}
	}
	var labels []string
	for _, c := range last.Captures {
		labels = append(labels, c.Label)
		if b := c.Image.Bounds(); b.Dx() != 64 || b.Dy() != 32 {
			t.Errorf("capture %q is %v", c.Label, b)
		}
	}
	if want := []string{"lit", "history", "debug lighting"}; !slices.Equal(labels, want) {
		t.Errorf("captures = %v, want %v", labels, want)
	}

	var buf bytes.Buffer
	if err := debugview.WritePNG(&buf, last.contactSheet(32)); err != nil {
		t.Fatal(err)
	}
	if buf.Len() == 0 {
		t.Error("empty contact sheet")
	}
}

// uploadFailingQueue fails buffer uploads while fail is set.
type uploadFailingQueue struct {
	hal.Queue
	fail bool
}

var errUpload = errors.New("upload failed")

func (q *uploadFailingQueue) WriteBuffer(buf hal.Buffer, offset uint64, data []byte) error {
	if q.fail {
		return errUpload
	}
	return q.Queue.WriteBuffer(buf, offset, data)
}

func TestFailedUploadAbandonsFrame(t *testing.T) {
	device, queue, cleanup, err := openNoopDevice()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(cleanup)
	q := &uploadFailingQueue{Queue: queue, fail: true}
	r, err := newRenderer(device, q, rendererConfig{Width: 64, Height: 32, Graph: rg.DefaultConfig()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.close)

	if _, err := r.renderFrame(context.Background()); !errors.Is(err, errUpload) {
		t.Fatalf("renderFrame = %v, want %v", err, errUpload)
	}
	if r.frame != 0 {
		t.Errorf("frame counter advanced to %d", r.frame)
	}
	if r.consts.Used() != 0 {
		t.Errorf("%d bytes of constants left from the abandoned frame", r.consts.Used())
	}

	// Temporal resources went back to inert, so the next frame can take them.
	q.fail = false
	res, err := r.renderFrame(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Index != 0 || res.Exec.ResourcesCreated+res.Exec.ResourcesReused != 4 {
		t.Errorf("frame %d: created %d reused %d", res.Index, res.Exec.ResourcesCreated, res.Exec.ResourcesReused)
	}
}

func TestNewRendererRejectsEmptySize(t *testing.T) {
	device, queue, cleanup, err := openNoopDevice()
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()
	if _, err := newRenderer(device, queue, rendererConfig{Width: 0, Height: 8}); err == nil {
		t.Error("expected error for zero width")
	}
}

func TestDumpCommand(t *testing.T) {
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	if err := app.Run([]string{"rgdemo", "dump", "--width", "64", "--height", "32"}); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"gbuffer", "light tiles", "tonemap", "1 compute, 4 raster pipelines"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("dump output lacks %q:\n%s", want, out.String())
		}
	}
}

func TestRunCommandWritesSheet(t *testing.T) {
	dir := t.TempDir()
	sheet := filepath.Join(dir, "sheet.png")
	config := filepath.Join(dir, "rg.toml")
	if err := os.WriteFile(config, []byte("log_level = \"error\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	args := []string{"rgdemo", "--config", config, "run", "--frames", "2", "--width", "48", "--height", "24", "--sheet", sheet}
	if err := app.Run(args); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "temporal resources") {
		t.Errorf("run output lacks the summary:\n%s", out.String())
	}

	f, err := os.Open(sheet)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := png.Decode(f); err != nil {
		t.Errorf("sheet is not a PNG: %v", err)
	}
}

func TestRunCommandRejectsBadFrames(t *testing.T) {
	app := newApp()
	app.Writer = &bytes.Buffer{}
	if err := app.Run([]string{"rgdemo", "run", "--frames", "0"}); err == nil {
		t.Error("expected error for zero frames")
	}
}
