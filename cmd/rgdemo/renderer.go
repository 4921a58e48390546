// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rg"
	"github.com/gogpu/rg/debugview"
	"github.com/gogpu/rg/dynconst"
	"github.com/gogpu/rg/pipecache"
	"github.com/gogpu/rg/profiler"
	"github.com/gogpu/rg/transient"
	"github.com/gogpu/wgpu/hal"
)

// rendererConfig configures a renderer.
type rendererConfig struct {
	Width, Height uint32
	Exposure      float32
	Graph         rg.Config

	// Capture adds readback passes to every frame.
	Capture bool
}

// renderer owns everything that outlives a frame: the pipeline cache,
// the transient resource cache, the dynamic constants ring, temporal
// resources and the swapchain image.
type renderer struct {
	cfg    rendererConfig
	device hal.Device
	queue  hal.Queue

	pipes     *pipecache.Cache
	transient *transient.Cache
	consts    *dynconst.Buffer
	prof      *profiler.Profiler
	temporal  *rg.TemporalRenderGraphState
	swapchain *rg.Image

	frame           uint32
	frameConstants  []byte
	frameBindGroups []hal.BindGroup
}

// frameResult describes one rendered frame.
type frameResult struct {
	Index    uint32
	Passes   []string
	Exec     rg.ExecutionStats
	Profile  profiler.Frame
	Captures []debugview.Tile
}

func newRenderer(device hal.Device, queue hal.Queue, cfg rendererConfig) (*renderer, error) {
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("rgdemo: invalid size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Exposure == 0 {
		cfg.Exposure = 1
	}
	consts, err := dynconst.New(device, queue, dynconst.WithLabel("rgdemo_constants"))
	if err != nil {
		return nil, err
	}
	swapchain, err := rg.CreateImage(device,
		rg.NewImageDesc2D(gputypes.TextureFormatBGRA8Unorm, cfg.Width, cfg.Height),
		gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageCopySrc, "swapchain")
	if err != nil {
		consts.Destroy()
		return nil, err
	}
	return &renderer{
		cfg:       cfg,
		device:    device,
		queue:     queue,
		pipes:     pipecache.New(device, pipecache.WithShaderFS(shaderFS), pipecache.WithWorkers(cfg.Graph.PipelineWorkers)),
		transient: transient.New(device, cfg.Graph.Transient),
		consts:    consts,
		prof:      profiler.New(),
		temporal:  rg.NewTemporalRenderGraphState(),
		swapchain: swapchain,
	}, nil
}

func (r *renderer) graphOptions() []rg.Option {
	return []rg.Option{
		rg.WithConfig(r.cfg.Graph),
		rg.WithPredefinedLayout(rg.FrameConstantsSetIndex, frameConstantsEntries),
	}
}

// renderFrame builds, compiles, records and submits one frame, then
// waits for it. A frame that fails before submission leaves the temporal
// resources as they were.
func (r *renderer) renderFrame(ctx context.Context) (*frameResult, error) {
	r.frameConstants = r.encodeConstants()

	tg := rg.NewTemporalRenderGraph(r.temporal, r.device, r.graphOptions()...)
	fg, err := r.buildFrame(tg)
	if err != nil {
		r.temporal = tg.Abandon()
		return nil, err
	}
	defer fg.releaseCaptures()
	g, exported := tg.ExportTemporal()

	compiled, err := g.Compile(r.pipes)
	if err != nil {
		r.temporal = exported.Abandon()
		return nil, err
	}
	if err := r.pipes.Prepare(ctx); err != nil {
		r.temporal = exported.Abandon()
		return nil, err
	}

	r.prof.BeginFrame()
	retired, err := r.record(compiled)
	profile := r.prof.EndFrame()
	r.releaseBindGroups()
	if err != nil {
		r.consts.Discard()
		r.temporal = exported.Abandon()
		return nil, err
	}

	r.temporal, err = exported.RetireTemporal(retired)
	retired.ReleaseResources(r.transient)
	if err != nil {
		return nil, err
	}

	res := &frameResult{
		Index:   r.frame,
		Passes:  g.PassNames(),
		Exec:    retired.Stats(),
		Profile: profile,
	}
	for _, c := range fg.captures {
		img, err := c.Read(r.queue, r.cfg.Exposure)
		c.Release()
		if err != nil {
			return nil, err
		}
		res.Captures = append(res.Captures, debugview.Tile{Label: c.Name, Image: img})
	}

	if err := r.consts.AdvanceFrame(); err != nil {
		return nil, err
	}
	r.frame++
	rg.Logger().Debug("rgdemo: frame done", "frame", res.Index, "passes", len(res.Passes),
		"barriers", res.Exec.TextureBarriers+res.Exec.BufferBarriers)
	return res, nil
}

// record encodes the frame into one command buffer, submits it and waits
// for the GPU.
func (r *renderer) record(compiled *rg.CompiledRenderGraph) (*rg.RetiredRenderGraph, error) {
	exec, err := compiled.BeginExecute(rg.ExecutionParams{
		Device:        r.device,
		PipelineCache: r.pipes,
		Profiler:      r.prof,
	}, r.transient, r.consts)
	if err != nil {
		return nil, err
	}

	encoder, err := r.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "rgdemo_encoder",
	})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(fmt.Sprintf("frame_%d", r.frame)); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	if err := exec.RecordMainCb(encoder); err != nil {
		encoder.DiscardEncoding()
		return nil, err
	}
	retired, err := exec.RecordPresentationCb(encoder, r.swapchain)
	if err != nil {
		encoder.DiscardEncoding()
		return nil, err
	}
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		retired.ReleaseResources(r.transient)
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	defer r.device.FreeCommandBuffer(cmdBuf)

	if err := r.submit(cmdBuf); err != nil {
		retired.ReleaseResources(r.transient)
		return nil, err
	}
	return retired, nil
}

// submit uploads the frame's constants, submits cmdBuf and waits for it.
func (r *renderer) submit(cmdBuf hal.CommandBuffer) error {
	if err := r.consts.Flush(); err != nil {
		return err
	}

	fence, err := r.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer r.device.DestroyFence(fence)

	if err := r.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fenceOK, err := r.device.Wait(fence, 1, 5*time.Second)
	if err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if !fenceOK {
		return errors.New("wait for GPU: timed out")
	}
	return nil
}

func (r *renderer) releaseBindGroups() {
	for _, bg := range r.frameBindGroups {
		r.device.DestroyBindGroup(bg)
	}
	r.frameBindGroups = r.frameBindGroups[:0]
}

// contactSheet lays the frame's captures out as one image.
func (res *frameResult) contactSheet(tileSize int) *image.NRGBA {
	return debugview.ContactSheet(res.Captures, debugview.SheetOptions{
		Columns:  len(res.Captures),
		TileSize: tileSize,
		Labelled: true,
	})
}

// close destroys everything the renderer owns.
func (r *renderer) close() {
	r.pipes.Destroy()
	r.transient.Destroy()
	r.temporal.Destroy(r.device)
	r.swapchain.Destroy(r.device)
	r.consts.Destroy()
}
