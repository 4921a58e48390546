// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"embed"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rg"
	"github.com/gogpu/rg/debugview"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/*.wgsl
var shaderFS embed.FS

const (
	hdrFormat   = gputypes.TextureFormatRGBA16Float
	depthFormat = gputypes.TextureFormatDepth32Float

	tileSize = 16

	// frameConstantsSize is the size of frameConstants as laid out in
	// the shaders' uniform block.
	frameConstantsSize = 32
)

var errNoHALEncoder = errors.New("rgdemo: pass encoder is not a hal.CommandEncoder")

// historyKeys are the TAA history images, alternating between frames.
var historyKeys = [2]rg.TemporalResourceKey{"taa.history.0", "taa.history.1"}

// frameConstants mirrors the FrameConstants uniform block.
type frameConstants struct {
	Jitter        [2]float32
	Resolution    [2]float32
	Exposure      float32
	HistoryWeight float32
	FrameIndex    uint32
	TileCount     uint32
}

var frameConstantsEntries = []gputypes.BindGroupLayoutEntry{
	{
		Binding:    0,
		Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment | gputypes.ShaderStageCompute,
		Buffer: &gputypes.BufferBindingLayout{
			Type:           gputypes.BufferBindingTypeUniform,
			MinBindingSize: frameConstantsSize,
		},
	},
}

func storageLayout(stage gputypes.ShaderStage, typ gputypes.BufferBindingType) rg.DescriptorSetLayouts {
	return rg.DescriptorSetLayouts{
		0: {{
			Binding:    0,
			Visibility: stage,
			Buffer:     &gputypes.BufferBindingLayout{Type: typ},
		}},
	}
}

func fullscreenPipeline(label, fragment string, format gputypes.TextureFormat) rg.RasterPipelineDesc {
	return rg.RasterPipelineDesc{
		Label:        label,
		Vertex:       rg.ShaderSource{Name: "shaders/fullscreen.wgsl"},
		Fragment:     rg.ShaderSource{Name: "shaders/" + fragment},
		ColorFormats: []gputypes.TextureFormat{format},
		CullMode:     gputypes.CullModeNone,
	}
}

// haltonJitter returns the subpixel offset of frame from the (2, 3)
// Halton sequence, centered on zero.
func haltonJitter(frame uint32) [2]float32 {
	radical := func(i, base uint32) float32 {
		f, r := float32(1), float32(0)
		for i > 0 {
			f /= float32(base)
			r += f * float32(i%base)
			i /= base
		}
		return r
	}
	i := frame%8 + 1
	return [2]float32{radical(i, 2) - 0.5, radical(i, 3) - 0.5}
}

func (r *renderer) tileCount() uint32 {
	w := (r.cfg.Width + tileSize - 1) / tileSize
	h := (r.cfg.Height + tileSize - 1) / tileSize
	return w * h
}

func (r *renderer) encodeConstants() []byte {
	weight := float32(0.9)
	if r.frame == 0 {
		weight = 0
	}
	c := frameConstants{
		Jitter:        haltonJitter(r.frame),
		Resolution:    [2]float32{float32(r.cfg.Width), float32(r.cfg.Height)},
		Exposure:      r.cfg.Exposure,
		HistoryWeight: weight,
		FrameIndex:    r.frame,
		TileCount:     r.tileCount(),
	}
	b, err := binary.Append(nil, binary.LittleEndian, c)
	if err != nil {
		panic(err) // fixed-size struct
	}
	return b
}

// frameGraph is what buildFrame adds to a graph.
type frameGraph struct {
	captures []*debugview.Capture
}

// releaseCaptures frees the staging buffers of captures that were not
// read back.
func (fg *frameGraph) releaseCaptures() {
	for _, c := range fg.captures {
		c.Release()
	}
}

// buildFrame adds the frame's passes to tg: a G-buffer raster pass, a
// compute pass filling light tiles, a lighting pass, TAA against last
// frame's history and a tonemap into the swapchain.
func (r *renderer) buildFrame(tg *rg.TemporalRenderGraph) (*frameGraph, error) {
	g := tg.Graph()
	w, h := r.cfg.Width, r.cfg.Height
	tiles := r.tileCount()

	historyDesc := rg.NewImageDesc2D(hdrFormat, w, h).WithUsage(
		gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopySrc)
	history, err := rg.GetOrCreateTemporal(tg, historyKeys[r.frame%2], historyDesc)
	if err != nil {
		return nil, err
	}
	prevHistory, err := rg.GetOrCreateTemporal(tg, historyKeys[(r.frame+1)%2], historyDesc)
	if err != nil {
		return nil, err
	}

	albedo := rg.Create(g, rg.NewImageDesc2D(hdrFormat, w, h))
	depth := rg.Create(g, rg.NewImageDesc2D(depthFormat, w, h))
	lightTiles := rg.Create(g, rg.NewBufferDesc(uint64(tiles)*16, 0))
	lit := rg.Create(g, rg.NewImageDesc2D(hdrFormat, w, h))
	swapchain := g.GetSwapChain()

	err = g.Pass("gbuffer", func(pb *rg.PassBuilder) error {
		color := rg.Raster(pb, &albedo, rg.AccessColorAttachmentWrite)
		depthRef := rg.Raster(pb, &depth, rg.AccessDepthStencilAttachmentWrite)
		desc := fullscreenPipeline("gbuffer", "gbuffer.wgsl", hdrFormat)
		desc.DepthFormat = depthFormat
		desc.DepthWrite = true
		pipe := pb.RegisterRasterPipeline(desc)
		pb.Render(func(api *rg.PassAPI) error {
			return r.drawFullscreen(api, fullscreenDraw{pipe: pipe, color: color, depth: &depthRef})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = g.Pass("light tiles", func(pb *rg.PassBuilder) error {
		out := rg.Write(pb, &lightTiles, rg.AccessComputeShaderWrite)
		pipe := pb.RegisterComputePipelineWithDesc(rg.ComputePipelineDesc{
			Label:   "light_tiles",
			Shader:  rg.ShaderSource{Name: "shaders/light_tiles.wgsl"},
			Layouts: storageLayout(gputypes.ShaderStageCompute, gputypes.BufferBindingTypeStorage),
		})
		pb.Render(func(api *rg.PassAPI) error {
			return r.dispatch(api, pipe, out, (tiles+63)/64)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = g.Pass("lighting", func(pb *rg.PassBuilder) error {
		src := rg.Read(pb, lightTiles, rg.AccessFragmentShaderReadOther)
		rg.Read(pb, albedo, rg.AccessFragmentShaderReadSampledImageOrUniformTexelBuffer)
		rg.Read(pb, depth, rg.AccessFragmentShaderReadSampledImageOrUniformTexelBuffer)
		color := rg.Raster(pb, &lit, rg.AccessColorAttachmentWrite)
		desc := fullscreenPipeline("lighting", "lighting.wgsl", hdrFormat)
		desc.Layouts = storageLayout(gputypes.ShaderStageFragment, gputypes.BufferBindingTypeReadOnlyStorage)
		pipe := pb.RegisterRasterPipeline(desc)
		pb.Render(func(api *rg.PassAPI) error {
			return r.drawFullscreen(api, fullscreenDraw{pipe: pipe, color: color, storage: src})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = g.Pass("taa", func(pb *rg.PassBuilder) error {
		rg.Read(pb, lit, rg.AccessFragmentShaderReadSampledImageOrUniformTexelBuffer)
		rg.Read(pb, prevHistory, rg.AccessFragmentShaderReadSampledImageOrUniformTexelBuffer)
		color := rg.Raster(pb, &history, rg.AccessColorAttachmentWrite)
		pipe := pb.RegisterRasterPipeline(fullscreenPipeline("taa", "taa.wgsl", hdrFormat))
		pb.Render(func(api *rg.PassAPI) error {
			return r.drawFullscreen(api, fullscreenDraw{pipe: pipe, color: color})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = g.Pass("tonemap", func(pb *rg.PassBuilder) error {
		rg.Read(pb, history, rg.AccessFragmentShaderReadSampledImageOrUniformTexelBuffer)
		color := rg.Raster(pb, &swapchain, rg.AccessColorAttachmentWrite)
		pipe := pb.RegisterRasterPipeline(fullscreenPipeline("tonemap", "tonemap.wgsl", r.swapchain.Desc.Format))
		pb.Render(func(api *rg.PassAPI) error {
			return r.drawFullscreen(api, fullscreenDraw{pipe: pipe, color: color})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	fg := &frameGraph{}
	if !r.cfg.Capture {
		return fg, nil
	}
	captures := []captureTarget{{"lit", lit}, {"history", history}}
	if dbg, ok := g.DebuggedResource(); ok {
		captures = append(captures, captureTarget{"debug " + r.cfg.Graph.DebugHook.Pass, dbg})
	}
	for _, c := range captures {
		capture, err := debugview.ReadbackPass(g, c.name, c.img)
		if err != nil {
			return nil, err
		}
		fg.captures = append(fg.captures, capture)
	}
	return fg, nil
}

type captureTarget struct {
	name string
	img  rg.Handle[rg.ImageDesc]
}

// fullscreenDraw is one fullscreen triangle into color.
type fullscreenDraw struct {
	pipe  rg.RgRasterPipelineHandle
	color rg.Ref[rg.ImageDesc, rg.Rt]
	depth *rg.Ref[rg.ImageDesc, rg.Rt]

	// storage is bound at set 0, binding 0 when set.
	storage rg.AnyRef
}

func (r *renderer) drawFullscreen(api *rg.PassAPI, d fullscreenDraw) error {
	enc, ok := api.HALEncoder()
	if !ok {
		return errNoHALEncoder
	}
	pipe, err := api.RasterPipeline(d.pipe)
	if err != nil {
		return err
	}
	view, err := api.Resources().ImageView(d.color, rg.ImageViewDesc{})
	if err != nil {
		return err
	}
	desc := &hal.RenderPassDescriptor{
		Label: api.PassName(),
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	}
	if d.depth != nil {
		depthView, err := api.Resources().ImageView(*d.depth, rg.ImageViewDesc{})
		if err != nil {
			return err
		}
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:         depthView,
			DepthLoadOp:  gputypes.LoadOpClear,
			DepthStoreOp: gputypes.StoreOpStore,
			// Reverse Z clears to the far plane at 0.
			DepthClearValue: 0,
		}
	}
	groups, err := r.bindGroups(api, pipe.BindLayouts, d.storage)
	if err != nil {
		return err
	}

	rp := enc.BeginRenderPass(desc)
	rp.SetPipeline(pipe.Raw)
	for set, bg := range groups {
		rp.SetBindGroup(uint32(set), bg, nil)
	}
	rp.Draw(3, 1, 0, 0)
	rp.End()
	return nil
}

func (r *renderer) dispatch(api *rg.PassAPI, h rg.RgComputePipelineHandle, out rg.AnyRef, groupsX uint32) error {
	enc, ok := api.HALEncoder()
	if !ok {
		return errNoHALEncoder
	}
	pipe, err := api.ComputePipeline(h)
	if err != nil {
		return err
	}
	groups, err := r.bindGroups(api, pipe.BindLayouts, out)
	if err != nil {
		return err
	}

	cp := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: api.PassName()})
	cp.SetPipeline(pipe.Raw)
	for set, bg := range groups {
		cp.SetBindGroup(uint32(set), bg, nil)
	}
	cp.Dispatch(groupsX, 1, 1)
	cp.End()
	return nil
}

// bindGroups creates one bind group per layout set: the frame constants
// at rg.FrameConstantsSetIndex, storage at set 0 when given, and empty
// groups elsewhere. The groups are destroyed once the frame completes.
func (r *renderer) bindGroups(api *rg.PassAPI, layouts []hal.BindGroupLayout, storage rg.AnyRef) ([]hal.BindGroup, error) {
	groups := make([]hal.BindGroup, len(layouts))
	for set, layout := range layouts {
		var entries []gputypes.BindGroupEntry
		switch {
		case set == rg.FrameConstantsSetIndex:
			dyn := api.DynamicConstants()
			if dyn == nil {
				return nil, fmt.Errorf("rgdemo: pass %q needs dynamic constants", api.PassName())
			}
			off, err := dyn.Push(r.frameConstants)
			if err != nil {
				return nil, err
			}
			entries = []gputypes.BindGroupEntry{{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: dyn.Buffer().NativeHandle(), Offset: uint64(off), Size: frameConstantsSize,
			}}}
		case set == 0 && storage != nil:
			buf, err := api.Resources().Buffer(storage)
			if err != nil {
				return nil, err
			}
			entries = []gputypes.BindGroupEntry{{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: buf.Raw.NativeHandle(), Offset: 0, Size: buf.Desc.Size,
			}}}
		}
		bg, err := r.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   fmt.Sprintf("%s_set%d", api.PassName(), set),
			Layout:  layout,
			Entries: entries,
		})
		if err != nil {
			return nil, fmt.Errorf("create bind group for %q set %d: %w", api.PassName(), set, err)
		}
		r.frameBindGroups = append(r.frameBindGroups, bg)
		groups[set] = bg
	}
	return groups, nil
}
