// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rg

import (
	"github.com/gogpu/gputypes"
)

// DebugFormat is the format of debug copies.
const DebugFormat = gputypes.TextureFormatRGBA16Float

// DebugCopy is what a debug hook's Record callback works with.
type DebugCopy struct {
	Src Ref[ImageDesc, Srv]
	Dst Ref[ImageDesc, Uav]

	// Pipeline is valid when the hook carries a Pipeline descriptor.
	Pipeline    RgComputePipelineHandle
	HasPipeline bool
}

// GraphDebugHook selects the Index-th pass named Pass (counting from
// zero) and copies the first image it writes into a single-mip
// DebugFormat image, in a pass injected right after it.
type GraphDebugHook struct {
	Pass  string
	Index uint32

	// Pipeline is registered on the injected pass when set.
	Pipeline *ComputePipelineDesc

	// Record performs the copy. When nil, the injected pass only
	// transitions the images.
	Record func(api *PassAPI, c DebugCopy) error
}

// DebuggedResource returns the debug copy made by the hook, if the hooked
// pass has been recorded.
func (g *RenderGraph) DebuggedResource() (Handle[ImageDesc], bool) {
	if g.debuggedResource == nil {
		return Handle[ImageDesc]{}, false
	}
	return *g.debuggedResource, true
}

func (g *RenderGraph) hookDebugPass(p *recordedPass) error {
	hook := g.debugHook
	if hook == nil || hook.Pass != p.name || g.debuggedResource != nil {
		return nil
	}
	seen := g.debugSeen
	g.debugSeen++
	if seen != hook.Index {
		return nil
	}

	var src *passResourceRef
	for i := range p.write {
		if g.resourceKind(p.write[i].handle.ID) == KindImage && !g.isSwapchain(p.write[i].handle.ID) {
			src = &p.write[i]
			break
		}
	}
	if src == nil {
		Logger().Warn("rg: debug hook matched a pass without image writes", "pass", p.name)
		return nil
	}

	srcHandle := Handle[ImageDesc]{raw: src.handle, desc: g.imageDesc(src.handle.ID)}
	desc := srcHandle.desc.Normalized()
	desc.MipLevels = 1
	desc.Format = DebugFormat
	desc.Usage = 0
	dst := Create(g, desc)

	pb := g.AddPass("debug: " + p.name)
	c := DebugCopy{
		Src: Read(pb, srcHandle, AccessComputeShaderReadSampledImageOrUniformTexelBuffer),
		Dst: Write(pb, &dst, AccessComputeShaderWrite),
	}
	if hook.Pipeline != nil {
		c.Pipeline = pb.RegisterComputePipelineWithDesc(*hook.Pipeline)
		c.HasPipeline = true
	}
	if hook.Record != nil {
		record := hook.Record
		pb.Render(func(api *PassAPI) error { return record(api, c) })
	}
	g.debuggedResource = &dst
	return pb.Finish()
}

func (g *RenderGraph) imageDesc(id uint32) ImageDesc {
	switch r := g.resources[id].(type) {
	case createdResource:
		if d, ok := r.desc.(ImageDesc); ok {
			return d
		}
	case importedResource:
		if img, ok := r.resource.(*Image); ok {
			return img.Desc
		}
	}
	return swapchainPlaceholderDesc
}
