// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rg

import (
	"errors"

	"github.com/gogpu/wgpu/hal"
)

var errNoPipelineCache = errors.New("rg: execution params carry no pipeline cache")

// AnyRef is satisfied by every Ref regardless of descriptor or view type.
type AnyRef interface {
	Raw() RawHandle
	ViewKind() ViewKind
}

// PassAPI is handed to a pass's render callback.
type PassAPI struct {
	exec *ExecutingRenderGraph
	enc  CommandEncoder
	pass *recordedPass
}

// PassName returns the name of the pass being recorded.
func (a *PassAPI) PassName() string { return a.pass.name }

// Encoder returns the encoder the pass records into.
func (a *PassAPI) Encoder() CommandEncoder { return a.enc }

// HALEncoder returns the encoder as a full hal.CommandEncoder, if it is one.
func (a *PassAPI) HALEncoder() (hal.CommandEncoder, bool) {
	enc, ok := a.enc.(hal.CommandEncoder)
	return enc, ok
}

// Device returns the execution device.
func (a *PassAPI) Device() Device { return a.exec.params.Device }

// Resources returns the registry resolving the pass's Refs.
func (a *PassAPI) Resources() *ResourceRegistry {
	return &ResourceRegistry{exec: a.exec, pass: a.pass}
}

// DynamicConstants returns the frame's constants allocator. It may be nil.
func (a *PassAPI) DynamicConstants() DynamicConstants { return a.exec.dyn }

// FrameDescriptorSet returns the frame-global bind group.
func (a *PassAPI) FrameDescriptorSet() hal.BindGroup { return a.exec.params.FrameDescriptorSet }

// FrameConstantsLayout returns the layout of the frame-global bind group.
func (a *PassAPI) FrameConstantsLayout() hal.BindGroupLayout {
	return a.exec.params.FrameConstantsLayout
}

// ComputePipeline resolves a pipeline registered on the graph.
func (a *PassAPI) ComputePipeline(h RgComputePipelineHandle) (*ComputePipeline, error) {
	p := a.exec.compiled.pipelines.Compute
	if h.idx < 0 || h.idx >= len(p) {
		return nil, newError(KindInvalidHandle, a.pass.name, "unknown compute pipeline %d", h.idx)
	}
	if a.exec.params.PipelineCache == nil {
		return nil, errNoPipelineCache
	}
	return a.exec.params.PipelineCache.ComputePipeline(p[h.idx])
}

// RasterPipeline resolves a pipeline registered on the graph.
func (a *PassAPI) RasterPipeline(h RgRasterPipelineHandle) (*RasterPipeline, error) {
	p := a.exec.compiled.pipelines.Raster
	if h.idx < 0 || h.idx >= len(p) {
		return nil, newError(KindInvalidHandle, a.pass.name, "unknown raster pipeline %d", h.idx)
	}
	if a.exec.params.PipelineCache == nil {
		return nil, errNoPipelineCache
	}
	return a.exec.params.PipelineCache.RasterPipeline(p[h.idx])
}

// RayTracingPipeline resolves a pipeline registered on the graph.
func (a *PassAPI) RayTracingPipeline(h RgRayTracingPipelineHandle) (*RayTracingPipeline, error) {
	p := a.exec.compiled.pipelines.RayTracing
	if h.idx < 0 || h.idx >= len(p) {
		return nil, newError(KindInvalidHandle, a.pass.name, "unknown ray tracing pipeline %d", h.idx)
	}
	if a.exec.params.PipelineCache == nil {
		return nil, errNoPipelineCache
	}
	return a.exec.params.PipelineCache.RayTracingPipeline(p[h.idx])
}

// ResourceRegistry resolves Refs declared by the current pass to
// concrete resources.
type ResourceRegistry struct {
	exec *ExecutingRenderGraph
	pass *recordedPass
}

func (r *ResourceRegistry) lookup(ref AnyRef) (Resource, error) {
	raw := ref.Raw()
	if int(raw.ID) >= len(r.exec.resources) || !r.pass.touches(raw.ID) {
		return nil, newError(KindInvalidHandle, r.pass.name, "%v was not declared by this pass", raw)
	}
	res := &r.exec.resources[raw.ID]
	if res.pending {
		return nil, newError(KindPendingResourceMisuse, r.pass.name, "swapchain image %v is not available yet", raw)
	}
	if res.resource == nil {
		return nil, newError(KindInvalidHandle, r.pass.name, "%v was not materialized", raw)
	}
	return res.resource, nil
}

// Image returns the image behind ref.
func (r *ResourceRegistry) Image(ref AnyRef) (*Image, error) {
	res, err := r.lookup(ref)
	if err != nil {
		return nil, err
	}
	img, ok := res.(*Image)
	if !ok {
		return nil, newError(KindResourceTypeMismatch, r.pass.name, "%v is a %s, not an image", ref.Raw(), res.Kind())
	}
	return img, nil
}

// Buffer returns the buffer behind ref.
func (r *ResourceRegistry) Buffer(ref AnyRef) (*Buffer, error) {
	res, err := r.lookup(ref)
	if err != nil {
		return nil, err
	}
	buf, ok := res.(*Buffer)
	if !ok {
		return nil, newError(KindResourceTypeMismatch, r.pass.name, "%v is a %s, not a buffer", ref.Raw(), res.Kind())
	}
	return buf, nil
}

// RayTracingAcceleration returns the acceleration structure behind ref.
func (r *ResourceRegistry) RayTracingAcceleration(ref AnyRef) (*RayTracingAcceleration, error) {
	res, err := r.lookup(ref)
	if err != nil {
		return nil, err
	}
	a, ok := res.(*RayTracingAcceleration)
	if !ok {
		return nil, newError(KindResourceTypeMismatch, r.pass.name, "%v is a %s, not an acceleration structure", ref.Raw(), res.Kind())
	}
	return a, nil
}

// ImageView returns a view of the image behind ref.
func (r *ResourceRegistry) ImageView(ref AnyRef, desc ImageViewDesc) (hal.TextureView, error) {
	img, err := r.Image(ref)
	if err != nil {
		return nil, err
	}
	return img.View(r.exec.params.Device, desc)
}
