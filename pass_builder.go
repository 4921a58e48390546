// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rg

import (
	"maps"
)

// PassBuilder declares the accesses, pipelines and render callback of one
// pass. Errors are sticky: the first failure is kept, later calls are
// ignored, and Finish reports it without recording the pass.
type PassBuilder struct {
	g        *RenderGraph
	pass     *recordedPass
	err      error
	renderOK bool
	finished bool
}

// Name returns the pass name.
func (pb *PassBuilder) Name() string { return pb.pass.name }

// Err returns the first error recorded by the builder.
func (pb *PassBuilder) Err() error { return pb.err }

func (pb *PassBuilder) fail(err error) {
	if pb.err == nil {
		pb.err = err
	}
}

func (pb *PassBuilder) usable() bool {
	if pb.finished {
		pb.fail(ErrGraphFinished)
		return false
	}
	return pb.err == nil
}

func (pb *PassBuilder) checkHandle(raw RawHandle) bool {
	if int(raw.ID) >= len(pb.g.resources) {
		pb.fail(newError(KindInvalidHandle, pb.pass.name, "resource %v does not belong to this graph", raw))
		return false
	}
	return true
}

func (pb *PassBuilder) checkOverlap(raw RawHandle, write bool) bool {
	if !pb.g.cfg.ValidateAliasing {
		return true
	}
	for _, r := range pb.pass.write {
		if r.handle.ID == raw.ID {
			pb.fail(newError(KindResourceOverlap, pb.pass.name, "resource #%d is already written by this pass", raw.ID))
			return false
		}
	}
	if write {
		for _, r := range pb.pass.read {
			if r.handle.ID == raw.ID {
				pb.fail(newError(KindResourceOverlap, pb.pass.name, "resource #%d is already read by this pass", raw.ID))
				return false
			}
		}
	}
	return true
}

func (pb *PassBuilder) addRead(raw RawHandle, access AccessType, class accessClass, call string, sync SyncType) bool {
	if !pb.usable() || !pb.checkHandle(raw) {
		return false
	}
	if err := checkAccessClass(pb.pass.name, access, class, call); err != nil {
		pb.fail(err)
		return false
	}
	if !pb.checkOverlap(raw, false) {
		return false
	}
	pb.pass.read = append(pb.pass.read, passResourceRef{handle: raw, access: PassResourceAccessType{AccessType: access, SyncType: sync}})
	return true
}

func (pb *PassBuilder) addWrite(raw *RawHandle, access AccessType, class accessClass, call string, sync SyncType) bool {
	if !pb.usable() || !pb.checkHandle(*raw) {
		return false
	}
	if err := checkAccessClass(pb.pass.name, access, class, call); err != nil {
		pb.fail(err)
		return false
	}
	if !pb.checkOverlap(*raw, true) {
		return false
	}
	*raw = raw.next()
	pb.pass.write = append(pb.pass.write, passResourceRef{handle: *raw, access: PassResourceAccessType{AccessType: access, SyncType: sync}})
	return true
}

// Read declares a shader or transfer read of h. The returned Ref is at
// h's current version.
func Read[D ResourceDesc](pb *PassBuilder, h Handle[D], access AccessType) Ref[D, Srv] {
	if !pb.addRead(h.raw, access, classRead, "Read", SkipSyncIfSameAccessType) {
		return Ref[D, Srv]{}
	}
	return Ref[D, Srv]{raw: h.raw, desc: h.desc}
}

// RasterRead declares a read-only attachment use of h.
func RasterRead[D ResourceDesc](pb *PassBuilder, h Handle[D], access AccessType) Ref[D, Rt] {
	if !pb.addRead(h.raw, access, classRasterRead, "RasterRead", SkipSyncIfSameAccessType) {
		return Ref[D, Rt]{}
	}
	return Ref[D, Rt]{raw: h.raw, desc: h.desc}
}

// Write declares a write of h. h is advanced to the next version, which
// the returned Ref carries; later readers must use the advanced handle.
// A barrier is always emitted before the write.
func Write[D ResourceDesc](pb *PassBuilder, h *Handle[D], access AccessType) Ref[D, Uav] {
	if !pb.addWrite(&h.raw, access, classWrite, "Write", AlwaysSync) {
		return Ref[D, Uav]{}
	}
	return Ref[D, Uav]{raw: h.raw, desc: h.desc}
}

// WriteNoSync is Write without a barrier between consecutive writes of
// the same access type. The caller guarantees the writes do not overlap.
func WriteNoSync[D ResourceDesc](pb *PassBuilder, h *Handle[D], access AccessType) Ref[D, Uav] {
	if !pb.addWrite(&h.raw, access, classWrite, "WriteNoSync", SkipSyncIfSameAccessType) {
		return Ref[D, Uav]{}
	}
	return Ref[D, Uav]{raw: h.raw, desc: h.desc}
}

// Raster declares h as a color or depth attachment written by the pass.
func Raster[D ResourceDesc](pb *PassBuilder, h *Handle[D], access AccessType) Ref[D, Rt] {
	if !pb.addWrite(&h.raw, access, classRasterWrite, "Raster", AlwaysSync) {
		return Ref[D, Rt]{}
	}
	return Ref[D, Rt]{raw: h.raw, desc: h.desc}
}

// Render sets the command recording callback. It may be set once.
func (pb *PassBuilder) Render(fn RenderFunc) {
	if !pb.usable() {
		return
	}
	if pb.renderOK {
		pb.fail(newError(KindRenderFnAlreadySet, pb.pass.name, "render callback set twice"))
		return
	}
	pb.pass.fn = fn
	pb.renderOK = true
}

// RegisterComputePipeline registers a compute shader by path with entry
// point "main". The pipeline cache resolves the path.
func (pb *PassBuilder) RegisterComputePipeline(path string) RgComputePipelineHandle {
	return pb.RegisterComputePipelineWithDesc(ComputePipelineDesc{
		Label:  path,
		Shader: ShaderSource{Name: path, EntryPoint: "main"},
	})
}

// invalidPipeline is returned by registrations on a builder that can no
// longer record. PassAPI rejects it.
const invalidPipeline = -1

// RegisterComputePipelineWithDesc registers a compute pipeline. Equal
// descriptors registered on the same graph share a handle.
func (pb *PassBuilder) RegisterComputePipelineWithDesc(desc ComputePipelineDesc) RgComputePipelineHandle {
	if !pb.usable() {
		return RgComputePipelineHandle{idx: invalidPipeline}
	}
	g := pb.g
	desc.Layouts = g.withPredefinedLayouts(desc.Layouts)
	key := HashComputePipelineDesc(&desc)
	if idx, ok := findPipeline(g.computePipelines, g.computeByHash[key], &desc); ok {
		return RgComputePipelineHandle{idx: idx}
	}
	idx := len(g.computePipelines)
	g.computePipelines = append(g.computePipelines, desc)
	g.computeByHash[key] = append(g.computeByHash[key], idx)
	return RgComputePipelineHandle{idx: idx}
}

// RegisterRasterPipeline registers a raster pipeline.
func (pb *PassBuilder) RegisterRasterPipeline(desc RasterPipelineDesc) RgRasterPipelineHandle {
	if !pb.usable() {
		return RgRasterPipelineHandle{idx: invalidPipeline}
	}
	g := pb.g
	desc.Layouts = g.withPredefinedLayouts(desc.Layouts)
	key := HashRasterPipelineDesc(&desc)
	if idx, ok := findPipeline(g.rasterPipelines, g.rasterByHash[key], &desc); ok {
		return RgRasterPipelineHandle{idx: idx}
	}
	idx := len(g.rasterPipelines)
	g.rasterPipelines = append(g.rasterPipelines, desc)
	g.rasterByHash[key] = append(g.rasterByHash[key], idx)
	return RgRasterPipelineHandle{idx: idx}
}

// RegisterRayTracingPipeline registers a ray tracing pipeline.
func (pb *PassBuilder) RegisterRayTracingPipeline(desc RayTracingPipelineDesc) RgRayTracingPipelineHandle {
	if !pb.usable() {
		return RgRayTracingPipelineHandle{idx: invalidPipeline}
	}
	g := pb.g
	desc.Layouts = g.withPredefinedLayouts(desc.Layouts)
	key := HashRayTracingPipelineDesc(&desc)
	if idx, ok := findPipeline(g.rayTracingPipelines, g.rayTracingByHash[key], &desc); ok {
		return RgRayTracingPipelineHandle{idx: idx}
	}
	idx := len(g.rayTracingPipelines)
	g.rayTracingPipelines = append(g.rayTracingPipelines, desc)
	g.rayTracingByHash[key] = append(g.rayTracingByHash[key], idx)
	return RgRayTracingPipelineHandle{idx: idx}
}

// withPredefinedLayouts returns a copy of layouts in which every
// graph-predefined set replaces whatever the pipeline declared for it.
func (g *RenderGraph) withPredefinedLayouts(layouts DescriptorSetLayouts) DescriptorSetLayouts {
	if len(g.predefined) == 0 {
		return layouts
	}
	out := layouts.Clone()
	if out == nil {
		out = make(DescriptorSetLayouts, len(g.predefined))
	}
	maps.Copy(out, g.predefined.Clone())
	return out
}

// Finish appends the pass to the graph. It reports the first error
// recorded by the builder, in which case the pass is dropped. Calling
// Finish twice returns ErrGraphFinished.
func (pb *PassBuilder) Finish() error {
	if pb.finished {
		return ErrGraphFinished
	}
	pb.finished = true
	pb.g.openBuilders--
	if pb.err != nil {
		Logger().Debug("rg: pass dropped", "pass", pb.pass.name, "err", pb.err)
		return pb.err
	}
	g := pb.g
	pb.pass.idx = len(g.passes)
	g.passes = append(g.passes, pb.pass)
	Logger().Debug("rg: pass recorded", "pass", pb.pass.name, "idx", pb.pass.idx,
		"reads", len(pb.pass.read), "writes", len(pb.pass.write))
	return g.hookDebugPass(pb.pass)
}

// discard closes the builder without recording the pass.
func (pb *PassBuilder) discard() {
	if pb.finished {
		return
	}
	pb.finished = true
	pb.g.openBuilders--
}
