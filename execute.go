// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rg

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// CommandEncoder is the part of hal.CommandEncoder the graph records
// barriers into. Pass callbacks that need the full encoder type-assert
// PassAPI.Encoder to hal.CommandEncoder.
type CommandEncoder interface {
	TransitionTextures(barriers []hal.TextureBarrier)
	TransitionBuffers(barriers []hal.BufferBarrier)
}

// TransientCache recycles graph-created resources between frames.
type TransientCache interface {
	GetImage(desc ImageDesc, usage gputypes.TextureUsage) (*Image, bool)
	GetBuffer(desc BufferDesc, usage gputypes.BufferUsage) (*Buffer, bool)
	InsertImage(img *Image)
	InsertBuffer(buf *Buffer)
}

// DynamicConstants is a per-frame allocator for small uniform data.
type DynamicConstants interface {
	// Push copies data into the current frame's buffer and returns its
	// offset, aligned for dynamic uniform binding.
	Push(data []byte) (uint32, error)

	// Buffer returns the buffer pushed data lives in.
	Buffer() hal.Buffer
}

// Profiler receives one scope per recorded pass.
type Profiler interface {
	BeginScope(name string) (end func())
}

// ExecutionParams bundles the collaborators a frame is executed with.
type ExecutionParams struct {
	Device        Device
	PipelineCache PipelineCache

	// FrameDescriptorSet is bound by passes at FrameConstantsSetIndex.
	FrameDescriptorSet   hal.BindGroup
	FrameConstantsLayout hal.BindGroupLayout

	// Profiler may be nil.
	Profiler Profiler
}

// ExecutionStats counts the work done while recording a frame.
type ExecutionStats struct {
	PassesRecorded  int
	TextureBarriers int
	BufferBarriers  int
	BarriersSkipped int

	// ResourcesCreated and ResourcesReused count graph-created resources
	// allocated on the device and taken from the transient cache.
	ResourcesCreated int
	ResourcesReused  int
}

// registryResource is the execution-time state of one resource id.
type registryResource struct {
	resource Resource
	access   AccessType

	// pending marks the swapchain image before presentation.
	pending bool

	// transient marks resources the graph materialized itself. They go
	// back to the transient cache on release.
	transient bool
}

// ExecutingRenderGraph records a compiled graph's passes into command
// encoders. RecordMainCb must be called before RecordPresentationCb.
type ExecutingRenderGraph struct {
	compiled  *CompiledRenderGraph
	params    ExecutionParams
	dyn       DynamicConstants
	queue     []*recordedPass
	resources []registryResource
	stats     ExecutionStats
	mainDone  bool
	retired   bool
}

// BeginExecute materializes the graph's resources. Created resources come
// from transient when it holds a match, and from the device otherwise;
// resources no pass touches are not materialized. Imported resources are
// used as is, and the swapchain stays pending until presentation.
func (c *CompiledRenderGraph) BeginExecute(params ExecutionParams, transient TransientCache, dyn DynamicConstants) (*ExecutingRenderGraph, error) {
	e := &ExecutingRenderGraph{
		compiled:  c,
		params:    params,
		dyn:       dyn,
		queue:     append([]*recordedPass(nil), c.rg.passes...),
		resources: make([]registryResource, len(c.rg.resources)),
	}
	for id, r := range c.rg.resources {
		switch r := r.(type) {
		case createdResource:
			if !c.resourceInfo.Lifetimes[id].Accessed {
				Logger().Debug("rg: skipping unused resource", "id", id)
				continue
			}
			res, err := e.materialize(uint32(id), r.desc, transient)
			if err != nil {
				e.releaseMaterialized(transient)
				return nil, err
			}
			e.resources[id] = registryResource{resource: res, access: AccessNothing, transient: true}
		case importedResource:
			e.checkImportedUsage(uint32(id), r.resource)
			e.resources[id] = registryResource{resource: r.resource, access: r.access}
		case swapchainResource:
			e.resources[id] = registryResource{pending: true, access: AccessNothing}
		}
	}
	return e, nil
}

func (e *ExecutingRenderGraph) materialize(id uint32, desc ResourceDesc, transient TransientCache) (Resource, error) {
	info := &e.compiled.resourceInfo
	label := fmt.Sprintf("rg_%d", id)
	switch d := desc.(type) {
	case ImageDesc:
		usage := info.ImageUsage[id] | d.Usage
		if transient != nil {
			if img, ok := transient.GetImage(d, usage); ok {
				e.stats.ResourcesReused++
				return img, nil
			}
		}
		if e.params.Device == nil {
			return nil, fmt.Errorf("rg: materialize image #%d: no device", id)
		}
		img, err := CreateImage(e.params.Device, d, usage, label)
		if err != nil {
			return nil, fmt.Errorf("rg: materialize image #%d: %w", id, err)
		}
		e.stats.ResourcesCreated++
		Logger().Debug("rg: created image", "id", id, "extent", d.Extent, "usage", usage)
		return img, nil
	case BufferDesc:
		usage := info.BufferUsage[id] | d.Usage
		if transient != nil {
			if buf, ok := transient.GetBuffer(d, usage); ok {
				e.stats.ResourcesReused++
				return buf, nil
			}
		}
		if e.params.Device == nil {
			return nil, fmt.Errorf("rg: materialize buffer #%d: no device", id)
		}
		buf, err := CreateBuffer(e.params.Device, d, usage, label)
		if err != nil {
			return nil, fmt.Errorf("rg: materialize buffer #%d: %w", id, err)
		}
		e.stats.ResourcesCreated++
		Logger().Debug("rg: created buffer", "id", id, "size", d.Size, "usage", usage)
		return buf, nil
	default:
		return nil, newError(KindResourceTypeMismatch, "", "resource #%d: the graph cannot create %s resources", id, desc.ResourceKind())
	}
}

func (e *ExecutingRenderGraph) checkImportedUsage(id uint32, r Resource) {
	info := &e.compiled.resourceInfo
	switch res := r.(type) {
	case *Image:
		if missing := info.ImageUsage[id] &^ res.Usage; missing != 0 {
			Logger().Warn("rg: imported image lacks usage", "id", id, "label", res.Label(), "missing", missing)
		}
	case *Buffer:
		if missing := info.BufferUsage[id] &^ res.Usage; missing != 0 {
			Logger().Warn("rg: imported buffer lacks usage", "id", id, "label", res.Label(), "missing", missing)
		}
	}
}

func (e *ExecutingRenderGraph) releaseMaterialized(transient TransientCache) {
	for i := range e.resources {
		r := &e.resources[i]
		if !r.transient || r.resource == nil {
			continue
		}
		releaseTransient(r.resource, transient, e.params.Device)
		r.resource = nil
	}
}

func releaseTransient(r Resource, transient TransientCache, device Device) {
	switch res := r.(type) {
	case *Image:
		if transient != nil {
			transient.InsertImage(res)
		} else if device != nil {
			res.Destroy(device)
		}
	case *Buffer:
		if transient != nil {
			transient.InsertBuffer(res)
		} else if device != nil {
			res.Destroy(device)
		}
	}
}

// Stats returns the counters accumulated so far.
func (e *ExecutingRenderGraph) Stats() ExecutionStats { return e.stats }

// barrierBatch collects barriers so they can be issued in one call.
type barrierBatch struct {
	textures []hal.TextureBarrier
	buffers  []hal.BufferBarrier
}

func (b *barrierBatch) flush(enc CommandEncoder) {
	if len(b.textures) > 0 {
		enc.TransitionTextures(b.textures)
		b.textures = nil
	}
	if len(b.buffers) > 0 {
		enc.TransitionBuffers(b.buffers)
		b.buffers = nil
	}
}

// transitionResource moves resource id into access, appending the barrier
// it needs to batch. No barrier is needed when pass overlap is allowed,
// the resource is already in access, and the sync type permits skipping.
func (e *ExecutingRenderGraph) transitionResource(pass string, id uint32, access PassResourceAccessType, batch *barrierBatch) error {
	r := &e.resources[id]
	if r.pending {
		return newError(KindPendingResourceMisuse, pass, "swapchain image #%d used before presentation", id)
	}
	if r.resource == nil {
		return newError(KindInvalidHandle, pass, "resource #%d was not materialized", id)
	}
	if e.compiled.rg.cfg.AllowPassOverlap && r.access == access.AccessType && access.SyncType == SkipSyncIfSameAccessType {
		e.stats.BarriersSkipped++
		return nil
	}
	switch res := r.resource.(type) {
	case *Image:
		batch.textures = append(batch.textures, hal.TextureBarrier{
			Texture: res.Raw,
			Usage: hal.TextureUsageTransition{
				OldUsage: r.access.TextureUsage(),
				NewUsage: access.AccessType.TextureUsage(),
			},
		})
		e.stats.TextureBarriers++
	case *Buffer:
		batch.buffers = append(batch.buffers, hal.BufferBarrier{
			Buffer: res.Raw,
			Usage: hal.BufferUsageTransition{
				OldUsage: r.access.BufferUsage(),
				NewUsage: access.AccessType.BufferUsage(),
			},
		})
		e.stats.BufferBarriers++
	case *RayTracingAcceleration:
		// State only: the HAL has no acceleration structure barrier.
	}
	Logger().Debug("rg: transition", "pass", pass, "id", id, "from", r.access, "to", access.AccessType)
	r.access = access.AccessType
	return nil
}

// RecordMainCb records every pass that precedes the first pass writing
// the swapchain image. The first use of each resource in that segment is
// transitioned in one batched barrier, then each pass is recorded with
// its own transitions.
func (e *ExecutingRenderGraph) RecordMainCb(enc CommandEncoder) error {
	if e.mainDone {
		return fmt.Errorf("rg: main command buffer already recorded")
	}
	e.mainDone = true

	split := len(e.queue)
	for i, p := range e.queue {
		if e.writesSwapchain(p) {
			split = i
			break
		}
	}
	main := e.queue[:split]
	e.queue = e.queue[split:]

	type firstUse struct {
		id     uint32
		access AccessType
		pass   string
	}
	var first []firstUse
	seen := make(map[uint32]bool)
	for _, p := range main {
		for _, refs := range [2][]passResourceRef{p.read, p.write} {
			for _, ref := range refs {
				if seen[ref.handle.ID] {
					continue
				}
				seen[ref.handle.ID] = true
				first = append(first, firstUse{id: ref.handle.ID, access: ref.access.AccessType, pass: p.name})
			}
		}
	}
	var batch barrierBatch
	for _, f := range first {
		access := PassResourceAccessType{AccessType: f.access, SyncType: SkipSyncIfSameAccessType}
		if err := e.transitionResource(f.pass, f.id, access, &batch); err != nil {
			return err
		}
	}
	batch.flush(enc)

	for _, p := range main {
		if err := e.recordPass(enc, p); err != nil {
			return err
		}
	}
	return nil
}

func (e *ExecutingRenderGraph) writesSwapchain(p *recordedPass) bool {
	for _, ref := range p.write {
		if e.compiled.rg.isSwapchain(ref.handle.ID) {
			return true
		}
	}
	return false
}

// RecordPresentationCb resolves the swapchain image, transitions exported
// resources to their export access types, and records the remaining
// passes. The returned RetiredRenderGraph owns the frame's resources.
func (e *ExecutingRenderGraph) RecordPresentationCb(enc CommandEncoder, swapchain *Image) (*RetiredRenderGraph, error) {
	if !e.mainDone {
		return nil, fmt.Errorf("rg: presentation recorded before the main command buffer")
	}
	if e.retired {
		return nil, fmt.Errorf("rg: presentation command buffer already recorded")
	}
	e.retired = true

	for i := range e.resources {
		if e.resources[i].pending {
			if swapchain == nil {
				return nil, newError(KindPendingResourceMisuse, "", "swapchain image #%d was not provided", i)
			}
			e.resources[i] = registryResource{resource: swapchain, access: AccessNothing}
		}
	}

	var batch barrierBatch
	for _, ex := range e.compiled.rg.exported {
		if ex.access == AccessNothing {
			continue
		}
		access := PassResourceAccessType{AccessType: ex.access, SyncType: AlwaysSync}
		if err := e.transitionResource("", ex.handle.ID, access, &batch); err != nil {
			return nil, err
		}
	}
	batch.flush(enc)

	for _, p := range e.queue {
		if err := e.recordPass(enc, p); err != nil {
			return nil, err
		}
	}
	e.queue = nil

	return &RetiredRenderGraph{resources: e.resources, device: e.params.Device, stats: e.stats}, nil
}

func (e *ExecutingRenderGraph) recordPass(enc CommandEncoder, p *recordedPass) error {
	if e.params.Profiler != nil {
		end := e.params.Profiler.BeginScope(p.name)
		defer end()
	}
	var batch barrierBatch
	for _, refs := range [2][]passResourceRef{p.read, p.write} {
		for _, ref := range refs {
			if err := e.transitionResource(p.name, ref.handle.ID, ref.access, &batch); err != nil {
				return err
			}
		}
	}
	batch.flush(enc)

	if p.fn != nil {
		api := &PassAPI{exec: e, enc: enc, pass: p}
		if err := p.fn(api); err != nil {
			return fmt.Errorf("pass %q: %w", p.name, err)
		}
	}
	e.stats.PassesRecorded++
	return nil
}

// RetiredRenderGraph holds the resources of an executed frame and the
// access type each was left in.
type RetiredRenderGraph struct {
	resources []registryResource
	device    Device
	stats     ExecutionStats
	released  bool
}

// Stats returns the counters of the executed frame.
func (r *RetiredRenderGraph) Stats() ExecutionStats { return r.stats }

func (r *RetiredRenderGraph) exportedResource(raw RawHandle) (Resource, AccessType, error) {
	if int(raw.ID) >= len(r.resources) || r.resources[raw.ID].resource == nil {
		return nil, AccessNothing, newError(KindInvalidHandle, "", "no resource for exported handle %v", raw)
	}
	res := &r.resources[raw.ID]
	return res.resource, res.access, nil
}

// ExportedImage returns an exported image and its final access type.
func (r *RetiredRenderGraph) ExportedImage(h ExportedHandle[ImageDesc]) (*Image, AccessType, error) {
	res, access, err := r.exportedResource(h.raw)
	if err != nil {
		return nil, access, err
	}
	img, ok := res.(*Image)
	if !ok {
		return nil, access, newError(KindResourceTypeMismatch, "", "%v is a %s, not an image", h.raw, res.Kind())
	}
	return img, access, nil
}

// ExportedBuffer returns an exported buffer and its final access type.
func (r *RetiredRenderGraph) ExportedBuffer(h ExportedHandle[BufferDesc]) (*Buffer, AccessType, error) {
	res, access, err := r.exportedResource(h.raw)
	if err != nil {
		return nil, access, err
	}
	buf, ok := res.(*Buffer)
	if !ok {
		return nil, access, newError(KindResourceTypeMismatch, "", "%v is a %s, not a buffer", h.raw, res.Kind())
	}
	return buf, access, nil
}

// ExportedRayTracingAcceleration returns an exported acceleration
// structure and its final access type.
func (r *RetiredRenderGraph) ExportedRayTracingAcceleration(h ExportedHandle[RayTracingAccelerationDesc]) (*RayTracingAcceleration, AccessType, error) {
	res, access, err := r.exportedResource(h.raw)
	if err != nil {
		return nil, access, err
	}
	a, ok := res.(*RayTracingAcceleration)
	if !ok {
		return nil, access, newError(KindResourceTypeMismatch, "", "%v is a %s, not an acceleration structure", h.raw, res.Kind())
	}
	return a, access, nil
}

// ReleaseResources returns graph-created resources to transient. With a
// nil cache they are destroyed on the device instead. Imported resources
// are left alone.
func (r *RetiredRenderGraph) ReleaseResources(transient TransientCache) {
	if r.released {
		return
	}
	r.released = true
	n := 0
	for i := range r.resources {
		res := &r.resources[i]
		if !res.transient || res.resource == nil {
			continue
		}
		releaseTransient(res.resource, transient, r.device)
		res.resource = nil
		n++
	}
	Logger().Debug("rg: released resources", "count", n)
}
