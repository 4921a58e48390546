// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rg

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// graphResource is the ledger entry for one resource id. It is one of
// createdResource, importedResource or swapchainResource.
type graphResource interface {
	kind() ResourceKind
}

type createdResource struct {
	desc ResourceDesc
}

type importedResource struct {
	resource Resource
	access   AccessType
}

type swapchainResource struct{}

func (r createdResource) kind() ResourceKind  { return r.desc.ResourceKind() }
func (r importedResource) kind() ResourceKind { return r.resource.Kind() }
func (swapchainResource) kind() ResourceKind  { return KindImage }

type passResourceRef struct {
	handle RawHandle
	access PassResourceAccessType
}

// RenderFunc records the commands of one pass.
type RenderFunc func(api *PassAPI) error

type recordedPass struct {
	name  string
	idx   int
	read  []passResourceRef
	write []passResourceRef
	fn    RenderFunc
}

func (p *recordedPass) touches(id uint32) bool {
	for _, r := range p.read {
		if r.handle.ID == id {
			return true
		}
	}
	for _, r := range p.write {
		if r.handle.ID == id {
			return true
		}
	}
	return false
}

type exportedResource struct {
	handle RawHandle
	access AccessType
}

// swapchainPlaceholderDesc is reported for the swapchain handle until the
// acquired image is known.
var swapchainPlaceholderDesc = NewImageDesc2D(gputypes.TextureFormatBGRA8Unorm, 1, 1)

// RenderGraph is the per-frame ledger of resources and passes. It is built
// on one goroutine, then compiled once.
type RenderGraph struct {
	cfg Config

	resources []graphResource
	passes    []*recordedPass
	exported  []exportedResource

	computePipelines    []ComputePipelineDesc
	rasterPipelines     []RasterPipelineDesc
	rayTracingPipelines []RayTracingPipelineDesc

	// Registered pipeline indices by descriptor hash.
	computeByHash    map[uint64][]int
	rasterByHash     map[uint64][]int
	rayTracingByHash map[uint64][]int

	predefined DescriptorSetLayouts

	debugHook        *GraphDebugHook
	debugSeen        uint32
	debuggedResource *Handle[ImageDesc]

	openBuilders int
	compiled     bool
}

// NewRenderGraph creates an empty graph.
func NewRenderGraph(opts ...Option) *RenderGraph {
	o := defaultGraphOptions()
	for _, opt := range opts {
		opt(&o)
	}
	g := &RenderGraph{
		cfg:              o.config,
		computeByHash:    make(map[uint64][]int),
		rasterByHash:     make(map[uint64][]int),
		rayTracingByHash: make(map[uint64][]int),
		predefined:       o.predefined,
		debugHook:        o.debugHook,
	}
	if g.debugHook == nil && o.config.DebugHook.Pass != "" {
		g.debugHook = &GraphDebugHook{Pass: o.config.DebugHook.Pass, Index: o.config.DebugHook.Index}
	}
	return g
}

// Config returns the configuration the graph was created with.
func (g *RenderGraph) Config() Config { return g.cfg }

func (g *RenderGraph) addResource(r graphResource) RawHandle {
	g.resources = append(g.resources, r)
	return RawHandle{ID: uint32(len(g.resources) - 1)}
}

// Create declares a resource the graph materializes at execution time,
// from the transient cache or the device.
func Create[D ResourceDesc](g *RenderGraph, desc D) Handle[D] {
	return Handle[D]{raw: g.addResource(createdResource{desc: desc}), desc: desc}
}

// ImportImage brings an externally owned image into the graph. access is
// the state the image is in when the frame starts.
func (g *RenderGraph) ImportImage(img *Image, access AccessType) Handle[ImageDesc] {
	return Handle[ImageDesc]{raw: g.addResource(importedResource{resource: img, access: access}), desc: img.Desc}
}

// ImportBuffer brings an externally owned buffer into the graph.
func (g *RenderGraph) ImportBuffer(buf *Buffer, access AccessType) Handle[BufferDesc] {
	return Handle[BufferDesc]{raw: g.addResource(importedResource{resource: buf, access: access}), desc: buf.Desc}
}

// ImportRayTracingAcceleration brings an acceleration structure into the graph.
func (g *RenderGraph) ImportRayTracingAcceleration(a *RayTracingAcceleration, access AccessType) Handle[RayTracingAccelerationDesc] {
	return Handle[RayTracingAccelerationDesc]{raw: g.addResource(importedResource{resource: a, access: access}), desc: a.Desc}
}

// importResource imports r without knowing its static type.
func (g *RenderGraph) importResource(r Resource, access AccessType) RawHandle {
	return g.addResource(importedResource{resource: r, access: access})
}

// Export marks an imported resource so its final state can be read from
// the RetiredRenderGraph. The resource is transitioned to access at the
// end of the frame unless access is AccessNothing.
func Export[D ResourceDesc](g *RenderGraph, h Handle[D], access AccessType) (ExportedHandle[D], error) {
	if err := g.export(h.raw, access); err != nil {
		return ExportedHandle[D]{}, err
	}
	return ExportedHandle[D]{raw: h.raw, desc: h.desc}, nil
}

func (g *RenderGraph) export(raw RawHandle, access AccessType) error {
	if int(raw.ID) >= len(g.resources) {
		return newError(KindInvalidHandle, "", "export of unknown resource %v", raw)
	}
	if _, ok := g.resources[raw.ID].(importedResource); !ok {
		return newError(KindInvalidHandle, "", "only imported resources can be exported, %v is not", raw)
	}
	g.exported = append(g.exported, exportedResource{handle: raw, access: access})
	return nil
}

// GetSwapChain returns a handle to the swapchain image. The image is
// resolved only by RecordPresentationCb; passes that write it run in the
// presentation segment.
func (g *RenderGraph) GetSwapChain() Handle[ImageDesc] {
	return Handle[ImageDesc]{raw: g.addResource(swapchainResource{}), desc: swapchainPlaceholderDesc}
}

// AddPass starts a new pass. The pass is appended to the graph by Finish.
func (g *RenderGraph) AddPass(name string) *PassBuilder {
	g.openBuilders++
	pb := &PassBuilder{g: g, pass: &recordedPass{name: name}}
	if g.compiled {
		pb.err = fmt.Errorf("rg: add pass %q: graph already compiled", name)
	}
	return pb
}

// Pass builds a pass inside fn and finishes it on every return path. An
// error from fn discards the pass.
func (g *RenderGraph) Pass(name string, fn func(pb *PassBuilder) error) error {
	pb := g.AddPass(name)
	if err := fn(pb); err != nil {
		pb.discard()
		return fmt.Errorf("pass %q: %w", name, err)
	}
	return pb.Finish()
}

// PassCount returns the number of recorded passes.
func (g *RenderGraph) PassCount() int { return len(g.passes) }

// ResourceCount returns the number of declared resources.
func (g *RenderGraph) ResourceCount() int { return len(g.resources) }

// PassNames returns the recorded pass names in execution order.
func (g *RenderGraph) PassNames() []string {
	names := make([]string, len(g.passes))
	for i, p := range g.passes {
		names[i] = p.name
	}
	return names
}

func (g *RenderGraph) resourceKind(id uint32) ResourceKind {
	return g.resources[id].kind()
}

func (g *RenderGraph) isSwapchain(id uint32) bool {
	_, ok := g.resources[id].(swapchainResource)
	return ok
}
