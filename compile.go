// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rg

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// ResourceLifetime records when a resource is last used.
type ResourceLifetime struct {
	// LastAccess is the index of the last pass touching the resource.
	// Valid only when Accessed is true.
	LastAccess int
	Accessed   bool
}

// ResourceInfo is the result of lifetime and usage analysis, indexed by
// resource id.
type ResourceInfo struct {
	Lifetimes    []ResourceLifetime
	ImageUsage   []gputypes.TextureUsage
	BufferUsage  []gputypes.BufferUsage
	ResourceKind []ResourceKind
}

func (info *ResourceInfo) touch(kind ResourceKind, id uint32, passIdx int, access AccessType) {
	lt := &info.Lifetimes[id]
	if !lt.Accessed || passIdx > lt.LastAccess {
		lt.LastAccess = passIdx
	}
	lt.Accessed = true
	switch kind {
	case KindImage:
		info.ImageUsage[id] |= access.TextureUsage()
	case KindBuffer, KindRayTracingAcceleration:
		info.BufferUsage[id] |= access.BufferUsage()
	}
}

// CalculateResourceInfo walks the recorded passes in order, finding the
// last pass that accesses each resource and the union of usage bits its
// accesses imply. Exported resources count as accessed by the final pass.
func (g *RenderGraph) CalculateResourceInfo() ResourceInfo {
	n := len(g.resources)
	info := ResourceInfo{
		Lifetimes:    make([]ResourceLifetime, n),
		ImageUsage:   make([]gputypes.TextureUsage, n),
		BufferUsage:  make([]gputypes.BufferUsage, n),
		ResourceKind: make([]ResourceKind, n),
	}
	for id, r := range g.resources {
		info.ResourceKind[id] = r.kind()
	}
	for _, p := range g.passes {
		for _, ref := range p.read {
			info.touch(info.ResourceKind[ref.handle.ID], ref.handle.ID, p.idx, ref.access.AccessType)
		}
		for _, ref := range p.write {
			info.touch(info.ResourceKind[ref.handle.ID], ref.handle.ID, p.idx, ref.access.AccessType)
		}
	}
	final := max(len(g.passes)-1, 0)
	for _, e := range g.exported {
		info.touch(info.ResourceKind[e.handle.ID], e.handle.ID, final, e.access)
	}
	return info
}

// CompiledRenderGraph is a graph whose resources have been analyzed and
// whose pipelines have been handed to a PipelineCache.
type CompiledRenderGraph struct {
	rg           *RenderGraph
	resourceInfo ResourceInfo
	pipelines    RenderGraphPipelines
}

// Compile analyzes the graph and registers its pipelines with cache. The
// graph cannot be modified afterwards.
func (g *RenderGraph) Compile(cache PipelineCache) (*CompiledRenderGraph, error) {
	if g.compiled {
		return nil, fmt.Errorf("rg: graph already compiled")
	}
	if g.openBuilders > 0 {
		return nil, fmt.Errorf("rg: compile with %d unfinished pass builder(s)", g.openBuilders)
	}
	if cache == nil && len(g.computePipelines)+len(g.rasterPipelines)+len(g.rayTracingPipelines) > 0 {
		return nil, fmt.Errorf("rg: graph registers pipelines but no pipeline cache was given")
	}
	g.compiled = true

	var pipelines RenderGraphPipelines
	for _, d := range g.computePipelines {
		pipelines.Compute = append(pipelines.Compute, cache.RegisterComputePipeline(d))
	}
	for _, d := range g.rasterPipelines {
		pipelines.Raster = append(pipelines.Raster, cache.RegisterRasterPipeline(d))
	}
	for _, d := range g.rayTracingPipelines {
		pipelines.RayTracing = append(pipelines.RayTracing, cache.RegisterRayTracingPipeline(d))
	}

	info := g.CalculateResourceInfo()
	Logger().Debug("rg: compiled", "passes", len(g.passes), "resources", len(g.resources),
		"compute_pipelines", len(pipelines.Compute), "raster_pipelines", len(pipelines.Raster))
	return &CompiledRenderGraph{rg: g, resourceInfo: info, pipelines: pipelines}, nil
}

// ResourceInfo returns the lifetime and usage analysis.
func (c *CompiledRenderGraph) ResourceInfo() ResourceInfo { return c.resourceInfo }

// Pipelines returns the cache handles of the graph's pipelines.
func (c *CompiledRenderGraph) Pipelines() RenderGraphPipelines { return c.pipelines }

// Graph returns the compiled graph.
func (c *CompiledRenderGraph) Graph() *RenderGraph { return c.rg }
