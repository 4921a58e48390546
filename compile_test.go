// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rg

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestCalculateResourceInfoLastAccess(t *testing.T) {
	g := NewRenderGraph()
	a := Create(g, NewImageDesc2D(gputypes.TextureFormatRGBA8Unorm, 8, 8))
	b := Create(g, NewBufferDesc(64, 0))
	unused := Create(g, NewBufferDesc(64, 0))
	hist := g.ImportImage(importedImage("hist"), AccessNothing)

	_ = g.Pass("p0", func(pb *PassBuilder) error {
		Write(pb, &a, AccessComputeShaderWrite)
		Write(pb, &b, AccessComputeShaderWrite)
		return nil
	})
	_ = g.Pass("p1", func(pb *PassBuilder) error {
		Read(pb, a, AccessComputeShaderReadSampledImageOrUniformTexelBuffer)
		return nil
	})
	_ = g.Pass("p2", func(pb *PassBuilder) error {
		Read(pb, b, AccessIndirectBuffer)
		return nil
	})
	if _, err := Export(g, hist, AccessFragmentShaderReadSampledImageOrUniformTexelBuffer); err != nil {
		t.Fatal(err)
	}

	info := g.CalculateResourceInfo()
	tests := []struct {
		name     string
		id       uint32
		accessed bool
		last     int
	}{
		{"a", a.Raw().ID, true, 1},
		{"b", b.Raw().ID, true, 2},
		{"unused", unused.Raw().ID, false, 0},
		{"exported", hist.Raw().ID, true, 2},
	}
	for _, tt := range tests {
		lt := info.Lifetimes[tt.id]
		if lt.Accessed != tt.accessed || (tt.accessed && lt.LastAccess != tt.last) {
			t.Errorf("%s: lifetime = %+v, want accessed=%v last=%d", tt.name, lt, tt.accessed, tt.last)
		}
	}

	if got := info.ImageUsage[a.Raw().ID]; got != gputypes.TextureUsageStorageBinding|gputypes.TextureUsageTextureBinding {
		t.Errorf("image usage = %v", got)
	}
	if got := info.BufferUsage[b.Raw().ID]; got != gputypes.BufferUsageStorage|gputypes.BufferUsageIndirect {
		t.Errorf("buffer usage = %v", got)
	}
	if info.ResourceKind[b.Raw().ID] != KindBuffer {
		t.Errorf("kind = %v, want buffer", info.ResourceKind[b.Raw().ID])
	}
}

func TestCalculateResourceInfoExportWithoutPasses(t *testing.T) {
	g := NewRenderGraph()
	h := g.ImportBuffer(importedBuffer("b"), AccessNothing)
	if _, err := Export(g, h, AccessNothing); err != nil {
		t.Fatal(err)
	}
	lt := g.CalculateResourceInfo().Lifetimes[h.Raw().ID]
	if !lt.Accessed || lt.LastAccess != 0 {
		t.Errorf("lifetime = %+v, want accessed at 0", lt)
	}
}

// Usage flags must cover every access recorded against a resource, for
// every combination of accesses.
func TestUsageIsSupersetOfEveryAccess(t *testing.T) {
	var reads, writes []AccessType
	for a := AccessNothing; a < accessTypeCount; a++ {
		switch a.info().class {
		case classRead:
			reads = append(reads, a)
		case classWrite:
			writes = append(writes, a)
		}
	}

	for _, w := range writes {
		for _, r := range reads {
			g := NewRenderGraph()
			img := Create(g, NewImageDesc2D(gputypes.TextureFormatRGBA8Unorm, 4, 4))
			buf := Create(g, NewBufferDesc(16, 0))
			_ = g.Pass("w", func(pb *PassBuilder) error {
				Write(pb, &img, w)
				Write(pb, &buf, w)
				return nil
			})
			_ = g.Pass("r", func(pb *PassBuilder) error {
				Read(pb, img, r)
				Read(pb, buf, r)
				return nil
			})

			info := g.CalculateResourceInfo()
			for _, a := range []AccessType{w, r} {
				if info.ImageUsage[img.Raw().ID]&a.TextureUsage() != a.TextureUsage() {
					t.Errorf("%v/%v: image usage %v misses %v", w, r, info.ImageUsage[img.Raw().ID], a)
				}
				if info.BufferUsage[buf.Raw().ID]&a.BufferUsage() != a.BufferUsage() {
					t.Errorf("%v/%v: buffer usage %v misses %v", w, r, info.BufferUsage[buf.Raw().ID], a)
				}
			}
		}
	}
}

// stubPipelineCache hands out sequential handles.
type stubPipelineCache struct {
	compute, raster, rayTracing int
}

func (c *stubPipelineCache) RegisterComputePipeline(ComputePipelineDesc) ComputePipelineHandle {
	c.compute++
	return ComputePipelineHandle(c.compute)
}

func (c *stubPipelineCache) RegisterRasterPipeline(RasterPipelineDesc) RasterPipelineHandle {
	c.raster++
	return RasterPipelineHandle(c.raster)
}

func (c *stubPipelineCache) RegisterRayTracingPipeline(RayTracingPipelineDesc) RayTracingPipelineHandle {
	c.rayTracing++
	return RayTracingPipelineHandle(c.rayTracing)
}

func (c *stubPipelineCache) ComputePipeline(h ComputePipelineHandle) (*ComputePipeline, error) {
	return &ComputePipeline{Desc: ComputePipelineDesc{Label: "stub"}}, nil
}

func (c *stubPipelineCache) RasterPipeline(RasterPipelineHandle) (*RasterPipeline, error) {
	return &RasterPipeline{}, nil
}

func (c *stubPipelineCache) RayTracingPipeline(RayTracingPipelineHandle) (*RayTracingPipeline, error) {
	return &RayTracingPipeline{}, nil
}

func TestCompileRegistersPipelines(t *testing.T) {
	g := NewRenderGraph()
	_ = g.Pass("p", func(pb *PassBuilder) error {
		pb.RegisterComputePipeline("a.wgsl")
		pb.RegisterComputePipeline("b.wgsl")
		pb.RegisterRasterPipeline(RasterPipelineDesc{Label: "r"})
		return nil
	})

	cache := &stubPipelineCache{}
	compiled, err := g.Compile(cache)
	if err != nil {
		t.Fatal(err)
	}
	p := compiled.Pipelines()
	if len(p.Compute) != 2 || p.Compute[0] != 1 || p.Compute[1] != 2 {
		t.Errorf("compute handles = %v", p.Compute)
	}
	if len(p.Raster) != 1 || len(p.RayTracing) != 0 {
		t.Errorf("raster = %v, rt = %v", p.Raster, p.RayTracing)
	}
	if compiled.Graph() != g {
		t.Error("Graph() should return the compiled graph")
	}
}

func TestCompileWithoutCacheFailsWhenPipelinesRegistered(t *testing.T) {
	g := NewRenderGraph()
	_ = g.Pass("p", func(pb *PassBuilder) error {
		pb.RegisterComputePipeline("a.wgsl")
		return nil
	})
	if _, err := g.Compile(nil); err == nil {
		t.Error("Compile(nil) with pipelines should fail")
	}
}
