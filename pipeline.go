// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rg

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
	"maps"
	"reflect"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// FrameConstantsSetIndex is the descriptor set reserved for the
// frame-global constants layout predefined on every graph.
const FrameConstantsSetIndex = 2

// DescriptorSetLayouts maps descriptor set (bind group) indices to the
// bindings of that set.
type DescriptorSetLayouts map[uint32][]gputypes.BindGroupLayoutEntry

// Clone returns a deep copy.
func (l DescriptorSetLayouts) Clone() DescriptorSetLayouts {
	if l == nil {
		return nil
	}
	out := make(DescriptorSetLayouts, len(l))
	for k, v := range l {
		out[k] = slices.Clone(v)
	}
	return out
}

// Sets returns the set indices in ascending order.
func (l DescriptorSetLayouts) Sets() []uint32 {
	return slices.Sorted(maps.Keys(l))
}

// ShaderSource is a shader entry point. WGSL takes precedence over SPIRV.
type ShaderSource struct {
	Name       string
	WGSL       string
	SPIRV      []uint32
	EntryPoint string
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	Label   string
	Shader  ShaderSource
	Layouts DescriptorSetLayouts
}

// RasterPipelineDesc describes a raster (graphics) pipeline.
type RasterPipelineDesc struct {
	Label        string
	Vertex       ShaderSource
	Fragment     ShaderSource
	Layouts      DescriptorSetLayouts
	ColorFormats []gputypes.TextureFormat
	DepthFormat  gputypes.TextureFormat
	CullMode     gputypes.CullMode
	DepthWrite   bool
}

// RayTracingPipelineDesc describes a ray tracing pipeline.
type RayTracingPipelineDesc struct {
	Label             string
	RayGen            []ShaderSource
	Miss              []ShaderSource
	Hit               []ShaderSource
	Layouts           DescriptorSetLayouts
	MaxRecursionDepth uint32
}

// ComputePipelineHandle, RasterPipelineHandle and RayTracingPipelineHandle
// are issued by a PipelineCache.
type (
	ComputePipelineHandle    uint32
	RasterPipelineHandle     uint32
	RayTracingPipelineHandle uint32
)

// RgComputePipelineHandle, RgRasterPipelineHandle and
// RgRayTracingPipelineHandle index a graph's registered pipelines. They
// resolve to cache handles once the graph is compiled.
type (
	RgComputePipelineHandle    struct{ idx int }
	RgRasterPipelineHandle     struct{ idx int }
	RgRayTracingPipelineHandle struct{ idx int }
)

// ComputePipeline is a compiled compute pipeline.
type ComputePipeline struct {
	Desc        ComputePipelineDesc
	Raw         hal.ComputePipeline
	Layout      hal.PipelineLayout
	BindLayouts []hal.BindGroupLayout
}

// RasterPipeline is a compiled raster pipeline.
type RasterPipeline struct {
	Desc        RasterPipelineDesc
	Raw         hal.RenderPipeline
	Layout      hal.PipelineLayout
	BindLayouts []hal.BindGroupLayout
}

// RayTracingPipeline holds the compiled shader stages of a ray tracing
// pipeline. The HAL has no ray tracing pipeline object, so only the
// modules are materialized.
type RayTracingPipeline struct {
	Desc    RayTracingPipelineDesc
	Modules []hal.ShaderModule
}

// PipelineCache compiles and owns pipelines across frames. Registration
// is idempotent: registering an equal descriptor returns the same handle.
type PipelineCache interface {
	RegisterComputePipeline(desc ComputePipelineDesc) ComputePipelineHandle
	RegisterRasterPipeline(desc RasterPipelineDesc) RasterPipelineHandle
	RegisterRayTracingPipeline(desc RayTracingPipelineDesc) RayTracingPipelineHandle

	ComputePipeline(h ComputePipelineHandle) (*ComputePipeline, error)
	RasterPipeline(h RasterPipelineHandle) (*RasterPipeline, error)
	RayTracingPipeline(h RayTracingPipelineHandle) (*RayTracingPipeline, error)
}

// RenderGraphPipelines maps a graph's pipeline registrations to cache
// handles.
type RenderGraphPipelines struct {
	Compute    []ComputePipelineHandle
	Raster     []RasterPipelineHandle
	RayTracing []RayTracingPipelineHandle
}

// HashComputePipelineDesc returns a stable hash of the descriptor.
func HashComputePipelineDesc(d *ComputePipelineDesc) uint64 {
	h := fnv.New64a()
	hashString(h, d.Label)
	hashShader(h, &d.Shader)
	hashLayouts(h, d.Layouts)
	return h.Sum64()
}

// HashRasterPipelineDesc returns a stable hash of the descriptor.
func HashRasterPipelineDesc(d *RasterPipelineDesc) uint64 {
	h := fnv.New64a()
	hashString(h, d.Label)
	hashShader(h, &d.Vertex)
	hashShader(h, &d.Fragment)
	hashLayouts(h, d.Layouts)
	hashUint32(h, uint32(len(d.ColorFormats)))
	for _, f := range d.ColorFormats {
		hashUint32(h, uint32(f))
	}
	hashUint32(h, uint32(d.DepthFormat))
	hashUint32(h, uint32(d.CullMode))
	hashBool(h, d.DepthWrite)
	return h.Sum64()
}

// HashRayTracingPipelineDesc returns a stable hash of the descriptor.
func HashRayTracingPipelineDesc(d *RayTracingPipelineDesc) uint64 {
	h := fnv.New64a()
	hashString(h, d.Label)
	for _, group := range [][]ShaderSource{d.RayGen, d.Miss, d.Hit} {
		hashUint32(h, uint32(len(group)))
		for i := range group {
			hashShader(h, &group[i])
		}
	}
	hashLayouts(h, d.Layouts)
	hashUint32(h, d.MaxRecursionDepth)
	return h.Sum64()
}

func hashShader(h hash.Hash64, s *ShaderSource) {
	hashString(h, s.Name)
	hashString(h, s.WGSL)
	hashString(h, s.EntryPoint)
	hashUint32(h, uint32(len(s.SPIRV)))
	for _, w := range s.SPIRV {
		hashUint32(h, w)
	}
}

func hashLayouts(h hash.Hash64, l DescriptorSetLayouts) {
	for _, set := range l.Sets() {
		hashUint32(h, set)
		entries := l[set]
		hashUint32(h, uint32(len(entries)))
		for i := range entries {
			hashLayoutEntry(h, &entries[i])
		}
	}
}

func hashLayoutEntry(h hash.Hash64, e *gputypes.BindGroupLayoutEntry) {
	hashUint32(h, e.Binding)
	hashUint32(h, uint32(e.Visibility))
	if b := e.Buffer; b != nil {
		hashUint32(h, 1)
		hashUint32(h, uint32(b.Type))
		hashBool(h, b.HasDynamicOffset)
		hashUint64(h, b.MinBindingSize)
	}
	if t := e.Texture; t != nil {
		hashUint32(h, 2)
		hashUint32(h, uint32(t.SampleType))
		hashUint32(h, uint32(t.ViewDimension))
		hashBool(h, t.Multisampled)
	}
	if st := e.StorageTexture; st != nil {
		hashUint32(h, 3)
		hashUint32(h, uint32(st.Access))
		hashUint32(h, uint32(st.Format))
		hashUint32(h, uint32(st.ViewDimension))
	}
	if sm := e.Sampler; sm != nil {
		hashUint32(h, 4)
		hashUint32(h, uint32(sm.Type))
	}
}

func hashString(h hash.Hash64, s string) {
	hashUint32(h, uint32(len(s)))
	_, _ = h.Write([]byte(s)) // hash.Hash.Write never returns an error
}

func hashUint32(h hash.Hash64, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, _ = h.Write(buf[:])
}

func hashUint64(h hash.Hash64, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = h.Write(buf[:])
}

func hashBool(h hash.Hash64, v bool) {
	if v {
		hashUint32(h, 1)
	} else {
		hashUint32(h, 0)
	}
}

// findPipeline returns the index of the registered descriptor equal to
// desc among the candidates sharing its hash.
func findPipeline[D any](descs []D, candidates []int, desc *D) (int, bool) {
	for _, idx := range candidates {
		if reflect.DeepEqual(&descs[idx], desc) {
			return idx, true
		}
	}
	return 0, false
}
