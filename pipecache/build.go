// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipecache

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rg"
	"github.com/gogpu/wgpu/hal"
)

func rayTracingStages(d *rg.RayTracingPipelineDesc) []*rg.ShaderSource {
	stages := make([]*rg.ShaderSource, 0, len(d.RayGen)+len(d.Miss)+len(d.Hit))
	for _, group := range [][]rg.ShaderSource{d.RayGen, d.Miss, d.Hit} {
		for i := range group {
			stages = append(stages, &group[i])
		}
	}
	return stages
}

// createLayout creates one bind group layout per set up to the highest set
// index, leaving gaps empty, and a pipeline layout over them.
func createLayout(device Device, label string, sets rg.DescriptorSetLayouts) (hal.PipelineLayout, []hal.BindGroupLayout, error) {
	var count uint32
	if indices := sets.Sets(); len(indices) > 0 {
		count = indices[len(indices)-1] + 1
	}

	bindLayouts := make([]hal.BindGroupLayout, 0, count)
	for set := range count {
		bl, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s_set%d", label, set),
			Entries: sets[set],
		})
		if err != nil {
			destroyLayout(device, nil, bindLayouts)
			return nil, nil, fmt.Errorf("create bind group layout %d for %q: %w", set, label, err)
		}
		bindLayouts = append(bindLayouts, bl)
	}

	layout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "_layout",
		BindGroupLayouts: bindLayouts,
	})
	if err != nil {
		destroyLayout(device, nil, bindLayouts)
		return nil, nil, fmt.Errorf("create pipeline layout for %q: %w", label, err)
	}
	return layout, bindLayouts, nil
}

func destroyLayout(device Device, layout hal.PipelineLayout, bindLayouts []hal.BindGroupLayout) {
	if layout != nil {
		device.DestroyPipelineLayout(layout)
	}
	for _, bl := range bindLayouts {
		if bl != nil {
			device.DestroyBindGroupLayout(bl)
		}
	}
}

func (c *Cache) buildCompute(e *computeEntry) error {
	if c.device == nil {
		return ErrNilDevice
	}
	d := &e.desc
	code, err := c.spirvLocked(&d.Shader)
	if err != nil {
		return fmt.Errorf("compute pipeline %q: %w", d.Label, err)
	}
	module, err := createShaderModule(c.device, d.Label, code)
	if err != nil {
		return err
	}
	layout, bindLayouts, err := createLayout(c.device, d.Label, d.Layouts)
	if err != nil {
		c.device.DestroyShaderModule(module)
		return err
	}

	raw, err := c.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  d.Label,
		Layout: layout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: entryPoint(&d.Shader, "main"),
		},
	})
	if err != nil {
		destroyLayout(c.device, layout, bindLayouts)
		c.device.DestroyShaderModule(module)
		return fmt.Errorf("create compute pipeline %q: %w", d.Label, err)
	}

	e.module = module
	e.pipeline = &rg.ComputePipeline{Desc: *d, Raw: raw, Layout: layout, BindLayouts: bindLayouts}
	rg.Logger().Info("pipecache: compute pipeline built", "label", d.Label, "sets", len(bindLayouts))
	return nil
}

func (c *Cache) buildRaster(e *rasterEntry) error {
	if c.device == nil {
		return ErrNilDevice
	}
	d := &e.desc
	vsCode, err := c.spirvLocked(&d.Vertex)
	if err != nil {
		return fmt.Errorf("raster pipeline %q: vertex: %w", d.Label, err)
	}
	fsCode, err := c.spirvLocked(&d.Fragment)
	if err != nil {
		return fmt.Errorf("raster pipeline %q: fragment: %w", d.Label, err)
	}

	vs, err := createShaderModule(c.device, d.Label+"_vs", vsCode)
	if err != nil {
		return err
	}
	fs, err := createShaderModule(c.device, d.Label+"_fs", fsCode)
	if err != nil {
		c.device.DestroyShaderModule(vs)
		return err
	}
	layout, bindLayouts, err := createLayout(c.device, d.Label, d.Layouts)
	if err != nil {
		c.device.DestroyShaderModule(fs)
		c.device.DestroyShaderModule(vs)
		return err
	}

	targets := make([]gputypes.ColorTargetState, len(d.ColorFormats))
	for i, f := range d.ColorFormats {
		targets[i] = gputypes.ColorTargetState{Format: f, WriteMask: gputypes.ColorWriteMaskAll}
	}
	var depth *hal.DepthStencilState
	if d.DepthFormat != gputypes.TextureFormatUndefined {
		depth = &hal.DepthStencilState{
			Format:            d.DepthFormat,
			DepthWriteEnabled: d.DepthWrite,
			// Reverse Z: nearer fragments have larger depth.
			DepthCompare: gputypes.CompareFunctionGreaterEqual,
		}
	}

	raw, err := c.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  d.Label,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     vs,
			EntryPoint: entryPoint(&d.Vertex, "vs_main"),
		},
		Fragment: &hal.FragmentState{
			Module:     fs,
			EntryPoint: entryPoint(&d.Fragment, "fs_main"),
			Targets:    targets,
		},
		DepthStencil: depth,
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: d.CullMode,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		destroyLayout(c.device, layout, bindLayouts)
		c.device.DestroyShaderModule(fs)
		c.device.DestroyShaderModule(vs)
		return fmt.Errorf("create raster pipeline %q: %w", d.Label, err)
	}

	e.modules = []hal.ShaderModule{vs, fs}
	e.pipeline = &rg.RasterPipeline{Desc: *d, Raw: raw, Layout: layout, BindLayouts: bindLayouts}
	rg.Logger().Info("pipecache: raster pipeline built", "label", d.Label, "targets", len(targets))
	return nil
}

func (c *Cache) buildRayTracing(e *rayTracingEntry) error {
	if c.device == nil {
		return ErrNilDevice
	}
	d := &e.desc
	stages := rayTracingStages(d)
	modules := make([]hal.ShaderModule, 0, len(stages))
	release := func() {
		for _, m := range modules {
			c.device.DestroyShaderModule(m)
		}
	}
	for i, src := range stages {
		code, err := c.spirvLocked(src)
		if err != nil {
			release()
			return fmt.Errorf("ray tracing pipeline %q: stage %d: %w", d.Label, i, err)
		}
		m, err := createShaderModule(c.device, fmt.Sprintf("%s_stage%d", d.Label, i), code)
		if err != nil {
			release()
			return err
		}
		modules = append(modules, m)
	}

	e.pipeline = &rg.RayTracingPipeline{Desc: *d, Modules: modules}
	rg.Logger().Info("pipecache: ray tracing shaders built", "label", d.Label, "stages", len(modules))
	return nil
}
