// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pipecache compiles and owns the pipelines render graphs register.
//
// Registration is cheap and idempotent: equal descriptors share a handle.
// Shaders are compiled from WGSL to SPIR-V with naga, either in a batch by
// Prepare, which spreads the work over a worker pool, or lazily the first
// time a pipeline is fetched.
//
// Usage:
//
//	cache := pipecache.New(device, pipecache.WithShaderFS(shaders))
//	defer cache.Destroy()
//
//	compiled, err := graph.Compile(cache)
//	if err := cache.Prepare(ctx); err != nil {
//	    // handle error
//	}
package pipecache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/gogpu/rg"
	"github.com/gogpu/rg/internal/parallel"
	"github.com/gogpu/wgpu/hal"
)

// Pipeline cache errors.
var (
	// ErrNilDevice is returned when a pipeline is built without a device.
	ErrNilDevice = errors.New("pipecache: device is nil")

	// ErrUnknownPipeline is returned for handles the cache did not issue.
	ErrUnknownPipeline = errors.New("pipecache: unknown pipeline handle")

	// ErrShaderNotFound is returned when a named shader cannot be read.
	ErrShaderNotFound = errors.New("pipecache: shader not found")

	// ErrShaderCompile is returned when WGSL compilation fails.
	ErrShaderCompile = errors.New("pipecache: shader compilation failed")

	// ErrDestroyed is returned after Destroy.
	ErrDestroyed = errors.New("pipecache: cache destroyed")
)

// Device is the subset of hal.Device used to build pipelines.
type Device interface {
	CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error)
	DestroyShaderModule(module hal.ShaderModule)
	CreateBindGroupLayout(desc *hal.BindGroupLayoutDescriptor) (hal.BindGroupLayout, error)
	DestroyBindGroupLayout(layout hal.BindGroupLayout)
	CreatePipelineLayout(desc *hal.PipelineLayoutDescriptor) (hal.PipelineLayout, error)
	DestroyPipelineLayout(layout hal.PipelineLayout)
	CreateComputePipeline(desc *hal.ComputePipelineDescriptor) (hal.ComputePipeline, error)
	DestroyComputePipeline(pipeline hal.ComputePipeline)
	CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error)
	DestroyRenderPipeline(pipeline hal.RenderPipeline)
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	workers int
	shaders fs.FS
}

// WithWorkers sets the number of goroutines Prepare compiles on.
// Zero or negative means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithShaderFS sets the filesystem named shaders are loaded from. A
// shader with only a Name set is read from this filesystem as WGSL.
func WithShaderFS(fsys fs.FS) Option {
	return func(o *options) {
		o.shaders = fsys
	}
}

type computeEntry struct {
	desc     rg.ComputePipelineDesc
	pipeline *rg.ComputePipeline
	module   hal.ShaderModule
}

type rasterEntry struct {
	desc     rg.RasterPipelineDesc
	pipeline *rg.RasterPipeline
	modules  []hal.ShaderModule
}

type rayTracingEntry struct {
	desc     rg.RayTracingPipelineDesc
	pipeline *rg.RayTracingPipeline
}

// Cache implements rg.PipelineCache on a HAL device.
//
// Thread safety: Cache is safe for concurrent use. Lookups of built
// pipelines take a read lock; building takes the write lock and checks
// again before doing any work.
type Cache struct {
	device  Device
	shaders fs.FS
	workers *parallel.WorkerPool

	mu        sync.RWMutex
	compute   []*computeEntry
	raster    []*rasterEntry
	rt        []*rayTracingEntry
	computeIdx map[uint64][]int
	rasterIdx  map[uint64][]int
	rtIdx      map[uint64][]int
	spirv     map[shaderKey][]uint32
	destroyed bool

	hits     atomic.Uint64
	misses   atomic.Uint64
	compiled atomic.Uint64
}

var _ rg.PipelineCache = (*Cache)(nil)

// New creates an empty cache. A nil device is accepted for registration
// only; building a pipeline then fails with ErrNilDevice.
func New(device Device, opts ...Option) *Cache {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache{
		device:    device,
		shaders:   o.shaders,
		workers:   parallel.NewWorkerPool(o.workers),
		computeIdx: make(map[uint64][]int),
		rasterIdx:  make(map[uint64][]int),
		rtIdx:      make(map[uint64][]int),
		spirv:     make(map[shaderKey][]uint32),
	}
}

// RegisterComputePipeline returns the handle for desc, adding it if no
// equal descriptor is registered.
func (c *Cache) RegisterComputePipeline(desc rg.ComputePipelineDesc) rg.ComputePipelineHandle {
	h := rg.HashComputePipelineDesc(&desc)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, idx := range c.computeIdx[h] {
		if reflect.DeepEqual(c.compute[idx].desc, desc) {
			return rg.ComputePipelineHandle(idx)
		}
	}
	idx := len(c.compute)
	c.compute = append(c.compute, &computeEntry{desc: desc})
	c.computeIdx[h] = append(c.computeIdx[h], idx)
	return rg.ComputePipelineHandle(idx)
}

// RegisterRasterPipeline returns the handle for desc, adding it if no
// equal descriptor is registered.
func (c *Cache) RegisterRasterPipeline(desc rg.RasterPipelineDesc) rg.RasterPipelineHandle {
	h := rg.HashRasterPipelineDesc(&desc)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, idx := range c.rasterIdx[h] {
		if reflect.DeepEqual(c.raster[idx].desc, desc) {
			return rg.RasterPipelineHandle(idx)
		}
	}
	idx := len(c.raster)
	c.raster = append(c.raster, &rasterEntry{desc: desc})
	c.rasterIdx[h] = append(c.rasterIdx[h], idx)
	return rg.RasterPipelineHandle(idx)
}

// RegisterRayTracingPipeline returns the handle for desc, adding it if no
// equal descriptor is registered.
func (c *Cache) RegisterRayTracingPipeline(desc rg.RayTracingPipelineDesc) rg.RayTracingPipelineHandle {
	h := rg.HashRayTracingPipelineDesc(&desc)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, idx := range c.rtIdx[h] {
		if reflect.DeepEqual(c.rt[idx].desc, desc) {
			return rg.RayTracingPipelineHandle(idx)
		}
	}
	idx := len(c.rt)
	c.rt = append(c.rt, &rayTracingEntry{desc: desc})
	c.rtIdx[h] = append(c.rtIdx[h], idx)
	return rg.RayTracingPipelineHandle(idx)
}

// ComputePipeline returns the pipeline for h, building it on first use.
//
//nolint:dupl // same double-check locking for every pipeline kind
func (c *Cache) ComputePipeline(h rg.ComputePipelineHandle) (*rg.ComputePipeline, error) {
	c.mu.RLock()
	if int(h) < len(c.compute) {
		if p := c.compute[h].pipeline; p != nil {
			c.mu.RUnlock()
			c.hits.Add(1)
			return p, nil
		}
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, ErrDestroyed
	}
	if int(h) >= len(c.compute) {
		return nil, fmt.Errorf("%w: compute %d", ErrUnknownPipeline, h)
	}
	e := c.compute[h]
	if e.pipeline != nil {
		c.hits.Add(1)
		return e.pipeline, nil
	}
	if err := c.buildCompute(e); err != nil {
		return nil, err
	}
	c.misses.Add(1)
	return e.pipeline, nil
}

// RasterPipeline returns the pipeline for h, building it on first use.
//
//nolint:dupl // same double-check locking for every pipeline kind
func (c *Cache) RasterPipeline(h rg.RasterPipelineHandle) (*rg.RasterPipeline, error) {
	c.mu.RLock()
	if int(h) < len(c.raster) {
		if p := c.raster[h].pipeline; p != nil {
			c.mu.RUnlock()
			c.hits.Add(1)
			return p, nil
		}
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, ErrDestroyed
	}
	if int(h) >= len(c.raster) {
		return nil, fmt.Errorf("%w: raster %d", ErrUnknownPipeline, h)
	}
	e := c.raster[h]
	if e.pipeline != nil {
		c.hits.Add(1)
		return e.pipeline, nil
	}
	if err := c.buildRaster(e); err != nil {
		return nil, err
	}
	c.misses.Add(1)
	return e.pipeline, nil
}

// RayTracingPipeline returns the shader modules for h, building them on
// first use.
//
//nolint:dupl // same double-check locking for every pipeline kind
func (c *Cache) RayTracingPipeline(h rg.RayTracingPipelineHandle) (*rg.RayTracingPipeline, error) {
	c.mu.RLock()
	if int(h) < len(c.rt) {
		if p := c.rt[h].pipeline; p != nil {
			c.mu.RUnlock()
			c.hits.Add(1)
			return p, nil
		}
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, ErrDestroyed
	}
	if int(h) >= len(c.rt) {
		return nil, fmt.Errorf("%w: ray tracing %d", ErrUnknownPipeline, h)
	}
	e := c.rt[h]
	if e.pipeline != nil {
		c.hits.Add(1)
		return e.pipeline, nil
	}
	if err := c.buildRayTracing(e); err != nil {
		return nil, err
	}
	c.misses.Add(1)
	return e.pipeline, nil
}

// Prepare builds every registered pipeline that is not built yet. WGSL
// sources are compiled on the worker pool first, then the HAL objects are
// created on the calling goroutine. Pipelines whose shaders fail are left
// unbuilt and their errors are joined into the result.
func (c *Cache) Prepare(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	keys := c.pendingShadersLocked()
	c.mu.Unlock()

	results := make([][]uint32, len(keys))
	jobs := make([]parallel.Job, len(keys))
	for i, key := range keys {
		jobs[i] = func(context.Context) error {
			words, err := buildShader(c.shaders, key)
			results[i] = words
			return err
		}
	}
	compileErr := c.workers.Run(ctx, jobs)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	for i, key := range keys {
		if results[i] != nil {
			c.spirv[key] = results[i]
			c.compiled.Add(1)
		}
	}
	if compileErr != nil {
		rg.Logger().Warn("pipecache: shader compilation failed", "err", compileErr)
	}
	if err := ctx.Err(); err != nil {
		return errors.Join(compileErr, err)
	}

	var errs []error
	for _, e := range c.compute {
		if e.pipeline == nil && c.shadersReadyLocked(&e.desc.Shader) {
			errs = append(errs, c.buildCompute(e))
		}
	}
	for _, e := range c.raster {
		if e.pipeline == nil && c.shadersReadyLocked(&e.desc.Vertex, &e.desc.Fragment) {
			errs = append(errs, c.buildRaster(e))
		}
	}
	for _, e := range c.rt {
		if e.pipeline == nil && c.shadersReadyLocked(rayTracingStages(&e.desc)...) {
			errs = append(errs, c.buildRayTracing(e))
		}
	}
	return errors.Join(append([]error{compileErr}, errs...)...)
}

// pendingShadersLocked lists the WGSL sources unbuilt pipelines need that
// are not compiled yet, without duplicates.
func (c *Cache) pendingShadersLocked() []shaderKey {
	seen := make(map[shaderKey]bool)
	var keys []shaderKey
	add := func(srcs ...*rg.ShaderSource) {
		for _, src := range srcs {
			key, ok := keyOf(src)
			if !ok || seen[key] {
				continue
			}
			if _, done := c.spirv[key]; done {
				continue
			}
			seen[key] = true
			keys = append(keys, key)
		}
	}
	for _, e := range c.compute {
		if e.pipeline == nil {
			add(&e.desc.Shader)
		}
	}
	for _, e := range c.raster {
		if e.pipeline == nil {
			add(&e.desc.Vertex, &e.desc.Fragment)
		}
	}
	for _, e := range c.rt {
		if e.pipeline == nil {
			add(rayTracingStages(&e.desc)...)
		}
	}
	return keys
}

func (c *Cache) shadersReadyLocked(srcs ...*rg.ShaderSource) bool {
	for _, src := range srcs {
		key, ok := keyOf(src)
		if !ok {
			continue
		}
		if _, done := c.spirv[key]; !done {
			return false
		}
	}
	return true
}

// spirvLocked returns SPIR-V for src, compiling it if needed.
func (c *Cache) spirvLocked(src *rg.ShaderSource) ([]uint32, error) {
	key, ok := keyOf(src)
	if !ok {
		return src.SPIRV, nil
	}
	if words, done := c.spirv[key]; done {
		return words, nil
	}
	words, err := buildShader(c.shaders, key)
	if err != nil {
		return nil, err
	}
	c.spirv[key] = words
	c.compiled.Add(1)
	return words, nil
}

// Stats holds cache counters.
type Stats struct {
	// Compute, Raster and RayTracing count registered pipelines.
	Compute, Raster, RayTracing int

	// Hits counts lookups that found a built pipeline.
	Hits uint64

	// Misses counts lookups that had to build the pipeline.
	Misses uint64

	// ShadersCompiled counts distinct WGSL sources compiled.
	ShadersCompiled uint64
}

// Stats returns cache statistics. The counters are read atomically and
// may not be perfectly synchronized with each other.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	s := Stats{Compute: len(c.compute), Raster: len(c.raster), RayTracing: len(c.rt)}
	c.mu.RUnlock()
	s.Hits = c.hits.Load()
	s.Misses = c.misses.Load()
	s.ShadersCompiled = c.compiled.Load()
	return s
}

// Destroy releases every HAL object the cache created and stops the
// worker pool. It is safe to call more than once.
func (c *Cache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.destroyed = true
	c.workers.Close()

	if c.device == nil {
		return
	}
	for _, e := range c.compute {
		if p := e.pipeline; p != nil {
			c.device.DestroyComputePipeline(p.Raw)
			destroyLayout(c.device, p.Layout, p.BindLayouts)
		}
		if e.module != nil {
			c.device.DestroyShaderModule(e.module)
		}
	}
	for _, e := range c.raster {
		if p := e.pipeline; p != nil {
			c.device.DestroyRenderPipeline(p.Raw)
			destroyLayout(c.device, p.Layout, p.BindLayouts)
		}
		for _, m := range e.modules {
			c.device.DestroyShaderModule(m)
		}
	}
	for _, e := range c.rt {
		if p := e.pipeline; p != nil {
			for _, m := range p.Modules {
				c.device.DestroyShaderModule(m)
			}
		}
	}
}
