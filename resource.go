// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rg

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ResourceKind identifies the concrete kind of a graph resource.
type ResourceKind uint8

const (
	KindImage ResourceKind = iota + 1
	KindBuffer
	KindRayTracingAcceleration
)

func (k ResourceKind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindBuffer:
		return "buffer"
	case KindRayTracingAcceleration:
		return "ray tracing acceleration"
	default:
		return fmt.Sprintf("ResourceKind(%d)", uint8(k))
	}
}

// ResourceDesc is implemented by the descriptor types a graph can hold:
// ImageDesc, BufferDesc and RayTracingAccelerationDesc.
type ResourceDesc interface {
	ResourceKind() ResourceKind
}

// ImageType is the dimensionality of an image.
type ImageType uint8

const (
	ImageType2D ImageType = iota
	ImageType1D
	ImageType3D
	ImageTypeCube
	ImageType2DArray
)

// ImageDesc describes an image resource.
type ImageDesc struct {
	Type   ImageType
	Format gputypes.TextureFormat

	// Extent holds width, height and depth.
	Extent [3]uint32

	// MipLevels defaults to 1 when zero.
	MipLevels uint32

	// ArrayElements defaults to 1 when zero; 6 for cube images.
	ArrayElements uint32

	// Samples defaults to 1 when zero.
	Samples uint32

	// Usage holds usage bits the graph cannot infer from pass accesses,
	// such as a copy destination written outside any pass.
	Usage gputypes.TextureUsage
}

// NewImageDesc2D returns a single-mip 2D image descriptor.
func NewImageDesc2D(format gputypes.TextureFormat, width, height uint32) ImageDesc {
	return ImageDesc{Type: ImageType2D, Format: format, Extent: [3]uint32{width, height, 1}, MipLevels: 1, ArrayElements: 1, Samples: 1}
}

// NewImageDesc3D returns a single-mip 3D image descriptor.
func NewImageDesc3D(format gputypes.TextureFormat, width, height, depth uint32) ImageDesc {
	return ImageDesc{Type: ImageType3D, Format: format, Extent: [3]uint32{width, height, depth}, MipLevels: 1, ArrayElements: 1, Samples: 1}
}

// NewImageDescCube returns a single-mip cube image descriptor.
func NewImageDescCube(format gputypes.TextureFormat, width uint32) ImageDesc {
	return ImageDesc{Type: ImageTypeCube, Format: format, Extent: [3]uint32{width, width, 1}, MipLevels: 1, ArrayElements: 6, Samples: 1}
}

// ResourceKind implements ResourceDesc.
func (ImageDesc) ResourceKind() ResourceKind { return KindImage }

// WithMipLevels returns a copy with the given mip count.
func (d ImageDesc) WithMipLevels(levels uint32) ImageDesc {
	d.MipLevels = levels
	return d
}

// WithAllMipLevels returns a copy with a full mip chain.
func (d ImageDesc) WithAllMipLevels() ImageDesc {
	m := max(d.Extent[0], d.Extent[1], d.Extent[2])
	levels := uint32(1)
	for m > 1 {
		m >>= 1
		levels++
	}
	d.MipLevels = levels
	return d
}

// WithFormat returns a copy with the given format.
func (d ImageDesc) WithFormat(format gputypes.TextureFormat) ImageDesc {
	d.Format = format
	return d
}

// WithUsage returns a copy with additional usage bits.
func (d ImageDesc) WithUsage(usage gputypes.TextureUsage) ImageDesc {
	d.Usage |= usage
	return d
}

// HalfRes returns a copy with width and height halved (rounded up).
func (d ImageDesc) HalfRes() ImageDesc {
	return d.DivUpExtent([3]uint32{2, 2, 1})
}

// DivUpExtent divides the extent component-wise, rounding up, never below 1.
func (d ImageDesc) DivUpExtent(div [3]uint32) ImageDesc {
	for i := range d.Extent {
		if div[i] == 0 {
			continue
		}
		d.Extent[i] = max((d.Extent[i]+div[i]-1)/div[i], 1)
	}
	return d
}

// Extent2D returns width and height.
func (d ImageDesc) Extent2D() (uint32, uint32) { return d.Extent[0], d.Extent[1] }

// Normalized returns a copy with zero counts and extents replaced by the
// defaults used when the image is created.
func (d ImageDesc) Normalized() ImageDesc {
	if d.MipLevels == 0 {
		d.MipLevels = 1
	}
	if d.ArrayElements == 0 {
		d.ArrayElements = 1
		if d.Type == ImageTypeCube {
			d.ArrayElements = 6
		}
	}
	if d.Samples == 0 {
		d.Samples = 1
	}
	for i := range d.Extent {
		if d.Extent[i] == 0 {
			d.Extent[i] = 1
		}
	}
	return d
}

// Aspect returns the texture aspect barriers on this image cover.
func (d ImageDesc) Aspect() gputypes.TextureAspect {
	switch d.Format {
	case gputypes.TextureFormatDepth16Unorm, gputypes.TextureFormatDepth32Float,
		gputypes.TextureFormatDepth24Plus:
		return gputypes.TextureAspectDepthOnly
	default:
		return gputypes.TextureAspectAll
	}
}

func (d ImageDesc) halDescriptor(label string, usage gputypes.TextureUsage) *hal.TextureDescriptor {
	d = d.Normalized()
	dim := gputypes.TextureDimension2D
	depth := d.ArrayElements
	switch d.Type {
	case ImageType1D:
		dim = gputypes.TextureDimension1D
	case ImageType3D:
		dim = gputypes.TextureDimension3D
		depth = d.Extent[2]
	}
	return &hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: d.Extent[0], Height: d.Extent[1], DepthOrArrayLayers: depth},
		MipLevelCount: d.MipLevels,
		SampleCount:   d.Samples,
		Dimension:     dim,
		Format:        d.Format,
		Usage:         usage | d.Usage,
	}
}

// MemoryLocation selects the heap a buffer lives in.
type MemoryLocation uint8

const (
	MemoryGPUOnly MemoryLocation = iota
	MemoryCPUToGPU
	MemoryGPUToCPU
)

// BufferDesc describes a buffer resource.
type BufferDesc struct {
	Size     uint64
	Usage    gputypes.BufferUsage
	Location MemoryLocation
}

// NewBufferDesc returns a GPU-only buffer descriptor.
func NewBufferDesc(size uint64, usage gputypes.BufferUsage) BufferDesc {
	return BufferDesc{Size: size, Usage: usage}
}

// ResourceKind implements ResourceDesc.
func (BufferDesc) ResourceKind() ResourceKind { return KindBuffer }

// ResolvedUsage returns the usage a buffer created for usage ends up
// with: usage plus the descriptor's own bits and those its memory
// location implies.
func (d BufferDesc) ResolvedUsage(usage gputypes.BufferUsage) gputypes.BufferUsage {
	usage |= d.Usage
	switch d.Location {
	case MemoryCPUToGPU:
		usage |= gputypes.BufferUsageCopyDst
	case MemoryGPUToCPU:
		usage |= gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	}
	return usage
}

func (d BufferDesc) halDescriptor(label string, usage gputypes.BufferUsage) *hal.BufferDescriptor {
	return &hal.BufferDescriptor{Label: label, Size: d.Size, Usage: d.ResolvedUsage(usage)}
}

// RayTracingAccelerationDesc describes an acceleration structure. They
// are always imported; the graph never creates them.
type RayTracingAccelerationDesc struct {
	Label string
}

// ResourceKind implements ResourceDesc.
func (RayTracingAccelerationDesc) ResourceKind() ResourceKind { return KindRayTracingAcceleration }

// Resource is a concrete GPU resource: *Image, *Buffer or
// *RayTracingAcceleration.
type Resource interface {
	Kind() ResourceKind
	Label() string
}

// Image is a texture owned by a device, plus its cached views.
type Image struct {
	Raw   hal.Texture
	Desc  ImageDesc
	Usage gputypes.TextureUsage
	label string

	mu    sync.Mutex
	views map[ImageViewDesc]hal.TextureView
}

// NewImage wraps an existing texture, e.g. an acquired swapchain image.
func NewImage(raw hal.Texture, desc ImageDesc, usage gputypes.TextureUsage, label string) *Image {
	return &Image{Raw: raw, Desc: desc.Normalized(), Usage: usage, label: label}
}

// Kind implements Resource.
func (*Image) Kind() ResourceKind { return KindImage }

// Label implements Resource.
func (i *Image) Label() string { return i.label }

// ImageViewDesc selects a view of an image. The zero value is a view of
// the whole image in its own format.
type ImageViewDesc struct {
	Format         gputypes.TextureFormat
	Dimension      gputypes.TextureViewDimension
	Aspect         gputypes.TextureAspect
	BaseMipLevel   uint32
	MipLevelCount  uint32
	BaseArrayLayer uint32
}

// View returns a cached view, creating it on first use.
func (i *Image) View(device Device, desc ImageViewDesc) (hal.TextureView, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if v, ok := i.views[desc]; ok {
		return v, nil
	}
	aspect := desc.Aspect
	if aspect == 0 {
		aspect = i.Desc.Aspect()
	}
	v, err := device.CreateTextureView(i.Raw, &hal.TextureViewDescriptor{
		Label:          i.label + "_view",
		Format:         desc.Format,
		Dimension:      desc.Dimension,
		Aspect:         aspect,
		BaseMipLevel:   desc.BaseMipLevel,
		MipLevelCount:  desc.MipLevelCount,
		BaseArrayLayer: desc.BaseArrayLayer,
	})
	if err != nil {
		return nil, fmt.Errorf("create view of %q: %w", i.label, err)
	}
	if i.views == nil {
		i.views = make(map[ImageViewDesc]hal.TextureView)
	}
	i.views[desc] = v
	return v, nil
}

// Destroy releases the image's views and texture.
func (i *Image) Destroy(device Device) {
	i.mu.Lock()
	for k, v := range i.views {
		device.DestroyTextureView(v)
		delete(i.views, k)
	}
	i.mu.Unlock()
	if i.Raw != nil {
		device.DestroyTexture(i.Raw)
		i.Raw = nil
	}
}

// Buffer is a device buffer.
type Buffer struct {
	Raw   hal.Buffer
	Desc  BufferDesc
	Usage gputypes.BufferUsage
	label string
}

// NewBuffer wraps an existing buffer.
func NewBuffer(raw hal.Buffer, desc BufferDesc, usage gputypes.BufferUsage, label string) *Buffer {
	return &Buffer{Raw: raw, Desc: desc, Usage: usage, label: label}
}

// Kind implements Resource.
func (*Buffer) Kind() ResourceKind { return KindBuffer }

// Label implements Resource.
func (b *Buffer) Label() string { return b.label }

// Destroy releases the buffer.
func (b *Buffer) Destroy(device Device) {
	if b.Raw != nil {
		device.DestroyBuffer(b.Raw)
		b.Raw = nil
	}
}

// RayTracingAcceleration is an acceleration structure and its backing
// storage. The HAL exposes no acceleration-structure barrier, so the
// graph only tracks its access state.
type RayTracingAcceleration struct {
	Backing *Buffer
	Desc    RayTracingAccelerationDesc
}

// Kind implements Resource.
func (*RayTracingAcceleration) Kind() ResourceKind { return KindRayTracingAcceleration }

// Label implements Resource.
func (a *RayTracingAcceleration) Label() string { return a.Desc.Label }

// Device is the subset of hal.Device the graph uses to materialize
// resources. hal.Device satisfies it.
type Device interface {
	CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error)
	DestroyTexture(texture hal.Texture)
	CreateTextureView(texture hal.Texture, desc *hal.TextureViewDescriptor) (hal.TextureView, error)
	DestroyTextureView(view hal.TextureView)
	CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error)
	DestroyBuffer(buffer hal.Buffer)
}

// CreateImage creates a device image with the given usage bits.
func CreateImage(device Device, desc ImageDesc, usage gputypes.TextureUsage, label string) (*Image, error) {
	hd := desc.halDescriptor(label, usage)
	raw, err := device.CreateTexture(hd)
	if err != nil {
		return nil, fmt.Errorf("create image %q: %w", label, err)
	}
	return &Image{Raw: raw, Desc: desc.Normalized(), Usage: hd.Usage, label: label}, nil
}

// CreateBuffer creates a device buffer with the given usage bits.
func CreateBuffer(device Device, desc BufferDesc, usage gputypes.BufferUsage, label string) (*Buffer, error) {
	hd := desc.halDescriptor(label, usage)
	raw, err := device.CreateBuffer(hd)
	if err != nil {
		return nil, fmt.Errorf("create buffer %q: %w", label, err)
	}
	return &Buffer{Raw: raw, Desc: desc, Usage: hd.Usage, label: label}, nil
}
