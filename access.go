// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rg

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// AccessType is a semantic description of how a pass touches a resource.
// Each access type maps to an image layout and to the texture and buffer
// usage bits that resources must be created with to allow that access.
type AccessType uint8

// Read accesses.
const (
	// AccessNothing is the state of a resource that has not been accessed
	// yet. Transitioning out of it discards previous contents.
	AccessNothing AccessType = iota
	AccessIndirectBuffer
	AccessIndexBuffer
	AccessVertexBuffer
	AccessVertexShaderReadUniformBuffer
	AccessVertexShaderReadSampledImageOrUniformTexelBuffer
	AccessVertexShaderReadOther
	AccessFragmentShaderReadUniformBuffer
	AccessFragmentShaderReadSampledImageOrUniformTexelBuffer
	AccessFragmentShaderReadColorInputAttachment
	AccessFragmentShaderReadDepthStencilInputAttachment
	AccessFragmentShaderReadOther
	AccessColorAttachmentRead
	AccessDepthStencilAttachmentRead
	AccessComputeShaderReadUniformBuffer
	AccessComputeShaderReadSampledImageOrUniformTexelBuffer
	AccessComputeShaderReadOther
	AccessAnyShaderReadUniformBuffer
	AccessAnyShaderReadUniformBufferOrVertexBuffer
	AccessAnyShaderReadSampledImageOrUniformTexelBuffer
	AccessAnyShaderReadOther
	AccessTransferRead
	AccessHostRead
	AccessPresent
	AccessRayTracingShaderReadUniformBuffer
	AccessRayTracingShaderReadSampledImageOrUniformTexelBuffer
	AccessRayTracingShaderReadOther
	AccessRayTracingShaderReadAccelerationStructure
	AccessAccelerationStructureBuildRead
)

// Write accesses.
const (
	AccessVertexShaderWrite AccessType = iota + AccessAccelerationStructureBuildRead + 1
	AccessFragmentShaderWrite
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentWrite
	AccessDepthAttachmentWriteStencilReadOnly
	AccessStencilAttachmentWriteDepthReadOnly
	AccessComputeShaderWrite
	AccessAnyShaderWrite
	AccessTransferWrite
	AccessHostPreinitialized
	AccessHostWrite
	AccessAccelerationStructureBuildWrite
	AccessColorAttachmentReadWrite
	AccessGeneral

	accessTypeCount
)

// SyncType selects whether a transition into an access type that the
// resource is already in still emits a barrier.
type SyncType uint8

const (
	// AlwaysSync always emits a barrier, even for same-access transitions.
	// Required between two writes of the same kind (write-after-write).
	AlwaysSync SyncType = iota

	// SkipSyncIfSameAccessType omits the barrier when the resource is
	// already in the requested access type.
	SkipSyncIfSameAccessType
)

func (s SyncType) String() string {
	if s == AlwaysSync {
		return "AlwaysSync"
	}
	return "SkipSyncIfSameAccessType"
}

// ImageLayout is the memory layout an image must be in for an access type.
type ImageLayout uint8

const (
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutColorAttachmentOptimal
	LayoutDepthStencilAttachmentOptimal
	LayoutDepthStencilReadOnlyOptimal
	LayoutDepthAttachmentStencilReadOnlyOptimal
	LayoutDepthReadOnlyStencilAttachmentOptimal
	LayoutShaderReadOnlyOptimal
	LayoutTransferSrcOptimal
	LayoutTransferDstOptimal
	LayoutPreinitialized
	LayoutPresentSrc
)

// accessClass groups access types by which PassBuilder call may use them.
type accessClass uint8

const (
	classNone accessClass = iota
	classRead
	classRasterRead
	classWrite
	classRasterWrite
)

func (c accessClass) String() string {
	switch c {
	case classRead:
		return "read"
	case classRasterRead:
		return "raster read"
	case classWrite:
		return "write"
	case classRasterWrite:
		return "raster write"
	default:
		return "none"
	}
}

type accessInfo struct {
	name   string
	class  accessClass
	write  bool
	layout ImageLayout
	image  gputypes.TextureUsage
	buffer gputypes.BufferUsage
}

const (
	texSampled    = gputypes.TextureUsageTextureBinding
	texStorage    = gputypes.TextureUsageStorageBinding
	texAttachment = gputypes.TextureUsageRenderAttachment
	texCopySrc    = gputypes.TextureUsageCopySrc
	texCopyDst    = gputypes.TextureUsageCopyDst

	bufUniform  = gputypes.BufferUsageUniform
	bufStorage  = gputypes.BufferUsageStorage
	bufIndex    = gputypes.BufferUsageIndex
	bufVertex   = gputypes.BufferUsageVertex
	bufIndirect = gputypes.BufferUsageIndirect
	bufCopySrc  = gputypes.BufferUsageCopySrc
	bufCopyDst  = gputypes.BufferUsageCopyDst
)

var accessInfos = [accessTypeCount]accessInfo{
	AccessNothing:        {name: "Nothing", layout: LayoutUndefined},
	AccessIndirectBuffer: {name: "IndirectBuffer", class: classRead, buffer: bufIndirect},
	AccessIndexBuffer:    {name: "IndexBuffer", class: classRead, buffer: bufIndex},
	AccessVertexBuffer:   {name: "VertexBuffer", class: classRead, buffer: bufVertex},

	AccessVertexShaderReadUniformBuffer: {name: "VertexShaderReadUniformBuffer", class: classRead, buffer: bufUniform},
	AccessVertexShaderReadSampledImageOrUniformTexelBuffer: {
		name: "VertexShaderReadSampledImageOrUniformTexelBuffer", class: classRead,
		layout: LayoutShaderReadOnlyOptimal, image: texSampled, buffer: bufStorage,
	},
	AccessVertexShaderReadOther: {name: "VertexShaderReadOther", class: classRead, layout: LayoutGeneral, image: texStorage, buffer: bufStorage},

	AccessFragmentShaderReadUniformBuffer: {name: "FragmentShaderReadUniformBuffer", class: classRead, buffer: bufUniform},
	AccessFragmentShaderReadSampledImageOrUniformTexelBuffer: {
		name: "FragmentShaderReadSampledImageOrUniformTexelBuffer", class: classRead,
		layout: LayoutShaderReadOnlyOptimal, image: texSampled, buffer: bufStorage,
	},
	AccessFragmentShaderReadColorInputAttachment: {
		name: "FragmentShaderReadColorInputAttachment", class: classRead,
		layout: LayoutShaderReadOnlyOptimal, image: texAttachment,
	},
	AccessFragmentShaderReadDepthStencilInputAttachment: {
		name: "FragmentShaderReadDepthStencilInputAttachment", class: classRead,
		layout: LayoutDepthStencilReadOnlyOptimal, image: texAttachment,
	},
	AccessFragmentShaderReadOther: {name: "FragmentShaderReadOther", class: classRead, layout: LayoutGeneral, image: texStorage, buffer: bufStorage},

	AccessColorAttachmentRead: {
		name: "ColorAttachmentRead", class: classRasterRead,
		layout: LayoutColorAttachmentOptimal, image: texAttachment,
	},
	AccessDepthStencilAttachmentRead: {
		name: "DepthStencilAttachmentRead", class: classRasterRead,
		layout: LayoutDepthStencilReadOnlyOptimal, image: texAttachment,
	},

	AccessComputeShaderReadUniformBuffer: {name: "ComputeShaderReadUniformBuffer", class: classRead, buffer: bufUniform},
	AccessComputeShaderReadSampledImageOrUniformTexelBuffer: {
		name: "ComputeShaderReadSampledImageOrUniformTexelBuffer", class: classRead,
		layout: LayoutShaderReadOnlyOptimal, image: texSampled, buffer: bufStorage,
	},
	AccessComputeShaderReadOther: {name: "ComputeShaderReadOther", class: classRead, layout: LayoutGeneral, image: texStorage, buffer: bufStorage},

	AccessAnyShaderReadUniformBuffer:               {name: "AnyShaderReadUniformBuffer", class: classRead, buffer: bufUniform},
	AccessAnyShaderReadUniformBufferOrVertexBuffer: {name: "AnyShaderReadUniformBufferOrVertexBuffer", class: classRead, buffer: bufUniform | bufVertex},
	AccessAnyShaderReadSampledImageOrUniformTexelBuffer: {
		name: "AnyShaderReadSampledImageOrUniformTexelBuffer", class: classRead,
		layout: LayoutShaderReadOnlyOptimal, image: texSampled, buffer: bufStorage,
	},
	AccessAnyShaderReadOther: {name: "AnyShaderReadOther", class: classRead, layout: LayoutGeneral, image: texStorage, buffer: bufStorage},

	AccessTransferRead: {name: "TransferRead", class: classRead, layout: LayoutTransferSrcOptimal, image: texCopySrc, buffer: bufCopySrc},
	AccessHostRead:     {name: "HostRead", class: classRead, layout: LayoutGeneral, buffer: gputypes.BufferUsageMapRead},
	AccessPresent:      {name: "Present", class: classRead, layout: LayoutPresentSrc},

	AccessRayTracingShaderReadUniformBuffer: {name: "RayTracingShaderReadUniformBuffer", class: classRead, buffer: bufUniform},
	AccessRayTracingShaderReadSampledImageOrUniformTexelBuffer: {
		name: "RayTracingShaderReadSampledImageOrUniformTexelBuffer", class: classRead,
		layout: LayoutShaderReadOnlyOptimal, image: texSampled, buffer: bufStorage,
	},
	AccessRayTracingShaderReadOther:                 {name: "RayTracingShaderReadOther", class: classRead, layout: LayoutGeneral, image: texStorage, buffer: bufStorage},
	AccessRayTracingShaderReadAccelerationStructure: {name: "RayTracingShaderReadAccelerationStructure", class: classRead, buffer: bufStorage},
	AccessAccelerationStructureBuildRead:            {name: "AccelerationStructureBuildRead", class: classRead, buffer: bufStorage},

	AccessVertexShaderWrite:   {name: "VertexShaderWrite", class: classWrite, write: true, layout: LayoutGeneral, image: texStorage, buffer: bufStorage},
	AccessFragmentShaderWrite: {name: "FragmentShaderWrite", class: classWrite, write: true, layout: LayoutGeneral, image: texStorage, buffer: bufStorage},
	AccessColorAttachmentWrite: {
		name: "ColorAttachmentWrite", class: classRasterWrite, write: true,
		layout: LayoutColorAttachmentOptimal, image: texAttachment,
	},
	AccessDepthStencilAttachmentWrite: {
		name: "DepthStencilAttachmentWrite", class: classRasterWrite, write: true,
		layout: LayoutDepthStencilAttachmentOptimal, image: texAttachment,
	},
	AccessDepthAttachmentWriteStencilReadOnly: {
		name: "DepthAttachmentWriteStencilReadOnly", class: classRasterWrite, write: true,
		layout: LayoutDepthAttachmentStencilReadOnlyOptimal, image: texAttachment,
	},
	AccessStencilAttachmentWriteDepthReadOnly: {
		name: "StencilAttachmentWriteDepthReadOnly", class: classRasterWrite, write: true,
		layout: LayoutDepthReadOnlyStencilAttachmentOptimal, image: texAttachment,
	},
	AccessComputeShaderWrite: {name: "ComputeShaderWrite", class: classWrite, write: true, layout: LayoutGeneral, image: texStorage, buffer: bufStorage},
	AccessAnyShaderWrite:     {name: "AnyShaderWrite", class: classWrite, write: true, layout: LayoutGeneral, image: texStorage, buffer: bufStorage},
	AccessTransferWrite:      {name: "TransferWrite", class: classWrite, write: true, layout: LayoutTransferDstOptimal, image: texCopyDst, buffer: bufCopyDst},
	AccessHostPreinitialized: {name: "HostPreinitialized", write: true, layout: LayoutPreinitialized},
	AccessHostWrite:          {name: "HostWrite", class: classWrite, write: true, layout: LayoutGeneral, buffer: gputypes.BufferUsageMapWrite},
	AccessAccelerationStructureBuildWrite: {
		name: "AccelerationStructureBuildWrite", class: classWrite, write: true, buffer: bufStorage,
	},
	AccessColorAttachmentReadWrite: {
		name: "ColorAttachmentReadWrite", class: classWrite, write: true,
		layout: LayoutColorAttachmentOptimal, image: texAttachment,
	},
	AccessGeneral: {
		name: "General", class: classWrite, write: true, layout: LayoutGeneral,
		image: texStorage | texSampled, buffer: bufStorage,
	},
}

func (a AccessType) info() accessInfo {
	if a >= accessTypeCount {
		return accessInfo{name: fmt.Sprintf("AccessType(%d)", uint8(a))}
	}
	return accessInfos[a]
}

// String returns the access type name.
func (a AccessType) String() string { return a.info().name }

// IsWrite reports whether the access modifies the resource.
func (a AccessType) IsWrite() bool { return a.info().write }

// ImageLayout returns the layout an image must be in for this access.
func (a AccessType) ImageLayout() ImageLayout { return a.info().layout }

// TextureUsage returns the texture usage bits implied by this access.
func (a AccessType) TextureUsage() gputypes.TextureUsage { return a.info().image }

// BufferUsage returns the buffer usage bits implied by this access.
func (a AccessType) BufferUsage() gputypes.BufferUsage { return a.info().buffer }

// PassResourceAccessType pairs an access type with its sync policy.
type PassResourceAccessType struct {
	AccessType AccessType
	SyncType   SyncType
}

func checkAccessClass(pass string, access AccessType, want accessClass, call string) error {
	if got := access.info().class; got != want {
		return newError(KindAccessTypeMismatch, pass,
			"%s is a %s access, %s requires a %s access", access, got, call, want)
	}
	return nil
}
