// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rg

import (
	"slices"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// createNoopDevice opens a device on the noop backend.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return openDev.Device, openDev.Queue
}

// countingDevice counts resource creation on top of a real device.
type countingDevice struct {
	Device
	textures, buffers           int
	destroyedTex, destroyedBufs int
	lastTexture                 *hal.TextureDescriptor
	lastBuffer                  *hal.BufferDescriptor
}

func newCountingDevice(t *testing.T) *countingDevice {
	dev, _ := createNoopDevice(t)
	return &countingDevice{Device: dev}
}

func (d *countingDevice) CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error) {
	d.textures++
	d.lastTexture = desc
	return d.Device.CreateTexture(desc)
}

func (d *countingDevice) DestroyTexture(tex hal.Texture) {
	d.destroyedTex++
	d.Device.DestroyTexture(tex)
}

func (d *countingDevice) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	d.buffers++
	d.lastBuffer = desc
	return d.Device.CreateBuffer(desc)
}

func (d *countingDevice) DestroyBuffer(buf hal.Buffer) {
	d.destroyedBufs++
	d.Device.DestroyBuffer(buf)
}

// recordingEncoder records every barrier batch.
type recordingEncoder struct {
	textureBatches [][]hal.TextureBarrier
	bufferBatches  [][]hal.BufferBarrier
}

func (e *recordingEncoder) TransitionTextures(b []hal.TextureBarrier) {
	e.textureBatches = append(e.textureBatches, slices.Clone(b))
}

func (e *recordingEncoder) TransitionBuffers(b []hal.BufferBarrier) {
	e.bufferBatches = append(e.bufferBatches, slices.Clone(b))
}

func (e *recordingEncoder) textureBarriers() []hal.TextureBarrier {
	var out []hal.TextureBarrier
	for _, b := range e.textureBatches {
		out = append(out, b...)
	}
	return out
}

// mapCache is a TransientCache keyed by descriptor only.
type mapCache struct {
	images  map[ImageDesc][]*Image
	buffers map[BufferDesc][]*Buffer
	hits    int
}

func newMapCache() *mapCache {
	return &mapCache{images: make(map[ImageDesc][]*Image), buffers: make(map[BufferDesc][]*Buffer)}
}

func (c *mapCache) GetImage(desc ImageDesc, _ gputypes.TextureUsage) (*Image, bool) {
	list := c.images[desc.Normalized()]
	if len(list) == 0 {
		return nil, false
	}
	c.images[desc.Normalized()] = list[:len(list)-1]
	c.hits++
	return list[len(list)-1], true
}

func (c *mapCache) GetBuffer(desc BufferDesc, _ gputypes.BufferUsage) (*Buffer, bool) {
	list := c.buffers[desc]
	if len(list) == 0 {
		return nil, false
	}
	c.buffers[desc] = list[:len(list)-1]
	c.hits++
	return list[len(list)-1], true
}

func (c *mapCache) InsertImage(img *Image) {
	c.images[img.Desc] = append(c.images[img.Desc], img)
}

func (c *mapCache) InsertBuffer(buf *Buffer) {
	c.buffers[buf.Desc] = append(c.buffers[buf.Desc], buf)
}

// importedImage returns an image with no backing texture, enough for
// graph bookkeeping and barrier recording.
func importedImage(label string) *Image {
	return NewImage(nil, NewImageDesc2D(gputypes.TextureFormatRGBA8Unorm, 8, 8),
		gputypes.TextureUsageTextureBinding|gputypes.TextureUsageStorageBinding|gputypes.TextureUsageRenderAttachment, label)
}

func importedBuffer(label string) *Buffer {
	return NewBuffer(nil, NewBufferDesc(256, 0), gputypes.BufferUsageStorage|gputypes.BufferUsageUniform, label)
}

// executeGraph compiles g and records both command buffers.
func executeGraph(t *testing.T, g *RenderGraph, params ExecutionParams, transient TransientCache, swapchain *Image) (*RetiredRenderGraph, *recordingEncoder, *recordingEncoder) {
	t.Helper()
	compiled, err := g.Compile(nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	exec, err := compiled.BeginExecute(params, transient, nil)
	if err != nil {
		t.Fatalf("BeginExecute: %v", err)
	}
	mainEnc, presentEnc := &recordingEncoder{}, &recordingEncoder{}
	if err := exec.RecordMainCb(mainEnc); err != nil {
		t.Fatalf("RecordMainCb: %v", err)
	}
	retired, err := exec.RecordPresentationCb(presentEnc, swapchain)
	if err != nil {
		t.Fatalf("RecordPresentationCb: %v", err)
	}
	return retired, mainEnc, presentEnc
}
