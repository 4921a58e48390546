// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package transient recycles render graph resources between frames.
//
// A Cache parks the images and buffers a retired graph releases and hands
// them back to later frames that declare the same descriptor and usage.
// When more resources are parked than the configured limit, the least
// recently released ones are destroyed.
package transient

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rg"
	"github.com/gogpu/rg/internal/pool"
)

type imageKey struct {
	desc  rg.ImageDesc
	usage gputypes.TextureUsage
}

type bufferKey struct {
	desc  rg.BufferDesc
	usage gputypes.BufferUsage
}

// Cache implements rg.TransientCache.
type Cache struct {
	device  rg.Device
	images  *pool.Pool[imageKey, *rg.Image]
	buffers *pool.Pool[bufferKey, *rg.Buffer]
}

var _ rg.TransientCache = (*Cache)(nil)

// New creates a cache that destroys evicted resources on device. Limits
// of zero mean unlimited.
func New(device rg.Device, cfg rg.TransientConfig) *Cache {
	c := &Cache{device: device}
	c.images = pool.New(cfg.MaxImages, func(k imageKey, img *rg.Image) {
		rg.Logger().Warn("transient: evicting image", "label", img.Label(), "extent", k.desc.Extent)
		img.Destroy(device)
	})
	c.buffers = pool.New(cfg.MaxBuffers, func(k bufferKey, buf *rg.Buffer) {
		rg.Logger().Warn("transient: evicting buffer", "label", buf.Label(), "size", k.desc.Size)
		buf.Destroy(device)
	})
	return c
}

// GetImage takes a parked image matching desc and usage.
func (c *Cache) GetImage(desc rg.ImageDesc, usage gputypes.TextureUsage) (*rg.Image, bool) {
	return c.images.Take(imageKey{desc: desc.Normalized(), usage: usage | desc.Usage})
}

// GetBuffer takes a parked buffer matching desc and usage.
func (c *Cache) GetBuffer(desc rg.BufferDesc, usage gputypes.BufferUsage) (*rg.Buffer, bool) {
	return c.buffers.Take(bufferKey{desc: desc, usage: desc.ResolvedUsage(usage)})
}

// InsertImage parks img for reuse.
func (c *Cache) InsertImage(img *rg.Image) {
	c.images.Put(imageKey{desc: img.Desc.Normalized(), usage: img.Usage}, img)
}

// InsertBuffer parks buf for reuse.
func (c *Cache) InsertBuffer(buf *rg.Buffer) {
	c.buffers.Put(bufferKey{desc: buf.Desc, usage: buf.Usage}, buf)
}

// Stats contains pool statistics.
type Stats = pool.Stats

// Stats reports the image and buffer pool statistics.
func (c *Cache) Stats() (images, buffers Stats) {
	return c.images.Stats(), c.buffers.Stats()
}

// Destroy releases every parked resource.
func (c *Cache) Destroy() {
	c.images.Drain(func(_ imageKey, img *rg.Image) { img.Destroy(c.device) })
	c.buffers.Drain(func(_ bufferKey, buf *rg.Buffer) { buf.Destroy(c.device) })
}
