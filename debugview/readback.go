// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package debugview

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rg"
	"github.com/gogpu/wgpu/hal"
)

// copyPitchAlignment is the BytesPerRow alignment of texture to buffer
// copies.
const copyPitchAlignment = 256

var (
	// ErrNoHALEncoder is returned when the pass encoder cannot copy.
	ErrNoHALEncoder = errors.New("debugview: pass encoder is not a hal.CommandEncoder")

	// ErrNotRecorded is returned when reading a capture whose pass has not
	// been recorded.
	ErrNotRecorded = errors.New("debugview: capture pass not recorded")
)

// Capture holds the staging buffer a readback pass copies into. The data
// is valid once the command buffer holding the pass has completed.
type Capture struct {
	Name   string
	Layout Layout

	device rg.Device
	buffer hal.Buffer
	size   uint64
}

// ReadbackPass adds a pass named "readback: <name>" that copies mip 0 of
// img into a staging buffer. The returned Capture is filled in when the
// pass is recorded.
func ReadbackPass(g *rg.RenderGraph, name string, img rg.Handle[rg.ImageDesc]) (*Capture, error) {
	desc := img.Desc()
	bpp := BytesPerPixel(desc.Format)
	if bpp == 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, desc.Format)
	}
	width, height := desc.Extent2D()
	c := &Capture{
		Name: name,
		Layout: Layout{
			Format:   desc.Format,
			Width:    width,
			Height:   height,
			RowPitch: (width*bpp + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1),
		},
	}

	err := g.Pass("readback: "+name, func(pb *rg.PassBuilder) error {
		src := rg.Read(pb, img, rg.AccessTransferRead)
		pb.Render(func(api *rg.PassAPI) error {
			return c.record(api, src)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Capture) record(api *rg.PassAPI, src rg.Ref[rg.ImageDesc, rg.Srv]) error {
	enc, ok := api.HALEncoder()
	if !ok {
		return ErrNoHALEncoder
	}
	img, err := api.Resources().Image(src)
	if err != nil {
		return err
	}

	c.Release()
	c.device = api.Device()
	c.size = uint64(c.Layout.RowPitch) * uint64(c.Layout.Height)
	staging, err := rg.CreateBuffer(c.device,
		rg.NewBufferDesc(c.size, gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst), 0, "readback_"+c.Name)
	if err != nil {
		return err
	}
	c.buffer = staging.Raw

	enc.CopyTextureToBuffer(img.Raw, c.buffer, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: c.Layout.RowPitch, RowsPerImage: c.Layout.Height},
		TextureBase:  hal.ImageCopyTexture{Texture: img.Raw, MipLevel: 0},
		Size:         hal.Extent3D{Width: c.Layout.Width, Height: c.Layout.Height, DepthOrArrayLayers: 1},
	}})
	return nil
}

// Recorded reports whether the capture pass has been recorded.
func (c *Capture) Recorded() bool { return c.buffer != nil }

// Read reads the staging buffer through queue and decodes it. Call it
// after the frame's submission has completed.
func (c *Capture) Read(queue hal.Queue, exposure float32) (*image.NRGBA, error) {
	if c.buffer == nil {
		return nil, ErrNotRecorded
	}
	data := make([]byte, c.size)
	if err := queue.ReadBuffer(c.buffer, 0, data); err != nil {
		return nil, fmt.Errorf("debugview: read %q: %w", c.Name, err)
	}
	return Decode(data, c.Layout, exposure)
}

// Release destroys the staging buffer. The capture can be recorded again
// afterwards.
func (c *Capture) Release() {
	if c.buffer != nil && c.device != nil {
		c.device.DestroyBuffer(c.buffer)
	}
	c.buffer = nil
}
