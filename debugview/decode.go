// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package debugview

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/gogpu/gputypes"
)

// ErrUnsupportedFormat is returned for texture formats Decode cannot read.
var ErrUnsupportedFormat = errors.New("debugview: unsupported texture format")

// Layout describes pixel data read back from a texture.
type Layout struct {
	Format   gputypes.TextureFormat
	Width    uint32
	Height   uint32
	RowPitch uint32 // bytes per row including padding
}

// BytesPerPixel returns the texel size of format, or 0 if Decode does not
// support it.
func BytesPerPixel(format gputypes.TextureFormat) uint32 {
	switch format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm:
		return 4
	case gputypes.TextureFormatRGBA16Float:
		return 8
	case gputypes.TextureFormatRGBA32Float:
		return 16
	default:
		return 0
	}
}

// Decode converts readback data to an 8-bit image. Float formats are
// treated as linear HDR: they are scaled by exposure, clamped and encoded
// to sRGB. An exposure of 0 means 1.
func Decode(data []byte, l Layout, exposure float32) (*image.NRGBA, error) {
	bpp := BytesPerPixel(l.Format)
	if bpp == 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, l.Format)
	}
	tight := l.Width * bpp
	if l.RowPitch < tight {
		return nil, fmt.Errorf("debugview: row pitch %d below %d bytes of pixels", l.RowPitch, tight)
	}
	if l.Height > 0 {
		// The last row may omit its padding.
		need := uint64(l.RowPitch)*uint64(l.Height-1) + uint64(tight)
		if uint64(len(data)) < need {
			return nil, fmt.Errorf("debugview: %d bytes of data, layout needs %d", len(data), need)
		}
	}
	if exposure == 0 {
		exposure = 1
	}

	img := image.NewNRGBA(image.Rect(0, 0, int(l.Width), int(l.Height)))
	for y := range l.Height {
		row := data[y*l.RowPitch : y*l.RowPitch+tight]
		out := img.Pix[int(y)*img.Stride:]
		for x := range l.Width {
			px := row[x*bpp : (x+1)*bpp]
			o := out[x*4 : x*4+4]
			switch l.Format {
			case gputypes.TextureFormatRGBA8Unorm:
				copy(o, px)
			case gputypes.TextureFormatBGRA8Unorm:
				o[0], o[1], o[2], o[3] = px[2], px[1], px[0], px[3]
			case gputypes.TextureFormatRGBA16Float:
				for c := range 4 {
					o[c] = encodeFloat(halfToFloat32(binary.LittleEndian.Uint16(px[c*2:])), exposure, c == 3)
				}
			case gputypes.TextureFormatRGBA32Float:
				for c := range 4 {
					o[c] = encodeFloat(math.Float32frombits(binary.LittleEndian.Uint32(px[c*4:])), exposure, c == 3)
				}
			}
		}
	}
	return img, nil
}

func encodeFloat(v, exposure float32, alpha bool) uint8 {
	if alpha {
		return unorm8(v)
	}
	return unorm8(linearToSRGB(v * exposure))
}

func unorm8(v float32) uint8 {
	// NaN compares false and lands on 0.
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}

func linearToSRGB(v float32) float32 {
	if v <= 0.0031308 {
		return v * 12.92
	}
	return float32(1.055*math.Pow(float64(v), 1/2.4) - 0.055)
}

// halfToFloat32 widens an IEEE 754 binary16 value.
func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h) & 0x3ff

	switch exp {
	case 0:
		// Zero or subnormal: mant * 2^-24.
		v := float32(mant) / (1 << 24)
		if sign != 0 {
			v = -v
		}
		return v
	case 0x1f:
		return math.Float32frombits(sign | 0x7f800000 | mant<<13)
	default:
		return math.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
	}
}
