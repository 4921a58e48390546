// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package debugview turns render graph debug captures into viewable
// images: readback passes, HDR decoding, thumbnails and labelled contact
// sheets written as PNG.
package debugview

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Thumbnail scales src to fit within maxSize x maxSize, keeping its aspect
// ratio. Images that already fit are copied unscaled.
func Thumbnail(src image.Image, maxSize int) *image.NRGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSize > 0 && (w > maxSize || h > maxSize) {
		if w >= h {
			h = max(h*maxSize/w, 1)
			w = maxSize
		} else {
			w = max(w*maxSize/h, 1)
			h = maxSize
		}
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

// Tile is one labelled image of a contact sheet.
type Tile struct {
	Label string
	Image image.Image
}

// SheetOptions configures ContactSheet.
type SheetOptions struct {
	Columns    int // default 4
	TileSize   int // default 128
	Padding    int // default 4, negative for none
	Labelled   bool
	Background color.Color
}

const labelHeight = 16

// ContactSheet lays tiles out in a grid of thumbnails, each optionally
// captioned with its label.
func ContactSheet(tiles []Tile, opts SheetOptions) *image.NRGBA {
	if opts.Columns <= 0 {
		opts.Columns = 4
	}
	if opts.TileSize <= 0 {
		opts.TileSize = 128
	}
	if opts.Padding < 0 {
		opts.Padding = 0
	} else if opts.Padding == 0 {
		opts.Padding = 4
	}
	bg := opts.Background
	if bg == nil {
		bg = color.NRGBA{R: 32, G: 32, B: 32, A: 255}
	}

	cols := min(opts.Columns, max(len(tiles), 1))
	rows := (len(tiles) + cols - 1) / cols
	cellW := opts.TileSize + opts.Padding
	cellH := opts.TileSize + opts.Padding
	if opts.Labelled {
		cellH += labelHeight
	}
	sheet := image.NewNRGBA(image.Rect(0, 0, cols*cellW+opts.Padding, max(rows, 1)*cellH+opts.Padding))
	xdraw.Draw(sheet, sheet.Bounds(), image.NewUniform(bg), image.Point{}, xdraw.Src)

	for i, t := range tiles {
		x := opts.Padding + (i%cols)*cellW
		y := opts.Padding + (i/cols)*cellH
		thumb := Thumbnail(t.Image, opts.TileSize)
		// Center the thumbnail in its cell.
		off := image.Pt(x+(opts.TileSize-thumb.Rect.Dx())/2, y+(opts.TileSize-thumb.Rect.Dy())/2)
		xdraw.Draw(sheet, thumb.Rect.Add(off), thumb, image.Point{}, xdraw.Over)

		if opts.Labelled && t.Label != "" {
			drawLabel(sheet, t.Label, x, y+opts.TileSize, opts.TileSize)
		}
	}
	return sheet
}

// drawLabel writes label below a tile, truncated to width pixels.
func drawLabel(dst *image.NRGBA, label string, x, y, width int) {
	face := basicfont.Face7x13
	for len(label) > 1 && font.MeasureString(face, label).Ceil() > width {
		label = label[:len(label)-1]
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + face.Ascent + 1)},
	}
	d.DrawString(label)
}

// WritePNG encodes img as PNG.
func WritePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("debugview: encode png: %w", err)
	}
	return nil
}
