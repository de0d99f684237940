// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"

	"github.com/pion/posecoach/keypoint"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

const (
	dotRadius    = 5.0
	dotSides     = 16
	boneWidth    = 3.0
	margin       = 12
	padding      = 8
	barHeight    = 10
	barGap       = 8
	textAscent   = 11
	textHeight   = 13
	maxTipPixels = 520
)

var (
	dotColor    = color.RGBA{R: 0x00, G: 0xe5, B: 0xff, A: 0xff}
	boneColor   = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	boxColor    = color.RGBA{A: 0x80}
	tipBoxColor = color.RGBA{A: 0x73}
	barColor    = color.RGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}
	textColor   = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	noticeColor = color.RGBA{R: 0xaa, G: 0xaa, B: 0xaa, A: 0xff}
)

// Paint draws s over dst. Scene coordinates are relative to dst's origin.
func Paint(dst draw.Image, s Scene) {
	b := dst.Bounds()

	if len(s.Segments) > 0 {
		z := vector.NewRasterizer(b.Dx(), b.Dy())
		for _, seg := range s.Segments {
			addQuad(z, seg.A, seg.B, boneWidth)
		}
		z.Draw(dst, b, image.NewUniform(boneColor), image.Point{})
	}
	if len(s.Dots) > 0 {
		z := vector.NewRasterizer(b.Dx(), b.Dy())
		for _, d := range s.Dots {
			addCircle(z, d.At, dotRadius)
		}
		z.Draw(dst, b, image.NewUniform(dotColor), image.Point{})
	}

	paintHUD(dst, s)
}

// Render composes the overlay for frame and tick at dst's size and paints it.
func (r *Renderer) Render(dst draw.Image, frame *keypoint.Frame, tick *keypoint.Tick) Scene {
	b := dst.Bounds()
	s := r.Compose(frame, tick, b.Dx(), b.Dy())
	Paint(dst, s)

	return s
}

func paintHUD(dst draw.Image, s Scene) {
	b := dst.Bounds()
	face := basicfont.Face7x13

	// Rep counter, top centre.
	w := font.MeasureString(face, s.RepLabel).Ceil()
	cx := b.Min.X + b.Dx()/2
	box := image.Rect(cx-w/2-padding, b.Min.Y+margin, cx+w/2+padding, b.Min.Y+margin+textHeight+2*padding)
	fillRect(dst, box, boxColor)
	drawText(dst, face, s.RepLabel, box.Min.X+padding, box.Min.Y+padding+textAscent, textColor)

	// Tip line, bottom left, basicfont has no bullet glyph.
	tip := strings.ReplaceAll(s.Tip, "•", "·")
	tw := min(font.MeasureString(face, tip).Ceil(), maxTipPixels, b.Dx()-2*margin-2*padding)
	tipBox := image.Rect(
		b.Min.X+margin, b.Max.Y-margin-textHeight-2*padding,
		b.Min.X+margin+tw+2*padding, b.Max.Y-margin,
	)
	fillRect(dst, tipBox, tipBoxColor)
	drawText(dst, face, tip, tipBox.Min.X+padding, tipBox.Min.Y+padding+textAscent, textColor)

	// Phase bar above the tip line at 80% opacity.
	bar := image.Rect(b.Min.X+margin, tipBox.Min.Y-barGap-barHeight, b.Max.X-margin, tipBox.Min.Y-barGap)
	fillRect(dst, bar, barColor)
	fillRect(dst, bar, fade(s.PhaseColor, 0.8))

	if s.Notice != "" {
		nw := font.MeasureString(face, s.Notice).Ceil()
		drawText(dst, face, s.Notice, cx-nw/2, b.Min.Y+b.Dy()/2, noticeColor)
	}
}

func drawText(dst draw.Image, face font.Face, text string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func fillRect(dst draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r.Intersect(dst.Bounds()), image.NewUniform(c), image.Point{}, draw.Over)
}

// fade scales a colour to alpha a, keeping it premultiplied.
func fade(c color.RGBA, a float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c.R) * a),
		G: uint8(float64(c.G) * a),
		B: uint8(float64(c.B) * a),
		A: uint8(float64(c.A) * a),
	}
}

func addCircle(z *vector.Rasterizer, c Point, r float64) {
	for i := 0; i <= dotSides; i++ {
		theta := 2 * math.Pi * float64(i) / dotSides
		x, y := float32(c.X+r*math.Cos(theta)), float32(c.Y+r*math.Sin(theta))
		if i == 0 {
			z.MoveTo(x, y)

			continue
		}
		z.LineTo(x, y)
	}
	z.ClosePath()
}

func addQuad(z *vector.Rasterizer, a, b Point, width float64) {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	// Unit normal scaled to half the width.
	nx, ny := -dy/length*width/2, dx/length*width/2

	z.MoveTo(float32(a.X+nx), float32(a.Y+ny))
	z.LineTo(float32(b.X+nx), float32(b.Y+ny))
	z.LineTo(float32(b.X-nx), float32(b.Y-ny))
	z.LineTo(float32(a.X-nx), float32(a.Y-ny))
	z.ClosePath()
}
