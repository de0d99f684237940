// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package pose

import (
	"context"
	"image"
	"image/draw"
	"math"

	"github.com/bamiaux/rez"
)

type downscaler struct {
	Estimator
	maxSide int
	filter  rez.Filter
}

// Downscale wraps est so frames whose longer side exceeds maxSide are shrunk
// before estimation. Landmarks are scaled back to source pixels.
func Downscale(est Estimator, maxSide int) Estimator {
	if maxSide <= 0 {
		return est
	}

	return &downscaler{
		Estimator: est,
		maxSide:   maxSide,
		filter:    rez.NewBilinearFilter(),
	}
}

func (d *downscaler) Estimate(ctx context.Context, img image.Image, opts Options) ([]Landmark, error) {
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	if max(srcW, srcH) <= d.maxSide {
		return d.Estimator.Estimate(ctx, img, opts)
	}

	scale := float64(d.maxSide) / float64(max(srcW, srcH))
	w, h := evenAtLeast2(float64(srcW)*scale), evenAtLeast2(float64(srcH)*scale)

	small, err := d.resize(img, w, h)
	if err != nil {
		return d.Estimator.Estimate(ctx, img, opts)
	}

	landmarks, err := d.Estimator.Estimate(ctx, small, opts)
	if err != nil {
		return nil, err
	}

	sx, sy := float64(srcW)/float64(w), float64(srcH)/float64(h)
	for i := range landmarks {
		landmarks[i].X *= sx
		landmarks[i].Y *= sy
	}

	return landmarks, nil
}

func (d *downscaler) resize(img image.Image, w, h int) (image.Image, error) {
	rect := image.Rect(0, 0, w, h)

	switch src := img.(type) {
	case *image.YCbCr:
		dst := image.NewYCbCr(rect, src.SubsampleRatio)
		if err := rez.Convert(dst, src, d.filter); err != nil {
			return nil, err
		}

		return dst, nil
	case *image.RGBA:
		dst := image.NewRGBA(rect)
		if err := rez.Convert(dst, src, d.filter); err != nil {
			return nil, err
		}

		return dst, nil
	default:
		b := img.Bounds()
		rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
		dst := image.NewRGBA(rect)
		if err := rez.Convert(dst, rgba, d.filter); err != nil {
			return nil, err
		}

		return dst, nil
	}
}

func evenAtLeast2(v float64) int {
	n := int(math.Round(v/2)) * 2

	return max(n, 2)
}
