// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package pose samples body keypoints from a live video source.
package pose

import (
	"context"
	"image"
	"image/draw"
)

// Landmark is one raw estimator output in source pixel coordinates.
type Landmark struct {
	Name  string
	X     float64
	Y     float64
	Score float64
}

// Options controls a single estimation call.
type Options struct {
	// FlipHorizontal mirrors the frame before estimation so that left and
	// right match what a user sees in a front camera preview.
	FlipHorizontal bool
}

// Estimator turns a video frame into named landmarks. Implementations need
// not be safe for concurrent use; the sampler keeps at most one call in
// flight.
type Estimator interface {
	Estimate(ctx context.Context, img image.Image, opts Options) ([]Landmark, error)
	Close() error
}

// EstimatorFunc adapts a function to the Estimator interface.
type EstimatorFunc func(ctx context.Context, img image.Image, opts Options) ([]Landmark, error)

// Estimate calls f.
func (f EstimatorFunc) Estimate(ctx context.Context, img image.Image, opts Options) ([]Landmark, error) {
	return f(ctx, img, opts)
}

// Close is a no-op.
func (f EstimatorFunc) Close() error {
	return nil
}

// Mirror returns a horizontally flipped copy of img with its origin at (0, 0).
func Mirror(img image.Image) *image.RGBA {
	b := img.Bounds()
	src, ok := img.(*image.RGBA)
	if !ok {
		src = image.NewRGBA(b)
		draw.Draw(src, b, img, b.Min, draw.Src)
	}

	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		so := src.PixOffset(b.Min.X, b.Min.Y+y)
		do := dst.PixOffset(0, y)
		for x := 0; x < w; x++ {
			s := so + x*4
			d := do + (w-1-x)*4
			copy(dst.Pix[d:d+4], src.Pix[s:s+4])
		}
	}

	return dst
}
