// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package main

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"time"

	"github.com/pion/posecoach/pose"
	"github.com/pion/posecoach/session"
)

// repPeriod is one simulated push-up.
const repPeriod = 2 * time.Second

// gradient fills a virtual camera frame with a slowly shifting background.
func gradient(seq uint64, width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	shift := uint8(seq) //nolint:gosec // Wraps on purpose
	for y := range height {
		for x := range width {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x*255/max(width, 1)) + shift,
				G: uint8(y * 255 / max(height, 1)),
				B: 0x60,
				A: 0xff,
			})
		}
	}

	return img
}

// demoPose is a side-on push-up skeleton in unit coordinates.
//
//nolint:gochecknoglobals
var demoPose = []struct {
	name string
	x, y float64
	arm  bool
}{
	{"left_shoulder", 0.35, 0.45, true},
	{"right_shoulder", 0.38, 0.46, true},
	{"left_elbow", 0.36, 0.58, true},
	{"right_elbow", 0.39, 0.59, true},
	{"left_wrist", 0.35, 0.72, false},
	{"right_wrist", 0.38, 0.72, false},
	{"left_hip", 0.58, 0.50, true},
	{"right_hip", 0.60, 0.51, true},
	{"left_knee", 0.72, 0.58, false},
	{"right_knee", 0.74, 0.59, false},
	{"left_ankle", 0.86, 0.66, false},
	{"right_ankle", 0.88, 0.67, false},
}

// demoEstimator animates demoPose so the pipeline runs without a model.
func demoEstimator() pose.Estimator {
	start := time.Now()

	return pose.EstimatorFunc(func(_ context.Context, img image.Image, _ pose.Options) ([]pose.Landmark, error) {
		b := img.Bounds()
		phase := float64(time.Since(start)%repPeriod) / float64(repPeriod)
		dip := 0.08 * (1 - math.Cos(2*math.Pi*phase)) / 2

		out := make([]pose.Landmark, 0, len(demoPose))
		for _, p := range demoPose {
			y := p.y
			if p.arm {
				y += dip
			}
			out = append(out, pose.Landmark{
				Name:  p.name,
				X:     p.x * float64(b.Dx()),
				Y:     y * float64(b.Dy()),
				Score: 0.9,
			})
		}

		return out, nil
	})
}

// writeSnapshot renders the overlay over the current camera frame.
func writeSnapshot(path string, ctrl *session.Controller) error {
	frame, ok := ctrl.Element().CurrentFrame()
	if !ok {
		frame = image.NewRGBA(image.Rect(0, 0, 640, 480))
	}

	// Keypoints are in the mirrored display frame.
	mirrored := pose.Mirror(frame)
	dst := image.NewRGBA(image.Rect(0, 0, mirrored.Bounds().Dx(), mirrored.Bounds().Dy()))
	draw.Draw(dst, dst.Bounds(), mirrored, mirrored.Bounds().Min, draw.Src)
	ctrl.Render(dst)

	out, err := os.Create(path) //nolint:gosec // Path is chosen by the user
	if err != nil {
		return err
	}
	if err := png.Encode(out, dst); err != nil {
		_ = out.Close()

		return err
	}

	return out.Close()
}
