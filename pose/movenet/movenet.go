// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

// Package movenet runs a single-pose MoveNet model through the OpenCV DNN
// module.
package movenet

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/pion/posecoach/pose"
	"gocv.io/x/gocv"
)

// DefaultInputSize is the square input side of the lightning model.
const DefaultInputSize = 192

// cocoNames is the model's output order.
var cocoNames = []string{ //nolint:gochecknoglobals // Fixed model output layout
	"nose", "left_eye", "right_eye", "left_ear", "right_ear",
	"left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
	"left_wrist", "right_wrist", "left_hip", "right_hip",
	"left_knee", "right_knee", "left_ankle", "right_ankle",
}

var (
	// ErrModel is returned when the model cannot be loaded.
	ErrModel = errors.New("failed to load movenet model")
	// ErrOutput is returned when the network output has an unexpected shape.
	ErrOutput = errors.New("unexpected movenet output")
)

// Estimator is a pose.Estimator over an OpenCV DNN network.
type Estimator struct {
	mu        sync.Mutex
	net       gocv.Net
	inputSize int
}

// Open loads the ONNX model at path.
func Open(path string, inputSize int) (*Estimator, error) {
	if inputSize <= 0 {
		inputSize = DefaultInputSize
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModel, err)
	}

	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrModel, path)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		_ = net.Close()

		return nil, fmt.Errorf("%w: %w", ErrModel, err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		_ = net.Close()

		return nil, fmt.Errorf("%w: %w", ErrModel, err)
	}

	return &Estimator{net: net, inputSize: inputSize}, nil
}

// Loader returns a pose.Loader opening the model at path.
func Loader(path string, inputSize int) pose.Loader {
	return func(context.Context) (pose.Estimator, error) {
		est, err := Open(path, inputSize)
		if err != nil {
			return nil, err
		}

		return est, nil
	}
}

// Estimate runs the network on img. Landmarks are in img pixels, in the
// mirrored frame when opts.FlipHorizontal is set.
func (e *Estimator) Estimate(ctx context.Context, img image.Image, opts pose.Options) ([]pose.Landmark, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, err
	}
	defer func() { _ = mat.Close() }()

	if opts.FlipHorizontal {
		gocv.Flip(mat, &mat, 1)
	}

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(e.inputSize, e.inputSize), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer func() { _ = blob.Close() }()

	e.mu.Lock()
	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	e.mu.Unlock()
	defer func() { _ = out.Close() }()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutput, err)
	}

	b := img.Bounds()

	return decode(data, b.Dx(), b.Dy())
}

// Close releases the network.
func (e *Estimator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.net.Close()
}

// decode reads [y, x, score] triples normalised to the input square and
// scales them to a width x height frame.
func decode(data []float32, width, height int) ([]pose.Landmark, error) {
	if len(data) < len(cocoNames)*3 {
		return nil, fmt.Errorf("%w: %d values", ErrOutput, len(data))
	}

	landmarks := make([]pose.Landmark, 0, len(cocoNames))
	for i, name := range cocoNames {
		y, x, score := data[i*3], data[i*3+1], data[i*3+2]
		landmarks = append(landmarks, pose.Landmark{
			Name:  name,
			X:     float64(x) * float64(width),
			Y:     float64(y) * float64(height),
			Score: float64(score),
		})
	}

	return landmarks, nil
}
