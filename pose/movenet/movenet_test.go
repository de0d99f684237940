// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package movenet

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pion/posecoach/keypoint"
	"github.com/pion/posecoach/pose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	data := make([]float32, 17*3)
	// left_wrist is index 9.
	data[27], data[28], data[29] = 0.5, 0.25, 0.9

	got, err := decode(data, 640, 480)
	require.NoError(t, err)
	require.Len(t, got, 17)

	wrist := got[9]
	assert.Equal(t, "left_wrist", wrist.Name)
	assert.InDelta(t, 160, wrist.X, 1e-3)
	assert.InDelta(t, 240, wrist.Y, 1e-3)
	assert.InDelta(t, 0.9, wrist.Score, 1e-6)

	// Face points fall outside the joint vocabulary and are dropped later.
	f := pose.Normalize(0, got, 640, 480, 0)
	assert.Equal(t, len(keypoint.Joints()), f.Len())
}

func TestDecode_ShortOutput(t *testing.T) {
	_, err := decode(make([]float32, 10), 1, 1)
	require.ErrorIs(t, err, ErrOutput)
}

func TestLoader_MissingModel(t *testing.T) {
	rt, err := pose.NewRuntime(Loader(filepath.Join(t.TempDir(), "missing.onnx"), 0))
	require.NoError(t, err)

	_, err = rt.Ensure(context.Background())
	require.ErrorIs(t, err, pose.ErrLoad)
}
