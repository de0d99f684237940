// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package media

import (
	"testing"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/stretchr/testify/assert"
)

func TestVideoConstraints_IdealSizeExactDevice(t *testing.T) {
	var c mediadevices.MediaTrackConstraints
	videoConstraints(StreamConstraints{Width: 1280, Height: 720, DeviceID: "cam0"})(&c)

	assert.Equal(t, prop.Int(1280), c.Width)
	assert.Equal(t, prop.Int(720), c.Height)
	assert.Equal(t, prop.StringExact("cam0"), c.DeviceID)

	var unset mediadevices.MediaTrackConstraints
	videoConstraints(StreamConstraints{Width: 640, Height: 480})(&unset)
	assert.Nil(t, unset.DeviceID)
}
