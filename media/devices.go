// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"sync"
	"sync/atomic"

	"github.com/pion/logging"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
)

// DeviceCapturer captures from host cameras through pion/mediadevices. Camera
// drivers register themselves on import, so a binary must import
// github.com/pion/mediadevices/pkg/driver/camera for any device to show up.
type DeviceCapturer struct {
	opened atomic.Uint64
	log    logging.LeveledLogger
}

// NewDeviceCapturer creates a capturer over the registered camera drivers.
func NewDeviceCapturer(loggerFactory logging.LoggerFactory) *DeviceCapturer {
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}

	return &DeviceCapturer{log: loggerFactory.NewLogger("device_capturer")}
}

// EnumerateDevices lists the registered video inputs.
func (c *DeviceCapturer) EnumerateDevices(context.Context) ([]DeviceDescriptor, error) {
	var out []DeviceDescriptor
	for _, info := range mediadevices.EnumerateDevices() {
		if info.Kind != mediadevices.VideoInput {
			continue
		}
		out = append(out, DeviceDescriptor{
			ID:    info.DeviceID,
			Label: info.Label,
			Kind:  KindVideoInput,
		})
	}

	return out, nil
}

// Open acquires a camera stream. Desktop drivers expose no facing
// information, so c.Facing is not applied.
func (c *DeviceCapturer) Open(ctx context.Context, sc StreamConstraints) (*Stream, error) {
	devices, err := c.EnumerateDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: no video input registered", ErrDeviceNotFound)
	}

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: videoConstraints(sc),
	})
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}

		return nil, fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	}

	var tracks []Track
	for _, t := range stream.GetVideoTracks() {
		vt, ok := t.(*mediadevices.VideoTrack)
		if !ok {
			_ = t.Close()

			continue
		}
		// Frames outlive the reader's buffer in the element, so copy them.
		tracks = append(tracks, &deviceTrack{track: vt, reader: vt.NewReader(true)})
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: stream has no video track", ErrDeviceNotFound)
	}

	n := c.opened.Add(1)
	c.log.Infof("opened camera stream %d with %d track(s)", n, len(tracks))

	return &Stream{
		ID:     fmt.Sprintf("camera-%d", n),
		Tracks: tracks,
		Width:  sc.Width,
		Height: sc.Height,
	}, nil
}

// videoConstraints asks for sc's size as an ideal and its device id, when
// set, as an exact match.
func videoConstraints(sc StreamConstraints) func(*mediadevices.MediaTrackConstraints) {
	return func(constraint *mediadevices.MediaTrackConstraints) {
		constraint.Width = prop.Int(sc.Width)
		constraint.Height = prop.Int(sc.Height)
		if sc.DeviceID != "" {
			constraint.DeviceID = prop.StringExact(sc.DeviceID)
		}
	}
}

type deviceTrack struct {
	track   *mediadevices.VideoTrack
	reader  video.Reader
	once    sync.Once
	stopped atomic.Bool
}

func (t *deviceTrack) ID() string {
	return t.track.ID()
}

func (t *deviceTrack) Read() (image.Image, func(), error) {
	if t.stopped.Load() {
		return nil, func() {}, ErrTrackEnded
	}
	img, release, err := t.reader.Read()
	if err != nil {
		return nil, func() {}, fmt.Errorf("%w: %w", ErrTrackEnded, err)
	}

	return img, release, nil
}

func (t *deviceTrack) Close() error {
	var err error
	t.once.Do(func() {
		t.stopped.Store(true)
		err = t.track.Close()
	})

	return err
}

func (t *deviceTrack) Stopped() bool {
	return t.stopped.Load()
}
