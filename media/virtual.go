// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package media

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"
)

// VirtualDevice describes one camera exposed by a VirtualCapturer.
type VirtualDevice struct {
	ID     string
	Label  string
	Facing FacingMode
}

// Generator produces a synthetic frame of the given size.
type Generator func(seq uint64, width, height int) image.Image

// VirtualCapturer is a Capturer over in-memory devices. Each opened stream is
// backed by a FrameBuffer that can be fed directly or by a Generator.
type VirtualCapturer struct {
	mu        sync.Mutex
	devices   []VirtualDevice
	granted   bool
	denied    bool
	opens     int
	buffers   []*FrameBuffer
	generator Generator
	fps       int
}

// NewVirtualCapturer creates a capturer exposing devices.
func NewVirtualCapturer(devices ...VirtualDevice) *VirtualCapturer {
	return &VirtualCapturer{devices: devices}
}

// WithGenerator makes every opened stream produce frames from gen at fps.
func (v *VirtualCapturer) WithGenerator(gen Generator, fps int) *VirtualCapturer {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.generator = gen
	v.fps = fps

	return v
}

// Deny makes subsequent Open calls fail as if the user refused access.
func (v *VirtualCapturer) Deny(denied bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.denied = denied
}

// Opens returns the number of successful acquisitions.
func (v *VirtualCapturer) Opens() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.opens
}

// Buffers returns the frame buffers of every stream opened so far.
func (v *VirtualCapturer) Buffers() []*FrameBuffer {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]*FrameBuffer, len(v.buffers))
	copy(out, v.buffers)

	return out
}

// Last returns the frame buffer of the most recent stream, or nil.
func (v *VirtualCapturer) Last() *FrameBuffer {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.buffers) == 0 {
		return nil
	}

	return v.buffers[len(v.buffers)-1]
}

// EnumerateDevices lists the devices. Labels stay empty until a stream has
// been granted.
func (v *VirtualCapturer) EnumerateDevices(context.Context) ([]DeviceDescriptor, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]DeviceDescriptor, 0, len(v.devices))
	for _, d := range v.devices {
		desc := DeviceDescriptor{ID: d.ID, Kind: KindVideoInput, Facing: d.Facing}
		if v.granted {
			desc.Label = d.Label
		}
		out = append(out, desc)
	}

	return out, nil
}

// Open acquires a stream from the device matching c.
func (v *VirtualCapturer) Open(ctx context.Context, c StreamConstraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.denied {
		return nil, ErrPermissionDenied
	}

	dev, ok := v.selectLocked(c)
	if !ok {
		if c.DeviceID != "" {
			return nil, fmt.Errorf("%w: device %q", ErrDeviceNotFound, c.DeviceID)
		}

		return nil, fmt.Errorf("%w: no video input", ErrDeviceNotFound)
	}

	v.opens++
	v.granted = true

	buf := NewFrameBuffer(fmt.Sprintf("%s-track-%d", dev.ID, v.opens), c.Width, c.Height)
	v.buffers = append(v.buffers, buf)
	if v.generator != nil && v.fps > 0 {
		go generate(buf, v.generator, v.fps, c.Width, c.Height)
	}

	return &Stream{
		ID:     fmt.Sprintf("%s-stream-%d", dev.ID, v.opens),
		Tracks: []Track{buf},
		Width:  c.Width,
		Height: c.Height,
	}, nil
}

func (v *VirtualCapturer) selectLocked(c StreamConstraints) (VirtualDevice, bool) {
	if c.DeviceID != "" {
		for _, d := range v.devices {
			if d.ID == c.DeviceID {
				return d, true
			}
		}

		return VirtualDevice{}, false
	}
	for _, d := range v.devices {
		if d.Facing == "" || d.Facing == c.Facing {
			return d, true
		}
	}
	// Facing is a preference, not a requirement.
	if len(v.devices) > 0 {
		return v.devices[0], true
	}

	return VirtualDevice{}, false
}

func generate(buf *FrameBuffer, gen Generator, fps, width, height int) {
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-buf.Done():
			return
		case <-ticker.C:
			if err := buf.SendFrame(gen(seq, width, height)); err != nil {
				return
			}
			seq++
		}
	}
}
