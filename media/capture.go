// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package media owns the camera: device enumeration, constrained stream
// acquisition, clean teardown of hardware tracks, and the video element the
// pose sampler reads frames from.
package media

import (
	"context"
	"fmt"
	"image"
	"sync"
)

// Resolution is a requested capture tier.
type Resolution string

// Supported resolution tiers.
const (
	Res480p  Resolution = "480p"
	Res720p  Resolution = "720p"
	Res1080p Resolution = "1080p"
)

// Dimensions returns the ideal pixel size for the tier. Unknown tiers fall back to 720p.
func (r Resolution) Dimensions() (width, height int) {
	switch r {
	case Res480p:
		return 640, 480
	case Res1080p:
		return 1920, 1080
	default:
		return 1280, 720
	}
}

// ParseResolution validates a resolution tier name.
func ParseResolution(s string) (Resolution, error) {
	switch r := Resolution(s); r {
	case Res480p, Res720p, Res1080p:
		return r, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownResolution, s)
}

// FacingMode selects a front (user) or back (environment) camera.
type FacingMode string

// Facing modes.
const (
	FacingUser        FacingMode = "user"
	FacingEnvironment FacingMode = "environment"
)

// Constraints is what the user asks for.
type Constraints struct {
	Resolution Resolution
	FacingMode FacingMode
	// DeviceID, when set, must match exactly.
	DeviceID string
}

// DefaultConstraints is 720p from the user-facing camera.
func DefaultConstraints() Constraints {
	return Constraints{Resolution: Res720p, FacingMode: FacingUser}
}

// StreamConstraints is the capability-level request derived from Constraints.
type StreamConstraints struct {
	Width    int
	Height   int
	Facing   FacingMode
	DeviceID string
}

// Ideal maps c onto ideal pixel dimensions.
func (c Constraints) Ideal() StreamConstraints {
	w, h := c.Resolution.Dimensions()
	facing := c.FacingMode
	if facing == "" {
		facing = FacingUser
	}

	return StreamConstraints{Width: w, Height: h, Facing: facing, DeviceID: c.DeviceID}
}

// DeviceKind distinguishes capture devices.
type DeviceKind string

// KindVideoInput is the only kind the manager tracks.
const KindVideoInput DeviceKind = "videoinput"

// DeviceDescriptor identifies one camera. Label is empty until access has
// been granted at least once.
type DeviceDescriptor struct {
	ID     string
	Label  string
	Kind   DeviceKind
	Facing FacingMode
}

// DisplayName returns the label, or a short id based name while labels are
// withheld.
func (d DeviceDescriptor) DisplayName() string {
	if d.Label != "" {
		return d.Label
	}
	id := d.ID
	if len(id) > 4 {
		id = id[:4]
	}

	return "Camera " + id
}

// Track is one live hardware track. Read returns the next decoded frame and a
// release function for it.
type Track interface {
	ID() string
	Read() (image.Image, func(), error)
	Close() error
	Stopped() bool
}

// Stream is an acquired camera stream.
type Stream struct {
	ID     string
	Tracks []Track
	Width  int
	Height int

	stopOnce sync.Once
}

// VideoTrack returns the first track, or nil.
func (s *Stream) VideoTrack() Track {
	if s == nil || len(s.Tracks) == 0 {
		return nil
	}

	return s.Tracks[0]
}

// Stop closes every track of the stream. Safe to call more than once.
func (s *Stream) Stop() error {
	var firstErr error
	s.stopOnce.Do(func() {
		for _, t := range s.Tracks {
			if err := t.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})

	return firstErr
}

// Capturer is the host camera capability.
type Capturer interface {
	EnumerateDevices(ctx context.Context) ([]DeviceDescriptor, error)
	Open(ctx context.Context, c StreamConstraints) (*Stream, error)
}
