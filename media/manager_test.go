// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package media

import (
	"context"
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingCapturer fails every Open with err and counts attempts.
type failingCapturer struct {
	err   error
	opens int
}

func (f *failingCapturer) EnumerateDevices(context.Context) ([]DeviceDescriptor, error) {
	return nil, nil
}

func (f *failingCapturer) Open(context.Context, StreamConstraints) (*Stream, error) {
	f.opens++

	return nil, f.err
}

// recordingCapturer remembers the constraints it was asked for.
type recordingCapturer struct {
	*VirtualCapturer
	last StreamConstraints
}

func (r *recordingCapturer) Open(ctx context.Context, c StreamConstraints) (*Stream, error) {
	r.last = c

	return r.VirtualCapturer.Open(ctx, c)
}

func newTestManager(t *testing.T, c Capturer) *Manager {
	t.Helper()

	m, err := NewManager(c)
	require.NoError(t, err)

	return m
}

func TestResolutionDimensions(t *testing.T) {
	tests := []struct {
		res    Resolution
		width  int
		height int
	}{
		{Res480p, 640, 480},
		{Res720p, 1280, 720},
		{Res1080p, 1920, 1080},
		{"", 1280, 720},
	}

	for _, tt := range tests {
		w, h := tt.res.Dimensions()
		assert.Equal(t, tt.width, w, tt.res)
		assert.Equal(t, tt.height, h, tt.res)
	}

	_, err := ParseResolution("4k")
	require.ErrorIs(t, err, ErrUnknownResolution)
	r, err := ParseResolution("1080p")
	require.NoError(t, err)
	assert.Equal(t, Res1080p, r)
}

func TestManager_StartAppliesConstraints(t *testing.T) {
	capturer := &recordingCapturer{VirtualCapturer: NewVirtualCapturer(VirtualDevice{ID: "cam0", Label: "Front", Facing: FacingUser})}
	m := newTestManager(t, capturer)

	stream, err := m.Start(context.Background(), Constraints{Resolution: Res1080p, FacingMode: FacingUser, DeviceID: "cam0"})
	require.NoError(t, err)
	require.NotNil(t, stream)

	assert.Equal(t, StreamConstraints{Width: 1920, Height: 1080, Facing: FacingUser, DeviceID: "cam0"}, capturer.last)
	assert.True(t, m.Active())
	assert.Nil(t, m.Err())
	assert.Same(t, stream, m.Stream())
}

func TestManager_StopReleasesAllTracks(t *testing.T) {
	capturer := NewVirtualCapturer(VirtualDevice{ID: "cam0"})
	m := newTestManager(t, capturer)

	_, err := m.Start(context.Background(), DefaultConstraints())
	require.NoError(t, err)

	m.Stop()
	assert.False(t, m.Active())
	assert.Nil(t, m.Stream())
	for _, buf := range capturer.Buffers() {
		assert.True(t, buf.Stopped(), buf.ID())
	}

	// Stopping again is a no-op.
	m.Stop()
	assert.False(t, m.Active())
}

func TestManager_RestartStopsPreviousStream(t *testing.T) {
	capturer := NewVirtualCapturer(VirtualDevice{ID: "cam0"})
	m := newTestManager(t, capturer)

	first, err := m.Start(context.Background(), Constraints{Resolution: Res720p})
	require.NoError(t, err)
	second, err := m.Start(context.Background(), Constraints{Resolution: Res480p})
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	buffers := capturer.Buffers()
	require.Len(t, buffers, 2)
	assert.True(t, buffers[0].Stopped())
	assert.False(t, buffers[1].Stopped())
	assert.Equal(t, 640, second.Width)
}

func TestManager_NoCamera(t *testing.T) {
	m := newTestManager(t, NewVirtualCapturer())

	stream, err := m.Start(context.Background(), Constraints{Resolution: Res720p, FacingMode: FacingUser})
	require.Error(t, err)
	assert.Nil(t, stream)
	assert.False(t, m.Active())

	de := m.Err()
	require.NotNil(t, de)
	assert.ErrorIs(t, de, ErrDeviceNotFound)
	assert.Contains(t, de.Message, "not found")
}

func TestManager_UnsupportedEnvironment(t *testing.T) {
	m := newTestManager(t, nil)

	_, err := m.Start(context.Background(), Constraints{Resolution: Res720p, FacingMode: FacingUser})
	require.ErrorIs(t, err, ErrUnsupported)
	assert.False(t, m.Active())
	assert.Contains(t, m.Err().Message, "not supported")

	devices, err := m.ListDevices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestManager_PermissionDenied(t *testing.T) {
	capturer := NewVirtualCapturer(VirtualDevice{ID: "cam0"})
	capturer.Deny(true)
	m := newTestManager(t, capturer)

	_, err := m.Start(context.Background(), DefaultConstraints())
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.False(t, m.Active())
	assert.Contains(t, m.Err().Message, "permission denied")

	// Recoverable: retry after access is granted.
	capturer.Deny(false)
	_, err = m.Start(context.Background(), DefaultConstraints())
	require.NoError(t, err)
	assert.True(t, m.Active())
	assert.Nil(t, m.Err())
}

func TestManager_StartFailureKeepsPreviousStreamStopped(t *testing.T) {
	capturer := NewVirtualCapturer(VirtualDevice{ID: "cam0"})
	m := newTestManager(t, capturer)

	_, err := m.Start(context.Background(), DefaultConstraints())
	require.NoError(t, err)

	_, err = m.Start(context.Background(), Constraints{DeviceID: "missing"})
	require.ErrorIs(t, err, ErrDeviceNotFound)
	assert.False(t, m.Active())
	assert.True(t, capturer.Last().Stopped())
}

func TestManager_LabelsRevealedAfterGrant(t *testing.T) {
	capturer := NewVirtualCapturer(
		VirtualDevice{ID: "cam0", Label: "FaceTime HD Camera", Facing: FacingUser},
		VirtualDevice{ID: "cam1", Label: "USB Camera"},
	)
	m := newTestManager(t, capturer)

	devices, err := m.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Empty(t, devices["cam0"].Label)

	_, err = m.Start(context.Background(), DefaultConstraints())
	require.NoError(t, err)

	devices = m.Devices()
	assert.Equal(t, "FaceTime HD Camera", devices["cam0"].Label)
	assert.Equal(t, "USB Camera", devices["cam1"].Label)
}

func TestManager_OnStream(t *testing.T) {
	var got []*Stream
	m, err := NewManager(NewVirtualCapturer(VirtualDevice{ID: "cam0"}), OnStream(func(s *Stream) {
		got = append(got, s)
	}))
	require.NoError(t, err)

	s, err := m.Start(context.Background(), DefaultConstraints())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Same(t, s, got[0])
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))

	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"permission sentinel", ErrPermissionDenied, ErrPermissionDenied},
		{"os permission", &fs.PathError{Op: "open", Path: "/dev/video0", Err: fs.ErrPermission}, ErrPermissionDenied},
		{"not found", ErrDeviceNotFound, ErrDeviceNotFound},
		{"unsupported", ErrUnsupported, ErrUnsupported},
		{"other", errors.New("boom"), ErrCapture},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			de := Classify(tt.err)
			require.NotNil(t, de)
			assert.ErrorIs(t, de, tt.kind)
			assert.ErrorIs(t, de, tt.err)
			assert.NotEmpty(t, de.Message)
		})
	}

	// Already classified errors pass through.
	de := Classify(ErrUnsupported)
	assert.Same(t, de, Classify(de))
}

func TestManager_ErrorIsNotFatal(t *testing.T) {
	capturer := &failingCapturer{err: errors.New("device busy")}
	m := newTestManager(t, capturer)

	for range 3 {
		_, err := m.Start(context.Background(), DefaultConstraints())
		require.Error(t, err)
	}
	assert.Equal(t, 3, capturer.opens)
	assert.Equal(t, "device busy", m.Err().Message)
}

func TestStream_StopIdempotent(t *testing.T) {
	a := NewFrameBuffer("a", 2, 2)
	b := NewFrameBuffer("b", 2, 2)
	s := &Stream{ID: "s", Tracks: []Track{a, b}}

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.True(t, a.Stopped())
	assert.True(t, b.Stopped())
	assert.Same(t, Track(a), s.VideoTrack())

	var empty *Stream
	assert.Nil(t, empty.VideoTrack())
}

func TestDeviceDescriptor_DisplayName(t *testing.T) {
	assert.Equal(t, "USB Camera", DeviceDescriptor{ID: "0a1b2c3d", Label: "USB Camera"}.DisplayName())
	assert.Equal(t, "Camera 0a1b", DeviceDescriptor{ID: "0a1b2c3d"}.DisplayName())
	assert.Equal(t, "Camera v0", DeviceDescriptor{ID: "v0"}.DisplayName())
}
