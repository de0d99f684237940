// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package media

import (
	"errors"
	"io/fs"
)

// Classification of acquisition failures. Capturers wrap one of these.
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrDeviceNotFound   = errors.New("camera not found")
	ErrUnsupported      = errors.New("camera not supported")
	ErrCapture          = errors.New("camera error")
)

// Static errors for media sources.
var (
	ErrUnknownResolution = errors.New("unknown resolution")
	ErrBufferClosed      = errors.New("buffer closed")
	ErrNoFrameAvailable  = errors.New("no frame available")
	ErrTrackEnded        = errors.New("track ended")
)

const (
	msgPermissionDenied = "Camera permission denied. Allow camera access for this application and try again."
	msgDeviceNotFound   = "Requested camera not found. Try a different device or resolution."
	msgUnsupported      = "Camera is not supported in this environment."
)

// DeviceError is an acquisition failure classified by cause, with a message
// suitable for showing to the user.
type DeviceError struct {
	Kind    error
	Message string
	Err     error
}

func (e *DeviceError) Error() string {
	return e.Message
}

func (e *DeviceError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Classify turns a capturer error into a DeviceError. It returns nil for nil.
func Classify(err error) *DeviceError {
	if err == nil {
		return nil
	}

	var de *DeviceError
	if errors.As(err, &de) {
		return de
	}

	switch {
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, fs.ErrPermission):
		return &DeviceError{Kind: ErrPermissionDenied, Message: msgPermissionDenied, Err: err}
	case errors.Is(err, ErrDeviceNotFound):
		return &DeviceError{Kind: ErrDeviceNotFound, Message: msgDeviceNotFound, Err: err}
	case errors.Is(err, ErrUnsupported):
		return &DeviceError{Kind: ErrUnsupported, Message: msgUnsupported, Err: err}
	default:
		return &DeviceError{Kind: ErrCapture, Message: err.Error(), Err: err}
	}
}
