// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

//go:build !js
// +build !js

// Package filecam exposes a video file as a camera.
package filecam

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/posecoach/media"
	"gocv.io/x/gocv"
)

const defaultFPS = 30.0

// ErrNoVideo is returned when the configured file cannot be used as a source.
var ErrNoVideo = errors.New("video file unavailable")

// Capturer is a media.Capturer backed by a single video file. Every Open
// starts a new playback of the file, resized to the requested dimensions and
// looped at end of file.
type Capturer struct {
	path string
	mu   sync.Mutex
	n    int

	log logging.LeveledLogger
}

// Option configures a Capturer.
type Option func(*Capturer) error

// SetLoggerFactory sets the logger factory.
func SetLoggerFactory(loggerFactory logging.LoggerFactory) Option {
	return func(c *Capturer) error {
		c.log = loggerFactory.NewLogger("filecam")

		return nil
	}
}

// New creates a capturer playing the file at path.
func New(path string, opts ...Option) (*Capturer, error) {
	c := &Capturer{
		path: path,
		log:  logging.NewDefaultLoggerFactory().NewLogger("filecam"),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// EnumerateDevices reports the file as one video input.
func (c *Capturer) EnumerateDevices(context.Context) ([]media.DeviceDescriptor, error) {
	if _, err := os.Stat(c.path); err != nil {
		return nil, nil //nolint:nilerr // Unreadable file means no device
	}

	return []media.DeviceDescriptor{{
		ID:     c.deviceID(),
		Label:  filepath.Base(c.path),
		Kind:   media.KindVideoInput,
		Facing: media.FacingUser,
	}}, nil
}

// Open starts playback of the file.
func (c *Capturer) Open(ctx context.Context, sc media.StreamConstraints) (*media.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sc.DeviceID != "" && sc.DeviceID != c.deviceID() {
		return nil, fmt.Errorf("%w: device %q", media.ErrDeviceNotFound, sc.DeviceID)
	}
	if _, err := os.Stat(c.path); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %w", media.ErrPermissionDenied, err)
		}

		return nil, fmt.Errorf("%w: %w", media.ErrDeviceNotFound, err)
	}

	capture, err := gocv.VideoCaptureFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", media.ErrDeviceNotFound, ErrNoVideo, err)
	}

	fps := capture.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		fps = defaultFPS
	}
	width, height := sc.Width, sc.Height
	if width <= 0 || height <= 0 {
		width = int(capture.Get(gocv.VideoCaptureFrameWidth))
		height = int(capture.Get(gocv.VideoCaptureFrameHeight))
	}

	c.mu.Lock()
	c.n++
	n := c.n
	c.mu.Unlock()

	buf := media.NewFrameBuffer(fmt.Sprintf("%s-track-%d", c.deviceID(), n), width, height)
	p := &player{
		capture: capture,
		buf:     buf,
		width:   width,
		height:  height,
		fps:     fps,
		log:     c.log,
	}
	go p.run()

	c.log.Infof("playing %s at %.1f fps, %dx%d", c.path, fps, width, height)

	return &media.Stream{
		ID:     fmt.Sprintf("%s-stream-%d", c.deviceID(), n),
		Tracks: []media.Track{buf},
		Width:  width,
		Height: height,
	}, nil
}

func (c *Capturer) deviceID() string {
	return "file:" + filepath.Base(c.path)
}

// player decodes frames into a frame buffer until the buffer is closed.
type player struct {
	capture *gocv.VideoCapture
	buf     *media.FrameBuffer
	width   int
	height  int
	fps     float64
	log     logging.LeveledLogger
}

func (p *player) run() {
	defer func() {
		if err := p.capture.Close(); err != nil {
			p.log.Warnf("failed to close capture: %v", err)
		}
	}()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / p.fps))
	defer ticker.Stop()

	mat := gocv.NewMat()
	defer func() { _ = mat.Close() }()

	resized := gocv.NewMat()
	defer func() { _ = resized.Close() }()

	for {
		select {
		case <-p.buf.Done():
			return
		case <-ticker.C:
		}

		if ok := p.capture.Read(&mat); !ok {
			// Loop back to the beginning.
			p.capture.Set(gocv.VideoCapturePosMsec, 0)

			continue
		}
		if mat.Empty() {
			continue
		}

		var (
			img image.Image
			err error
		)
		if mat.Cols() != p.width || mat.Rows() != p.height {
			gocv.Resize(mat, &resized, image.Point{X: p.width, Y: p.height}, 0, 0, gocv.InterpolationLinear)
			img, err = resized.ToImage()
		} else {
			img, err = mat.ToImage()
		}
		if err != nil {
			p.log.Debugf("failed to convert frame: %v", err)

			continue
		}

		if err := p.buf.SendFrame(img); err != nil {
			return
		}
	}
}
