// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package media

import (
	"image"
	"sync"
	"sync/atomic"
	"time"
)

const (
	frameBufferDepth       = 4
	frameBufferReadTimeout = 100 * time.Millisecond
)

// FrameBuffer is an in-memory Track fed programmatically. It backs virtual
// cameras and tests. When full, the oldest queued frame is dropped so the
// reader always sees recent frames.
type FrameBuffer struct {
	frameChan chan image.Image
	closeChan chan struct{}
	closeOnce sync.Once
	stopped   atomic.Bool
	dropped   atomic.Uint64
	width     int
	height    int
	id        string
}

// NewFrameBuffer creates a frame buffer advertising the given dimensions.
func NewFrameBuffer(id string, width, height int) *FrameBuffer {
	return &FrameBuffer{
		frameChan: make(chan image.Image, frameBufferDepth),
		closeChan: make(chan struct{}),
		width:     width,
		height:    height,
		id:        id,
	}
}

// ID returns the track identifier.
func (f *FrameBuffer) ID() string {
	return f.id
}

// Size returns the advertised frame dimensions.
func (f *FrameBuffer) Size() (int, int) {
	return f.width, f.height
}

// Close stops the track. Pending and future reads fail with ErrBufferClosed.
func (f *FrameBuffer) Close() error {
	f.closeOnce.Do(func() {
		f.stopped.Store(true)
		close(f.closeChan)
	})

	return nil
}

// Stopped reports whether Close has been called.
func (f *FrameBuffer) Stopped() bool {
	return f.stopped.Load()
}

// Dropped returns how many frames were discarded because the buffer was full.
func (f *FrameBuffer) Dropped() uint64 {
	return f.dropped.Load()
}

// Done is closed when the track stops.
func (f *FrameBuffer) Done() <-chan struct{} {
	return f.closeChan
}

// Read returns the next queued frame. It waits briefly and returns
// ErrNoFrameAvailable when nothing arrives.
func (f *FrameBuffer) Read() (image.Image, func(), error) {
	select {
	case <-f.closeChan:
		return nil, func() {}, ErrBufferClosed
	default:
	}

	timer := time.NewTimer(frameBufferReadTimeout)
	defer timer.Stop()

	select {
	case img := <-f.frameChan:
		return img, func() {}, nil
	case <-f.closeChan:
		return nil, func() {}, ErrBufferClosed
	case <-timer.C:
		return nil, func() {}, ErrNoFrameAvailable
	}
}

// SendFrame queues a frame, dropping the oldest one if the buffer is full.
func (f *FrameBuffer) SendFrame(frame image.Image) error {
	select {
	case <-f.closeChan:
		return ErrBufferClosed
	default:
	}

	for {
		select {
		case f.frameChan <- frame:
			return nil
		default:
		}

		select {
		case <-f.frameChan:
			f.dropped.Add(1)
		default:
		}
	}
}
