// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package media

import (
	"errors"
	"image"
	"sync"

	"github.com/pion/logging"
)

// Element plays a track and holds its most recent decoded frame, like a video
// element. Its identity is stable across source changes, so a reader bound to
// it keeps working when the camera is restarted with new constraints.
type Element struct {
	mu     sync.Mutex
	track  Track
	frame  image.Image
	gen    uint64
	frames uint64

	log logging.LeveledLogger
}

// NewElement creates an element with no source.
func NewElement(loggerFactory logging.LoggerFactory) *Element {
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}

	return &Element{log: loggerFactory.NewLogger("element")}
}

// Attach makes track the element's source, replacing any previous one. The
// element has no current data until the first frame of track is decoded.
func (e *Element) Attach(track Track) {
	e.mu.Lock()
	e.gen++
	gen := e.gen
	e.track = track
	e.frame = nil
	e.mu.Unlock()

	if track == nil {
		return
	}
	e.log.Debugf("attached track %s", track.ID())

	go e.pump(track, gen)
}

// Detach removes the source and clears the current frame.
func (e *Element) Detach() {
	e.Attach(nil)
}

// Source returns the attached track, or nil.
func (e *Element) Source() Track {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.track
}

// CurrentFrame returns the latest decoded frame. ok is false until the
// attached source has produced data.
func (e *Element) CurrentFrame() (image.Image, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.frame, e.frame != nil
}

// Frames returns the number of frames decoded since creation.
func (e *Element) Frames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.frames
}

// pump copies frames from track into the element until the track ends or
// another source is attached.
func (e *Element) pump(track Track, gen uint64) {
	for {
		img, release, err := track.Read()
		if err != nil {
			if errors.Is(err, ErrNoFrameAvailable) && e.current(gen) {
				continue
			}
			e.mu.Lock()
			if e.gen == gen {
				e.frame = nil
			}
			e.mu.Unlock()
			e.log.Debugf("track %s ended: %v", track.ID(), err)

			return
		}

		e.mu.Lock()
		stale := e.gen != gen
		if !stale && img != nil {
			e.frame = img
			e.frames++
		}
		e.mu.Unlock()
		release()

		if stale {
			return
		}
	}
}

func (e *Element) current(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.gen == gen
}
