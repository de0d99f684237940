// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package media

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/pion/logging"
)

// Option configures a Manager.
type Option func(*Manager) error

// SetLoggerFactory sets the logger factory used by the manager.
func SetLoggerFactory(loggerFactory logging.LoggerFactory) Option {
	return func(m *Manager) error {
		m.log = loggerFactory.NewLogger("media")

		return nil
	}
}

// OnStream registers the observer notified with every newly acquired stream.
// A later registration replaces the earlier one.
func OnStream(fn func(*Stream)) Option {
	return func(m *Manager) error {
		m.onStream = fn

		return nil
	}
}

// Manager owns at most one camera stream at a time. Acquisition failures are
// kept as state so the caller can retry with other constraints.
type Manager struct {
	capturer Capturer

	mu      sync.Mutex
	stream  *Stream
	active  bool
	err     *DeviceError
	devices map[string]DeviceDescriptor

	onStream func(*Stream)

	log logging.LeveledLogger
}

// NewManager creates a manager over capturer. A nil capturer models a host
// without camera support.
func NewManager(capturer Capturer, opts ...Option) (*Manager, error) {
	m := &Manager{
		capturer: capturer,
		devices:  make(map[string]DeviceDescriptor),
		log:      logging.NewDefaultLoggerFactory().NewLogger("media"),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Start acquires a stream matching c, first releasing any stream already
// held. On failure the classified error is returned and also kept in Err.
func (m *Manager) Start(ctx context.Context, c Constraints) (*Stream, error) {
	m.mu.Lock()
	m.err = nil
	m.stopLocked()

	if m.capturer == nil {
		de := Classify(fmt.Errorf("%w: no capture capability", ErrUnsupported))
		m.err = de
		m.mu.Unlock()
		m.log.Errorf("start camera: %v", de.Err)

		return nil, de
	}

	ideal := c.Ideal()
	stream, err := m.capturer.Open(ctx, ideal)
	if err != nil {
		de := Classify(err)
		m.err = de
		m.mu.Unlock()
		m.log.Errorf("start camera %dx%d facing=%s device=%q: %v", ideal.Width, ideal.Height, ideal.Facing, ideal.DeviceID, err)

		return nil, de
	}
	m.stream = stream
	m.active = true
	onStream := m.onStream
	m.mu.Unlock()

	m.log.Infof("camera started: stream=%s %dx%d", stream.ID, stream.Width, stream.Height)

	if onStream != nil {
		onStream(stream)
	}

	// Labels are withheld until access is granted, so enumerate again.
	if _, err := m.ListDevices(ctx); err != nil {
		m.log.Warnf("refresh devices: %v", err)
	}

	return stream, nil
}

// Stop releases the current stream. It is a no-op when nothing is held.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
}

func (m *Manager) stopLocked() {
	if m.stream == nil {
		m.active = false

		return
	}
	if err := m.stream.Stop(); err != nil {
		m.log.Warnf("stop stream %s: %v", m.stream.ID, err)
	}
	m.log.Infof("camera stopped: stream=%s", m.stream.ID)
	m.stream = nil
	m.active = false
}

// ListDevices enumerates video inputs keyed by device id and caches them.
func (m *Manager) ListDevices(ctx context.Context) (map[string]DeviceDescriptor, error) {
	if m.capturer == nil {
		return map[string]DeviceDescriptor{}, nil
	}

	list, err := m.capturer.EnumerateDevices(ctx)
	if err != nil {
		return nil, err
	}

	devices := make(map[string]DeviceDescriptor, len(list))
	for _, d := range list {
		if d.Kind != "" && d.Kind != KindVideoInput {
			continue
		}
		devices[d.ID] = d
	}

	m.mu.Lock()
	m.devices = devices
	m.mu.Unlock()

	return maps.Clone(devices), nil
}

// Devices returns the devices found by the last enumeration.
func (m *Manager) Devices() map[string]DeviceDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()

	return maps.Clone(m.devices)
}

// Active reports whether a stream is currently held.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.active
}

// Stream returns the current stream, or nil.
func (m *Manager) Stream() *Stream {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.stream
}

// Err returns the last acquisition failure, or nil after a successful start.
func (m *Manager) Err() *DeviceError {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.err
}
