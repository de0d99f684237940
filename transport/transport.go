// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package transport streams keypoint frames to the analysis service and
// receives feedback ticks back.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	plogging "github.com/pion/logging"
	"github.com/pion/posecoach/keypoint"
	"github.com/pion/posecoach/logging"
)

// DefaultMaxBufferedBytes is the outgoing buffer ceiling above which frames
// are dropped.
const DefaultMaxBufferedBytes = 512 * 1024

const sessionPath = "/ws/session"

var (
	// ErrInvalidURL is returned for service URLs that cannot be mapped to a
	// websocket endpoint.
	ErrInvalidURL = errors.New("invalid service url")
	// ErrDial wraps connection failures.
	ErrDial = errors.New("failed to connect to analysis service")
	// ErrInvalidOption is returned for option values out of range.
	ErrInvalidOption = errors.New("invalid transport option")
)

// URL builds the session endpoint for exercise on the service at base.
// http and https are mapped to ws and wss.
func URL(base string, exercise keypoint.Exercise) (string, error) {
	if !exercise.Valid() {
		return "", fmt.Errorf("%w: %q", keypoint.ErrUnknownExercise, exercise)
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + sessionPath
	u.RawQuery = url.Values{"exercise": {string(exercise)}}.Encode()
	u.Fragment = ""

	return u.String(), nil
}

// Option configures a Transport.
type Option func(*Transport) error

// MaxBufferedBytes sets the outgoing buffer ceiling.
func MaxBufferedBytes(n int) Option {
	return func(t *Transport) error {
		if n <= 0 {
			return fmt.Errorf("%w: max buffered bytes %d", ErrInvalidOption, n)
		}
		t.maxBuffered = n

		return nil
	}
}

// OnOpen registers a callback fired once the connection is established.
func OnOpen(fn func()) Option {
	return func(t *Transport) error {
		t.onOpen = fn

		return nil
	}
}

// OnClose registers a callback fired exactly once when the transport closes.
// err is nil for a local Close.
func OnClose(fn func(err error)) Option {
	return func(t *Transport) error {
		t.onClose = fn

		return nil
	}
}

// OnTick sets the initial tick subscriber. See Transport.OnTick.
func OnTick(fn func(keypoint.Tick)) Option {
	return func(t *Transport) error {
		t.OnTick(fn)

		return nil
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(t *Transport) error {
		t.dialer = d

		return nil
	}
}

// FrameLogWriter writes a trace line for every outgoing frame and incoming
// tick to w.
func FrameLogWriter(w io.Writer) Option {
	return func(t *Transport) error {
		t.frameLog = w

		return nil
	}
}

// SetLoggerFactory sets the logger factory used by the transport.
func SetLoggerFactory(loggerFactory plogging.LoggerFactory) Option {
	return func(t *Transport) error {
		t.log = loggerFactory.NewLogger("transport")

		return nil
	}
}

// Stats counts transport activity.
type Stats struct {
	Sent      uint64
	Dropped   uint64
	Ticks     uint64
	Discarded uint64
}

// Transport is one connection to the analysis service bound to a single
// exercise. It is not reconnected; a new exercise needs a new Transport.
type Transport struct {
	url      string
	exercise keypoint.Exercise
	conn     Conn
	dialer   Dialer

	maxBuffered int
	onOpen      func()
	onClose     func(error)
	onTick      atomic.Pointer[func(keypoint.Tick)]

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	sent      atomic.Uint64
	dropped   atomic.Uint64
	ticks     atomic.Uint64
	discarded atomic.Uint64

	frameLog io.Writer
	logMu    sync.Mutex

	log plogging.LeveledLogger
}

// Dial connects to the session endpoint for exercise on the service at base.
func Dial(ctx context.Context, base string, exercise keypoint.Exercise, opts ...Option) (*Transport, error) {
	target, err := URL(base, exercise)
	if err != nil {
		return nil, err
	}

	t := &Transport{
		url:         target,
		exercise:    exercise,
		dialer:      WebsocketDialer(nil),
		maxBuffered: DefaultMaxBufferedBytes,
		done:        make(chan struct{}),
		log:         plogging.NewDefaultLoggerFactory().NewLogger("transport"),
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}

	conn, err := t.dialer(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDial, target, err)
	}
	t.conn = conn
	t.log.Infof("connected to %s", target)

	if t.onOpen != nil {
		t.onOpen()
	}
	go t.readLoop()

	return t, nil
}

// URL returns the endpoint the transport is connected to.
func (t *Transport) URL() string {
	return t.url
}

// Exercise returns the exercise the transport is bound to.
func (t *Transport) Exercise() keypoint.Exercise {
	return t.exercise
}

// OnTick sets the tick subscriber, replacing any previous one. Ticks are
// delivered in arrival order on the read goroutine.
func (t *Transport) OnTick(fn func(keypoint.Tick)) {
	if fn == nil {
		t.onTick.Store(nil)

		return
	}
	t.onTick.Store(&fn)
}

// Send transmits frame unless the transport is closed or the connection's
// outgoing buffer is above the ceiling, in which case the frame is dropped.
// It reports whether the frame was handed to the connection.
func (t *Transport) Send(frame keypoint.Frame) bool {
	if t.closed.Load() {
		t.dropped.Add(1)

		return false
	}

	buffered := t.conn.BufferedAmount()
	if buffered > t.maxBuffered {
		t.dropped.Add(1)
		t.trace(logging.FrameFormat(time.Now(), logging.FrameRecord{
			TimestampMS: frame.TimestampMS,
			Joints:      frame.Len(),
			Buffered:    buffered,
			Dropped:     true,
		}))
		t.log.Debugf("dropped frame %d: %d bytes buffered", frame.TimestampMS, buffered)

		return false
	}

	data, err := keypoint.EncodeFrame(frame)
	if err != nil {
		t.dropped.Add(1)
		t.log.Warnf("failed to encode frame: %v", err)

		return false
	}
	if err := t.conn.WriteMessage(data); err != nil {
		t.dropped.Add(1)
		t.log.Debugf("failed to write frame: %v", err)

		return false
	}
	t.sent.Add(1)
	t.trace(logging.FrameFormat(time.Now(), logging.FrameRecord{
		TimestampMS: frame.TimestampMS,
		Joints:      frame.Len(),
		Bytes:       len(data),
		Buffered:    buffered,
	}))

	return true
}

// Close releases the connection. It is safe to call more than once.
func (t *Transport) Close() error {
	return t.shutdown(nil)
}

// Done is closed once the transport has closed.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Closed reports whether the transport has closed.
func (t *Transport) Closed() bool {
	return t.closed.Load()
}

// Stats returns a snapshot of the transport counters.
func (t *Transport) Stats() Stats {
	return Stats{
		Sent:      t.sent.Load(),
		Dropped:   t.dropped.Load(),
		Ticks:     t.ticks.Load(),
		Discarded: t.discarded.Load(),
	}
}

func (t *Transport) shutdown(cause error) error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		err = t.conn.Close()
		close(t.done)

		if cause != nil {
			t.log.Warnf("connection to %s lost: %v", t.url, cause)
		} else {
			t.log.Infof("closed connection to %s", t.url)
		}
		if t.onClose != nil {
			t.onClose(cause)
		}
	})

	return err
}

func (t *Transport) readLoop() {
	for {
		data, err := t.conn.ReadMessage()
		if err != nil {
			if t.closed.Load() {
				return
			}
			_ = t.shutdown(err)

			return
		}
		if t.closed.Load() {
			return
		}

		tick, err := keypoint.DecodeTick(data)
		if err != nil {
			t.discarded.Add(1)
			t.log.Debugf("discarded malformed tick: %v", err)

			continue
		}
		t.ticks.Add(1)
		t.trace(logging.TickFormat(time.Now(), tick))

		if fn := t.onTick.Load(); fn != nil {
			(*fn)(tick)
		}
	}
}

func (t *Transport) trace(line string) {
	if t.frameLog == nil {
		return
	}

	t.logMu.Lock()
	defer t.logMu.Unlock()

	if _, err := io.WriteString(t.frameLog, line); err != nil {
		t.log.Debugf("failed to write trace: %v", err)
	}
}
