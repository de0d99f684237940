// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package session ties camera capture, pose sampling, the service connection
// and the overlay together into one coaching session.
package session

import (
	"context"
	"errors"
	"fmt"
	"image/draw"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/logging"
	"github.com/pion/posecoach/keypoint"
	"github.com/pion/posecoach/media"
	"github.com/pion/posecoach/pose"
	"github.com/pion/posecoach/render"
	"github.com/pion/posecoach/transport"
)

// State is the lifecycle state of a Controller.
type State string

// Controller states.
const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateActive   State = "active"
)

const noticeCameraOff = "Camera is off"

var (
	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("session closed")
	// ErrNoRuntime is returned when a controller is built without a pose
	// runtime.
	ErrNoRuntime = errors.New("session requires a pose runtime")
)

// Link is the connection frames are sent over.
type Link interface {
	Send(frame keypoint.Frame) bool
	Closed() bool
	Close() error
}

// LinkDialer opens a Link bound to one exercise. Ticks read on the link are
// passed to onTick, including any that arrive before the dialer returns.
type LinkDialer func(ctx context.Context, exercise keypoint.Exercise, onTick func(keypoint.Tick)) (Link, error)

// TransportDialer dials the analysis service at base with opts.
func TransportDialer(base string, opts ...transport.Option) LinkDialer {
	return func(ctx context.Context, exercise keypoint.Exercise, onTick func(keypoint.Tick)) (Link, error) {
		all := make([]transport.Option, 0, len(opts)+1)
		all = append(all, opts...)
		all = append(all, transport.OnTick(onTick))

		t, err := transport.Dial(ctx, base, exercise, all...)
		if err != nil {
			return nil, err
		}

		return t, nil
	}
}

// Option configures a Controller.
type Option func(*Controller) error

// WithDialer sets how links to the analysis service are opened. Without a
// dialer the session runs locally and frames are only rendered.
func WithDialer(d LinkDialer) Option {
	return func(c *Controller) error {
		c.dial = d

		return nil
	}
}

// WithExercise sets the initial exercise.
func WithExercise(ex keypoint.Exercise) Option {
	return func(c *Controller) error {
		if !ex.Valid() {
			return fmt.Errorf("%w: %q", keypoint.ErrUnknownExercise, ex)
		}
		c.exercise = ex

		return nil
	}
}

// WithConstraints sets the initial camera constraints.
func WithConstraints(cons media.Constraints) Option {
	return func(c *Controller) error {
		c.constraints = cons

		return nil
	}
}

// WithSamplerOptions passes options to the pose sampler.
func WithSamplerOptions(opts ...pose.SamplerOption) Option {
	return func(c *Controller) error {
		c.samplerOpts = append(c.samplerOpts, opts...)

		return nil
	}
}

// WithRenderer replaces the overlay renderer.
func WithRenderer(r *render.Renderer) Option {
	return func(c *Controller) error {
		c.renderer = r

		return nil
	}
}

// OnTick registers an observer for every tick received.
func OnTick(fn func(keypoint.Tick)) Option {
	return func(c *Controller) error {
		c.onTick = fn

		return nil
	}
}

// OnFrame registers an observer for every keypoint frame sampled.
func OnFrame(fn func(keypoint.Frame)) Option {
	return func(c *Controller) error {
		c.onFrame = fn

		return nil
	}
}

// SetLoggerFactory sets the logger factory used by the controller.
func SetLoggerFactory(loggerFactory logging.LoggerFactory) Option {
	return func(c *Controller) error {
		c.loggerFactory = loggerFactory
		c.log = loggerFactory.NewLogger("session")

		return nil
	}
}

// Status is a snapshot of a Controller.
type Status struct {
	ID          string
	State       State
	Exercise    keypoint.Exercise
	Constraints media.Constraints
	Connected   bool
	LinkError   error
	DeviceError *media.DeviceError
	Devices     map[string]media.DeviceDescriptor
	Sampler     pose.SamplerStats
}

// Controller runs one coaching session. Camera start and stop, exercise
// changes and constraint changes are serialised; frame and tick delivery run
// on their own goroutines.
type Controller struct {
	id      string
	manager *media.Manager
	runtime *pose.Runtime
	element *media.Element

	dial        LinkDialer
	exercise    keypoint.Exercise
	constraints media.Constraints
	samplerOpts []pose.SamplerOption
	renderer    *render.Renderer
	onTick      func(keypoint.Tick)
	onFrame     func(keypoint.Frame)

	// opMu serialises lifecycle operations. mu guards the fields below and
	// is released while the sampler drains, so frame observers may read
	// the controller.
	opMu    sync.Mutex
	mu      sync.Mutex
	state   State
	sampler *pose.Sampler
	link    Link
	linkErr error
	closed  bool

	latestMu sync.Mutex
	frame    *keypoint.Frame
	tick     *keypoint.Tick
	tickGen  uint64

	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger
}

// New creates an idle controller over manager and runtime.
func New(manager *media.Manager, runtime *pose.Runtime, opts ...Option) (*Controller, error) {
	if runtime == nil {
		return nil, ErrNoRuntime
	}

	c := &Controller{
		id:            uuid.NewString(),
		manager:       manager,
		runtime:       runtime,
		exercise:      keypoint.PushUp,
		constraints:   media.DefaultConstraints(),
		renderer:      render.New(),
		state:         StateIdle,
		loggerFactory: logging.NewDefaultLoggerFactory(),
	}
	c.log = c.loggerFactory.NewLogger("session")

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.element = media.NewElement(c.loggerFactory)

	return c, nil
}

// ID returns the session identifier.
func (c *Controller) ID() string {
	return c.id
}

// Element returns the video element the sampler reads from.
func (c *Controller) Element() *media.Element {
	return c.element
}

// Start acquires the camera and begins sampling. A camera failure leaves the
// session idle and is returned; a failed service connection is logged and
// the session runs without one. Start on an active session is a no-op.
func (c *Controller) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != StateIdle {
		return nil
	}
	c.state = StateStarting

	stream, err := c.manager.Start(ctx, c.constraints)
	if err != nil {
		c.state = StateIdle

		return err
	}
	c.element.Attach(stream.VideoTrack())

	if c.sampler == nil {
		if err := c.buildSamplerLocked(ctx); err != nil {
			c.manager.Stop()
			c.element.Detach()
			c.state = StateIdle

			return err
		}
	}

	// A link the service closed while the session was stopped is replaced.
	if c.link == nil || c.link.Closed() {
		c.link = nil
		c.connectLocked(ctx)
	}
	c.sampler.OnFrame(c.fanout(c.link))
	c.sampler.Start()
	c.state = StateActive
	c.log.Infof("session %s active: exercise=%s", c.id, c.exercise)

	return nil
}

// Stop halts sampling and releases the camera. The service connection is
// kept for the next Start with the same exercise.
func (c *Controller) Stop() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if c.state == StateIdle {
		return
	}
	c.haltSamplerLocked()
	c.manager.Stop()
	c.element.Detach()
	c.state = StateIdle
	c.log.Infof("session %s idle", c.id)
}

// haltSamplerLocked stops the sampler with mu released. The sampling
// goroutine runs frame observers, which may call back into the controller.
// Callers hold opMu, so no other lifecycle operation runs meanwhile.
func (c *Controller) haltSamplerLocked() {
	if c.sampler == nil {
		return
	}
	c.mu.Unlock()
	c.sampler.Stop()
	c.mu.Lock()
}

// SetExercise rebinds the session to ex. The current link is closed and a
// new one is opened; the camera and the sampler keep running.
func (c *Controller) SetExercise(ctx context.Context, ex keypoint.Exercise) error {
	if !ex.Valid() {
		return fmt.Errorf("%w: %q", keypoint.ErrUnknownExercise, ex)
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if ex == c.exercise && c.link != nil && !c.link.Closed() {
		return nil
	}

	c.log.Infof("exercise %s -> %s", c.exercise, ex)
	c.exercise = ex

	old := c.link
	c.link = nil
	if old != nil {
		if err := old.Close(); err != nil {
			c.log.Warnf("close link: %v", err)
		}
	}

	// Ticks from the previous exercise no longer apply.
	c.latestMu.Lock()
	c.tick = nil
	c.tickGen++
	c.latestMu.Unlock()

	if old != nil || c.state == StateActive {
		c.connectLocked(ctx)
	}
	if c.sampler != nil {
		c.sampler.OnFrame(c.fanout(c.link))
	}

	return nil
}

// SetConstraints changes the camera constraints. While active the camera is
// restarted and the sampler keeps reading from the same element.
func (c *Controller) SetConstraints(ctx context.Context, cons media.Constraints) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.constraints = cons
	if c.state != StateActive {
		return nil
	}

	stream, err := c.manager.Start(ctx, cons)
	if err != nil {
		// The previous stream is gone, so there is nothing left to sample.
		c.haltSamplerLocked()
		c.element.Detach()
		c.state = StateIdle

		return err
	}
	c.element.Attach(stream.VideoTrack())
	c.log.Infof("camera restarted: %s", cons.Resolution)

	return nil
}

// Close stops the session and closes its link. The pose runtime is shared
// and left to its owner.
func (c *Controller) Close() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.stopLocked()
	c.closed = true

	if c.link == nil {
		return nil
	}
	err := c.link.Close()
	c.link = nil

	return err
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Status returns a snapshot of the session.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		ID:          c.id,
		State:       c.state,
		Exercise:    c.exercise,
		Constraints: c.constraints,
		Connected:   c.link != nil && !c.link.Closed(),
		LinkError:   c.linkErr,
		DeviceError: c.manager.Err(),
		Devices:     c.manager.Devices(),
	}
	if c.sampler != nil {
		st.Sampler = c.sampler.Stats()
	}

	return st
}

// Latest returns copies of the most recent frame and tick, or nil when none
// has arrived yet.
func (c *Controller) Latest() (*keypoint.Frame, *keypoint.Tick) {
	c.latestMu.Lock()
	defer c.latestMu.Unlock()

	var (
		frame *keypoint.Frame
		tick  *keypoint.Tick
	)
	if c.frame != nil {
		f := *c.frame
		frame = &f
	}
	if c.tick != nil {
		t := *c.tick
		tick = &t
	}

	return frame, tick
}

// Render paints the overlay for the latest frame and tick onto dst.
func (c *Controller) Render(dst draw.Image) render.Scene {
	frame, tick := c.Latest()
	b := dst.Bounds()
	scene := c.renderer.Compose(frame, tick, b.Dx(), b.Dy())
	if c.State() != StateActive {
		scene.Notice = noticeCameraOff
	}
	render.Paint(dst, scene)

	return scene
}

func (c *Controller) buildSamplerLocked(ctx context.Context) error {
	est, err := c.runtime.Ensure(ctx)
	if err != nil {
		return err
	}

	opts := append([]pose.SamplerOption{pose.SetLoggerFactory(c.loggerFactory)}, c.samplerOpts...)
	sampler, err := pose.NewSampler(c.element, est, opts...)
	if err != nil {
		return err
	}
	c.sampler = sampler

	return nil
}

// connectLocked opens a link for the current exercise. Failures are kept in
// Status and do not stop the session.
func (c *Controller) connectLocked(ctx context.Context) {
	c.linkErr = nil
	if c.dial == nil {
		return
	}

	// Ticks are tagged with the generation of the link that read them.
	c.latestMu.Lock()
	c.tickGen++
	gen := c.tickGen
	c.latestMu.Unlock()

	link, err := c.dial(ctx, c.exercise, func(tick keypoint.Tick) { c.handleTick(gen, tick) })
	if err != nil {
		c.linkErr = err
		c.log.Warnf("connect for %s: %v", c.exercise, err)

		return
	}
	c.link = link
}

// fanout returns the sampler subscriber delivering frames to link and to the
// overlay.
func (c *Controller) fanout(link Link) func(keypoint.Frame) {
	return func(frame keypoint.Frame) {
		if link != nil {
			link.Send(frame)
		}

		c.latestMu.Lock()
		c.frame = &frame
		c.latestMu.Unlock()

		if c.onFrame != nil {
			c.onFrame(frame)
		}
	}
}

// handleTick keeps ticks from the current link only; a closed link may still
// deliver one it had already read.
func (c *Controller) handleTick(gen uint64, tick keypoint.Tick) {
	c.latestMu.Lock()
	if gen != c.tickGen {
		c.latestMu.Unlock()

		return
	}
	c.tick = &tick
	c.latestMu.Unlock()

	if c.onTick != nil {
		c.onTick(tick)
	}
}
