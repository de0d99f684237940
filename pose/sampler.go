// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package pose

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
	"github.com/pion/posecoach/keypoint"
)

const (
	// DefaultTargetFPS is the sampling rate used when none is configured.
	DefaultTargetFPS = 30
	// MinTargetFPS and MaxTargetFPS bound the sampling rate.
	MinTargetFPS = 5
	MaxTargetFPS = 60
)

// ErrNoEstimator is returned by NewSampler without an estimator.
var ErrNoEstimator = errors.New("sampler requires an estimator")

// Video is the frame source a sampler reads from.
type Video interface {
	// CurrentFrame returns the latest decoded frame, or false before the
	// source has produced any data.
	CurrentFrame() (image.Image, bool)
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler) error

// TargetFPS sets the sampling rate, clamped into [MinTargetFPS, MaxTargetFPS].
func TargetFPS(fps int) SamplerOption {
	return func(s *Sampler) error {
		s.fps = min(max(fps, MinTargetFPS), MaxTargetFPS)

		return nil
	}
}

// MinScore drops landmarks whose confidence is below score.
func MinScore(score float64) SamplerOption {
	return func(s *Sampler) error {
		s.minScore = score

		return nil
	}
}

// WithPaintClock sets the factory for the clock driving each run.
func WithPaintClock(newClock func() PaintClock) SamplerOption {
	return func(s *Sampler) error {
		s.newClock = newClock

		return nil
	}
}

// SetLoggerFactory sets the logger factory used by the sampler.
func SetLoggerFactory(loggerFactory logging.LoggerFactory) SamplerOption {
	return func(s *Sampler) error {
		s.log = loggerFactory.NewLogger("pose_sampler")

		return nil
	}
}

// SamplerStats counts sampler activity since creation.
type SamplerStats struct {
	Ticks           uint64
	Accepted        uint64
	Emitted         uint64
	Suppressed      uint64
	InferenceErrors uint64
}

// Sampler runs pose estimation on a video source at a bounded rate, driven by
// a paint clock. At most one estimation is in flight; slow estimation thins
// out samples instead of queueing them.
type Sampler struct {
	video    Video
	est      Estimator
	fps      int
	minScore float64
	newClock func() PaintClock

	onFrame atomic.Pointer[func(keypoint.Frame)]

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	ticks      atomic.Uint64
	accepted   atomic.Uint64
	emitted    atomic.Uint64
	suppressed atomic.Uint64
	errs       atomic.Uint64

	log logging.LeveledLogger
}

// NewSampler creates a stopped sampler reading video through est.
func NewSampler(video Video, est Estimator, opts ...SamplerOption) (*Sampler, error) {
	if est == nil {
		return nil, ErrNoEstimator
	}

	s := &Sampler{
		video: video,
		est:   est,
		fps:   DefaultTargetFPS,
		newClock: func() PaintClock {
			return NewDisplayClock(DefaultRefreshHz)
		},
		log: logging.NewDefaultLoggerFactory().NewLogger("pose_sampler"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Interval is the minimum spacing between accepted samples.
func (s *Sampler) Interval() time.Duration {
	return time.Second / time.Duration(s.fps)
}

// OnFrame sets the subscriber for emitted frames, replacing any previous one.
// The callback runs on the sampling goroutine. A nil fn removes the
// subscriber.
func (s *Sampler) OnFrame(fn func(keypoint.Frame)) {
	if fn == nil {
		s.onFrame.Store(nil)

		return
	}
	s.onFrame.Store(&fn)
}

// Start begins sampling. It is a no-op when already running.
func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	clock := s.newClock()

	s.log.Infof("sampler started at %d fps", s.fps)
	go s.loop(ctx, clock, s.done)
}

// Stop halts sampling and waits for the loop to exit. A result from an
// estimation still in flight is discarded. Stop is a no-op when not running.
func (s *Sampler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("sampler stopped")
}

// Running reports whether the sampling loop is active.
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cancel != nil
}

// Stats returns a snapshot of the sampler counters.
func (s *Sampler) Stats() SamplerStats {
	return SamplerStats{
		Ticks:           s.ticks.Load(),
		Accepted:        s.accepted.Load(),
		Emitted:         s.emitted.Load(),
		Suppressed:      s.suppressed.Load(),
		InferenceErrors: s.errs.Load(),
	}
}

func (s *Sampler) loop(ctx context.Context, clock PaintClock, done chan struct{}) {
	defer close(done)
	defer clock.Stop()

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-clock.C():
			s.tick(ctx, now, &last)
		}
	}
}

func (s *Sampler) tick(ctx context.Context, now time.Time, last *time.Time) {
	s.ticks.Add(1)

	img, ok := s.video.CurrentFrame()
	if !ok || img == nil {
		return
	}
	if !last.IsZero() && now.Sub(*last) < s.Interval() {
		return
	}
	*last = now
	s.accepted.Add(1)

	b := img.Bounds()
	landmarks, err := s.est.Estimate(ctx, img, Options{FlipHorizontal: true})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.errs.Add(1)
		s.log.Debugf("estimate failed: %v", err)

		return
	}

	frame := Normalize(now.UnixMilli(), landmarks, b.Dx(), b.Dy(), s.minScore)
	if frame.Len() == 0 {
		s.suppressed.Add(1)

		return
	}

	if fn := s.onFrame.Load(); fn != nil {
		(*fn)(frame)
		s.emitted.Add(1)
	}
}
