// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package pose

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/posecoach/keypoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualClock delivers ticks only when the test sends them. The channel is
// unbuffered, so a send returns once the loop has taken the tick.
type manualClock struct {
	c       chan time.Time
	stopped atomic.Bool
}

func newManualClock() *manualClock {
	return &manualClock{c: make(chan time.Time)}
}

func (m *manualClock) C() <-chan time.Time { return m.c }

func (m *manualClock) Stop() { m.stopped.Store(true) }

func (m *manualClock) tick(t *testing.T, now time.Time) {
	t.Helper()

	select {
	case m.c <- now:
	case <-time.After(time.Second):
		t.Fatal("sampler did not take tick")
	}
}

type stillVideo struct {
	mu    sync.Mutex
	img   image.Image
	reads atomic.Int32
}

func (v *stillVideo) CurrentFrame() (image.Image, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.reads.Add(1)

	return v.img, v.img != nil
}

func (v *stillVideo) set(img image.Image) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.img = img
}

type frameSink struct {
	mu     sync.Mutex
	frames []keypoint.Frame
}

func (s *frameSink) add(f keypoint.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames = append(s.frames, f)
}

func (s *frameSink) all() []keypoint.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]keypoint.Frame(nil), s.frames...)
}

func fixedEstimator(landmarks ...Landmark) EstimatorFunc {
	return func(context.Context, image.Image, Options) ([]Landmark, error) {
		return append([]Landmark(nil), landmarks...), nil
	}
}

func newTestSampler(t *testing.T, video Video, est Estimator, clock *manualClock, opts ...SamplerOption) *Sampler {
	t.Helper()

	opts = append([]SamplerOption{WithPaintClock(func() PaintClock { return clock })}, opts...)
	s, err := NewSampler(video, est, opts...)
	require.NoError(t, err)

	return s
}

var epoch = time.UnixMilli(1_700_000_000_000)

// settle waits until the sampler counters satisfy cond. A tick that is still
// being processed when Stop is called has its result discarded.
func settle(t *testing.T, s *Sampler, cond func(SamplerStats) bool) {
	t.Helper()

	require.Eventually(t, func() bool { return cond(s.Stats()) }, time.Second, time.Millisecond)
}

func emitted(n uint64) func(SamplerStats) bool {
	return func(st SamplerStats) bool { return st.Emitted == n }
}

func TestSampler_EmitsNormalizedFrames(t *testing.T) {
	video := &stillVideo{img: image.NewRGBA(image.Rect(0, 0, 200, 100))}
	var flipped atomic.Bool
	est := EstimatorFunc(func(_ context.Context, _ image.Image, opts Options) ([]Landmark, error) {
		flipped.Store(opts.FlipHorizontal)

		return []Landmark{
			{Name: "left_wrist", X: 100, Y: 50, Score: 0.9},
			{Name: "leftElbow", X: 250, Y: -10, Score: 0.1},
			{Name: "nose", X: 10, Y: 10, Score: 0.99},
		}, nil
	})
	clock := newManualClock()
	s := newTestSampler(t, video, est, clock)

	sink := &frameSink{}
	s.OnFrame(sink.add)
	s.Start()
	clock.tick(t, epoch)
	settle(t, s, emitted(1))
	s.Stop()

	frames := sink.all()
	require.Len(t, frames, 1)
	f := frames[0]
	assert.Equal(t, epoch.UnixMilli(), f.TimestampMS)
	require.Equal(t, 2, f.Len())
	assert.True(t, flipped.Load())

	wrist, ok := f.Get(keypoint.LeftWrist)
	require.True(t, ok)
	assert.InDelta(t, 0.5, wrist.X, 1e-9)
	assert.InDelta(t, 0.5, wrist.Y, 1e-9)
	assert.InDelta(t, 0.9, wrist.Confidence(), 1e-9)

	// Low confidence joints are kept; filtering them is a rendering concern.
	elbow, ok := f.Get(keypoint.LeftElbow)
	require.True(t, ok)
	assert.InDelta(t, 1.0, elbow.X, 1e-9)
	assert.InDelta(t, 0.0, elbow.Y, 1e-9)
	assert.InDelta(t, 0.1, elbow.Confidence(), 1e-9)

	for joint, kp := range f.Keypoints {
		assert.True(t, joint.Valid(), joint)
		assert.GreaterOrEqual(t, kp.X, 0.0)
		assert.LessOrEqual(t, kp.X, 1.0)
		assert.GreaterOrEqual(t, kp.Y, 0.0)
		assert.LessOrEqual(t, kp.Y, 1.0)
	}
}

func TestSampler_RespectsInterval(t *testing.T) {
	for _, fps := range []int{5, 10, 30, 60} {
		video := &stillVideo{img: image.NewRGBA(image.Rect(0, 0, 10, 10))}
		clock := newManualClock()
		s := newTestSampler(t, video, fixedEstimator(Landmark{Name: "nose_ignored"}, Landmark{Name: "right_knee", X: 5, Y: 5, Score: 1}), clock, TargetFPS(fps))

		sink := &frameSink{}
		s.OnFrame(sink.add)
		s.Start()

		paint := time.Second / 60
		for i := range 120 {
			clock.tick(t, epoch.Add(time.Duration(i)*paint))
		}
		s.Stop()

		frames := sink.all()
		require.NotEmpty(t, frames, fps)
		interval := s.Interval().Milliseconds()
		for i := 1; i < len(frames); i++ {
			gap := frames[i].TimestampMS - frames[i-1].TimestampMS
			assert.GreaterOrEqual(t, gap, interval, "fps=%d", fps)
			assert.LessOrEqual(t, gap, interval+paint.Milliseconds()+1, "fps=%d", fps)
		}
		assert.Equal(t, uint64(120), s.Stats().Ticks)
	}
}

func TestSampler_WaitsForVideoData(t *testing.T) {
	video := &stillVideo{}
	var calls atomic.Int32
	est := EstimatorFunc(func(context.Context, image.Image, Options) ([]Landmark, error) {
		calls.Add(1)

		return []Landmark{{Name: "left_hip", X: 1, Y: 1, Score: 1}}, nil
	})
	clock := newManualClock()
	s := newTestSampler(t, video, est, clock)
	sink := &frameSink{}
	s.OnFrame(sink.add)
	s.Start()

	clock.tick(t, epoch)
	clock.tick(t, epoch.Add(time.Second))
	// A tick is taken before it is evaluated; wait until the second one has
	// looked at the empty video.
	require.Eventually(t, func() bool { return video.reads.Load() == 2 }, time.Second, time.Millisecond)
	video.set(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	clock.tick(t, epoch.Add(2*time.Second))
	settle(t, s, emitted(1))
	s.Stop()

	assert.Equal(t, int32(1), calls.Load())
	assert.Len(t, sink.all(), 1)
	stats := s.Stats()
	assert.Equal(t, uint64(3), stats.Ticks)
	assert.Equal(t, uint64(1), stats.Accepted)
}

func TestSampler_SwallowsEstimateErrors(t *testing.T) {
	video := &stillVideo{img: image.NewRGBA(image.Rect(0, 0, 4, 4))}
	var calls atomic.Int32
	est := EstimatorFunc(func(context.Context, image.Image, Options) ([]Landmark, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("inference failed")
		}

		return []Landmark{{Name: "right_shoulder", X: 2, Y: 2, Score: 0.8}}, nil
	})
	clock := newManualClock()
	s := newTestSampler(t, video, est, clock)
	sink := &frameSink{}
	s.OnFrame(sink.add)
	s.Start()

	clock.tick(t, epoch)
	clock.tick(t, epoch.Add(time.Second))
	settle(t, s, emitted(1))
	s.Stop()

	assert.Len(t, sink.all(), 1)
	assert.Equal(t, uint64(1), s.Stats().InferenceErrors)
	assert.Equal(t, uint64(1), s.Stats().Emitted)
}

func TestSampler_SuppressesEmptyFrames(t *testing.T) {
	video := &stillVideo{img: image.NewRGBA(image.Rect(0, 0, 4, 4))}
	clock := newManualClock()
	s := newTestSampler(t, video, fixedEstimator(Landmark{Name: "nose", X: 1, Y: 1, Score: 1}), clock)
	sink := &frameSink{}
	s.OnFrame(sink.add)
	s.Start()

	clock.tick(t, epoch)
	clock.tick(t, epoch.Add(time.Second))
	settle(t, s, func(st SamplerStats) bool { return st.Suppressed == 2 })
	s.Stop()

	assert.Empty(t, sink.all())
	assert.Equal(t, uint64(2), s.Stats().Suppressed)
}

func TestSampler_StopCancelsClock(t *testing.T) {
	video := &stillVideo{img: image.NewRGBA(image.Rect(0, 0, 4, 4))}
	var clocks []*manualClock
	s, err := NewSampler(video, fixedEstimator(Landmark{Name: "left_knee", Score: 1}), WithPaintClock(func() PaintClock {
		c := newManualClock()
		clocks = append(clocks, c)

		return c
	}))
	require.NoError(t, err)

	assert.False(t, s.Running())
	s.Start()
	s.Start()
	assert.True(t, s.Running())
	require.Len(t, clocks, 1)

	s.Stop()
	assert.False(t, s.Running())
	assert.True(t, clocks[0].stopped.Load())

	select {
	case clocks[0].c <- epoch:
		t.Fatal("stopped sampler took a tick")
	case <-time.After(20 * time.Millisecond):
	}

	// Restarting arms a fresh clock.
	s.Start()
	require.Len(t, clocks, 2)
	clocks[1].tick(t, epoch)
	s.Stop()
	s.Stop()
}

func TestSampler_DiscardsInFlightResultOnStop(t *testing.T) {
	video := &stillVideo{img: image.NewRGBA(image.Rect(0, 0, 4, 4))}
	entered := make(chan struct{})
	est := EstimatorFunc(func(ctx context.Context, _ image.Image, _ Options) ([]Landmark, error) {
		close(entered)
		<-ctx.Done()

		return []Landmark{{Name: "left_ankle", X: 1, Y: 1, Score: 1}}, nil
	})
	clock := newManualClock()
	s := newTestSampler(t, video, est, clock)
	sink := &frameSink{}
	s.OnFrame(sink.add)
	s.Start()

	clock.tick(t, epoch)
	<-entered
	s.Stop()

	assert.Empty(t, sink.all())
	assert.Equal(t, uint64(1), s.Stats().Accepted)
	assert.Equal(t, uint64(0), s.Stats().Emitted)
}

func TestSampler_LastSubscriberWins(t *testing.T) {
	video := &stillVideo{img: image.NewRGBA(image.Rect(0, 0, 4, 4))}
	clock := newManualClock()
	s := newTestSampler(t, video, fixedEstimator(Landmark{Name: "RIGHT_HIP", X: 1, Y: 1, Score: 1}), clock)

	first, second := &frameSink{}, &frameSink{}
	s.OnFrame(first.add)
	s.OnFrame(second.add)
	s.Start()
	clock.tick(t, epoch)
	settle(t, s, emitted(1))
	s.Stop()

	assert.Empty(t, first.all())
	require.Len(t, second.all(), 1)
	_, ok := second.all()[0].Get(keypoint.RightHip)
	assert.True(t, ok)

	// Without a subscriber frames are dropped silently.
	s.OnFrame(nil)
	s.Start()
	clock.tick(t, epoch.Add(time.Second))
	s.Stop()
	assert.Len(t, second.all(), 1)
}

func TestTargetFPSClamped(t *testing.T) {
	tests := []struct {
		fps      int
		interval time.Duration
	}{
		{1, 200 * time.Millisecond},
		{5, 200 * time.Millisecond},
		{30, time.Second / 30},
		{60, time.Second / 60},
		{240, time.Second / 60},
	}

	for _, tt := range tests {
		s, err := NewSampler(&stillVideo{}, fixedEstimator(), TargetFPS(tt.fps))
		require.NoError(t, err)
		assert.Equal(t, tt.interval, s.Interval(), tt.fps)
	}

	s, err := NewSampler(&stillVideo{}, fixedEstimator())
	require.NoError(t, err)
	assert.Equal(t, time.Second/DefaultTargetFPS, s.Interval())

	_, err = NewSampler(&stillVideo{}, nil)
	require.ErrorIs(t, err, ErrNoEstimator)
}
