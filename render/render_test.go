// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package render

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/pion/posecoach/keypoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func armFrame(elbowScore float64) *keypoint.Frame {
	return &keypoint.Frame{
		TimestampMS: 1,
		Keypoints: map[keypoint.Joint]keypoint.Keypoint{
			keypoint.LeftWrist: {X: 0.2, Y: 0.5, Score: keypoint.Score(0.9)},
			keypoint.LeftElbow: {X: 0.2, Y: 0.3, Score: keypoint.Score(elbowScore)},
		},
	}
}

func TestCompose_LowConfidenceBoneSkipped(t *testing.T) {
	s := New().Compose(armFrame(0.1), nil, 200, 200)

	require.Len(t, s.Dots, 2)
	assert.Empty(t, s.Segments)
}

func TestCompose_ConfidentBoneDrawn(t *testing.T) {
	s := New().Compose(armFrame(0.5), nil, 200, 200)

	require.Len(t, s.Segments, 1)
	seg := s.Segments[0]
	assert.Equal(t, keypoint.LeftWrist, seg.From)
	assert.Equal(t, keypoint.LeftElbow, seg.To)
	assert.InDelta(t, 40, seg.A.X, 1e-9)
	assert.InDelta(t, 100, seg.A.Y, 1e-9)
	assert.InDelta(t, 60, seg.B.Y, 1e-9)
}

func TestCompose_ThresholdIsExclusive(t *testing.T) {
	r := New()
	assert.Empty(t, r.Compose(armFrame(DefaultThreshold), nil, 10, 10).Segments)
	assert.Len(t, r.Compose(armFrame(DefaultThreshold+0.01), nil, 10, 10).Segments, 1)
}

func TestCompose_MissingScoreCountsAsConfident(t *testing.T) {
	frame := &keypoint.Frame{Keypoints: map[keypoint.Joint]keypoint.Keypoint{
		keypoint.RightKnee: {X: 0.5, Y: 0.6},
		keypoint.RightHip:  {X: 0.5, Y: 0.4},
	}}

	s := New().Compose(frame, nil, 100, 100)
	require.Len(t, s.Segments, 1)
	assert.Equal(t, keypoint.RightKnee, s.Segments[0].From)
}

func TestCompose_FullSkeleton(t *testing.T) {
	frame := &keypoint.Frame{Keypoints: map[keypoint.Joint]keypoint.Keypoint{}}
	for _, j := range keypoint.Joints() {
		frame.Keypoints[j] = keypoint.Keypoint{X: 0.5, Y: 0.5, Score: keypoint.Score(1)}
	}

	s := New().Compose(frame, nil, 100, 100)
	assert.Len(t, s.Dots, 12)
	assert.Len(t, s.Segments, 8)
	// Dots follow the joint order.
	assert.Equal(t, keypoint.Joints()[0], s.Dots[0].Joint)
}

func TestCompose_NoDataYet(t *testing.T) {
	s := New().Compose(nil, nil, 640, 480)

	assert.Empty(t, s.Dots)
	assert.Empty(t, s.Segments)
	assert.Equal(t, 0, s.Reps)
	assert.Equal(t, "Reps: 0", s.RepLabel)
	assert.Equal(t, keypoint.PhaseIdle, s.Phase)
	assert.Equal(t, ColorIdle, s.PhaseColor)
	assert.Equal(t, Placeholder, s.Tip)
}

func TestCompose_Tick(t *testing.T) {
	tick := &keypoint.Tick{RepCount: 12, Phase: keypoint.PhaseDown, Feedback: []string{"Chest lower", "Elbows in"}}
	s := New().Compose(nil, tick, 640, 480)

	assert.Equal(t, "Reps: 12", s.RepLabel)
	assert.Equal(t, ColorDown, s.PhaseColor)
	assert.Equal(t, "Chest lower • Elbows in", s.Tip)

	tick = &keypoint.Tick{Phase: keypoint.PhaseUp, Feedback: []string{}}
	s = New().Compose(nil, tick, 640, 480)
	assert.Equal(t, ColorUp, s.PhaseColor)
	assert.Equal(t, Placeholder, s.Tip)
}

func TestPhaseColor(t *testing.T) {
	assert.Equal(t, color.RGBA{R: 0x2e, G: 0xcc, B: 0x71, A: 0xff}, PhaseColor(keypoint.PhaseUp))
	assert.Equal(t, color.RGBA{R: 0xe6, G: 0x7e, B: 0x22, A: 0xff}, PhaseColor(keypoint.PhaseDown))
	assert.Equal(t, color.RGBA{R: 0x95, G: 0xa5, B: 0xa6, A: 0xff}, PhaseColor(keypoint.PhaseIdle))
	assert.Equal(t, ColorIdle, PhaseColor("unknown"))
}

func whiteCanvas(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	return img
}

// assertColorNear allows for antialiasing rounding at full coverage.
func assertColorNear(t *testing.T, want, got color.RGBA) {
	t.Helper()

	near := func(a, b uint8) bool { return int(a)-int(b) <= 2 && int(b)-int(a) <= 2 }
	assert.True(t, near(want.R, got.R) && near(want.G, got.G) && near(want.B, got.B) && near(want.A, got.A),
		"want %v, got %v", want, got)
}

func TestPaint_SkeletonPixels(t *testing.T) {
	black := image.NewRGBA(image.Rect(0, 0, 200, 200))
	New().Render(black, armFrame(0.9), nil)

	// Dot centres take the dot colour.
	assertColorNear(t, dotColor, black.RGBAAt(40, 100))
	assertColorNear(t, dotColor, black.RGBAAt(40, 60))
	// The bone between them is painted.
	assertColorNear(t, boneColor, black.RGBAAt(40, 80))

	black = image.NewRGBA(image.Rect(0, 0, 200, 200))
	New().Render(black, armFrame(0.1), nil)
	assertColorNear(t, dotColor, black.RGBAAt(40, 100))
	assert.Equal(t, color.RGBA{}, black.RGBAAt(40, 80))
}

func TestPaint_HUD(t *testing.T) {
	idle := whiteCanvas(320, 240)
	scene := New().Render(idle, nil, nil)
	assert.Empty(t, scene.Dots)

	// Rep box darkens the top centre.
	top := idle.RGBAAt(160, margin+1)
	assert.Less(t, top.R, uint8(0xff))

	// Phase bar sits above the tip line.
	barY := 240 - margin - textHeight - 2*padding - barGap - barHeight/2
	idleBar := idle.RGBAAt(160, barY)
	assert.NotEqual(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, idleBar)

	up := whiteCanvas(320, 240)
	New().Render(up, nil, &keypoint.Tick{Phase: keypoint.PhaseUp, Feedback: []string{}})
	assert.NotEqual(t, idleBar, up.RGBAAt(160, barY))
	assert.Greater(t, up.RGBAAt(160, barY).G, up.RGBAAt(160, barY).R)
}

func TestPaint_OffsetBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(100, 100, 300, 300))
	New().Render(img, armFrame(0.9), nil)

	assertColorNear(t, dotColor, img.RGBAAt(140, 200))
	assertColorNear(t, boneColor, img.RGBAAt(140, 180))
}

func TestPaint_Notice(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	s := New().Compose(nil, nil, 200, 100)
	s.Notice = "Camera is off"
	Paint(img, s)

	lit := 0
	for x := 50; x < 150; x++ {
		for y := 40; y < 52; y++ {
			if img.RGBAAt(x, y) == noticeColor {
				lit++
			}
		}
	}
	assert.Positive(t, lit)
}
