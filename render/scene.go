// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package render draws the skeleton overlay and the coaching HUD.
package render

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/pion/posecoach/keypoint"
)

// DefaultThreshold is the confidence a joint needs for its bones to be drawn.
const DefaultThreshold = 0.3

// Placeholder is shown while there are no tips.
const Placeholder = "Getting ready..."

const tipSeparator = " • "

// Phase colours of the HUD bar.
var (
	ColorUp   = color.RGBA{R: 0x2e, G: 0xcc, B: 0x71, A: 0xff}
	ColorDown = color.RGBA{R: 0xe6, G: 0x7e, B: 0x22, A: 0xff}
	ColorIdle = color.RGBA{R: 0x95, G: 0xa5, B: 0xa6, A: 0xff}
)

// bones are the anatomically adjacent pairs connected in the overlay.
var bones = [][2]keypoint.Joint{ //nolint:gochecknoglobals // Fixed skeleton layout
	{keypoint.LeftWrist, keypoint.LeftElbow},
	{keypoint.LeftElbow, keypoint.LeftShoulder},
	{keypoint.LeftAnkle, keypoint.LeftKnee},
	{keypoint.LeftKnee, keypoint.LeftHip},
	{keypoint.RightWrist, keypoint.RightElbow},
	{keypoint.RightElbow, keypoint.RightShoulder},
	{keypoint.RightAnkle, keypoint.RightKnee},
	{keypoint.RightKnee, keypoint.RightHip},
}

// Point is a position in output pixels.
type Point struct {
	X float64
	Y float64
}

// Dot marks one detected joint.
type Dot struct {
	Joint keypoint.Joint
	At    Point
	Score float64
}

// Segment connects two confident joints.
type Segment struct {
	From keypoint.Joint
	To   keypoint.Joint
	A    Point
	B    Point
}

// Scene is everything drawn for one paint.
type Scene struct {
	Width    int
	Height   int
	Dots     []Dot
	Segments []Segment

	Reps       int
	RepLabel   string
	Phase      keypoint.Phase
	PhaseColor color.RGBA
	Tip        string
	// Notice is drawn centered over the frame, e.g. while the camera is off.
	Notice string
}

// Renderer turns the latest frame and tick into a Scene.
type Renderer struct {
	Threshold float64
}

// New returns a renderer with the default bone threshold.
func New() *Renderer {
	return &Renderer{Threshold: DefaultThreshold}
}

// Compose builds the scene for a w x h output. A nil frame draws no
// skeleton; a nil tick shows zero reps, the idle phase and the placeholder.
func (r *Renderer) Compose(frame *keypoint.Frame, tick *keypoint.Tick, w, h int) Scene {
	s := Scene{Width: w, Height: h}

	if frame != nil {
		for _, joint := range keypoint.Joints() {
			kp, ok := frame.Get(joint)
			if !ok {
				continue
			}
			s.Dots = append(s.Dots, Dot{Joint: joint, At: project(kp, w, h), Score: kp.Confidence()})
		}
		for _, bone := range bones {
			a, okA := frame.Get(bone[0])
			b, okB := frame.Get(bone[1])
			if !okA || !okB || a.Confidence() <= r.Threshold || b.Confidence() <= r.Threshold {
				continue
			}
			s.Segments = append(s.Segments, Segment{
				From: bone[0],
				To:   bone[1],
				A:    project(a, w, h),
				B:    project(b, w, h),
			})
		}
	}

	t := keypoint.IdleTick()
	if tick != nil {
		t = *tick
	}
	s.Reps = t.RepCount
	s.RepLabel = fmt.Sprintf("Reps: %d", t.RepCount)
	s.Phase = t.Phase
	s.PhaseColor = PhaseColor(t.Phase)
	s.Tip = TipText(t.Feedback)

	return s
}

// PhaseColor returns the HUD colour for p.
func PhaseColor(p keypoint.Phase) color.RGBA {
	switch p {
	case keypoint.PhaseUp:
		return ColorUp
	case keypoint.PhaseDown:
		return ColorDown
	default:
		return ColorIdle
	}
}

// TipText joins tips for display, or returns the placeholder.
func TipText(tips []string) string {
	if len(tips) == 0 {
		return Placeholder
	}

	return strings.Join(tips, tipSeparator)
}

func project(kp keypoint.Keypoint, w, h int) Point {
	return Point{X: kp.X * float64(w), Y: kp.Y * float64(h)}
}
