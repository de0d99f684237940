// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package keypoint defines the body keypoint frames and feedback ticks exchanged
// between the pose sampler, the stream transport and the feedback renderer.
package keypoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Joint names one anatomical landmark of the fixed twelve joint vocabulary.
type Joint string

// The joint vocabulary understood by the analysis service.
const (
	LeftShoulder  Joint = "left_shoulder"
	RightShoulder Joint = "right_shoulder"
	LeftElbow     Joint = "left_elbow"
	RightElbow    Joint = "right_elbow"
	LeftWrist     Joint = "left_wrist"
	RightWrist    Joint = "right_wrist"
	LeftHip       Joint = "left_hip"
	RightHip      Joint = "right_hip"
	LeftKnee      Joint = "left_knee"
	RightKnee     Joint = "right_knee"
	LeftAnkle     Joint = "left_ankle"
	RightAnkle    Joint = "right_ankle"
)

//nolint:gochecknoglobals
var joints = []Joint{
	LeftShoulder, RightShoulder,
	LeftElbow, RightElbow,
	LeftWrist, RightWrist,
	LeftHip, RightHip,
	LeftKnee, RightKnee,
	LeftAnkle, RightAnkle,
}

// synonyms is keyed by the folded form of a name: lower case with every
// separator removed, so left_wrist, leftWrist, Left-Wrist and "left wrist"
// all land on the same entry.
//
//nolint:gochecknoglobals
var synonyms = func() map[string]Joint {
	m := make(map[string]Joint, len(joints))
	for _, j := range joints {
		m[fold(string(j))] = j
	}

	return m
}()

// Joints returns the vocabulary in canonical order.
func Joints() []Joint {
	out := make([]Joint, len(joints))
	copy(out, joints)

	return out
}

// Valid reports whether j belongs to the vocabulary.
func (j Joint) Valid() bool {
	return slices.Contains(joints, j)
}

// Canonical maps a landmark name reported by a pose model onto the vocabulary.
func Canonical(name string) (Joint, bool) {
	if name == "" {
		return "", false
	}
	j, ok := synonyms[fold(name)]

	return j, ok
}

func fold(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		switch r {
		case '_', '-', ' ', '.':
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}

// Keypoint is a joint position normalized to the frame size, with an
// optional confidence.
type Keypoint struct {
	X     float64  `json:"x"`
	Y     float64  `json:"y"`
	Score *float64 `json:"score,omitempty"`
}

// Confidence returns the score, or 1 when the model reported none.
func (k Keypoint) Confidence() float64 {
	if k.Score == nil {
		return 1
	}

	return *k.Score
}

// Score is a convenience for building a Keypoint score pointer.
func Score(v float64) *float64 {
	return &v
}

// Frame is one timestamped sample of the detected keypoints. A joint missing
// from Keypoints was not detected in this sample.
type Frame struct {
	TimestampMS int64              `json:"ts_ms"`
	Keypoints   map[Joint]Keypoint `json:"keypoints"`
}

// Len returns the number of detected joints.
func (f Frame) Len() int {
	return len(f.Keypoints)
}

// Get returns the keypoint for j if it was detected.
func (f Frame) Get(j Joint) (Keypoint, bool) {
	k, ok := f.Keypoints[j]

	return k, ok
}

// Static errors for frame decoding.
var (
	ErrUnknownJoint = errors.New("unknown joint")
	ErrMissingTS    = errors.New("missing ts_ms")
)

// EncodeFrame serializes f in the streaming wire format.
func EncodeFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// DecodeFrame parses a wire-format frame, rejecting joints outside the vocabulary.
func DecodeFrame(data []byte) (Frame, error) {
	var raw struct {
		TimestampMS *int64              `json:"ts_ms"`
		Keypoints   map[string]Keypoint `json:"keypoints"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Frame{}, err
	}
	if raw.TimestampMS == nil {
		return Frame{}, ErrMissingTS
	}

	frame := Frame{
		TimestampMS: *raw.TimestampMS,
		Keypoints:   make(map[Joint]Keypoint, len(raw.Keypoints)),
	}
	for name, kp := range raw.Keypoints {
		j, ok := Canonical(name)
		if !ok {
			return Frame{}, fmt.Errorf("%w: %s", ErrUnknownJoint, name)
		}
		frame.Keypoints[j] = kp
	}

	return frame, nil
}
