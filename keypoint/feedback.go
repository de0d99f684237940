// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package keypoint

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Exercise selects the analysis performed by the remote service.
type Exercise string

// Supported exercises.
const (
	PushUp Exercise = "push_up"
	Squat  Exercise = "squat"
)

// Phase is the coarse state of a repetition as judged by the service.
type Phase string

// Repetition phases.
const (
	PhaseIdle Phase = "idle"
	PhaseDown Phase = "down"
	PhaseUp   Phase = "up"
)

// Static errors for exercise and tick parsing.
var (
	ErrUnknownExercise = errors.New("unknown exercise")
	ErrUnknownPhase    = errors.New("unknown phase")
	ErrNegativeReps    = errors.New("negative rep count")
	ErrMissingReps     = errors.New("missing rep_count")
)

// ParseExercise validates an exercise selector.
func ParseExercise(s string) (Exercise, error) {
	e := Exercise(s)
	if !e.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownExercise, s)
	}

	return e, nil
}

// Valid reports whether e is a supported exercise.
func (e Exercise) Valid() bool {
	return e == PushUp || e == Squat
}

func (e Exercise) String() string {
	return string(e)
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseIdle, PhaseDown, PhaseUp:
		return true
	}

	return false
}

// Tick is one server-authoritative feedback update. Each tick replaces the
// previous one entirely.
type Tick struct {
	RepCount int      `json:"rep_count"`
	Phase    Phase    `json:"phase"`
	Feedback []string `json:"feedback"`
}

// IdleTick is the state displayed before the first tick arrives.
func IdleTick() Tick {
	return Tick{RepCount: 0, Phase: PhaseIdle, Feedback: []string{}}
}

// DecodeTick parses an inbound feedback message.
func DecodeTick(data []byte) (Tick, error) {
	var raw struct {
		RepCount *int     `json:"rep_count"`
		Phase    Phase    `json:"phase"`
		Feedback []string `json:"feedback"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Tick{}, err
	}
	if raw.RepCount == nil {
		return Tick{}, ErrMissingReps
	}
	if *raw.RepCount < 0 {
		return Tick{}, fmt.Errorf("%w: %d", ErrNegativeReps, *raw.RepCount)
	}
	if !raw.Phase.Valid() {
		return Tick{}, fmt.Errorf("%w: %q", ErrUnknownPhase, raw.Phase)
	}
	if raw.Feedback == nil {
		raw.Feedback = []string{}
	}

	return Tick{RepCount: *raw.RepCount, Phase: raw.Phase, Feedback: raw.Feedback}, nil
}

// EncodeTick serializes t in the wire format. Used by test peers.
func EncodeTick(t Tick) ([]byte, error) {
	if t.Feedback == nil {
		t.Feedback = []string{}
	}

	return json.Marshal(t)
}
