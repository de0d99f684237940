// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package keypoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExercise(t *testing.T) {
	ex, err := ParseExercise("push_up")
	require.NoError(t, err)
	assert.Equal(t, PushUp, ex)

	ex, err = ParseExercise("squat")
	require.NoError(t, err)
	assert.Equal(t, Squat, ex)

	_, err = ParseExercise("lunge")
	require.ErrorIs(t, err, ErrUnknownExercise)
}

func TestDecodeTick(t *testing.T) {
	tick, err := DecodeTick([]byte(`{"rep_count":3,"phase":"down","feedback":["Keep your back straight","Lower slowly"]}`))
	require.NoError(t, err)
	assert.Equal(t, 3, tick.RepCount)
	assert.Equal(t, PhaseDown, tick.Phase)
	assert.Equal(t, []string{"Keep your back straight", "Lower slowly"}, tick.Feedback)

	tick, err = DecodeTick([]byte(`{"rep_count":0,"phase":"idle"}`))
	require.NoError(t, err)
	assert.NotNil(t, tick.Feedback)
	assert.Empty(t, tick.Feedback)
}

func TestDecodeTickMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		err     error
	}{
		{"not json", `{{`, nil},
		{"unknown phase", `{"rep_count":1,"phase":"sideways","feedback":[]}`, ErrUnknownPhase},
		{"negative reps", `{"rep_count":-1,"phase":"up","feedback":[]}`, ErrNegativeReps},
		{"missing reps", `{"phase":"up","feedback":[]}`, ErrMissingReps},
		{"wrong type", `{"rep_count":"one","phase":"up"}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTick([]byte(tt.payload))
			require.Error(t, err)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestEncodeTick(t *testing.T) {
	data, err := EncodeTick(Tick{RepCount: 2, Phase: PhaseUp})
	require.NoError(t, err)
	assert.JSONEq(t, `{"rep_count":2,"phase":"up","feedback":[]}`, string(data))
}

func TestIdleTick(t *testing.T) {
	tick := IdleTick()
	assert.Equal(t, 0, tick.RepCount)
	assert.Equal(t, PhaseIdle, tick.Phase)
	assert.Empty(t, tick.Feedback)
}
