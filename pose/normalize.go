// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package pose

import (
	"math"

	"github.com/pion/posecoach/keypoint"
)

// Normalize maps raw landmarks onto the joint vocabulary and scales pixel
// coordinates into [0,1] by the frame size. Unknown names, non-finite values
// and scores below minScore are dropped. When two landmarks resolve to the
// same joint the more confident one is kept.
func Normalize(tsMS int64, landmarks []Landmark, width, height int, minScore float64) keypoint.Frame {
	frame := keypoint.Frame{
		TimestampMS: tsMS,
		Keypoints:   make(map[keypoint.Joint]keypoint.Keypoint),
	}
	if width <= 0 || height <= 0 {
		return frame
	}

	for _, lm := range landmarks {
		joint, ok := keypoint.Canonical(lm.Name)
		if !ok {
			continue
		}
		if !finite(lm.X) || !finite(lm.Y) || math.IsNaN(lm.Score) || lm.Score < minScore {
			continue
		}
		if prev, ok := frame.Keypoints[joint]; ok && prev.Confidence() >= lm.Score {
			continue
		}

		frame.Keypoints[joint] = keypoint.Keypoint{
			X:     clamp01(lm.X / float64(width)),
			Y:     clamp01(lm.Y / float64(height)),
			Score: keypoint.Score(lm.Score),
		}
	}

	return frame
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
