// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package logging

import (
	"fmt"
	"strings"
	"time"

	"github.com/pion/posecoach/keypoint"
)

// FrameRecord describes one outgoing keypoint frame.
type FrameRecord struct {
	TimestampMS int64
	Joints      int
	Bytes       int
	Buffered    int
	Dropped     bool
}

// FrameFormat renders r as a trace line:
// now_ms, ts_ms, joints, bytes, buffered, dropped.
func FrameFormat(now time.Time, r FrameRecord) string {
	return fmt.Sprintf("%v, %v, %v, %v, %v, %v\n",
		now.UnixMilli(),
		r.TimestampMS,
		r.Joints,
		r.Bytes,
		r.Buffered,
		r.Dropped,
	)
}

// TickFormat renders an incoming feedback tick as a trace line:
// now_ms, rep_count, phase, tips. Tips are joined with '|'.
func TickFormat(now time.Time, t keypoint.Tick) string {
	tips := make([]string, len(t.Feedback))
	for i, tip := range t.Feedback {
		tips[i] = strings.ReplaceAll(tip, ",", ";")
	}

	return fmt.Sprintf("%v, %v, %v, %v\n",
		now.UnixMilli(),
		t.RepCount,
		t.Phase,
		strings.Join(tips, "|"),
	)
}
