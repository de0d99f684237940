// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package pose

import "time"

// DefaultRefreshHz is the paint rate of the default display clock.
const DefaultRefreshHz = 60

// PaintClock delivers one tick per display paint. Ticks are dropped, not
// queued, when the receiver is busy.
type PaintClock interface {
	C() <-chan time.Time
	Stop()
}

type tickerClock struct {
	ticker *time.Ticker
}

// NewDisplayClock returns a clock ticking hz times per second.
func NewDisplayClock(hz int) PaintClock {
	if hz <= 0 {
		hz = DefaultRefreshHz
	}

	return &tickerClock{ticker: time.NewTicker(time.Second / time.Duration(hz))}
}

func (c *tickerClock) C() <-chan time.Time {
	return c.ticker.C
}

func (c *tickerClock) Stop() {
	c.ticker.Stop()
}
