// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package congestion

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/abnv418/kwik/internal/protocol"
)

// minWindow is the floor the congestion window never shrinks below,
// regardless of how many consecutive losses are registered.
const minWindow protocol.ByteCount = 2 * 1200

// Reno is a minimal NewReno-style Controller: slow start until
// ssthresh, additive increase after, multiplicative decrease on loss.
// It is unified across encryption-level packet-number spaces: one cwnd
// and one bytes-in-flight counter for the whole connection, rather than
// independent accounting per packet-number space.
type Reno struct {
	mu sync.Mutex

	cwnd            protocol.ByteCount
	bytesInFlight   protocol.ByteCount
	ssthresh        protocol.ByteCount
	maxDatagramSize protocol.ByteCount
	underutilized   bool

	updatec chan struct{}
	// pacer bounds how often WaitForUpdate wakes up in the absence of a
	// real ack/loss signal, so a controller that never releases
	// admission still honors a bounded timeout.
	pacer *rate.Limiter
}

// NewReno returns a Reno controller with the given initial congestion
// window.
func NewReno(initialWindow protocol.ByteCount) *Reno {
	if initialWindow < minWindow {
		initialWindow = minWindow
	}
	return &Reno{
		cwnd:            initialWindow,
		ssthresh:        protocol.ByteCount(1) << 60,
		maxDatagramSize: 1200,
		updatec:         make(chan struct{}),
		pacer:           rate.NewLimiter(rate.Every(5*time.Millisecond), 1),
	}
}

var _ Controller = (*Reno)(nil)

func (c *Reno) CanSend(bytes protocol.ByteCount) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytesInFlight+bytes <= c.cwnd
}

func (c *Reno) RegisterInFlight(size protocol.ByteCount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bytesInFlight += size
}

func (c *Reno) RegisterAcked(size protocol.ByteCount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bytesInFlight = clampSub(c.bytesInFlight, size)
	if c.cwnd < c.ssthresh {
		c.cwnd += size // slow start
	} else {
		c.cwnd += c.maxDatagramSize * size / c.cwnd // congestion avoidance
	}
	c.underutilized = false
	c.signalLocked()
}

func (c *Reno) RegisterLost(size protocol.ByteCount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bytesInFlight = clampSub(c.bytesInFlight, size)
	c.ssthresh = c.cwnd / 2
	if c.ssthresh < minWindow {
		c.ssthresh = minWindow
	}
	c.cwnd = c.ssthresh
	c.signalLocked()
}

func (c *Reno) WaitForUpdate(deadline time.Time) {
	c.mu.Lock()
	ch := c.updatec
	c.mu.Unlock()

	timeout := time.Until(deadline)
	if timeout <= 0 {
		return
	}
	delay := c.pacer.Reserve().Delay()
	if delay <= 0 || delay > timeout {
		delay = timeout
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ch:
	case <-t.C:
	}
}

func (c *Reno) BytesInFlight() protocol.ByteCount {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytesInFlight
}

func (c *Reno) CongestionWindow() protocol.ByteCount {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cwnd
}

// SetUnderutilized records whether the congestion window went unused on
// the last send attempt. Reno does not currently use this for anything
// beyond bookkeeping, but the hook is kept so callers that track
// underutilization against any Controller implementation compile
// unchanged.
func (c *Reno) SetUnderutilized(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.underutilized = v
}

func (c *Reno) signalLocked() {
	close(c.updatec)
	c.updatec = make(chan struct{})
}

func clampSub(a, b protocol.ByteCount) protocol.ByteCount {
	if b > a {
		return 0
	}
	return a - b
}
