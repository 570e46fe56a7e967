// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ackhandler

import (
	"sort"
	"sync"
	"time"

	"github.com/abnv418/kwik/internal/protocol"
	"github.com/abnv418/kwik/internal/wire"
)

// maxAckDelay bounds how long an ack-eliciting packet may go
// unacknowledged before we must send an ACK frame, per RFC 9000 §13.2.1.
const maxAckDelay = 25 * time.Millisecond

// ReceivedTracker is the receive-side counterpart to Registry and
// AckProcessor: it tracks which packet numbers we've seen in one
// encryption level's number space so the send loop can build and send
// ACK frames for them. Inbound packet dispatch stays out of scope for
// this package; this only tracks packet numbers once something
// upstream hands them here.
type ReceivedTracker struct {
	mu sync.Mutex

	ranges       []wire.AckRange
	largestSeen  protocol.PacketNumber
	largestTime  time.Time
	pendingElicit int
	firstElicit  time.Time
}

// NewReceivedTracker returns an empty tracker.
func NewReceivedTracker() *ReceivedTracker {
	return &ReceivedTracker{largestSeen: protocol.InvalidPacketNumber}
}

// Received records that packet pn arrived at now, ackEliciting true if
// the packet carried any frame that itself requires acknowledgement.
func (t *ReceivedTracker) Received(pn protocol.PacketNumber, ackEliciting bool, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.insertLocked(pn)
	if pn > t.largestSeen || t.largestSeen == protocol.InvalidPacketNumber {
		t.largestSeen = pn
		t.largestTime = now
	}
	if ackEliciting {
		if t.pendingElicit == 0 {
			t.firstElicit = now
		}
		t.pendingElicit++
	}
}

func (t *ReceivedTracker) insertLocked(pn protocol.PacketNumber) {
	for i, r := range t.ranges {
		if pn >= r.Smallest && pn <= r.Largest {
			return
		}
		if pn == r.Largest+1 {
			t.ranges[i].Largest = pn
			t.coalesceLocked()
			return
		}
		if pn == r.Smallest-1 {
			t.ranges[i].Smallest = pn
			t.coalesceLocked()
			return
		}
	}
	t.ranges = append(t.ranges, wire.AckRange{Smallest: pn, Largest: pn})
	sort.Slice(t.ranges, func(i, j int) bool { return t.ranges[i].Largest > t.ranges[j].Largest })
}

func (t *ReceivedTracker) coalesceLocked() {
	sort.Slice(t.ranges, func(i, j int) bool { return t.ranges[i].Largest > t.ranges[j].Largest })
	out := t.ranges[:0]
	for _, r := range t.ranges {
		if len(out) > 0 && r.Largest+1 == out[len(out)-1].Smallest {
			out[len(out)-1].Smallest = r.Smallest
			continue
		}
		out = append(out, r)
	}
	t.ranges = out
}

// LargestSeen returns the largest packet number received so far, or
// protocol.InvalidPacketNumber if none.
func (t *ReceivedTracker) LargestSeen() protocol.PacketNumber {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.largestSeen
}

// ShouldSendAck reports whether an ACK is due: either immediately (too
// many ack-eliciting packets pending) or because maxAckDelay has
// elapsed since the first one arrived.
func (t *ReceivedTracker) ShouldSendAck(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pendingElicit == 0 {
		return false
	}
	if t.pendingElicit >= 2 {
		return true
	}
	return now.Sub(t.firstElicit) >= maxAckDelay
}

// AcksToSend returns the ranges to report and how long ago the largest
// one arrived, or ok=false if there is nothing to acknowledge.
func (t *ReceivedTracker) AcksToSend(now time.Time) (ranges []wire.AckRange, delay time.Duration, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.ranges) == 0 {
		return nil, 0, false
	}
	out := append([]wire.AckRange(nil), t.ranges...)
	return out, now.Sub(t.largestTime), true
}

// SentAck records that an ACK frame covering the currently pending
// ack-eliciting packets has been sent.
func (t *ReceivedTracker) SentAck() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingElicit = 0
}

// HandleAck processes acknowledgement of our own ACK frame: largest is
// the packet number the peer told us, via its own ACK, that it has
// received from us acknowledging up to. Loss of an ACK frame never
// triggers retransmission; this only lets us trim ranges
// we no longer need to keep reporting.
func (t *ReceivedTracker) HandleAck(largest protocol.PacketNumber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []wire.AckRange
	for _, r := range t.ranges {
		if r.Largest <= largest {
			continue
		}
		if r.Smallest <= largest {
			r.Smallest = largest + 1
		}
		out = append(out, r)
	}
	t.ranges = out
}
