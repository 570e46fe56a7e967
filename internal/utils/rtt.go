// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package utils holds small stateful helpers shared by the send path
// that don't belong to any single component: currently just the RTT
// estimator.
package utils

import (
	"sync"
	"time"
)

// initialRTT is the smoothed RTT assumed before any sample has been
// taken.
const initialRTT = 100 * time.Millisecond

// RTTStats tracks the smoothed round-trip time, its variance, and the
// minimum and latest observed samples, following the standard
// exponentially weighted moving average used for TCP/QUIC RTT
// estimation.
type RTTStats struct {
	mu sync.Mutex

	hasSample bool
	latest    time.Duration
	smoothed  time.Duration
	variance  time.Duration
	min       time.Duration
}

// NewRTTStats returns an estimator with the conventional initial
// smoothed value.
func NewRTTStats() *RTTStats {
	return &RTTStats{smoothed: initialRTT}
}

// AddSample folds in one RTT observation. now is the time the
// acknowledgement was received, timeSent is when the acknowledged
// packet was sent, and peerAckDelay is the delay the peer reported
// before sending the ACK.
func (r *RTTStats) AddSample(now, timeSent time.Time, peerAckDelay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	latest := now.Sub(timeSent)
	if latest < 0 {
		latest = 0
	}
	if peerAckDelay <= latest {
		latest -= peerAckDelay
	}

	if !r.hasSample {
		r.hasSample = true
		r.smoothed = latest
		r.variance = latest / 2
		r.min = latest
		r.latest = latest
		return
	}

	if r.min == 0 || latest < r.min {
		r.min = latest
	}
	diff := r.smoothed - latest
	if diff < 0 {
		diff = -diff
	}
	r.variance = (3*r.variance + diff) / 4
	r.smoothed = (7*r.smoothed + latest) / 8
	r.latest = latest
}

// SmoothedRTT returns the current smoothed RTT.
func (r *RTTStats) SmoothedRTT() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.smoothed
}

// Variance returns the current RTT variance.
func (r *RTTStats) Variance() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.variance
}

// MinRTT returns the smallest RTT sample observed so far, or 0 if no
// sample has been taken.
func (r *RTTStats) MinRTT() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.min
}

// LatestRTT returns the most recent individual sample.
func (r *RTTStats) LatestRTT() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

// PTO returns the probe timeout duration: smoothed RTT plus 4x
// variance, optionally adding the max ack delay. The crypto
// retransmission scheduler does not call it; its timeout is the explicit
// `base*srtt*2^n` formula of ackhandler.CryptoRetryScheduler.
func (r *RTTStats) PTO(includeMaxAckDelay bool, maxAckDelay time.Duration) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	pto := r.smoothed + 4*r.variance
	if includeMaxAckDelay {
		pto += maxAckDelay
	}
	return pto
}
