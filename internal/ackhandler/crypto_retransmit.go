// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ackhandler

import (
	"sync"
	"time"
)

// CryptoRetryScheduler tracks the failed-retry counter behind the
// crypto retransmission timeout: `base * smoothed_rtt * 2^n`, where n
// is the number of consecutive timeouts since the handshake was last
// confirmed (or since startup) and base is a caller-supplied multiplier
// (2, by default, giving the usual `2 * smoothed_rtt * 2^n` rule). The
// timer itself lives in quic/retransmit.go; this type only owns the
// counter and the formula.
type CryptoRetryScheduler struct {
	mu      sync.Mutex
	retries int
}

// NewCryptoRetryScheduler returns a scheduler with zero failed retries.
func NewCryptoRetryScheduler() *CryptoRetryScheduler {
	return &CryptoRetryScheduler{}
}

// Timeout returns the duration to wait before the next crypto
// retransmission, given the current smoothed RTT and base multiplier.
func (s *CryptoRetryScheduler) Timeout(srtt time.Duration, base float64) time.Duration {
	s.mu.Lock()
	n := s.retries
	s.mu.Unlock()
	d := time.Duration(base * float64(srtt))
	for i := 0; i < n; i++ {
		d *= 2
	}
	return d
}

// RecordTimeout increments the failed-retry counter after a crypto
// retransmission timer fires.
func (s *CryptoRetryScheduler) RecordTimeout() {
	s.mu.Lock()
	s.retries++
	s.mu.Unlock()
}

// Reset zeroes the failed-retry counter, called when the handshake is
// confirmed.
func (s *CryptoRetryScheduler) Reset() {
	s.mu.Lock()
	s.retries = 0
	s.mu.Unlock()
}

// Retries returns the current failed-retry count, for metrics/tests.
func (s *CryptoRetryScheduler) Retries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}
