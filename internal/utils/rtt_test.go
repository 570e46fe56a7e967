// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRTTStatsInitialValue(t *testing.T) {
	r := NewRTTStats()
	assert.Equal(t, initialRTT, r.SmoothedRTT())
}

func TestRTTStatsFirstSample(t *testing.T) {
	r := NewRTTStats()
	sent := time.Now()
	r.AddSample(sent.Add(40*time.Millisecond), sent, 0)
	assert.Equal(t, 40*time.Millisecond, r.SmoothedRTT())
	assert.Equal(t, 40*time.Millisecond, r.MinRTT())
}

func TestRTTStatsAckDelayClamped(t *testing.T) {
	r := NewRTTStats()
	sent := time.Now()
	// peerAckDelay larger than the measured latest RTT: the delay is
	// not subtracted (it would go negative).
	r.AddSample(sent.Add(10*time.Millisecond), sent, 50*time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, r.LatestRTT())
}

func TestRTTStatsSmoothing(t *testing.T) {
	r := NewRTTStats()
	sent := time.Now()
	r.AddSample(sent.Add(100*time.Millisecond), sent, 0)
	r.AddSample(sent.Add(200*time.Millisecond).Add(100*time.Millisecond), sent.Add(200*time.Millisecond), 0)
	// smoothed = (7*100 + 100)/8 = 100ms still, second sample also 100ms
	assert.Equal(t, 100*time.Millisecond, r.SmoothedRTT())
}
