// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package congestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/abnv418/kwik/internal/protocol"
)

func TestRenoAdmission(t *testing.T) {
	r := NewReno(2400)
	assert.True(t, r.CanSend(1200))
	r.RegisterInFlight(2400)
	assert.False(t, r.CanSend(1))
}

func TestRenoSlowStartGrowsOnAck(t *testing.T) {
	r := NewReno(2400)
	r.RegisterInFlight(1200)
	before := r.CongestionWindow()
	r.RegisterAcked(1200)
	assert.Greater(t, r.CongestionWindow(), before)
	assert.Equal(t, protocol.ByteCount(0), r.BytesInFlight())
}

func TestRenoLossHalvesWindow(t *testing.T) {
	r := NewReno(4800)
	r.RegisterInFlight(4800)
	r.RegisterLost(4800)
	assert.Equal(t, protocol.ByteCount(2400), r.CongestionWindow())
	assert.Equal(t, protocol.ByteCount(0), r.BytesInFlight())
}

func TestRenoLossFloorsAtMinWindow(t *testing.T) {
	r := NewReno(minWindow)
	r.RegisterInFlight(minWindow)
	r.RegisterLost(minWindow)
	assert.Equal(t, minWindow, r.CongestionWindow())
}

func TestRenoWaitForUpdateReturnsByDeadline(t *testing.T) {
	r := NewReno(2400)
	start := time.Now()
	r.WaitForUpdate(start.Add(20 * time.Millisecond))
	assert.Less(t, time.Since(start), time.Second)
}

func TestRenoWaitForUpdatePastDeadlineReturnsImmediately(t *testing.T) {
	r := NewReno(2400)
	start := time.Now()
	r.WaitForUpdate(start.Add(-time.Millisecond))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
