// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package streams

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConnectionFlowControllerAtTenPercent checks that a MAX_DATA
// update becomes pending once 10% of the current connection-level
// window has been consumed, aggregated across whatever streams fed it.
func TestConnectionFlowControllerAtTenPercent(t *testing.T) {
	c := NewConnectionFlowController(100)
	c.Consume(6)
	c.Consume(4)

	window, ok := c.TakePendingMaxData()
	require.True(t, ok)
	assert.Equal(t, int64(110), int64(window))

	_, ok = c.TakePendingMaxData()
	assert.False(t, ok)
}

// TestInputDrainFeedsConnectionFlow checks that consuming bytes from a
// stream's Input also advances the connection-level controller it was
// wired to via SetConnFlow.
func TestInputDrainFeedsConnectionFlow(t *testing.T) {
	cf := NewConnectionFlowController(100)
	in := NewInput(0, 1000)
	in.SetConnFlow(cf)
	in.Deliver(0, make([]byte, 10), false)

	buf := make([]byte, 10)
	n := in.drainLocked(buf)
	assert.Equal(t, 10, n)

	window, ok := cf.TakePendingMaxData()
	require.True(t, ok)
	assert.Equal(t, int64(110), int64(window))
}
