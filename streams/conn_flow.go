// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package streams

import (
	"sync"

	"github.com/abnv418/kwik/internal/protocol"
)

// ConnectionFlowController aggregates consumption across every stream's
// Input into a single connection-level flow-control window, growing it
// the same way a per-stream window grows: once flowControlUpdateThreshold
// of the current window has been consumed, a new window is due to be
// announced via MAX_DATA.
type ConnectionFlowController struct {
	mu sync.Mutex

	window        protocol.ByteCount
	consumedSince protocol.ByteCount
	pending       protocol.ByteCount
}

// NewConnectionFlowController returns a controller starting at
// initialWindow.
func NewConnectionFlowController(initialWindow protocol.ByteCount) *ConnectionFlowController {
	return &ConnectionFlowController{window: initialWindow}
}

// Consume records n additional bytes delivered to some stream's reader.
func (c *ConnectionFlowController) Consume(n protocol.ByteCount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consumedSince += n
	windowSize := c.window
	if windowSize > 0 && float64(c.consumedSince) >= float64(windowSize)*flowControlUpdateThreshold {
		c.window += protocol.ByteCount(float64(windowSize) * flowControlUpdateThreshold)
		c.pending = c.window
		c.consumedSince = 0
	}
}

// TakePendingMaxData returns the new window value to announce via a
// MAX_DATA frame, and clears it, or ok=false if no update is pending.
func (c *ConnectionFlowController) TakePendingMaxData() (window protocol.ByteCount, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == 0 {
		return 0, false
	}
	window = c.pending
	c.pending = 0
	return window, true
}
