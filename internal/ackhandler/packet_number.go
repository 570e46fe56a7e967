// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ackhandler implements the in-flight packet registry, the ACK
// processor, and the crypto retransmission bookkeeping for a QUIC send
// path.
package ackhandler

import (
	"sync"

	"github.com/abnv418/kwik/internal/protocol"
)

// PacketNumberAllocator hands out the monotonically increasing packet
// numbers for one encryption level. Each encryption level has its own
// allocator; there is no cross-level ordering.
type PacketNumberAllocator struct {
	mu   sync.Mutex
	next protocol.PacketNumber
}

// Next returns the current counter and increments it.
func (a *PacketNumberAllocator) Next() protocol.PacketNumber {
	a.mu.Lock()
	defer a.mu.Unlock()
	pn := a.next
	a.next++
	return pn
}

// Peek returns the counter's current value without incrementing it.
func (a *PacketNumberAllocator) Peek() protocol.PacketNumber {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}
