// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package congestion defines the congestion-controller contract the
// send path observes and ships one concrete implementation sufficient
// to exercise that contract. Detailed congestion-control algorithms
// (cubic, BBR, ...) are explicitly out of scope for this module.
package congestion

import (
	"time"

	"github.com/abnv418/kwik/internal/protocol"
)

// Controller is the admission and feedback interface the send loop and
// ACK processor drive. Implementations decide internally whether
// packet-number spaces share one congestion window or keep independent
// accounting; this module's Reno implementation (reno.go) is unified
// across spaces.
type Controller interface {
	// CanSend reports whether bytes more could be sent without
	// exceeding the congestion window.
	CanSend(bytes protocol.ByteCount) bool
	// RegisterInFlight accounts size bytes as newly in flight.
	RegisterInFlight(size protocol.ByteCount)
	// RegisterAcked accounts size bytes as acknowledged, and may grow
	// the window.
	RegisterAcked(size protocol.ByteCount)
	// RegisterLost accounts size bytes as lost, and may shrink the
	// window.
	RegisterLost(size protocol.ByteCount)
	// WaitForUpdate blocks the caller until an ack or loss has been
	// processed, or deadline elapses, whichever comes first. It must
	// return even if no ack/loss ever arrives, so the send loop stays
	// interruptible.
	WaitForUpdate(deadline time.Time)
	// BytesInFlight and CongestionWindow report the current state, for
	// metrics and for the `bytes_in_flight(t) <= congestion_window(t)`
	// testable property.
	BytesInFlight() protocol.ByteCount
	CongestionWindow() protocol.ByteCount
}
