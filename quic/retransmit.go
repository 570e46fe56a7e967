// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package quic

import (
	"context"
	"time"

	"github.com/abnv418/kwik/internal/protocol"
)

// runRetransmitTimer is the dedicated timer/scheduler task that, while
// the handshake is in flight, re-arms a timer at
// `2 * smoothed_rtt * 2^retries` and, on expiry, declares the oldest
// unacknowledged CRYPTO-bearing packet in every space lost. That
// re-queues its CRYPTO data for retransmission via the packet's lost
// callback, increments the failed-retry counter, and logs
// "retransmit <id>".
func (c *Conn) runRetransmitTimer(ctx context.Context) {
	for {
		if !c.loss.Acks.HandshakeInFlight() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}

		multiplier := c.config.CryptoRetryBase
		if multiplier == 0 {
			multiplier = 2
		}
		timeout := c.retry.Timeout(c.loss.RTT.SmoothedRTT(), multiplier)

		t := time.NewTimer(timeout)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
			c.retransmitOldestCrypto()
			c.retry.RecordTimeout()
		}
	}
}

// retransmitOldestCrypto declares the oldest in-flight CRYPTO-bearing
// packet in each encryption level lost, triggering its frame's lost
// callback to re-queue that CRYPTO range.
func (c *Conn) retransmitOldestCrypto() {
	var done [protocol.NumberOfEncryptionLevels]bool
	for _, rec := range c.loss.Registry.SnapshotSorted() {
		if rec.Acked || rec.Resent || rec.Packet == nil || !rec.Packet.HasCrypto || done[rec.ID.Level] {
			continue
		}
		done[rec.ID.Level] = true
		c.logger.Sugar().Warnf("retransmit %s", rec.ID)
		c.declareLost(rec.ID.Level, rec.ID)
	}
}
