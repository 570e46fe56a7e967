// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package quic

import (
	"time"

	"github.com/abnv418/kwik/internal/protocol"
	"github.com/abnv418/kwik/internal/wire"
)

// handleAckOrLoss deals with the final fate of a packet we sent: either
// the peer acknowledges it, or we declare it lost.
//
// A packet's individual frames are retained (wire.SentPacket.Frames)
// until the packet's fate is known, so loss or acknowledgement can act
// on them precisely: an ACK frame's own acknowledgement trims how much
// received-packet state we still report, while loss of anything else
// triggers frame-granular retransmission via each frame's own lost
// callback, stored on the in-flight record rather than
// recovered from the frame here.
func (c *Conn) handleAckOrLoss(space protocol.EncryptionLevel, id protocol.PacketIdentifier, sent *wire.SentPacket, acked bool) {
	if sent == nil {
		return
	}
	if acked {
		for _, f := range sent.Frames {
			if ack, ok := f.(wire.AckFrame); ok {
				// Loss of an ACK frame never triggers retransmission: ACKs
				// are sent in response to ack-eliciting packets and
				// always reflect current state. Acknowledgement of one
				// lets us discard state about older received packets.
				c.acks[space].HandleAck(ack.LargestAcked())
			}
		}
		return
	}
	c.loss.DeclareLost(id)
	if c.metrics != nil {
		c.metrics.retransmitCount.Inc()
	}
}

// processAcks feeds a received ACK frame at level through the ACK
// processor, then runs each newly-acknowledged packet's
// handleAckOrLoss side effects. This is the send path's only consumer of
// inbound ACK frames; parsing and dispatching the datagram that carried
// them is an external collaborator's job.
func (c *Conn) processAcks(ack wire.AckFrame, level protocol.EncryptionLevel, now time.Time) {
	for _, rg := range ack.Ranges {
		for pn := rg.Smallest; pn <= rg.Largest; pn++ {
			id := protocol.PacketIdentifier{Level: level, Number: pn}
			if rec, ok := c.loss.Registry.Get(id); ok && !rec.Acked {
				c.handleAckOrLoss(level, id, rec.Packet, true)
			}
		}
	}
	c.loss.Acks.Process(ack, level, now)
	c.updateMetrics()
}

// declareLost runs the loss path for id directly, e.g. from the crypto
// retransmission timer in retransmit.go rather than from a received ACK.
func (c *Conn) declareLost(space protocol.EncryptionLevel, id protocol.PacketIdentifier) {
	if rec, ok := c.loss.Registry.Get(id); ok {
		c.handleAckOrLoss(space, id, rec.Packet, false)
	}
}
