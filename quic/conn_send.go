// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package quic

import (
	"time"

	"github.com/abnv418/kwik/internal/ackhandler"
	"github.com/abnv418/kwik/internal/protocol"
	"github.com/abnv418/kwik/internal/wire"
	"github.com/abnv418/kwik/streams"
)

// maybeSend sends datagrams, if possible.
//
// If sending is blocked by pacing or congestion control, it returns the
// next time a datagram may be sent. A non-nil error means the
// datagram's I/O failed; the caller (runSendLoop) treats that as fatal.
//
// Assumption: the congestion window is not underutilized. If congestion
// control and pacing both permit sending but we have no packet to send,
// we declare the window underutilized via SetUnderutilized.
func (c *Conn) maybeSend(now time.Time) (next time.Time, err error) {
	if r, ok := c.loss.CC.(interface{ SetUnderutilized(bool) }); ok {
		r.SetUnderutilized(false)
	}

	// Send one datagram per iteration, until a limit is hit or there is
	// nothing left to send. For each encryption level where we have
	// write keys, speculatively build a packet: if it ends up with no
	// frames, abandon it. Speculative construction avoids separate
	// "do we have data to send?" and "send the data" code paths that
	// would need to be kept in sync.
	for {
		limit, limitNext := c.loss.SendLimit(now)
		if limit == ackhandler.LimitBlocked {
			return limitNext, nil
		}

		c.w.Reset(c.loss.MaxSendSize())

		pad := false
		var sentInitial *wire.SentPacket
		var lostInitial []func()

		if k := c.wkeys[protocol.EncryptionInitial]; k.IsSet() {
			pnumMaxAcked := c.acks[protocol.EncryptionInitial].LargestSeen()
			pnum := c.loss.NextNumber(protocol.EncryptionInitial)
			c.w.StartProtectedLongHeaderPacket(wire.PacketTypeInitial, 1, c.peerConnID, c.localConnID, pnum, pnumMaxAcked)
			lostInitial = c.appendFrames(now, protocol.EncryptionInitial, pnum, limit)
			sentInitial = c.w.FinishProtectedLongHeaderPacket(k)
			if sentInitial == nil {
				c.w.AbandonPacket()
			} else if c.side == protocol.PerspectiveClient || sentInitial.AckEliciting {
				// Client Initial datagrams must be padded to at least
				// minimumClientInitialDatagramSize; deferred until after
				// any coalesced packets, below.
				pad = true
			}
		}

		if k := c.wkeys[protocol.EncryptionHandshake]; k.IsSet() {
			pnumMaxAcked := c.acks[protocol.EncryptionHandshake].LargestSeen()
			pnum := c.loss.NextNumber(protocol.EncryptionHandshake)
			c.w.StartProtectedLongHeaderPacket(wire.PacketTypeHandshake, 1, c.peerConnID, c.localConnID, pnum, pnumMaxAcked)
			lost := c.appendFrames(now, protocol.EncryptionHandshake, pnum, limit)
			if sent := c.w.FinishProtectedLongHeaderPacket(k); sent != nil {
				c.loss.PacketSent(now, protocol.EncryptionHandshake, sent, combineLost(lost))
				c.updateMetrics()
			} else {
				c.w.AbandonPacket()
			}
		}

		if k := c.wkeys[protocol.Encryption1RTT]; k.IsSet() {
			pnumMaxAcked := c.acks[protocol.Encryption1RTT].LargestSeen()
			pnum := c.loss.NextNumber(protocol.Encryption1RTT)
			c.w.Start1RTTPacket(c.peerConnID, pnum, pnumMaxAcked)
			lost := c.appendFrames(now, protocol.Encryption1RTT, pnum, limit)
			if pad && len(c.w.Payload()) > 0 {
				// 1-RTT packets carry no length field and extend to the
				// end of the datagram, so padding for a coalesced
				// Initial packet must go inside this packet's payload.
				c.w.AppendPaddingTo(minimumClientInitialDatagramSize)
				pad = false
			}
			if sent := c.w.Finish1RTTPacket(k); sent != nil {
				c.loss.PacketSent(now, protocol.Encryption1RTT, sent, combineLost(lost))
				c.updateMetrics()
			} else {
				c.w.AbandonPacket()
			}
		}

		buf := c.w.Datagram()
		if len(buf) == 0 {
			if limit == ackhandler.LimitOK {
				if r, ok := c.loss.CC.(interface{ SetUnderutilized(bool) }); ok {
					r.SetUnderutilized(true)
				}
			}
			return limitNext, nil
		}

		if sentInitial != nil {
			if pad {
				for len(buf) < minimumClientInitialDatagramSize {
					buf = append(buf, 0)
					sentInitial.Size++
				}
			}
			c.loss.PacketSent(now, protocol.EncryptionInitial, sentInitial, combineLost(lostInitial))
			c.updateMetrics()
		}

		if c.listener != nil {
			if err := c.listener.sendDatagram(buf, c.peerAddr); err != nil {
				c.logger.Sugar().Errorf("send datagram: %v", err)
				return time.Time{}, err
			}
		}
	}
}

// combineLost bundles a packet's per-frame lost callbacks into the
// single closure the in-flight registry stores per record, or nil if
// the packet carried nothing worth retransmitting on loss.
func combineLost(cbs []func()) func() {
	if len(cbs) == 0 {
		return nil
	}
	return func() {
		for _, cb := range cbs {
			cb()
		}
	}
}

// appendFrames fills the packet currently under construction in space
// with whatever is due to be sent: an ACK frame if one is owed, then
// flow-control frames, then registered stream/control/crypto producers
// up to the size budget, then (on a PTO probe with nothing else
// ack-eliciting) a bare PING. It returns the lost callbacks of every
// frame it packed, for the caller to combine into one per-packet
// callback passed to ackhandler.Handler.PacketSent.
func (c *Conn) appendFrames(now time.Time, space protocol.EncryptionLevel, pnum protocol.PacketNumber, limit ackhandler.SendLimit) []func() {
	shouldSendAck := c.acks[space].ShouldSendAck(now)

	if limit != ackhandler.LimitOK {
		// ACKs and flow-control frames are not limited by congestion
		// control.
		if shouldSendAck && c.appendAckFrame(now, space) {
			c.acks[space].SentAck()
		}
		return c.appendFlowControlFrames(space)
	}

	// Speculatively add an ACK frame first, so it sits at the front of
	// the packet ahead of any truncation. If nothing else gets added and
	// we didn't actually need to send an ACK now, abandon the packet:
	// building the frame was cheap, sending an ACK-only packet we don't
	// need to isn't free.
	addedAck := c.appendAckFrame(now, space)
	if addedAck {
		defer func() {
			if shouldSendAck || c.w.HasAckEliciting() {
				c.acks[space].SentAck()
			} else {
				c.w.AbandonPacket()
			}
		}()
	}

	var lost []func()
	lost = append(lost, c.appendFlowControlFrames(space)...)

	if crypto := c.crypto[space]; crypto != nil {
		for {
			f, cb, ok := crypto.Produce(c.w.Remaining())
			if !ok {
				break
			}
			if !c.w.AppendFrame(f) {
				break
			}
			if cb != nil {
				lost = append(lost, cb)
			}
		}
	}

	for _, req := range c.queue.Requests(space) {
		if c.w.Remaining() < req.minSize {
			continue
		}
		for {
			ok, cb := req.produce(c.w.Remaining())
			if !ok {
				break
			}
			if cb != nil {
				lost = append(lost, cb)
			}
		}
	}

	if space == c.testSendPingSpace && c.testSendPing.shouldSendPTO(c.ptoExpired(now)) {
		if !c.w.AppendFrame(wire.PingFrame{}) {
			return lost
		}
		c.testSendPing.setSent(pnum)
	}

	// On a PTO probe with no ack-eliciting frame added yet, add a bare
	// PING so the probe itself elicits an ACK (RFC 9002 §6.2.4).
	if c.ptoExpired(now) && !c.w.HasAckEliciting() {
		c.w.AppendFrame(wire.PingFrame{})
	}

	return lost
}

// appendFlowControlFrames drains any owed MAX_DATA/MAX_STREAM_DATA
// updates into the packet under construction. Streams only exist once
// the handshake has completed, so this is a no-op outside 1-RTT.
func (c *Conn) appendFlowControlFrames(space protocol.EncryptionLevel) []func() {
	if space != protocol.Encryption1RTT {
		return nil
	}

	if window, ok := c.connFlow.TakePendingMaxData(); ok {
		c.w.AppendFrame(wire.MaxDataFrame{MaximumData: window})
	}

	c.mu.Lock()
	inputs := make(map[protocol.ByteCount]*streams.Input, len(c.inputs))
	for id, in := range c.inputs {
		inputs[id] = in
	}
	c.mu.Unlock()

	for id, in := range inputs {
		if window, ok := in.TakePendingMaxStreamData(); ok {
			c.w.AppendFrame(wire.MaxStreamDataFrame{StreamID: id, MaximumData: window})
		}
	}
	return nil
}

func (c *Conn) appendAckFrame(now time.Time, space protocol.EncryptionLevel) bool {
	ranges, delay, ok := c.acks[space].AcksToSend(now)
	if !ok {
		return false
	}
	f := wire.AckFrame{Ranges: ranges, DelayMicros: uint64(delay/time.Microsecond) >> wire.DefaultAckDelayExponent}
	return c.w.AppendFrame(f)
}
