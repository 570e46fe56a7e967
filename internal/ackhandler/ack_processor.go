// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ackhandler

import (
	"sync"
	"time"

	"github.com/abnv418/kwik/internal/congestion"
	"github.com/abnv418/kwik/internal/protocol"
	"github.com/abnv418/kwik/internal/utils"
	"github.com/abnv418/kwik/internal/wire"
)

// AckProcessor consumes ACK frames, feeds the RTT estimator, drives
// In-Flight Registry transitions, notifies the congestion controller,
// and resolves the handshake-in-flight flag.
//
// Processing an ACK is a three-step contract: an RTT sample from the
// largest-acked packet only, then per-packet-number acked marking, then
// a handshake-in-flight recompute.
type AckProcessor struct {
	registry *Registry
	rtt      *utils.RTTStats
	cc       congestion.Controller

	mu                sync.Mutex
	handshakeInFlight bool

	// OnHandshakeConfirmed is invoked once, synchronously, on the
	// handshake-in-flight true→false transition. Wired by
	// conn.go to the retransmission scheduler's ResetFailedRetries.
	OnHandshakeConfirmed func()

	// OnSpuriousAck is invoked, synchronously, whenever an ACK arrives
	// for a packet number already marked resent: the earlier loss
	// declaration was wrong. Wired by conn.go to a Warn-level log.
	OnSpuriousAck func(id protocol.PacketIdentifier)
}

// NewAckProcessor returns an AckProcessor backed by registry, feeding
// samples to rtt and admission feedback to cc.
func NewAckProcessor(registry *Registry, rtt *utils.RTTStats, cc congestion.Controller) *AckProcessor {
	return &AckProcessor{registry: registry, rtt: rtt, cc: cc}
}

// Process handles one received ACK frame for the given encryption
// level, following the three-step contract above. Unknown packet
// numbers and ACKs at a level whose keys (and therefore registry
// entries) have already been discarded are absorbed silently rather
// than treated as errors.
func (p *AckProcessor) Process(ack wire.AckFrame, level protocol.EncryptionLevel, timeReceived time.Time) {
	largestID := protocol.PacketIdentifier{Level: level, Number: ack.LargestAcked()}
	if rec, ok := p.registry.Get(largestID); ok {
		p.rtt.AddSample(timeReceived, rec.TimeSent, ack.AckDelay(wire.DefaultAckDelayExponent))
	}

	for _, rg := range ack.Ranges {
		for pn := rg.Smallest; pn <= rg.Largest; pn++ {
			id := protocol.PacketIdentifier{Level: level, Number: pn}
			prev, ok := p.registry.Get(id)
			if !ok || prev.Acked {
				continue // unknown or already-acked packet number: no-op
			}
			if _, marked := p.registry.MarkAcked(id); marked && prev.Packet != nil {
				p.cc.RegisterAcked(prev.Packet.Size)
			}
			if prev.Resent && p.OnSpuriousAck != nil {
				p.OnSpuriousAck(id)
			}
		}
	}

	p.recomputeHandshakeInFlight()
}

func (p *AckProcessor) recomputeHandshakeInFlight() {
	pending := p.registry.PendingCrypto()

	p.mu.Lock()
	was := p.handshakeInFlight
	p.handshakeInFlight = pending
	p.mu.Unlock()

	if was && !pending && p.OnHandshakeConfirmed != nil {
		p.OnHandshakeConfirmed()
	}
}

// HandshakeInFlight reports whether any CRYPTO-bearing packet is
// currently unacknowledged and unresent.
func (p *AckProcessor) HandshakeInFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handshakeInFlight
}

// NoteSent updates the handshake-in-flight flag immediately after a
// packet is recorded as sent, so a crypto packet's timer can be armed
// without waiting for the next ACK to arrive.
func (p *AckProcessor) NoteSent(hasCrypto bool) {
	if !hasCrypto {
		return
	}
	p.mu.Lock()
	p.handshakeInFlight = true
	p.mu.Unlock()
}
