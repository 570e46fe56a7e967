// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ackhandler

import (
	"time"

	"github.com/abnv418/kwik/internal/congestion"
	"github.com/abnv418/kwik/internal/protocol"
	"github.com/abnv418/kwik/internal/utils"
	"github.com/abnv418/kwik/internal/wire"
)

// SendLimit reports whether, and for how much longer, sending is
// blocked.
type SendLimit int

const (
	// LimitOK: send as much as the congestion window and pacer allow.
	LimitOK SendLimit = iota
	// LimitBlocked: do not send ack-eliciting data; retry at the
	// returned deadline.
	LimitBlocked
)

// Handler is the send loop's single collaborator for everything touching
// packet numbering, congestion admission, and the in-flight registry:
// an exported, composed type rather than an unexported field of a
// monolithic connection, so the state splits cleanly across
// internal/protocol, internal/wire, internal/congestion and
// internal/ackhandler.
type Handler struct {
	allocators [protocol.NumberOfEncryptionLevels]PacketNumberAllocator
	Registry   *Registry
	Acks       *AckProcessor
	CC         congestion.Controller
	RTT        *utils.RTTStats

	MaxDatagramSize protocol.ByteCount

	PTOExpired bool
}

// NewHandler returns a Handler backed by cc.
func NewHandler(cc congestion.Controller) *Handler {
	rtt := utils.NewRTTStats()
	registry := NewRegistry()
	h := &Handler{
		Registry:        registry,
		CC:              cc,
		RTT:             rtt,
		MaxDatagramSize: 1200,
	}
	h.Acks = NewAckProcessor(registry, rtt, cc)
	return h
}

// NextNumber returns the next packet number to use in space.
func (h *Handler) NextNumber(space protocol.EncryptionLevel) protocol.PacketNumber {
	return h.allocators[space].Next()
}

// SendLimit reports whether sending is currently admitted by the
// congestion controller, and if not, when to retry.
func (h *Handler) SendLimit(now time.Time) (SendLimit, time.Time) {
	if h.CC.CanSend(h.MaxDatagramSize) {
		return LimitOK, time.Time{}
	}
	deadline := now.Add(h.RTT.SmoothedRTT())
	return LimitBlocked, deadline
}

// MaxSendSize returns the largest datagram the caller should build.
func (h *Handler) MaxSendSize() int {
	return int(h.MaxDatagramSize)
}

// PacketSent records a completed packet as in flight: registers it with
// the congestion controller and the in-flight registry. lostCallback, if non-nil, is invoked by the loss path if this
// packet is later declared lost.
func (h *Handler) PacketSent(now time.Time, space protocol.EncryptionLevel, sent *wire.SentPacket, lostCallback func()) {
	if sent == nil {
		return
	}
	h.CC.RegisterInFlight(sent.Size)
	id := protocol.PacketIdentifier{Level: space, Number: sent.Number}
	_ = h.Registry.Record(id, sent, now, lostCallback)
	h.Acks.NoteSent(sent.HasCrypto)
}

// DeclareLost marks id lost: transitions the registry record, tells the
// congestion controller to shrink its window, and invokes the record's
// lost callback if any.
func (h *Handler) DeclareLost(id protocol.PacketIdentifier) {
	prev, err := h.Registry.MarkResentAndFetch(id)
	if err != nil {
		return
	}
	if prev.Packet != nil {
		h.CC.RegisterLost(prev.Packet.Size)
	}
	if prev.LostCallback != nil {
		prev.LostCallback()
	}
}
