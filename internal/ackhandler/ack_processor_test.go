// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ackhandler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abnv418/kwik/internal/congestion"
	"github.com/abnv418/kwik/internal/protocol"
	"github.com/abnv418/kwik/internal/utils"
	"github.com/abnv418/kwik/internal/wire"
)

// TestAckAtWrongLevelIsNoop checks that acknowledging a packet number
// at the wrong encryption level has no effect, since the registry
// shards by level.
func TestAckAtWrongLevelIsNoop(t *testing.T) {
	registry := NewRegistry()
	rtt := utils.NewRTTStats()
	cc := congestion.NewReno(2400)
	p := NewAckProcessor(registry, rtt, cc)

	id := protocol.PacketIdentifier{Level: protocol.Encryption1RTT, Number: 3}
	require.NoError(t, registry.Record(id, &wire.SentPacket{Number: 3, Size: 200}, time.Now(), nil))

	inFlightBefore := cc.BytesInFlight()
	ack := wire.AckFrame{Ranges: []wire.AckRange{{Smallest: 3, Largest: 3}}}
	p.Process(ack, protocol.EncryptionHandshake, time.Now())

	rec, ok := registry.Get(id)
	require.True(t, ok)
	assert.False(t, rec.Acked)
	assert.Equal(t, inFlightBefore, cc.BytesInFlight())
}

func TestAckProcessorHandshakeConfirmed(t *testing.T) {
	registry := NewRegistry()
	rtt := utils.NewRTTStats()
	cc := congestion.NewReno(2400)
	p := NewAckProcessor(registry, rtt, cc)

	var confirmed bool
	p.OnHandshakeConfirmed = func() { confirmed = true }

	id := protocol.PacketIdentifier{Level: protocol.EncryptionHandshake, Number: 0}
	require.NoError(t, registry.Record(id, &wire.SentPacket{Number: 0, Size: 50, HasCrypto: true}, time.Now(), nil))
	p.NoteSent(true)
	assert.True(t, p.HandshakeInFlight())

	ack := wire.AckFrame{Ranges: []wire.AckRange{{Smallest: 0, Largest: 0}}}
	p.Process(ack, protocol.EncryptionHandshake, time.Now())

	assert.False(t, p.HandshakeInFlight())
	assert.True(t, confirmed)
}

// TestAckProcessorSpuriousAck checks that acknowledging a packet number
// already marked resent reports the spurious ack via OnSpuriousAck.
func TestAckProcessorSpuriousAck(t *testing.T) {
	registry := NewRegistry()
	rtt := utils.NewRTTStats()
	cc := congestion.NewReno(2400)
	p := NewAckProcessor(registry, rtt, cc)

	var spurious []protocol.PacketIdentifier
	p.OnSpuriousAck = func(id protocol.PacketIdentifier) { spurious = append(spurious, id) }

	id := protocol.PacketIdentifier{Level: protocol.Encryption1RTT, Number: 1}
	require.NoError(t, registry.Record(id, &wire.SentPacket{Number: 1, Size: 100}, time.Now(), nil))
	_, err := registry.MarkResentAndFetch(id)
	require.NoError(t, err)

	ack := wire.AckFrame{Ranges: []wire.AckRange{{Smallest: 1, Largest: 1}}}
	p.Process(ack, protocol.Encryption1RTT, time.Now())

	require.Len(t, spurious, 1)
	assert.Equal(t, id, spurious[0])
}
