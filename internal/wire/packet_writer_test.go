// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abnv418/kwik/internal/protocol"
)

func TestPacketWriterInitialRoundTrip(t *testing.T) {
	keys, err := NewKeys([]byte("a shared initial secret for testing"))
	require.NoError(t, err)

	dst := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	src := []byte{9, 10, 11, 12}

	var w PacketWriter
	w.Reset(1500)
	w.StartProtectedLongHeaderPacket(PacketTypeInitial, 1, dst, src, 0, protocol.InvalidPacketNumber)
	require.True(t, w.AppendFrame(CryptoFrame{Offset: 0, Data: []byte("client hello bytes")}))
	sent := w.FinishProtectedLongHeaderPacket(keys)
	require.NotNil(t, sent)
	assert.True(t, sent.AckEliciting)
	assert.True(t, sent.HasCrypto)

	datagram := w.Datagram()
	require.True(t, IsLongHeader(datagram[0]))

	gotDst, ok := DstConnIDForDatagram(datagram)
	require.True(t, ok)
	assert.Equal(t, dst, gotDst)

	parsed, n, err := ParseLongHeaderPacket(datagram, keys, protocol.InvalidPacketNumber)
	require.NoError(t, err)
	assert.Equal(t, len(datagram), n)
	assert.Equal(t, protocol.PacketNumber(0), parsed.Num)
	assert.Equal(t, dst, parsed.DstConnID)
	assert.Equal(t, src, parsed.SrcConnID)

	f, consumed := ParseFrame(parsed.Payload)
	require.NotEqual(t, -1, consumed)
	got := f.(CryptoFrame)
	assert.Equal(t, []byte("client hello bytes"), got.Data)
}

func TestPacketWriterAbandonEmptyPacket(t *testing.T) {
	keys, err := NewKeys([]byte("another test secret value here"))
	require.NoError(t, err)

	var w PacketWriter
	w.Reset(1500)
	w.StartProtectedLongHeaderPacket(PacketTypeHandshake, 1, []byte{1}, []byte{2}, 0, protocol.InvalidPacketNumber)
	sent := w.FinishProtectedLongHeaderPacket(keys)
	assert.Nil(t, sent)
	w.AbandonPacket()
	assert.Empty(t, w.Datagram())
}
