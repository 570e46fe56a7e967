// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package quic

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abnv418/kwik/internal/congestion"
	"github.com/abnv418/kwik/internal/protocol"
	"github.com/abnv418/kwik/internal/wire"
)

// fakeSender records every datagram handed to sendDatagram, standing in
// for the UDP socket I/O this package treats as an external
// collaborator.
type fakeSender struct {
	sent [][]byte
}

func (f *fakeSender) sendDatagram(b []byte, _ netip.AddrPort) error {
	cp := append([]byte(nil), b...)
	f.sent = append(f.sent, cp)
	return nil
}

func newTestConnForSend(t *testing.T) (*Conn, *fakeSender) {
	t.Helper()
	sender := &fakeSender{}
	cc := congestion.NewReno(2 * 1200)
	c := newConn(protocol.PerspectiveClient, netip.AddrPort{}, []byte{1, 2, 3, 4}, []byte{5, 6, 7, 8}, cc, sender, nil, nil, DefaultConfig())

	k, err := wire.NewKeys([]byte("test secret for the 1-RTT level"))
	require.NoError(t, err)
	c.SetKeys(protocol.Encryption1RTT, k, k)
	return c, sender
}

// TestMaybeSendUnderSlackWindow checks that a single write under a
// slack congestion window produces one datagram.
func TestMaybeSendUnderSlackWindow(t *testing.T) {
	c, sender := newTestConnForSend(t)
	out, err := c.OutputFor(0, protocol.Encryption1RTT)
	require.NoError(t, err)
	_, err = out.Write([]byte("hello"))
	require.NoError(t, err)

	next, err := c.maybeSend(time.Now())
	require.NoError(t, err)
	assert.True(t, next.IsZero() || next.After(time.Now()))
	require.Len(t, sender.sent, 1)
	assert.Greater(t, len(sender.sent[0]), 0)
}

// TestMaybeSendAdmissionBlocksSecondPacket checks that once bytes in
// flight reach the congestion window, a second ack-eliciting packet is
// not sent until an ack arrives.
func TestMaybeSendAdmissionBlocksSecondPacket(t *testing.T) {
	c, sender := newTestConnForSend(t)
	cc := c.loss.CC.(*congestion.Reno)

	// Consume the entire window with simulated in-flight bytes, as if an
	// earlier send already used it up.
	cc.RegisterInFlight(cc.CongestionWindow())

	out, err := c.OutputFor(0, protocol.Encryption1RTT)
	require.NoError(t, err)
	_, err = out.Write([]byte("blocked"))
	require.NoError(t, err)

	next, err := c.maybeSend(time.Now())
	require.NoError(t, err)
	assert.False(t, next.IsZero())
	assert.Empty(t, sender.sent)

	// Acknowledge the in-flight bytes: the window opens back up.
	cc.RegisterAcked(cc.CongestionWindow())
	_, err = c.maybeSend(time.Now())
	require.NoError(t, err)
	assert.NotEmpty(t, sender.sent)
}

// TestCryptoRetryTimeoutDoubles checks the crypto retransmission
// timeout formula: 2*srtt*2^n.
func TestCryptoRetryTimeoutDoubles(t *testing.T) {
	c, _ := newTestConnForSend(t)
	c.loss.RTT.AddSample(time.Now(), time.Now().Add(-50*time.Millisecond), 0)
	srtt := c.loss.RTT.SmoothedRTT()

	first := c.retry.Timeout(srtt, 2)
	assert.Equal(t, 2*srtt, first)

	c.retry.RecordTimeout()
	second := c.retry.Timeout(srtt, 2)
	assert.Equal(t, 4*srtt, second)

	c.retry.RecordTimeout()
	third := c.retry.Timeout(srtt, 2)
	assert.Equal(t, 8*srtt, third)

	c.retry.Reset()
	assert.Equal(t, 2*srtt, c.retry.Timeout(srtt, 2))
}

// TestCryptoRetransmitCarriesSameData exercises the crypto retransmit
// path end to end: a Handshake packet (pn=0) carrying CRYPTO data is
// declared lost by the retransmit timer's logic, and the next packet
// built (pn=1) at the same level carries the identical bytes.
func TestCryptoRetransmitCarriesSameData(t *testing.T) {
	c, sender := newTestConnForSend(t)

	hk, err := wire.NewKeys([]byte("test secret for the handshake level"))
	require.NoError(t, err)
	c.SetKeys(protocol.EncryptionHandshake, hk, hk)

	payload := []byte("client hello bytes")
	_, err = c.CryptoFor(protocol.EncryptionHandshake).Write(payload)
	require.NoError(t, err)

	_, err = c.maybeSend(time.Now())
	require.NoError(t, err)
	require.Len(t, sender.sent, 1, "pn=0 should carry the CRYPTO frame")

	id := protocol.PacketIdentifier{Level: protocol.EncryptionHandshake, Number: 0}
	rec, ok := c.loss.Registry.Get(id)
	require.True(t, ok)
	require.NotNil(t, rec.Packet)
	assert.True(t, rec.Packet.HasCrypto)

	// Simulate the retransmit timer firing: declare pn=0 lost, which
	// re-queues its CRYPTO range via the frame's lost callback.
	c.retransmitOldestCrypto()

	rec, ok = c.loss.Registry.Get(id)
	require.True(t, ok)
	assert.True(t, rec.Resent)

	sender.sent = nil
	_, err = c.maybeSend(time.Now())
	require.NoError(t, err)
	require.Len(t, sender.sent, 1, "pn=1 should retransmit the same CRYPTO data")

	id1 := protocol.PacketIdentifier{Level: protocol.EncryptionHandshake, Number: 1}
	rec1, ok := c.loss.Registry.Get(id1)
	require.True(t, ok)
	require.NotNil(t, rec1.Packet)
	assert.True(t, rec1.Packet.HasCrypto)

	var frame wire.CryptoFrame
	for _, f := range rec1.Packet.Frames {
		if cf, ok := f.(wire.CryptoFrame); ok {
			frame = cf
		}
	}
	assert.Equal(t, payload, frame.Data)
}

// TestHandleStopSendingAbortsInput checks that a received STOP_SENDING
// frame aborts the named stream's Input buffer.
func TestHandleStopSendingAbortsInput(t *testing.T) {
	c, _ := newTestConnForSend(t)
	in, err := c.InputFor(0)
	require.NoError(t, err)

	c.HandleStopSending(wire.StopSendingFrame{StreamID: 0})

	buf := make([]byte, 16)
	_, err = in.Read(context.Background(), buf)
	assert.ErrorIs(t, err, ErrStreamAborted)
}

// TestExitFailsFurtherStreamAccess checks that once the connection has
// exited, OutputFor and InputFor fail with ErrConnectionClosed and
// already-open buffers stop accepting writes/reads.
func TestExitFailsFurtherStreamAccess(t *testing.T) {
	c, _ := newTestConnForSend(t)
	out, err := c.OutputFor(0, protocol.Encryption1RTT)
	require.NoError(t, err)
	in, err := c.InputFor(0)
	require.NoError(t, err)

	c.exit()

	_, err = c.OutputFor(1, protocol.Encryption1RTT)
	assert.ErrorIs(t, err, ErrConnectionClosed)
	_, err = c.InputFor(1)
	assert.ErrorIs(t, err, ErrConnectionClosed)

	_, err = out.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrConnectionClosed)

	buf := make([]byte, 16)
	_, err = in.Read(context.Background(), buf)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

// TestAckFrameLossNotRetransmitted checks that losing a packet that
// contained only an ACK frame never triggers retransmission
// (the registry is simply marked resent; no lost callback exists to fire
// for a pure ACK frame).
func TestAckFrameLossNotRetransmitted(t *testing.T) {
	c, _ := newTestConnForSend(t)
	id := protocol.PacketIdentifier{Level: protocol.Encryption1RTT, Number: 0}
	sent := &wire.SentPacket{
		Number: 0,
		Size:   40,
		Frames: []wire.Frame{wire.AckFrame{Ranges: []wire.AckRange{{Smallest: 0, Largest: 0}}}},
	}
	require.NoError(t, c.loss.Registry.Record(id, sent, time.Now(), nil))

	assert.NotPanics(t, func() {
		c.handleAckOrLoss(protocol.Encryption1RTT, id, sent, false)
	})
	rec, ok := c.loss.Registry.Get(id)
	require.True(t, ok)
	assert.True(t, rec.Resent)
}
