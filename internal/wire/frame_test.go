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

func TestCryptoFrameRoundTrip(t *testing.T) {
	f := CryptoFrame{Offset: 10, Data: []byte("client hello")}
	b := f.AppendTo(nil)
	assert.Equal(t, int(f.Length()), len(b))

	parsed, n := ParseFrame(b)
	require.Equal(t, len(b), n)
	require.IsType(t, CryptoFrame{}, parsed)
	assert.Equal(t, f, parsed.(CryptoFrame))
	assert.True(t, f.AckEliciting())
}

func TestStreamFrameRoundTrip(t *testing.T) {
	f := StreamFrame{StreamID: 4, Offset: 100, Data: []byte("payload"), Fin: true}
	b := f.AppendTo(nil)
	assert.Equal(t, int(f.Length()), len(b))

	parsed, n := ParseFrame(b)
	require.Equal(t, len(b), n)
	got := parsed.(StreamFrame)
	assert.Equal(t, f.StreamID, got.StreamID)
	assert.Equal(t, f.Offset, got.Offset)
	assert.Equal(t, f.Data, got.Data)
	assert.True(t, got.Fin)
}

func TestAckFrameRoundTripWithGap(t *testing.T) {
	f := AckFrame{
		Ranges: []AckRange{
			{Smallest: 18, Largest: 20},
			{Smallest: 10, Largest: 15},
		},
		DelayMicros: 42,
	}
	b := f.AppendTo(nil)
	parsed, n := ParseFrame(b)
	require.Equal(t, len(b), n)
	got := parsed.(AckFrame)
	assert.Equal(t, f.Ranges, got.Ranges)
	assert.Equal(t, f.DelayMicros, got.DelayMicros)
	assert.Equal(t, protocol.PacketNumber(20), got.LargestAcked())
	assert.Equal(t, protocol.PacketNumber(10), got.LowestAcked())
	assert.True(t, got.HasMissingRanges())
	assert.True(t, got.Contains(12))
	assert.False(t, got.Contains(17))
	assert.False(t, got.AckEliciting())
}

func TestPingFrame(t *testing.T) {
	f := PingFrame{}
	assert.Equal(t, []byte{FrameTypePing}, f.AppendTo(nil))
	assert.True(t, f.AckEliciting())
}

func TestControlFramesRoundTrip(t *testing.T) {
	cases := []Frame{
		MaxDataFrame{MaximumData: 1000},
		MaxStreamDataFrame{StreamID: 3, MaximumData: 500},
		StopSendingFrame{StreamID: 2, ErrorCode: 7},
		ConnectionCloseFrame{ErrorCode: 1, ReasonPhrase: "bye"},
	}
	for _, f := range cases {
		b := f.AppendTo(nil)
		parsed, n := ParseFrame(b)
		require.Equal(t, len(b), n, f.String())
		assert.Equal(t, f, parsed)
	}
}
