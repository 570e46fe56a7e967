// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wire implements serialization and parsing of the QUIC frames
// this send path produces and consumes: CRYPTO, STREAM, ACK, MAX_DATA,
// MAX_STREAM_DATA, STOP_SENDING, PING and CONNECTION_CLOSE.
// Parsing of all other frame types (and of received packets generally)
// is an external collaborator's responsibility.
package wire

import "github.com/abnv418/kwik/internal/protocol"

// Frame types, from RFC 9000 §19.
const (
	FrameTypePing             = 0x01
	FrameTypeAckWithoutECN    = 0x02
	FrameTypeAckWithECN       = 0x03
	FrameTypeStopSending      = 0x0c
	FrameTypeCrypto           = 0x18
	FrameTypeMaxData          = 0x10
	FrameTypeMaxStreamData    = 0x11
	FrameTypeConnectionClose  = 0x1c
	frameTypeStreamBase       = 0x08
	frameTypeStreamOffBit     = 0x04
	frameTypeStreamLenBit     = 0x02
	frameTypeStreamFinBit     = 0x01
)

// Frame is the tagged-variant interface implemented by every frame kind
// this package knows how to serialize and parse. Each frame carries its
// own on-wire serialization and reports its serialized length.
type Frame interface {
	// AppendTo appends the frame's wire encoding to b and returns the
	// extended slice.
	AppendTo(b []byte) []byte
	// Length returns len(f.AppendTo(nil)). Most frame kinds compute it
	// arithmetically; AckFrame serializes itself to measure.
	Length() protocol.ByteCount
	// AckEliciting reports whether sending this frame obligates the
	// peer to acknowledge the packet.
	// Only ACK and PADDING frames are not ack-eliciting; this package
	// never emits PADDING as a Frame value (padding is applied directly
	// to datagram bytes by the packet writer).
	AckEliciting() bool
	String() string
}

// ParseFrame parses the single frame at the front of b, returning the
// frame and the number of bytes consumed, or a nil frame and -1 if b
// does not begin with a frame this package understands.
func ParseFrame(b []byte) (Frame, int) {
	if len(b) == 0 {
		return nil, -1
	}
	switch {
	case b[0] == FrameTypePing:
		return PingFrame{}, 1
	case b[0] == FrameTypeAckWithoutECN || b[0] == FrameTypeAckWithECN:
		return parseAckFrame(b)
	case b[0] == FrameTypeCrypto:
		return parseCryptoFrame(b)
	case b[0] == FrameTypeMaxData:
		return parseMaxDataFrame(b)
	case b[0] == FrameTypeMaxStreamData:
		return parseMaxStreamDataFrame(b)
	case b[0] == FrameTypeStopSending:
		return parseStopSendingFrame(b)
	case b[0] == FrameTypeConnectionClose:
		return parseConnectionCloseFrame(b)
	case b[0]&0xf8 == frameTypeStreamBase:
		return parseStreamFrame(b)
	default:
		return nil, -1
	}
}
