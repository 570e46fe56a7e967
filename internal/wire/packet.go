// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"github.com/abnv418/kwik/internal/protocol"
)

// PacketType identifies a QUIC packet's header form and space: long
// header for Initial/Handshake/Retry/0-RTT, short header for
// Application.
type PacketType int

const (
	PacketTypeInvalid PacketType = iota
	PacketTypeInitial
	PacketTypeHandshake
	PacketType0RTT
	PacketTypeRetry
	PacketType1RTT
)

func (t PacketType) String() string {
	switch t {
	case PacketTypeInitial:
		return "Initial"
	case PacketTypeHandshake:
		return "Handshake"
	case PacketType0RTT:
		return "0-RTT"
	case PacketTypeRetry:
		return "Retry"
	case PacketType1RTT:
		return "1-RTT"
	default:
		return "Invalid"
	}
}

// SpaceForPacketType maps a packet type to its packet-number space.
func SpaceForPacketType(t PacketType) protocol.EncryptionLevel {
	switch t {
	case PacketTypeInitial:
		return protocol.EncryptionInitial
	case PacketTypeHandshake:
		return protocol.EncryptionHandshake
	default:
		return protocol.Encryption1RTT
	}
}

// LongPacket describes a packet with a long header (Initial,
// Handshake, 0-RTT or Retry).
type LongPacket struct {
	Type      PacketType
	Version   uint32
	Num       protocol.PacketNumber
	DstConnID []byte
	SrcConnID []byte
	Payload   []byte
}

// SentPacket is the descriptor PacketWriter hands back for a completed
// packet: everything the in-flight registry (internal/ackhandler) needs
// to track it. The returned pointer is nil if the packet ended up empty
// (no frames) and was abandoned.
type SentPacket struct {
	Type         PacketType
	Number       protocol.PacketNumber
	Size         protocol.ByteCount
	AckEliciting bool
	HasCrypto    bool
	Frames       []Frame
}

// longHeaderByte builds the first byte of a long header packet. Bits:
// 1 (long form) 1 (fixed) TT (type) RR (reserved, 0) PP (pn length - 1).
func longHeaderByte(t PacketType, pnLen int) byte {
	var tt byte
	switch t {
	case PacketTypeInitial:
		tt = 0x0
	case PacketType0RTT:
		tt = 0x1
	case PacketTypeHandshake:
		tt = 0x2
	case PacketTypeRetry:
		tt = 0x3
	}
	return 0xc0 | (tt << 4) | byte(pnLen-1)
}

// shortHeaderByte builds the first byte of a 1-RTT short header packet.
// Bits: 0 (short form) 1 (fixed) 1 (spin, unused here) K (key phase,
// unused here) RR (reserved, 0) PP (pn length - 1).
func shortHeaderByte(pnLen int) byte {
	return 0x40 | byte(pnLen-1)
}
