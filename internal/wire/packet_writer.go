// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"

	"github.com/abnv418/kwik/internal/protocol"
)

// PacketWriter accumulates one QUIC packet's header and protected
// payload into a byte buffer: header, then frames packed to the size
// budget, then (for long headers) a fixed-width length field, then AEAD
// protection, then header protection.
//
// One PacketWriter is reused across packets within a datagram; Reset
// starts a new datagram.
type PacketWriter struct {
	buf    []byte
	maxLen int

	hdrStart          int
	payloadStart      int
	lengthFieldOffset int
	pnOffset          int
	pnLen             int
	curType           PacketType

	// sent accumulates the descriptor for the packet currently being
	// built, handed back by Finish*.
	sent *SentPacket
}

// Reset starts a new datagram with room for at most maxLen bytes.
func (w *PacketWriter) Reset(maxLen int) {
	w.buf = w.buf[:0]
	w.maxLen = maxLen
	w.sent = nil
}

// Datagram returns the bytes accumulated so far.
func (w *PacketWriter) Datagram() []byte { return w.buf }

// remaining reports how many more bytes can be appended to the current
// packet before exceeding maxLen.
func (w *PacketWriter) remaining() int {
	return w.maxLen - len(w.buf)
}

// Remaining is remaining's exported form, for callers outside this
// package sizing a frame before attempting AppendFrame.
func (w *PacketWriter) Remaining() int {
	return w.remaining()
}

// HasAckEliciting reports whether the packet currently under
// construction has any ack-eliciting frame appended so far.
func (w *PacketWriter) HasAckEliciting() bool {
	return w.sent != nil && w.sent.AckEliciting
}

// StartProtectedLongHeaderPacket begins an Initial, Handshake or 0-RTT
// packet addressed by dstConnID/srcConnID, using pn as its packet number.
// The header is written immediately; frames are appended with
// AppendCryptoFrame / AppendAckFrame / etc., and the packet is sealed by
// FinishProtectedLongHeaderPacket.
func (w *PacketWriter) StartProtectedLongHeaderPacket(t PacketType, version uint32, dstConnID, srcConnID []byte, pn, largestAcked protocol.PacketNumber) {
	w.hdrStart = len(w.buf)
	w.curType = t
	pnLen := int(protocol.GetPacketNumberLengthForHeader(pn, largestAcked))
	w.pnLen = pnLen

	w.buf = append(w.buf, longHeaderByte(t, pnLen))
	w.buf = append(w.buf, byte(version>>24), byte(version>>16), byte(version>>8), byte(version))
	w.buf = append(w.buf, byte(len(dstConnID)))
	w.buf = append(w.buf, dstConnID...)
	w.buf = append(w.buf, byte(len(srcConnID)))
	w.buf = append(w.buf, srcConnID...)

	w.lengthFieldOffset = len(w.buf)
	w.buf = appendVarint4(w.buf, 0) // patched in Finish

	w.pnOffset = len(w.buf)
	w.appendPacketNumber(pn, pnLen)

	w.payloadStart = len(w.buf)
	w.sent = &SentPacket{Type: t, Number: pn}
}

// Start1RTTPacket begins a 1-RTT (short header) packet. 1-RTT packets
// carry no explicit length field: the payload extends to the end of the
// datagram, per RFC 9000 §17.3.
func (w *PacketWriter) Start1RTTPacket(dstConnID []byte, pn, largestAcked protocol.PacketNumber) {
	w.hdrStart = len(w.buf)
	w.curType = PacketType1RTT
	pnLen := int(protocol.GetPacketNumberLengthForHeader(pn, largestAcked))
	w.pnLen = pnLen

	w.buf = append(w.buf, shortHeaderByte(pnLen))
	w.buf = append(w.buf, dstConnID...)

	w.pnOffset = len(w.buf)
	w.appendPacketNumber(pn, pnLen)

	w.payloadStart = len(w.buf)
	w.sent = &SentPacket{Type: PacketType1RTT, Number: pn}
}

func (w *PacketWriter) appendPacketNumber(pn protocol.PacketNumber, pnLen int) {
	v := uint64(pn)
	for i := pnLen - 1; i >= 0; i-- {
		w.buf = append(w.buf, byte(v>>(8*uint(i))))
	}
}

// AppendFrame appends f to the packet if it fits within the size budget,
// updating the in-progress SentPacket's ack-eliciting and has-crypto bits.
// It reports whether the frame was appended.
func (w *PacketWriter) AppendFrame(f Frame) bool {
	if int(f.Length()) > w.remaining() {
		return false
	}
	w.buf = f.AppendTo(w.buf)
	w.sent.Frames = append(w.sent.Frames, f)
	if f.AckEliciting() {
		w.sent.AckEliciting = true
	}
	if _, ok := f.(CryptoFrame); ok {
		w.sent.HasCrypto = true
	}
	return true
}

// AppendPaddingTo pads the current packet's payload with zero PADDING
// bytes until it is at least n bytes long, directly to the datagram
// buffer rather than as a tracked Frame (PADDING is never ack-eliciting
// and this package never represents it as a Frame value).
func (w *PacketWriter) AppendPaddingTo(n int) {
	for len(w.buf)-w.payloadStart < n && w.remaining() > 0 {
		w.buf = append(w.buf, 0x00)
	}
}

// FinishProtectedLongHeaderPacket patches the length field, AEAD-seals the
// payload and applies header protection, returning the completed packet's
// descriptor. It returns nil if no frames were appended (the caller should
// then call AbandonPacket instead of sending an empty packet).
func (w *PacketWriter) FinishProtectedLongHeaderPacket(keys Keys) *SentPacket {
	if len(w.sent.Frames) == 0 {
		return nil
	}
	payload := w.buf[w.payloadStart:]
	payloadLen := len(payload) + keys.aead.Overhead()
	putVarint4(w.buf[w.lengthFieldOffset:], uint64(w.pnLen+payloadLen))

	aad := append([]byte(nil), w.buf[w.hdrStart:w.payloadStart]...)
	sealed := keys.Seal(int64(w.sent.Number), aad, payload)
	w.buf = append(w.buf[:w.payloadStart], sealed...)

	w.applyHeaderProtection(keys)

	w.sent.Size = protocol.ByteCount(len(w.buf) - w.hdrStart)
	return w.sent
}

// Finish1RTTPacket is FinishProtectedLongHeaderPacket's 1-RTT counterpart:
// no length field to patch, and the payload is sealed to the end of the
// current datagram buffer.
func (w *PacketWriter) Finish1RTTPacket(keys Keys) *SentPacket {
	if len(w.sent.Frames) == 0 {
		return nil
	}
	payload := w.buf[w.payloadStart:]
	aad := append([]byte(nil), w.buf[w.hdrStart:w.payloadStart]...)
	sealed := keys.Seal(int64(w.sent.Number), aad, payload)
	w.buf = append(w.buf[:w.payloadStart], sealed...)

	w.applyHeaderProtection(keys)

	w.sent.Size = protocol.ByteCount(len(w.buf) - w.hdrStart)
	return w.sent
}

// applyHeaderProtection masks the packet number field (and the low bits of
// the first header byte) with a mask derived from a 16-byte ciphertext
// sample, per RFC 9001 §5.4. The sample is taken 4 bytes past the start of
// the packet-number field, since the protected field is assumed to be
// 4 bytes even when the encoded pnLen is shorter.
func (w *PacketWriter) applyHeaderProtection(keys Keys) {
	sampleOffset := w.pnOffset + 4
	if sampleOffset+16 > len(w.buf) {
		sampleOffset = len(w.buf) - 16
	}
	if sampleOffset < 0 {
		return
	}
	mask := keys.headerProtectionMask(w.buf[sampleOffset : sampleOffset+16])

	if w.curType == PacketType1RTT {
		w.buf[w.hdrStart] ^= mask[0] & 0x1f
	} else {
		w.buf[w.hdrStart] ^= mask[0] & 0x0f
	}
	for i := 0; i < w.pnLen; i++ {
		w.buf[w.pnOffset+i] ^= mask[1+i]
	}
}

// AbandonPacket discards whatever has been written for the current packet,
// truncating the datagram back to where it started. Used when a packet
// ends up with no frames worth sending.
func (w *PacketWriter) AbandonPacket() {
	w.buf = w.buf[:w.hdrStart]
	w.sent = nil
}

// Payload returns the bytes written to the current packet's payload so
// far (post-header, pre-seal), primarily for tests.
func (w *PacketWriter) Payload() []byte {
	return w.buf[w.payloadStart:]
}

func appendVarint4(b []byte, v uint64) []byte {
	if v > maxVarInt4 {
		panic(fmt.Sprintf("value %d does not fit a 4-byte varint", v))
	}
	return append(b, byte(v>>24)|0x80, byte(v>>16), byte(v>>8), byte(v))
}

func putVarint4(b []byte, v uint64) {
	if v > maxVarInt4 {
		panic(fmt.Sprintf("value %d does not fit a 4-byte varint", v))
	}
	b[0] = byte(v>>24) | 0x80
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

// IsLongHeader reports whether the first byte of a datagram indicates a
// long-header packet.
func IsLongHeader(firstByte byte) bool {
	return firstByte&0x80 != 0
}

// GetPacketType extracts the long-header packet type from a datagram's
// (already header-protection-removed) first byte.
func GetPacketType(firstByte byte) PacketType {
	switch (firstByte >> 4) & 0x3 {
	case 0x0:
		return PacketTypeInitial
	case 0x1:
		return PacketType0RTT
	case 0x2:
		return PacketTypeHandshake
	default:
		return PacketTypeRetry
	}
}

// DstConnIDForDatagram extracts the destination connection ID from a raw,
// still header-protected datagram, for demultiplexing incoming datagrams
// to a Conn. It does not remove header protection, since the connection ID
// field is never protected.
func DstConnIDForDatagram(b []byte) ([]byte, bool) {
	if len(b) < 1 {
		return nil, false
	}
	if IsLongHeader(b[0]) {
		if len(b) < 6 {
			return nil, false
		}
		l := int(b[5])
		if len(b) < 6+l {
			return nil, false
		}
		return b[6 : 6+l], true
	}
	// Short header: connection ID length is not self-describing on the
	// wire: callers must know the length they issued. We return the
	// remainder of a conventional 8-byte ID as a best-effort default.
	const shortConnIDLen = 8
	if len(b) < 1+shortConnIDLen {
		return nil, false
	}
	return b[1 : 1+shortConnIDLen], true
}

// ParseLongHeaderPacket removes header and payload protection from a
// long-header datagram and returns the decoded packet, the number of bytes
// it consumed from b, and any error. largestAcked is used to decode the
// truncated packet number (RFC 9000 Appendix A).
func ParseLongHeaderPacket(b []byte, keys Keys, largestAcked protocol.PacketNumber) (*LongPacket, int, error) {
	if len(b) < 7 || !IsLongHeader(b[0]) {
		return nil, 0, fmt.Errorf("wire: not a long header packet")
	}
	t := GetPacketType(b[0])
	version := uint32(b[1])<<24 | uint32(b[2])<<16 | uint32(b[3])<<8 | uint32(b[4])
	pos := 5
	dstLen := int(b[pos])
	pos++
	if len(b) < pos+dstLen {
		return nil, 0, fmt.Errorf("wire: truncated destination connection ID")
	}
	dst := append([]byte(nil), b[pos:pos+dstLen]...)
	pos += dstLen
	if len(b) < pos+1 {
		return nil, 0, fmt.Errorf("wire: truncated source connection ID length")
	}
	srcLen := int(b[pos])
	pos++
	if len(b) < pos+srcLen {
		return nil, 0, fmt.Errorf("wire: truncated source connection ID")
	}
	src := append([]byte(nil), b[pos:pos+srcLen]...)
	pos += srcLen

	length, n := ConsumeVarint(b[pos:])
	if n < 0 {
		return nil, 0, fmt.Errorf("wire: truncated length field")
	}
	pos += n
	pnOffset := pos

	if pnOffset+4+16 > len(b) {
		return nil, 0, fmt.Errorf("wire: packet too short to sample for header protection")
	}
	sample := b[pnOffset+4 : pnOffset+4+16]
	mask := keys.headerProtectionMask(sample)

	firstByte := b[0] ^ (mask[0] & 0x0f)
	pnLen := int(firstByte&0x03) + 1

	hdr := append([]byte(nil), b[:pnOffset]...)
	hdr[0] = firstByte
	for i := 0; i < pnLen; i++ {
		hdr[pnOffset+i] = b[pnOffset+i] ^ mask[1+i]
	}

	truncated := uint64(0)
	for i := 0; i < pnLen; i++ {
		truncated = (truncated << 8) | uint64(hdr[pnOffset+i])
	}
	pn := decodePacketNumber(largestAcked, protocol.PacketNumber(truncated), pnLen)

	if int(length) < pnLen {
		return nil, 0, fmt.Errorf("wire: length field shorter than packet number")
	}
	payloadEnd := pnOffset + int(length)
	if payloadEnd > len(b) {
		return nil, 0, fmt.Errorf("wire: truncated payload")
	}
	ciphertext := append([]byte(nil), b[pnOffset+pnLen:payloadEnd]...)

	plaintext, err := keys.Open(int64(pn), hdr, ciphertext)
	if err != nil {
		return nil, 0, fmt.Errorf("wire: open packet: %w", err)
	}

	return &LongPacket{
		Type:      t,
		Version:   version,
		Num:       pn,
		DstConnID: dst,
		SrcConnID: src,
		Payload:   plaintext,
	}, payloadEnd, nil
}

// Parse1RTTPacket is ParseLongHeaderPacket's short-header counterpart. The
// payload is assumed to extend to the end of b, per RFC 9000 §17.3.
func Parse1RTTPacket(b []byte, connIDLen int, keys Keys, largestAcked protocol.PacketNumber) (protocol.PacketNumber, []byte, error) {
	if len(b) < 1+connIDLen {
		return 0, nil, fmt.Errorf("wire: short header packet too small")
	}
	pnOffset := 1 + connIDLen
	if pnOffset+4+16 > len(b) {
		return 0, nil, fmt.Errorf("wire: packet too short to sample for header protection")
	}
	sample := b[pnOffset+4 : pnOffset+4+16]
	mask := keys.headerProtectionMask(sample)

	firstByte := b[0] ^ (mask[0] & 0x1f)
	pnLen := int(firstByte&0x03) + 1

	hdr := append([]byte(nil), b[:pnOffset]...)
	hdr[0] = firstByte
	for i := 0; i < pnLen; i++ {
		hdr[pnOffset+i] = b[pnOffset+i] ^ mask[1+i]
	}

	truncated := uint64(0)
	for i := 0; i < pnLen; i++ {
		truncated = (truncated << 8) | uint64(hdr[pnOffset+i])
	}
	pn := decodePacketNumber(largestAcked, protocol.PacketNumber(truncated), pnLen)

	ciphertext := append([]byte(nil), b[pnOffset+pnLen:]...)
	plaintext, err := keys.Open(int64(pn), hdr, ciphertext)
	if err != nil {
		return 0, nil, fmt.Errorf("wire: open packet: %w", err)
	}
	return pn, plaintext, nil
}

// decodePacketNumber reconstructs a full packet number from its truncated
// on-wire form, per RFC 9000 Appendix A.3.
func decodePacketNumber(largestAcked, truncated protocol.PacketNumber, pnLen int) protocol.PacketNumber {
	if largestAcked == protocol.InvalidPacketNumber {
		return truncated
	}
	pnWin := protocol.PacketNumber(1) << (8 * uint(pnLen))
	pnHalfWin := pnWin / 2
	expected := largestAcked + 1

	candidate := (expected/pnWin)*pnWin + truncated
	switch {
	case candidate <= expected-pnHalfWin && candidate < (protocol.PacketNumber(1)<<62)-pnWin:
		return candidate + pnWin
	case candidate > expected+pnHalfWin && candidate >= pnWin:
		return candidate - pnWin
	default:
		return candidate
	}
}
