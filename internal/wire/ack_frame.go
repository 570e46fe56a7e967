// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"time"

	"github.com/abnv418/kwik/internal/protocol"
)

// AckRange is an inclusive, closed range of acknowledged packet
// numbers.
type AckRange struct {
	Smallest protocol.PacketNumber
	Largest  protocol.PacketNumber
}

// AckFrame acknowledges receipt of a set of packet numbers.
// Type 0x02/0x03: largest-acknowledged, ack delay (varint, microseconds
// scaled by the peer's ack-delay exponent), range count, first range,
// ranges.
//
// Ranges is ordered largest-to-smallest and must be non-overlapping and
// non-adjacent (a gap of at least one packet number between ranges);
// that's what lets two ranges be distinct entries instead of one.
type AckFrame struct {
	Ranges  []AckRange
	// DelayMicros is the ack delay already scaled by 2^ack_delay_exponent,
	// as it appears on the wire (RFC 9000 §19.3).
	DelayMicros uint64
}

// DefaultAckDelayExponent is the value assumed absent transport
// parameter negotiation; negotiating it is the handshake's job and
// stays out of scope for this package.
const DefaultAckDelayExponent = 3

// LargestAcked returns the largest packet number this frame
// acknowledges.
func (f AckFrame) LargestAcked() protocol.PacketNumber {
	if len(f.Ranges) == 0 {
		return protocol.InvalidPacketNumber
	}
	return f.Ranges[0].Largest
}

// LowestAcked returns the smallest packet number this frame
// acknowledges.
func (f AckFrame) LowestAcked() protocol.PacketNumber {
	if len(f.Ranges) == 0 {
		return protocol.InvalidPacketNumber
	}
	return f.Ranges[len(f.Ranges)-1].Smallest
}

// HasMissingRanges reports whether the frame acknowledges more than one
// contiguous range.
func (f AckFrame) HasMissingRanges() bool {
	return len(f.Ranges) > 1
}

// AckDelay returns the ack delay as a duration, given the ack-delay
// exponent in effect.
func (f AckFrame) AckDelay(exponent uint8) time.Duration {
	return time.Duration(f.DelayMicros<<exponent) * time.Microsecond
}

// Contains reports whether pn falls within one of the frame's ranges.
func (f AckFrame) Contains(pn protocol.PacketNumber) bool {
	for _, r := range f.Ranges {
		if pn >= r.Smallest && pn <= r.Largest {
			return true
		}
		if pn > r.Largest {
			return false
		}
	}
	return false
}

func (f AckFrame) AppendTo(b []byte) []byte {
	b = append(b, FrameTypeAckWithoutECN)
	b = AppendVarint(b, uint64(f.LargestAcked()))
	b = AppendVarint(b, f.DelayMicros)
	b = AppendVarint(b, uint64(len(f.Ranges)-1))
	first := f.Ranges[0]
	b = AppendVarint(b, uint64(first.Largest-first.Smallest))
	prevSmallest := first.Smallest
	for _, r := range f.Ranges[1:] {
		gap := uint64(prevSmallest - r.Largest - 2)
		b = AppendVarint(b, gap)
		b = AppendVarint(b, uint64(r.Largest-r.Smallest))
		prevSmallest = r.Smallest
	}
	return b
}

func (f AckFrame) Length() protocol.ByteCount {
	return protocol.ByteCount(len(f.AppendTo(nil)))
}

// AckEliciting is always false: acknowledging a packet never itself
// obligates a further ACK.
func (f AckFrame) AckEliciting() bool { return false }

func (f AckFrame) String() string {
	return fmt.Sprintf("ACK largest=%d delay=%dus ranges=%v", f.LargestAcked(), f.DelayMicros, f.Ranges)
}

func parseAckFrame(b []byte) (Frame, int) {
	if len(b) < 1 || (b[0] != FrameTypeAckWithoutECN && b[0] != FrameTypeAckWithECN) {
		return nil, -1
	}
	pos := 1
	largest, n := ConsumeVarint(b[pos:])
	if n < 0 {
		return nil, -1
	}
	pos += n
	delay, n := ConsumeVarint(b[pos:])
	if n < 0 {
		return nil, -1
	}
	pos += n
	rangeCount, n := ConsumeVarint(b[pos:])
	if n < 0 {
		return nil, -1
	}
	pos += n
	firstLen, n := ConsumeVarint(b[pos:])
	if n < 0 {
		return nil, -1
	}
	pos += n
	if firstLen > largest {
		return nil, -1
	}
	ranges := make([]AckRange, 0, rangeCount+1)
	largestPN := protocol.PacketNumber(largest)
	smallest := largestPN - protocol.PacketNumber(firstLen)
	ranges = append(ranges, AckRange{Smallest: smallest, Largest: largestPN})
	for i := uint64(0); i < rangeCount; i++ {
		gap, n := ConsumeVarint(b[pos:])
		if n < 0 {
			return nil, -1
		}
		pos += n
		length, n := ConsumeVarint(b[pos:])
		if n < 0 {
			return nil, -1
		}
		pos += n
		newLargest := smallest - protocol.PacketNumber(gap) - 2
		newSmallest := newLargest - protocol.PacketNumber(length)
		ranges = append(ranges, AckRange{Smallest: newSmallest, Largest: newLargest})
		smallest = newSmallest
	}
	if b[0] == FrameTypeAckWithECN {
		for i := 0; i < 3; i++ {
			_, n := ConsumeVarint(b[pos:])
			if n < 0 {
				return nil, -1
			}
			pos += n
		}
	}
	return AckFrame{Ranges: ranges, DelayMicros: delay}, pos
}
