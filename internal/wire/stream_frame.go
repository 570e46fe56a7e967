// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"

	"github.com/abnv418/kwik/internal/protocol"
)

// StreamFrame carries application data for one stream.
// Type 0x08..0x0f: stream id varint, offset varint (if OFF bit set),
// length varint (if LEN bit set), data; FIN in the low bit.
//
// This package always sets the OFF and LEN bits when serializing, so
// the frame is self-delimiting inside a packet that may carry further
// frames after it; callers building frames (streams.Output.Produce)
// need to know a frame's exact length to size the next one.
type StreamFrame struct {
	StreamID protocol.ByteCount
	Offset   protocol.ByteCount
	Data     []byte
	Fin      bool
}

func (f StreamFrame) typeByte() byte {
	t := byte(frameTypeStreamBase) | frameTypeOffBit() | frameTypeLenBit()
	if f.Fin {
		t |= frameTypeStreamFinBit
	}
	return t
}

func frameTypeOffBit() byte { return frameTypeStreamOffBit }
func frameTypeLenBit() byte { return frameTypeStreamLenBit }

func (f StreamFrame) AppendTo(b []byte) []byte {
	b = append(b, f.typeByte())
	b = AppendVarint(b, uint64(f.StreamID))
	b = AppendVarint(b, uint64(f.Offset))
	b = AppendVarint(b, uint64(len(f.Data)))
	b = append(b, f.Data...)
	return b
}

// HeaderLen returns the size of everything in the frame but the data
// payload: the type byte, stream-id varint, offset varint and length
// varint. Callers use this to size the data they pack into a frame for
// a given budget.
func (f StreamFrame) HeaderLen() protocol.ByteCount {
	return protocol.ByteCount(1 + VarintLen(uint64(f.StreamID)) + VarintLen(uint64(f.Offset)) + VarintLen(uint64(len(f.Data))))
}

func (f StreamFrame) Length() protocol.ByteCount {
	return f.HeaderLen() + protocol.ByteCount(len(f.Data))
}

func (f StreamFrame) AckEliciting() bool { return true }

func (f StreamFrame) String() string {
	fin := ""
	if f.Fin {
		fin = " FIN"
	}
	return fmt.Sprintf("STREAM id=%d offset=%d len=%d%s", f.StreamID, f.Offset, len(f.Data), fin)
}

func parseStreamFrame(b []byte) (Frame, int) {
	if len(b) < 1 || b[0]&0xf8 != frameTypeStreamBase {
		return nil, -1
	}
	typ := b[0]
	pos := 1
	sid, n := ConsumeVarint(b[pos:])
	if n < 0 {
		return nil, -1
	}
	pos += n
	var offset uint64
	if typ&frameTypeStreamOffBit != 0 {
		offset, n = ConsumeVarint(b[pos:])
		if n < 0 {
			return nil, -1
		}
		pos += n
	}
	var length uint64
	if typ&frameTypeStreamLenBit != 0 {
		length, n = ConsumeVarint(b[pos:])
		if n < 0 {
			return nil, -1
		}
		pos += n
	} else {
		length = uint64(len(b) - pos)
	}
	if uint64(len(b)-pos) < length {
		return nil, -1
	}
	data := append([]byte(nil), b[pos:pos+int(length)]...)
	pos += int(length)
	return StreamFrame{
		StreamID: protocol.ByteCount(sid),
		Offset:   protocol.ByteCount(offset),
		Data:     data,
		Fin:      typ&frameTypeStreamFinBit != 0,
	}, pos
}
