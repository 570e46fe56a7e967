// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"

	"github.com/abnv418/kwik/internal/protocol"
)

// PingFrame carries no content; its only purpose is being ack-eliciting.
type PingFrame struct{}

func (PingFrame) AppendTo(b []byte) []byte       { return append(b, FrameTypePing) }
func (PingFrame) Length() protocol.ByteCount     { return 1 }
func (PingFrame) AckEliciting() bool             { return true }
func (PingFrame) String() string                 { return "PING" }

// MaxDataFrame advertises the connection-level flow-control limit.
// Type 0x10, varint limit.
type MaxDataFrame struct {
	MaximumData protocol.ByteCount
}

func (f MaxDataFrame) AppendTo(b []byte) []byte {
	b = append(b, FrameTypeMaxData)
	return AppendVarint(b, uint64(f.MaximumData))
}
func (f MaxDataFrame) Length() protocol.ByteCount {
	return protocol.ByteCount(1 + VarintLen(uint64(f.MaximumData)))
}
func (f MaxDataFrame) AckEliciting() bool { return true }
func (f MaxDataFrame) String() string     { return fmt.Sprintf("MAX_DATA limit=%d", f.MaximumData) }

func parseMaxDataFrame(b []byte) (Frame, int) {
	if len(b) < 1 || b[0] != FrameTypeMaxData {
		return nil, -1
	}
	v, n := ConsumeVarint(b[1:])
	if n < 0 {
		return nil, -1
	}
	return MaxDataFrame{MaximumData: protocol.ByteCount(v)}, 1 + n
}

// MaxStreamDataFrame advertises a per-stream flow-control limit.
// Type 0x11, stream id varint, limit varint.
type MaxStreamDataFrame struct {
	StreamID    protocol.ByteCount
	MaximumData protocol.ByteCount
}

func (f MaxStreamDataFrame) AppendTo(b []byte) []byte {
	b = append(b, FrameTypeMaxStreamData)
	b = AppendVarint(b, uint64(f.StreamID))
	return AppendVarint(b, uint64(f.MaximumData))
}
func (f MaxStreamDataFrame) Length() protocol.ByteCount {
	return protocol.ByteCount(1 + VarintLen(uint64(f.StreamID)) + VarintLen(uint64(f.MaximumData)))
}
func (f MaxStreamDataFrame) AckEliciting() bool { return true }
func (f MaxStreamDataFrame) String() string {
	return fmt.Sprintf("MAX_STREAM_DATA id=%d limit=%d", f.StreamID, f.MaximumData)
}

func parseMaxStreamDataFrame(b []byte) (Frame, int) {
	if len(b) < 1 || b[0] != FrameTypeMaxStreamData {
		return nil, -1
	}
	pos := 1
	sid, n := ConsumeVarint(b[pos:])
	if n < 0 {
		return nil, -1
	}
	pos += n
	limit, n := ConsumeVarint(b[pos:])
	if n < 0 {
		return nil, -1
	}
	pos += n
	return MaxStreamDataFrame{StreamID: protocol.ByteCount(sid), MaximumData: protocol.ByteCount(limit)}, pos
}

// StopSendingFrame asks the peer to stop sending on a stream.
// Type 0x0c, stream id varint, 16-bit error code.
type StopSendingFrame struct {
	StreamID  protocol.ByteCount
	ErrorCode uint16
}

func (f StopSendingFrame) AppendTo(b []byte) []byte {
	b = append(b, FrameTypeStopSending)
	b = AppendVarint(b, uint64(f.StreamID))
	return append(b, byte(f.ErrorCode>>8), byte(f.ErrorCode))
}
func (f StopSendingFrame) Length() protocol.ByteCount {
	return protocol.ByteCount(1 + VarintLen(uint64(f.StreamID)) + 2)
}
func (f StopSendingFrame) AckEliciting() bool { return true }
func (f StopSendingFrame) String() string {
	return fmt.Sprintf("STOP_SENDING id=%d code=%d", f.StreamID, f.ErrorCode)
}

func parseStopSendingFrame(b []byte) (Frame, int) {
	if len(b) < 1 || b[0] != FrameTypeStopSending {
		return nil, -1
	}
	pos := 1
	sid, n := ConsumeVarint(b[pos:])
	if n < 0 {
		return nil, -1
	}
	pos += n
	if len(b) < pos+2 {
		return nil, -1
	}
	code := uint16(b[pos])<<8 | uint16(b[pos+1])
	pos += 2
	return StopSendingFrame{StreamID: protocol.ByteCount(sid), ErrorCode: code}, pos
}

// ConnectionCloseFrame terminates the connection, carrying the error
// code and an optional human-readable reason.
type ConnectionCloseFrame struct {
	ErrorCode    uint64
	ReasonPhrase string
}

func (f ConnectionCloseFrame) AppendTo(b []byte) []byte {
	b = append(b, FrameTypeConnectionClose)
	b = AppendVarint(b, f.ErrorCode)
	b = AppendVarint(b, 0) // frame type triggering the close; unknown here
	b = AppendVarint(b, uint64(len(f.ReasonPhrase)))
	return append(b, f.ReasonPhrase...)
}
func (f ConnectionCloseFrame) Length() protocol.ByteCount {
	return protocol.ByteCount(1 + VarintLen(f.ErrorCode) + VarintLen(0) + VarintLen(uint64(len(f.ReasonPhrase))) + len(f.ReasonPhrase))
}
func (f ConnectionCloseFrame) AckEliciting() bool { return true }
func (f ConnectionCloseFrame) String() string {
	return fmt.Sprintf("CONNECTION_CLOSE code=%d reason=%q", f.ErrorCode, f.ReasonPhrase)
}

func parseConnectionCloseFrame(b []byte) (Frame, int) {
	if len(b) < 1 || b[0] != FrameTypeConnectionClose {
		return nil, -1
	}
	pos := 1
	code, n := ConsumeVarint(b[pos:])
	if n < 0 {
		return nil, -1
	}
	pos += n
	_, n = ConsumeVarint(b[pos:]) // triggering frame type
	if n < 0 {
		return nil, -1
	}
	pos += n
	length, n := ConsumeVarint(b[pos:])
	if n < 0 {
		return nil, -1
	}
	pos += n
	if uint64(len(b)-pos) < length {
		return nil, -1
	}
	reason := string(b[pos : pos+int(length)])
	pos += int(length)
	return ConnectionCloseFrame{ErrorCode: code, ReasonPhrase: reason}, pos
}
