// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"

	"github.com/abnv418/kwik/internal/protocol"
)

// CryptoFrame carries a range of the TLS handshake byte stream.
// Type 0x18, varint offset, varint length, bytes.
type CryptoFrame struct {
	Offset protocol.ByteCount
	Data   []byte
}

func (f CryptoFrame) AppendTo(b []byte) []byte {
	b = append(b, FrameTypeCrypto)
	b = AppendVarint(b, uint64(f.Offset))
	b = AppendVarint(b, uint64(len(f.Data)))
	b = append(b, f.Data...)
	return b
}

func (f CryptoFrame) Length() protocol.ByteCount {
	return f.HeaderLen() + protocol.ByteCount(len(f.Data))
}

// HeaderLen returns the size of everything in the frame but the data
// payload: the type byte, offset varint and length varint. Callers use
// this to size the data they pack into a frame for a given budget.
func (f CryptoFrame) HeaderLen() protocol.ByteCount {
	return protocol.ByteCount(1 + VarintLen(uint64(f.Offset)) + VarintLen(uint64(len(f.Data))))
}

func (f CryptoFrame) AckEliciting() bool { return true }

func (f CryptoFrame) String() string {
	return fmt.Sprintf("CRYPTO offset=%d len=%d", f.Offset, len(f.Data))
}

func parseCryptoFrame(b []byte) (Frame, int) {
	if len(b) < 1 || b[0] != FrameTypeCrypto {
		return nil, -1
	}
	pos := 1
	offset, n := ConsumeVarint(b[pos:])
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
	data := append([]byte(nil), b[pos:pos+int(length)]...)
	pos += int(length)
	return CryptoFrame{Offset: protocol.ByteCount(offset), Data: data}, pos
}
