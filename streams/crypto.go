// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package streams

import (
	"sync"

	"github.com/abnv418/kwik/internal/protocol"
	"github.com/abnv418/kwik/internal/wire"
)

// Crypto is the send-side buffer for one encryption level's CRYPTO
// stream: TLS handshake bytes queued for framing, plus the resend
// bookkeeping a Produce caller needs when a CRYPTO-bearing packet is
// later declared lost. It mirrors Output, minus stream id and FIN:
// CRYPTO data has neither.
type Crypto struct {
	mu sync.Mutex

	buf     []byte
	sendOff protocol.ByteCount
	baseOff protocol.ByteCount

	resend []wire.AckRange
}

// NewCrypto returns an empty CRYPTO buffer.
func NewCrypto() *Crypto {
	return &Crypto{}
}

// Write appends p to the buffer, to be framed and sent by the send
// loop. It never blocks.
func (c *Crypto) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = append(c.buf, p...)
	return len(p), nil
}

// Produce is the producer callback the send loop drains: given a
// maximum frame size budget, it returns the next CRYPTO frame to send
// (or ok=false if there is nothing to send), along with a lost
// callback to re-queue that exact byte range if the frame carrying it
// is later declared lost.
func (c *Crypto) Produce(maxLen int) (frame wire.CryptoFrame, lost func(), ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.resend) > 0 {
		r := c.resend[0]
		lo := r.Smallest - c.baseOff
		hi := r.Largest - c.baseOff + 1
		if lo < 0 {
			lo = 0
		}
		if int(hi) > len(c.buf) {
			hi = protocol.ByteCount(len(c.buf))
		}
		headerLen := int(wire.CryptoFrame{Offset: r.Smallest}.HeaderLen())
		budget := maxLen - headerLen
		if budget <= 0 || hi <= lo {
			return wire.CryptoFrame{}, nil, false
		}
		if int(hi-lo) > budget {
			hi = lo + protocol.ByteCount(budget)
		}
		data := append([]byte(nil), c.buf[lo:hi]...)
		off := c.baseOff + lo
		c.resend = c.resend[1:]
		if hi < r.Largest-c.baseOff+1 {
			c.resend = append([]wire.AckRange{{Smallest: off + protocol.ByteCount(len(data)), Largest: r.Largest}}, c.resend...)
		}
		return wire.CryptoFrame{Offset: off, Data: data}, c.lostFrameCallback(off, protocol.ByteCount(len(data))), true
	}

	avail := protocol.ByteCount(len(c.buf)) - (c.sendOff - c.baseOff)
	if avail <= 0 {
		return wire.CryptoFrame{}, nil, false
	}
	headerLen := int(wire.CryptoFrame{Offset: c.sendOff}.HeaderLen())
	budget := protocol.ByteCount(maxLen - headerLen)
	if budget <= 0 {
		return wire.CryptoFrame{}, nil, false
	}
	n := avail
	if n > budget {
		n = budget
	}
	start := c.sendOff - c.baseOff
	data := append([]byte(nil), c.buf[start:start+n]...)
	off := c.sendOff
	c.sendOff += n
	return wire.CryptoFrame{Offset: off, Data: data}, c.lostFrameCallback(off, n), true
}

// lostFrameCallback returns a closure that re-queues [off, off+n) for
// resend, matching one in-flight record's lifetime.
func (c *Crypto) lostFrameCallback(off, n protocol.ByteCount) func() {
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.resend = append(c.resend, wire.AckRange{Smallest: off, Largest: off + n - 1})
	}
}

// Acked discards bytes up to newBase from the buffer: they have been
// acknowledged and are no longer needed for retransmission.
func (c *Crypto) Acked(newBase protocol.ByteCount) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if newBase <= c.baseOff {
		return
	}
	drop := newBase - c.baseOff
	if int(drop) > len(c.buf) {
		drop = protocol.ByteCount(len(c.buf))
	}
	c.buf = c.buf[drop:]
	c.baseOff = newBase
}
