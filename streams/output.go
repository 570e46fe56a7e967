// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package streams implements the caller-facing Stream Output and Input
// Buffers: the per-stream byte queues the send loop drains into STREAM
// frames, and the per-stream receive buffers that feed blocking reads
// and MAX_STREAM_DATA flow-control frames.
package streams

import (
	"sync"

	"github.com/abnv418/kwik/internal/protocol"
	"github.com/abnv418/kwik/internal/wire"
)

// Output is a Stream Output Buffer: a FIFO of bytes a caller has written
// that have not yet been framed into a STREAM frame, plus the bookkeeping
// needed to retransmit any range the peer never acknowledges. It is read only by the send task.
type Output struct {
	mu sync.Mutex

	id      protocol.ByteCount
	buf     []byte
	sendOff protocol.ByteCount // bytes already framed (sent once)
	baseOff protocol.ByteCount // buf[0] corresponds to this stream offset
	finSet  bool
	finSent bool
	closed  bool

	// connClosed marks the buffer as belonging to a connection that has
	// exited, distinct from closed (a caller-initiated CloseWrite).
	connClosed bool

	// resend holds byte ranges that were sent but later declared lost,
	// queued ahead of new data.
	resend []wire.AckRange
}

// NewOutput returns an empty output buffer for stream id.
func NewOutput(id protocol.ByteCount) *Output {
	return &Output{id: id}
}

// Write appends p to the buffer, to be framed and sent by the send
// loop. It never blocks: backpressure is the caller's responsibility.
func (o *Output) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.connClosed {
		return 0, ErrConnectionClosed
	}
	if o.closed {
		return 0, ErrStreamClosed
	}
	o.buf = append(o.buf, p...)
	return len(p), nil
}

// CloseWrite marks the stream as finished: the next frame produced will
// carry FIN once all buffered bytes have been sent, and further Write
// calls fail with ErrStreamClosed.
func (o *Output) CloseWrite() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finSet = true
	o.closed = true
}

// CloseConnection marks the buffer as belonging to a connection that
// has exited: further writes fail with ErrConnectionClosed.
func (o *Output) CloseConnection() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.connClosed = true
}

// ErrStreamClosed is returned by Write after CloseWrite.
var ErrStreamClosed = streamClosedError{}

type streamClosedError struct{}

func (streamClosedError) Error() string { return "streams: write to closed stream" }

// Produce is the producer callback the send loop drains: given a
// maximum frame size budget, it returns the next STREAM frame to send
// (or ok=false if there is nothing to send), along with a lost callback
// to re-queue that exact byte range if the frame carrying it is later
// declared lost.
func (o *Output) Produce(maxLen int, headerLen int) (frame wire.StreamFrame, lost func(), ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.resend) > 0 {
		r := o.resend[0]
		lo := r.Smallest - o.baseOff
		hi := r.Largest - o.baseOff + 1
		if lo < 0 {
			lo = 0
		}
		if int(hi) > len(o.buf) {
			hi = protocol.ByteCount(len(o.buf))
		}
		budget := maxLen - headerLen
		if budget <= 0 {
			return wire.StreamFrame{}, nil, false
		}
		if int(hi-lo) > budget {
			hi = lo + protocol.ByteCount(budget)
		}
		data := append([]byte(nil), o.buf[lo:hi]...)
		off := o.baseOff + lo
		o.resend = o.resend[1:]
		if hi < r.Largest-o.baseOff+1 {
			o.resend = append([]wire.AckRange{{Smallest: off + protocol.ByteCount(len(data)), Largest: r.Largest}}, o.resend...)
		}
		return wire.StreamFrame{StreamID: o.id, Offset: off, Data: data}, o.lostFrameCallback(off, protocol.ByteCount(len(data))), true
	}

	avail := protocol.ByteCount(len(o.buf)) - (o.sendOff - o.baseOff)
	if avail <= 0 {
		if o.finSet && !o.finSent {
			o.finSent = true
			return wire.StreamFrame{StreamID: o.id, Offset: o.sendOff, Fin: true}, nil, true
		}
		return wire.StreamFrame{}, nil, false
	}

	budget := protocol.ByteCount(maxLen - headerLen)
	if budget <= 0 {
		return wire.StreamFrame{}, nil, false
	}
	n := avail
	if n > budget {
		n = budget
	}
	start := o.sendOff - o.baseOff
	data := append([]byte(nil), o.buf[start:start+n]...)
	off := o.sendOff
	o.sendOff += n
	fin := o.finSet && o.sendOff-o.baseOff == protocol.ByteCount(len(o.buf))
	if fin {
		o.finSent = true
	}
	return wire.StreamFrame{StreamID: o.id, Offset: off, Data: data, Fin: fin}, o.lostFrameCallback(off, n), true
}

// lostFrameCallback returns a closure that re-queues [off, off+n) for
// resend, matching one in-flight record's lifetime.
func (o *Output) lostFrameCallback(off, n protocol.ByteCount) func() {
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.resend = append(o.resend, wire.AckRange{Smallest: off, Largest: off + n - 1})
	}
}

// Acked discards bytes up to newBase from the buffer: they have been
// acknowledged and are no longer needed for retransmission.
func (o *Output) Acked(newBase protocol.ByteCount) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if newBase <= o.baseOff {
		return
	}
	drop := newBase - o.baseOff
	if int(drop) > len(o.buf) {
		drop = protocol.ByteCount(len(o.buf))
	}
	o.buf = o.buf[drop:]
	o.baseOff = newBase
}
