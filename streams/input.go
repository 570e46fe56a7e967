// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package streams

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/abnv418/kwik/internal/protocol"
)

// ErrReadTimeout is returned by Read when ctx expires before data
// arrives.
var ErrReadTimeout = errors.New("streams: read timed out")

// ErrStreamAborted is returned by Read once the stream has been
// aborted, e.g. by a peer's STOP_SENDING.
var ErrStreamAborted = errors.New("streams: stream aborted")

// ErrConnectionClosed is returned by Read or Write once the connection
// the buffer belongs to has exited.
var ErrConnectionClosed = errors.New("streams: connection closed")

// flowControlUpdateThreshold is the fraction of the current window that
// must be consumed before Input emits a new MAX_STREAM_DATA frame.
const flowControlUpdateThreshold = 0.10

// Input is a Stream Input Buffer: received STREAM frame data reordered
// into a contiguous byte sequence, exposed through a blocking Read, plus
// the flow-control window whose growth drives MAX_STREAM_DATA frames.
type Input struct {
	mu sync.Mutex

	id protocol.ByteCount

	received map[protocol.ByteCount][]byte // offset -> bytes, for out-of-order arrivals
	readOff  protocol.ByteCount
	fin      bool
	finOff   protocol.ByteCount

	window        protocol.ByteCount // current flow control limit (absolute offset)
	consumedSince protocol.ByteCount // bytes delivered to Read since last window update

	dataAvail chan struct{}

	// pending, if non-zero, is the new window value this buffer wants
	// the send loop to announce via a MAX_STREAM_DATA frame.
	// TakePendingMaxStreamData clears it.
	pending protocol.ByteCount

	// connFlow, if set, is notified of every byte delivered to Read so
	// the connection-level MAX_DATA window advances alongside this
	// stream's own MAX_STREAM_DATA window.
	connFlow *ConnectionFlowController

	// readTimeout, if nonzero, bounds a Read call whose ctx carries no
	// deadline of its own.
	readTimeout time.Duration

	aborted    bool
	connClosed bool
}

// SetConnFlow wires cf as the connection-level flow controller this
// buffer reports consumption to.
func (in *Input) SetConnFlow(cf *ConnectionFlowController) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.connFlow = cf
}

// SetReadTimeout sets the default deadline applied to a Read call whose
// ctx does not already carry one.
func (in *Input) SetReadTimeout(d time.Duration) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.readTimeout = d
}

// Abort makes the buffer's current and future reads fail with
// ErrStreamAborted, e.g. once a STOP_SENDING frame cancels interest in
// the stream.
func (in *Input) Abort() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.aborted {
		return
	}
	in.aborted = true
	select {
	case in.dataAvail <- struct{}{}:
	default:
	}
}

// CloseConnection marks the buffer as belonging to a connection that
// has exited: further reads fail with ErrConnectionClosed.
func (in *Input) CloseConnection() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.connClosed {
		return
	}
	in.connClosed = true
	select {
	case in.dataAvail <- struct{}{}:
	default:
	}
}

// NewInput returns an Input buffer for stream id with the given initial
// flow-control window (an absolute stream offset).
func NewInput(id protocol.ByteCount, initialWindow protocol.ByteCount) *Input {
	return &Input{
		id:        id,
		received:  make(map[protocol.ByteCount][]byte),
		window:    initialWindow,
		dataAvail: make(chan struct{}, 1),
	}
}

// Deliver stores data received at offset off, with fin set if this is
// the stream's final frame.
func (in *Input) Deliver(off protocol.ByteCount, data []byte, fin bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(data) > 0 {
		in.received[off] = append([]byte(nil), data...)
	}
	if fin {
		in.fin = true
		in.finOff = off + protocol.ByteCount(len(data))
	}
	select {
	case in.dataAvail <- struct{}{}:
	default:
	}
}

// Read blocks until at least one byte is available, EOF is reached,
// the stream is aborted or the connection closed, or ctx is done.
func (in *Input) Read(ctx context.Context, p []byte) (int, error) {
	in.mu.Lock()
	timeout := in.readTimeout
	in.mu.Unlock()
	if timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
	}

	for {
		in.mu.Lock()
		if in.aborted {
			in.mu.Unlock()
			return 0, ErrStreamAborted
		}
		if in.connClosed {
			in.mu.Unlock()
			return 0, ErrConnectionClosed
		}
		n := in.drainLocked(p)
		eof := in.fin && in.readOff == in.finOff
		in.mu.Unlock()

		if n > 0 {
			return n, nil
		}
		if eof {
			return 0, errors.New("streams: EOF")
		}

		select {
		case <-in.dataAvail:
		case <-ctx.Done():
			return 0, ErrReadTimeout
		}
	}
}

// drainLocked copies any contiguous bytes starting at readOff into p and
// advances the flow-control window if consumption has crossed the
// threshold. Caller must hold in.mu.
func (in *Input) drainLocked(p []byte) int {
	chunk, ok := in.received[in.readOff]
	if !ok || len(chunk) == 0 {
		return 0
	}
	n := copy(p, chunk)
	if n == len(chunk) {
		delete(in.received, in.readOff)
	} else {
		in.received[in.readOff] = chunk[n:]
	}
	in.readOff += protocol.ByteCount(n)
	in.consumedSince += protocol.ByteCount(n)
	if in.connFlow != nil {
		in.connFlow.Consume(protocol.ByteCount(n))
	}

	windowSize := in.window
	if windowSize > 0 && float64(in.consumedSince) >= float64(windowSize)*flowControlUpdateThreshold {
		in.window += protocol.ByteCount(float64(windowSize) * flowControlUpdateThreshold)
		in.pending = in.window
		in.consumedSince = 0
	}
	return n
}

// TakePendingMaxStreamData returns the new window value to announce via
// a MAX_STREAM_DATA frame, and clears it, or ok=false if no update is
// pending.
func (in *Input) TakePendingMaxStreamData() (window protocol.ByteCount, ok bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.pending == 0 {
		return 0, false
	}
	window = in.pending
	in.pending = 0
	return window, true
}
