// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package quic

import (
	"sync"

	"github.com/abnv418/kwik/internal/protocol"
)

// sendRequest is one entry in the outbound queue: either a frame producer with a minimum
// size it needs to make progress, or nothing at all once drained.
type sendRequest struct {
	level protocol.EncryptionLevel
	// minSize is the smallest budget the producer needs to emit
	// anything useful; the send loop skips a request that doesn't fit
	// rather than blocking the rest of the datagram on it.
	minSize int
	// produce is called with the remaining frame budget (including
	// header bytes); it returns false if it had nothing to emit this
	// round. Implementations live in streams.Output.Produce.
	produce func(budget int) (appended bool, lostCallback func())
}

// sendQueue is the single-consumer FIFO the send task drains each time
// it builds a packet. Producers (stream output buffers, control frame
// sources) register themselves once; the queue does not own their
// state.
type sendQueue struct {
	mu    sync.Mutex
	byLvl [protocol.NumberOfEncryptionLevels][]*sendRequest
}

func newSendQueue() *sendQueue {
	return &sendQueue{}
}

// Register adds req to the queue for its encryption level. Registration
// is permanent for the life of the stream/source req represents: the
// send loop calls produce repeatedly, not once.
func (q *sendQueue) Register(req *sendRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byLvl[req.level] = append(q.byLvl[req.level], req)
}

// Unregister removes req, e.g. once a stream has sent its FIN and has
// nothing left to retransmit.
func (q *sendQueue) Unregister(req *sendRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	reqs := q.byLvl[req.level]
	for i, r := range reqs {
		if r == req {
			q.byLvl[req.level] = append(reqs[:i], reqs[i+1:]...)
			return
		}
	}
}

// Requests returns a snapshot of the requests registered for level, in
// FIFO registration order.
func (q *sendQueue) Requests(level protocol.EncryptionLevel) []*sendRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*sendRequest(nil), q.byLvl[level]...)
}
