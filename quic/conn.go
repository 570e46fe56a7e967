// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package quic implements the client-side send path of a QUIC
// connection: packet framing, pacing under congestion control,
// per-encryption-level packet-number spaces, ACK processing,
// retransmission, and per-stream framing. The TLS handshake, inbound
// packet dispatch and parsing of frame types this package does not
// produce, and UDP socket I/O are external collaborators.
package quic

import (
	"net/netip"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/abnv418/kwik/internal/ackhandler"
	"github.com/abnv418/kwik/internal/congestion"
	"github.com/abnv418/kwik/internal/protocol"
	"github.com/abnv418/kwik/internal/wire"
	"github.com/abnv418/kwik/streams"
)

// minimumClientInitialDatagramSize is the minimum size a client must pad
// its first Initial-carrying datagram to, per RFC 9000 §14.1.
const minimumClientInitialDatagramSize = 1200

// datagramSender is the external collaborator that actually puts bytes
// on the wire; UDP socket I/O itself is out of scope for this package.
type datagramSender interface {
	sendDatagram(b []byte, addr netip.AddrPort) error
}

// Conn is one client QUIC connection's send path: the packet-number
// allocators, in-flight registry, ACK processor, congestion controller,
// crypto retransmission scheduler and per-stream buffers, built on this
// module's internal/{protocol,wire,ackhandler,congestion} packages.
type Conn struct {
	mu sync.Mutex

	side      protocol.Perspective
	peerAddr  netip.AddrPort
	localConnID []byte
	peerConnID  []byte

	wkeys [protocol.NumberOfEncryptionLevels]wire.Keys
	rkeys [protocol.NumberOfEncryptionLevels]wire.Keys

	acks [protocol.NumberOfEncryptionLevels]*ackhandler.ReceivedTracker
	loss *ackhandler.Handler
	w    *wire.PacketWriter

	queue *sendQueue
	retry *ackhandler.CryptoRetryScheduler

	outputs map[protocol.ByteCount]*streams.Output
	inputs  map[protocol.ByteCount]*streams.Input

	// crypto holds the per-encryption-level CRYPTO send buffer; the
	// handshake's external collaborator writes to it via CryptoFor.
	crypto   [protocol.NumberOfEncryptionLevels]*streams.Crypto
	connFlow *streams.ConnectionFlowController

	listener datagramSender
	logger   *zap.Logger
	metrics  *metricsSet
	config   Config

	// testSendPingSpace/testSendPing exist only to let tests force a
	// PING frame into a specific number space's next packet.
	testSendPingSpace protocol.EncryptionLevel
	testSendPing      testPingState

	exited bool
	donec  chan struct{}
}

type testPingState struct {
	pending bool
	sentAt  protocol.PacketNumber
}

func (s *testPingState) shouldSendPTO(pto bool) bool { return s.pending && pto }
func (s *testPingState) setSent(pn protocol.PacketNumber) {
	s.pending = false
	s.sentAt = pn
}

// newConn constructs a Conn ready to drive maybeSend. cc is the
// congestion controller to use; logger and reg may be nil.
func newConn(side protocol.Perspective, peerAddr netip.AddrPort, localConnID, peerConnID []byte, cc congestion.Controller, listener datagramSender, logger *zap.Logger, reg prometheus.Registerer, cfg Config) *Conn {
	c := &Conn{
		side:        side,
		peerAddr:    peerAddr,
		localConnID: localConnID,
		peerConnID:  peerConnID,
		loss:        ackhandler.NewHandler(cc),
		w:           &wire.PacketWriter{},
		queue:       newSendQueue(),
		retry:       ackhandler.NewCryptoRetryScheduler(),
		outputs:     make(map[protocol.ByteCount]*streams.Output),
		inputs:      make(map[protocol.ByteCount]*streams.Input),
		connFlow:    streams.NewConnectionFlowController(protocol.ByteCount(cfg.InitialMaxStreamData)),
		listener:    listener,
		logger:      logOrNop(logger),
		metrics:     newMetricsSet(reg),
		config:      cfg,
		donec:       make(chan struct{}),
	}
	c.loss.MaxDatagramSize = protocol.ByteCount(cfg.MaxPacketSize)
	for i := range c.acks {
		c.acks[i] = ackhandler.NewReceivedTracker()
	}
	for i := range c.crypto {
		c.crypto[i] = streams.NewCrypto()
	}
	c.loss.Acks.OnHandshakeConfirmed = c.retry.Reset
	c.loss.Acks.OnSpuriousAck = func(id protocol.PacketIdentifier) {
		c.logger.Sugar().Warnf("spurious ack %s", id)
	}
	return c
}

// CryptoFor returns the CRYPTO send buffer for level: the handshake's
// external collaborator writes TLS handshake bytes to it, and maybeSend
// drains it into CRYPTO frames exactly as OutputFor drains a stream's
// Output into STREAM frames.
func (c *Conn) CryptoFor(level protocol.EncryptionLevel) *streams.Crypto {
	return c.crypto[level]
}

// SetKeys installs write and read keys for level; key derivation itself
// is the handshake's job and stays external to this package.
func (c *Conn) SetKeys(level protocol.EncryptionLevel, wkeys, rkeys wire.Keys) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wkeys[level] = wkeys
	c.rkeys[level] = rkeys
}

// OutputFor returns (creating if necessary) the Stream Output Buffer for
// streamID, registering it with the send queue so maybeSend will drain
// it at level. It fails with ErrConnectionClosed once the connection
// has exited.
func (c *Conn) OutputFor(streamID protocol.ByteCount, level protocol.EncryptionLevel) (*streams.Output, error) {
	if c.isExited() {
		return nil, ErrConnectionClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if o, ok := c.outputs[streamID]; ok {
		return o, nil
	}
	o := streams.NewOutput(streamID)
	c.outputs[streamID] = o
	c.queue.Register(&sendRequest{
		level:   level,
		minSize: 2,
		produce: func(budget int) (bool, func()) {
			hdrLen := int(wire.StreamFrame{StreamID: streamID}.HeaderLen())
			f, lost, ok := o.Produce(budget, hdrLen)
			if !ok {
				return false, nil
			}
			return c.w.AppendFrame(f), lost
		},
	})
	return o, nil
}

// InputFor returns (creating if necessary) the Stream Input Buffer for
// streamID. It fails with ErrConnectionClosed once the connection has
// exited.
func (c *Conn) InputFor(streamID protocol.ByteCount) (*streams.Input, error) {
	if c.isExited() {
		return nil, ErrConnectionClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if in, ok := c.inputs[streamID]; ok {
		return in, nil
	}
	in := streams.NewInput(streamID, protocol.ByteCount(c.config.InitialMaxStreamData))
	in.SetConnFlow(c.connFlow)
	if c.config.ReadTimeout > 0 {
		in.SetReadTimeout(c.config.ReadTimeout)
	}
	c.inputs[streamID] = in
	return in, nil
}

// HandleStopSending processes a received STOP_SENDING frame: the
// stream's Input buffer is aborted and future reads fail with
// ErrStreamAborted. Parsing and dispatching the datagram that carried
// the frame is an external collaborator's job; this is the action once
// one arrives.
func (c *Conn) HandleStopSending(f wire.StopSendingFrame) {
	c.mu.Lock()
	in, ok := c.inputs[f.StreamID]
	c.mu.Unlock()
	if ok {
		in.Abort()
	}
}

// exit marks the connection as finished, wakes anyone waiting on donec,
// and fails every stream buffer's further operations with
// ErrConnectionClosed.
func (c *Conn) exit() {
	c.mu.Lock()
	if c.exited {
		c.mu.Unlock()
		return
	}
	c.exited = true
	outputs := make([]*streams.Output, 0, len(c.outputs))
	for _, o := range c.outputs {
		outputs = append(outputs, o)
	}
	inputs := make([]*streams.Input, 0, len(c.inputs))
	for _, in := range c.inputs {
		inputs = append(inputs, in)
	}
	close(c.donec)
	c.mu.Unlock()

	for _, o := range outputs {
		o.CloseConnection()
	}
	for _, in := range inputs {
		in.CloseConnection()
	}
}

func (c *Conn) isExited() bool {
	select {
	case <-c.donec:
		return true
	default:
		return false
	}
}

// updateMetrics refreshes the prometheus gauges from the current
// congestion/RTT state. Called after any transition that changes them.
func (c *Conn) updateMetrics() {
	if c.metrics == nil {
		return
	}
	c.metrics.bytesInFlight.Set(float64(c.loss.CC.BytesInFlight()))
	c.metrics.congestionWindow.Set(float64(c.loss.CC.CongestionWindow()))
	c.metrics.smoothedRTT.Set(c.loss.RTT.SmoothedRTT().Seconds())
}

// ptoExpired reports whether a PTO-style probe is currently due: this
// package's primary retransmission signal is the explicit crypto timer
// (retransmit.go), so this only gates the "send a bare PING to make a
// probe ack-eliciting" behavior.
func (c *Conn) ptoExpired(now time.Time) bool {
	return c.loss.Acks.HandshakeInFlight() && c.retry.Retries() > 0
}
