// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ackhandler

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/abnv418/kwik/internal/protocol"
	"github.com/abnv418/kwik/internal/wire"
)

// ErrDuplicatePacketID is returned by Registry.Record when the
// identifier is already present: a programming error, never a peer's
// fault.
var ErrDuplicatePacketID = errors.New("ackhandler: duplicate packet identifier")

// ErrInvalidTransition is returned by Registry.MarkResent when the
// record is absent or already resent.
var ErrInvalidTransition = errors.New("ackhandler: invalid registry state transition")

// Record is an in-flight record: the fate of one sent packet, mutated
// only by the ACK processor and the retransmission scheduler.
type Record struct {
	ID       protocol.PacketIdentifier
	TimeSent time.Time
	Packet   *wire.SentPacket
	Acked    bool
	Resent   bool

	// LostCallback is the per-request "what to do if this frame is
	// lost" closure. Nil for packets with no retransmission action of
	// their own (e.g. ACK-only packets).
	LostCallback func()
}

// Registry is the in-flight registry: a per-(level, packet-number)
// record of sent packets, sharded by encryption level so the
// ACK-processing, send, and retransmission-timer paths can each take a
// narrower lock.
//
// Records are retained after reaching a terminal state, for the
// statistics SnapshotSorted exposes; nothing here prunes them.
type Registry struct {
	shards [protocol.NumberOfEncryptionLevels]registryShard
}

type registryShard struct {
	mu      sync.Mutex
	records map[protocol.PacketNumber]*Record
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].records = make(map[protocol.PacketNumber]*Record)
	}
	return r
}

func (r *Registry) shard(level protocol.EncryptionLevel) *registryShard {
	return &r.shards[level]
}

// Record inserts a new in-flight record, created atomically with the
// packet's (simulated) UDP send. lostCallback may be nil.
func (r *Registry) Record(id protocol.PacketIdentifier, packet *wire.SentPacket, timeSent time.Time, lostCallback func()) error {
	s := r.shard(id.Level)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id.Number]; ok {
		return ErrDuplicatePacketID
	}
	s.records[id.Number] = &Record{ID: id, TimeSent: timeSent, Packet: packet, LostCallback: lostCallback}
	return nil
}

// MarkResentAndFetch marks the record for id resent and returns a copy
// of it as it stood just before the update. Used by the loss path
// (retransmission scheduler, or an external loss signal) to both
// transition the record and retrieve its packet size / lost-callback in
// one locked step.
func (r *Registry) MarkResentAndFetch(id protocol.PacketIdentifier) (prev Record, err error) {
	s := r.shard(id.Level)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, found := s.records[id.Number]
	if !found || rec.Resent {
		return Record{}, ErrInvalidTransition
	}
	prev = *rec
	rec.Resent = true
	return prev, nil
}

// MarkAcked sets acked=true on the record for id and returns a copy of
// it as it stood before the update, or ok=false if no such record
// exists — e.g. the ACK references an unknown (or already-forgotten)
// packet number, which is treated as a silent no-op rather than an
// error.
func (r *Registry) MarkAcked(id protocol.PacketIdentifier) (prev Record, ok bool) {
	s := r.shard(id.Level)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, found := s.records[id.Number]
	if !found {
		return Record{}, false
	}
	prev = *rec
	rec.Acked = true
	return prev, true
}

// MarkResent sets resent=true on the record for id.
func (r *Registry) MarkResent(id protocol.PacketIdentifier) error {
	s := r.shard(id.Level)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, found := s.records[id.Number]
	if !found || rec.Resent {
		return ErrInvalidTransition
	}
	rec.Resent = true
	return nil
}

// Get returns a copy of the record for id, if any.
func (r *Registry) Get(id protocol.PacketIdentifier) (Record, bool) {
	s := r.shard(id.Level)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, found := s.records[id.Number]
	if !found {
		return Record{}, false
	}
	return *rec, true
}

// PendingCrypto reports whether any record carries a CRYPTO frame and
// is neither acked nor resent. This is the handshake-in-flight
// predicate, evaluated per packet class rather than via a global flag.
func (r *Registry) PendingCrypto() bool {
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for _, rec := range s.records {
			if rec.Packet != nil && rec.Packet.HasCrypto && !rec.Acked && !rec.Resent {
				s.mu.Unlock()
				return true
			}
		}
		s.mu.Unlock()
	}
	return false
}

// SnapshotSorted returns every record currently held, ordered by
// PacketIdentifier, for diagnostic reporting.
func (r *Registry) SnapshotSorted() []Record {
	var out []Record
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for _, rec := range s.records {
			out = append(out, *rec)
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out
}
