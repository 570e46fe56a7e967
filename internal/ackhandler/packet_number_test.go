// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ackhandler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/abnv418/kwik/internal/protocol"
)

func TestPacketNumberAllocatorSequential(t *testing.T) {
	var a PacketNumberAllocator
	assert.Equal(t, protocol.PacketNumber(0), a.Peek())
	assert.Equal(t, protocol.PacketNumber(0), a.Next())
	assert.Equal(t, protocol.PacketNumber(1), a.Next())
	assert.Equal(t, protocol.PacketNumber(2), a.Peek())
}
