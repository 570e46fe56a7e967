// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package streams

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abnv418/kwik/internal/protocol"
)

func TestCryptoProduceDrainsBuffer(t *testing.T) {
	c := NewCrypto()
	_, err := c.Write([]byte("client hello"))
	require.NoError(t, err)

	f, lost, ok := c.Produce(1500)
	require.True(t, ok)
	assert.Equal(t, []byte("client hello"), f.Data)
	require.NotNil(t, lost)

	_, _, ok = c.Produce(1500)
	assert.False(t, ok)
}

func TestCryptoLostFrameRequeues(t *testing.T) {
	c := NewCrypto()
	_, err := c.Write([]byte("hello world"))
	require.NoError(t, err)

	f, lost, ok := c.Produce(10)
	require.True(t, ok)
	require.NotNil(t, lost)

	lost()

	// The lost range is replayed ahead of the remaining original data.
	replay, _, ok := c.Produce(100)
	require.True(t, ok)
	assert.Equal(t, f.Data, replay.Data)
	assert.Equal(t, f.Offset, replay.Offset)
}

func TestCryptoAckedDropsBuffer(t *testing.T) {
	c := NewCrypto()
	_, err := c.Write([]byte("hello world"))
	require.NoError(t, err)

	f, _, ok := c.Produce(1500)
	require.True(t, ok)
	c.Acked(f.Offset + protocol.ByteCount(len(f.Data)))

	_, err = c.Write([]byte("!"))
	require.NoError(t, err)
	next, _, ok := c.Produce(1500)
	require.True(t, ok)
	assert.Equal(t, []byte("!"), next.Data)
}
