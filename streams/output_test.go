// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package streams

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOutputFin checks that once a stream is closed for writing, the
// frame carrying the last buffered byte also carries FIN, and nothing
// further is produced after that.
func TestOutputFin(t *testing.T) {
	o := NewOutput(0)
	_, err := o.Write([]byte("hi"))
	require.NoError(t, err)
	o.CloseWrite()

	f, _, ok := o.Produce(1500, 0)
	require.True(t, ok)
	assert.Equal(t, []byte("hi"), f.Data)
	assert.True(t, f.Fin)

	_, _, ok = o.Produce(1500, 0)
	assert.False(t, ok)
}

// TestOutputFinAfterDataDrained covers the case where CloseWrite comes
// after all buffered bytes have already been sent: the next Produce
// call emits a standalone zero-length FIN frame.
func TestOutputFinAfterDataDrained(t *testing.T) {
	o := NewOutput(0)
	_, err := o.Write([]byte("hi"))
	require.NoError(t, err)

	f, _, ok := o.Produce(1500, 0)
	require.True(t, ok)
	assert.False(t, f.Fin)

	o.CloseWrite()
	finFrame, _, ok := o.Produce(1500, 0)
	require.True(t, ok)
	assert.True(t, finFrame.Fin)
	assert.Empty(t, finFrame.Data)

	_, _, ok = o.Produce(1500, 0)
	assert.False(t, ok)
}

func TestOutputWriteAfterCloseFails(t *testing.T) {
	o := NewOutput(0)
	o.CloseWrite()
	_, err := o.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestOutputWriteAfterCloseConnectionFails(t *testing.T) {
	o := NewOutput(0)
	o.CloseConnection()
	_, err := o.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestOutputLostFrameRequeues(t *testing.T) {
	o := NewOutput(0)
	_, err := o.Write([]byte("hello world"))
	require.NoError(t, err)

	f, lost, ok := o.Produce(10, 5)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), f.Data)
	require.NotNil(t, lost)

	lost()

	// The lost range is replayed ahead of the remaining original data.
	replay, _, ok := o.Produce(100, 5)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), replay.Data)
	assert.Equal(t, f.Offset, replay.Offset)
}
