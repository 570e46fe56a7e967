// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package streams

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputReadInOrder(t *testing.T) {
	in := NewInput(0, 1000)
	in.Deliver(0, []byte("hello"), false)

	buf := make([]byte, 16)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := in.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestInputReadOutOfOrderBuffersUntilContiguous(t *testing.T) {
	in := NewInput(0, 1000)
	in.Deliver(5, []byte("world"), false)

	buf := make([]byte, 16)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := in.Read(ctx, buf)
	assert.ErrorIs(t, err, ErrReadTimeout)

	in.Deliver(0, []byte("hello"), false)
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	n, err := in.Read(ctx2, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

// TestInputMaxStreamDataAtTenPercent checks that once 10% of the
// current window has been consumed, a flow-control window update
// becomes pending.
func TestInputMaxStreamDataAtTenPercent(t *testing.T) {
	in := NewInput(0, 100)
	in.Deliver(0, make([]byte, 10), false)

	buf := make([]byte, 10)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := in.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	window, ok := in.TakePendingMaxStreamData()
	require.True(t, ok)
	assert.Equal(t, int64(110), int64(window))

	_, ok = in.TakePendingMaxStreamData()
	assert.False(t, ok)
}

// TestInputAbortFailsRead checks that Abort makes a blocked or
// subsequent Read fail with ErrStreamAborted, e.g. after STOP_SENDING.
func TestInputAbortFailsRead(t *testing.T) {
	in := NewInput(0, 1000)
	in.Abort()

	buf := make([]byte, 16)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := in.Read(ctx, buf)
	assert.ErrorIs(t, err, ErrStreamAborted)
}

// TestInputCloseConnectionFailsRead checks that CloseConnection makes a
// subsequent Read fail with ErrConnectionClosed.
func TestInputCloseConnectionFailsRead(t *testing.T) {
	in := NewInput(0, 1000)
	in.CloseConnection()

	buf := make([]byte, 16)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := in.Read(ctx, buf)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

// TestInputReadTimeoutFromSetReadTimeout checks that SetReadTimeout
// bounds a Read whose ctx carries no deadline of its own.
func TestInputReadTimeoutFromSetReadTimeout(t *testing.T) {
	in := NewInput(0, 1000)
	in.SetReadTimeout(20 * time.Millisecond)

	buf := make([]byte, 16)
	_, err := in.Read(context.Background(), buf)
	assert.ErrorIs(t, err, ErrReadTimeout)
}
