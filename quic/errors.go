// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package quic

import (
	"github.com/abnv418/kwik/streams"
)

// Error sentinels for the error categories this package surfaces to
// callers, distinct from the ackhandler package's own
// ErrDuplicatePacketID / ErrInvalidTransition. These alias the values
// streams.Input/streams.Output return directly, so callers of either
// package can check the same sentinel with errors.Is.
var (
	// ErrStreamClosed is returned by operations on a stream that has
	// already been closed for writing.
	ErrStreamClosed = streams.ErrStreamClosed
	// ErrStreamAborted is returned when a stream was reset before a
	// pending operation completed.
	ErrStreamAborted = streams.ErrStreamAborted
	// ErrReadTimeout is returned by a blocking stream read that did not
	// complete before its deadline.
	ErrReadTimeout = streams.ErrReadTimeout
	// ErrConnectionClosed is returned by any operation attempted after
	// the connection has exited.
	ErrConnectionClosed = streams.ErrConnectionClosed
)
