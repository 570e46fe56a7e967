// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package quic

import "go.uber.org/zap"

// nopLogger is used whenever a Conn is constructed without an explicit
// logger, following the nilable-but-defaulted-to-Nop pattern used by
// github.com/Lzww0608/AetherFlow throughout its network service.
func nopLogger() *zap.Logger {
	return zap.NewNop()
}

// logOrNop returns l, or a no-op logger if l is nil.
func logOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return nopLogger()
	}
	return l
}
