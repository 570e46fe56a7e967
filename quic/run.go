// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package quic

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Run drives the connection's two background tasks — the send loop and
// the crypto retransmission timer — as a group that exits together on
// the first error or on ctx cancellation. It blocks until both tasks
// have returned.
func (c *Conn) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer c.exit()
		return c.runSendLoop(ctx)
	})
	g.Go(func() error {
		c.runRetransmitTimer(ctx)
		return nil
	})

	return g.Wait()
}

// runSendLoop repeatedly calls maybeSend, sleeping until the next time
// it is worth attempting (either maybeSend's own pacing deadline, or the
// congestion controller's WaitForUpdate wakeup).
func (c *Conn) runSendLoop(ctx context.Context) error {
	admissionWait := c.config.AdmissionWaitTimeout
	if admissionWait <= 0 {
		admissionWait = time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		now := time.Now()
		next, err := c.maybeSend(now)
		if err != nil {
			return err
		}
		if next.IsZero() {
			c.loss.CC.WaitForUpdate(now.Add(admissionWait))
			continue
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
