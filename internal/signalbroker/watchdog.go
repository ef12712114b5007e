// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package signalbroker

import (
	"context"
	"os"

	"github.com/matt-FFFFFF/hwloop/internal/ctxlog"
)

// Handler is called by Watch with the signal that triggered it.
type Handler func(sig os.Signal)

// Watch monitors the signal channel until ctx is done or the channel is closed.
// The first signal calls graceful. The second signal, of any type, calls emergency and Watch returns.
// Either handler may be nil.
func Watch(ctx context.Context, sigCh <-chan os.Signal, graceful, emergency Handler) {
	received := false

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}

			if received {
				ctxlog.Warn(ctx, "watchdog", "detail", "received second signal, emergency stop", "signal", sig.String())

				if emergency != nil {
					emergency(sig)
				}

				return
			}

			ctxlog.Info(ctx, "watchdog",
				"detail", "received signal, stopping after the current iteration; signal again to stop immediately",
				"signal", sig.String())

			received = true

			if graceful != nil {
				graceful(sig)
			}
		}
	}
}
