package manager

import (
	"context"
	"log/slog"
	"time"
)

// heartbeatTask is the single timer a Manager owns at most one of at a
// time (§9: "replace source's implicit ??= with explicit ownership").
// Close drops it; re-entering Load never creates a second one.
type heartbeatTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startHeartbeat(server *ServerClient, licenseKey, hardwareID string, interval time.Duration) *heartbeatTask {
	ctx, cancel := context.WithCancel(context.Background())
	t := &heartbeatTask{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// On non-success the task logs and propagates nothing further —
				// the server's reclamation is authoritative (§4.6), not this loop.
				if err := server.Heartbeat(ctx, licenseKey, hardwareID); err != nil {
					slog.Warn("manager: heartbeat failed", "license_key", licenseKey, "err", err)
				}
			}
		}
	}()

	return t
}

// stop cancels the timer and waits for its goroutine to exit, so Close can
// deterministically order "heartbeat stopped" before "disconnect sent" (§5).
func (t *heartbeatTask) stop() {
	t.cancel()
	<-t.done
}
