package activation

import (
	"context"
	"time"
)

// Heartbeat updates the matching Activation's LastHeartbeatAt to now.
// Heartbeats are commutative and idempotent (§5) — they only move the
// timestamp forward in wall-clock terms, so no license-level lock is
// needed beyond whatever the store provides for a single-row update.
func (e *Engine) Heartbeat(ctx context.Context, licenseKey, machineID string) bool {
	row, err := e.lookupLicense(ctx, licenseKey)
	if err != nil {
		return false
	}

	act, err := e.store.FindActivation(ctx, row.ID, machineID)
	if err != nil {
		return false
	}

	act.LastHeartbeatAt = time.Now().UTC()
	if err := e.store.InsertActivation(ctx, act); err != nil {
		return false
	}
	e.publish(EventHeartbeat, row.ID, machineID)
	return true
}
