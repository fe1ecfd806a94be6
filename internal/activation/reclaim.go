package activation

import (
	"context"
	"log/slog"
	"time"

	"github.com/clk-66/licensecore/internal/store"
)

// StartReclamation launches the single-instance background worker that
// sweeps for activations whose heartbeat has lapsed past reclaimTimeout and
// removes them, decrementing their license's ActiveUsersCount (§4.7). It
// runs until ctx is cancelled or StopReclamation is called. Callers should
// only ever call this once per Engine, mirroring the client manager's
// single-heartbeat-timer discipline (§9).
func (e *Engine) StartReclamation(ctx context.Context) {
	go func() {
		defer close(e.reclaimDone)
		ticker := time.NewTicker(e.reclaimInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stopReclaim:
				return
			case <-ticker.C:
				e.ReclaimOnce(ctx)
			}
		}
	}()
}

// StopReclamation signals the reclamation goroutine to exit and waits for
// it to finish.
func (e *Engine) StopReclamation() {
	close(e.stopReclaim)
	<-e.reclaimDone
}

// ReclaimOnce runs a single reclamation sweep. Exported so tests (and S5's
// scenario) can drive it deterministically instead of waiting on the timer.
func (e *Engine) ReclaimOnce(ctx context.Context) {
	threshold := time.Now().UTC().Add(-e.reclaimTimeout)
	stale, err := e.store.SelectStaleActivations(ctx, threshold)
	if err != nil {
		slog.Warn("reclamation: select stale activations", "err", err)
		return
	}

	for _, act := range stale {
		act := act
		err := e.store.WithLicenseLock(ctx, act.LicenseID, func(ctx context.Context) error {
			return e.reclaimOne(ctx, act)
		})
		if err != nil {
			slog.Warn("reclamation: reclaim activation", "license_id", act.LicenseID, "machine_id", act.MachineID, "err", err)
		}
	}
}

// reclaimOne removes a single stale activation and decrements its parent
// license's seat count. It assumes the caller already holds the license's
// lock via store.WithLicenseLock.
func (e *Engine) reclaimOne(ctx context.Context, act store.ActivationRow) error {
	if err := e.store.RemoveActivation(ctx, &act); err != nil {
		return err
	}

	row, err := e.store.FindLicenseByID(ctx, act.LicenseID)
	if err != nil {
		return err
	}
	if row.ActiveUsersCount > 0 {
		row.ActiveUsersCount--
	}
	if err := e.store.UpdateLicense(ctx, row); err != nil {
		return err
	}
	e.publish(EventReclaimed, row.ID, act.MachineID)
	return nil
}
