package activation

import (
	"context"
	"time"

	"github.com/clk-66/licensecore/internal/errs"
	"github.com/clk-66/licensecore/internal/license"
	"github.com/clk-66/licensecore/internal/store"
)

// ActivationResult is what Activate returns.
type ActivationResult struct {
	Status ValidationStatus // reuses Valid/Invalid/Expired/Revoked/NotFound plus MaximumActivationsReached below
	Row    *store.LicenseRow
	Err    error
}

const ValidationMaximumActivationsReached ValidationStatus = "MaximumActivationsReached"

// Activate runs Validate first, then dispatches on variant per §4.7. All
// mutation happens inside store.WithLicenseLock so that concurrent
// activations for the same license serialize on the seat count.
func (e *Engine) Activate(ctx context.Context, licenseKey, hardwareID string) ActivationResult {
	pre := e.Validate(ctx, licenseKey, nil, ValidateParams{HardwareId: hardwareID})
	if pre.Status != ValidationValid {
		return ActivationResult{Status: pre.Status, Row: pre.Row, Err: pre.Err}
	}

	var result ActivationResult
	err := e.store.WithLicenseLock(ctx, pre.Row.ID, func(ctx context.Context) error {
		row, err := e.store.FindLicenseByKey(ctx, licenseKey)
		if err != nil {
			result = ActivationResult{Status: ValidationNotFound, Err: err}
			return nil
		}

		switch row.Type {
		case license.Standard, license.Trial:
			row.Status = store.StatusActive
			if err := e.store.UpdateLicense(ctx, row); err != nil {
				return err
			}

		case license.NodeLocked:
			hw := hardwareID
			row.HardwareID = &hw
			row.Status = store.StatusActive
			if err := e.store.UpdateLicense(ctx, row); err != nil {
				return err
			}

		case license.Subscription:
			if row.SubscriptionExpiryDate != nil && row.SubscriptionExpiryDate.Before(time.Now().UTC()) {
				result = ActivationResult{Status: ValidationExpired, Row: row, Err: errs.ErrExpiredLicense}
				return nil
			}
			row.Status = store.StatusActive
			if err := e.store.UpdateLicense(ctx, row); err != nil {
				return err
			}

		case license.Concurrent, license.Floating:
			count, err := e.store.CountActivationsByLicense(ctx, row.ID)
			if err != nil {
				return err
			}
			max := 0
			if row.MaxActiveUsersCount != nil {
				max = *row.MaxActiveUsersCount
			}
			if count >= max {
				result = ActivationResult{Status: ValidationMaximumActivationsReached, Row: row, Err: errs.ErrMaximumActivationsReached}
				return nil
			}
			now := time.Now().UTC()
			if err := e.store.InsertActivation(ctx, &store.ActivationRow{
				ID:              newID(),
				LicenseID:       row.ID,
				MachineID:       hardwareID,
				ActivatedAt:     now,
				LastHeartbeatAt: now,
			}); err != nil {
				return err
			}
			row.ActiveUsersCount = count + 1
			row.Status = store.StatusActive
			if err := e.store.UpdateLicense(ctx, row); err != nil {
				return err
			}
			e.publish(EventActivated, row.ID, hardwareID)
		}

		e.invalidateCache(ctx, licenseKey)
		if result.Status == "" {
			result = ActivationResult{Status: ValidationValid, Row: row}
		}
		return nil
	})
	if err != nil {
		return ActivationResult{Status: ValidationInvalid, Err: err}
	}
	return result
}

// DeactivationResult is what Revoke and DisconnectConcurrent return.
type DeactivationResult struct {
	Status ValidationStatus
	Err    error
}

// Revoke implements §4.7's per-variant revocation. Concurrent/Floating
// remove the matching activation and decrement the seat count; NodeLocked
// clears its hardware binding and is set Revoked; the rest are set Revoked
// outright. Revoked is terminal for every variant, Subscription included:
// Validate (and so Activate) and Renew refuse a revoked license.
func (e *Engine) Revoke(ctx context.Context, licenseKey, hardwareID string) DeactivationResult {
	var result DeactivationResult
	row, err := e.store.FindLicenseByKey(ctx, licenseKey)
	if err != nil {
		return DeactivationResult{Status: ValidationNotFound, Err: errs.ErrNotFound}
	}

	err = e.store.WithLicenseLock(ctx, row.ID, func(ctx context.Context) error {
		row, err := e.store.FindLicenseByKey(ctx, licenseKey)
		if err != nil {
			result = DeactivationResult{Status: ValidationNotFound, Err: errs.ErrNotFound}
			return nil
		}

		switch row.Type {
		case license.Concurrent, license.Floating:
			act, err := e.store.FindActivation(ctx, row.ID, hardwareID)
			if err != nil {
				result = DeactivationResult{Status: ValidationNotFound, Err: errs.ErrNotFound}
				return nil
			}
			if err := e.store.RemoveActivation(ctx, act); err != nil {
				return err
			}
			if row.ActiveUsersCount > 0 {
				row.ActiveUsersCount--
			}
			if err := e.store.UpdateLicense(ctx, row); err != nil {
				return err
			}
			e.publish(EventRevoked, row.ID, hardwareID)

		case license.NodeLocked:
			row.HardwareID = nil
			row.Status = store.StatusRevoked
			if err := e.store.UpdateLicense(ctx, row); err != nil {
				return err
			}
			e.publish(EventRevoked, row.ID, hardwareID)

		default: // Standard, Trial, Subscription
			row.Status = store.StatusRevoked
			if err := e.store.UpdateLicense(ctx, row); err != nil {
				return err
			}
			e.publish(EventRevoked, row.ID, hardwareID)
		}

		e.invalidateCache(ctx, licenseKey)
		if result.Status == "" {
			result = DeactivationResult{Status: ValidationValid}
		}
		return nil
	})
	if err != nil {
		return DeactivationResult{Status: ValidationInvalid, Err: err}
	}
	return result
}

// DisconnectConcurrent is Revoke restricted to Concurrent licenses.
func (e *Engine) DisconnectConcurrent(ctx context.Context, licenseKey, hardwareID string) DeactivationResult {
	row, err := e.store.FindLicenseByKey(ctx, licenseKey)
	if err != nil {
		return DeactivationResult{Status: ValidationNotFound, Err: errs.ErrNotFound}
	}
	if row.Type != license.Concurrent {
		return DeactivationResult{Status: ValidationInvalid, Err: errs.ErrInvalidLicenseFormat}
	}
	return e.Revoke(ctx, licenseKey, hardwareID)
}
