package activation

import (
	"context"
	"fmt"
	"time"

	"github.com/clk-66/licensecore/internal/errs"
	"github.com/clk-66/licensecore/internal/license"
	"github.com/clk-66/licensecore/internal/store"
)

// RenewalResult is what Renew returns.
type RenewalResult struct {
	Status   ValidationStatus
	Envelope []byte
	Err      error
}

// Renew is only valid for Subscription licenses (§4.7). It rejects Revoked
// licenses and any new_expiration that does not strictly exceed both now
// and the current subscription_expiry_date (invariant 11, §8).
func (e *Engine) Renew(ctx context.Context, licenseKey string, newExpiration time.Time) RenewalResult {
	row, err := e.store.FindLicenseByKey(ctx, licenseKey)
	if err != nil {
		return RenewalResult{Status: ValidationNotFound, Err: errs.ErrNotFound}
	}

	var result RenewalResult
	err = e.store.WithLicenseLock(ctx, row.ID, func(ctx context.Context) error {
		row, err := e.store.FindLicenseByKey(ctx, licenseKey)
		if err != nil {
			result = RenewalResult{Status: ValidationNotFound, Err: errs.ErrNotFound}
			return nil
		}

		if row.Type != license.Subscription {
			result = RenewalResult{Status: ValidationInvalid, Err: fmt.Errorf("%w: renew only applies to Subscription licenses", errs.ErrBadRequest)}
			return nil
		}
		if row.Status == store.StatusRevoked {
			result = RenewalResult{Status: ValidationRevoked, Err: errs.ErrRevoked}
			return nil
		}

		now := time.Now().UTC()
		current := time.Time{}
		if row.SubscriptionExpiryDate != nil {
			current = *row.SubscriptionExpiryDate
		}
		floor := now
		if current.After(floor) {
			floor = current
		}
		if !newExpiration.After(floor) {
			result = RenewalResult{Status: ValidationInvalid, Err: fmt.Errorf("%w: new_expiration must exceed max(now, current subscription_expiry_date)", errs.ErrBadRequest)}
			return nil
		}

		row.SubscriptionExpiryDate = &newExpiration
		row.ExpirationDate = &newExpiration
		row.Status = store.StatusActive
		if err := e.store.UpdateLicense(ctx, row); err != nil {
			return err
		}
		e.invalidateCache(ctx, licenseKey)

		envelope, err := e.codec.Encode(row.ToLicense(), e.priv)
		if err != nil {
			return err
		}
		e.publish(EventRenewed, row.ID, "")
		result = RenewalResult{Status: ValidationValid, Envelope: envelope}
		return nil
	})
	if err != nil {
		return RenewalResult{Status: ValidationInvalid, Err: err}
	}
	return result
}
