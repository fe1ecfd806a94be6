package activation

import (
	"context"
	"time"

	"github.com/clk-66/licensecore/internal/errs"
	"github.com/clk-66/licensecore/internal/license"
	"github.com/clk-66/licensecore/internal/store"
)

// ValidationStatus is the outcome of Validate.
type ValidationStatus string

const (
	ValidationValid   ValidationStatus = "Valid"
	ValidationInvalid ValidationStatus = "Invalid"
	ValidationExpired ValidationStatus = "Expired"
	ValidationRevoked ValidationStatus = "Revoked"
	ValidationNotFound ValidationStatus = "NotFound"
)

// ValidationResult is what Validate returns.
type ValidationResult struct {
	Status ValidationStatus
	Row    *store.LicenseRow
	Err    error
}

// ValidateParams mirror rules.Params for the cross-checks §4.7 names
// between an optional client-submitted envelope and the persisted row.
type ValidateParams struct {
	UserName   string
	HardwareId string
}

// Validate fetches the license by key, applies expiry/status transitions,
// and — if an envelope is supplied — cross-checks the decoded variant
// against the persisted row (§4.7).
func (e *Engine) Validate(ctx context.Context, licenseKey string, envelopeBytes []byte, params ValidateParams) ValidationResult {
	row, err := e.lookupLicense(ctx, licenseKey)
	if err != nil {
		if err == errs.ErrNotFound {
			return ValidationResult{Status: ValidationNotFound, Err: errs.ErrNotFound}
		}
		return ValidationResult{Status: ValidationInvalid, Err: err}
	}

	now := time.Now().UTC()

	if row.ExpirationDate != nil && now.After(*row.ExpirationDate) || row.Status == store.StatusExpired {
		if row.Status != store.StatusExpired {
			row.Status = store.StatusExpired
			if err := e.store.UpdateLicense(ctx, row); err != nil {
				return ValidationResult{Status: ValidationInvalid, Err: err}
			}
			e.invalidateCache(ctx, licenseKey)
		}
		return ValidationResult{Status: ValidationExpired, Row: row, Err: errs.ErrExpiredLicense}
	}

	if row.Status == store.StatusRevoked {
		return ValidationResult{Status: ValidationRevoked, Row: row, Err: errs.ErrRevoked}
	}

	if len(envelopeBytes) > 0 {
		decoded, err := e.codec.Decode(envelopeBytes, e.pub)
		if err != nil {
			return ValidationResult{Status: ValidationInvalid, Row: row, Err: err}
		}
		if err := crossCheck(row, decoded, params); err != nil {
			return ValidationResult{Status: ValidationInvalid, Row: row, Err: err}
		}
	}

	return ValidationResult{Status: ValidationValid, Row: row}
}

// crossCheck implements §4.7's per-variant checks between a decoded
// client-submitted envelope and the server's persisted row.
func crossCheck(row *store.LicenseRow, decoded *license.License, params ValidateParams) error {
	if decoded.Type != row.Type || decoded.LicenseID != row.ID || !decoded.IssuedOn.Equal(row.IssuedOn) {
		return errs.ErrInvalidLicenseFormat
	}

	switch row.Type {
	case license.NodeLocked:
		want := ""
		if row.HardwareID != nil {
			want = *row.HardwareID
		}
		if params.HardwareId != want {
			return errs.ErrHardwareMismatch
		}
	case license.Standard:
		if decoded.LicenseKey != row.Key || decoded.UserName != row.IssuedTo {
			return errs.ErrUserMismatch
		}
	case license.Subscription:
		if row.SubscriptionExpiryDate == nil || decoded.ExpirationDate == nil ||
			decoded.ExpirationDate.After(*row.SubscriptionExpiryDate) {
			return errs.ErrBadRequest
		}
	case license.Floating, license.Concurrent:
		max := 0
		if row.MaxActiveUsersCount != nil {
			max = *row.MaxActiveUsersCount
		}
		if decoded.MaxActiveUsersCount != max || decoded.UserName != row.IssuedTo {
			return errs.ErrUserMismatch
		}
	}
	return nil
}

// lookupLicense checks the optional read-through cache before the store.
func (e *Engine) lookupLicense(ctx context.Context, key string) (*store.LicenseRow, error) {
	if e.cache != nil {
		if row, ok := e.cache.Get(ctx, key); ok {
			return row, nil
		}
	}
	row, err := e.store.FindLicenseByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Set(ctx, key, row)
	}
	return row, nil
}

func (e *Engine) invalidateCache(ctx context.Context, key string) {
	if e.cache != nil {
		e.cache.Invalidate(ctx, key)
	}
}
