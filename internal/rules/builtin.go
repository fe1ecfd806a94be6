package rules

import (
	"github.com/clk-66/licensecore/internal/errs"
	"github.com/clk-66/licensecore/internal/license"
)

// standardRule implements §4.5's Standard checks: unexpired, and
// UserName/LicenseKey match params.
type standardRule struct{}

func (standardRule) Validate(l *license.License, p Params) Result {
	if l.ExpirationDate != nil && !l.ExpirationDate.After(p.now()) {
		return fail(Expired, l, errs.ErrExpiredLicense)
	}
	if l.UserName != p.UserName || l.LicenseKey != p.LicenseKey {
		return fail(Invalid, l, errs.ErrUserMismatch)
	}
	return ok(l)
}

// trialRule implements §4.5's Trial checks.
type trialRule struct{}

func (trialRule) Validate(l *license.License, p Params) Result {
	now := p.now()
	if l.ExpirationDate == nil || !l.ExpirationDate.After(now) {
		return fail(Expired, l, errs.ErrExpiredLicense)
	}
	if l.TrialPeriod <= 0 {
		return fail(Invalid, l, errs.ErrBadRequest)
	}
	if !l.IssuedOn.Add(l.TrialPeriod).After(now) {
		return fail(Expired, l, errs.ErrExpiredLicense)
	}
	return ok(l)
}

// nodeLockedRule implements §4.5's NodeLocked checks.
type nodeLockedRule struct {
	hw HardwareValidator
}

func (r nodeLockedRule) Validate(l *license.License, p Params) Result {
	if l.ExpirationDate != nil && !l.ExpirationDate.After(p.now()) {
		return fail(Expired, l, errs.ErrExpiredLicense)
	}

	candidate := p.HardwareId
	if candidate == "" {
		candidate = l.HardwareID
	}

	if r.hw == nil {
		return fail(Invalid, l, errs.ErrHardwareMismatch)
	}
	matched, err := r.hw.Validate(candidate)
	if err != nil {
		return fail(Invalid, l, err)
	}
	if !matched {
		return fail(Invalid, l, errs.ErrHardwareMismatch)
	}
	return ok(l)
}

// subscriptionRule implements §4.5's Subscription checks.
type subscriptionRule struct{}

func (subscriptionRule) Validate(l *license.License, p Params) Result {
	now := p.now()
	end := l.SubscriptionStartDate.Add(l.SubscriptionDuration)
	if !end.After(now) {
		return fail(Expired, l, errs.ErrExpiredLicense)
	}
	if l.ExpirationDate == nil || !l.ExpirationDate.Equal(end) {
		return fail(Invalid, l, errs.ErrBadRequest)
	}
	return ok(l)
}

// floatingRule implements §4.5's Floating/Concurrent checks: identity
// fields match. Seat-cap enforcement itself lives server-side in C8, since
// only the server knows the current activation count.
type floatingRule struct{}

func (floatingRule) Validate(l *license.License, p Params) Result {
	if l.UserName != p.UserName || l.MaxActiveUsersCount != p.MaxActiveUsersCount {
		return fail(Invalid, l, errs.ErrUserMismatch)
	}
	return ok(l)
}
