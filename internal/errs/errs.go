// Package errs defines the error kinds shared across the licensing core, so
// that every component surfaces the same sentinel for the same condition
// instead of each package minting its own.
package errs

import "errors"

var (
	// ErrInvalidLicenseSignature means the envelope signature or ciphertext
	// integrity check failed — the envelope was tampered with or signed by
	// a different keypair.
	ErrInvalidLicenseSignature = errors.New("license: invalid signature")

	// ErrInvalidLicenseFormat means the envelope framing, serialized payload,
	// or variant discriminator could not be parsed.
	ErrInvalidLicenseFormat = errors.New("license: invalid format")

	// ErrExpiredLicense means a time-based expiry or trial period has elapsed.
	ErrExpiredLicense = errors.New("license: expired")

	// ErrHardwareMismatch means a NodeLocked hardware id did not match.
	ErrHardwareMismatch = errors.New("license: hardware mismatch")

	// ErrUserMismatch means a Standard user name or license key did not match.
	ErrUserMismatch = errors.New("license: user mismatch")

	// ErrMaximumActivationsReached means a Concurrent/Floating seat cap was hit.
	ErrMaximumActivationsReached = errors.New("license: maximum activations reached")

	// ErrFeatureNotLicensed is returned by feature.Manager.Require.
	ErrFeatureNotLicensed = errors.New("license: feature not licensed")

	// ErrNotFound means a license or activation is not present in the store.
	ErrNotFound = errors.New("license: not found")

	// ErrRevoked means the license has been revoked and the operation is
	// terminal for its variant.
	ErrRevoked = errors.New("license: revoked")

	// ErrBadRequest means a precondition of generate/renew was violated.
	ErrBadRequest = errors.New("license: bad request")

	// ErrKeyManagement means the secrets file was missing, corrupt, or could
	// not be decrypted with the supplied passphrase.
	ErrKeyManagement = errors.New("license: key management failure")

	// ErrHeartbeat means an online heartbeat/disconnect/validate RPC failed.
	ErrHeartbeat = errors.New("license: heartbeat rpc failed")
)
