// Package store defines C9: the abstract persistence port the activation
// engine (C8) runs under. §1 treats the relational store as an external
// collaborator — any ordered, transactional key-value or relational store
// satisfying this interface suffices. memstore and sqlitestore are the two
// concrete implementations in this repo.
package store

import (
	"context"
	"time"

	"github.com/clk-66/licensecore/internal/license"
)

// LicenseStatus is the server-side License row status (§3).
type LicenseStatus string

const (
	StatusActive   LicenseStatus = "Active"
	StatusExpired  LicenseStatus = "Expired"
	StatusRevoked  LicenseStatus = "Revoked"
)

// LicenseRow is the server-side persisted License entity (§3).
type LicenseRow struct {
	ID                     string
	Key                    string
	Type                   license.Type
	IssuedOn               time.Time
	ExpirationDate         *time.Time
	Issuer                 string
	Status                 LicenseStatus
	IssuedTo               string // UserName, for Standard/Subscription/Floating/Concurrent
	MaxActiveUsersCount    *int
	ActiveUsersCount       int
	HardwareID             *string
	SubscriptionStartDate  *time.Time
	SubscriptionExpiryDate *time.Time
	TrialPeriod            time.Duration
	ProductID              string
	Features               map[string]license.Feature
}

// ToLicense rebuilds the client-facing *license.License shape this row
// represents, for re-encoding into a fresh envelope (generate/renew).
func (row *LicenseRow) ToLicense() *license.License {
	l := &license.License{
		LicenseID:      row.ID,
		LicenseKey:     row.Key,
		Type:           row.Type,
		IssuedOn:       row.IssuedOn,
		ExpirationDate: row.ExpirationDate,
		Issuer:         row.Issuer,
		Features:       row.Features,
	}
	if l.Features == nil {
		l.Features = map[string]license.Feature{}
	}
	l.UserName = row.IssuedTo
	if row.HardwareID != nil {
		l.HardwareID = *row.HardwareID
	}
	if row.MaxActiveUsersCount != nil {
		l.MaxActiveUsersCount = *row.MaxActiveUsersCount
	}
	if row.SubscriptionStartDate != nil {
		l.SubscriptionStartDate = *row.SubscriptionStartDate
		if row.SubscriptionExpiryDate != nil {
			l.SubscriptionDuration = row.SubscriptionExpiryDate.Sub(*row.SubscriptionStartDate)
		}
	}
	l.TrialPeriod = row.TrialPeriod
	return l
}

// ActivationRow is the server-side persisted Activation entity (§3).
type ActivationRow struct {
	ID              string
	LicenseID       string
	MachineID       string
	ActivatedAt     time.Time
	LastHeartbeatAt time.Time
}

// Product and Feature are the catalogue entities §3 references for
// Generate's precondition checks.
type Product struct {
	ID   string
	Name string
}

type Feature struct {
	ID   string
	Name string
}

// Store is the persistence port (§6.3). Every method that mutates a
// License or Activation row is expected to be called from within
// WithLicenseLock so that concurrent activate/revoke/renew/reclaim calls on
// the same license serialize correctly (§5).
type Store interface {
	ProductExists(ctx context.Context, id string) (bool, error)
	FeaturesExistAll(ctx context.Context, ids []string) (bool, error)

	FindLicenseByKey(ctx context.Context, key string) (*LicenseRow, error)
	FindLicenseByID(ctx context.Context, id string) (*LicenseRow, error)
	InsertLicense(ctx context.Context, row *LicenseRow) error
	UpdateLicense(ctx context.Context, row *LicenseRow) error

	CountActivationsByLicense(ctx context.Context, licenseID string) (int, error)
	FindActivation(ctx context.Context, licenseID, machineID string) (*ActivationRow, error)
	InsertActivation(ctx context.Context, row *ActivationRow) error
	RemoveActivation(ctx context.Context, row *ActivationRow) error
	SelectStaleActivations(ctx context.Context, threshold time.Time) ([]ActivationRow, error)

	UpsertLicenseFeature(ctx context.Context, productID, featureID, licenseID string, enabled bool) error

	// WithLicenseLock runs fn holding a row-level lock on the License
	// identified by licenseID (a named mutex, or a transactional row lock
	// for a SQL-backed store). Implementations MUST serialize overlapping
	// calls for the same licenseID.
	WithLicenseLock(ctx context.Context, licenseID string, fn func(ctx context.Context) error) error
}
