// Package sqlitestore is the SQLite-backed store.Store (C9), grounded on
// internal/db's WAL-mode opener. License mutations (activate/revoke/renew)
// serialize per license id via WithLicenseLock; see its doc comment for why
// that's a named mutex rather than a row-owning transaction here.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/clk-66/licensecore/internal/errs"
	"github.com/clk-66/licensecore/internal/license"
	"github.com/clk-66/licensecore/internal/store"
)

// Store is a SQLite implementation of store.Store.
type Store struct {
	db *sql.DB

	mu           sync.Mutex
	licenseLocks map[string]*sync.Mutex
}

// New wraps an already-opened, already-migrated *sql.DB (see internal/db.Open).
func New(db *sql.DB) *Store {
	return &Store{db: db, licenseLocks: map[string]*sync.Mutex{}}
}

func (s *Store) ProductExists(ctx context.Context, id string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM products WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

func (s *Store) FeaturesExistAll(ctx context.Context, ids []string) (bool, error) {
	for _, id := range ids {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM features WHERE id = ?`, id).Scan(&exists); err != nil {
			return false, err
		}
		if exists == 0 {
			return false, nil
		}
	}
	return true, nil
}

const licenseColumns = `id, key, type, product_id, issuer, issued_to, issued_on, expiration_date,
	status, max_active_users_count, active_users_count, hardware_id,
	subscription_start_date, subscription_expiry_date, trial_period_ns`

func scanLicenseRow(scanner interface {
	Scan(dest ...any) error
}) (*store.LicenseRow, error) {
	row := &store.LicenseRow{}
	var (
		expirationDate, subStart, subExpiry sql.NullTime
		hardwareID                          sql.NullString
		maxActive                           sql.NullInt64
		trialNS                             int64
	)
	err := scanner.Scan(
		&row.ID, &row.Key, &row.Type, &row.ProductID, &row.Issuer, &row.IssuedTo, &row.IssuedOn, &expirationDate,
		&row.Status, &maxActive, &row.ActiveUsersCount, &hardwareID,
		&subStart, &subExpiry, &trialNS,
	)
	if err != nil {
		return nil, err
	}
	if expirationDate.Valid {
		row.ExpirationDate = &expirationDate.Time
	}
	if hardwareID.Valid {
		row.HardwareID = &hardwareID.String
	}
	if maxActive.Valid {
		max := int(maxActive.Int64)
		row.MaxActiveUsersCount = &max
	}
	if subStart.Valid {
		row.SubscriptionStartDate = &subStart.Time
	}
	if subExpiry.Valid {
		row.SubscriptionExpiryDate = &subExpiry.Time
	}
	row.TrialPeriod = time.Duration(trialNS)
	row.Features = map[string]license.Feature{}
	return row, nil
}

func (s *Store) FindLicenseByKey(ctx context.Context, key string) (*store.LicenseRow, error) {
	row, err := scanLicenseRow(s.db.QueryRowContext(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE key = ?`, key))
	if err == sql.ErrNoRows {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row, s.loadFeatures(ctx, row)
}

func (s *Store) FindLicenseByID(ctx context.Context, id string) (*store.LicenseRow, error) {
	row, err := scanLicenseRow(s.db.QueryRowContext(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row, s.loadFeatures(ctx, row)
}

func (s *Store) loadFeatures(ctx context.Context, row *store.LicenseRow) error {
	rows, err := s.db.QueryContext(ctx, `SELECT feature_id, enabled, data FROM license_features WHERE license_id = ?`, row.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var featureID string
		var enabled bool
		var data []byte
		if err := rows.Scan(&featureID, &enabled, &data); err != nil {
			return err
		}
		if !enabled || len(data) == 0 {
			continue
		}
		var f license.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("decode feature %s for license %s: %w", featureID, row.ID, err)
		}
		row.Features[featureID] = f
	}
	return rows.Err()
}

func (s *Store) InsertLicense(ctx context.Context, row *store.LicenseRow) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO licenses (`+licenseColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		row.ID, row.Key, row.Type, row.ProductID, row.Issuer, row.IssuedTo, row.IssuedOn, row.ExpirationDate,
		row.Status, row.MaxActiveUsersCount, row.ActiveUsersCount, row.HardwareID,
		row.SubscriptionStartDate, row.SubscriptionExpiryDate, int64(row.TrialPeriod),
	)
	if err != nil {
		return err
	}
	return s.writeFeatures(ctx, row.ID, row.Features)
}

// writeFeatures replaces a license's feature bindings with the contents of
// features, serializing each license.Feature's own JSON wire form into the
// data column so loadFeatures can reconstruct the exact typed value later.
func (s *Store) writeFeatures(ctx context.Context, licenseID string, features map[string]license.Feature) error {
	for featureID, f := range features {
		data, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("encode feature %s: %w", featureID, err)
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO license_features (license_id, feature_id, enabled, data) VALUES (?, ?, 1, ?)
			 ON CONFLICT(license_id, feature_id) DO UPDATE SET enabled = 1, data = excluded.data`,
			licenseID, featureID, data,
		)
		if err != nil {
			return fmt.Errorf("upsert feature %s: %w", featureID, err)
		}
	}
	return nil
}

func (s *Store) UpdateLicense(ctx context.Context, row *store.LicenseRow) error {
	res, err := s.db.ExecContext(ctx, `UPDATE licenses SET
		key = ?, type = ?, product_id = ?, issuer = ?, issued_to = ?, issued_on = ?, expiration_date = ?,
		status = ?, max_active_users_count = ?, active_users_count = ?, hardware_id = ?,
		subscription_start_date = ?, subscription_expiry_date = ?, trial_period_ns = ?
		WHERE id = ?`,
		row.Key, row.Type, row.ProductID, row.Issuer, row.IssuedTo, row.IssuedOn, row.ExpirationDate,
		row.Status, row.MaxActiveUsersCount, row.ActiveUsersCount, row.HardwareID,
		row.SubscriptionStartDate, row.SubscriptionExpiryDate, int64(row.TrialPeriod),
		row.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return s.writeFeatures(ctx, row.ID, row.Features)
}

func (s *Store) CountActivationsByLicense(ctx context.Context, licenseID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM activations WHERE license_id = ?`, licenseID).Scan(&n)
	return n, err
}

func (s *Store) FindActivation(ctx context.Context, licenseID, machineID string) (*store.ActivationRow, error) {
	row := &store.ActivationRow{LicenseID: licenseID, MachineID: machineID}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, activated_at, last_heartbeat_at FROM activations WHERE license_id = ? AND machine_id = ?`,
		licenseID, machineID,
	).Scan(&row.ID, &row.ActivatedAt, &row.LastHeartbeatAt)
	if err == sql.ErrNoRows {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (s *Store) InsertActivation(ctx context.Context, row *store.ActivationRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activations (id, license_id, machine_id, activated_at, last_heartbeat_at) VALUES (?,?,?,?,?)
		 ON CONFLICT(license_id, machine_id) DO UPDATE SET last_heartbeat_at = excluded.last_heartbeat_at`,
		row.ID, row.LicenseID, row.MachineID, row.ActivatedAt, row.LastHeartbeatAt,
	)
	return err
}

func (s *Store) RemoveActivation(ctx context.Context, row *store.ActivationRow) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM activations WHERE id = ?`, row.ID)
	return err
}

func (s *Store) SelectStaleActivations(ctx context.Context, threshold time.Time) ([]store.ActivationRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, license_id, machine_id, activated_at, last_heartbeat_at FROM activations WHERE last_heartbeat_at < ? ORDER BY id`,
		threshold,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ActivationRow
	for rows.Next() {
		var a store.ActivationRow
		if err := rows.Scan(&a.ID, &a.LicenseID, &a.MachineID, &a.ActivatedAt, &a.LastHeartbeatAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertLicenseFeature confirms the license exists. The typed feature
// value and its enabled bit are written by writeFeatures from
// LicenseRow.Features during InsertLicense/UpdateLicense instead — a bare
// boolean here can't carry a Feature's payload, mirroring memstore's
// division of labor.
func (s *Store) UpsertLicenseFeature(ctx context.Context, productID, featureID, licenseID string, enabled bool) error {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM licenses WHERE id = ?`, licenseID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return errs.ErrNotFound
	}
	_, _, _ = productID, featureID, enabled
	return nil
}

// WithLicenseLock serializes concurrent mutations on the same license id
// with an in-process named mutex, the alternative to a transactional row
// lock allowed for a persistence port. A real BEGIN IMMEDIATE
// transaction can't be used here without giving fn its own *sql.Tx to run
// statements on: internal/db.Open caps the pool at a single connection, so
// holding that connection in an open transaction while fn issues further
// queries through s.db would deadlock the pool against itself. A named
// mutex gets the same serialization guarantee for the single-process case
// this store is meant for.
func (s *Store) WithLicenseLock(ctx context.Context, licenseID string, fn func(ctx context.Context) error) error {
	lock := s.licenseLock(licenseID)
	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

func (s *Store) licenseLock(licenseID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.licenseLocks[licenseID]
	if !ok {
		lock = &sync.Mutex{}
		s.licenseLocks[licenseID] = lock
	}
	return lock
}
