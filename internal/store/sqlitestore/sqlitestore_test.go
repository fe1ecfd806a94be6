package sqlitestore_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clk-66/licensecore/internal/db"
	"github.com/clk-66/licensecore/internal/errs"
	"github.com/clk-66/licensecore/internal/license"
	"github.com/clk-66/licensecore/internal/store"
	"github.com/clk-66/licensecore/internal/store/sqlitestore"
)

func newTestStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	sqlDB, err := db.Open(filepath.Join(t.TempDir(), "licenses.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	_, err = sqlDB.Exec(`INSERT INTO products (id, name) VALUES ('acme-suite', 'Acme Suite')`)
	require.NoError(t, err)
	_, err = sqlDB.Exec(`INSERT INTO features (id, name) VALUES ('reports', 'Reports')`)
	require.NoError(t, err)

	return sqlitestore.New(sqlDB)
}

func sampleRow() *store.LicenseRow {
	return &store.LicenseRow{
		ID:        "lic-1",
		Key:       "SD2D-35G9-1502-X3DG-16VI-ELN2",
		Type:      license.Standard,
		ProductID: "acme-suite",
		Issuer:    "Acme",
		IssuedTo:  "John Doe",
		IssuedOn:  time.Now().UTC().Truncate(time.Second),
		Status:    store.StatusActive,
		Features: map[string]license.Feature{
			"reports": license.BoolFeature(true),
		},
	}
}

func TestInsertAndFindLicenseRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	row := sampleRow()
	require.NoError(t, st.InsertLicense(ctx, row))

	byKey, err := st.FindLicenseByKey(ctx, row.Key)
	require.NoError(t, err)
	assert.Equal(t, row.ID, byKey.ID)
	assert.Equal(t, row.Issuer, byKey.Issuer)
	assert.True(t, byKey.Features["reports"].Enabled())

	byID, err := st.FindLicenseByID(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, row.Key, byID.Key)
}

func TestFindLicenseByKeyNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.FindLicenseByKey(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUpdateLicensePersistsFeatureChanges(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	row := sampleRow()
	require.NoError(t, st.InsertLicense(ctx, row))

	row.Features["reports"] = license.BoolFeature(false)
	row.Status = store.StatusRevoked
	require.NoError(t, st.UpdateLicense(ctx, row))

	got, err := st.FindLicenseByKey(ctx, row.Key)
	require.NoError(t, err)
	assert.Equal(t, store.StatusRevoked, got.Status)
	assert.False(t, got.Features["reports"].Enabled())
}

func TestActivationLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	row := sampleRow()
	row.Type = license.Floating
	max := 2
	row.MaxActiveUsersCount = &max
	require.NoError(t, st.InsertLicense(ctx, row))

	now := time.Now().UTC()
	require.NoError(t, st.InsertActivation(ctx, &store.ActivationRow{
		ID: "act-1", LicenseID: row.ID, MachineID: "hw-1", ActivatedAt: now, LastHeartbeatAt: now,
	}))

	n, err := st.CountActivationsByLicense(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	act, err := st.FindActivation(ctx, row.ID, "hw-1")
	require.NoError(t, err)

	stale, err := st.SelectStaleActivations(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)

	require.NoError(t, st.RemoveActivation(ctx, act))
	n, err = st.CountActivationsByLicense(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWithLicenseLockSerializesConcurrentCallers(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	row := sampleRow()
	require.NoError(t, st.InsertLicense(ctx, row))

	var wg sync.WaitGroup
	var mu sync.Mutex
	order := make([]int, 0, 20)
	inside, maxInside := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = st.WithLicenseLock(ctx, row.ID, func(ctx context.Context) error {
				mu.Lock()
				order = append(order, i)
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}(i)
	}
	wg.Wait()

	assert.Len(t, order, 20)
	assert.Equal(t, 1, maxInside, "callers holding the lock at the same time")
}
