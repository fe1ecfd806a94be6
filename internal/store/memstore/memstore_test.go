package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clk-66/licensecore/internal/errs"
	"github.com/clk-66/licensecore/internal/license"
	"github.com/clk-66/licensecore/internal/store"
	"github.com/clk-66/licensecore/internal/store/memstore"
)

func sampleRow() *store.LicenseRow {
	max := 3
	return &store.LicenseRow{
		ID:                  "lic-1",
		Key:                 "SD2D-35G9-1502-X3DG-16VI-ELN2",
		Type:                license.Floating,
		ProductID:           "acme-suite",
		Issuer:              "Acme",
		IssuedTo:            "Floating Co",
		IssuedOn:            time.Now().UTC(),
		Status:              store.StatusActive,
		MaxActiveUsersCount: &max,
	}
}

func TestSeedAndProductLookup(t *testing.T) {
	st := memstore.New()
	st.SeedProduct("acme-suite")
	ctx := context.Background()

	ok, err := st.ProductExists(ctx, "acme-suite")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.ProductExists(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFeaturesExistAllRequiresEvery(t *testing.T) {
	st := memstore.New()
	st.SeedFeature("reports")
	ctx := context.Background()

	ok, err := st.FeaturesExistAll(ctx, []string{"reports"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.FeaturesExistAll(ctx, []string{"reports", "missing"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInsertFindUpdateLicense(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()

	row := sampleRow()
	require.NoError(t, st.InsertLicense(ctx, row))

	got, err := st.FindLicenseByKey(ctx, row.Key)
	require.NoError(t, err)
	assert.Equal(t, row.ID, got.ID)

	got.Status = store.StatusRevoked
	require.NoError(t, st.UpdateLicense(ctx, got))

	updated, err := st.FindLicenseByID(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusRevoked, updated.Status)
}

func TestUpdateUnknownLicenseFails(t *testing.T) {
	st := memstore.New()
	err := st.UpdateLicense(context.Background(), sampleRow())
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestActivationRoundTrip(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	row := sampleRow()
	require.NoError(t, st.InsertLicense(ctx, row))

	now := time.Now().UTC()
	require.NoError(t, st.InsertActivation(ctx, &store.ActivationRow{
		ID: "act-1", LicenseID: row.ID, MachineID: "hw-1", ActivatedAt: now, LastHeartbeatAt: now,
	}))

	n, err := st.CountActivationsByLicense(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stale, err := st.SelectStaleActivations(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "hw-1", stale[0].MachineID)

	act, err := st.FindActivation(ctx, row.ID, "hw-1")
	require.NoError(t, err)
	require.NoError(t, st.RemoveActivation(ctx, act))

	_, err = st.FindActivation(ctx, row.ID, "hw-1")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestWithLicenseLockIsExclusive(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	row := sampleRow()
	require.NoError(t, st.InsertLicense(ctx, row))

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = st.WithLicenseLock(ctx, row.ID, func(ctx context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	done := make(chan struct{})
	go func() {
		_ = st.WithLicenseLock(ctx, row.ID, func(ctx context.Context) error { return nil })
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second WithLicenseLock call proceeded while the first still held the lock")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-done
}
