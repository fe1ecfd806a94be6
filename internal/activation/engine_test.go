package activation_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clk-66/licensecore/internal/activation"
	"github.com/clk-66/licensecore/internal/codec"
	"github.com/clk-66/licensecore/internal/errs"
	"github.com/clk-66/licensecore/internal/license"
	"github.com/clk-66/licensecore/internal/store"
	"github.com/clk-66/licensecore/internal/store/memstore"
)

type testHarness struct {
	eng  *activation.Engine
	st   *memstore.Store
	pub  *rsa.PublicKey
	code *codec.Codec
}

// generate mints a license through the engine and decodes the returned
// envelope to recover the server-assigned license key, which Generate does
// not echo back directly (§6.3 only names lookup by key/id).
func (h *testHarness) generate(t *testing.T, req activation.GenerateRequest) (*license.License, *store.LicenseRow) {
	t.Helper()
	env, err := h.eng.Generate(context.Background(), req)
	require.NoError(t, err)
	l, err := h.code.Decode(env, h.pub)
	require.NoError(t, err)
	row, err := h.st.FindLicenseByKey(context.Background(), l.LicenseKey)
	require.NoError(t, err)
	return l, row
}

func newTestEngine(t *testing.T, opts ...activation.Option) *testHarness {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	st := memstore.New()
	st.SeedProduct("acme-suite")

	base := []activation.Option{
		activation.WithReclaimTimeout(50 * time.Millisecond),
		activation.WithHeartbeatTTL(10 * time.Millisecond),
		activation.WithReclaimInterval(time.Hour), // tests drive ReclaimOnce directly
	}
	eng, err := activation.NewEngine(st, priv, &priv.PublicKey, append(base, opts...)...)
	require.NoError(t, err)
	return &testHarness{eng: eng, st: st, pub: &priv.PublicKey, code: codec.New(nil)}
}

func TestGenerateAndValidateStandard(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	env, err := h.eng.Generate(ctx, activation.GenerateRequest{
		ProductID: "acme-suite",
		Type:      license.Standard,
		Issuer:    "Acme",
		IssuedTo:  "John Doe",
	})
	require.NoError(t, err)
	require.NotEmpty(t, env)

	l, err := h.code.Decode(env, h.pub)
	require.NoError(t, err)
	res := h.eng.Validate(ctx, l.LicenseKey, env, activation.ValidateParams{})
	assert.Equal(t, activation.ValidationValid, res.Status)
}

func TestGenerateRejectsUnknownProduct(t *testing.T) {
	h := newTestEngine(t)
	_, err := h.eng.Generate(context.Background(), activation.GenerateRequest{
		ProductID: "does-not-exist",
		Type:      license.Standard,
	})
	require.ErrorIs(t, err, errs.ErrBadRequest)
}

func TestActivateNodeLockedBindsHardware(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	_, row := h.generate(t, activation.GenerateRequest{
		ProductID:  "acme-suite",
		Type:       license.NodeLocked,
		Issuer:     "Acme",
		HardwareID: "",
	})

	result := h.eng.Activate(ctx, row.Key, "hw-123")
	require.Equal(t, activation.ValidationValid, result.Status)
	require.NotNil(t, result.Row.HardwareID)
	assert.Equal(t, "hw-123", *result.Row.HardwareID)

	matched := h.eng.Validate(ctx, row.Key, nil, activation.ValidateParams{HardwareId: "hw-123"})
	assert.Equal(t, activation.ValidationValid, matched.Status)
}

func TestSeatCapNeverExceededUnderConcurrency(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	const seats = 5
	const callers = 50

	_, row := h.generate(t, activation.GenerateRequest{
		ProductID:           "acme-suite",
		Type:                license.Floating,
		Issuer:              "Acme",
		IssuedTo:             "Floating Co",
		MaxActiveUsersCount: seats,
		ExpirationDate:      futurePtr(),
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := h.eng.Activate(ctx, row.Key, machineID(i))
			if res.Status == activation.ValidationValid {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, seats, accepted)

	final, err := h.st.FindLicenseByKey(ctx, row.Key)
	require.NoError(t, err)
	assert.Equal(t, seats, final.ActiveUsersCount)

	n, err := h.st.CountActivationsByLicense(ctx, final.ID)
	require.NoError(t, err)
	assert.Equal(t, seats, n)
}

func TestReclaimReleasesStaleSeat(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	_, row := h.generate(t, activation.GenerateRequest{
		ProductID:           "acme-suite",
		Type:                license.Concurrent,
		Issuer:              "Acme",
		IssuedTo:             "Floating Co",
		MaxActiveUsersCount: 1,
		ExpirationDate:      futurePtr(),
	})

	res := h.eng.Activate(ctx, row.Key, "hw-a")
	require.Equal(t, activation.ValidationValid, res.Status)

	blocked := h.eng.Activate(ctx, row.Key, "hw-b")
	require.Equal(t, activation.ValidationMaximumActivationsReached, blocked.Status)

	time.Sleep(80 * time.Millisecond) // exceed the 50ms reclaim timeout
	h.eng.ReclaimOnce(ctx)

	after, err := h.st.FindLicenseByKey(ctx, row.Key)
	require.NoError(t, err)
	assert.Equal(t, 0, after.ActiveUsersCount)

	retry := h.eng.Activate(ctx, row.Key, "hw-b")
	assert.Equal(t, activation.ValidationValid, retry.Status)
}

func TestRenewRejectsNonMonotonicExpiration(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	start := time.Now().UTC()
	_, row := h.generate(t, activation.GenerateRequest{
		ProductID:            "acme-suite",
		Type:                 license.Subscription,
		Issuer:               "Acme",
		IssuedTo:              "John Doe",
		SubscriptionStart:    start,
		SubscriptionDuration: time.Hour,
	})

	earlier := row.SubscriptionExpiryDate.Add(-time.Minute)
	res := h.eng.Renew(ctx, row.Key, earlier)
	assert.Equal(t, activation.ValidationInvalid, res.Status)

	later := row.SubscriptionExpiryDate.Add(time.Hour)
	ok := h.eng.Renew(ctx, row.Key, later)
	require.Equal(t, activation.ValidationValid, ok.Status)
	require.NotEmpty(t, ok.Envelope)
}

func TestRevokeNodeLockedClearsHardwareBinding(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	_, row := h.generate(t, activation.GenerateRequest{
		ProductID: "acme-suite",
		Type:      license.NodeLocked,
		Issuer:    "Acme",
	})

	activated := h.eng.Activate(ctx, row.Key, "hw-1")
	require.Equal(t, activation.ValidationValid, activated.Status)

	revoked := h.eng.Revoke(ctx, row.Key, "hw-1")
	require.Equal(t, activation.ValidationValid, revoked.Status)

	final, err := h.st.FindLicenseByKey(ctx, row.Key)
	require.NoError(t, err)
	assert.Equal(t, store.StatusRevoked, final.Status)
	assert.Nil(t, final.HardwareID)
}

func TestDisconnectConcurrentRejectsOtherVariants(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	_, row := h.generate(t, activation.GenerateRequest{
		ProductID: "acme-suite",
		Type:      license.Standard,
		Issuer:    "Acme",
		IssuedTo:  "John Doe",
	})

	res := h.eng.DisconnectConcurrent(ctx, row.Key, "hw-1")
	assert.Equal(t, activation.ValidationInvalid, res.Status)
}

func TestHeartbeatRequiresExistingActivation(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	_, row := h.generate(t, activation.GenerateRequest{
		ProductID:           "acme-suite",
		Type:                license.Floating,
		Issuer:              "Acme",
		IssuedTo:             "Jane",
		MaxActiveUsersCount: 2,
		ExpirationDate:      futurePtr(),
	})

	assert.False(t, h.eng.Heartbeat(ctx, row.Key, "hw-unknown"))

	activated := h.eng.Activate(ctx, row.Key, "hw-1")
	require.Equal(t, activation.ValidationValid, activated.Status)
	assert.True(t, h.eng.Heartbeat(ctx, row.Key, "hw-1"))
}

func machineID(i int) string {
	return "hw-" + string(rune('a'+i%26)) + "-" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := ""
	for i > 0 {
		digits = string(rune('0'+i%10)) + digits
		i /= 10
	}
	return digits
}

func futurePtr() *time.Time {
	t := time.Now().UTC().Add(24 * time.Hour)
	return &t
}
