package license_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clk-66/licensecore/internal/license"
)

func TestTrialExpirationDerived(t *testing.T) {
	l := license.NewTrial(7*24*time.Hour, "Acme")
	require.NotNil(t, l.ExpirationDate)
	assert.WithinDuration(t, l.IssuedOn.Add(7*24*time.Hour), *l.ExpirationDate, time.Second)
}

func TestSubscriptionExpirationDerived(t *testing.T) {
	start := time.Now().UTC()
	l := license.NewSubscription("Jane", start, 30*24*time.Hour, "Acme")
	require.NotNil(t, l.ExpirationDate)
	assert.Equal(t, start.Add(30*24*time.Hour), *l.ExpirationDate)
}

func TestConcurrentTypeAlwaysSet(t *testing.T) {
	l := license.NewConcurrent("Jane", 5, "Acme", nil)
	assert.Equal(t, license.Concurrent, l.Type)
}

func TestFeatureEnablement(t *testing.T) {
	cases := []struct {
		name    string
		feature license.Feature
		want    bool
	}{
		{"bool true", license.BoolFeature(true), true},
		{"bool false", license.BoolFeature(false), false},
		{"int nonzero", license.IntFeature(1), true},
		{"int zero", license.IntFeature(0), false},
		{"float nonzero", license.FloatFeature(1.5), true},
		{"float zero", license.FloatFeature(0), false},
		{"string nonempty", license.StringFeature("x"), true},
		{"string empty", license.StringFeature(""), false},
		{"datetime set", license.DateTimeFeature(time.Now()), true},
		{"datetime zero", license.DateTimeFeature(time.Time{}), false},
		{"bytes nonempty", license.ByteArrayFeature([]byte{1}), true},
		{"bytes empty", license.ByteArrayFeature(nil), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.feature.Enabled())
		})
	}
}

func TestJSONSerializerRoundTrip(t *testing.T) {
	exp := time.Now().UTC().Add(30 * 24 * time.Hour)
	l := license.NewStandard("John Doe", "Acme", &exp)
	l.LicenseKey = "SD2D-35G9-1502-X3DG-16VI-ELN2"
	l.Features["Reports"] = license.BoolFeature(true)
	l.Features["MaxUsers"] = license.IntFeature(42)
	l.Features["Blob"] = license.ByteArrayFeature([]byte{0xDE, 0xAD, 0xBE, 0xEF})

	s := license.JSONSerializer{}
	payload, err := s.Serialize(l)
	require.NoError(t, err)

	got, err := s.Deserialize(payload)
	require.NoError(t, err)

	assert.Equal(t, l.LicenseID, got.LicenseID)
	assert.Equal(t, l.UserName, got.UserName)
	assert.Equal(t, l.LicenseKey, got.LicenseKey)
	assert.True(t, got.Features["Reports"].Enabled())
	assert.Equal(t, int32(42), got.Features["MaxUsers"].Int)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, got.Features["Blob"].Bytes)
}

func TestDeserializeRejectsUnknownDiscriminator(t *testing.T) {
	s := license.JSONSerializer{}
	_, err := s.Deserialize(`{"Type":"NotAVariant"}`)
	assert.Error(t, err)
}
