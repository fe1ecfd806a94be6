package feature_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clk-66/licensecore/internal/errs"
	"github.com/clk-66/licensecore/internal/feature"
	"github.com/clk-66/licensecore/internal/license"
)

func TestRequireFailsWithoutPublishedLicense(t *testing.T) {
	m := feature.New()
	assert.ErrorIs(t, m.Require("Reports"), errs.ErrFeatureNotLicensed)
}

func TestFeatureManager(t *testing.T) {
	m := feature.New()
	assert.False(t, m.IsEnabled("Reports"))

	l := license.NewStandard("John Doe", "Acme", nil)
	l.Features["Reports"] = license.BoolFeature(true)
	l.Features["MaxSeats"] = license.IntFeature(10)
	m.Publish(l)

	assert.True(t, m.IsEnabled("Reports"))
	assert.Equal(t, int32(10), m.AsInt("MaxSeats"))
	assert.Equal(t, int32(0), m.AsInt("Reports"), "type mismatch returns zero value")
	assert.NoError(t, m.Require("Reports"))
	assert.Error(t, m.Require("Nonexistent"))
}
