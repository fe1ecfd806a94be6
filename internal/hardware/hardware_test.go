package hardware_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clk-66/licensecore/internal/hardware"
)

func TestDefaultIsDeterministic(t *testing.T) {
	d := hardware.Default{}
	a, err := d.Get()
	require.NoError(t, err)
	b, err := d.Get()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDefaultValidateMatchesSelf(t *testing.T) {
	d := hardware.Default{}
	id, err := d.Get()
	require.NoError(t, err)

	ok, err := d.Validate(id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Validate("not-the-right-id")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStaticIdentifier(t *testing.T) {
	s := hardware.Static("HW-AAA")
	id, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, "HW-AAA", id)

	ok, _ := s.Validate("HW-BBB")
	assert.False(t, ok)
	ok, _ = s.Validate("HW-AAA")
	assert.True(t, ok)
}
