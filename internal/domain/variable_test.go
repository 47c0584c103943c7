package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVariable(t *testing.T) {
	for _, v := range Variables {
		got, err := ParseVariable(string(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	_, err := ParseVariable("pressure")
	assert.ErrorIs(t, err, ErrConfig)
}

func TestBoundsValidate(t *testing.T) {
	assert.NoError(t, Bounds{Min: 0, Max: 100}.Validate())
	assert.NoError(t, Bounds{Min: 5, Max: 5}.Validate())
	assert.ErrorIs(t, Bounds{Min: 10, Max: 0}.Validate(), ErrConfig)
}

func TestBoundsClamp(t *testing.T) {
	b := Bounds{Min: 0, Max: 100}

	v, clamped := b.Clamp(50)
	assert.Equal(t, 50.0, v)
	assert.False(t, clamped)

	v, clamped = b.Clamp(-3)
	assert.Equal(t, 0.0, v)
	assert.True(t, clamped)

	v, clamped = b.Clamp(104.2)
	assert.Equal(t, 100.0, v)
	assert.True(t, clamped)
}

func TestDefaultBoundsAreValid(t *testing.T) {
	for _, v := range Variables {
		assert.NoError(t, v.DefaultBounds().Validate(), string(v))
	}
	// Negative humidity and precipitation are physically impossible.
	assert.Zero(t, VarHumidity.DefaultBounds().Min)
	assert.Zero(t, VarPrecipitation.DefaultBounds().Min)
}
