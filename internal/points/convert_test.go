package points

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	t.Run("seconds", func(t *testing.T) {
		got, err := Convert(UnitSeconds, 42)
		require.NoError(t, err)
		require.InDelta(t, 42.0, got, 1e-9)
	})

	t.Run("characters", func(t *testing.T) {
		got, err := Convert(UnitCharacters, 100)
		require.NoError(t, err)
		require.InDelta(t, 10.0, got, 1e-9)
	})

	t.Run("images", func(t *testing.T) {
		got, err := Convert(UnitImages, 3)
		require.NoError(t, err)
		require.InDelta(t, 30.0, got, 1e-9)
	})

	t.Run("minutes", func(t *testing.T) {
		got, err := Convert(UnitMinutes, 2)
		require.NoError(t, err)
		require.InDelta(t, 120.0, got, 1e-9)
	})

	t.Run("zero count costs nothing", func(t *testing.T) {
		got, err := Convert(UnitSeconds, 0)
		require.NoError(t, err)
		require.Zero(t, got)
	})

	t.Run("unrecognized unit fails loudly", func(t *testing.T) {
		_, err := Convert(Unit("tokens"), 10)
		require.ErrorIs(t, err, ErrUnrecognizedUnit)
		require.Contains(t, err.Error(), "tokens")
	})
}

func TestConvertLinearity(t *testing.T) {
	units := []Unit{UnitSeconds, UnitCharacters, UnitImages, UnitMinutes}
	counts := []int64{1, 7, 100, 99999}

	for _, unit := range units {
		one, err := Convert(unit, 1)
		require.NoError(t, err)

		for _, n := range counts {
			got, err := Convert(unit, n)
			require.NoError(t, err)
			require.InDelta(t, one*float64(n), got, 1e-6, "unit %s count %d", unit, n)
		}
	}
}

func TestRecognized(t *testing.T) {
	require.True(t, Recognized(UnitSeconds))
	require.True(t, Recognized(UnitMinutes))
	require.False(t, Recognized(Unit("tokens")))
	require.False(t, Recognized(Unit("")))
}
