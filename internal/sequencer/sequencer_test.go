package sequencer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextWrapsAtBoundaries(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, Next(151, Forward, 1, 151))
	require.Equal(t, 151, Next(1, Backward, 1, 151))
	require.Equal(t, 2, Next(1, Forward, 1, 151))
	require.Equal(t, 150, Next(151, Backward, 1, 151))
}

func TestNextStaysInRange(t *testing.T) {
	t.Parallel()

	r := DefaultRange
	for id := r.Min; id <= r.Max; id++ {
		for _, dir := range []Direction{Forward, Backward} {
			got := r.Next(id, dir)
			require.True(t, r.Contains(got), "Next(%d, %s) = %d out of %s", id, dir, got, r)
		}
	}
}

func TestNextSingleElementRange(t *testing.T) {
	t.Parallel()

	require.Equal(t, 7, Next(7, Forward, 7, 7))
	require.Equal(t, 7, Next(7, Backward, 7, 7))
}

func TestNextOutOfRangeFollowsRules(t *testing.T) {
	t.Parallel()

	// Forward from above max wraps, backward simply decrements.
	require.Equal(t, 1, Next(9990, Forward, 1, 151))
	require.Equal(t, 9989, Next(9990, Backward, 1, 151))
	// Below min: backward wraps, forward increments.
	require.Equal(t, 151, Next(-5, Backward, 1, 151))
	require.Equal(t, -4, Next(-5, Forward, 1, 151))
	// The extremes wrap instead of overflowing.
	require.Equal(t, 1, DefaultRange.Next(math.MaxInt, Forward))
	require.Equal(t, 151, DefaultRange.Next(math.MinInt, Backward))
	require.Equal(t, math.MaxInt-1, DefaultRange.Next(math.MaxInt, Backward))
	require.Equal(t, math.MinInt+1, DefaultRange.Next(math.MinInt, Forward))
}

func TestRangeValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultRange.Validate())
	require.NoError(t, Range{Min: 3, Max: 3}.Validate())
	require.Error(t, Range{Min: 4, Max: 3}.Validate())
	require.Equal(t, 151, DefaultRange.Len())
	require.Equal(t, "[1, 151]", DefaultRange.String())
}
