package types

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hours(start time.Time, n int, step time.Duration) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * step)
	}
	return out
}

func TestNewSeries(t *testing.T) {
	start := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("Valid", func(t *testing.T) {
		s, err := NewSeries(hours(start, 3, time.Hour), []float64{1, 2, 3})
		require.NoError(t, err)
		assert.Equal(t, 3, s.Len())
	})

	t.Run("LengthMismatch", func(t *testing.T) {
		_, err := NewSeries(hours(start, 3, time.Hour), []float64{1, 2})
		assert.ErrorIs(t, err, ErrLengthMismatch)
	})

	t.Run("Unsorted", func(t *testing.T) {
		ts := hours(start, 3, time.Hour)
		ts[1], ts[2] = ts[2], ts[1]
		_, err := NewSeries(ts, []float64{1, 2, 3})
		assert.ErrorIs(t, err, ErrUnsorted)
	})
}

func TestSeriesRange(t *testing.T) {
	start := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	s, err := NewSeries(hours(start, 48, time.Hour), make([]float64, 48))
	require.NoError(t, err)

	lo, hi := s.Range(start.Add(24*time.Hour), start.Add(48*time.Hour))
	assert.Equal(t, 24, lo)
	assert.Equal(t, 48, hi)

	lo, hi = s.Range(start.Add(-time.Hour), start)
	assert.Equal(t, 0, hi-lo)
}

func TestToFahrenheit(t *testing.T) {
	start := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	c, err := NewTemperatureSeries(hours(start, 2, time.Hour), []float64{0, 100})
	require.NoError(t, err)

	f := c.ToFahrenheit()
	assert.Equal(t, []float64{32, 212}, f.Values)
	assert.Equal(t, []float64{0, 100}, c.Values)
}

func TestDayCounts(t *testing.T) {
	start := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	counts := DayCounts([]time.Time{start, start.Add(24 * time.Hour), start.Add(72 * time.Hour)})
	assert.Equal(t, 1.0, counts[0])
	assert.Equal(t, 2.0, counts[1])
	assert.True(t, math.IsNaN(counts[2]))
}

func TestInferInterval(t *testing.T) {
	start := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, IntervalHourly, InferInterval(hours(start, 10, time.Hour)))
	assert.Equal(t, IntervalDaily, InferInterval(hours(start, 10, 24*time.Hour)))
	assert.Equal(t, IntervalBilling, InferInterval(hours(start, 10, 30*24*time.Hour)))
	assert.Equal(t, IntervalDaily, InferInterval(hours(start, 1, time.Hour)))
}
