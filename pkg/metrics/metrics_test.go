package metrics

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute(t *testing.T) {
	observed := []float64{1, 2, 3, 4, 5, 6}
	predicted := []float64{1.5, 1.5, 3.5, 3.5, 5.5, 5.5}

	m := Compute(observed, predicted, 1, DefaultConfidenceLevel)

	assert.Equal(t, 6, m.MergedLength)
	assert.Equal(t, 6, m.ObservedLength)
	assert.Equal(t, 1, m.NumParameters)
	assert.InDelta(t, 3.5, m.ObservedMean, 1e-12)
	assert.InDelta(t, 17.5/6, m.ObservedVariance, 1e-12)
	assert.InDelta(t, 0.5, m.RMSE, 1e-12)
	assert.InDelta(t, math.Sqrt(1.5/5), m.RMSEAdj, 1e-12)
	assert.InDelta(t, 0.5/3.5, m.CVRMSE, 1e-12)
	assert.InDelta(t, 3.0/21, m.NMAE, 1e-12)
	assert.InDelta(t, 0, m.NMBE, 1e-12)
	assert.Greater(t, m.RSquared, 0.8)
	assert.Less(t, m.RSquaredAdj, m.RSquared)
	assert.Equal(t, 5.0, m.DegreesOfFreedom)
	// residuals alternate in sign
	assert.Less(t, m.AutocorrResid, 0.0)
	assert.InDelta(t, 2.015048, m.TStat, 1e-5)
}

func TestComputeDropsNaN(t *testing.T) {
	m := Compute([]float64{1, math.NaN(), 3}, []float64{1, 2, math.NaN()}, 0, DefaultConfidenceLevel)
	assert.Equal(t, 1, m.MergedLength)
	assert.True(t, math.IsNaN(m.AutocorrResid))
	assert.True(t, math.IsNaN(m.NPrime))
}

func TestComputeEmpty(t *testing.T) {
	m := Compute(nil, nil, 0, DefaultConfidenceLevel)
	assert.Equal(t, 0, m.MergedLength)
	assert.True(t, math.IsNaN(m.ObservedMean))
	assert.True(t, math.IsNaN(m.RMSEAdj))
}

func TestAutocorrelation(t *testing.T) {
	assert.True(t, math.IsNaN(Autocorrelation([]float64{1, 2}, 1)))
	assert.InDelta(t, 1, Autocorrelation([]float64{1, 2, 3, 4}, 1), 1e-12)
	assert.InDelta(t, -1, Autocorrelation([]float64{1, -1, 1, -1}, 1), 1e-12)
}

func TestModelMetricsJSON(t *testing.T) {
	m := Compute([]float64{1, 2, 3, 4}, []float64{1.1, 1.9, 3.2, 3.8}, 1, DefaultConfidenceLevel)
	m.FSUBaseTerm = math.NaN()

	b, err := json.Marshal(m)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Nil(t, doc["fsu_base_term"])
	assert.EqualValues(t, 4, doc["merged_length"])

	var back ModelMetrics
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, m.MergedLength, back.MergedLength)
	assert.InDelta(t, m.RMSEAdj, back.RMSEAdj, 1e-12)
	assert.True(t, math.IsNaN(back.FSUBaseTerm))

	t.Run("MissingFieldsAreUndefined", func(t *testing.T) {
		var partial ModelMetrics
		require.NoError(t, json.Unmarshal([]byte(`{"observed_length": 10, "rmse": 1.5}`), &partial))
		assert.Equal(t, 10, partial.ObservedLength)
		assert.Equal(t, 1.5, partial.RMSE)
		assert.True(t, math.IsNaN(partial.AutocorrResid))
		assert.True(t, math.IsNaN(partial.ObservedVariance))
	})
}
