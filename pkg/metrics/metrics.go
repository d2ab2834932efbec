// Package metrics computes goodness-of-fit statistics comparing observed and
// predicted usage.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultConfidenceLevel is the two-sided confidence level used for the
// t-statistic.
const DefaultConfidenceLevel = 0.90

// ModelMetrics holds fit statistics. Fields that cannot be computed are NaN.
type ModelMetrics struct {
	ObservedLength  int `json:"observed_length"`
	PredictedLength int `json:"predicted_length"`
	MergedLength    int `json:"merged_length"`
	NumParameters   int `json:"num_parameters"`
	NumMeterZeros   int `json:"num_meter_zeros"`

	ObservedMean      float64 `json:"observed_mean"`
	PredictedMean     float64 `json:"predicted_mean"`
	ObservedVariance  float64 `json:"observed_variance"`
	PredictedVariance float64 `json:"predicted_variance"`
	ObservedSkew      float64 `json:"observed_skew"`
	PredictedSkew     float64 `json:"predicted_skew"`
	ObservedKurtosis  float64 `json:"observed_kurtosis"`
	PredictedKurtosis float64 `json:"predicted_kurtosis"`
	ObservedCVStd     float64 `json:"observed_cvstd"`
	PredictedCVStd    float64 `json:"predicted_cvstd"`

	RSquared    float64 `json:"r_squared"`
	RSquaredAdj float64 `json:"r_squared_adj"`
	RMSE        float64 `json:"rmse"`
	RMSEAdj     float64 `json:"rmse_adj"`
	CVRMSE      float64 `json:"cvrmse"`
	CVRMSEAdj   float64 `json:"cvrmse_adj"`
	MAPE        float64 `json:"mape"`
	MAPENoZeros float64 `json:"mape_no_zeros"`
	NMAE        float64 `json:"nmae"`
	NMBE        float64 `json:"nmbe"`

	AutocorrResid float64 `json:"autocorr_resid"`
	NPrime        float64 `json:"n_prime"`

	ConfidenceLevel                float64 `json:"confidence_level"`
	SingleTailedConfidenceLevel    float64 `json:"single_tailed_confidence_level"`
	DegreesOfFreedom               float64 `json:"degrees_of_freedom"`
	TStat                          float64 `json:"t_stat"`
	CVRMSEAutoCorrCorrection       float64 `json:"cvrmse_auto_corr_correction"`
	ApproxFactorAutoCorrCorrection float64 `json:"approx_factor_auto_corr_correction"`
	FSUBaseTerm                    float64 `json:"fsu_base_term"`
}

// Undefined returns metrics with every float field NaN.
func Undefined() ModelMetrics {
	var m ModelMetrics
	for _, f := range m.floatFields() {
		*f.ptr = math.NaN()
	}
	return m
}

// Compute compares observed and predicted values. Pairs where either side
// is NaN are dropped before any statistic is computed. numParameters is the
// number of non-intercept regressors of the model that produced predicted.
func Compute(observed, predicted []float64, numParameters int, confidenceLevel float64) ModelMetrics {
	m := Undefined()
	m.NumParameters = numParameters
	m.ConfidenceLevel = confidenceLevel

	var obs, pred []float64
	for i := range observed {
		if i >= len(predicted) || !finite(observed[i]) || !finite(predicted[i]) {
			continue
		}
		obs = append(obs, observed[i])
		pred = append(pred, predicted[i])
	}
	n := len(obs)
	m.MergedLength = n
	m.ObservedLength = n
	m.PredictedLength = n
	if n == 0 {
		return m
	}
	fn := float64(n)

	m.ObservedMean, m.ObservedVariance = meanVariance(obs)
	m.PredictedMean, m.PredictedVariance = meanVariance(pred)
	if n > 2 {
		m.ObservedSkew = stat.Skew(obs, nil)
		m.PredictedSkew = stat.Skew(pred, nil)
	}
	if n > 3 {
		m.ObservedKurtosis = stat.ExKurtosis(obs, nil)
		m.PredictedKurtosis = stat.ExKurtosis(pred, nil)
	}
	m.ObservedCVStd = math.Sqrt(m.ObservedVariance) / m.ObservedMean
	m.PredictedCVStd = math.Sqrt(m.PredictedVariance) / m.PredictedMean

	resid := make([]float64, n)
	var sse, sumAbs, sumBias, sumObs, sumAPE float64
	var nonZero int
	for i := range obs {
		resid[i] = pred[i] - obs[i]
		sse += resid[i] * resid[i]
		sumAbs += math.Abs(resid[i])
		sumBias += resid[i]
		sumObs += obs[i]
		if obs[i] == 0 {
			m.NumMeterZeros++
			continue
		}
		nonZero++
		sumAPE += math.Abs(resid[i] / obs[i])
	}

	if n > 1 {
		r := stat.Correlation(obs, pred, nil)
		m.RSquared = r * r
	}
	p := float64(numParameters)
	m.RSquaredAdj = 1 - (1-m.RSquared)*(fn-1)/(fn-p-1)
	m.RMSE = math.Sqrt(sse / fn)
	if fn-p > 0 {
		m.RMSEAdj = math.Sqrt(sse / (fn - p))
	}
	m.CVRMSE = m.RMSE / m.ObservedMean
	m.CVRMSEAdj = m.RMSEAdj / m.ObservedMean
	if nonZero > 0 {
		m.MAPENoZeros = sumAPE / float64(nonZero) * 100
		if m.NumMeterZeros == 0 {
			m.MAPE = m.MAPENoZeros
		}
	}
	m.NMAE = sumAbs / sumObs
	m.NMBE = sumBias / sumObs

	m.AutocorrResid = Autocorrelation(resid, 1)
	m.NPrime = fn * (1 - m.AutocorrResid) / (1 + m.AutocorrResid)

	m.SingleTailedConfidenceLevel = 1 - (1-confidenceLevel)/2
	m.DegreesOfFreedom = fn - p
	if m.DegreesOfFreedom >= 1 {
		m.TStat = TQuantile(m.SingleTailedConfidenceLevel, m.DegreesOfFreedom)
	}
	if m.NPrime-p > 0 {
		m.CVRMSEAutoCorrCorrection = math.Sqrt((fn - p) / (m.NPrime - p))
	}
	if m.NPrime > 0 {
		m.ApproxFactorAutoCorrCorrection = math.Sqrt(1 + 2/m.NPrime)
	}
	m.FSUBaseTerm = m.TStat * m.CVRMSEAdj * m.CVRMSEAutoCorrCorrection * m.ApproxFactorAutoCorrCorrection
	return m
}

// TQuantile returns the Student-t quantile for probability q with dof
// degrees of freedom.
func TQuantile(q, dof float64) float64 {
	if !(dof > 0) {
		return math.NaN()
	}
	return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dof}.Quantile(q)
}

// Autocorrelation returns the Pearson correlation of xs with itself shifted
// by lag. Fewer than lag+2 values gives NaN.
func Autocorrelation(xs []float64, lag int) float64 {
	if len(xs) < lag+2 {
		return math.NaN()
	}
	return stat.Correlation(xs[lag:], xs[:len(xs)-lag], nil)
}

// meanVariance returns the mean and the population variance.
func meanVariance(xs []float64) (float64, float64) {
	if len(xs) == 1 {
		return xs[0], 0
	}
	mean, variance := stat.MeanVariance(xs, nil)
	n := float64(len(xs))
	return mean, variance * (n - 1) / n
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
