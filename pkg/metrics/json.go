package metrics

import (
	"encoding/json"
	"fmt"
	"math"
)

type floatField struct {
	name string
	ptr  *float64
}

type intField struct {
	name string
	ptr  *int
}

func (m *ModelMetrics) floatFields() []floatField {
	return []floatField{
		{"observed_mean", &m.ObservedMean},
		{"predicted_mean", &m.PredictedMean},
		{"observed_variance", &m.ObservedVariance},
		{"predicted_variance", &m.PredictedVariance},
		{"observed_skew", &m.ObservedSkew},
		{"predicted_skew", &m.PredictedSkew},
		{"observed_kurtosis", &m.ObservedKurtosis},
		{"predicted_kurtosis", &m.PredictedKurtosis},
		{"observed_cvstd", &m.ObservedCVStd},
		{"predicted_cvstd", &m.PredictedCVStd},
		{"r_squared", &m.RSquared},
		{"r_squared_adj", &m.RSquaredAdj},
		{"rmse", &m.RMSE},
		{"rmse_adj", &m.RMSEAdj},
		{"cvrmse", &m.CVRMSE},
		{"cvrmse_adj", &m.CVRMSEAdj},
		{"mape", &m.MAPE},
		{"mape_no_zeros", &m.MAPENoZeros},
		{"nmae", &m.NMAE},
		{"nmbe", &m.NMBE},
		{"autocorr_resid", &m.AutocorrResid},
		{"n_prime", &m.NPrime},
		{"confidence_level", &m.ConfidenceLevel},
		{"single_tailed_confidence_level", &m.SingleTailedConfidenceLevel},
		{"degrees_of_freedom", &m.DegreesOfFreedom},
		{"t_stat", &m.TStat},
		{"cvrmse_auto_corr_correction", &m.CVRMSEAutoCorrCorrection},
		{"approx_factor_auto_corr_correction", &m.ApproxFactorAutoCorrCorrection},
		{"fsu_base_term", &m.FSUBaseTerm},
	}
}

func (m *ModelMetrics) intFields() []intField {
	return []intField{
		{"observed_length", &m.ObservedLength},
		{"predicted_length", &m.PredictedLength},
		{"merged_length", &m.MergedLength},
		{"num_parameters", &m.NumParameters},
		{"num_meter_zeros", &m.NumMeterZeros},
	}
}

// MarshalJSON writes NaN and infinite values as null.
func (m ModelMetrics) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, 34)
	for _, f := range m.intFields() {
		doc[f.name] = *f.ptr
	}
	for _, f := range m.floatFields() {
		v := *f.ptr
		if math.IsNaN(v) || math.IsInf(v, 0) {
			doc[f.name] = nil
			continue
		}
		doc[f.name] = v
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads a metrics document. Missing or null float fields
// become NaN.
func (m *ModelMetrics) UnmarshalJSON(b []byte) error {
	var doc map[string]*float64
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("error decoding metrics: %w", err)
	}
	*m = ModelMetrics{}
	for _, f := range m.intFields() {
		if v := doc[f.name]; v != nil {
			*f.ptr = int(*v)
		}
	}
	for _, f := range m.floatFields() {
		*f.ptr = math.NaN()
		if v := doc[f.name]; v != nil {
			*f.ptr = *v
		}
	}
	return nil
}
