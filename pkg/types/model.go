package types

import (
	"encoding/json"
	"errors"
	"math"
	"slices"
	"time"
)

// ErrMissingModelParameters is returned when predicting or computing savings
// with a model that has no fitted parameters.
var ErrMissingModelParameters = errors.New("model parameters are missing")

// Interval describes the granularity of a meter series.
type Interval string

const (
	IntervalHourly  Interval = "hourly"
	IntervalDaily   Interval = "daily"
	IntervalBilling Interval = "billing"
)

// InferInterval guesses the interval from the median spacing of index.
func InferInterval(index []time.Time) Interval {
	if len(index) < 2 {
		return IntervalDaily
	}
	gaps := make([]time.Duration, 0, len(index)-1)
	for i := 1; i < len(index); i++ {
		gaps = append(gaps, index[i].Sub(index[i-1]))
	}
	median := medianDuration(gaps)
	switch {
	case median <= time.Hour:
		return IntervalHourly
	case median <= 24*time.Hour:
		return IntervalDaily
	default:
		return IntervalBilling
	}
}

func medianDuration(ds []time.Duration) time.Duration {
	sorted := slices.Clone(ds)
	slices.Sort(sorted)
	return sorted[len(sorted)/2]
}

// DegreeDayMethod selects how degree days are accumulated from hourly
// temperatures.
type DegreeDayMethod string

const (
	// DegreeDayMethodDaily averages temperatures per day before comparing
	// against a balance point.
	DegreeDayMethodDaily DegreeDayMethod = "daily"
	// DegreeDayMethodHourly compares each hourly reading against a balance
	// point and divides the sum by 24.
	DegreeDayMethodHourly DegreeDayMethod = "hourly"
)

// Warning is a structured, non-fatal diagnostic.
type Warning struct {
	QualifiedName string         `json:"qualified_name"`
	Description   string         `json:"description"`
	Data          map[string]any `json:"data"`
}

// PredictOptions controls model prediction.
type PredictOptions struct {
	DegreeDayMethod   DegreeDayMethod
	WithDisaggregated bool
}

// Prediction holds predicted usage aligned to the requested index. Periods
// that could not be predicted are NaN. The load components are only set
// when disaggregation was requested and the model supports it.
type Prediction struct {
	Index          []time.Time
	PredictedUsage []float64
	BaseLoad       []float64
	HeatingLoad    []float64
	CoolingLoad    []float64
	Warnings       []Warning
}

// Disaggregated reports whether the load components are present.
func (p Prediction) Disaggregated() bool {
	return p.BaseLoad != nil
}

// MarshalJSON writes NaN and infinite values in Data as null.
func (w Warning) MarshalJSON() ([]byte, error) {
	type warning Warning
	out := warning(w)
	if out.Data == nil {
		out.Data = map[string]any{}
	} else {
		out.Data = sanitize(out.Data).(map[string]any)
	}
	return json.Marshal(out)
}

func sanitize(v any) any {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = sanitize(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = sanitize(vv)
		}
		return out
	default:
		return v
	}
}
