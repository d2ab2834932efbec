// Package savings compares fitted baseline and reporting models against
// observed usage and computes CalTRACK uncertainty bands.
package savings

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/raterudder/eemeter/pkg/log"
	"github.com/raterudder/eemeter/pkg/metrics"
	"github.com/raterudder/eemeter/pkg/types"
)

// Model is a fitted usage model. Both *usageperday.Result and
// *hourly.Model implement it.
type Model interface {
	Fitted() bool
	Predict(ctx context.Context, index []time.Time, temps types.TemperatureSeries, opts types.PredictOptions) (types.Prediction, error)
	// UncertaintyInputs returns the per-period fit metrics and interval the
	// error bands are derived from. ok is false when the model has none.
	UncertaintyInputs() (m metrics.ModelMetrics, interval types.Interval, ok bool)
}

// Options controls MeteredSavings and ModeledSavings.
type Options struct {
	WithDisaggregated bool
	// ConfidenceLevel defaults to metrics.DefaultConfidenceLevel.
	ConfidenceLevel float64
	// DegreeDayMethod is passed through to Predict.
	DegreeDayMethod types.DegreeDayMethod
}

func (o Options) confidenceLevel() float64 {
	if o.ConfidenceLevel <= 0 || o.ConfidenceLevel >= 1 {
		return metrics.DefaultConfidenceLevel
	}
	return o.ConfidenceLevel
}

func (o Options) predictOptions() types.PredictOptions {
	return types.PredictOptions{DegreeDayMethod: o.DegreeDayMethod, WithDisaggregated: o.WithDisaggregated}
}

// MeteredResult is the per-period outcome of MeteredSavings. The load
// columns are only set when disaggregation was requested and supported.
type MeteredResult struct {
	Index                     []time.Time
	ReportingObserved         []float64
	CounterfactualUsage       []float64
	MeteredSavings            []float64
	CounterfactualBaseLoad    []float64
	CounterfactualHeatingLoad []float64
	CounterfactualCoolingLoad []float64
	// ErrorBands is nil when uncertainty cannot be computed.
	ErrorBands ErrorBands
	Warnings   []types.Warning
}

// Len returns the number of periods.
func (r *MeteredResult) Len() int {
	return len(r.Index)
}

// Columns returns the names of the populated columns.
func (r *MeteredResult) Columns() []string {
	cols := []string{"reporting_observed", "counterfactual_usage", "metered_savings"}
	if r.CounterfactualBaseLoad != nil {
		cols = append(cols, "counterfactual_base_load", "counterfactual_heating_load", "counterfactual_cooling_load")
	}
	return cols
}

// TotalSavings sums MeteredSavings.
func (r *MeteredResult) TotalSavings() float64 {
	return sum(r.MeteredSavings)
}

// MeteredSavings predicts counterfactual usage for each period of
// reportingMeter with baseline and reports counterfactual minus observed
// usage. Periods where either side is missing have zero savings. It returns
// types.ErrMissingModelParameters before doing anything else when baseline
// is not fitted.
func MeteredSavings(ctx context.Context, baseline Model, reportingMeter types.MeterSeries, reportingTemps types.TemperatureSeries, opts Options) (*MeteredResult, error) {
	if !baseline.Fitted() {
		return nil, types.ErrMissingModelParameters
	}
	n := reportingMeter.Len()
	res := &MeteredResult{
		Index:               reportingMeter.Timestamps,
		ReportingObserved:   reportingMeter.Values,
		CounterfactualUsage: make([]float64, n),
		MeteredSavings:      make([]float64, n),
	}
	if n == 0 {
		return res, nil
	}

	pred, err := baseline.Predict(ctx, reportingMeter.Timestamps, reportingTemps, opts.predictOptions())
	if err != nil {
		return nil, err
	}
	res.Warnings = pred.Warnings
	copy(res.CounterfactualUsage, pred.PredictedUsage)

	var usable []int
	for i := range res.Index {
		observed, counterfactual := res.ReportingObserved[i], res.CounterfactualUsage[i]
		if math.IsNaN(observed) || math.IsNaN(counterfactual) {
			continue
		}
		usable = append(usable, i)
		res.MeteredSavings[i] = counterfactual - observed
	}

	if opts.WithDisaggregated {
		if pred.Disaggregated() {
			res.CounterfactualBaseLoad = pred.BaseLoad
			res.CounterfactualHeatingLoad = pred.HeatingLoad
			res.CounterfactualCoolingLoad = pred.CoolingLoad
		} else {
			res.Warnings = append(res.Warnings, disaggregationWarning())
		}
	}

	if m, interval, ok := baseline.UncertaintyInputs(); ok {
		res.ErrorBands = meteredErrorBands(m, interval, res, usable, opts.confidenceLevel())
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"computed metered savings",
		slog.Int("periods", n),
		slog.Int("usable", len(usable)),
		slog.Float64("savings", res.TotalSavings()),
		slog.Bool("errorBands", res.ErrorBands != nil),
	)
	return res, nil
}

func disaggregationWarning() types.Warning {
	return types.Warning{
		QualifiedName: "eemeter.savings.disaggregation_unavailable",
		Description:   "Model does not support disaggregated predictions.",
		Data:          map[string]any{},
	}
}

func sum(xs []float64) float64 {
	var total float64
	for _, x := range xs {
		if !math.IsNaN(x) {
			total += x
		}
	}
	return total
}

// reportingPeriods is the number of reporting periods m used by the error
// band formulas. Billing data counts 30 day months across the index.
func reportingPeriods(interval types.Interval, index []time.Time, usable int) float64 {
	if interval == types.IntervalBilling {
		days := index[len(index)-1].Sub(index[0]).Hours() / 24
		return math.Round(days / 30)
	}
	return float64(usable)
}
