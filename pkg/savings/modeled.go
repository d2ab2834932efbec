package savings

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/raterudder/eemeter/pkg/log"
	"github.com/raterudder/eemeter/pkg/types"
)

// ModeledResult is the per-period outcome of ModeledSavings.
type ModeledResult struct {
	Index                 []time.Time
	ModeledBaselineUsage  []float64
	ModeledReportingUsage []float64
	ModeledSavings        []float64

	// Disaggregated columns, set only when requested and supported by both
	// models.
	BaselineBaseLoad     []float64
	BaselineHeatingLoad  []float64
	BaselineCoolingLoad  []float64
	ReportingBaseLoad    []float64
	ReportingHeatingLoad []float64
	ReportingCoolingLoad []float64
	BaseLoadSavings      []float64
	HeatingLoadSavings   []float64
	CoolingLoadSavings   []float64

	// ErrorBands is nil when uncertainty cannot be computed.
	ErrorBands ErrorBands
	Warnings   []types.Warning
}

// Len returns the number of periods.
func (r *ModeledResult) Len() int {
	return len(r.Index)
}

// Columns returns the names of the populated columns.
func (r *ModeledResult) Columns() []string {
	cols := []string{"modeled_baseline_usage", "modeled_reporting_usage", "modeled_savings"}
	if r.BaseLoadSavings != nil {
		cols = append(cols,
			"modeled_baseline_base_load", "modeled_baseline_heating_load", "modeled_baseline_cooling_load",
			"modeled_reporting_base_load", "modeled_reporting_heating_load", "modeled_reporting_cooling_load",
			"modeled_base_load_savings", "modeled_heating_load_savings", "modeled_cooling_load_savings",
		)
	}
	return cols
}

// TotalSavings sums ModeledSavings.
func (r *ModeledResult) TotalSavings() float64 {
	return sum(r.ModeledSavings)
}

// ModeledSavings predicts usage over index and temps with both models and
// reports baseline minus reporting usage. Periods either model cannot
// predict have zero savings. It returns types.ErrMissingModelParameters
// before doing anything else when either model is not fitted.
func ModeledSavings(ctx context.Context, baseline, reporting Model, index []time.Time, temps types.TemperatureSeries, opts Options) (*ModeledResult, error) {
	if !baseline.Fitted() || !reporting.Fitted() {
		return nil, types.ErrMissingModelParameters
	}
	n := len(index)
	res := &ModeledResult{
		Index:                 index,
		ModeledBaselineUsage:  make([]float64, n),
		ModeledReportingUsage: make([]float64, n),
		ModeledSavings:        make([]float64, n),
	}
	if n == 0 {
		return res, nil
	}

	base, err := baseline.Predict(ctx, index, temps, opts.predictOptions())
	if err != nil {
		return nil, err
	}
	rep, err := reporting.Predict(ctx, index, temps, opts.predictOptions())
	if err != nil {
		return nil, err
	}
	res.Warnings = append(res.Warnings, base.Warnings...)
	res.Warnings = append(res.Warnings, rep.Warnings...)
	copy(res.ModeledBaselineUsage, base.PredictedUsage)
	copy(res.ModeledReportingUsage, rep.PredictedUsage)
	res.ModeledSavings = difference(res.ModeledBaselineUsage, res.ModeledReportingUsage)

	if opts.WithDisaggregated {
		if base.Disaggregated() && rep.Disaggregated() {
			res.BaselineBaseLoad, res.BaselineHeatingLoad, res.BaselineCoolingLoad = base.BaseLoad, base.HeatingLoad, base.CoolingLoad
			res.ReportingBaseLoad, res.ReportingHeatingLoad, res.ReportingCoolingLoad = rep.BaseLoad, rep.HeatingLoad, rep.CoolingLoad
			res.BaseLoadSavings = difference(base.BaseLoad, rep.BaseLoad)
			res.HeatingLoadSavings = difference(base.HeatingLoad, rep.HeatingLoad)
			res.CoolingLoadSavings = difference(base.CoolingLoad, rep.CoolingLoad)
		} else {
			res.Warnings = append(res.Warnings, disaggregationWarning())
		}
	}

	res.ErrorBands = modeledErrorBands(baseline, reporting, res, opts)
	log.Ctx(ctx).DebugContext(
		ctx,
		"computed modeled savings",
		slog.Int("periods", n),
		slog.Float64("savings", res.TotalSavings()),
		slog.Bool("errorBands", res.ErrorBands != nil),
	)
	return res, nil
}

// difference returns a-b with zero wherever either side is NaN.
func difference(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		out[i] = a[i] - b[i]
	}
	return out
}

func modeledErrorBands(baseline, reporting Model, res *ModeledResult, opts Options) ErrorBands {
	bm, bInterval, ok := baseline.UncertaintyInputs()
	if !ok {
		return nil
	}
	rm, rInterval, ok := reporting.UncertaintyInputs()
	if !ok {
		return nil
	}
	b, ok := modelFSU(bm, bInterval, res.Index, res.ModeledBaselineUsage, opts.confidenceLevel())
	if !ok {
		return nil
	}
	r, ok := modelFSU(rm, rInterval, res.Index, res.ModeledReportingUsage, opts.confidenceLevel())
	if !ok {
		return nil
	}
	return ErrorBands{
		FSUErrorBandBaseline:  b,
		FSUErrorBandReporting: r,
		FSUErrorBand:          CombineFSU(b, r),
	}
}
