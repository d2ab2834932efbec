package usageperday

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/raterudder/eemeter/pkg/features"
	"github.com/raterudder/eemeter/pkg/log"
	"github.com/raterudder/eemeter/pkg/metrics"
	"github.com/raterudder/eemeter/pkg/types"
)

// ResultStatus summarizes the outcome of a fit.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "SUCCESS"
	ResultNoData  ResultStatus = "NO DATA"
	ResultNoModel ResultStatus = "NO MODEL"
)

// Outcome is either Fitted or Unfit.
type Outcome interface {
	isFit()
}

// Fitted holds the selected candidate and its metrics.
type Fitted struct {
	Model         CandidateModel
	AvgsMetrics   metrics.ModelMetrics
	TotalsMetrics metrics.ModelMetrics
}

// Unfit marks a result without model parameters.
type Unfit struct {
	Reason string
}

func (Fitted) isFit() {}
func (Unfit) isFit()  {}

// Result is the outcome of Fit.
type Result struct {
	Status     ResultStatus
	MethodName string
	Interval   types.Interval
	Fit        Outcome
	Candidates []CandidateModel
	Warnings   []types.Warning
	Settings   Options
	Metadata   map[string]any
}

// Fitted reports whether the result has model parameters.
func (r *Result) Fitted() bool {
	_, ok := r.Fit.(Fitted)
	return ok
}

// Model returns the selected candidate.
func (r *Result) Model() (CandidateModel, bool) {
	f, ok := r.Fit.(Fitted)
	if !ok {
		return CandidateModel{}, false
	}
	return f.Model, true
}

// WithoutParams returns a copy of r without model parameters.
func (r *Result) WithoutParams() *Result {
	out := *r
	out.Fit = Unfit{Reason: "parameters removed"}
	out.Candidates = slices.Clone(r.Candidates)
	return &out
}

// UncertaintyInputs returns the per-period metrics and interval used to
// compute error bands.
func (r *Result) UncertaintyInputs() (metrics.ModelMetrics, types.Interval, bool) {
	f, ok := r.Fit.(Fitted)
	if !ok {
		return metrics.ModelMetrics{}, "", false
	}
	return f.TotalsMetrics, r.Interval, true
}

// Predict predicts usage for each period of index. It returns
// types.ErrMissingModelParameters when the result is unfit.
func (r *Result) Predict(ctx context.Context, index []time.Time, temps types.TemperatureSeries, opts types.PredictOptions) (types.Prediction, error) {
	f, ok := r.Fit.(Fitted)
	if !ok {
		return types.Prediction{}, types.ErrMissingModelParameters
	}
	return f.Model.Predict(ctx, index, temps, opts)
}

// Predict predicts usage for each period of index from the candidate's
// parameters. Degree days are period totals so each prediction is the
// usage of the whole period.
func (c CandidateModel) Predict(ctx context.Context, index []time.Time, temps types.TemperatureSeries, opts types.PredictOptions) (types.Prediction, error) {
	params, ok := c.Params()
	if !ok {
		return types.Prediction{}, types.ErrMissingModelParameters
	}
	method := opts.DegreeDayMethod
	if method == "" {
		method = types.DegreeDayMethodDaily
	}
	var heating, cooling []int
	if c.ModelType.hasHDD() {
		heating = []int{params.HeatingBalancePoint}
	}
	if c.ModelType.hasCDD() {
		cooling = []int{params.CoolingBalancePoint}
	}
	tOpts := features.DefaultTemperatureOptions(heating, cooling)
	tOpts.DegreeDayMethod = method
	tOpts.PeriodTotals = true
	dm, err := features.ComputeTemperatureFeatures(index, temps, tOpts)
	if err != nil {
		return types.Prediction{}, err
	}

	n := len(index)
	pred := types.Prediction{Index: index, PredictedUsage: make([]float64, n)}
	if opts.WithDisaggregated {
		pred.BaseLoad = make([]float64, n)
		pred.HeatingLoad = make([]float64, n)
		pred.CoolingLoad = make([]float64, n)
	}
	var predicted int
	for i := range index {
		nDays := dm.NDaysKept[i] + dm.NDaysDropped[i]
		if method == types.DegreeDayMethodHourly {
			nDays = (dm.NHoursKept[i] + dm.NHoursDropped[i]) / 24
		}
		base := params.Intercept * nDays
		var heatingLoad, coolingLoad float64
		if c.ModelType.hasHDD() {
			heatingLoad = params.BetaHDD * dm.HDD[params.HeatingBalancePoint][i]
		}
		if c.ModelType.hasCDD() {
			coolingLoad = params.BetaCDD * dm.CDD[params.CoolingBalancePoint][i]
		}
		if math.IsNaN(base) || math.IsNaN(heatingLoad) || math.IsNaN(coolingLoad) {
			nan := math.NaN()
			base, heatingLoad, coolingLoad = nan, nan, nan
		} else {
			predicted++
		}
		pred.PredictedUsage[i] = base + heatingLoad + coolingLoad
		if opts.WithDisaggregated {
			pred.BaseLoad[i] = base
			pred.HeatingLoad[i] = heatingLoad
			pred.CoolingLoad[i] = coolingLoad
		}
	}
	if n > 0 && predicted == 0 {
		pred.Warnings = append(pred.Warnings, types.Warning{
			QualifiedName: "eemeter.caltrack.compute_temperature_features",
			Description:   "Design matrix empty, compute_temperature_features failed",
			Data:          map[string]any{"temperature_data": map[string]any{"n": temps.Len()}},
		})
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"predicted usage per day model",
		slog.String("modelType", string(c.ModelType)),
		slog.Int("periods", n),
		slog.Int("predicted", predicted),
	)
	return pred, nil
}
