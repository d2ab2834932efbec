package usageperday

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raterudder/eemeter/pkg/features"
	"github.com/raterudder/eemeter/pkg/samples"
	"github.com/raterudder/eemeter/pkg/types"
)

var start = time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	_ Outcome = Fitted{}
	_ Outcome = Unfit{}
)

func dailyFixture(t *testing.T, noise float64) (types.MeterSeries, types.TemperatureSeries, *features.DesignMatrix) {
	t.Helper()
	p := samples.DefaultProfile()
	p.Noise = noise
	temps := samples.Temperature(start, 24*365, 1)
	meter := samples.DailyMeter(temps, start, 365, p, 2)
	dm, err := features.CreateDailyDesignMatrix(meter, temps, features.DefaultRegion)
	require.NoError(t, err)
	return meter, temps, dm
}

func TestFit(t *testing.T) {
	ctx := context.Background()

	t.Run("ExactRecovery", func(t *testing.T) {
		_, _, dm := dailyFixture(t, 0)
		res, err := Fit(ctx, dm, DefaultOptions())
		require.NoError(t, err)

		assert.Equal(t, ResultSuccess, res.Status)
		assert.Equal(t, MethodName, res.MethodName)
		assert.Equal(t, types.IntervalDaily, res.Interval)
		require.True(t, res.Fitted())
		assert.Len(t, res.Candidates, 1+61+61+61*62/2)

		model, ok := res.Model()
		require.True(t, ok)
		assert.Equal(t, ModelCDDHDD, model.ModelType)
		assert.Equal(t, "meter_value ~ cdd_70 + hdd_60", model.Formula)
		params, ok := model.Params()
		require.True(t, ok)
		assert.Equal(t, 60, params.HeatingBalancePoint)
		assert.Equal(t, 70, params.CoolingBalancePoint)
		assert.InDelta(t, 10, params.Intercept, 1e-6)
		assert.InDelta(t, 1.5, params.BetaHDD, 1e-6)
		assert.InDelta(t, 2, params.BetaCDD, 1e-6)
		assert.InDelta(t, 1, model.RSquaredAdj(), 1e-9)

		f := res.Fit.(Fitted)
		assert.Equal(t, 365, f.AvgsMetrics.MergedLength)
		assert.Equal(t, 2, f.TotalsMetrics.NumParameters)
		assert.InDelta(t, 0, f.TotalsMetrics.RMSE, 1e-6)
	})

	t.Run("NoisyRecoveryIsDeterministic", func(t *testing.T) {
		_, _, dm := dailyFixture(t, 1)
		a, err := Fit(ctx, dm, DefaultOptions())
		require.NoError(t, err)
		b, err := Fit(ctx, dm, DefaultOptions())
		require.NoError(t, err)

		ma, ok := a.Model()
		require.True(t, ok)
		mb, _ := b.Model()
		pa, _ := ma.Params()
		pb, _ := mb.Params()
		assert.Equal(t, pa, pb)
		for i := range a.Candidates {
			assert.Equal(t, a.Candidates[i].Status, b.Candidates[i].Status)
			assert.Equal(t, a.Candidates[i].Formula, b.Candidates[i].Formula)
		}

		assert.Equal(t, ModelCDDHDD, ma.ModelType)
		assert.InDelta(t, 60, pa.HeatingBalancePoint, 3)
		assert.InDelta(t, 70, pa.CoolingBalancePoint, 3)
		assert.InDelta(t, 1.5, pa.BetaHDD, 0.2)
		assert.InDelta(t, 2, pa.BetaCDD, 0.3)

		f := a.Fit.(Fitted)
		assert.False(t, math.IsNaN(f.TotalsMetrics.AutocorrResid))
		assert.Greater(t, f.TotalsMetrics.RMSEAdj, 0.5)
	})

	t.Run("HeatingOnly", func(t *testing.T) {
		_, _, dm := dailyFixture(t, 0)
		opts := DefaultOptions()
		opts.FitCDD = false
		res, err := Fit(ctx, dm, opts)
		require.NoError(t, err)
		assert.Len(t, res.Candidates, 62)
		model, ok := res.Model()
		require.True(t, ok)
		assert.NotEqual(t, ModelCDDHDD, model.ModelType)
		assert.NotEqual(t, ModelCDDOnly, model.ModelType)
	})

	t.Run("NoData", func(t *testing.T) {
		_, _, dm := dailyFixture(t, 0)
		empty := dm.Slice(0, dm.Len())
		empty.MeterValue = make([]float64, dm.Len())
		for i := range empty.MeterValue {
			empty.MeterValue[i] = math.NaN()
		}
		res, err := Fit(ctx, empty, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, ResultNoData, res.Status)
		assert.False(t, res.Fitted())
		require.Len(t, res.Warnings, 1)
		assert.Equal(t, "eemeter.caltrack_usage_per_day.no_data", res.Warnings[0].QualifiedName)

		_, err = res.Predict(ctx, dm.Index, types.TemperatureSeries{}, types.PredictOptions{})
		assert.ErrorIs(t, err, types.ErrMissingModelParameters)
	})

	t.Run("NoQualifiedCandidates", func(t *testing.T) {
		_, _, dm := dailyFixture(t, 0)
		opts := DefaultOptions()
		opts.FitInterceptOnly = false
		opts.MinimumTotalHDD = 1e9
		opts.MinimumTotalCDD = 1e9
		res, err := Fit(ctx, dm, opts)
		require.NoError(t, err)
		assert.Equal(t, ResultNoModel, res.Status)
		assert.False(t, res.Fitted())
		require.Len(t, res.Warnings, 1)
		w := res.Warnings[0]
		assert.Equal(t, "eemeter.caltrack_daily.select_best_candidate.no_candidates", w.QualifiedName)
		assert.Equal(t, 61+61+61*62/2, w.Data["status_count:NOT ATTEMPTED"])
	})

	t.Run("BillingPresetsRequireWeights", func(t *testing.T) {
		_, _, dm := dailyFixture(t, 0)
		opts := DefaultOptions()
		opts.UseBillingPresets = true
		_, err := Fit(ctx, dm, opts)
		assert.ErrorIs(t, err, ErrBillingWeightsRequired)
	})

	t.Run("MissingWeightsColumn", func(t *testing.T) {
		_, _, dm := dailyFixture(t, 0)
		opts := DefaultOptions()
		opts.WeightsCol = "nope"
		_, err := Fit(ctx, dm, opts)
		assert.Error(t, err)
	})

	t.Run("Billing", func(t *testing.T) {
		p := samples.DefaultProfile()
		temps := samples.Temperature(start, 24*731, 1)
		meter := samples.BillingMeter(temps, start, 24, p, 2)
		dm, err := features.CreateBillingDesignMatrix(meter, temps, features.DefaultRegion)
		require.NoError(t, err)

		res, err := Fit(ctx, dm, BillingOptions())
		require.NoError(t, err)
		assert.Equal(t, types.IntervalBilling, res.Interval)
		require.True(t, res.Fitted())
		model, _ := res.Model()
		params, _ := model.Params()
		assert.Greater(t, params.Intercept, 0.0)
		assert.Equal(t, 24, res.Fit.(Fitted).TotalsMetrics.MergedLength)
	})

	t.Run("Cancelled", func(t *testing.T) {
		_, _, dm := dailyFixture(t, 0)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := Fit(cctx, dm, DefaultOptions())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSelectBest(t *testing.T) {
	candidate := func(mt ModelType, status Status, cvrmse float64, hbp, cbp int) CandidateModel {
		return CandidateModel{
			ModelType: mt,
			Status:    status,
			params:    &Params{HeatingBalancePoint: hbp, CoolingBalancePoint: cbp},
			stats:     &FitStats{CVRMSEAdj: cvrmse},
		}
	}

	t.Run("LowestCVRMSE", func(t *testing.T) {
		best, ok := selectBest([]CandidateModel{
			candidate(ModelInterceptOnly, StatusQualified, 0.3, 0, 0),
			candidate(ModelHDDOnly, StatusQualified, 0.1, 60, 0),
			candidate(ModelCDDHDD, StatusDisqualified, 0.01, 55, 70),
		})
		require.True(t, ok)
		assert.Equal(t, ModelHDDOnly, best.ModelType)
	})

	t.Run("TiesPreferMoreTermsThenLowerBalancePoints", func(t *testing.T) {
		best, ok := selectBest([]CandidateModel{
			candidate(ModelHDDOnly, StatusQualified, 0.1, 58, 0),
			candidate(ModelCDDHDD, StatusQualified, 0.1, 62, 70),
			candidate(ModelCDDHDD, StatusQualified, 0.1, 60, 72),
			candidate(ModelCDDHDD, StatusQualified, 0.1, 60, 71),
		})
		require.True(t, ok)
		p, _ := best.Params()
		assert.Equal(t, ModelCDDHDD, best.ModelType)
		assert.Equal(t, 60, p.HeatingBalancePoint)
		assert.Equal(t, 71, p.CoolingBalancePoint)
	})

	t.Run("NaNLoses", func(t *testing.T) {
		best, ok := selectBest([]CandidateModel{
			candidate(ModelCDDHDD, StatusQualified, math.NaN(), 60, 70),
			candidate(ModelInterceptOnly, StatusQualified, 0.5, 0, 0),
		})
		require.True(t, ok)
		assert.Equal(t, ModelInterceptOnly, best.ModelType)
	})

	t.Run("None", func(t *testing.T) {
		_, ok := selectBest([]CandidateModel{candidate(ModelHDDOnly, StatusNotAttempted, 0.1, 60, 0)})
		assert.False(t, ok)
	})
}

func TestEvaluate(t *testing.T) {
	data := fitData{
		y:          []float64{5, 4, 3, 2, 1},
		periodDays: []float64{1, 1, 1, 1, 1},
		hdd:        map[int][]float64{60: {0, 5, 10, 15, 20}},
	}
	opts := DefaultOptions()
	opts.MinimumNonZeroHDD = 0

	c := evaluate(candidateSpec{modelType: ModelHDDOnly, hbp: 60}, data, opts)
	assert.Equal(t, StatusDisqualified, c.Status)
	var names []string
	for _, w := range c.Warnings {
		names = append(names, w.QualifiedName)
	}
	assert.Contains(t, names, "eemeter.caltrack_daily.hdd_only.beta_hdd_negative")
	_, ok := c.Params()
	assert.True(t, ok)

	stats, ok := c.Stats()
	require.True(t, ok)
	require.NotEmpty(t, stats.PValues)
	for name := range stats.PValues {
		stats.PValues[name] = -1
		stats.TValues[name] = -1
	}
	again, _ := c.Stats()
	for name, p := range again.PValues {
		assert.NotEqual(t, -1.0, p, name)
		assert.NotEqual(t, -1.0, again.TValues[name], name)
	}

	opts.MinimumTotalHDD = 100
	c = evaluate(candidateSpec{modelType: ModelHDDOnly, hbp: 60}, data, opts)
	assert.Equal(t, StatusNotAttempted, c.Status)
	assert.Equal(t, "eemeter.caltrack_daily.hdd_only.total_hdd_too_low", c.Warnings[0].QualifiedName)
	_, ok = c.Params()
	assert.False(t, ok)

	opts = DefaultOptions()
	opts.MinimumNonZeroHDD = 0
	opts.MinimumTotalHDD = 0
	constant := fitData{y: data.y, periodDays: data.periodDays, hdd: map[int][]float64{60: {3, 3, 3, 3, 3}}}
	c = evaluate(candidateSpec{modelType: ModelHDDOnly, hbp: 60}, constant, opts)
	assert.Equal(t, StatusNotAttempted, c.Status)
	assert.Equal(t, "eemeter.caltrack_daily.hdd_only.degree_day_variance_zero", c.Warnings[0].QualifiedName)
}

func TestPredict(t *testing.T) {
	ctx := context.Background()
	meter, temps, dm := dailyFixture(t, 0)
	res, err := Fit(ctx, dm, DefaultOptions())
	require.NoError(t, err)

	pred, err := res.Predict(ctx, meter.Timestamps, temps, types.PredictOptions{WithDisaggregated: true})
	require.NoError(t, err)
	require.True(t, pred.Disaggregated())
	require.Len(t, pred.PredictedUsage, meter.Len())
	for i := 0; i < 30; i++ {
		assert.InDelta(t, meter.Values[i], pred.PredictedUsage[i], 1e-6)
		assert.Equal(t, pred.PredictedUsage[i], pred.BaseLoad[i]+pred.HeatingLoad[i]+pred.CoolingLoad[i])
		assert.InDelta(t, 10, pred.BaseLoad[i], 1e-6)
	}
	assert.True(t, math.IsNaN(pred.PredictedUsage[meter.Len()-1]))
	assert.Empty(t, pred.Warnings)

	t.Run("NoTemperature", func(t *testing.T) {
		pred, err := res.Predict(ctx, meter.Timestamps[:5], types.TemperatureSeries{}, types.PredictOptions{})
		require.NoError(t, err)
		for _, v := range pred.PredictedUsage {
			assert.True(t, math.IsNaN(v))
		}
		require.Len(t, pred.Warnings, 1)
		assert.Equal(t, "eemeter.caltrack.compute_temperature_features", pred.Warnings[0].QualifiedName)
	})

	t.Run("HourlyMethod", func(t *testing.T) {
		pred, err := res.Predict(ctx, meter.Timestamps[:5], temps, types.PredictOptions{DegreeDayMethod: types.DegreeDayMethodHourly})
		require.NoError(t, err)
		assert.False(t, math.IsNaN(pred.PredictedUsage[0]))
		assert.False(t, pred.Disaggregated())
	})

	t.Run("WithoutParams", func(t *testing.T) {
		unfit := res.WithoutParams()
		assert.False(t, unfit.Fitted())
		assert.True(t, res.Fitted())
		_, err := unfit.Predict(ctx, meter.Timestamps, temps, types.PredictOptions{})
		assert.ErrorIs(t, err, types.ErrMissingModelParameters)
	})
}

func TestJSON(t *testing.T) {
	ctx := context.Background()
	_, _, dm := dailyFixture(t, 1)
	res, err := Fit(ctx, dm, DefaultOptions())
	require.NoError(t, err)

	b, err := res.JSON(true)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	for _, key := range []string{"status", "method_name", "interval", "model", "r_squared_adj", "warnings", "metadata", "settings", "totals_metrics", "avgs_metrics", "candidates"} {
		assert.Contains(t, doc, key)
	}
	model := doc["model"].(map[string]any)
	assert.Equal(t, "cdd_hdd", model["model_type"])
	assert.Contains(t, model["model_params"], "beta_hdd")

	t.Run("RoundTrip", func(t *testing.T) {
		back, err := ResultFromJSON(b)
		require.NoError(t, err)
		require.True(t, back.Fitted())
		orig, _ := res.Model()
		got, _ := back.Model()
		op, _ := orig.Params()
		gp, _ := got.Params()
		assert.Equal(t, op, gp)
		assert.Len(t, back.Candidates, len(res.Candidates))
		assert.InDelta(t, res.Fit.(Fitted).TotalsMetrics.RMSEAdj, back.Fit.(Fitted).TotalsMetrics.RMSEAdj, 1e-12)
	})

	t.Run("MissingParamsIsUnfit", func(t *testing.T) {
		delete(model, "model_params")
		stripped, err := json.Marshal(doc)
		require.NoError(t, err)
		back, err := ResultFromJSON(stripped)
		require.NoError(t, err)
		assert.False(t, back.Fitted())
	})

	t.Run("MissingMetricsAreUndefined", func(t *testing.T) {
		raw := `{"status": "SUCCESS", "model": {"model_type": "intercept_only", "formula": "meter_value ~ 1", "status": "QUALIFIED", "model_params": {"intercept": 3}}}`
		back, err := ResultFromJSON([]byte(raw))
		require.NoError(t, err)
		require.True(t, back.Fitted())
		f := back.Fit.(Fitted)
		assert.True(t, math.IsNaN(f.TotalsMetrics.AutocorrResid))
		assert.True(t, math.IsNaN(f.TotalsMetrics.RMSEAdj))
	})

	t.Run("WithoutCandidates", func(t *testing.T) {
		b, err := json.Marshal(res)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(b), `"candidates":null`))
	})
}

func TestLoadOptions(t *testing.T) {
	opts, err := LoadOptions(strings.NewReader("fit_cdd: false\nminimum_total_hdd: 30\nweights_col: n_days_kept\n"))
	require.NoError(t, err)
	assert.False(t, opts.FitCDD)
	assert.Equal(t, 30.0, opts.MinimumTotalHDD)
	assert.Equal(t, "n_days_kept", opts.WeightsCol)
	assert.Equal(t, 10, opts.MinimumNonZeroHDD)
	assert.True(t, opts.FitCDDHDD)

	opts, err = LoadOptions(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), opts)

	_, err = LoadOptions(strings.NewReader("fit_cdd: [1"))
	assert.Error(t, err)
}
