// Package usageperday fits CalTRACK usage per day models to daily and
// billing data.
package usageperday

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/raterudder/eemeter/pkg/features"
	"github.com/raterudder/eemeter/pkg/log"
	"github.com/raterudder/eemeter/pkg/metrics"
	"github.com/raterudder/eemeter/pkg/types"
)

// MethodName identifies results of this package.
const MethodName = "caltrack_usage_per_day"

// Fit sweeps every candidate model over the balance points present in dm
// and selects the best qualified candidate. Lack of data or of a qualified
// candidate is reported through the result, not as an error.
func Fit(ctx context.Context, dm *features.DesignMatrix, opts Options) (*Result, error) {
	opts, err := opts.resolve()
	if err != nil {
		return nil, err
	}
	if dm.MeterValue == nil {
		return nil, errors.New("design matrix has no meter_value column")
	}
	var weights []float64
	if opts.WeightsCol != "" {
		col, ok := dm.Column(opts.WeightsCol)
		if !ok {
			return nil, fmt.Errorf("weights column %s not found in design matrix", opts.WeightsCol)
		}
		weights = col
	}

	interval := types.IntervalDaily
	if opts.UseBillingPresets {
		interval = types.IntervalBilling
	}
	result := &Result{
		MethodName: MethodName,
		Interval:   interval,
		Settings:   opts,
		Metadata:   map[string]any{},
	}

	data, days := dropNulls(dm, weights)
	if data.len() == 0 {
		result.Status = ResultNoData
		result.Fit = Unfit{Reason: "no data"}
		result.Warnings = []types.Warning{{
			QualifiedName: "eemeter.caltrack_usage_per_day.no_data",
			Description:   "No data available. Cannot fit model.",
			Data:          map[string]any{},
		}}
		log.Ctx(ctx).DebugContext(ctx, "no data to fit usage per day model")
		return result, nil
	}

	specs := generateCandidates(dm.HeatingBalancePoints(), dm.CoolingBalancePoints(), opts)
	candidates := make([]CandidateModel, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, s := range specs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			candidates[i] = evaluate(s, data, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	result.Candidates = candidates

	best, ok := selectBest(candidates)
	if !ok {
		counts := map[string]any{}
		for _, c := range candidates {
			key := "status_count:" + string(c.Status)
			n, _ := counts[key].(int)
			counts[key] = n + 1
		}
		result.Status = ResultNoModel
		result.Fit = Unfit{Reason: "no qualified candidates"}
		result.Warnings = []types.Warning{{
			QualifiedName: "eemeter.caltrack_daily.select_best_candidate.no_candidates",
			Description:   "No qualified model candidates available.",
			Data:          counts,
		}}
		log.Ctx(ctx).DebugContext(ctx, "no qualified usage per day candidates", slog.Int("candidates", len(candidates)))
		return result, nil
	}

	params, _ := best.Params()
	observed := data.y
	predicted := make([]float64, data.len())
	observedTotals := make([]float64, data.len())
	predictedTotals := make([]float64, data.len())
	for i := range predicted {
		predicted[i] = params.Intercept
		if best.ModelType.hasHDD() {
			predicted[i] += params.BetaHDD * data.hdd[params.HeatingBalancePoint][i]
		}
		if best.ModelType.hasCDD() {
			predicted[i] += params.BetaCDD * data.cdd[params.CoolingBalancePoint][i]
		}
		observedTotals[i] = observed[i] * days[i]
		predictedTotals[i] = predicted[i] * days[i]
	}
	result.Status = ResultSuccess
	result.Fit = Fitted{
		Model:         best,
		AvgsMetrics:   metrics.Compute(observed, predicted, best.NumParameters(), metrics.DefaultConfidenceLevel),
		TotalsMetrics: metrics.Compute(observedTotals, predictedTotals, best.NumParameters(), metrics.DefaultConfidenceLevel),
	}
	result.Warnings = best.Warnings
	log.Ctx(ctx).DebugContext(
		ctx,
		"fit usage per day model",
		slog.String("modelType", string(best.ModelType)),
		slog.String("formula", best.Formula),
		slog.Int("candidates", len(candidates)),
		slog.Int("rows", data.len()),
	)
	return result, nil
}

// dropNulls keeps the rows where the meter value, weight, period length and
// every degree day column are present. It also returns the period length in
// days of each kept row.
func dropNulls(dm *features.DesignMatrix, weights []float64) (fitData, []float64) {
	allDays := types.DayCounts(dm.Index)
	data := fitData{
		hdd: make(map[int][]float64, len(dm.HDD)),
		cdd: make(map[int][]float64, len(dm.CDD)),
	}
	if weights != nil {
		data.weights = []float64{}
	}
	var days []float64
	for i := range dm.Index {
		if math.IsNaN(dm.MeterValue[i]) || math.IsNaN(allDays[i]) {
			continue
		}
		if weights != nil && math.IsNaN(weights[i]) {
			continue
		}
		if !allPresent(dm.HDD, i) || !allPresent(dm.CDD, i) {
			continue
		}
		data.y = append(data.y, dm.MeterValue[i])
		days = append(days, allDays[i])
		if weights != nil {
			data.weights = append(data.weights, weights[i])
			data.periodDays = append(data.periodDays, weights[i])
		} else {
			data.periodDays = append(data.periodDays, 1)
		}
		for bp, col := range dm.HDD {
			data.hdd[bp] = append(data.hdd[bp], col[i])
		}
		for bp, col := range dm.CDD {
			data.cdd[bp] = append(data.cdd[bp], col[i])
		}
	}
	return data, days
}

func allPresent(cols map[int][]float64, i int) bool {
	for _, col := range cols {
		if math.IsNaN(col[i]) {
			return false
		}
	}
	return true
}

// selectBest returns the qualified candidate with the lowest adjusted
// CVRMSE, which is the candidate with the highest adjusted R-squared. Ties
// prefer more terms, then the lower heating and cooling balance points.
func selectBest(candidates []CandidateModel) (CandidateModel, bool) {
	var best CandidateModel
	found := false
	for _, c := range candidates {
		if c.Status != StatusQualified {
			continue
		}
		if !found || better(c, best) {
			best, found = c, true
		}
	}
	return best, found
}

func score(c CandidateModel) float64 {
	s, ok := c.Stats()
	if !ok || math.IsNaN(s.CVRMSEAdj) {
		return math.Inf(1)
	}
	return s.CVRMSEAdj
}

func better(a, b CandidateModel) bool {
	sa, sb := score(a), score(b)
	if sa != sb {
		return sa < sb
	}
	if ra, rb := a.ModelType.termRank(), b.ModelType.termRank(); ra != rb {
		return ra > rb
	}
	pa, _ := a.Params()
	pb, _ := b.Params()
	if pa.HeatingBalancePoint != pb.HeatingBalancePoint {
		return pa.HeatingBalancePoint < pb.HeatingBalancePoint
	}
	return pa.CoolingBalancePoint < pb.CoolingBalancePoint
}
