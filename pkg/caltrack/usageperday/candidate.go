package usageperday

import (
	"fmt"
	"maps"
	"math"

	"github.com/raterudder/eemeter/pkg/features"
	"github.com/raterudder/eemeter/pkg/metrics"
	"github.com/raterudder/eemeter/pkg/regression"
	"github.com/raterudder/eemeter/pkg/types"
)

// ModelType names the terms of a candidate.
type ModelType string

const (
	ModelInterceptOnly ModelType = "intercept_only"
	ModelHDDOnly       ModelType = "hdd_only"
	ModelCDDOnly       ModelType = "cdd_only"
	ModelCDDHDD        ModelType = "cdd_hdd"
)

func (m ModelType) hasHDD() bool {
	return m == ModelHDDOnly || m == ModelCDDHDD
}

func (m ModelType) hasCDD() bool {
	return m == ModelCDDOnly || m == ModelCDDHDD
}

// numParameters is the number of degree day terms.
func (m ModelType) numParameters() int {
	switch m {
	case ModelCDDHDD:
		return 2
	case ModelHDDOnly, ModelCDDOnly:
		return 1
	default:
		return 0
	}
}

// termRank orders model types for tie breaking. Higher is preferred.
func (m ModelType) termRank() int {
	switch m {
	case ModelCDDHDD:
		return 3
	case ModelHDDOnly:
		return 2
	case ModelCDDOnly:
		return 1
	default:
		return 0
	}
}

// Status is the qualification outcome of a candidate.
type Status string

const (
	StatusQualified    Status = "QUALIFIED"
	StatusDisqualified Status = "DISQUALIFIED"
	StatusNotAttempted Status = "NOT ATTEMPTED"
	StatusError        Status = "ERROR"
)

// Params are the fitted coefficients. Balance points and slopes are only
// meaningful for the terms of the model type.
type Params struct {
	Intercept           float64
	BetaHDD             float64
	BetaCDD             float64
	HeatingBalancePoint int
	CoolingBalancePoint int
}

// FitStats are regression statistics of a fitted candidate.
type FitStats struct {
	NObs          int
	RSquared      float64
	RSquaredAdj   float64
	CVRMSE        float64
	CVRMSEAdj     float64
	AutocorrResid float64
	TValues       map[string]float64
	PValues       map[string]float64
}

// CandidateModel is one evaluated regression. Fitted coefficients are only
// reachable through Params so they cannot be changed after the fit.
type CandidateModel struct {
	ModelType ModelType
	Formula   string
	Status    Status
	Warnings  []types.Warning

	params *Params
	stats  *FitStats
}

// Params returns the fitted coefficients, if the candidate was fit.
func (c CandidateModel) Params() (Params, bool) {
	if c.params == nil {
		return Params{}, false
	}
	return *c.params, true
}

// Stats returns a copy of the regression statistics, if the candidate was
// fit.
func (c CandidateModel) Stats() (FitStats, bool) {
	if c.stats == nil {
		return FitStats{}, false
	}
	s := *c.stats
	s.TValues = maps.Clone(c.stats.TValues)
	s.PValues = maps.Clone(c.stats.PValues)
	return s, true
}

// RSquaredAdj returns the adjusted R-squared of the fit or NaN.
func (c CandidateModel) RSquaredAdj() float64 {
	if c.stats == nil {
		return math.NaN()
	}
	return c.stats.RSquaredAdj
}

// NumParameters returns the number of degree day terms.
func (c CandidateModel) NumParameters() int {
	return c.ModelType.numParameters()
}

type candidateSpec struct {
	modelType ModelType
	hbp, cbp  int
}

func (s candidateSpec) formula() string {
	switch s.modelType {
	case ModelHDDOnly:
		return "meter_value ~ " + features.HDDColumn(s.hbp)
	case ModelCDDOnly:
		return "meter_value ~ " + features.CDDColumn(s.cbp)
	case ModelCDDHDD:
		return "meter_value ~ " + features.CDDColumn(s.cbp) + " + " + features.HDDColumn(s.hbp)
	default:
		return "meter_value ~ 1"
	}
}

// generateCandidates lists every candidate in a fixed order.
func generateCandidates(heating, cooling []int, opts Options) []candidateSpec {
	var specs []candidateSpec
	if opts.FitInterceptOnly {
		specs = append(specs, candidateSpec{modelType: ModelInterceptOnly})
	}
	if opts.FitHDDOnly {
		for _, hbp := range heating {
			specs = append(specs, candidateSpec{modelType: ModelHDDOnly, hbp: hbp})
		}
	}
	if !opts.FitCDD {
		return specs
	}
	if opts.FitCDDOnly {
		for _, cbp := range cooling {
			specs = append(specs, candidateSpec{modelType: ModelCDDOnly, cbp: cbp})
		}
	}
	if opts.FitCDDHDD {
		for _, cbp := range cooling {
			for _, hbp := range heating {
				if hbp > cbp {
					continue
				}
				specs = append(specs, candidateSpec{modelType: ModelCDDHDD, hbp: hbp, cbp: cbp})
			}
		}
	}
	return specs
}

// fitData is the null-free subset of a design matrix.
type fitData struct {
	y       []float64
	weights []float64
	// periodDays scales per-day degree days to period totals.
	periodDays []float64
	hdd        map[int][]float64
	cdd        map[int][]float64
}

func (d fitData) len() int {
	return len(d.y)
}

func (s candidateSpec) warningName(suffix string) string {
	return fmt.Sprintf("eemeter.caltrack_daily.%s.%s", s.modelType, suffix)
}

// checkDegreeDays returns warnings when a degree day column falls short of
// the minimum total or non-zero count.
func (s candidateSpec) checkDegreeDays(col, periodDays []float64, kind string, bp int, minNonZero int, minTotal float64) []types.Warning {
	var total float64
	var nonZero int
	for i, v := range col {
		total += v * periodDays[i]
		if v > 0 {
			nonZero++
		}
	}
	var warnings []types.Warning
	if nonZero < minNonZero {
		warnings = append(warnings, types.Warning{
			QualifiedName: s.warningName("too_few_non_zero_" + kind),
			Description:   fmt.Sprintf("Number of non-zero daily %s values below accepted minimum. Candidate fit not attempted.", kind),
			Data: map[string]any{
				"n_non_zero_" + kind:       nonZero,
				"minimum_non_zero_" + kind: minNonZero,
				kind + "_balance_point":    bp,
			},
		})
	}
	if total < minTotal {
		warnings = append(warnings, types.Warning{
			QualifiedName: s.warningName("total_" + kind + "_too_low"),
			Description:   fmt.Sprintf("Total %s below accepted minimum. Candidate fit not attempted.", kind),
			Data: map[string]any{
				"total_" + kind:              total,
				"total_" + kind + "_minimum": minTotal,
				kind + "_balance_point":      bp,
			},
		})
	}
	return warnings
}

func constantColumn(col []float64) bool {
	for _, v := range col[1:] {
		if v != col[0] {
			return false
		}
	}
	return true
}

// evaluate fits and qualifies a single candidate.
func evaluate(s candidateSpec, data fitData, opts Options) CandidateModel {
	c := CandidateModel{ModelType: s.modelType, Formula: s.formula()}

	design := regression.Design{
		Names:       []string{"Intercept"},
		Columns:     [][]float64{ones(data.len())},
		HasConstant: true,
	}
	if s.modelType.hasCDD() {
		col := data.cdd[s.cbp]
		c.Warnings = append(c.Warnings, s.checkDegreeDays(col, data.periodDays, "cdd", s.cbp, opts.MinimumNonZeroCDD, opts.MinimumTotalCDD)...)
		design.Names = append(design.Names, features.CDDColumn(s.cbp))
		design.Columns = append(design.Columns, col)
	}
	if s.modelType.hasHDD() {
		col := data.hdd[s.hbp]
		c.Warnings = append(c.Warnings, s.checkDegreeDays(col, data.periodDays, "hdd", s.hbp, opts.MinimumNonZeroHDD, opts.MinimumTotalHDD)...)
		design.Names = append(design.Names, features.HDDColumn(s.hbp))
		design.Columns = append(design.Columns, col)
	}
	if len(c.Warnings) > 0 {
		c.Status = StatusNotAttempted
		return c
	}

	if s.modelType != ModelInterceptOnly {
		if data.len() <= len(design.Columns) {
			c.Status = StatusNotAttempted
			c.Warnings = append(c.Warnings, types.Warning{
				QualifiedName: s.warningName("too_few_rows"),
				Description:   "Too few rows to fit degree day terms. Candidate fit not attempted.",
				Data:          map[string]any{"n_rows": data.len(), "n_terms": len(design.Columns)},
			})
			return c
		}
		for i, col := range design.Columns[1:] {
			if constantColumn(col) {
				c.Status = StatusNotAttempted
				c.Warnings = append(c.Warnings, types.Warning{
					QualifiedName: s.warningName("degree_day_variance_zero"),
					Description:   "Degree day values do not vary. Candidate fit not attempted.",
					Data:          map[string]any{"column": design.Names[i+1]},
				})
				return c
			}
		}
	}

	res, err := regression.WLS(design, data.y, data.weights)
	if err != nil {
		c.Status = StatusError
		c.Warnings = append(c.Warnings, types.Warning{
			QualifiedName: s.warningName("model_results"),
			Description:   "Error encountered fitting weighted least squares. Candidate model rejected.",
			Data:          map[string]any{"traceback": err.Error()},
		})
		return c
	}

	params := Params{Intercept: res.Params[0]}
	paramData := map[string]any{"intercept": params.Intercept}
	var slopes []slopeCheck
	if s.modelType.hasCDD() {
		params.BetaCDD, _ = res.Param(features.CDDColumn(s.cbp))
		params.CoolingBalancePoint = s.cbp
		paramData["beta_cdd"] = params.BetaCDD
		paramData["cooling_balance_point"] = s.cbp
		p, _ := res.PValue(features.CDDColumn(s.cbp))
		slopes = append(slopes, slopeCheck{"beta_cdd", params.BetaCDD, p, opts.BetaCDDMaximumPValue})
	}
	if s.modelType.hasHDD() {
		params.BetaHDD, _ = res.Param(features.HDDColumn(s.hbp))
		params.HeatingBalancePoint = s.hbp
		paramData["beta_hdd"] = params.BetaHDD
		paramData["heating_balance_point"] = s.hbp
		p, _ := res.PValue(features.HDDColumn(s.hbp))
		slopes = append(slopes, slopeCheck{"beta_hdd", params.BetaHDD, p, opts.BetaHDDMaximumPValue})
	}

	if s.modelType != ModelInterceptOnly && params.Intercept < 0 {
		c.Warnings = append(c.Warnings, negativeWarning(s, "intercept", paramData))
	}
	for _, slope := range slopes {
		if slope.p > slope.maximum {
			data := copyData(paramData)
			data[slope.name+"_p_value"] = slope.p
			data[slope.name+"_maximum_p_value"] = slope.maximum
			c.Warnings = append(c.Warnings, types.Warning{
				QualifiedName: s.warningName(slope.name + "_p_value_too_high"),
				Description:   fmt.Sprintf("Model fit %s p-value is too high. Candidate model rejected.", slope.name),
				Data:          data,
			})
		}
		if slope.beta < 0 {
			c.Warnings = append(c.Warnings, negativeWarning(s, slope.name, paramData))
		}
	}

	c.params = &params
	c.stats = newFitStats(res)
	c.Status = StatusQualified
	if len(c.Warnings) > 0 {
		c.Status = StatusDisqualified
	}
	return c
}

type slopeCheck struct {
	name    string
	beta    float64
	p       float64
	maximum float64
}

func negativeWarning(s candidateSpec, name string, paramData map[string]any) types.Warning {
	return types.Warning{
		QualifiedName: s.warningName(name + "_negative"),
		Description:   fmt.Sprintf("Model fit %s parameter is negative. Candidate model rejected.", name),
		Data:          copyData(paramData),
	}
}

func copyData(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func newFitStats(res *regression.Result) *FitStats {
	stats := &FitStats{
		NObs:        res.NObs,
		RSquared:    res.RSquared,
		RSquaredAdj: res.RSquaredAdj,
		CVRMSE:      math.Sqrt(res.SSR/float64(res.NObs)) / res.WeightedMean,
		CVRMSEAdj:   math.Sqrt(res.Scale) / res.WeightedMean,
		TValues:     make(map[string]float64, len(res.Names)),
		PValues:     make(map[string]float64, len(res.Names)),
	}
	var resid []float64
	for _, r := range res.Resid {
		if !math.IsNaN(r) {
			resid = append(resid, r)
		}
	}
	stats.AutocorrResid = metrics.Autocorrelation(resid, 1)
	for i, name := range res.Names {
		stats.TValues[name] = res.TValues[i]
		stats.PValues[name] = res.PValues[i]
	}
	return stats
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
