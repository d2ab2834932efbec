package savings

import (
	"math"
	"time"

	"github.com/raterudder/eemeter/pkg/metrics"
	"github.com/raterudder/eemeter/pkg/types"
)

// ErrorBands maps a band name to its value in usage units.
type ErrorBands map[string]float64

const (
	FSUErrorBand          = "FSU Error Band"
	OLSErrorBand          = "OLS Error Band"
	OLSErrorBandModel     = "OLS Error Band: Model Error"
	OLSErrorBandNoise     = "OLS Error Band: Noise"
	FSUErrorBandBaseline  = "FSU Error Band: Baseline"
	FSUErrorBandReporting = "FSU Error Band: Reporting"
)

// CombineFSU combines two independent fractional savings uncertainties.
func CombineFSU(baseline, reporting float64) float64 {
	return math.Sqrt(baseline*baseline + reporting*reporting)
}

// baseStats are the baseline fit quantities shared by the band formulas.
type baseStats struct {
	obs      float64
	avg      float64
	variance float64
	rmseAdj  float64
	nPrime   float64
	tStat    float64
}

// newBaseStats returns false when any band would divide by zero or the
// t-statistic is undefined.
func newBaseStats(m metrics.ModelMetrics, confidenceLevel float64) (baseStats, bool) {
	s := baseStats{
		obs:      float64(m.ObservedLength),
		avg:      m.ObservedMean,
		variance: m.ObservedVariance,
		rmseAdj:  m.RMSEAdj,
	}
	rho := m.AutocorrResid
	dof := s.obs - float64(m.NumParameters)
	if s.obs == 0 || dof <= 0 || s.avg == 0 || math.IsNaN(s.avg) || math.IsNaN(s.rmseAdj) {
		return s, false
	}
	if math.IsNaN(rho) || rho >= 1 || rho <= -1 {
		return s, false
	}
	s.nPrime = s.obs * (1 - rho) / (1 + rho)
	s.tStat = metrics.TQuantile(1-(1-confidenceLevel)/2, dof)
	if math.IsNaN(s.tStat) {
		return s, false
	}
	return s, true
}

// fsu is the CalTRACK fractional savings uncertainty of a total energy over
// m reporting periods.
func (s baseStats) fsu(interval types.Interval, m, energy float64) float64 {
	a, b, c := -0.00024, 0.03535, 1.00286
	months := m / 30
	if interval == types.IntervalBilling {
		a, b, c = -0.00022, 0.03306, 0.94054
		months = m
	}
	return energy * s.tStat * (a*months*months + b*months + c) * (s.rmseAdj / s.avg) *
		math.Sqrt((s.obs/s.nPrime)*(1+2/s.nPrime)/m)
}

func meteredErrorBands(m metrics.ModelMetrics, interval types.Interval, res *MeteredResult, usable []int, confidenceLevel float64) ErrorBands {
	if len(usable) < 2 {
		return nil
	}
	s, ok := newBaseStats(m, confidenceLevel)
	if !ok || s.variance == 0 || math.IsNaN(s.variance) {
		return nil
	}
	index := make([]time.Time, 0, len(usable))
	var observed, energy float64
	for _, i := range usable {
		index = append(index, res.Index[i])
		observed += res.ReportingObserved[i]
		energy += res.CounterfactualUsage[i]
	}
	if interval == types.IntervalBilling {
		// the period of the last usable row ends at the next timestamp
		last := usable[len(usable)-1]
		if last+1 < len(res.Index) {
			index = append(index, res.Index[last+1])
		}
	}
	periods := reportingPeriods(interval, index, len(usable))
	if periods == 0 {
		return nil
	}
	postAvg := observed / float64(len(usable))

	modelErr := s.tStat * s.rmseAdj * periods / math.Sqrt(s.obs) *
		math.Sqrt(1+math.Pow(s.avg-postAvg, 2)/s.variance)
	noise := s.tStat * s.rmseAdj * math.Sqrt(periods*s.obs/s.nPrime)
	return ErrorBands{
		FSUErrorBand:      s.fsu(interval, periods, energy),
		OLSErrorBand:      math.Sqrt(modelErr*modelErr + noise*noise),
		OLSErrorBandModel: modelErr,
		OLSErrorBandNoise: noise,
	}
}

// modelFSU computes the fractional savings uncertainty of one model's
// predictions over the usable rows.
func modelFSU(m metrics.ModelMetrics, interval types.Interval, index []time.Time, predicted []float64, confidenceLevel float64) (float64, bool) {
	var usable int
	var energy float64
	for _, v := range predicted {
		if !math.IsNaN(v) {
			usable++
			energy += v
		}
	}
	if usable < 2 {
		return 0, false
	}
	s, ok := newBaseStats(m, confidenceLevel)
	if !ok {
		return 0, false
	}
	periods := reportingPeriods(interval, index, usable)
	if periods == 0 {
		return 0, false
	}
	return s.fsu(interval, periods, energy), true
}
