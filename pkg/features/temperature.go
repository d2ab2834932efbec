package features

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/raterudder/eemeter/pkg/types"
)

var ErrHourlyIndexDailyMethod = errors.New("hourly index requires the hourly degree day method")

// TemperatureOptions controls ComputeTemperatureFeatures.
type TemperatureOptions struct {
	HeatingBalancePoints []int
	CoolingBalancePoints []int
	DegreeDayMethod      types.DegreeDayMethod

	// DataQuality adds temperature_null and temperature_not_null.
	DataQuality bool
	// PeriodTotals reports degree days summed over each period instead of
	// averaged per kept day.
	PeriodTotals bool

	// PercentHourlyCoveragePerDay is the fraction of hours a day needs for
	// it to be kept.
	PercentHourlyCoveragePerDay float64
	// PercentHourlyCoveragePerPeriod is the fraction of hours (hourly method)
	// or days (billing periods) a multi-day period needs.
	PercentHourlyCoveragePerPeriod float64

	// Tolerance is the longest period that is featurized. Zero disables
	// the check.
	Tolerance time.Duration
	// Interval overrides the interval inferred from the index.
	Interval types.Interval
}

// DefaultTemperatureOptions returns options for the given balance points
// using the daily method and mean daily values.
func DefaultTemperatureOptions(heating, cooling []int) TemperatureOptions {
	return TemperatureOptions{
		HeatingBalancePoints:           heating,
		CoolingBalancePoints:           cooling,
		DegreeDayMethod:                types.DegreeDayMethodDaily,
		PercentHourlyCoveragePerDay:    0.5,
		PercentHourlyCoveragePerPeriod: 0.9,
	}
}

// BalancePointRange returns the inclusive integer range [lo, hi].
func BalancePointRange(lo, hi int) []int {
	if hi < lo {
		return nil
	}
	out := make([]int, 0, hi-lo+1)
	for bp := lo; bp <= hi; bp++ {
		out = append(out, bp)
	}
	return out
}

// ComputeTemperatureFeatures computes degree days and temperature coverage
// for each period of index. For daily and billing indexes the final
// timestamp closes the previous period and its row is entirely NaN. Periods
// without sufficient temperature coverage have NaN degree days.
func ComputeTemperatureFeatures(index []time.Time, temps types.TemperatureSeries, opts TemperatureOptions) (*DesignMatrix, error) {
	interval := opts.Interval
	if interval == "" {
		interval = types.InferInterval(index)
	}
	method := opts.DegreeDayMethod
	if method == "" {
		method = types.DegreeDayMethodDaily
	}
	switch method {
	case types.DegreeDayMethodDaily:
		if interval == types.IntervalHourly {
			return nil, ErrHourlyIndexDailyMethod
		}
	case types.DegreeDayMethodHourly:
	default:
		return nil, fmt.Errorf("unknown degree day method %q", method)
	}

	n := len(index)
	dm := &DesignMatrix{
		Index:           index,
		Interval:        interval,
		HDD:             make(map[int][]float64, len(opts.HeatingBalancePoints)),
		CDD:             make(map[int][]float64, len(opts.CoolingBalancePoints)),
		NDaysKept:       make([]float64, n),
		NDaysDropped:    make([]float64, n),
		NHoursKept:      make([]float64, n),
		NHoursDropped:   make([]float64, n),
		TemperatureMean: make([]float64, n),
	}
	for _, bp := range opts.HeatingBalancePoints {
		dm.HDD[bp] = make([]float64, n)
	}
	for _, bp := range opts.CoolingBalancePoints {
		dm.CDD[bp] = make([]float64, n)
	}
	if opts.DataQuality {
		dm.TemperatureNull = make([]float64, n)
		dm.TemperatureNotNull = make([]float64, n)
	}

	for i, start := range index {
		var end time.Time
		switch {
		case interval == types.IntervalHourly:
			end = start.Add(time.Hour)
		case i == n-1:
			dm.setRowNull(i)
			continue
		default:
			end = index[i+1]
		}
		if method == types.DegreeDayMethodHourly {
			dm.hourlyRow(i, start, end, temps, opts)
		} else {
			dm.dailyRow(i, start, end, temps, opts)
		}
		if opts.Tolerance > 0 && end.Sub(start) > opts.Tolerance {
			dm.setDegreeDaysNull(i)
		}
	}
	return dm, nil
}

func (d *DesignMatrix) setRowNull(i int) {
	nan := math.NaN()
	d.setDegreeDaysNull(i)
	d.NDaysKept[i] = nan
	d.NDaysDropped[i] = nan
	d.NHoursKept[i] = nan
	d.NHoursDropped[i] = nan
	d.TemperatureMean[i] = nan
	if d.TemperatureNull != nil {
		d.TemperatureNull[i] = nan
		d.TemperatureNotNull[i] = nan
	}
}

func (d *DesignMatrix) setDegreeDaysNull(i int) {
	for _, col := range d.HDD {
		col[i] = math.NaN()
	}
	for _, col := range d.CDD {
		col[i] = math.NaN()
	}
}

type readingStats struct {
	kept  int
	sum   float64
	temps []float64
}

func collect(temps types.TemperatureSeries, start, end time.Time) readingStats {
	lo, hi := temps.Range(start, end)
	var s readingStats
	for _, v := range temps.Values[lo:hi] {
		if math.IsNaN(v) {
			continue
		}
		s.kept++
		s.sum += v
		s.temps = append(s.temps, v)
	}
	return s
}

func (s readingStats) mean() float64 {
	if s.kept == 0 {
		return math.NaN()
	}
	return s.sum / float64(s.kept)
}

func (d *DesignMatrix) hourlyRow(i int, start, end time.Time, temps types.TemperatureSeries, opts TemperatureOptions) {
	expected := end.Sub(start).Hours()
	s := collect(temps, start, end)
	kept := math.Min(float64(s.kept), expected)
	dropped := expected - kept

	d.NHoursKept[i] = kept
	d.NHoursDropped[i] = dropped
	d.NDaysKept[i] = kept / 24
	d.NDaysDropped[i] = dropped / 24
	d.TemperatureMean[i] = s.mean()
	if d.TemperatureNull != nil {
		d.TemperatureNotNull[i] = kept
		d.TemperatureNull[i] = dropped
	}

	threshold := opts.PercentHourlyCoveragePerPeriod
	switch {
	case d.Interval == types.IntervalHourly:
		threshold = 0
	case expected <= 24:
		threshold = opts.PercentHourlyCoveragePerDay
	}
	if s.kept == 0 || kept/expected < threshold {
		d.setDegreeDaysNull(i)
		return
	}

	divisor := 24.0
	if !opts.PeriodTotals {
		divisor = kept
	}
	for bp, col := range d.HDD {
		var total float64
		for _, t := range s.temps {
			total += math.Max(float64(bp)-t, 0)
		}
		col[i] = total / divisor
	}
	for bp, col := range d.CDD {
		var total float64
		for _, t := range s.temps {
			total += math.Max(t-float64(bp), 0)
		}
		col[i] = total / divisor
	}
}

func (d *DesignMatrix) dailyRow(i int, start, end time.Time, temps types.TemperatureSeries, opts TemperatureOptions) {
	var keptDays, droppedDays float64
	var keptHours, totalHours, tempSum float64
	hdd := make(map[int]float64, len(d.HDD))
	cdd := make(map[int]float64, len(d.CDD))

	for dayStart := start; dayStart.Before(end); dayStart = dayStart.Add(24 * time.Hour) {
		dayEnd := dayStart.Add(24 * time.Hour)
		if dayEnd.After(end) {
			dayEnd = end
		}
		hours := dayEnd.Sub(dayStart).Hours()
		frac := hours / 24
		s := collect(temps, dayStart, dayEnd)
		totalHours += hours
		keptHours += math.Min(float64(s.kept), hours)
		tempSum += s.sum

		if s.kept == 0 || float64(s.kept)/hours < opts.PercentHourlyCoveragePerDay {
			droppedDays += frac
			continue
		}
		keptDays += frac
		mean := s.mean()
		for bp := range d.HDD {
			hdd[bp] += math.Max(float64(bp)-mean, 0) * frac
		}
		for bp := range d.CDD {
			cdd[bp] += math.Max(mean-float64(bp), 0) * frac
		}
	}

	d.NDaysKept[i] = keptDays
	d.NDaysDropped[i] = droppedDays
	d.NHoursKept[i] = keptHours
	d.NHoursDropped[i] = totalHours - keptHours
	d.TemperatureMean[i] = math.NaN()
	if keptHours > 0 {
		d.TemperatureMean[i] = tempSum / keptHours
	}
	if d.TemperatureNull != nil {
		d.TemperatureNotNull[i] = keptHours
		d.TemperatureNull[i] = totalHours - keptHours
	}

	if keptDays == 0 {
		d.setDegreeDaysNull(i)
		return
	}
	if d.Interval == types.IntervalBilling && keptDays/(keptDays+droppedDays) < opts.PercentHourlyCoveragePerPeriod {
		d.setDegreeDaysNull(i)
		return
	}
	divisor := 1.0
	if !opts.PeriodTotals {
		divisor = keptDays
	}
	for bp, col := range d.HDD {
		col[i] = hdd[bp] / divisor
	}
	for bp, col := range d.CDD {
		col[i] = cdd[bp] / divisor
	}
}
