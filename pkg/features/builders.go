package features

import (
	"math"
	"time"

	"github.com/raterudder/eemeter/pkg/types"
)

// Balance point range swept by the usage per day model.
const (
	MinBalancePoint = 30
	MaxBalancePoint = 90
)

// BillingTolerance is the longest billing period that is featurized.
const BillingTolerance = 35 * 24 * time.Hour

// ComputeUsagePerDay divides each period's usage by its length in days. The
// final record only closes the previous period so its value is NaN.
func ComputeUsagePerDay(meter types.MeterSeries) []float64 {
	days := types.DayCounts(meter.Timestamps)
	out := make([]float64, meter.Len())
	for i, v := range meter.Values {
		if math.IsNaN(days[i]) || days[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = v / days[i]
	}
	return out
}

// CreateUsagePerDayDesignMatrix joins usage per day with temperature
// features computed with opts.
func CreateUsagePerDayDesignMatrix(meter types.MeterSeries, temps types.TemperatureSeries, opts TemperatureOptions) (*DesignMatrix, error) {
	dm, err := ComputeTemperatureFeatures(meter.Timestamps, temps, opts)
	if err != nil {
		return nil, err
	}
	if err := dm.withMeterValue(ComputeUsagePerDay(meter)); err != nil {
		return nil, err
	}
	return dm, nil
}

func fullRangeOptions(interval types.Interval) TemperatureOptions {
	bps := BalancePointRange(MinBalancePoint, MaxBalancePoint)
	opts := DefaultTemperatureOptions(bps, bps)
	opts.DataQuality = true
	opts.Interval = interval
	return opts
}

// CreateDailyDesignMatrix builds the design matrix for daily usage with
// degree days at every balance point from 30 to 90.
func CreateDailyDesignMatrix(meter types.MeterSeries, temps types.TemperatureSeries, region Region) (*DesignMatrix, error) {
	return CreateUsagePerDayDesignMatrix(meter, region.Normalize(temps), fullRangeOptions(types.IntervalDaily))
}

// CreateBillingDesignMatrix builds the design matrix for billing usage.
// Periods longer than 35 days are not featurized.
func CreateBillingDesignMatrix(meter types.MeterSeries, temps types.TemperatureSeries, region Region) (*DesignMatrix, error) {
	opts := fullRangeOptions(types.IntervalBilling)
	opts.Tolerance = BillingTolerance
	return CreateUsagePerDayDesignMatrix(meter, region.Normalize(temps), opts)
}

// CreateHourlyPreliminaryDesignMatrix builds the hourly design matrix used to
// estimate occupancy and temperature bins. Degree days are only computed at
// the region's balance points and meter values are not normalized.
func CreateHourlyPreliminaryDesignMatrix(meter types.MeterSeries, temps types.TemperatureSeries, region Region) (*DesignMatrix, error) {
	dm, err := computeHourlyTemperatureFeatures(meter.Timestamps, region.Normalize(temps), region)
	if err != nil {
		return nil, err
	}
	if err := dm.withMeterValue(meter.Values); err != nil {
		return nil, err
	}
	return dm, nil
}

func computeHourlyTemperatureFeatures(index []time.Time, temps types.TemperatureSeries, region Region) (*DesignMatrix, error) {
	opts := DefaultTemperatureOptions([]int{region.HeatingBalancePoint}, []int{region.CoolingBalancePoint})
	opts.DegreeDayMethod = types.DegreeDayMethodHourly
	opts.Interval = types.IntervalHourly
	opts.DataQuality = true
	dm, err := ComputeTemperatureFeatures(index, temps, opts)
	if err != nil {
		return nil, err
	}
	dm.HourOfWeek = ComputeTimeFeatures(index).HourOfWeek
	return dm, nil
}

// TimeFeatures holds calendar features for an index.
type TimeFeatures struct {
	HourOfWeek []int
	DayOfWeek  []int
	HourOfDay  []int
}

// ComputeTimeFeatures computes calendar features. Weeks start on Monday.
func ComputeTimeFeatures(index []time.Time) TimeFeatures {
	tf := TimeFeatures{
		HourOfWeek: make([]int, len(index)),
		DayOfWeek:  make([]int, len(index)),
		HourOfDay:  make([]int, len(index)),
	}
	for i, t := range index {
		tf.DayOfWeek[i] = DayOfWeek(t)
		tf.HourOfDay[i] = t.Hour()
		tf.HourOfWeek[i] = HourOfWeek(t)
	}
	return tf
}

// DayOfWeek returns 0 for Monday through 6 for Sunday.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// HourOfWeek returns 0 for Monday midnight through 167.
func HourOfWeek(t time.Time) int {
	return DayOfWeek(t)*24 + t.Hour()
}
