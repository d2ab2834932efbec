package features

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raterudder/eemeter/pkg/segmentation"
	"github.com/raterudder/eemeter/pkg/types"
)

var start = time.Date(2017, 1, 2, 0, 0, 0, 0, time.UTC)

func hourlyTemps(t *testing.T, hours int, f func(i int) float64) types.TemperatureSeries {
	t.Helper()
	ts := make([]time.Time, hours)
	vals := make([]float64, hours)
	for i := range ts {
		ts[i] = start.Add(time.Duration(i) * time.Hour)
		vals[i] = f(i)
	}
	temps, err := types.NewTemperatureSeries(ts, vals)
	require.NoError(t, err)
	return temps
}

func dailyIndex(days int) []time.Time {
	out := make([]time.Time, days)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

func TestComputeTemperatureFeatures(t *testing.T) {
	t.Run("DailyMethodConstant", func(t *testing.T) {
		temps := hourlyTemps(t, 24*3, func(int) float64 { return 50 })
		opts := DefaultTemperatureOptions([]int{60}, []int{40, 70})
		opts.DataQuality = true
		dm, err := ComputeTemperatureFeatures(dailyIndex(4), temps, opts)
		require.NoError(t, err)

		assert.Equal(t, types.IntervalDaily, dm.Interval)
		assert.Equal(t, []float64{10, 10, 10}, dm.HDD[60][:3])
		assert.Equal(t, []float64{10, 10, 10}, dm.CDD[40][:3])
		assert.Equal(t, []float64{0, 0, 0}, dm.CDD[70][:3])
		assert.Equal(t, 1.0, dm.NDaysKept[0])
		assert.Equal(t, 24.0, dm.TemperatureNotNull[0])
		assert.Equal(t, 0.0, dm.TemperatureNull[0])
		assert.True(t, math.IsNaN(dm.HDD[60][3]))
		assert.True(t, math.IsNaN(dm.NDaysKept[3]))
	})

	t.Run("HourlyMethodDiffersFromDaily", func(t *testing.T) {
		temps := hourlyTemps(t, 48, func(i int) float64 {
			if i%2 == 0 {
				return 50
			}
			return 70
		})
		opts := DefaultTemperatureOptions([]int{60}, []int{60})
		daily, err := ComputeTemperatureFeatures(dailyIndex(3), temps, opts)
		require.NoError(t, err)
		assert.Equal(t, 0.0, daily.HDD[60][0])

		opts.DegreeDayMethod = types.DegreeDayMethodHourly
		hourly, err := ComputeTemperatureFeatures(dailyIndex(3), temps, opts)
		require.NoError(t, err)
		assert.InDelta(t, 5, hourly.HDD[60][0], 1e-12)
		assert.InDelta(t, 5, hourly.CDD[60][1], 1e-12)
	})

	t.Run("PeriodTotals", func(t *testing.T) {
		temps := hourlyTemps(t, 24*3, func(int) float64 { return 55 })
		opts := DefaultTemperatureOptions([]int{65}, nil)
		opts.PeriodTotals = true
		dm, err := ComputeTemperatureFeatures([]time.Time{start, start.AddDate(0, 0, 3)}, temps, opts)
		require.NoError(t, err)
		assert.Equal(t, types.IntervalBilling, types.InferInterval(dm.Index))
		assert.InDelta(t, 30, dm.HDD[65][0], 1e-12)
		assert.Equal(t, 3.0, dm.NDaysKept[0])
	})

	t.Run("InsufficientCoverage", func(t *testing.T) {
		temps := hourlyTemps(t, 48, func(i int) float64 {
			if i >= 24 && i < 24+18 {
				return math.NaN()
			}
			return 40
		})
		dm, err := ComputeTemperatureFeatures(dailyIndex(3), temps, DefaultTemperatureOptions([]int{60}, nil))
		require.NoError(t, err)
		assert.Equal(t, 20.0, dm.HDD[60][0])
		assert.True(t, math.IsNaN(dm.HDD[60][1]))
		assert.Equal(t, 0.0, dm.NDaysKept[1])
		assert.Equal(t, 1.0, dm.NDaysDropped[1])
	})

	t.Run("HourlyIndexRequiresHourlyMethod", func(t *testing.T) {
		temps := hourlyTemps(t, 4, func(int) float64 { return 40 })
		_, err := ComputeTemperatureFeatures(temps.Timestamps, temps, DefaultTemperatureOptions([]int{60}, nil))
		assert.ErrorIs(t, err, ErrHourlyIndexDailyMethod)
	})

	t.Run("HourlyIndex", func(t *testing.T) {
		temps := hourlyTemps(t, 4, func(i int) float64 { return 40 + float64(i)*10 })
		temps.Values[3] = math.NaN()
		opts := DefaultTemperatureOptions([]int{55}, []int{55})
		opts.DegreeDayMethod = types.DegreeDayMethodHourly
		dm, err := ComputeTemperatureFeatures(temps.Timestamps, temps, opts)
		require.NoError(t, err)
		assert.Equal(t, []float64{15, 5, 0}, dm.HDD[55][:3])
		assert.Equal(t, []float64{0, 0, 5}, dm.CDD[55][:3])
		assert.True(t, math.IsNaN(dm.HDD[55][3]))
		assert.Equal(t, 60.0, dm.TemperatureMean[2])
	})

	t.Run("Tolerance", func(t *testing.T) {
		temps := hourlyTemps(t, 24*40, func(int) float64 { return 40 })
		index := []time.Time{start, start.AddDate(0, 0, 40)}
		dm, err := CreateBillingDesignMatrix(types.MeterSeries{Series: types.Series{Timestamps: index, Values: []float64{400, math.NaN()}}}, temps, DefaultRegion)
		require.NoError(t, err)
		assert.True(t, math.IsNaN(dm.HDD[60][0]))
		assert.Equal(t, 10.0, dm.MeterValue[0])
	})
}

func TestComputeUsagePerDay(t *testing.T) {
	index := []time.Time{start, start.AddDate(0, 0, 2), start.AddDate(0, 0, 3)}
	meter, err := types.NewMeterSeries(index, []float64{10, 4, 7})
	require.NoError(t, err)
	upd := ComputeUsagePerDay(meter)
	assert.Equal(t, 5.0, upd[0])
	assert.Equal(t, 4.0, upd[1])
	assert.True(t, math.IsNaN(upd[2]))
}

func TestCreateDailyDesignMatrix(t *testing.T) {
	temps := hourlyTemps(t, 24*5, func(int) float64 { return 10 })
	meter, err := types.NewMeterSeries(dailyIndex(5), []float64{1, 2, 3, 4, 5})
	require.NoError(t, err)

	t.Run("USA", func(t *testing.T) {
		dm, err := CreateDailyDesignMatrix(meter, temps, DefaultRegion)
		require.NoError(t, err)
		assert.Len(t, dm.HeatingBalancePoints(), 61)
		assert.Equal(t, 20.0, dm.HDD[30][0])
		assert.NotNil(t, dm.TemperatureNull)
		assert.Contains(t, dm.Columns(), "cdd_90")
		col, ok := dm.Column("hdd_45")
		require.True(t, ok)
		assert.Equal(t, 35.0, col[0])
	})

	t.Run("Celsius", func(t *testing.T) {
		region, err := LookupRegion("can")
		require.NoError(t, err)
		dm, err := CreateDailyDesignMatrix(meter, temps, region)
		require.NoError(t, err)
		assert.InDelta(t, 50, dm.TemperatureMean[0], 1e-9)
		assert.Equal(t, 10.0, temps.Values[0])
	})

	t.Run("UnknownRegion", func(t *testing.T) {
		_, err := LookupRegion("XXX")
		assert.Error(t, err)
	})
}

func TestTimeFeatures(t *testing.T) {
	// 2017-01-02 is a Monday
	assert.Equal(t, 0, HourOfWeek(start))
	assert.Equal(t, 167, HourOfWeek(start.Add(7*24*time.Hour-time.Hour)))
	tf := ComputeTimeFeatures([]time.Time{start.Add(30 * time.Hour)})
	assert.Equal(t, 1, tf.DayOfWeek[0])
	assert.Equal(t, 6, tf.HourOfDay[0])
	assert.Equal(t, 30, tf.HourOfWeek[0])
}

func TestComputeTemperatureBinFeatures(t *testing.T) {
	cols := ComputeTemperatureBinFeatures([]float64{20, 50, 100, math.NaN()}, []float64{30, 45, 55})
	require.Len(t, cols, 4)
	assert.Equal(t, []float64{20, 0, 0, 0}, []float64{cols[0][0], cols[1][0], cols[2][0], cols[3][0]})
	assert.Equal(t, []float64{30, 15, 5, 0}, []float64{cols[0][1], cols[1][1], cols[2][1], cols[3][1]})
	assert.Equal(t, []float64{30, 15, 10, 45}, []float64{cols[0][2], cols[1][2], cols[2][2], cols[3][2]})
	assert.True(t, math.IsNaN(cols[2][3]))

	single := ComputeTemperatureBinFeatures([]float64{42}, nil)
	assert.Equal(t, [][]float64{{42}}, single)
}

func TestMergeSparseBins(t *testing.T) {
	var temps []float64
	for _, v := range []float64{40, 50, 60, 70} {
		for range 25 {
			temps = append(temps, v)
		}
	}
	for range 5 {
		temps = append(temps, 80)
	}
	assert.Equal(t, []float64{45, 55, 65}, mergeSparseBins(temps, DefaultBinOptions().DefaultBins, 20))
	assert.Empty(t, mergeSparseBins([]float64{60, 60}, DefaultBinOptions().DefaultBins, 20))
}

func TestPruneBins(t *testing.T) {
	var b binSample
	for i := range 100 {
		temp := float64(i)
		b.temps = append(b.temps, temp)
		b.meter = append(b.meter, math.Max(60-temp, 0))
		b.weights = append(b.weights, 1)
	}
	endpoints := b.fit(BinOptions{DefaultBins: []float64{30, 60, 80}, MaxBins: 2})
	assert.Equal(t, []float64{60}, endpoints)
}

func occupancyFixture(t *testing.T) (*DesignMatrix, *segmentation.Segmentation) {
	t.Helper()
	hours := 24 * 7 * 4
	temps := hourlyTemps(t, hours, func(int) float64 { return 60 })
	values := make([]float64, hours)
	for i := range values {
		ts := temps.Timestamps[i]
		values[i] = 1
		if DayOfWeek(ts) < 5 && ts.Hour() >= 9 && ts.Hour() < 17 {
			values[i] = 3
		}
	}
	meter, err := types.NewMeterSeries(temps.Timestamps, values)
	require.NoError(t, err)
	dm, err := CreateHourlyPreliminaryDesignMatrix(meter, temps, DefaultRegion)
	require.NoError(t, err)
	seg, err := segmentation.SegmentTimeSeries(dm.Index, segmentation.MethodSingle, segmentation.Options{})
	require.NoError(t, err)
	return dm, seg
}

func TestEstimateHourOfWeekOccupancy(t *testing.T) {
	dm, seg := occupancyFixture(t)
	lookup, err := EstimateHourOfWeekOccupancy(context.Background(), dm, seg, DefaultOccupancyOptions())
	require.NoError(t, err)

	occ := lookup[segmentation.SegmentAll]
	assert.True(t, occ[10])
	assert.True(t, occ[4*24+16])
	assert.False(t, occ[2])
	assert.False(t, occ[5*24+10])

	feature := ComputeOccupancyFeature([]int{10, 2}, occ)
	assert.Equal(t, []float64{1, 0}, feature)

	t.Run("EmptySegment", func(t *testing.T) {
		empty := &segmentation.Segmentation{Segments: []segmentation.Segment{{Name: "none", Weights: make([]float64, dm.Len())}}}
		lookup, err := EstimateHourOfWeekOccupancy(context.Background(), dm, empty, DefaultOccupancyOptions())
		require.NoError(t, err)
		assert.Equal(t, [HoursPerWeek]bool{}, lookup["none"])
	})
}

func TestCreateHourlySegmentedDesignMatrices(t *testing.T) {
	dm, seg := occupancyFixture(t)
	ctx := context.Background()
	occupancy, err := EstimateHourOfWeekOccupancy(ctx, dm, seg, DefaultOccupancyOptions())
	require.NoError(t, err)
	occBins, unoccBins, err := FitTemperatureBins(ctx, dm, seg, occupancy, DefaultBinOptions())
	require.NoError(t, err)
	assert.Empty(t, occBins[segmentation.SegmentAll])
	assert.Empty(t, unoccBins[segmentation.SegmentAll])

	matrices, err := CreateHourlySegmentedDesignMatrices(dm, seg, occupancy, occBins, unoccBins)
	require.NoError(t, err)
	m := matrices[segmentation.SegmentAll]
	require.NotNil(t, m)
	assert.Equal(t, dm.Len(), m.Len())
	assert.Equal(t, []string{"bin_0_occupied", "bin_0_unoccupied"}, m.BinColumns())

	// Monday 10:00 is occupied, Monday 02:00 is not.
	assert.Equal(t, 60.0, m.Occupied[0][10])
	assert.Equal(t, 0.0, m.Unoccupied[0][10])
	assert.Equal(t, 0.0, m.Occupied[0][2])
	assert.Equal(t, 60.0, m.Unoccupied[0][2])

	_, err = ProcessHourlySegment("missing", dm, seg.Segments[0].Weights, occupancy, occBins, unoccBins)
	assert.Error(t, err)
}
