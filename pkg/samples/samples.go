// Package samples generates deterministic synthetic meter and temperature
// data for examples and tests.
package samples

import (
	"math"
	"math/rand"
	"time"

	"github.com/raterudder/eemeter/pkg/features"
	"github.com/raterudder/eemeter/pkg/types"
)

// Profile describes a synthetic building. Loads are in usage per day.
type Profile struct {
	BaseLoad            float64
	HeatingSlope        float64
	HeatingBalancePoint float64
	CoolingSlope        float64
	CoolingBalancePoint float64
	// Noise is the standard deviation of the daily usage noise.
	Noise float64
	// OccupiedMultiplier scales the hourly base load during weekday
	// business hours.
	OccupiedMultiplier float64
}

// DefaultProfile is a building with both heating and cooling load.
func DefaultProfile() Profile {
	return Profile{
		BaseLoad:            10,
		HeatingSlope:        1.5,
		HeatingBalancePoint: 60,
		CoolingSlope:        2,
		CoolingBalancePoint: 70,
		Noise:               1,
		OccupiedMultiplier:  2,
	}
}

// Load returns the base, heating and cooling usage per day at temperature t.
func (p Profile) Load(t float64) (float64, float64, float64) {
	return p.BaseLoad, p.HeatingSlope * math.Max(p.HeatingBalancePoint-t, 0), p.CoolingSlope * math.Max(t-p.CoolingBalancePoint, 0)
}

// Temperature generates hourly temperatures in °F from start with a
// seasonal and a daily cycle plus noise.
func Temperature(start time.Time, hours int, seed int64) types.TemperatureSeries {
	rng := rand.New(rand.NewSource(seed))
	ts := make([]time.Time, hours)
	vals := make([]float64, hours)
	for i := range ts {
		t := start.Add(time.Duration(i) * time.Hour)
		doy := float64(t.YearDay())
		seasonal := 25 * math.Sin(2*math.Pi*(doy-110)/365.25)
		daily := 8 * math.Sin(2*math.Pi*(float64(t.Hour())-9)/24)
		ts[i] = t
		vals[i] = 55 + seasonal + daily + rng.NormFloat64()*2
	}
	return types.TemperatureSeries{Series: types.Series{Timestamps: ts, Values: vals}}
}

// dailyMeans averages temps over each day starting at start.
func dailyMeans(temps types.TemperatureSeries, start time.Time, days int) []float64 {
	out := make([]float64, days)
	for d := range out {
		dayStart := start.AddDate(0, 0, d)
		lo, hi := temps.Range(dayStart, dayStart.Add(24*time.Hour))
		var sum float64
		var n int
		for _, v := range temps.Values[lo:hi] {
			if !math.IsNaN(v) {
				sum += v
				n++
			}
		}
		out[d] = math.NaN()
		if n > 0 {
			out[d] = sum / float64(n)
		}
	}
	return out
}

// DailyMeter generates days of daily usage starting at start. The series has
// days+1 records so that the final period is closed.
func DailyMeter(temps types.TemperatureSeries, start time.Time, days int, p Profile, seed int64) types.MeterSeries {
	rng := rand.New(rand.NewSource(seed))
	means := dailyMeans(temps, start, days)
	ts := make([]time.Time, days+1)
	vals := make([]float64, days+1)
	for d := range ts {
		ts[d] = start.AddDate(0, 0, d)
		if d == days {
			vals[d] = math.NaN()
			continue
		}
		base, heating, cooling := p.Load(means[d])
		vals[d] = base + heating + cooling + rng.NormFloat64()*p.Noise
	}
	return types.MeterSeries{Series: types.Series{Timestamps: ts, Values: vals}}
}

// BillingMeter generates months of monthly usage starting at start.
func BillingMeter(temps types.TemperatureSeries, start time.Time, months int, p Profile, seed int64) types.MeterSeries {
	end := start.AddDate(0, months, 0)
	days := int(end.Sub(start).Hours() / 24)
	daily := DailyMeter(temps, start, days, p, seed)
	ts := make([]time.Time, months+1)
	vals := make([]float64, months+1)
	for m := range ts {
		ts[m] = start.AddDate(0, m, 0)
		if m == months {
			vals[m] = math.NaN()
			continue
		}
		lo, hi := daily.Range(ts[m], start.AddDate(0, m+1, 0))
		for _, v := range daily.Values[lo:hi] {
			vals[m] += v
		}
	}
	return types.MeterSeries{Series: types.Series{Timestamps: ts, Values: vals}}
}

// Occupied reports whether t falls in weekday business hours.
func Occupied(t time.Time) bool {
	return features.DayOfWeek(t) < 5 && t.Hour() >= 8 && t.Hour() < 18
}

// HourlyMeter generates hourly usage aligned to temps.
func HourlyMeter(temps types.TemperatureSeries, p Profile, seed int64) types.MeterSeries {
	rng := rand.New(rand.NewSource(seed))
	ts := make([]time.Time, temps.Len())
	vals := make([]float64, temps.Len())
	for i, t := range temps.Timestamps {
		ts[i] = t
		base, heating, cooling := p.Load(temps.Values[i])
		if Occupied(t) {
			base *= p.OccupiedMultiplier
		}
		vals[i] = (base+heating+cooling)/24 + rng.NormFloat64()*p.Noise/24
	}
	return types.MeterSeries{Series: types.Series{Timestamps: ts, Values: vals}}
}
