package types

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	ErrLengthMismatch = errors.New("timestamps and values have different lengths")
	ErrUnsorted       = errors.New("timestamps must be strictly increasing")
)

// Series is a time-indexed sequence of readings. Missing readings are NaN.
type Series struct {
	Timestamps []time.Time `json:"timestamps"`
	Values     []float64   `json:"values"`
}

// NewSeries validates that the timestamps are strictly increasing and that
// every timestamp has a value.
func NewSeries(timestamps []time.Time, values []float64) (Series, error) {
	if len(timestamps) != len(values) {
		return Series{}, fmt.Errorf("%w: %d timestamps, %d values", ErrLengthMismatch, len(timestamps), len(values))
	}
	for i := 1; i < len(timestamps); i++ {
		if !timestamps[i].After(timestamps[i-1]) {
			return Series{}, fmt.Errorf("%w: %s follows %s", ErrUnsorted, timestamps[i], timestamps[i-1])
		}
	}
	return Series{Timestamps: timestamps, Values: values}, nil
}

// Len returns the number of readings.
func (s Series) Len() int {
	return len(s.Timestamps)
}

// Empty reports whether the series has no readings.
func (s Series) Empty() bool {
	return len(s.Timestamps) == 0
}

// Range returns the half-open index range [lo, hi) of readings with
// start <= t < end.
func (s Series) Range(start, end time.Time) (int, int) {
	lo := sort.Search(len(s.Timestamps), func(i int) bool {
		return !s.Timestamps[i].Before(start)
	})
	hi := sort.Search(len(s.Timestamps), func(i int) bool {
		return !s.Timestamps[i].Before(end)
	})
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// Slice returns the readings in [lo, hi). The returned series shares memory
// with s.
func (s Series) Slice(lo, hi int) Series {
	return Series{Timestamps: s.Timestamps[lo:hi], Values: s.Values[lo:hi]}
}

// Clone returns a deep copy of the series.
func (s Series) Clone() Series {
	return Series{
		Timestamps: append([]time.Time(nil), s.Timestamps...),
		Values:     append([]float64(nil), s.Values...),
	}
}

// NotNullCount returns the number of non-NaN readings.
func (s Series) NotNullCount() int {
	var n int
	for _, v := range s.Values {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// MeterSeries holds energy usage readings. Each reading covers the period
// starting at its timestamp and ending at the next timestamp.
type MeterSeries struct {
	Series
}

// NewMeterSeries validates and wraps meter readings.
func NewMeterSeries(timestamps []time.Time, values []float64) (MeterSeries, error) {
	s, err := NewSeries(timestamps, values)
	if err != nil {
		return MeterSeries{}, err
	}
	return MeterSeries{Series: s}, nil
}

// Slice returns the readings in [lo, hi).
func (m MeterSeries) Slice(lo, hi int) MeterSeries {
	return MeterSeries{Series: m.Series.Slice(lo, hi)}
}

// Clone returns a deep copy.
func (m MeterSeries) Clone() MeterSeries {
	return MeterSeries{Series: m.Series.Clone()}
}

// TemperatureSeries holds nominally hourly outdoor temperatures.
type TemperatureSeries struct {
	Series
}

// NewTemperatureSeries validates and wraps temperature readings.
func NewTemperatureSeries(timestamps []time.Time, values []float64) (TemperatureSeries, error) {
	s, err := NewSeries(timestamps, values)
	if err != nil {
		return TemperatureSeries{}, err
	}
	return TemperatureSeries{Series: s}, nil
}

// Slice returns the readings in [lo, hi).
func (t TemperatureSeries) Slice(lo, hi int) TemperatureSeries {
	return TemperatureSeries{Series: t.Series.Slice(lo, hi)}
}

// ToFahrenheit converts Celsius readings to Fahrenheit.
func (t TemperatureSeries) ToFahrenheit() TemperatureSeries {
	out := t.Series.Clone()
	for i, v := range out.Values {
		out.Values[i] = 32 + v*1.8
	}
	return TemperatureSeries{Series: out}
}

// DayCounts returns the length in days of each period in index. The last
// timestamp only marks the end of the previous period so its count is NaN.
func DayCounts(index []time.Time) []float64 {
	out := make([]float64, len(index))
	for i := range index {
		if i == len(index)-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = index[i+1].Sub(index[i]).Hours() / 24
	}
	return out
}
