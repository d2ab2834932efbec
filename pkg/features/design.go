// Package features builds design matrices from meter and temperature data.
package features

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/raterudder/eemeter/pkg/types"
)

// Column names used by design matrices.
const (
	ColumnMeterValue         = "meter_value"
	ColumnNDaysKept          = "n_days_kept"
	ColumnNDaysDropped       = "n_days_dropped"
	ColumnNHoursKept         = "n_hours_kept"
	ColumnNHoursDropped      = "n_hours_dropped"
	ColumnTemperatureMean    = "temperature_mean"
	ColumnTemperatureNull    = "temperature_null"
	ColumnTemperatureNotNull = "temperature_not_null"
	ColumnHourOfWeek         = "hour_of_week"
)

// HDDColumn returns the column name of heating degree days at bp.
func HDDColumn(bp int) string {
	return "hdd_" + strconv.Itoa(bp)
}

// CDDColumn returns the column name of cooling degree days at bp.
func CDDColumn(bp int) string {
	return "cdd_" + strconv.Itoa(bp)
}

// DesignMatrix holds one row per period of Index. Missing values are NaN.
// MeterValue is nil when the matrix was built from temperature alone.
type DesignMatrix struct {
	Index    []time.Time
	Interval types.Interval

	MeterValue []float64
	HDD        map[int][]float64
	CDD        map[int][]float64

	NDaysKept     []float64
	NDaysDropped  []float64
	NHoursKept    []float64
	NHoursDropped []float64

	TemperatureMean []float64
	// Only set when data quality columns were requested.
	TemperatureNull    []float64
	TemperatureNotNull []float64

	// Only set for hourly matrices.
	HourOfWeek []int
}

// Len returns the number of rows.
func (d *DesignMatrix) Len() int {
	return len(d.Index)
}

// HeatingBalancePoints returns the heating balance points in ascending order.
func (d *DesignMatrix) HeatingBalancePoints() []int {
	return sortedKeys(d.HDD)
}

// CoolingBalancePoints returns the cooling balance points in ascending order.
func (d *DesignMatrix) CoolingBalancePoints() []int {
	return sortedKeys(d.CDD)
}

func sortedKeys(m map[int][]float64) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Column looks up a float column by name.
func (d *DesignMatrix) Column(name string) ([]float64, bool) {
	var col []float64
	switch name {
	case ColumnMeterValue:
		col = d.MeterValue
	case ColumnNDaysKept:
		col = d.NDaysKept
	case ColumnNDaysDropped:
		col = d.NDaysDropped
	case ColumnNHoursKept:
		col = d.NHoursKept
	case ColumnNHoursDropped:
		col = d.NHoursDropped
	case ColumnTemperatureMean:
		col = d.TemperatureMean
	case ColumnTemperatureNull:
		col = d.TemperatureNull
	case ColumnTemperatureNotNull:
		col = d.TemperatureNotNull
	default:
		if bp, ok := strings.CutPrefix(name, "hdd_"); ok {
			col = d.HDD[atoi(bp)]
		} else if bp, ok := strings.CutPrefix(name, "cdd_"); ok {
			col = d.CDD[atoi(bp)]
		}
	}
	return col, col != nil
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return math.MinInt
	}
	return n
}

// Columns returns the names of every populated float column.
func (d *DesignMatrix) Columns() []string {
	var out []string
	if d.MeterValue != nil {
		out = append(out, ColumnMeterValue)
	}
	for _, bp := range d.CoolingBalancePoints() {
		out = append(out, CDDColumn(bp))
	}
	for _, bp := range d.HeatingBalancePoints() {
		out = append(out, HDDColumn(bp))
	}
	for _, name := range []string{
		ColumnNDaysKept, ColumnNDaysDropped, ColumnNHoursKept, ColumnNHoursDropped,
		ColumnTemperatureMean, ColumnTemperatureNull, ColumnTemperatureNotNull,
	} {
		if _, ok := d.Column(name); ok {
			out = append(out, name)
		}
	}
	return out
}

// Slice returns rows [lo, hi). The returned matrix shares memory with d.
func (d *DesignMatrix) Slice(lo, hi int) *DesignMatrix {
	sub := func(col []float64) []float64 {
		if col == nil {
			return nil
		}
		return col[lo:hi]
	}
	subMap := func(m map[int][]float64) map[int][]float64 {
		out := make(map[int][]float64, len(m))
		for k, v := range m {
			out[k] = v[lo:hi]
		}
		return out
	}
	out := &DesignMatrix{
		Index:              d.Index[lo:hi],
		Interval:           d.Interval,
		MeterValue:         sub(d.MeterValue),
		HDD:                subMap(d.HDD),
		CDD:                subMap(d.CDD),
		NDaysKept:          sub(d.NDaysKept),
		NDaysDropped:       sub(d.NDaysDropped),
		NHoursKept:         sub(d.NHoursKept),
		NHoursDropped:      sub(d.NHoursDropped),
		TemperatureMean:    sub(d.TemperatureMean),
		TemperatureNull:    sub(d.TemperatureNull),
		TemperatureNotNull: sub(d.TemperatureNotNull),
	}
	if d.HourOfWeek != nil {
		out.HourOfWeek = d.HourOfWeek[lo:hi]
	}
	return out
}

// RowComplete reports whether every named column is non-NaN at row i.
func (d *DesignMatrix) RowComplete(i int, columns ...string) bool {
	for _, name := range columns {
		col, ok := d.Column(name)
		if !ok || math.IsNaN(col[i]) {
			return false
		}
	}
	return true
}

// withMeterValue sets the meter column, checking it matches the index.
func (d *DesignMatrix) withMeterValue(values []float64) error {
	if len(values) != d.Len() {
		return fmt.Errorf("meter column has %d rows, design matrix has %d", len(values), d.Len())
	}
	d.MeterValue = values
	return nil
}
