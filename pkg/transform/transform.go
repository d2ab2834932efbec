// Package transform selects baseline and reporting periods from meter data
// and applies CalTRACK data sufficiency cleaning.
package transform

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/raterudder/eemeter/pkg/types"
)

var (
	ErrNoBaselineData  = errors.New("no baseline data")
	ErrNoReportingData = errors.New("no reporting data")
	ErrConflictingSpan = errors.New("conflicting period bounds")
)

// DefaultBaselineMaxDays is the usual length of a baseline period.
const DefaultBaselineMaxDays = 365

// PeriodOptions bounds a baseline or reporting period. Zero values are
// unbounded. MaxDays counts back from End for baselines and forward from
// Start for reporting periods.
type PeriodOptions struct {
	Start   time.Time
	End     time.Time
	MaxDays int
}

// DefaultBaselineOptions ends a 365 day baseline at end, which is usually
// the start of the intervention.
func DefaultBaselineOptions(end time.Time) PeriodOptions {
	return PeriodOptions{End: end, MaxDays: DefaultBaselineMaxDays}
}

// GetBaselineData returns the records of meter in the baseline period. The
// final record is set to NaN so that it closes the previous period. Gaps
// between the requested bounds and the data are returned as warnings.
func GetBaselineData(meter types.MeterSeries, opts PeriodOptions) (types.MeterSeries, []types.Warning, error) {
	if opts.MaxDays > 0 && !opts.Start.IsZero() {
		return types.MeterSeries{}, nil, fmt.Errorf(
			"%w: start cannot be set with max_days: start=%s, max_days=%d",
			ErrConflictingSpan, opts.Start.Format(time.RFC3339), opts.MaxDays,
		)
	}
	start := opts.Start
	if opts.MaxDays > 0 && !opts.End.IsZero() {
		start = opts.End.AddDate(0, 0, -opts.MaxDays)
	}

	out := between(meter, start, opts.End)
	if out.NotNullCount() == 0 {
		return types.MeterSeries{}, nil, ErrNoBaselineData
	}
	out.Values[out.Len()-1] = math.NaN()

	var warnings []types.Warning
	dataStart, dataEnd := out.Timestamps[0], out.Timestamps[out.Len()-1]
	if !start.IsZero() && start.Before(dataStart) {
		warnings = append(warnings, gapWarning("eemeter.get_baseline_data.gap_at_baseline_start",
			"Data does not have coverage at requested baseline start date.",
			"requested_start", start, "data_start", dataStart))
	}
	if !opts.End.IsZero() && opts.End.After(dataEnd) {
		warnings = append(warnings, gapWarning("eemeter.get_baseline_data.gap_at_baseline_end",
			"Data does not have coverage at requested baseline end date.",
			"requested_end", opts.End, "data_end", dataEnd))
	}
	return out, warnings, nil
}

// GetReportingData returns the records of meter in the reporting period. The
// final record is set to NaN so that it closes the previous period.
func GetReportingData(meter types.MeterSeries, opts PeriodOptions) (types.MeterSeries, []types.Warning, error) {
	if opts.MaxDays > 0 && !opts.End.IsZero() {
		return types.MeterSeries{}, nil, fmt.Errorf(
			"%w: end cannot be set with max_days: end=%s, max_days=%d",
			ErrConflictingSpan, opts.End.Format(time.RFC3339), opts.MaxDays,
		)
	}
	end := opts.End
	if opts.MaxDays > 0 && !opts.Start.IsZero() {
		end = opts.Start.AddDate(0, 0, opts.MaxDays)
	}

	out := between(meter, opts.Start, end)
	if out.NotNullCount() == 0 {
		return types.MeterSeries{}, nil, ErrNoReportingData
	}
	out.Values[out.Len()-1] = math.NaN()

	var warnings []types.Warning
	dataStart, dataEnd := out.Timestamps[0], out.Timestamps[out.Len()-1]
	if !opts.Start.IsZero() && opts.Start.Before(dataStart) {
		warnings = append(warnings, gapWarning("eemeter.get_reporting_data.gap_at_reporting_start",
			"Data does not have coverage at requested reporting start date.",
			"requested_start", opts.Start, "data_start", dataStart))
	}
	if !end.IsZero() && end.After(dataEnd) {
		warnings = append(warnings, gapWarning("eemeter.get_reporting_data.gap_at_reporting_end",
			"Data does not have coverage at requested reporting end date.",
			"requested_end", end, "data_end", dataEnd))
	}
	return out, warnings, nil
}

// between clones the records of meter with start <= t <= end. Zero bounds
// are open.
func between(meter types.MeterSeries, start, end time.Time) types.MeterSeries {
	lo, hi := 0, meter.Len()
	if !start.IsZero() {
		lo, _ = slices.BinarySearchFunc(meter.Timestamps, start, func(t, target time.Time) int {
			return t.Compare(target)
		})
	}
	if !end.IsZero() {
		hi, _ = slices.BinarySearchFunc(meter.Timestamps, end, func(t, target time.Time) int {
			if t.After(target) {
				return 1
			}
			return -1
		})
	}
	if hi < lo {
		hi = lo
	}
	return meter.Slice(lo, hi).Clone()
}

func gapWarning(name, description, requestedKey string, requested time.Time, dataKey string, data time.Time) types.Warning {
	return types.Warning{
		QualifiedName: name,
		Description:   description,
		Data: map[string]any{
			requestedKey: requested.Format(time.RFC3339),
			dataKey:      data.Format(time.RFC3339),
		},
	}
}
