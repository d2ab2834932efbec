package transform

import (
	"fmt"
	"math"

	"github.com/raterudder/eemeter/pkg/types"
)

// BillingCycle is the nominal length of a billing period.
type BillingCycle string

const (
	BillingMonthly   BillingCycle = "billing_monthly"
	BillingBimonthly BillingCycle = "billing_bimonthly"
)

// billingLimits are the inclusive period lengths in days each cycle accepts.
var billingLimits = map[BillingCycle][2]float64{
	BillingMonthly:   {25, 35},
	BillingBimonthly: {25, 70},
}

// CleanBillingData nulls billing periods whose length falls outside the
// limits of cycle and reports how many were removed. Timestamps are kept so
// that neighbouring periods stay closed. Data without any reading is
// returned empty.
func CleanBillingData(meter types.MeterSeries, cycle BillingCycle) (types.MeterSeries, []types.Warning, error) {
	limits, ok := billingLimits[cycle]
	if !ok {
		return types.MeterSeries{}, nil, fmt.Errorf("unknown billing cycle %q", cycle)
	}
	if meter.NotNullCount() == 0 {
		return types.MeterSeries{}, nil, nil
	}
	out := meter.Clone()
	days := types.DayCounts(out.Timestamps)
	var removed int
	for i, d := range days {
		if math.IsNaN(out.Values[i]) {
			continue
		}
		if math.IsNaN(d) {
			// closing record
			out.Values[i] = math.NaN()
			continue
		}
		if d < limits[0] || d > limits[1] {
			out.Values[i] = math.NaN()
			removed++
		}
	}
	var warnings []types.Warning
	if removed > 0 {
		warnings = append(warnings, types.Warning{
			QualifiedName: "eemeter.clean_caltrack_billing_data.period_length_out_of_range",
			Description:   "Billing periods outside the accepted length were removed.",
			Data: map[string]any{
				"n_periods_removed":  removed,
				"minimum_days":       limits[0],
				"maximum_days":       limits[1],
				"billing_cycle_type": string(cycle),
			},
		})
	}
	return out, warnings, nil
}
