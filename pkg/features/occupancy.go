package features

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/raterudder/eemeter/pkg/log"
	"github.com/raterudder/eemeter/pkg/regression"
	"github.com/raterudder/eemeter/pkg/segmentation"
)

// HoursPerWeek is the number of hour-of-week buckets.
const HoursPerWeek = 168

// DefaultOccupancyThreshold is the fraction of positive residuals above
// which an hour of the week is considered occupied.
const DefaultOccupancyThreshold = 0.65

// OccupancyLookup maps a segment name to the occupancy of each hour of the
// week.
type OccupancyLookup map[string][HoursPerWeek]bool

// OccupancyOptions controls EstimateHourOfWeekOccupancy.
type OccupancyOptions struct {
	Threshold float64
	Region    Region
}

// DefaultOccupancyOptions returns the default threshold for the USA region.
func DefaultOccupancyOptions() OccupancyOptions {
	return OccupancyOptions{Threshold: DefaultOccupancyThreshold, Region: DefaultRegion}
}

// EstimateHourOfWeekOccupancy fits meter_value ~ cdd + hdd at the region's
// balance points for each segment and marks an hour of the week occupied
// when usage is above the fit in more than Threshold of its readings.
func EstimateHourOfWeekOccupancy(ctx context.Context, dm *DesignMatrix, seg *segmentation.Segmentation, opts OccupancyOptions) (OccupancyLookup, error) {
	if dm.MeterValue == nil || dm.HourOfWeek == nil {
		return nil, errors.New("occupancy requires meter_value and hour_of_week")
	}
	cdd, ok := dm.CDD[opts.Region.CoolingBalancePoint]
	if !ok {
		return nil, fmt.Errorf("design matrix is missing %s", CDDColumn(opts.Region.CoolingBalancePoint))
	}
	hdd, ok := dm.HDD[opts.Region.HeatingBalancePoint]
	if !ok {
		return nil, fmt.Errorf("design matrix is missing %s", HDDColumn(opts.Region.HeatingBalancePoint))
	}

	design := regression.Design{
		Names:       []string{"Intercept", CDDColumn(opts.Region.CoolingBalancePoint), HDDColumn(opts.Region.HeatingBalancePoint)},
		Columns:     [][]float64{constant(dm.Len()), cdd, hdd},
		HasConstant: true,
	}
	lookup, err := segmentation.IterateSegmentedDataset(seg, func(s segmentation.Segment) ([HoursPerWeek]bool, error) {
		var occupied [HoursPerWeek]bool
		res, err := regression.WLS(design, dm.MeterValue, s.Weights)
		if errors.Is(err, regression.ErrNoObservations) {
			log.Ctx(ctx).DebugContext(ctx, "no data for occupancy", slog.String("segment", s.Name))
			return occupied, nil
		} else if err != nil {
			return occupied, err
		}

		var positive, total [HoursPerWeek]int
		for i, resid := range res.Resid {
			if !(s.Weights[i] > 0) || math.IsNaN(resid) {
				continue
			}
			how := dm.HourOfWeek[i]
			total[how]++
			if resid > 0 {
				positive[how]++
			}
		}
		for how := range occupied {
			occupied[how] = total[how] > 0 && float64(positive[how])/float64(total[how]) > opts.Threshold
		}
		return occupied, nil
	})
	if err != nil {
		return nil, err
	}
	return OccupancyLookup(lookup), nil
}

// ComputeOccupancyFeature returns 1 for occupied hours and 0 otherwise.
func ComputeOccupancyFeature(hourOfWeek []int, occupancy [HoursPerWeek]bool) []float64 {
	out := make([]float64, len(hourOfWeek))
	for i, how := range hourOfWeek {
		if occupancy[how] {
			out[i] = 1
		}
	}
	return out
}

func constant(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
