package features

import (
	"fmt"
	"math"
	"time"

	"github.com/raterudder/eemeter/pkg/segmentation"
	"github.com/raterudder/eemeter/pkg/types"
)

// SegmentedDesignMatrix is the per-segment input to the hourly model.
// MeterValue is nil for prediction matrices.
type SegmentedDesignMatrix struct {
	Segment    string
	Index      []time.Time
	MeterValue []float64
	HourOfWeek []int
	Weight     []float64
	Occupied   [][]float64
	Unoccupied [][]float64
}

// Len returns the number of rows.
func (m *SegmentedDesignMatrix) Len() int {
	return len(m.Index)
}

// OccupiedColumn is the name of the occupied feature of bin i.
func OccupiedColumn(i int) string {
	return BinColumn(i) + "_occupied"
}

// UnoccupiedColumn is the name of the unoccupied feature of bin i.
func UnoccupiedColumn(i int) string {
	return BinColumn(i) + "_unoccupied"
}

// BinColumns returns the bin feature names in design order.
func (m *SegmentedDesignMatrix) BinColumns() []string {
	out := make([]string, 0, len(m.Occupied)+len(m.Unoccupied))
	for i := range m.Occupied {
		out = append(out, OccupiedColumn(i))
	}
	for i := range m.Unoccupied {
		out = append(out, UnoccupiedColumn(i))
	}
	return out
}

// CreateHourlySegmentedDesignMatrices builds one matrix per segment of seg
// from the preliminary hourly matrix dm. Rows with zero weight are dropped.
func CreateHourlySegmentedDesignMatrices(dm *DesignMatrix, seg *segmentation.Segmentation, occupancy OccupancyLookup, occupiedBins, unoccupiedBins TemperatureBins) (map[string]*SegmentedDesignMatrix, error) {
	return segmentation.IterateSegmentedDataset(seg, func(s segmentation.Segment) (*SegmentedDesignMatrix, error) {
		return ProcessHourlySegment(s.Name, dm, s.Weights, occupancy, occupiedBins, unoccupiedBins)
	})
}

// ProcessHourlySegment featurizes the rows of dm with positive weight using
// the occupancy and bins fitted for segment.
func ProcessHourlySegment(segment string, dm *DesignMatrix, weights []float64, occupancy OccupancyLookup, occupiedBins, unoccupiedBins TemperatureBins) (*SegmentedDesignMatrix, error) {
	if dm.HourOfWeek == nil {
		return nil, fmt.Errorf("design matrix for %s has no hour_of_week", segment)
	}
	occEndpoints, ok := occupiedBins[segment]
	if !ok {
		return nil, fmt.Errorf("no occupied temperature bins for segment %s", segment)
	}
	unoccEndpoints, ok := unoccupiedBins[segment]
	if !ok {
		return nil, fmt.Errorf("no unoccupied temperature bins for segment %s", segment)
	}
	occ := occupancy[segment]

	out := &SegmentedDesignMatrix{Segment: segment}
	var temps, occFlag []float64
	for i := range dm.Index {
		if !(weights[i] > 0) {
			continue
		}
		out.Index = append(out.Index, dm.Index[i])
		out.HourOfWeek = append(out.HourOfWeek, dm.HourOfWeek[i])
		out.Weight = append(out.Weight, weights[i])
		if dm.MeterValue != nil {
			out.MeterValue = append(out.MeterValue, dm.MeterValue[i])
		}
		temps = append(temps, dm.TemperatureMean[i])
	}
	occFlag = ComputeOccupancyFeature(out.HourOfWeek, occ)
	out.Occupied = maskColumns(ComputeTemperatureBinFeatures(temps, occEndpoints), occFlag, 1)
	out.Unoccupied = maskColumns(ComputeTemperatureBinFeatures(temps, unoccEndpoints), occFlag, 0)
	return out, nil
}

// maskColumns zeroes every row whose flag differs from keep. NaN stays NaN.
func maskColumns(cols [][]float64, flags []float64, keep float64) [][]float64 {
	for _, col := range cols {
		for r := range col {
			if flags[r] != keep && !math.IsNaN(col[r]) {
				col[r] = 0
			}
		}
	}
	return cols
}

// CreateHourlyPredictionDesignMatrix featurizes index for prediction with
// the region's balance points.
func CreateHourlyPredictionDesignMatrix(index []time.Time, temps types.TemperatureSeries, region Region) (*DesignMatrix, error) {
	return computeHourlyTemperatureFeatures(index, region.Normalize(temps), region)
}
