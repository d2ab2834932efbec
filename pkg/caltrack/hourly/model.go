// Package hourly fits CalTRACK hourly models: one weighted regression per
// time-of-year segment over hour-of-week indicators and occupancy-split
// temperature bins.
package hourly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/raterudder/eemeter/pkg/features"
	"github.com/raterudder/eemeter/pkg/log"
	"github.com/raterudder/eemeter/pkg/metrics"
	"github.com/raterudder/eemeter/pkg/regression"
	"github.com/raterudder/eemeter/pkg/segmentation"
	"github.com/raterudder/eemeter/pkg/types"
)

// MethodName identifies models of this package.
const MethodName = "caltrack_hourly"

// Outcome is either Fitted or Unfit.
type Outcome interface {
	isFit()
}

// Fitted holds the per-segment coefficients keyed by segment name.
type Fitted struct {
	Segments map[string]SegmentModel
}

// Unfit marks a model without coefficients.
type Unfit struct {
	Reason string
}

func (Fitted) isFit() {}
func (Unfit) isFit()  {}

// SegmentModel is the fitted regression of one segment.
type SegmentModel struct {
	Segment string
	Formula string
	// HourOfWeek holds the coefficient of every hour of the week that had
	// data in the segment.
	HourOfWeek map[int]float64
	// Occupied and Unoccupied are the bin coefficients in bin order.
	Occupied    []float64
	Unoccupied  []float64
	NObs        int
	RSquaredAdj float64
}

// Artifacts are the featurization inputs shared by fitting and prediction.
type Artifacts struct {
	SegmentType    segmentation.Method
	Region         features.Region
	Occupancy      features.OccupancyLookup
	OccupiedBins   features.TemperatureBins
	UnoccupiedBins features.TemperatureBins
}

// Model is a composite hourly model.
type Model struct {
	Artifacts
	Fit      Outcome
	Warnings []types.Warning
}

// Fitted reports whether the model has coefficients.
func (m *Model) Fitted() bool {
	_, ok := m.Fit.(Fitted)
	return ok
}

// Segments returns the fitted segment models.
func (m *Model) Segments() (map[string]SegmentModel, bool) {
	f, ok := m.Fit.(Fitted)
	if !ok {
		return nil, false
	}
	return f.Segments, true
}

// WithoutParams returns a copy of m without coefficients.
func (m *Model) WithoutParams() *Model {
	out := *m
	out.Fit = Unfit{Reason: "parameters removed"}
	out.Warnings = slices.Clone(m.Warnings)
	return &out
}

// UncertaintyInputs reports that hourly models carry no metrics for error
// bands.
func (m *Model) UncertaintyInputs() (metrics.ModelMetrics, types.Interval, bool) {
	return metrics.ModelMetrics{}, types.IntervalHourly, false
}

// Options controls FitMeter.
type Options struct {
	SegmentType segmentation.Method
	Region      features.Region
	Occupancy   features.OccupancyOptions
	Bins        features.BinOptions
}

// DefaultOptions uses three month weighted segments in the USA region.
func DefaultOptions() Options {
	return Options{
		SegmentType: segmentation.MethodThreeMonthWeighted,
		Region:      features.DefaultRegion,
		Occupancy:   features.DefaultOccupancyOptions(),
		Bins:        features.DefaultBinOptions(),
	}
}

// FitMeter runs the whole hourly pipeline over hourly meter and temperature
// data: segmentation, occupancy, temperature bins, segmented design matrices
// and the per-segment fits.
func FitMeter(ctx context.Context, meter types.MeterSeries, temps types.TemperatureSeries, opts Options) (*Model, error) {
	dm, err := features.CreateHourlyPreliminaryDesignMatrix(meter, temps, opts.Region)
	if err != nil {
		return nil, fmt.Errorf("error creating preliminary design matrix: %w", err)
	}
	seg, err := segmentation.SegmentTimeSeries(dm.Index, opts.SegmentType, segmentation.Options{DropZeroWeightSegments: true})
	if err != nil {
		return nil, err
	}
	occOpts := opts.Occupancy
	occOpts.Region = opts.Region
	occupancy, err := features.EstimateHourOfWeekOccupancy(ctx, dm, seg, occOpts)
	if err != nil {
		return nil, fmt.Errorf("error estimating occupancy: %w", err)
	}
	occupiedBins, unoccupiedBins, err := features.FitTemperatureBins(ctx, dm, seg, occupancy, opts.Bins)
	if err != nil {
		return nil, fmt.Errorf("error fitting temperature bins: %w", err)
	}
	matrices, err := features.CreateHourlySegmentedDesignMatrices(dm, seg, occupancy, occupiedBins, unoccupiedBins)
	if err != nil {
		return nil, fmt.Errorf("error creating segmented design matrices: %w", err)
	}
	return FitSegments(ctx, matrices, Artifacts{
		SegmentType:    opts.SegmentType,
		Region:         opts.Region,
		Occupancy:      occupancy,
		OccupiedBins:   occupiedBins,
		UnoccupiedBins: unoccupiedBins,
	})
}

// FitSegments fits every segmented design matrix independently. Segments
// without usable rows are left out of the model with a warning. A model
// with no fitted segment is Unfit.
func FitSegments(ctx context.Context, matrices map[string]*features.SegmentedDesignMatrix, art Artifacts) (*Model, error) {
	names := make([]string, 0, len(matrices))
	for name := range matrices {
		names = append(names, name)
	}
	slices.Sort(names)

	type outcome struct {
		model SegmentModel
		ok    bool
	}
	results := make([]outcome, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sm, err := fitSegment(matrices[name])
			if errors.Is(err, regression.ErrNoObservations) {
				return nil
			} else if err != nil {
				return fmt.Errorf("error fitting segment %s: %w", name, err)
			}
			results[i] = outcome{model: sm, ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := &Model{Artifacts: art}
	segments := make(map[string]SegmentModel, len(names))
	for i, name := range names {
		if !results[i].ok {
			m.Warnings = append(m.Warnings, types.Warning{
				QualifiedName: "eemeter.caltrack_hourly.segment_no_data",
				Description:   "No usable rows in segment. Segment model not fit.",
				Data:          map[string]any{"segment_name": name},
			})
			continue
		}
		segments[name] = results[i].model
	}
	if len(segments) == 0 {
		m.Fit = Unfit{Reason: "no segment could be fit"}
		log.Ctx(ctx).DebugContext(ctx, "no hourly segments fit", slog.Int("segments", len(names)))
		return m, nil
	}
	m.Fit = Fitted{Segments: segments}
	log.Ctx(ctx).DebugContext(
		ctx,
		"fit hourly model",
		slog.String("segmentType", string(art.SegmentType)),
		slog.Int("segments", len(segments)),
	)
	return m, nil
}

func hourColumn(how int) string {
	return fmt.Sprintf("hour_of_week[%d]", how)
}

func fitSegment(sdm *features.SegmentedDesignMatrix) (SegmentModel, error) {
	if sdm.MeterValue == nil {
		return SegmentModel{}, fmt.Errorf("segment %s has no meter_value", sdm.Segment)
	}
	var present [features.HoursPerWeek]bool
	for i, how := range sdm.HourOfWeek {
		if sdm.Weight[i] > 0 && !math.IsNaN(sdm.MeterValue[i]) {
			present[how] = true
		}
	}
	design := regression.Design{HasConstant: true}
	var hours []int
	for how, ok := range present {
		if !ok {
			continue
		}
		col := make([]float64, sdm.Len())
		for i, h := range sdm.HourOfWeek {
			if h == how {
				col[i] = 1
			}
		}
		hours = append(hours, how)
		design.Names = append(design.Names, hourColumn(how))
		design.Columns = append(design.Columns, col)
	}
	if len(hours) == 0 {
		return SegmentModel{}, regression.ErrNoObservations
	}
	binNames := sdm.BinColumns()
	design.Names = append(design.Names, binNames...)
	design.Columns = append(design.Columns, sdm.Occupied...)
	design.Columns = append(design.Columns, sdm.Unoccupied...)

	res, err := regression.WLS(design, sdm.MeterValue, sdm.Weight)
	if err != nil {
		return SegmentModel{}, err
	}
	sm := SegmentModel{
		Segment:     sdm.Segment,
		Formula:     "meter_value ~ C(hour_of_week) - 1 + " + strings.Join(binNames, " + "),
		HourOfWeek:  make(map[int]float64, len(hours)),
		Occupied:    make([]float64, len(sdm.Occupied)),
		Unoccupied:  make([]float64, len(sdm.Unoccupied)),
		NObs:        res.NObs,
		RSquaredAdj: res.RSquaredAdj,
	}
	if len(binNames) == 0 {
		sm.Formula = "meter_value ~ C(hour_of_week) - 1"
	}
	for j, how := range hours {
		sm.HourOfWeek[how] = res.Params[j]
	}
	offset := len(hours)
	copy(sm.Occupied, res.Params[offset:])
	copy(sm.Unoccupied, res.Params[offset+len(sdm.Occupied):])
	return sm, nil
}
