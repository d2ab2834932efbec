package hourly

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/raterudder/eemeter/pkg/features"
	"github.com/raterudder/eemeter/pkg/log"
	"github.com/raterudder/eemeter/pkg/segmentation"
	"github.com/raterudder/eemeter/pkg/types"
)

// Predict predicts hourly usage for index. Each timestamp uses the model of
// the segment centred on its month. Timestamps without a segment model, an
// hour-of-week coefficient or a temperature are NaN. Hourly predictions are
// never disaggregated.
func (m *Model) Predict(ctx context.Context, index []time.Time, temps types.TemperatureSeries, opts types.PredictOptions) (types.Prediction, error) {
	f, ok := m.Fit.(Fitted)
	if !ok {
		return types.Prediction{}, types.ErrMissingModelParameters
	}
	dm, err := features.CreateHourlyPredictionDesignMatrix(index, temps, m.Region)
	if err != nil {
		return types.Prediction{}, err
	}

	pred := types.Prediction{Index: index, PredictedUsage: make([]float64, len(index))}
	var predicted, missingSegment int
	for i, t := range index {
		pred.PredictedUsage[i] = math.NaN()
		name, err := segmentation.ModelSegmentName(m.SegmentType, t)
		if err != nil {
			return types.Prediction{}, err
		}
		sm, ok := f.Segments[name]
		if !ok {
			missingSegment++
			continue
		}
		v := m.predictRow(sm, dm.HourOfWeek[i], dm.TemperatureMean[i])
		if !math.IsNaN(v) {
			predicted++
		}
		pred.PredictedUsage[i] = v
	}

	if missingSegment > 0 {
		pred.Warnings = append(pred.Warnings, types.Warning{
			QualifiedName: "eemeter.caltrack_hourly.missing_segment_model",
			Description:   "Some timestamps fall in segments without a fitted model.",
			Data:          map[string]any{"n_timestamps": missingSegment},
		})
	}
	if len(index) > 0 && predicted == 0 {
		pred.Warnings = append(pred.Warnings, types.Warning{
			QualifiedName: "eemeter.caltrack.compute_temperature_features",
			Description:   "Design matrix empty, compute_temperature_features failed",
			Data:          map[string]any{"temperature_data": map[string]any{"n": temps.Len()}},
		})
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"predicted hourly model",
		slog.Int("periods", len(index)),
		slog.Int("predicted", predicted),
	)
	return pred, nil
}

func (m *Model) predictRow(sm SegmentModel, how int, temp float64) float64 {
	base, ok := sm.HourOfWeek[how]
	if !ok || math.IsNaN(temp) {
		return math.NaN()
	}
	occupied := m.Occupancy[sm.Segment][how]
	endpoints, coefs := m.UnoccupiedBins[sm.Segment], sm.Unoccupied
	if occupied {
		endpoints, coefs = m.OccupiedBins[sm.Segment], sm.Occupied
	}
	cols := features.ComputeTemperatureBinFeatures([]float64{temp}, endpoints)
	if len(cols) != len(coefs) {
		return math.NaN()
	}
	v := base
	for j, col := range cols {
		v += coefs[j] * col[0]
	}
	return v
}
