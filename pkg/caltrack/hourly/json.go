package hourly

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/raterudder/eemeter/pkg/features"
	"github.com/raterudder/eemeter/pkg/segmentation"
	"github.com/raterudder/eemeter/pkg/types"
)

// ModelDocument is the serialized form of a Model.
type ModelDocument struct {
	MethodName     string                     `json:"method_name"`
	SegmentType    segmentation.Method        `json:"segment_type"`
	Region         string                     `json:"region"`
	Occupancy      map[string][]bool          `json:"occupancy_lookup"`
	OccupiedBins   features.TemperatureBins   `json:"occupied_temperature_bins"`
	UnoccupiedBins features.TemperatureBins   `json:"unoccupied_temperature_bins"`
	SegmentModels  map[string]SegmentDocument `json:"segment_models,omitempty"`
	Warnings       []types.Warning            `json:"warnings"`
}

// SegmentDocument is the serialized form of a SegmentModel. Hour of week
// keys are decimal strings.
type SegmentDocument struct {
	Formula     string             `json:"formula"`
	HourOfWeek  map[string]float64 `json:"hour_of_week"`
	Occupied    []float64          `json:"occupied_bins"`
	Unoccupied  []float64          `json:"unoccupied_bins"`
	NObs        int                `json:"n_obs"`
	RSquaredAdj *float64           `json:"r_squared_adj"`
}

// Document converts m to its serialized form.
func (m *Model) Document() ModelDocument {
	doc := ModelDocument{
		MethodName:     MethodName,
		SegmentType:    m.SegmentType,
		Region:         m.Region.Name,
		Occupancy:      make(map[string][]bool, len(m.Occupancy)),
		OccupiedBins:   m.OccupiedBins,
		UnoccupiedBins: m.UnoccupiedBins,
		Warnings:       m.Warnings,
	}
	if doc.Warnings == nil {
		doc.Warnings = []types.Warning{}
	}
	for name, hours := range m.Occupancy {
		doc.Occupancy[name] = hours[:]
	}
	if f, ok := m.Fit.(Fitted); ok {
		doc.SegmentModels = make(map[string]SegmentDocument, len(f.Segments))
		for name, sm := range f.Segments {
			sd := SegmentDocument{
				Formula:    sm.Formula,
				HourOfWeek: make(map[string]float64, len(sm.HourOfWeek)),
				Occupied:   sm.Occupied,
				Unoccupied: sm.Unoccupied,
				NObs:       sm.NObs,
			}
			for how, v := range sm.HourOfWeek {
				sd.HourOfWeek[strconv.Itoa(how)] = v
			}
			if !math.IsNaN(sm.RSquaredAdj) && !math.IsInf(sm.RSquaredAdj, 0) {
				r := sm.RSquaredAdj
				sd.RSquaredAdj = &r
			}
			doc.SegmentModels[name] = sd
		}
	}
	return doc
}

// MarshalJSON serializes m.
func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Document())
}

// ModelFromJSON rehydrates a model serialized with MarshalJSON. A document
// without segment models yields an Unfit model.
func ModelFromJSON(b []byte) (*Model, error) {
	var doc ModelDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("error decoding hourly model: %w", err)
	}
	return ModelFromDocument(doc)
}

// ModelFromDocument rehydrates a model from its serialized form.
func ModelFromDocument(doc ModelDocument) (*Model, error) {
	region, err := features.LookupRegion(doc.Region)
	if err != nil {
		return nil, err
	}
	m := &Model{
		Artifacts: Artifacts{
			SegmentType:    doc.SegmentType,
			Region:         region,
			Occupancy:      make(features.OccupancyLookup, len(doc.Occupancy)),
			OccupiedBins:   doc.OccupiedBins,
			UnoccupiedBins: doc.UnoccupiedBins,
		},
		Fit:      Unfit{Reason: "no model parameters"},
		Warnings: doc.Warnings,
	}
	for name, hours := range doc.Occupancy {
		if len(hours) != features.HoursPerWeek {
			return nil, fmt.Errorf("occupancy for %s has %d hours", name, len(hours))
		}
		var lookup [features.HoursPerWeek]bool
		copy(lookup[:], hours)
		m.Occupancy[name] = lookup
	}
	if len(doc.SegmentModels) == 0 {
		return m, nil
	}
	segments := make(map[string]SegmentModel, len(doc.SegmentModels))
	for name, sd := range doc.SegmentModels {
		sm := SegmentModel{
			Segment:     name,
			Formula:     sd.Formula,
			HourOfWeek:  make(map[int]float64, len(sd.HourOfWeek)),
			Occupied:    sd.Occupied,
			Unoccupied:  sd.Unoccupied,
			NObs:        sd.NObs,
			RSquaredAdj: math.NaN(),
		}
		if sd.RSquaredAdj != nil {
			sm.RSquaredAdj = *sd.RSquaredAdj
		}
		for key, v := range sd.HourOfWeek {
			how, err := strconv.Atoi(key)
			if err != nil || how < 0 || how >= features.HoursPerWeek {
				return nil, fmt.Errorf("invalid hour of week %q in segment %s", key, name)
			}
			sm.HourOfWeek[how] = v
		}
		segments[name] = sm
	}
	m.Fit = Fitted{Segments: segments}
	return m, nil
}
