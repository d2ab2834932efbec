package usageperday

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/raterudder/eemeter/pkg/metrics"
	"github.com/raterudder/eemeter/pkg/types"
)

// ResultDocument is the serialized form of a Result.
type ResultDocument struct {
	Status        ResultStatus          `json:"status"`
	MethodName    string                `json:"method_name"`
	Interval      types.Interval        `json:"interval"`
	Model         *CandidateDocument    `json:"model"`
	RSquaredAdj   *float64              `json:"r_squared_adj"`
	Warnings      []types.Warning       `json:"warnings"`
	Metadata      map[string]any        `json:"metadata"`
	Settings      Options               `json:"settings"`
	TotalsMetrics *metrics.ModelMetrics `json:"totals_metrics"`
	AvgsMetrics   *metrics.ModelMetrics `json:"avgs_metrics"`
	Candidates    []CandidateDocument   `json:"candidates"`
}

// CandidateDocument is the serialized form of a CandidateModel.
type CandidateDocument struct {
	ModelType   ModelType          `json:"model_type"`
	Formula     string             `json:"formula"`
	Status      Status             `json:"status"`
	ModelParams map[string]float64 `json:"model_params,omitempty"`
	RSquaredAdj *float64           `json:"r_squared_adj"`
	Warnings    []types.Warning    `json:"warnings"`
}

func optionalFloat(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Document converts c to its serialized form.
func (c CandidateModel) Document() CandidateDocument {
	doc := CandidateDocument{
		ModelType:   c.ModelType,
		Formula:     c.Formula,
		Status:      c.Status,
		RSquaredAdj: optionalFloat(c.RSquaredAdj()),
		Warnings:    c.Warnings,
	}
	if doc.Warnings == nil {
		doc.Warnings = []types.Warning{}
	}
	if p, ok := c.Params(); ok {
		doc.ModelParams = map[string]float64{"intercept": p.Intercept}
		if c.ModelType.hasHDD() {
			doc.ModelParams["beta_hdd"] = p.BetaHDD
			doc.ModelParams["heating_balance_point"] = float64(p.HeatingBalancePoint)
		}
		if c.ModelType.hasCDD() {
			doc.ModelParams["beta_cdd"] = p.BetaCDD
			doc.ModelParams["cooling_balance_point"] = float64(p.CoolingBalancePoint)
		}
	}
	return doc
}

// Document converts r to its serialized form. Candidates are only included
// when withCandidates is set.
func (r *Result) Document(withCandidates bool) ResultDocument {
	doc := ResultDocument{
		Status:     r.Status,
		MethodName: r.MethodName,
		Interval:   r.Interval,
		Warnings:   r.Warnings,
		Metadata:   r.Metadata,
		Settings:   r.Settings,
	}
	if doc.Warnings == nil {
		doc.Warnings = []types.Warning{}
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}
	if f, ok := r.Fit.(Fitted); ok {
		m := f.Model.Document()
		doc.Model = &m
		doc.RSquaredAdj = m.RSquaredAdj
		doc.TotalsMetrics = &f.TotalsMetrics
		doc.AvgsMetrics = &f.AvgsMetrics
	}
	if withCandidates {
		doc.Candidates = make([]CandidateDocument, len(r.Candidates))
		for i, c := range r.Candidates {
			doc.Candidates[i] = c.Document()
		}
	}
	return doc
}

// JSON serializes r.
func (r *Result) JSON(withCandidates bool) ([]byte, error) {
	return json.Marshal(r.Document(withCandidates))
}

// MarshalJSON serializes r without candidates.
func (r *Result) MarshalJSON() ([]byte, error) {
	return r.JSON(false)
}

// ResultFromJSON rehydrates a result serialized with JSON. A document
// without model parameters yields an Unfit result.
func ResultFromJSON(b []byte) (*Result, error) {
	var doc ResultDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("error decoding usage per day result: %w", err)
	}
	return ResultFromDocument(doc), nil
}

// ResultFromDocument rehydrates a result from its serialized form.
func ResultFromDocument(doc ResultDocument) *Result {
	r := &Result{
		Status:     doc.Status,
		MethodName: doc.MethodName,
		Interval:   doc.Interval,
		Warnings:   doc.Warnings,
		Settings:   doc.Settings,
		Metadata:   doc.Metadata,
		Fit:        Unfit{Reason: "no model parameters"},
	}
	for _, c := range doc.Candidates {
		r.Candidates = append(r.Candidates, candidateFromDocument(c))
	}
	if doc.Model == nil || len(doc.Model.ModelParams) == 0 {
		return r
	}
	f := Fitted{
		Model:         candidateFromDocument(*doc.Model),
		AvgsMetrics:   metrics.Undefined(),
		TotalsMetrics: metrics.Undefined(),
	}
	if doc.AvgsMetrics != nil {
		f.AvgsMetrics = *doc.AvgsMetrics
	}
	if doc.TotalsMetrics != nil {
		f.TotalsMetrics = *doc.TotalsMetrics
	}
	r.Fit = f
	return r
}

func candidateFromDocument(doc CandidateDocument) CandidateModel {
	c := CandidateModel{
		ModelType: doc.ModelType,
		Formula:   doc.Formula,
		Status:    doc.Status,
		Warnings:  doc.Warnings,
	}
	if len(doc.ModelParams) > 0 {
		c.params = &Params{
			Intercept:           doc.ModelParams["intercept"],
			BetaHDD:             doc.ModelParams["beta_hdd"],
			BetaCDD:             doc.ModelParams["beta_cdd"],
			HeatingBalancePoint: int(doc.ModelParams["heating_balance_point"]),
			CoolingBalancePoint: int(doc.ModelParams["cooling_balance_point"]),
		}
	}
	if doc.RSquaredAdj != nil {
		nan := math.NaN()
		c.stats = &FitStats{
			RSquared:      nan,
			RSquaredAdj:   *doc.RSquaredAdj,
			CVRMSE:        nan,
			CVRMSEAdj:     nan,
			AutocorrResid: nan,
		}
	}
	return c
}
