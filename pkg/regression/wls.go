// Package regression fits weighted least squares models.
package regression

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrNoObservations = errors.New("no observations with positive weight")
	ErrNoColumns      = errors.New("design has no columns")
	ErrFactorize      = errors.New("singular value decomposition failed")
)

// rcond matches the relative cutoff used by numpy's pinv.
const rcond = 1e-15

// Design is a set of named regressor columns of equal length.
type Design struct {
	Names   []string
	Columns [][]float64
	// HasConstant marks that one of the columns is an intercept so that
	// R-squared is computed about the mean.
	HasConstant bool
}

// Len returns the number of rows.
func (d Design) Len() int {
	if len(d.Columns) == 0 {
		return 0
	}
	return len(d.Columns[0])
}

// Result is a fitted weighted least squares regression.
type Result struct {
	Names   []string
	Params  []float64
	StdErr  []float64
	TValues []float64
	PValues []float64
	// Cov is the scaled covariance of Params.
	Cov *mat.SymDense

	// Fitted and Resid are aligned to the input rows, including rows that
	// were excluded for non-positive weight.
	Fitted []float64
	Resid  []float64

	NObs         int
	Rank         int
	DFResid      float64
	SSR          float64
	CenteredTSS  float64
	Scale        float64
	RSquared     float64
	RSquaredAdj  float64
	WeightedMean float64
}

// WLS fits y against design using weights. A nil weights slice weights every
// row equally. Rows with a non-positive weight or any NaN value are ignored.
func WLS(design Design, y, weights []float64) (*Result, error) {
	p := len(design.Columns)
	if p == 0 {
		return nil, ErrNoColumns
	}
	n := len(y)
	for i, col := range design.Columns {
		if len(col) != n {
			return nil, fmt.Errorf("column %s has %d rows, expected %d", design.Names[i], len(col), n)
		}
	}
	if weights != nil && len(weights) != n {
		return nil, fmt.Errorf("weights have %d rows, expected %d", len(weights), n)
	}

	rows := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if weight(weights, i) > 0 && finiteRow(design, y, i) {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return nil, ErrNoObservations
	}

	xw := mat.NewDense(len(rows), p, nil)
	yw := make([]float64, len(rows))
	for r, i := range rows {
		sw := math.Sqrt(weight(weights, i))
		for j, col := range design.Columns {
			xw.Set(r, j, col[i]*sw)
		}
		yw[r] = y[i] * sw
	}

	var svd mat.SVD
	if ok := svd.Factorize(xw, mat.SVDThin); !ok {
		return nil, ErrFactorize
	}
	s := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	cutoff := rcond * s[0]
	rank := 0
	for _, sv := range s {
		if sv > cutoff {
			rank++
		}
	}

	params := make([]float64, p)
	unscaled := mat.NewSymDense(p, nil)
	for k := 0; k < rank; k++ {
		var proj float64
		for r := range yw {
			proj += u.At(r, k) * yw[r]
		}
		c := proj / s[k]
		inv2 := 1 / (s[k] * s[k])
		for j := 0; j < p; j++ {
			params[j] += c * v.At(j, k)
			for l := j; l < p; l++ {
				unscaled.SetSym(j, l, unscaled.At(j, l)+v.At(j, k)*v.At(l, k)*inv2)
			}
		}
	}

	res := &Result{
		Names:  design.Names,
		Params: params,
		NObs:   len(rows),
		Rank:   rank,
		Fitted: make([]float64, n),
		Resid:  make([]float64, n),
	}
	for i := 0; i < n; i++ {
		var f float64
		for j, col := range design.Columns {
			f += col[i] * params[j]
		}
		res.Fitted[i] = f
		res.Resid[i] = y[i] - f
	}

	var sumW, sumWY float64
	for _, i := range rows {
		w := weight(weights, i)
		sumW += w
		sumWY += w * y[i]
		res.SSR += w * res.Resid[i] * res.Resid[i]
	}
	res.WeightedMean = sumWY / sumW
	var uncenteredTSS float64
	for _, i := range rows {
		w := weight(weights, i)
		d := y[i] - res.WeightedMean
		res.CenteredTSS += w * d * d
		uncenteredTSS += w * y[i] * y[i]
	}

	res.DFResid = float64(res.NObs - rank)
	res.Scale = math.NaN()
	if res.DFResid > 0 {
		res.Scale = res.SSR / res.DFResid
	}

	kConst := 0.0
	if design.HasConstant {
		kConst = 1
		res.RSquared = 1 - res.SSR/res.CenteredTSS
	} else {
		res.RSquared = 1 - res.SSR/uncenteredTSS
	}
	res.RSquaredAdj = 1 - (float64(res.NObs)-kConst)/res.DFResid*(1-res.RSquared)

	res.Cov = mat.NewSymDense(p, nil)
	res.Cov.ScaleSym(res.Scale, unscaled)
	res.StdErr = make([]float64, p)
	res.TValues = make([]float64, p)
	res.PValues = make([]float64, p)
	var tdist *distuv.StudentsT
	if res.DFResid > 0 {
		tdist = &distuv.StudentsT{Mu: 0, Sigma: 1, Nu: res.DFResid}
	}
	for j := 0; j < p; j++ {
		res.StdErr[j] = math.Sqrt(res.Cov.At(j, j))
		res.TValues[j] = params[j] / res.StdErr[j]
		res.PValues[j] = math.NaN()
		if tdist != nil && !math.IsNaN(res.TValues[j]) {
			res.PValues[j] = 2 * (1 - tdist.CDF(math.Abs(res.TValues[j])))
		}
	}
	return res, nil
}

func finiteRow(design Design, y []float64, i int) bool {
	if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
		return false
	}
	for _, col := range design.Columns {
		if math.IsNaN(col[i]) || math.IsInf(col[i], 0) {
			return false
		}
	}
	return true
}

func weight(weights []float64, i int) float64 {
	if weights == nil {
		return 1
	}
	w := weights[i]
	if math.IsNaN(w) {
		return 0
	}
	return w
}

// Param returns the coefficient for the named column.
func (r *Result) Param(name string) (float64, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.Params[i], true
		}
	}
	return 0, false
}

// PValue returns the p-value for the named column.
func (r *Result) PValue(name string) (float64, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.PValues[i], true
		}
	}
	return 0, false
}

// Predict evaluates the fitted model over design, which must have the same
// columns in the same order as the fit.
func (r *Result) Predict(design Design) ([]float64, error) {
	if len(design.Columns) != len(r.Params) {
		return nil, fmt.Errorf("design has %d columns, model has %d", len(design.Columns), len(r.Params))
	}
	out := make([]float64, design.Len())
	for j, col := range design.Columns {
		for i, v := range col {
			out[i] += v * r.Params[j]
		}
	}
	return out, nil
}
