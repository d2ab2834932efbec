package features

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"strconv"

	"github.com/raterudder/eemeter/pkg/log"
	"github.com/raterudder/eemeter/pkg/regression"
	"github.com/raterudder/eemeter/pkg/segmentation"
)

// TemperatureBins maps a segment name to its ordered bin endpoints in °F.
type TemperatureBins map[string][]float64

// BinOptions controls FitTemperatureBins.
type BinOptions struct {
	DefaultBins         []float64
	MinTemperatureCount int
	// MaxBins caps the number of bins by greedily removing the endpoint
	// whose removal raises the piecewise-linear fit error the least. Zero
	// disables the search.
	MaxBins int
}

// DefaultBinOptions returns the default endpoints and minimum count.
func DefaultBinOptions() BinOptions {
	return BinOptions{
		DefaultBins:         []float64{30, 45, 55, 65, 75, 90},
		MinTemperatureCount: 20,
	}
}

// BinColumn returns the name of the ith bin feature.
func BinColumn(i int) string {
	return "bin_" + strconv.Itoa(i)
}

// FitTemperatureBins fits bin endpoints separately for occupied and
// unoccupied hours of each segment.
func FitTemperatureBins(ctx context.Context, dm *DesignMatrix, seg *segmentation.Segmentation, occupancy OccupancyLookup, opts BinOptions) (TemperatureBins, TemperatureBins, error) {
	type fitted struct {
		occupied, unoccupied []float64
	}
	bySegment, err := segmentation.IterateSegmentedDataset(seg, func(s segmentation.Segment) (fitted, error) {
		occ := occupancy[s.Name]
		var groups [2]binSample
		for i, w := range s.Weights {
			if !(w > 0) || math.IsNaN(dm.TemperatureMean[i]) {
				continue
			}
			g := &groups[0]
			if !occ[dm.HourOfWeek[i]] {
				g = &groups[1]
			}
			g.temps = append(g.temps, dm.TemperatureMean[i])
			g.weights = append(g.weights, w)
			if dm.MeterValue != nil {
				g.meter = append(g.meter, dm.MeterValue[i])
			}
		}
		var f fitted
		f.occupied = groups[0].fit(opts)
		f.unoccupied = groups[1].fit(opts)
		log.Ctx(ctx).DebugContext(
			ctx,
			"fit temperature bins",
			slog.String("segment", s.Name),
			slog.Any("occupied", f.occupied),
			slog.Any("unoccupied", f.unoccupied),
		)
		return f, nil
	})
	if err != nil {
		return nil, nil, err
	}
	occupied := make(TemperatureBins, len(bySegment))
	unoccupied := make(TemperatureBins, len(bySegment))
	for name, f := range bySegment {
		occupied[name] = f.occupied
		unoccupied[name] = f.unoccupied
	}
	return occupied, unoccupied, nil
}

type binSample struct {
	temps   []float64
	meter   []float64
	weights []float64
}

func (b binSample) fit(opts BinOptions) []float64 {
	endpoints := mergeSparseBins(b.temps, opts.DefaultBins, opts.MinTemperatureCount)
	if opts.MaxBins > 0 && len(b.meter) == len(b.temps) {
		endpoints = pruneBins(b, endpoints, opts.MaxBins)
	}
	return endpoints
}

// binCounts counts temps in (-inf, e0], (e0, e1], ..., (ek, inf).
func binCounts(temps, endpoints []float64) []int {
	counts := make([]int, len(endpoints)+1)
	for _, t := range temps {
		i, _ := slices.BinarySearch(endpoints, t)
		counts[i]++
	}
	return counts
}

// mergeSparseBins removes endpoints next to bins with fewer than minCount
// readings until every bin is populated enough. A sparse first or middle
// bin loses its right endpoint and a sparse last bin loses its left one.
func mergeSparseBins(temps, defaults []float64, minCount int) []float64 {
	endpoints := slices.Clone(defaults)
	slices.Sort(endpoints)
	for len(endpoints) > 0 {
		counts := binCounts(temps, endpoints)
		remove := make(map[float64]bool)
		for i, c := range counts {
			if c >= minCount {
				continue
			}
			if i == len(counts)-1 {
				remove[endpoints[i-1]] = true
			} else {
				remove[endpoints[i]] = true
			}
		}
		if len(remove) == 0 {
			break
		}
		endpoints = slices.DeleteFunc(endpoints, func(e float64) bool { return remove[e] })
	}
	return endpoints
}

func pruneBins(b binSample, endpoints []float64, maxBins int) []float64 {
	for len(endpoints)+1 > maxBins {
		best, bestSSE := -1, math.Inf(1)
		for j := range endpoints {
			candidate := slices.Delete(slices.Clone(endpoints), j, j+1)
			sse := binFitError(b, candidate)
			if sse < bestSSE {
				best, bestSSE = j, sse
			}
		}
		if best < 0 {
			break
		}
		endpoints = slices.Delete(endpoints, best, best+1)
	}
	return endpoints
}

func binFitError(b binSample, endpoints []float64) float64 {
	cols := ComputeTemperatureBinFeatures(b.temps, endpoints)
	design := regression.Design{
		Names:       []string{"Intercept"},
		Columns:     [][]float64{constant(len(b.temps))},
		HasConstant: true,
	}
	for i, col := range cols {
		design.Names = append(design.Names, BinColumn(i))
		design.Columns = append(design.Columns, col)
	}
	res, err := regression.WLS(design, b.meter, b.weights)
	if err != nil {
		return math.Inf(1)
	}
	return res.SSR
}

// ComputeTemperatureBinFeatures expands temps into a piecewise-linear basis
// with one column per bin. Summed, the columns reproduce the temperature.
func ComputeTemperatureBinFeatures(temps, endpoints []float64) [][]float64 {
	cols := make([][]float64, len(endpoints)+1)
	for i := range cols {
		cols[i] = make([]float64, len(temps))
	}
	last := len(endpoints)
	for r, t := range temps {
		if math.IsNaN(t) {
			for i := range cols {
				cols[i][r] = math.NaN()
			}
			continue
		}
		for i := range cols {
			switch {
			case last == 0:
				cols[i][r] = t
			case i == 0:
				cols[i][r] = math.Min(t, endpoints[0])
			case i == last:
				cols[i][r] = math.Max(t-endpoints[i-1], 0)
			default:
				left, right := endpoints[i-1], endpoints[i]
				cols[i][r] = math.Max(math.Min(t, right)-left, 0)
			}
		}
	}
	return cols
}
