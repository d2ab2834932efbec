// Package segmentation splits a time index into weighted calendar segments.
package segmentation

import (
	"errors"
	"fmt"
	"time"
)

var ErrUnknownMethod = errors.New("unknown segmentation method")

// Method names a segmentation scheme.
type Method string

const (
	MethodSingle             Method = "single"
	MethodOneMonth           Method = "one_month"
	MethodThreeMonth         Method = "three_month"
	MethodThreeMonthWeighted Method = "three_month_weighted"
)

// SegmentAll is the name of the only segment produced by MethodSingle.
const SegmentAll = "all"

var monthNames = [12]string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}

// Segment is a named weighting over an index. Weights are in [0, 1].
type Segment struct {
	Name    string    `json:"name"`
	Weights []float64 `json:"weights"`
}

// Empty reports whether every weight is zero.
func (s Segment) Empty() bool {
	for _, w := range s.Weights {
		if w > 0 {
			return false
		}
	}
	return true
}

// Segmentation is an ordered set of segments over one index.
type Segmentation struct {
	Method   Method
	Index    []time.Time
	Segments []Segment
}

// Options controls SegmentTimeSeries.
type Options struct {
	DropZeroWeightSegments bool
}

// SegmentTimeSeries weights every timestamp of index for each segment of
// method.
func SegmentTimeSeries(index []time.Time, method Method, opts Options) (*Segmentation, error) {
	var specs []segmentSpec
	switch method {
	case MethodSingle:
		specs = []segmentSpec{{name: SegmentAll}}
	case MethodOneMonth:
		for m := range 12 {
			specs = append(specs, segmentSpec{name: monthNames[m], months: map[int]float64{m: 1}})
		}
	case MethodThreeMonth, MethodThreeMonthWeighted:
		for m := range 12 {
			prev, next := (m+11)%12, (m+1)%12
			name := monthNames[prev] + "-" + monthNames[m] + "-" + monthNames[next]
			neighbour := 1.0
			if method == MethodThreeMonthWeighted {
				name += "-weighted"
				neighbour = 0.5
			}
			specs = append(specs, segmentSpec{name: name, months: map[int]float64{prev: neighbour, m: 1, next: neighbour}})
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}

	seg := &Segmentation{Method: method, Index: index}
	for _, spec := range specs {
		s := Segment{Name: spec.name, Weights: make([]float64, len(index))}
		for i, t := range index {
			s.Weights[i] = spec.weight(t)
		}
		if opts.DropZeroWeightSegments && s.Empty() {
			continue
		}
		seg.Segments = append(seg.Segments, s)
	}
	return seg, nil
}

type segmentSpec struct {
	name string
	// months maps a zero-based month to its weight. nil weights every
	// month 1.
	months map[int]float64
}

func (s segmentSpec) weight(t time.Time) float64 {
	if s.months == nil {
		return 1
	}
	return s.months[int(t.Month())-1]
}

// Names returns the segment names in order.
func (s *Segmentation) Names() []string {
	out := make([]string, len(s.Segments))
	for i, seg := range s.Segments {
		out[i] = seg.Name
	}
	return out
}

// Segment returns the named segment.
func (s *Segmentation) Segment(name string) (Segment, bool) {
	for _, seg := range s.Segments {
		if seg.Name == name {
			return seg, true
		}
	}
	return Segment{}, false
}

// ModelSegmentName returns the name of the segment whose model predicts
// timestamps in t's month. For the three month methods that is the segment
// centred on the month.
func ModelSegmentName(method Method, t time.Time) (string, error) {
	m := int(t.Month()) - 1
	switch method {
	case MethodSingle:
		return SegmentAll, nil
	case MethodOneMonth:
		return monthNames[m], nil
	case MethodThreeMonth:
		return monthNames[(m+11)%12] + "-" + monthNames[m] + "-" + monthNames[(m+1)%12], nil
	case MethodThreeMonthWeighted:
		return monthNames[(m+11)%12] + "-" + monthNames[m] + "-" + monthNames[(m+1)%12] + "-weighted", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

// IterateSegmentedDataset calls process for each segment in order and
// collects the results by segment name.
func IterateSegmentedDataset[T any](s *Segmentation, process func(Segment) (T, error)) (map[string]T, error) {
	out := make(map[string]T, len(s.Segments))
	for _, seg := range s.Segments {
		v, err := process(seg)
		if err != nil {
			return nil, fmt.Errorf("error processing segment %s: %w", seg.Name, err)
		}
		out[seg.Name] = v
	}
	return out, nil
}
