// Package dataio reads and writes meter and temperature series as CSV in
// the eemeter sample layout, optionally gzip compressed.
package dataio

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/raterudder/eemeter/pkg/types"
)

var ErrMissingColumn = errors.New("missing column")

// CSVOptions names the columns to read.
type CSVOptions struct {
	TimestampColumn string
	ValueColumn     string
	// Hourly resamples temperature readings to hourly means with NaN for
	// hours without readings.
	Hourly bool
}

// MeterCSVOptions matches the eemeter sample meter files.
func MeterCSVOptions() CSVOptions {
	return CSVOptions{TimestampColumn: "start", ValueColumn: "value"}
}

// TemperatureCSVOptions matches the eemeter sample temperature files.
func TemperatureCSVOptions() CSVOptions {
	return CSVOptions{TimestampColumn: "dt", ValueColumn: "tempF", Hourly: true}
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp layouts found in meter exports.
// Timestamps without an offset are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// maybeGunzip transparently decompresses r when it starts with the gzip
// magic bytes.
func maybeGunzip(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("error opening gzip stream: %w", err)
		}
		return zr, nil
	}
	return br, nil
}

func readSeries(r io.Reader, opts CSVOptions) (types.Series, error) {
	r, err := maybeGunzip(r)
	if err != nil {
		return types.Series{}, err
	}
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return types.Series{}, nil
	} else if err != nil {
		return types.Series{}, fmt.Errorf("error reading header: %w", err)
	}
	tsIdx, valIdx := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case opts.TimestampColumn:
			tsIdx = i
		case opts.ValueColumn:
			valIdx = i
		}
	}
	if tsIdx < 0 {
		return types.Series{}, fmt.Errorf("%w: %s", ErrMissingColumn, opts.TimestampColumn)
	}
	if valIdx < 0 {
		return types.Series{}, fmt.Errorf("%w: %s", ErrMissingColumn, opts.ValueColumn)
	}

	var s types.Series
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return types.Series{}, fmt.Errorf("error reading line %d: %w", line, err)
		}
		ts, err := ParseTimestamp(record[tsIdx])
		if err != nil {
			return types.Series{}, fmt.Errorf("line %d: %w", line, err)
		}
		v := math.NaN()
		if raw := strings.TrimSpace(record[valIdx]); raw != "" && !strings.EqualFold(raw, "nan") {
			v, err = strconv.ParseFloat(raw, 64)
			if err != nil {
				return types.Series{}, fmt.Errorf("line %d: invalid value %q: %w", line, raw, err)
			}
		}
		s.Timestamps = append(s.Timestamps, ts)
		s.Values = append(s.Values, v)
	}
	sortSeries(&s)
	return s, nil
}

func sortSeries(s *types.Series) {
	idx := make([]int, s.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return s.Timestamps[idx[a]].Before(s.Timestamps[idx[b]])
	})
	ts := make([]time.Time, len(idx))
	vals := make([]float64, len(idx))
	for i, j := range idx {
		ts[i] = s.Timestamps[j]
		vals[i] = s.Values[j]
	}
	s.Timestamps, s.Values = ts, vals
}

// MeterDataFromCSV reads a meter series. Empty values are NaN.
func MeterDataFromCSV(r io.Reader, opts CSVOptions) (types.MeterSeries, error) {
	s, err := readSeries(r, opts)
	if err != nil {
		return types.MeterSeries{}, err
	}
	return types.NewMeterSeries(s.Timestamps, s.Values)
}

// TemperatureDataFromCSV reads a temperature series.
func TemperatureDataFromCSV(r io.Reader, opts CSVOptions) (types.TemperatureSeries, error) {
	s, err := readSeries(r, opts)
	if err != nil {
		return types.TemperatureSeries{}, err
	}
	if opts.Hourly {
		s = resampleHourly(s)
	}
	return types.NewTemperatureSeries(s.Timestamps, s.Values)
}

// resampleHourly averages readings per hour from the first to the last
// hour of s.
func resampleHourly(s types.Series) types.Series {
	if s.Empty() {
		return s
	}
	first := s.Timestamps[0].Truncate(time.Hour)
	last := s.Timestamps[s.Len()-1].Truncate(time.Hour)
	n := int(last.Sub(first)/time.Hour) + 1
	sums := make([]float64, n)
	counts := make([]int, n)
	for i, t := range s.Timestamps {
		if math.IsNaN(s.Values[i]) {
			continue
		}
		h := int(t.Truncate(time.Hour).Sub(first) / time.Hour)
		sums[h] += s.Values[i]
		counts[h]++
	}
	out := types.Series{Timestamps: make([]time.Time, n), Values: make([]float64, n)}
	for h := range out.Timestamps {
		out.Timestamps[h] = first.Add(time.Duration(h) * time.Hour)
		out.Values[h] = math.NaN()
		if counts[h] > 0 {
			out.Values[h] = sums[h] / float64(counts[h])
		}
	}
	return out
}

// WriteCSV writes s with the given column names. NaN values are written
// as empty fields.
func WriteCSV(w io.Writer, s types.Series, timestampColumn, valueColumn string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{timestampColumn, valueColumn}); err != nil {
		return err
	}
	for i, t := range s.Timestamps {
		v := ""
		if !math.IsNaN(s.Values[i]) {
			v = strconv.FormatFloat(s.Values[i], 'f', -1, 64)
		}
		if err := cw.Write([]string{t.Format(time.RFC3339), v}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteGzipCSV is WriteCSV through a gzip stream.
func WriteGzipCSV(w io.Writer, s types.Series, timestampColumn, valueColumn string) error {
	zw := gzip.NewWriter(w)
	if err := WriteCSV(zw, s, timestampColumn, valueColumn); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}
