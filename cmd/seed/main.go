package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/eemeter/pkg/dataio"
	"github.com/raterudder/eemeter/pkg/log"
	"github.com/raterudder/eemeter/pkg/samples"
	"github.com/raterudder/eemeter/pkg/types"
)

type seedConfig struct {
	OutDir   string
	Start    time.Time
	Days     int
	Interval types.Interval
	Seed     int64
	Gzip     bool
	Noise    float64
}

// generate writes a synthetic meter file and its hourly temperature file to
// cfg.OutDir and returns their paths.
func generate(cfg seedConfig) (string, string, error) {
	p := samples.DefaultProfile()
	p.Noise = cfg.Noise
	temps := samples.Temperature(cfg.Start, cfg.Days*24, cfg.Seed)

	var meter types.MeterSeries
	switch cfg.Interval {
	case types.IntervalDaily:
		meter = samples.DailyMeter(temps, cfg.Start, cfg.Days, p, cfg.Seed+1)
	case types.IntervalBilling:
		meter = samples.BillingMeter(temps, cfg.Start, cfg.Days/30, p, cfg.Seed+1)
	case types.IntervalHourly:
		meter = samples.HourlyMeter(temps, p, cfg.Seed+1)
	default:
		return "", "", fmt.Errorf("unknown interval %q", cfg.Interval)
	}

	ext := ".csv"
	write := dataio.WriteCSV
	if cfg.Gzip {
		ext = ".csv.gz"
		write = dataio.WriteGzipCSV
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return "", "", err
	}
	meterPath := filepath.Join(cfg.OutDir, string(cfg.Interval)+"_meter"+ext)
	tempPath := filepath.Join(cfg.OutDir, "temperature"+ext)
	if err := writeFile(meterPath, func(f *os.File) error {
		return write(f, meter.Series, "start", "value")
	}); err != nil {
		return "", "", err
	}
	if err := writeFile(tempPath, func(f *os.File) error {
		return write(f, temps.Series, "dt", "tempF")
	}); err != nil {
		return "", "", err
	}
	return meterPath, tempPath, nil
}

func writeFile(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return f.Close()
}

func main() {
	outDir := lflag.String("out-dir", ".", "Directory to write the sample files to")
	start := lflag.String("start", "2016-01-01", "First day of the sample data")
	days := lflag.String("days", "365", "Number of days to generate")
	interval := lflag.String("interval", "daily", "Meter interval (daily, billing, hourly)")
	seed := lflag.String("seed", "1", "Random seed")
	gzip := lflag.Bool("gzip", false, "Gzip the output files")
	lflag.Configure()

	ctx := context.Background()

	t, err := dataio.ParseTimestamp(*start)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid start", "error", err)
		os.Exit(1)
	}

	n, err := strconv.Atoi(*days)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid days", "error", err)
		os.Exit(1)
	}
	rs, err := strconv.ParseInt(*seed, 10, 64)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid seed", "error", err)
		os.Exit(1)
	}

	log.Ctx(ctx).InfoContext(ctx, "generating sample data", "interval", *interval, "days", n)
	meterPath, tempPath, err := generate(seedConfig{
		OutDir:   *outDir,
		Start:    t,
		Days:     n,
		Interval: types.Interval(*interval),
		Seed:     rs,
		Gzip:     *gzip,
		Noise:    samples.DefaultProfile().Noise,
	})
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to generate sample data", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s and %s\n", meterPath, tempPath)
}
