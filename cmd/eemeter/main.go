package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"

	"github.com/raterudder/eemeter/pkg/caltrack/usageperday"
	"github.com/raterudder/eemeter/pkg/dataio"
	"github.com/raterudder/eemeter/pkg/features"
	"github.com/raterudder/eemeter/pkg/log"
	"github.com/raterudder/eemeter/pkg/storage"
)

// config holds the caltrack command flags.
type config struct {
	MeterFile            string
	TemperatureFile      string
	OutputFile           string
	OptionsFile          string
	Region               string
	HeatingBalancePoints string
	CoolingBalancePoints string
	FitCDD               bool
	Billing              bool
	ShowCandidates       bool
	StoreProject         string
}

func configured() *config {
	meterFile := lflag.String("meter-file", "", "CSV (optionally gzipped) meter data with start,value columns")
	temperatureFile := lflag.String("temperature-file", "", "CSV (optionally gzipped) temperature data with dt,tempF columns")
	outputFile := lflag.String("output-file", "", "Write the model result here instead of stdout")
	optionsFile := lflag.String("options-file", "", "YAML fit options, overrides --fit-cdd")
	region := lflag.String("region", "USA", "Region of the temperature data (USA, CAN, AUS, GBR)")
	heating := lflag.String("heating-balance-points", "55-65", "Inclusive range of heating balance points")
	cooling := lflag.String("cooling-balance-points", "65-75", "Inclusive range of cooling balance points")
	fitCDD := lflag.Bool("fit-cdd", true, "Fit cooling degree day candidates")
	billing := lflag.Bool("billing", false, "Meter data is billing periods")
	showCandidates := lflag.Bool("show-candidates", false, "Include every candidate model in the output")
	storeProject := lflag.String("store-project", "", "Save the result under this project with the storage provider")

	c := &config{}
	lflag.Do(func() {
		*c = config{
			MeterFile:            *meterFile,
			TemperatureFile:      *temperatureFile,
			OutputFile:           *outputFile,
			OptionsFile:          *optionsFile,
			Region:               *region,
			HeatingBalancePoints: *heating,
			CoolingBalancePoints: *cooling,
			FitCDD:               *fitCDD,
			Billing:              *billing,
			ShowCandidates:       *showCandidates,
			StoreProject:         *storeProject,
		}
	})
	return c
}

func main() {
	cfg := configured()
	s := storage.Configured()

	// parse flags
	lflag.Configure()

	// lflag automatically sets llog's level, but we need to set the slog level
	level, err := log.LevelFromLLog(llog.GetLevel())
	if err != nil {
		panic(err)
	}
	log.SetDefaultLogLevel(level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()

	if err := run(ctx, cfg, s, os.Stdout); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "caltrack failed", "error", err)
		os.Exit(1)
	}
}

// parseRange parses an inclusive "lo-hi" range or a single value.
func parseRange(s string) ([]int, error) {
	lo, hi, found := strings.Cut(strings.TrimSpace(s), "-")
	a, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return nil, fmt.Errorf("invalid balance point range %q: %w", s, err)
	}
	b := a
	if found {
		b, err = strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("invalid balance point range %q: %w", s, err)
		}
	}
	if b < a {
		return nil, fmt.Errorf("invalid balance point range %q: end before start", s)
	}
	return features.BalancePointRange(a, b), nil
}

func fitOptions(cfg *config) (usageperday.Options, error) {
	var opts usageperday.Options
	if cfg.OptionsFile != "" {
		f, err := os.Open(cfg.OptionsFile)
		if err != nil {
			return opts, fmt.Errorf("error opening options file: %w", err)
		}
		defer f.Close()
		if opts, err = usageperday.LoadOptions(f); err != nil {
			return opts, err
		}
	} else {
		opts = usageperday.DefaultOptions()
		opts.FitCDD = cfg.FitCDD
	}
	if cfg.Billing && !opts.UseBillingPresets {
		opts.UseBillingPresets = true
	}
	if opts.UseBillingPresets && opts.WeightsCol == "" {
		opts.WeightsCol = features.ColumnNDaysKept
	}
	return opts, nil
}

func designMatrix(cfg *config) (*features.DesignMatrix, error) {
	if cfg.MeterFile == "" || cfg.TemperatureFile == "" {
		return nil, errors.New("--meter-file and --temperature-file are required")
	}
	region, err := features.LookupRegion(cfg.Region)
	if err != nil {
		return nil, err
	}
	heating, err := parseRange(cfg.HeatingBalancePoints)
	if err != nil {
		return nil, err
	}
	cooling, err := parseRange(cfg.CoolingBalancePoints)
	if err != nil {
		return nil, err
	}

	mf, err := os.Open(cfg.MeterFile)
	if err != nil {
		return nil, fmt.Errorf("error opening meter file: %w", err)
	}
	defer mf.Close()
	meter, err := dataio.MeterDataFromCSV(mf, dataio.MeterCSVOptions())
	if err != nil {
		return nil, fmt.Errorf("error reading meter file: %w", err)
	}

	tf, err := os.Open(cfg.TemperatureFile)
	if err != nil {
		return nil, fmt.Errorf("error opening temperature file: %w", err)
	}
	defer tf.Close()
	temps, err := dataio.TemperatureDataFromCSV(tf, dataio.TemperatureCSVOptions())
	if err != nil {
		return nil, fmt.Errorf("error reading temperature file: %w", err)
	}

	opts := features.DefaultTemperatureOptions(heating, cooling)
	opts.DataQuality = true
	if cfg.Billing {
		opts.Tolerance = features.BillingTolerance
	}
	return features.CreateUsagePerDayDesignMatrix(meter, region.Normalize(temps), opts)
}

// run fits a usage per day model to the configured files, writes the result
// document and optionally stores it.
func run(ctx context.Context, cfg *config, db storage.Database, stdout io.Writer) error {
	opts, err := fitOptions(cfg)
	if err != nil {
		return err
	}
	dm, err := designMatrix(cfg)
	if err != nil {
		return err
	}

	res, err := usageperday.Fit(ctx, dm, opts)
	if err != nil {
		return fmt.Errorf("error fitting model: %w", err)
	}
	if !res.Fitted() {
		log.Ctx(ctx).WarnContext(ctx, "no model was fit",
			slog.String("status", string(res.Status)),
			slog.Int("n_warnings", len(res.Warnings)),
		)
	}

	b, err := res.JSON(cfg.ShowCandidates)
	if err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}
	out := stdout
	if cfg.OutputFile != "" {
		f, err := os.Create(cfg.OutputFile)
		if err != nil {
			return fmt.Errorf("error creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	if _, err := out.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("error writing result: %w", err)
	}

	if cfg.StoreProject == "" {
		return nil
	}
	id, err := db.SaveModelResult(ctx, cfg.StoreProject, storage.StoredResult{
		MethodName: res.MethodName,
		Status:     string(res.Status),
		JSON:       b,
	})
	if err != nil {
		return fmt.Errorf("error storing result: %w", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "stored model result", slog.String("project", cfg.StoreProject), slog.String("id", id))
	return nil
}
