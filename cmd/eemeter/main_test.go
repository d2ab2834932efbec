package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/raterudder/eemeter/pkg/caltrack/usageperday"
	"github.com/raterudder/eemeter/pkg/dataio"
	"github.com/raterudder/eemeter/pkg/samples"
	"github.com/raterudder/eemeter/pkg/storage"
	"github.com/raterudder/eemeter/pkg/storage/storagemock"
)

func writeFixture(t *testing.T) *config {
	t.Helper()
	dir := t.TempDir()
	start := time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)
	temps := samples.Temperature(start, 24*365, 1)
	meter := samples.DailyMeter(temps, start, 365, samples.DefaultProfile(), 2)

	meterPath := filepath.Join(dir, "meter.csv.gz")
	f, err := os.Create(meterPath)
	require.NoError(t, err)
	require.NoError(t, dataio.WriteGzipCSV(f, meter.Series, "start", "value"))
	require.NoError(t, f.Close())

	tempPath := filepath.Join(dir, "temperature.csv")
	f, err = os.Create(tempPath)
	require.NoError(t, err)
	require.NoError(t, dataio.WriteCSV(f, temps.Series, "dt", "tempF"))
	require.NoError(t, f.Close())

	return &config{
		MeterFile:            meterPath,
		TemperatureFile:      tempPath,
		Region:               "USA",
		HeatingBalancePoints: "55-65",
		CoolingBalancePoints: "65-75",
		FitCDD:               true,
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("Stdout", func(t *testing.T) {
		cfg := writeFixture(t)
		db := &storagemock.MockDatabase{}
		var out bytes.Buffer
		require.NoError(t, run(ctx, cfg, db, &out))
		db.AssertExpectations(t)

		res, err := usageperday.ResultFromJSON(out.Bytes())
		require.NoError(t, err)
		assert.Equal(t, usageperday.ResultSuccess, res.Status)
		assert.Equal(t, usageperday.MethodName, res.MethodName)
		assert.True(t, res.Fitted())
		assert.Empty(t, res.Candidates)
	})

	t.Run("ShowCandidatesOutputFile", func(t *testing.T) {
		cfg := writeFixture(t)
		cfg.ShowCandidates = true
		cfg.FitCDD = false
		cfg.OutputFile = filepath.Join(t.TempDir(), "out.json")
		var out bytes.Buffer
		require.NoError(t, run(ctx, cfg, &storagemock.MockDatabase{}, &out))
		assert.Zero(t, out.Len())

		b, err := os.ReadFile(cfg.OutputFile)
		require.NoError(t, err)
		var doc usageperday.ResultDocument
		require.NoError(t, json.Unmarshal(b, &doc))
		// intercept only plus eleven heating balance points
		assert.Len(t, doc.Candidates, 12)
		assert.False(t, doc.Settings.FitCDD)
	})

	t.Run("Store", func(t *testing.T) {
		cfg := writeFixture(t)
		cfg.StoreProject = "building-1"
		db := &storagemock.MockDatabase{}
		db.On("SaveModelResult", mock.Anything, "building-1", mock.MatchedBy(func(r storage.StoredResult) bool {
			return r.MethodName == usageperday.MethodName && r.Status == "SUCCESS" && json.Valid(r.JSON)
		})).Return("result-id", nil).Once()

		require.NoError(t, run(ctx, cfg, db, &bytes.Buffer{}))
		db.AssertExpectations(t)
	})

	t.Run("StoreFails", func(t *testing.T) {
		cfg := writeFixture(t)
		cfg.StoreProject = "building-1"
		db := &storagemock.MockDatabase{}
		db.On("SaveModelResult", mock.Anything, "building-1", mock.Anything).Return("", storage.ErrDisabled)

		err := run(ctx, cfg, db, &bytes.Buffer{})
		assert.ErrorIs(t, err, storage.ErrDisabled)
	})

	t.Run("OptionsFile", func(t *testing.T) {
		cfg := writeFixture(t)
		cfg.OptionsFile = filepath.Join(t.TempDir(), "options.yaml")
		require.NoError(t, os.WriteFile(cfg.OptionsFile, []byte("fit_cdd: false\nfit_intercept_only: false\n"), 0o644))
		cfg.ShowCandidates = true
		var out bytes.Buffer
		require.NoError(t, run(ctx, cfg, &storagemock.MockDatabase{}, &out))

		var doc usageperday.ResultDocument
		require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
		assert.Len(t, doc.Candidates, 11)
	})

	t.Run("MissingFiles", func(t *testing.T) {
		err := run(ctx, &config{HeatingBalancePoints: "55-65", CoolingBalancePoints: "65-75"}, &storagemock.MockDatabase{}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "--meter-file and --temperature-file are required")
	})

	t.Run("BadRange", func(t *testing.T) {
		cfg := writeFixture(t)
		cfg.HeatingBalancePoints = "65-55"
		err := run(ctx, cfg, &storagemock.MockDatabase{}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "end before start")
	})
}

func TestParseRange(t *testing.T) {
	bps, err := parseRange("55-58")
	require.NoError(t, err)
	assert.Equal(t, []int{55, 56, 57, 58}, bps)

	bps, err = parseRange("60")
	require.NoError(t, err)
	assert.Equal(t, []int{60}, bps)

	_, err = parseRange("a-b")
	assert.Error(t, err)
}
