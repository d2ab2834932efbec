package usageperday

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/raterudder/eemeter/pkg/features"
)

var ErrBillingWeightsRequired = errors.New("billing presets require a weights column")

// Options controls candidate generation and qualification.
type Options struct {
	FitCDD            bool   `yaml:"fit_cdd" json:"fit_cdd"`
	UseBillingPresets bool   `yaml:"use_billing_presets" json:"use_billing_presets"`
	WeightsCol        string `yaml:"weights_col" json:"weights_col"`

	MinimumNonZeroCDD    int     `yaml:"minimum_non_zero_cdd" json:"minimum_non_zero_cdd"`
	MinimumNonZeroHDD    int     `yaml:"minimum_non_zero_hdd" json:"minimum_non_zero_hdd"`
	MinimumTotalCDD      float64 `yaml:"minimum_total_cdd" json:"minimum_total_cdd"`
	MinimumTotalHDD      float64 `yaml:"minimum_total_hdd" json:"minimum_total_hdd"`
	BetaCDDMaximumPValue float64 `yaml:"beta_cdd_maximum_p_value" json:"beta_cdd_maximum_p_value"`
	BetaHDDMaximumPValue float64 `yaml:"beta_hdd_maximum_p_value" json:"beta_hdd_maximum_p_value"`

	FitInterceptOnly bool `yaml:"fit_intercept_only" json:"fit_intercept_only"`
	FitCDDOnly       bool `yaml:"fit_cdd_only" json:"fit_cdd_only"`
	FitHDDOnly       bool `yaml:"fit_hdd_only" json:"fit_hdd_only"`
	FitCDDHDD        bool `yaml:"fit_cdd_hdd" json:"fit_cdd_hdd"`
}

// DefaultOptions returns the daily defaults.
func DefaultOptions() Options {
	return Options{
		FitCDD:               true,
		MinimumNonZeroCDD:    10,
		MinimumNonZeroHDD:    10,
		MinimumTotalCDD:      20,
		MinimumTotalHDD:      20,
		BetaCDDMaximumPValue: 1,
		BetaHDDMaximumPValue: 1,
		FitInterceptOnly:     true,
		FitCDDOnly:           true,
		FitHDDOnly:           true,
		FitCDDHDD:            true,
	}
}

// BillingOptions returns DefaultOptions with billing presets applied and
// n_days_kept as the weights column.
func BillingOptions() Options {
	opts := DefaultOptions()
	opts.UseBillingPresets = true
	opts.WeightsCol = features.ColumnNDaysKept
	return opts
}

// resolve applies billing presets.
func (o Options) resolve() (Options, error) {
	if !o.UseBillingPresets {
		return o, nil
	}
	if o.WeightsCol == "" {
		return o, ErrBillingWeightsRequired
	}
	o.MinimumNonZeroCDD = 0
	o.MinimumNonZeroHDD = 0
	o.MinimumTotalCDD = 20
	o.MinimumTotalHDD = 20
	return o, nil
}

// LoadOptions reads YAML options from r on top of DefaultOptions.
func LoadOptions(r io.Reader) (Options, error) {
	opts := DefaultOptions()
	if err := yaml.NewDecoder(r).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return Options{}, fmt.Errorf("error decoding options: %w", err)
	}
	return opts, nil
}
