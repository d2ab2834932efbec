package features

import (
	"fmt"
	"strings"

	"github.com/raterudder/eemeter/pkg/types"
)

// Region carries the temperature unit of a region's weather data and the
// balance points the hourly model uses there.
type Region struct {
	Name                string
	Celsius             bool
	HeatingBalancePoint int
	CoolingBalancePoint int
}

var regions = map[string]Region{
	"USA": {Name: "USA", HeatingBalancePoint: 50, CoolingBalancePoint: 65},
	"CAN": {Name: "CAN", Celsius: true, HeatingBalancePoint: 50, CoolingBalancePoint: 65},
	"AUS": {Name: "AUS", Celsius: true, HeatingBalancePoint: 50, CoolingBalancePoint: 65},
	"GBR": {Name: "GBR", Celsius: true, HeatingBalancePoint: 50, CoolingBalancePoint: 65},
}

// DefaultRegion is used when no region is given.
var DefaultRegion = regions["USA"]

// LookupRegion returns the region with the given ISO 3166 alpha-3 code.
func LookupRegion(name string) (Region, error) {
	if name == "" {
		return DefaultRegion, nil
	}
	r, ok := regions[strings.ToUpper(name)]
	if !ok {
		return Region{}, fmt.Errorf("unknown region %q", name)
	}
	return r, nil
}

// Normalize converts temps to Fahrenheit when the region reports Celsius.
func (r Region) Normalize(temps types.TemperatureSeries) types.TemperatureSeries {
	if r.Celsius {
		return temps.ToFahrenheit()
	}
	return temps
}
