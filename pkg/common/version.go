package common

import "strings"

// version is set at build time with
// -ldflags "-X github.com/raterudder/eemeter/pkg/common.version=..."
var version = "dev"

// Version returns the build version.
func Version() string {
	v := strings.TrimSpace(version)
	if v == "" {
		return "dev"
	}
	return v
}

// UserAgent identifies eemeter to remote services.
func UserAgent() string {
	return "eemeter/" + Version()
}
