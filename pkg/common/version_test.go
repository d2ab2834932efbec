package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersion(t *testing.T) {
	orig := version
	defer func() { version = orig }()

	version = " 1.2.0\n"
	assert.Equal(t, "1.2.0", Version())
	assert.Equal(t, "eemeter/1.2.0", UserAgent())

	version = ""
	assert.Equal(t, "dev", Version())
}
