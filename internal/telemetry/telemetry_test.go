package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitDefaultsToInfo(t *testing.T) {
	assert.NoError(t, Init(""))
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Init("not-a-level"))
}
