package validator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/pricer/xerrors"
)

type sample struct {
	Name  string  `json:"name" validate:"required"`
	Steps int     `json:"steps" validate:"gte=0,lte=100"`
	Rate  float64 `json:"rate" validate:"finite"`
	Kind  string  `json:"kind" validate:"oneof=call put"`
}

func TestStructOK(t *testing.T) {
	assert.NoError(t, Struct(sample{Name: "a", Steps: 10, Rate: 0.01, Kind: "call"}))
}

func TestStructCollectsAllViolations(t *testing.T) {
	err := Struct(sample{Steps: 101, Rate: math.Inf(1), Kind: "swap"})
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrors.ErrInvalidParameters)

	xe, ok := xerrors.FromError(err)
	require.True(t, ok)
	assert.Contains(t, xe.Detail, "name is required")
	assert.Contains(t, xe.Detail, "steps must satisfy lte=100")
	assert.Contains(t, xe.Detail, "rate must be a finite number")
	assert.Contains(t, xe.Detail, "kind must be one of [call put]")
	assert.Len(t, xe.Context["fields"], 4)
}
