package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyAdjustsByFractionOfCurrentValue(t *testing.T) {
	params := DefaultParams() // risk_per_trade 0.02

	out, err := params.Apply([]Adjustment{{Field: "risk_per_trade", ChangeFraction: -0.05}})
	require.NoError(t, err)

	assert.InDelta(t, 0.019, out.RiskPerTrade, 1e-9)
	// Input is untouched.
	assert.InDelta(t, 0.02, params.RiskPerTrade, 1e-9)
}

func TestApplyClampsToSchemaBounds(t *testing.T) {
	params := Params{RiskPerTrade: 0.011, MinConfidence: 90, MomentumThreshold: 75}

	out, err := params.Apply([]Adjustment{
		{Field: "risk_per_trade", ChangeFraction: -0.95},
		{Field: "min_confidence", ChangeFraction: 0.50},
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.01, out.RiskPerTrade, 1e-9)
	assert.InDelta(t, 95, out.MinConfidence, 1e-9)
}

func TestApplyUnknownFieldErrors(t *testing.T) {
	_, err := DefaultParams().Apply([]Adjustment{{Field: "take_profit", ChangeFraction: 0.1}})
	assert.Error(t, err)
}

func TestApplyChainsMultipleAdjustmentsToSameField(t *testing.T) {
	params := DefaultParams() // min_confidence 70

	out, err := params.Apply([]Adjustment{
		{Field: "min_confidence", ChangeFraction: 0.10},
		{Field: "min_confidence", ChangeFraction: 0.15},
	})
	require.NoError(t, err)

	// Second adjustment compounds on the first: 70 * 1.10 * 1.15.
	assert.InDelta(t, 88.55, out.MinConfidence, 1e-9)
}

func TestValidateBounds(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	bad := DefaultParams()
	bad.MomentumThreshold = 40
	assert.Error(t, bad.Validate())
}
