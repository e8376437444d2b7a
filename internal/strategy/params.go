package strategy

import "fmt"

// Params is the typed parameter set of a strategy version. Adding a field
// here requires a matching entry in the schema below so adjustments stay
// bounded.
type Params struct {
	// RiskPerTrade is the fraction of account equity committed to a single
	// trade.
	RiskPerTrade float64 `json:"risk_per_trade"`

	// MinConfidence is the acceptance floor for signal confidence (percent).
	// Signals below it are rejected by the pipeline filter.
	MinConfidence float64 `json:"min_confidence"`

	// MomentumThreshold is the momentum-strength knob rendered into the
	// prompt template (percent).
	MomentumThreshold float64 `json:"momentum_threshold"`
}

// FieldSpec declares the bounds of one adjustable parameter. Clamping is a
// property of the schema, not of the parameter's name.
type FieldSpec struct {
	Name string
	Min  float64
	Max  float64

	value func(*Params) *float64
}

var schema = []FieldSpec{
	{Name: "risk_per_trade", Min: 0.01, Max: 0.10, value: func(p *Params) *float64 { return &p.RiskPerTrade }},
	{Name: "min_confidence", Min: 50, Max: 95, value: func(p *Params) *float64 { return &p.MinConfidence }},
	{Name: "momentum_threshold", Min: 60, Max: 90, value: func(p *Params) *float64 { return &p.MomentumThreshold }},
}

// Adjustment is a single evolution directive: shift the named field by a
// fraction of its current value.
type Adjustment struct {
	Field          string
	ChangeFraction float64
}

// DefaultParams returns the bootstrap parameter set for a root version.
func DefaultParams() Params {
	return Params{
		RiskPerTrade:      0.02,
		MinConfidence:     70,
		MomentumThreshold: 75,
	}
}

// Apply returns a copy of p with all adjustments applied. Each adjustment
// adds current_value * change_fraction to the current value and clamps the
// result into the field's schema bounds. Unknown fields are reported as
// errors rather than silently skipped.
func (p Params) Apply(adjustments []Adjustment) (Params, error) {
	out := p
	for _, adj := range adjustments {
		spec, ok := fieldSpec(adj.Field)
		if !ok {
			return p, fmt.Errorf("strategy: unknown parameter %q", adj.Field)
		}
		v := spec.value(&out)
		*v = clamp(*v+*v*adj.ChangeFraction, spec.Min, spec.Max)
	}
	return out, nil
}

// Validate checks that every field lies within its schema bounds.
func (p Params) Validate() error {
	for _, spec := range schema {
		v := *spec.value(&p)
		if v < spec.Min || v > spec.Max {
			return fmt.Errorf("strategy: parameter %s=%v outside bounds [%v, %v]", spec.Name, v, spec.Min, spec.Max)
		}
	}
	return nil
}

func fieldSpec(name string) (FieldSpec, bool) {
	for _, spec := range schema {
		if spec.Name == name {
			return spec, true
		}
	}
	return FieldSpec{}, false
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
