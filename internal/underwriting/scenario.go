package underwriting

import (
	"fmt"
	"math"
	"strings"
)

// HurdleIRR is the return below which a scenario is banded below hurdle.
const HurdleIRR = 0.10

// Archetype is a named scenario with fixed shocks.
type Archetype string

const (
	ArchetypeDownside Archetype = "downside"
	ArchetypeUpside   Archetype = "upside"
	ArchetypeStress   Archetype = "stress"
	ArchetypeCustom   Archetype = "custom"
)

// Adjustment is a rent change (fraction) and exit-yield shift (basis points).
type Adjustment struct {
	RentChange   float64 `json:"rent_change_fraction"`
	ExitYieldBps float64 `json:"exit_yield_change_bps"`
}

// IsZero reports whether the adjustment changes nothing.
func (a Adjustment) IsZero() bool {
	return a.RentChange == 0 && a.ExitYieldBps == 0
}

func (a Adjustment) String() string {
	return fmt.Sprintf("ERV %+.1f%%, Exit Yield %+.0fbps", a.RentChange*100, a.ExitYieldBps)
}

// Shock returns the archetype's fixed adjustment.
func (a Archetype) Shock() Adjustment {
	switch a {
	case ArchetypeDownside:
		return Adjustment{RentChange: -0.05, ExitYieldBps: 25}
	case ArchetypeUpside:
		return Adjustment{RentChange: 0.05, ExitYieldBps: -25}
	case ArchetypeStress:
		return Adjustment{RentChange: -0.10, ExitYieldBps: 50}
	default:
		return Adjustment{RentChange: -0.03, ExitYieldBps: 10}
	}
}

// Label is the display name used for scenario results.
func (a Archetype) Label() string {
	switch a {
	case ArchetypeDownside:
		return "Downside Case"
	case ArchetypeUpside:
		return "Upside Case"
	case ArchetypeStress:
		return "Stress Test"
	default:
		return "Custom Scenario"
	}
}

// DetectArchetype finds an archetype keyword in text. The second result is
// false when none is present, in which case ArchetypeCustom is returned.
func DetectArchetype(text string) (Archetype, bool) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "downside"):
		return ArchetypeDownside, true
	case strings.Contains(lower, "upside"):
		return ArchetypeUpside, true
	case strings.Contains(lower, "stress"):
		return ArchetypeStress, true
	case strings.Contains(lower, "custom"):
		return ArchetypeCustom, true
	}
	return ArchetypeCustom, false
}

// ScenarioDescriptor names an archetype and optional explicit adjustments.
type ScenarioDescriptor struct {
	Archetype Archetype  `json:"archetype"`
	Explicit  Adjustment `json:"explicit"`
}

// Effective returns the explicit adjustment when it is non-zero and the
// archetype shock otherwise.
func (d ScenarioDescriptor) Effective() Adjustment {
	if !d.Explicit.IsZero() {
		return d.Explicit
	}
	return d.Archetype.Shock()
}

// Label names the scenario for display and storage.
func (d ScenarioDescriptor) Label() string {
	if d.Explicit.IsZero() {
		return d.Archetype.Label()
	}
	return fmt.Sprintf("%s (%s)", d.Archetype.Label(), d.Explicit)
}

// Band is the qualitative read of a scenario against the base case.
type Band string

const (
	BandBelowHurdle     Band = "below_hurdle"
	BandHighSensitivity Band = "high_sensitivity"
	BandResilient       Band = "resilient"
	BandModerateImpact  Band = "moderate_impact"
)

// Describe renders the band as a one-line interpretation.
func (b Band) Describe() string {
	switch b {
	case BandBelowHurdle:
		return "IRR falls below the hurdle rate"
	case BandHighSensitivity:
		return "returns are highly sensitive to this scenario"
	case BandResilient:
		return "returns are resilient to this scenario"
	default:
		return "moderate impact on returns"
	}
}

// Comparison is a scenario measured against the stored base case.
type Comparison struct {
	BaseIRR     Metric `json:"base_irr"`
	ScenarioIRR Metric `json:"scenario_irr"`
	BaseEM      Metric `json:"base_equity_multiple"`
	ScenarioEM  Metric `json:"scenario_equity_multiple"`
	IRRDeltaBps Metric `json:"irr_delta_bps"`
	EMDelta     Metric `json:"equity_multiple_delta"`
	Band        Band   `json:"band"`
}

// ScenarioOutcome is the result of applying one scenario.
type ScenarioOutcome struct {
	Label       string             `json:"label"`
	Descriptor  ScenarioDescriptor `json:"descriptor"`
	Applied     Adjustment         `json:"applied"`
	Assumptions Assumptions        `json:"assumptions"`
	Projection  Projection         `json:"projection"`
	Comparison  Comparison         `json:"comparison"`
}

// ApplyScenario applies the descriptor to a copy of base, re-runs the engine
// and compares the result with baseline. base is never modified.
func ApplyScenario(d ScenarioDescriptor, base Assumptions, baseline Metrics, opts ...ProjectOption) ScenarioOutcome {
	o := newProjectOptions(opts)
	adj := d.Effective()

	params := base.Params()
	params.MarketRent *= 1 + adj.RentChange
	params.ExitYield += adj.ExitYieldBps / 10000

	proj := ProjectParams(params, opts...)
	return ScenarioOutcome{
		Label:       d.Label(),
		Descriptor:  d,
		Applied:     adj,
		Assumptions: params.Merge(base),
		Projection:  proj,
		Comparison:  Compare(baseline, proj.Metrics, o.hurdle),
	}
}

// Compare measures scenario metrics against baseline and bands the result.
func Compare(baseline, scenario Metrics, hurdle float64) Comparison {
	c := Comparison{
		BaseIRR:     baseline.IRR,
		ScenarioIRR: scenario.IRR,
		BaseEM:      baseline.EquityMultiple,
		ScenarioEM:  scenario.EquityMultiple,
	}
	if baseline.IRR.Available && scenario.IRR.Available {
		c.IRRDeltaBps = Of((scenario.IRR.Value - baseline.IRR.Value) * 10000)
	}
	if baseline.EquityMultiple.Available && scenario.EquityMultiple.Available {
		c.EMDelta = Of(scenario.EquityMultiple.Value - baseline.EquityMultiple.Value)
	}
	c.Band = ClassifyBand(scenario.IRR, c.IRRDeltaBps, hurdle)
	return c
}

// ClassifyBand applies the banding rules in order. An unavailable scenario
// IRR cannot clear the hurdle.
func ClassifyBand(scenarioIRR, deltaBps Metric, hurdle float64) Band {
	switch {
	case !scenarioIRR.Available || scenarioIRR.Value < hurdle:
		return BandBelowHurdle
	case deltaBps.Available && deltaBps.Value < -300:
		return BandHighSensitivity
	case deltaBps.Available && math.Abs(deltaBps.Value) < 50:
		return BandResilient
	default:
		return BandModerateImpact
	}
}
