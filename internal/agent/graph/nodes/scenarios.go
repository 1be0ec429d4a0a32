package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/deal-associate/server/internal/agent/model"
	"github.com/deal-associate/server/internal/metrics"
	"github.com/deal-associate/server/internal/underwriting"
	logx "github.com/deal-associate/server/pkg/logger"
)

// Scenarios runs scenario analysis against the stored base case. The base
// FinancialModel is never replaced; each run is stored under Scenarios.
type Scenarios struct {
	deps *Deps
	deck *Deck
}

func NewScenarios(deps *Deps) *Scenarios {
	return &Scenarios{deps: deps, deck: NewDeck(deps)}
}

func (n *Scenarios) Prepare(_ context.Context, in StepInput) (model.Delta, error) {
	var b strings.Builder
	if fm := in.Deal.FinancialModel; fm != nil {
		fmt.Fprintf(&b, "Base case: Levered IRR %s, Equity Multiple %s, Yield on Cost %s.\n\n",
			fm.IRR.Percent(), fm.EquityMultiple.Multiple(), fm.YieldOnCost.Percent())
	}
	b.WriteString("Available scenarios:")
	for _, a := range []underwriting.Archetype{underwriting.ArchetypeDownside, underwriting.ArchetypeUpside, underwriting.ArchetypeStress} {
		fmt.Fprintf(&b, "\n- %s: %s", a.Label(), a.Shock())
	}
	b.WriteString("\n- Custom: give the rent change and exit yield shift, e.g. '-8% rent, +40 bps exit yield'")
	return model.Say(b.String()), nil
}

// Apply reads the scenario request and hands it to Rebuild.
func (n *Scenarios) Apply(_ context.Context, in StepInput) (model.Delta, error) {
	d, _ := describeScenario(in.Turn.Query, n.deps.extractor())
	in.Scratch.Scenario = &d

	status := strings.Join([]string{
		"System Processing:",
		"- Applying scenario: " + d.Label(),
		"- Adjusting assumptions: " + d.Effective().String(),
		"- Rebuilding financial model",
	}, "\n")
	return model.Delta{Messages: []model.Message{model.SystemLog(status)}}, nil
}

func (n *Scenarios) Rebuild(_ context.Context, in StepInput) (model.Delta, error) {
	fm := in.Deal.FinancialModel
	if fm == nil {
		return model.Say("The base-case model has not been built yet, so there is nothing to compare the scenario against."), nil
	}
	d := underwriting.ScenarioDescriptor{Archetype: underwriting.ArchetypeCustom}
	if in.Scratch.Scenario != nil {
		d = *in.Scratch.Scenario
	}

	out := underwriting.ApplyScenario(d, in.Deal.Assumptions, fm.Metrics, n.deps.projectOptions()...)
	label := in.Deal.NextScenarioLabel(out.Label)
	metrics.ScenarioRuns.WithLabelValues(string(d.Archetype), string(out.Comparison.Band)).Inc()
	logx.Debug().
		Str("session_id", in.Turn.SessionID).
		Str("scenario", label).
		Str("band", string(out.Comparison.Band)).
		Msg("Scenario rebuilt")

	return model.Delta{
		Scenarios: []model.ScenarioResult{{
			Label:       out.Label,
			Descriptor:  out.Descriptor,
			Applied:     out.Applied,
			Assumptions: out.Assumptions,
			Metrics:     out.Projection.Metrics,
			Comparison:  out.Comparison,
		}},
		Messages: []model.Message{model.AssistantMessage(ScenarioImpact(label, out.Comparison))},
	}, nil
}

// ScenarioImpact renders a scenario against the base case.
func ScenarioImpact(label string, c underwriting.Comparison) string {
	delta := "n/a"
	if c.IRRDeltaBps.Available {
		delta = fmt.Sprintf("%+.0f bps", c.IRRDeltaBps.Value)
	}
	return fmt.Sprintf("Model rebuilt for %s.\n\nScenario Impact:\n- Levered IRR: %s (vs %s Base)\n- Equity Multiple: %s (vs %s Base)\n- IRR change: %s, %s",
		label,
		c.ScenarioIRR.Percent(), c.BaseIRR.Percent(),
		c.ScenarioEM.Multiple(), c.BaseEM.Multiple(),
		delta, c.Band.Describe())
}

// RefreshViews re-renders the deck with the scenario comparison.
func (n *Scenarios) RefreshViews(ctx context.Context, in StepInput) (model.Delta, error) {
	latest, ok := in.Deal.LatestScenario()
	if !ok {
		return model.Delta{}, nil
	}
	deck, line := n.deck.render(ctx, in)
	status := strings.Join([]string{
		"System Processing:",
		"- Updates sensitivity tables in Deck",
		"- Refreshes return charts (IRR/EM vs Base Case)",
		fmt.Sprintf("- Saves new version: IC Deck v%d (%s)", deck.Version, latest.Label),
	}, "\n")
	return model.Delta{
		Deck: deck,
		Messages: []model.Message{
			model.SystemLog(status),
			model.AssistantMessage("Deck views refreshed with the new scenario data." + line),
		},
	}, nil
}
